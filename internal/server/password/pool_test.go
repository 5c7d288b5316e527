package password

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type slowHasher struct {
	inFlight atomic.Int32
	peak     atomic.Int32
	delay    time.Duration
}

func (s *slowHasher) enter() func() {
	n := s.inFlight.Add(1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(s.delay)
	return func() { s.inFlight.Add(-1) }
}

func (s *slowHasher) Hash(plain string) (string, error) {
	defer s.enter()()
	return "h:" + plain, nil
}

func (s *slowHasher) Verify(plain, hash string) (bool, error) {
	defer s.enter()()
	return hash == "h:"+plain, nil
}

func TestPool_BoundsConcurrency(t *testing.T) {
	h := &slowHasher{delay: 10 * time.Millisecond}
	p := NewPool(h, 2)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Hash(context.Background(), "pw")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, h.peak.Load(), int32(2))
	assert.Equal(t, int32(0), h.inFlight.Load())
}

func TestPool_Verify(t *testing.T) {
	p := NewPool(&slowHasher{}, 1)

	ok, err := p.Verify(context.Background(), "pw", "h:pw")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPool_ContextCancelledWhileWaiting(t *testing.T) {
	h := &slowHasher{delay: 200 * time.Millisecond}
	p := NewPool(h, 1)

	started := make(chan struct{})
	go func() {
		close(started)
		_, _ = p.Hash(context.Background(), "busy")
	}()
	<-started
	// let the first call take the only slot
	require.Eventually(t, func() bool { return h.inFlight.Load() == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := p.Hash(ctx, "waiting")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
