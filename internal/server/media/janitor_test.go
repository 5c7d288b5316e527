package media

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/profilekeeper/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJanitor_Sweep(t *testing.T) {
	ctx := context.Background()
	store := newFlakyStore()
	clock := newManualClock()
	queue := NewMemoryQueue()
	queue.now = clock.now
	c := newTestCoordinator(store, queue, 0)
	j := NewJanitor(c, queue, logging.NewNop(), time.Hour)

	ref, err := c.Upload(ctx, stage(t, pngHeader), "ns")
	require.NoError(t, err)
	require.NoError(t, queue.Enqueue(ctx, ref.AssetID))
	require.NoError(t, queue.Enqueue(ctx, "ns/already-gone.png"))

	store.failDeletes = 1
	assert.Equal(t, 1, j.Sweep(ctx))

	// the failed id waits out the retry delay
	pending, err := queue.Pending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
	assert.Equal(t, 0, j.Sweep(ctx))

	clock.advance(j.retryDelay)
	pending, err = queue.Pending(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{ref.AssetID}, pending)

	assert.Equal(t, 1, j.Sweep(ctx))
	pending, err = queue.Pending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
	assert.False(t, store.Has(ref.AssetID))
}

func TestJanitor_FailingIDsDoNotStarveNewer(t *testing.T) {
	ctx := context.Background()
	store := newFlakyStore()
	queue, _ := newRedisQueue(t)
	clock := newManualClock()
	queue.now = clock.now
	c := newTestCoordinator(store, queue, 0)
	j := NewJanitor(c, queue, logging.NewNop(), time.Minute)
	j.batch = 2

	var refs []string
	for i := 0; i < 3; i++ {
		ref, err := c.Upload(ctx, stage(t, pngHeader), "ns")
		require.NoError(t, err)
		require.NoError(t, queue.Enqueue(ctx, ref.AssetID))
		refs = append(refs, ref.AssetID)
		clock.advance(time.Millisecond)
	}

	store.failDeletes = 2
	assert.Equal(t, 0, j.Sweep(ctx))

	// the two oldest keep failing but the newest is reached
	assert.Equal(t, 1, j.Sweep(ctx))
	assert.False(t, store.Has(refs[2]))

	pending, err := queue.Pending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending, "failed ids are deferred")

	clock.advance(j.retryDelay)
	pending, err = queue.Pending(ctx, 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, refs[:2], pending)
}

func TestJanitor_RunStopsOnCancel(t *testing.T) {
	store := newFlakyStore()
	queue := NewMemoryQueue()
	c := newTestCoordinator(store, queue, 0)
	j := NewJanitor(c, queue, logging.NewNop(), 5*time.Millisecond)

	require.NoError(t, queue.Enqueue(context.Background(), "ns/x.png"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		j.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		ids, _ := queue.Pending(context.Background(), 1)
		return len(ids) == 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}
