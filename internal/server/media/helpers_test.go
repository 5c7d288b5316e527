package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/profilekeeper/internal/logging"
	"github.com/dmitrijs2005/profilekeeper/internal/server/models"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

var errStoreDown = errors.New("store unavailable")

// flakyStore wraps a MemoryStore and fails the first N calls of each kind.
type flakyStore struct {
	*MemoryStore

	mu          sync.Mutex
	failPuts    int
	failDeletes int
	puts        int
	deletes     int
}

func newFlakyStore() *flakyStore {
	return &flakyStore{MemoryStore: NewMemoryStore("http://cdn.test/media")}
}

func (s *flakyStore) Put(ctx context.Context, key, path, ct string) (models.MediaAssetRef, error) {
	s.mu.Lock()
	s.puts++
	fail := s.failPuts > 0
	if fail {
		s.failPuts--
	}
	s.mu.Unlock()

	if fail {
		return models.MediaAssetRef{}, errStoreDown
	}
	return s.MemoryStore.Put(ctx, key, path, ct)
}

func (s *flakyStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	s.deletes++
	fail := s.failDeletes > 0
	if fail {
		s.failDeletes--
	}
	s.mu.Unlock()

	if fail {
		return errStoreDown
	}
	return s.MemoryStore.Delete(ctx, key)
}

func stage(t *testing.T, content []byte) *StagedFile {
	t.Helper()
	p := filepath.Join(t.TempDir(), "upload")
	require.NoError(t, os.WriteFile(p, content, 0o600))
	return NewStagedFile(p, "avatar.png")
}

func newTestCoordinator(store ObjectStore, queue DeletionQueue, retries int) *Coordinator {
	return NewCoordinator(store, queue, logging.NewNop(), Options{
		AttemptTimeout: time.Second,
		Retries:        retries,
		Backoff:        time.Millisecond,
	})
}
