package media

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/dmitrijs2005/profilekeeper/internal/server/models"
)

// MemoryStore is an ObjectStore that keeps object bytes in memory. It backs
// the memory database driver for local runs without S3.
type MemoryStore struct {
	mu            sync.RWMutex
	objects       map[string][]byte
	publicBaseURL string
}

func NewMemoryStore(publicBaseURL string) *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte), publicBaseURL: strings.TrimRight(publicBaseURL, "/")}
}

func (s *MemoryStore) Put(ctx context.Context, key, path, _ string) (models.MediaAssetRef, error) {
	if err := ctx.Err(); err != nil {
		return models.MediaAssetRef{}, err
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return models.MediaAssetRef{}, err
	}

	s.mu.Lock()
	s.objects[key] = b
	s.mu.Unlock()

	return models.MediaAssetRef{URL: s.publicBaseURL + "/" + key, AssetID: key}, nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.objects, key)
	s.mu.Unlock()
	return nil
}

// Has reports whether key is stored.
func (s *MemoryStore) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[key]
	return ok
}

// Len is the number of stored objects.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
