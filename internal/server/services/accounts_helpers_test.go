package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/profilekeeper/internal/logging"
	"github.com/dmitrijs2005/profilekeeper/internal/server/auth"
	"github.com/dmitrijs2005/profilekeeper/internal/server/media"
	"github.com/dmitrijs2005/profilekeeper/internal/server/models"
	"github.com/dmitrijs2005/profilekeeper/internal/server/password"
	"github.com/dmitrijs2005/profilekeeper/internal/server/repositories/accounts"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

var errUnavailable = errors.New("object store unavailable")

// objectStore is a media.MemoryStore whose calls can be made to fail.
type objectStore struct {
	*media.MemoryStore
	failPut    atomic.Bool
	failDelete atomic.Bool
}

func (s *objectStore) Put(ctx context.Context, key, path, ct string) (models.MediaAssetRef, error) {
	if s.failPut.Load() {
		return models.MediaAssetRef{}, errUnavailable
	}
	return s.MemoryStore.Put(ctx, key, path, ct)
}

func (s *objectStore) Delete(ctx context.Context, key string) error {
	if s.failDelete.Load() {
		return errUnavailable
	}
	return s.MemoryStore.Delete(ctx, key)
}

// hookedRepo lets a test replace single repository calls; nil hooks fall
// through to the memory repository.
type hookedRepo struct {
	*accounts.MemoryRepository

	findByEmailOrUsername func(ctx context.Context, email, username string) (*models.Account, error)
	create                func(ctx context.Context, a *models.Account) (*models.AccountView, error)
	updateFields          func(ctx context.Context, id string, u models.AccountUpdate) (*models.AccountView, error)
	findByID              func(ctx context.Context, id string) (*models.Account, error)
}

func (r *hookedRepo) FindByEmailOrUsername(ctx context.Context, email, username string) (*models.Account, error) {
	if r.findByEmailOrUsername != nil {
		return r.findByEmailOrUsername(ctx, email, username)
	}
	return r.MemoryRepository.FindByEmailOrUsername(ctx, email, username)
}

func (r *hookedRepo) Create(ctx context.Context, a *models.Account) (*models.AccountView, error) {
	if r.create != nil {
		return r.create(ctx, a)
	}
	return r.MemoryRepository.Create(ctx, a)
}

func (r *hookedRepo) UpdateFields(ctx context.Context, id string, u models.AccountUpdate) (*models.AccountView, error) {
	if r.updateFields != nil {
		return r.updateFields(ctx, id, u)
	}
	return r.MemoryRepository.UpdateFields(ctx, id, u)
}

func (r *hookedRepo) FindByID(ctx context.Context, id string) (*models.Account, error) {
	if r.findByID != nil {
		return r.findByID(ctx, id)
	}
	return r.MemoryRepository.FindByID(ctx, id)
}

type manager struct {
	repo accounts.Repository
}

func (m *manager) RunMigrations(context.Context) error { return nil }
func (m *manager) Accounts() accounts.Repository       { return m.repo }
func (m *manager) Close(context.Context) error         { return nil }

type harness struct {
	svc    *AccountService
	repo   *accounts.MemoryRepository
	hooks  *hookedRepo
	store  *objectStore
	queue  *media.MemoryQueue
	issuer *auth.Issuer

	mu      sync.Mutex
	removed map[string]int
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	repo := accounts.NewMemoryRepository()
	h := &harness{
		repo:    repo,
		hooks:   &hookedRepo{MemoryRepository: repo},
		store:   &objectStore{MemoryStore: media.NewMemoryStore("http://cdn.test/media")},
		queue:   media.NewMemoryQueue(),
		issuer:  auth.NewIssuer("access", "refresh", time.Minute, time.Hour),
		removed: make(map[string]int),
	}

	logger := logging.NewNop()
	coordinator := media.NewCoordinator(h.store, h.queue, logger, media.Options{
		AttemptTimeout: time.Second,
		Retries:        0,
		Backoff:        time.Millisecond,
		RemoveFile: func(p string) error {
			h.mu.Lock()
			h.removed[p]++
			h.mu.Unlock()
			return os.Remove(p)
		},
	})

	b, err := password.NewBcrypt(bcrypt.MinCost)
	require.NoError(t, err)

	svc, err := NewAccountService(&manager{repo: h.hooks}, password.NewPool(b, 4), h.issuer, coordinator, logger, Options{
		NamespaceRoot: "accounts",
		StoreTimeout:  time.Second,
	})
	require.NoError(t, err)
	h.svc = svc

	return h
}

func (h *harness) stage(t *testing.T, name string) *media.StagedFile {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, pngBytes, 0o600))
	return media.NewStagedFile(p, name)
}

// removedOnce asserts every staged file was removed exactly once and is
// gone from disk.
func (h *harness) removedOnce(t *testing.T, files ...*media.StagedFile) {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, f := range files {
		require.Equal(t, 1, h.removed[f.Path], "removals of %s", f.Path)
		_, err := os.Stat(f.Path)
		require.True(t, errors.Is(err, os.ErrNotExist), "%s still on disk", f.Path)
	}
}

func (h *harness) register(t *testing.T, username, email string) *models.AccountView {
	t.Helper()
	view, err := h.svc.Register(context.Background(), RegisterInput{
		Username: username,
		FullName: "Full " + username,
		Email:    email,
		Password: "p1",
		Avatar:   h.stage(t, username+"-avatar.png"),
	})
	require.NoError(t, err)
	return view
}

func (h *harness) pending(t *testing.T) []string {
	t.Helper()
	ids, err := h.queue.Pending(context.Background(), 100)
	require.NoError(t, err)
	return ids
}
