package accounts

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/dmitrijs2005/profilekeeper/internal/common"
	"github.com/dmitrijs2005/profilekeeper/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAccount(id, username, email string) *models.Account {
	return &models.Account{
		ID:           id,
		Username:     username,
		Email:        email,
		FullName:     "Full " + username,
		PasswordHash: "hash",
		Avatar:       models.MediaAssetRef{URL: "http://cdn/" + id, AssetID: "accounts/" + id + "/av.png"},
	}
}

func TestMemory_CreateAndFind(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()

	view, err := r.Create(ctx, newAccount("a-1", "alice", "alice@example.com"))
	require.NoError(t, err)
	assert.Equal(t, "a-1", view.ID)
	assert.False(t, view.CreatedAt.IsZero())

	got, err := r.FindByEmailOrUsername(ctx, "nobody@example.com", "alice")
	require.NoError(t, err)
	assert.Equal(t, "a-1", got.ID)

	got, err = r.FindByEmailOrUsername(ctx, "alice@example.com", "nobody")
	require.NoError(t, err)
	assert.Equal(t, "hash", got.PasswordHash)

	_, err = r.FindByEmailOrUsername(ctx, "x@example.com", "x")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	_, err = r.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestMemory_CreateConflicts(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()

	_, err := r.Create(ctx, newAccount("a-1", "alice", "alice@example.com"))
	require.NoError(t, err)

	_, err = r.Create(ctx, newAccount("a-2", "alice", "other@example.com"))
	assert.ErrorIs(t, err, common.ErrConflict)

	_, err = r.Create(ctx, newAccount("a-3", "other", "alice@example.com"))
	assert.ErrorIs(t, err, common.ErrConflict)
}

func TestMemory_ConcurrentCreateSameUsername(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()

	const n = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		created   int
		conflicts int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := r.Create(ctx, newAccount(fmt.Sprintf("id-%d", i), "alice", fmt.Sprintf("a%d@example.com", i)))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, common.ErrConflict):
				conflicts++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, n-1, conflicts)
}

func TestMemory_UpdateFields(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()

	_, err := r.Create(ctx, newAccount("a-1", "alice", "alice@example.com"))
	require.NoError(t, err)
	_, err = r.Create(ctx, newAccount("b-1", "bob", "bob@example.com"))
	require.NoError(t, err)

	taken := "bob@example.com"
	_, err = r.UpdateFields(ctx, "a-1", models.AccountUpdate{Email: &taken})
	assert.ErrorIs(t, err, common.ErrConflict)

	email := "alice@new.example"
	cover := models.MediaAssetRef{URL: "c", AssetID: "ck"}
	view, err := r.UpdateFields(ctx, "a-1", models.AccountUpdate{Email: &email, Cover: &cover})
	require.NoError(t, err)
	assert.Equal(t, email, view.Email)
	require.NotNil(t, view.Cover)

	// old email is free again, new one is indexed
	got, err := r.FindByEmailOrUsername(ctx, email, "")
	require.NoError(t, err)
	assert.Equal(t, "a-1", got.ID)
	_, err = r.Create(ctx, newAccount("c-1", "carol", "alice@example.com"))
	require.NoError(t, err)

	_, err = r.UpdateFields(ctx, "missing", models.AccountUpdate{Email: &email})
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestMemory_ReturnedRecordsAreCopies(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()

	_, err := r.Create(ctx, newAccount("a-1", "alice", "alice@example.com"))
	require.NoError(t, err)

	got, err := r.FindByID(ctx, "a-1")
	require.NoError(t, err)
	got.SessionSecret = "tampered"

	again, err := r.FindByID(ctx, "a-1")
	require.NoError(t, err)
	assert.Empty(t, again.SessionSecret)
}

func TestMemory_SwapSessionSecret(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()

	_, err := r.Create(ctx, newAccount("a-1", "alice", "alice@example.com"))
	require.NoError(t, err)

	assert.ErrorIs(t, r.SwapSessionSecret(ctx, "a-1", "", "s1"), common.ErrSessionMismatch)

	s1 := "s1"
	_, err = r.UpdateFields(ctx, "a-1", models.AccountUpdate{SessionSecret: &s1})
	require.NoError(t, err)

	require.NoError(t, r.SwapSessionSecret(ctx, "a-1", "s1", "s2"))
	assert.ErrorIs(t, r.SwapSessionSecret(ctx, "a-1", "s1", "s3"), common.ErrSessionMismatch)
	assert.ErrorIs(t, r.SwapSessionSecret(ctx, "missing", "s2", "s3"), common.ErrSessionMismatch)

	got, err := r.FindByID(ctx, "a-1")
	require.NoError(t, err)
	assert.Equal(t, "s2", got.SessionSecret)
}

func TestMemory_ConcurrentSwapOnlyOneWins(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()

	a := newAccount("a-1", "alice", "alice@example.com")
	a.SessionSecret = "s0"
	_, err := r.Create(ctx, a)
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if r.SwapSessionSecret(ctx, "a-1", "s0", fmt.Sprintf("n%d", i)) == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}

func TestMemory_Delete(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()

	_, err := r.Create(ctx, newAccount("a-1", "alice", "alice@example.com"))
	require.NoError(t, err)

	gone, err := r.Delete(ctx, "a-1")
	require.NoError(t, err)
	assert.Equal(t, "accounts/a-1/av.png", gone.Avatar.AssetID)

	_, err = r.Delete(ctx, "a-1")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	// username and email are released
	_, err = r.Create(ctx, newAccount("a-2", "alice", "alice@example.com"))
	assert.NoError(t, err)
}
