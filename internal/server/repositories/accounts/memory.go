package accounts

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/profilekeeper/internal/common"
	"github.com/dmitrijs2005/profilekeeper/internal/server/models"
	"github.com/google/uuid"
)

// MemoryRepository keeps accounts in process memory. The unique indexes
// are checked and written under the same lock as the record.
type MemoryRepository struct {
	mu         sync.RWMutex
	byID       map[string]*models.Account
	byUsername map[string]string
	byEmail    map[string]string
	now        func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:       make(map[string]*models.Account),
		byUsername: make(map[string]string),
		byEmail:    make(map[string]string),
		now:        time.Now,
	}
}

func clone(a *models.Account) *models.Account {
	c := *a
	if a.Cover != nil {
		cover := *a.Cover
		c.Cover = &cover
	}
	return &c
}

func (r *MemoryRepository) FindByEmailOrUsername(_ context.Context, email, username string) (*models.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if id, ok := r.byEmail[email]; ok {
		return clone(r.byID[id]), nil
	}
	if id, ok := r.byUsername[username]; ok {
		return clone(r.byID[id]), nil
	}
	return nil, common.ErrorNotFound
}

func (r *MemoryRepository) Create(_ context.Context, account *models.Account) (*models.AccountView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byUsername[account.Username]; ok {
		return nil, conflict("username")
	}
	if _, ok := r.byEmail[account.Email]; ok {
		return nil, conflict("email")
	}

	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	if _, ok := r.byID[account.ID]; ok {
		return nil, conflict("id")
	}

	now := r.now().UTC()
	account.CreatedAt, account.UpdatedAt = now, now

	stored := clone(account)
	r.byID[stored.ID] = stored
	r.byUsername[stored.Username] = stored.ID
	r.byEmail[stored.Email] = stored.ID

	return stored.View(), nil
}

func (r *MemoryRepository) FindByID(_ context.Context, id string) (*models.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return clone(a), nil
}

func (r *MemoryRepository) UpdateFields(_ context.Context, id string, update models.AccountUpdate) (*models.AccountView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}

	if update.IsEmpty() {
		return a.View(), nil
	}

	oldEmail := a.Email
	if update.Email != nil && *update.Email != oldEmail {
		if _, taken := r.byEmail[*update.Email]; taken {
			return nil, conflict("email")
		}
	}

	update.Apply(a)
	a.UpdatedAt = r.now().UTC()

	if a.Email != oldEmail {
		delete(r.byEmail, oldEmail)
		r.byEmail[a.Email] = a.ID
	}

	return a.View(), nil
}

func (r *MemoryRepository) SwapSessionSecret(_ context.Context, id, expected, next string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.byID[id]
	if !ok || expected == "" || a.SessionSecret != expected {
		return common.ErrSessionMismatch
	}

	a.SessionSecret = next
	a.UpdatedAt = r.now().UTC()
	return nil
}

func (r *MemoryRepository) Delete(_ context.Context, id string) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}

	delete(r.byID, id)
	delete(r.byUsername, a.Username)
	delete(r.byEmail, a.Email)

	return a, nil
}
