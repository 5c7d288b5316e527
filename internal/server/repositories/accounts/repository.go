// Package accounts persists account records. Uniqueness of username and
// email is enforced by the storage backend itself, never by a read
// before the write.
package accounts

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/profilekeeper/internal/common"
	"github.com/dmitrijs2005/profilekeeper/internal/server/models"
)

// Repository is implemented by every account backend.
//
// Lookups return common.ErrorNotFound when no record matches. Create and
// UpdateFields return an error matching common.ErrConflict when a unique
// username or email would be duplicated. SwapSessionSecret returns
// common.ErrSessionMismatch when the stored secret is not expected.
type Repository interface {
	FindByEmailOrUsername(ctx context.Context, email, username string) (*models.Account, error)
	Create(ctx context.Context, account *models.Account) (*models.AccountView, error)
	FindByID(ctx context.Context, id string) (*models.Account, error)
	UpdateFields(ctx context.Context, id string, update models.AccountUpdate) (*models.AccountView, error)
	SwapSessionSecret(ctx context.Context, id, expected, next string) error
	Delete(ctx context.Context, id string) (*models.Account, error)
}

func conflict(field string) error {
	return fmt.Errorf("%w: %s", common.ErrConflict, field)
}
