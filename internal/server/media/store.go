package media

import (
	"context"

	"github.com/dmitrijs2005/profilekeeper/internal/server/models"
)

// ObjectStore is where media bytes live. Delete of a missing key must
// succeed so retries are safe.
type ObjectStore interface {
	Put(ctx context.Context, key, path, contentType string) (models.MediaAssetRef, error)
	Delete(ctx context.Context, key string) error
}
