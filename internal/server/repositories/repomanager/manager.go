// Package repomanager opens the configured account store, prepares its
// schema and hands out repositories bound to it.
package repomanager

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/profilekeeper/internal/server/repositories/accounts"
)

// RepositoryManager owns a storage connection.
type RepositoryManager interface {
	// RunMigrations brings the schema (or indexes) up to date.
	RunMigrations(ctx context.Context) error
	Accounts() accounts.Repository
	Close(ctx context.Context) error
}

// Drivers accepted by New. They match the config.Driver* constants.
const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

// New connects to the store named by driver. dbName is only used by mongo.
func New(ctx context.Context, driver, dsn, dbName string) (RepositoryManager, error) {
	switch driver {
	case DriverPostgres, "":
		return NewPostgresRepositoryManager(dsn)
	case DriverMongo:
		return NewMongoRepositoryManager(ctx, dsn, dbName)
	case DriverMemory:
		return NewMemoryRepositoryManager(), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", driver)
	}
}
