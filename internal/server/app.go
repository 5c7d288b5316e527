// Package server wires the account service together and runs it: the account
// store, object storage, the pending deletion queue, the password hasher,
// the token issuer and the HTTP API. Run blocks until a termination signal,
// then shuts everything down in order.
package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/profilekeeper/internal/filex"
	"github.com/dmitrijs2005/profilekeeper/internal/logging"
	"github.com/dmitrijs2005/profilekeeper/internal/server/auth"
	"github.com/dmitrijs2005/profilekeeper/internal/server/config"
	"github.com/dmitrijs2005/profilekeeper/internal/server/media"
	"github.com/dmitrijs2005/profilekeeper/internal/server/password"
	"github.com/dmitrijs2005/profilekeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/profilekeeper/internal/server/services"
	"github.com/redis/go-redis/v9"

	hs "github.com/dmitrijs2005/profilekeeper/internal/server/http"
)

type App struct {
	config      *config.Config
	logger      logging.Logger
	repomanager repomanager.RepositoryManager
	redis       *redis.Client
	queue       media.DeletionQueue
	coordinator *media.Coordinator
	accounts    *services.AccountService
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)

	staging, err := filex.EnsureDir(c.StagingDir)
	if err != nil {
		return nil, fmt.Errorf("staging dir init error: %w", err)
	}
	c.StagingDir = staging

	rm, err := repomanager.New(ctx, c.DatabaseDriver, c.DatabaseDSN, c.DatabaseName)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	app := &App{config: c, logger: logger, repomanager: rm}

	if err := rm.RunMigrations(ctx); err != nil {
		app.close(ctx)
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	store, err := app.objectStore(ctx)
	if err != nil {
		app.close(ctx)
		return nil, fmt.Errorf("object store init error: %w", err)
	}

	if c.RedisAddr != "" {
		app.redis = redis.NewClient(&redis.Options{Addr: c.RedisAddr})
		if err := app.redis.Ping(ctx).Err(); err != nil {
			app.close(ctx)
			return nil, fmt.Errorf("redis init error: %w", err)
		}
		app.queue = media.NewRedisQueue(app.redis, media.DefaultQueueKey)
	} else {
		app.queue = media.NewMemoryQueue()
	}

	app.coordinator = media.NewCoordinator(store, app.queue, logger, media.Options{
		AttemptTimeout: c.UploadTimeout,
		Retries:        c.MediaRetryAttempts,
	})

	hasher, err := password.New(c.PasswordHashAlgorithm, c.PasswordHashCost)
	if err != nil {
		app.close(ctx)
		return nil, fmt.Errorf("password hasher init error: %w", err)
	}

	issuer := auth.NewIssuer(c.AccessTokenSecret, c.RefreshTokenSecret,
		c.AccessTokenValidityDuration, c.RefreshTokenValidityDuration)

	app.accounts, err = services.NewAccountService(rm, password.NewPool(hasher, c.HashWorkers), issuer,
		app.coordinator, logger, services.Options{
			NamespaceRoot: c.MediaNamespaceRoot,
			StoreTimeout:  c.StoreTimeout,
		})
	if err != nil {
		app.close(ctx)
		return nil, fmt.Errorf("account service init error: %w", err)
	}

	return app, nil
}

// objectStore picks S3 unless the whole process runs in memory.
func (app *App) objectStore(ctx context.Context) (media.ObjectStore, error) {
	c := app.config
	if c.DatabaseDriver == config.DriverMemory {
		app.logger.Warn(ctx, "memory driver selected, media kept in process memory")
		return media.NewMemoryStore(c.S3PublicBaseURL), nil
	}

	return media.NewS3Store(ctx, media.S3Config{
		Region:        c.S3Region,
		AccessKey:     c.S3RootUser,
		SecretKey:     c.S3RootPassword,
		Bucket:        c.S3Bucket,
		BaseEndpoint:  c.S3BaseEndpoint,
		PublicBaseURL: c.S3PublicBaseURL,
	})
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := hs.NewHTTPServer(app.config.EndpointAddrHTTP, app.logger, app.accounts, hs.Options{
		StagingDir:      app.config.StagingDir,
		MaxUploadSize:   app.config.MaxUploadSize,
		CookieSecure:    app.config.CookieSecure,
		AccessTokenTTL:  app.config.AccessTokenValidityDuration,
		RefreshTokenTTL: app.config.RefreshTokenValidityDuration,
	})

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		media.NewJanitor(app.coordinator, app.queue, app.logger, app.config.JanitorInterval).Run(ctx)
	}()

	wg.Wait()

	app.close(context.Background())
	app.logger.Info(ctx, "App stopped")
}

func (app *App) close(ctx context.Context) {
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error(ctx, "redis close error", "error", err)
		}
	}
	if err := app.repomanager.Close(ctx); err != nil {
		app.logger.Error(ctx, "db close error", "error", err)
	}
}
