// Package http exposes the account workflows over a JSON/multipart API
// built on gin. Every response uses the same envelope; session tokens travel
// in cookies and, for API clients, in the response body.
package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/profilekeeper/internal/logging"
	"github.com/dmitrijs2005/profilekeeper/internal/server/auth"
	"github.com/dmitrijs2005/profilekeeper/internal/server/media"
	"github.com/dmitrijs2005/profilekeeper/internal/server/models"
	"github.com/dmitrijs2005/profilekeeper/internal/server/services"
	"github.com/gin-gonic/gin"
)

// AccountService is the workflow surface the handlers call. It is satisfied
// by *services.AccountService.
type AccountService interface {
	Register(ctx context.Context, in services.RegisterInput) (*models.AccountView, error)
	Login(ctx context.Context, in services.LoginInput) (*models.AccountView, *models.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error)
	Logout(ctx context.Context, accountID string) error
	ChangePassword(ctx context.Context, accountID, oldPassword, newPassword string) error
	GetCurrentAccount(ctx context.Context, accountID string) (*models.AccountView, error)
	UpdateProfile(ctx context.Context, accountID string, in services.ProfileUpdate) (*models.AccountView, error)
	ReplaceAvatar(ctx context.Context, accountID string, staged *media.StagedFile) (*models.AccountView, error)
	ReplaceCover(ctx context.Context, accountID string, staged *media.StagedFile) (*models.AccountView, error)
	DeleteAccount(ctx context.Context, accountID string) error
	Authenticate(ctx context.Context, accessToken string) (*auth.AccessClaims, error)
}

// Options configure the HTTP binding.
type Options struct {
	// StagingDir receives uploaded files until a workflow is done with them.
	StagingDir string
	// MaxUploadSize caps a single uploaded file in bytes.
	MaxUploadSize int64
	// CookieSecure marks session cookies Secure.
	CookieSecure bool
	// AccessTokenTTL and RefreshTokenTTL set the cookie lifetimes.
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

type HTTPServer struct {
	address  string
	accounts AccountService
	logger   logging.Logger
	opts     Options
}

func NewHTTPServer(address string, l logging.Logger, accounts AccountService, opts Options) *HTTPServer {
	if opts.MaxUploadSize <= 0 {
		opts.MaxUploadSize = 10 << 20
	}
	return &HTTPServer{
		address:  address,
		accounts: accounts,
		logger:   l.With("module", "http_server"),
		opts:     opts,
	}
}

// Router builds the gin engine with every route registered.
func (s *HTTPServer) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())
	r.MaxMultipartMemory = 8 << 20

	r.NoRoute(func(c *gin.Context) {
		s.fail(c, errRouteNotFound)
	})

	users := r.Group("/api/v1/users")
	{
		users.POST("/register", s.limitBody(2), s.register)
		users.POST("/login", s.login)
		users.POST("/refresh-token", s.refresh)
	}

	secured := users.Group("", s.requireAuth())
	{
		secured.POST("/logout", s.logout)
		secured.POST("/change-password", s.changePassword)
		secured.GET("/current-user", s.currentUser)
		secured.PATCH("/update-account", s.updateAccount)
		secured.PATCH("/avatar", s.limitBody(1), s.replaceAvatar)
		secured.PATCH("/cover-image", s.limitBody(1), s.replaceCover)
		secured.DELETE("/delete-account", s.deleteAccount)
	}

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *HTTPServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "HTTP server shutdown failed", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info(c.Request.Context(), "request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start).String(),
		)
	}
}
