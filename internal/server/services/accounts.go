// Package services contains the account workflows: registration, login,
// token refresh and logout, password and profile changes, profile image
// replacement and account deletion.
//
// Every error returned to callers is a *common.Error carrying one of the
// kinds in package common; storage and upload causes stay wrapped inside
// for logging.
package services

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/dmitrijs2005/profilekeeper/internal/common"
	"github.com/dmitrijs2005/profilekeeper/internal/logging"
	"github.com/dmitrijs2005/profilekeeper/internal/server/auth"
	"github.com/dmitrijs2005/profilekeeper/internal/server/media"
	"github.com/dmitrijs2005/profilekeeper/internal/server/models"
	"github.com/dmitrijs2005/profilekeeper/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/profilekeeper/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// PasswordHasher is satisfied by *password.Pool.
type PasswordHasher interface {
	Hash(ctx context.Context, plain string) (string, error)
	Verify(ctx context.Context, plain, hash string) (bool, error)
}

// RegisterInput is what intake collects for a new account. Avatar is
// required; Cover may be nil.
type RegisterInput struct {
	Username string
	FullName string
	Email    string
	Password string
	Avatar   *media.StagedFile
	Cover    *media.StagedFile
}

// LoginInput identifies the account by username or email.
type LoginInput struct {
	Username string
	Email    string
	Password string
}

type ProfileUpdate struct {
	FullName string
	Email    string
}

// Options tune AccountService.
type Options struct {
	// NamespaceRoot prefixes every account's media keys.
	NamespaceRoot string
	// StoreTimeout bounds each account store call.
	StoreTimeout time.Duration
}

type AccountService struct {
	repomanager repomanager.RepositoryManager
	hasher      PasswordHasher
	issuer      *auth.Issuer
	media       *media.Coordinator
	logger      logging.Logger
	opts        Options

	// dummyHash is verified against when the login identifier is unknown so
	// both failure paths cost the same.
	dummyHash string
}

func NewAccountService(m repomanager.RepositoryManager, hasher PasswordHasher, issuer *auth.Issuer,
	coordinator *media.Coordinator, logger logging.Logger, opts Options) (*AccountService, error) {

	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 5 * time.Second
	}

	dummy, err := hasher.Hash(context.Background(), uuid.NewString())
	if err != nil {
		return nil, err
	}

	return &AccountService{
		repomanager: m,
		hasher:      hasher,
		issuer:      issuer,
		media:       coordinator,
		logger:      logger.With("module", "accounts"),
		opts:        opts,
		dummyHash:   dummy,
	}, nil
}

func (s *AccountService) repo() accounts.Repository {
	return s.repomanager.Accounts()
}

func (s *AccountService) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opts.StoreTimeout)
}

func (s *AccountService) namespace(accountID string) string {
	return path.Join(s.opts.NamespaceRoot, accountID)
}

func normalize(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

// storeError turns a repository error into a user-facing one.
func storeError(err error) error {
	switch {
	case errors.Is(err, common.ErrConflict):
		return common.WrapError(common.ErrConflict, "user with email or username already exists", err)
	case errors.Is(err, common.ErrorNotFound):
		return common.WrapError(common.ErrorNotFound, "user not found", err)
	default:
		return common.Internal("something went wrong", err)
	}
}

// rejected reports whether a store error certainly left the record
// untouched. Timeouts and driver errors may hide a committed write.
func rejected(err error) bool {
	for _, k := range []error{common.ErrConflict, common.ErrorNotFound, common.ErrValidation, common.ErrSessionMismatch} {
		if errors.Is(err, k) {
			return true
		}
	}
	return false
}

// recheck reads the account again after an ambiguous write, on its own
// deadline since the caller's may be what expired.
func (s *AccountService) recheck(ctx context.Context, accountID string) (*models.Account, error) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.StoreTimeout)
	defer cancel()
	return s.repo().FindByID(rctx, accountID)
}

func (s *AccountService) cleanup(ctx context.Context, files ...*media.StagedFile) {
	for _, f := range files {
		if err := s.media.CleanupStaged(f); err != nil {
			s.logger.Warn(ctx, "staged file cleanup failed", "path", f.Path, "error", err)
		}
	}
}

// Register creates an account. Staged files are removed on every path and
// uploads that end up unreferenced are discarded.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*models.AccountView, error) {
	defer s.cleanup(ctx, in.Avatar, in.Cover)

	username, email := normalize(in.Username), normalize(in.Email)
	fullName := strings.TrimSpace(in.FullName)

	if username == "" || email == "" || fullName == "" || strings.TrimSpace(in.Password) == "" {
		return nil, common.Validation("all fields are required")
	}

	sctx, cancel := s.storeCtx(ctx)
	_, err := s.repo().FindByEmailOrUsername(sctx, email, username)
	cancel()
	switch {
	case err == nil:
		return nil, common.Conflict("user with email or username already exists")
	case !errors.Is(err, common.ErrorNotFound):
		return nil, storeError(err)
	}

	if in.Avatar == nil {
		return nil, common.Validation("avatar file is required")
	}

	id := uuid.NewString()
	ns := s.namespace(id)

	avatar, err := s.media.Upload(ctx, in.Avatar, ns)
	if err != nil {
		return nil, err
	}
	uploaded := []models.MediaAssetRef{avatar}

	var cover *models.MediaAssetRef
	if in.Cover != nil {
		c, err := s.media.Upload(ctx, in.Cover, ns)
		if err != nil {
			s.media.Discard(ctx, uploaded...)
			return nil, err
		}
		cover = &c
		uploaded = append(uploaded, c)
	}

	hash, err := s.hasher.Hash(ctx, in.Password)
	if err != nil {
		s.media.Discard(ctx, uploaded...)
		return nil, common.Internal("failed to process password", err)
	}

	sctx, cancel = s.storeCtx(ctx)
	defer cancel()

	view, err := s.repo().Create(sctx, &models.Account{
		ID:           id,
		Username:     username,
		Email:        email,
		FullName:     fullName,
		PasswordHash: hash,
		Avatar:       avatar,
		Cover:        cover,
	})
	if err != nil {
		if !rejected(err) {
			stored, ferr := s.recheck(ctx, id)
			switch {
			case ferr == nil:
				s.logger.Warn(ctx, "account create reported an error but committed", "account_id", id, "error", err)
				return stored.View(), nil
			case !errors.Is(ferr, common.ErrorNotFound):
				s.logger.Error(ctx, "account create outcome unknown, keeping uploads", "account_id", id, "error", err)
				return nil, storeError(err)
			}
		}
		s.media.Discard(ctx, uploaded...)
		return nil, storeError(err)
	}

	s.logger.Info(ctx, "account registered", "account_id", view.ID)
	return view, nil
}

var errBadCredentials = common.Unauthorized("invalid user credentials")

// Login checks the password and starts a new session, replacing any
// previous one.
func (s *AccountService) Login(ctx context.Context, in LoginInput) (*models.AccountView, *models.TokenPair, error) {
	username, email := normalize(in.Username), normalize(in.Email)
	if username == "" && email == "" {
		return nil, nil, common.Validation("username or email is required")
	}
	if in.Password == "" {
		return nil, nil, common.Validation("password is required")
	}
	// one identifier may have been given in either field
	if username == "" {
		username = email
	}
	if email == "" {
		email = username
	}

	sctx, cancel := s.storeCtx(ctx)
	account, err := s.repo().FindByEmailOrUsername(sctx, email, username)
	cancel()
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		return nil, nil, storeError(err)
	}

	hash := s.dummyHash
	if account != nil {
		hash = account.PasswordHash
	}

	ok, verr := s.hasher.Verify(ctx, in.Password, hash)
	if verr != nil && account != nil {
		return nil, nil, common.Internal("failed to verify password", verr)
	}
	if account == nil || !ok {
		return nil, nil, errBadCredentials
	}

	pair, err := s.issuer.IssuePair(account)
	if err != nil {
		return nil, nil, common.Internal("failed to issue tokens", err)
	}

	digest := auth.Digest(pair.RefreshToken)
	sctx, cancel = s.storeCtx(ctx)
	defer cancel()

	view, err := s.repo().UpdateFields(sctx, account.ID, models.AccountUpdate{SessionSecret: &digest})
	if err != nil {
		return nil, nil, storeError(err)
	}

	s.logger.Info(ctx, "account logged in", "account_id", account.ID)
	return view, pair, nil
}

var errBadRefreshToken = common.Unauthorized("invalid refresh token")

// Refresh rotates the session: the presented token must be the one issued
// last, and stops working once the new pair is handed out.
func (s *AccountService) Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return nil, common.Validation("refresh token is required")
	}

	claims, err := s.issuer.ParseRefresh(refreshToken)
	if err != nil {
		if errors.Is(err, common.ErrTokenExpired) {
			return nil, common.WrapError(common.ErrorUnauthorized, "refresh token expired", err)
		}
		return nil, common.WrapError(common.ErrorUnauthorized, errBadRefreshToken.Message, err)
	}

	sctx, cancel := s.storeCtx(ctx)
	account, err := s.repo().FindByID(sctx, claims.ID)
	cancel()
	switch {
	case errors.Is(err, common.ErrorNotFound):
		return nil, errBadRefreshToken
	case err != nil:
		return nil, storeError(err)
	}

	pair, err := s.issuer.IssuePair(account)
	if err != nil {
		return nil, common.Internal("failed to issue tokens", err)
	}

	sctx, cancel = s.storeCtx(ctx)
	defer cancel()

	err = s.repo().SwapSessionSecret(sctx, account.ID, auth.Digest(refreshToken), auth.Digest(pair.RefreshToken))
	switch {
	case errors.Is(err, common.ErrSessionMismatch):
		s.logger.Warn(ctx, "stale refresh token presented", "account_id", account.ID)
		return nil, common.WrapError(common.ErrorUnauthorized, "refresh token is expired or used", err)
	case err != nil:
		return nil, storeError(err)
	}

	return pair, nil
}

// Logout ends the account's session.
func (s *AccountService) Logout(ctx context.Context, accountID string) error {
	empty := ""

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	if _, err := s.repo().UpdateFields(sctx, accountID, models.AccountUpdate{SessionSecret: &empty}); err != nil {
		return storeError(err)
	}
	return nil
}

// ChangePassword replaces the password and ends the current session.
func (s *AccountService) ChangePassword(ctx context.Context, accountID, oldPassword, newPassword string) error {
	if oldPassword == "" || newPassword == "" {
		return common.Validation("old and new password are required")
	}

	sctx, cancel := s.storeCtx(ctx)
	account, err := s.repo().FindByID(sctx, accountID)
	cancel()
	if err != nil {
		return storeError(err)
	}

	ok, err := s.hasher.Verify(ctx, oldPassword, account.PasswordHash)
	if err != nil {
		return common.Internal("failed to verify password", err)
	}
	if !ok {
		return common.Unauthorized("invalid old password")
	}

	hash, err := s.hasher.Hash(ctx, newPassword)
	if err != nil {
		return common.Internal("failed to process password", err)
	}

	empty := ""
	sctx, cancel = s.storeCtx(ctx)
	defer cancel()

	if _, err := s.repo().UpdateFields(sctx, accountID, models.AccountUpdate{PasswordHash: &hash, SessionSecret: &empty}); err != nil {
		return storeError(err)
	}

	s.logger.Info(ctx, "password changed", "account_id", accountID)
	return nil
}

func (s *AccountService) GetCurrentAccount(ctx context.Context, accountID string) (*models.AccountView, error) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	account, err := s.repo().FindByID(sctx, accountID)
	if err != nil {
		return nil, storeError(err)
	}
	return account.View(), nil
}

// UpdateProfile changes the full name and/or email. Blank fields are left
// alone; at least one must be set.
func (s *AccountService) UpdateProfile(ctx context.Context, accountID string, in ProfileUpdate) (*models.AccountView, error) {
	fullName := strings.TrimSpace(in.FullName)
	email := normalize(in.Email)

	if fullName == "" && email == "" {
		return nil, common.Validation("full name or email is required")
	}

	var update models.AccountUpdate
	if fullName != "" {
		update.FullName = &fullName
	}
	if email != "" {
		update.Email = &email
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	view, err := s.repo().UpdateFields(sctx, accountID, update)
	if err != nil {
		return nil, storeError(err)
	}
	return view, nil
}

// ReplaceAvatar swaps the avatar for staged. The old image is deleted after
// the account points at the new one; if that delete fails it is retried in
// the background and the call still succeeds.
func (s *AccountService) ReplaceAvatar(ctx context.Context, accountID string, staged *media.StagedFile) (*models.AccountView, error) {
	return s.replaceImage(ctx, accountID, staged, "avatar file is missing",
		func(a *models.Account) *models.MediaAssetRef { return &a.Avatar },
		func(ref models.MediaAssetRef) models.AccountUpdate { return models.AccountUpdate{Avatar: &ref} },
	)
}

// ReplaceCover is ReplaceAvatar for the cover image, which may not exist yet.
func (s *AccountService) ReplaceCover(ctx context.Context, accountID string, staged *media.StagedFile) (*models.AccountView, error) {
	return s.replaceImage(ctx, accountID, staged, "cover image file is missing",
		func(a *models.Account) *models.MediaAssetRef { return a.Cover },
		func(ref models.MediaAssetRef) models.AccountUpdate { return models.AccountUpdate{Cover: &ref} },
	)
}

func (s *AccountService) replaceImage(ctx context.Context, accountID string, staged *media.StagedFile, missing string,
	current func(*models.Account) *models.MediaAssetRef, change func(models.MediaAssetRef) models.AccountUpdate) (*models.AccountView, error) {

	defer s.cleanup(ctx, staged)

	if staged == nil {
		return nil, common.Validation(missing)
	}

	sctx, cancel := s.storeCtx(ctx)
	account, err := s.repo().FindByID(sctx, accountID)
	cancel()
	if err != nil {
		return nil, storeError(err)
	}

	var view *models.AccountView
	_, err = s.media.Replace(ctx, staged, s.namespace(account.ID), current(account),
		func(ctx context.Context, ref models.MediaAssetRef) error {
			sctx, cancel := s.storeCtx(ctx)
			defer cancel()

			v, err := s.repo().UpdateFields(sctx, account.ID, change(ref))
			if err == nil {
				view = v
				return nil
			}
			if rejected(err) {
				return storeError(err)
			}

			stored, ferr := s.recheck(ctx, account.ID)
			switch {
			case ferr == nil:
				if cur := current(stored); cur != nil && *cur == ref {
					view = stored.View()
					return nil
				}
				return storeError(err)
			case errors.Is(ferr, common.ErrorNotFound):
				return storeError(ferr)
			default:
				return common.Internal("something went wrong", fmt.Errorf("%w: %w", media.ErrAttachUncertain, err))
			}
		})
	if err != nil {
		return nil, err
	}

	return view, nil
}

// DeleteAccount removes the record and then its images.
func (s *AccountService) DeleteAccount(ctx context.Context, accountID string) error {
	sctx, cancel := s.storeCtx(ctx)
	account, err := s.repo().Delete(sctx, accountID)
	cancel()
	if err != nil {
		return storeError(err)
	}

	refs := []models.MediaAssetRef{account.Avatar}
	if account.Cover != nil {
		refs = append(refs, *account.Cover)
	}
	s.media.Discard(ctx, refs...)

	s.logger.Info(ctx, "account deleted", "account_id", accountID)
	return nil
}

// Authenticate resolves an access token to its claims.
func (s *AccountService) Authenticate(_ context.Context, accessToken string) (*auth.AccessClaims, error) {
	if accessToken == "" {
		return nil, common.Unauthorized("unauthorized request")
	}
	claims, err := s.issuer.ParseAccess(accessToken)
	if err != nil {
		return nil, common.WrapError(common.ErrorUnauthorized, "invalid access token", err)
	}
	return claims, nil
}
