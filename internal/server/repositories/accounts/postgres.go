package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/profilekeeper/internal/common"
	"github.com/dmitrijs2005/profilekeeper/internal/dbx"
	"github.com/dmitrijs2005/profilekeeper/internal/server/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

const pgUniqueViolation = "23505"

const accountColumns = `id, username, email, full_name, password_hash, avatar_url, avatar_asset_id,
		cover_url, cover_asset_id, session_secret, created_at, updated_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	a := &models.Account{}
	var coverURL, coverID sql.NullString

	err := row.Scan(&a.ID, &a.Username, &a.Email, &a.FullName, &a.PasswordHash,
		&a.Avatar.URL, &a.Avatar.AssetID, &coverURL, &coverID,
		&a.SessionSecret, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if coverID.Valid && coverID.String != "" {
		a.Cover = &models.MediaAssetRef{URL: coverURL.String, AssetID: coverID.String}
	}
	return a, nil
}

// mapError translates driver errors into the repository's error set.
func mapError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return common.ErrorNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		switch {
		case strings.Contains(pgErr.ConstraintName, "email"):
			return conflict("email")
		case strings.Contains(pgErr.ConstraintName, "username"):
			return conflict("username")
		default:
			return conflict(pgErr.ConstraintName)
		}
	}

	return fmt.Errorf("db error: %w", err)
}

func nullable(r *models.MediaAssetRef) (sql.NullString, sql.NullString) {
	if r == nil {
		return sql.NullString{}, sql.NullString{}
	}
	return sql.NullString{String: r.URL, Valid: true}, sql.NullString{String: r.AssetID, Valid: true}
}

func (r *PostgresRepository) FindByEmailOrUsername(ctx context.Context, email, username string) (*models.Account, error) {
	query :=
		`SELECT ` + accountColumns + ` FROM accounts
		 WHERE email = $1 OR username = $2
		 LIMIT 1
		 `

	a, err := scanAccount(r.db.QueryRowContext(ctx, query, email, username))
	if err != nil {
		return nil, mapError(err)
	}

	return a, nil
}

func (r *PostgresRepository) Create(ctx context.Context, account *models.Account) (*models.AccountView, error) {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}

	query :=
		`INSERT INTO accounts (id, username, email, full_name, password_hash,
		 avatar_url, avatar_asset_id, cover_url, cover_asset_id, session_secret)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING created_at, updated_at
		 `

	coverURL, coverID := nullable(account.Cover)

	err := r.db.QueryRowContext(ctx, query,
		account.ID, account.Username, account.Email, account.FullName, account.PasswordHash,
		account.Avatar.URL, account.Avatar.AssetID, coverURL, coverID, account.SessionSecret,
	).Scan(&account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}

	return account.View(), nil
}

func (r *PostgresRepository) FindByID(ctx context.Context, id string) (*models.Account, error) {
	query :=
		`SELECT ` + accountColumns + ` FROM accounts
		 WHERE id = $1
		 `

	a, err := scanAccount(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, mapError(err)
	}

	return a, nil
}

// UpdateFields writes all requested changes in one UPDATE and returns the
// row as it is afterwards.
func (r *PostgresRepository) UpdateFields(ctx context.Context, id string, update models.AccountUpdate) (*models.AccountView, error) {
	if update.IsEmpty() {
		a, err := r.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return a.View(), nil
	}

	var (
		sets []string
		args []any
	)
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if update.FullName != nil {
		set("full_name", *update.FullName)
	}
	if update.Email != nil {
		set("email", *update.Email)
	}
	if update.PasswordHash != nil {
		set("password_hash", *update.PasswordHash)
	}
	if update.Avatar != nil {
		set("avatar_url", update.Avatar.URL)
		set("avatar_asset_id", update.Avatar.AssetID)
	}
	switch {
	case update.ClearCover:
		set("cover_url", sql.NullString{})
		set("cover_asset_id", sql.NullString{})
	case update.Cover != nil:
		set("cover_url", update.Cover.URL)
		set("cover_asset_id", update.Cover.AssetID)
	}
	if update.SessionSecret != nil {
		set("session_secret", *update.SessionSecret)
	}

	args = append(args, id)
	query := fmt.Sprintf(
		`UPDATE accounts SET %s, updated_at = now()
		 WHERE id = $%d
		 RETURNING %s
		 `, strings.Join(sets, ", "), len(args), accountColumns)

	a, err := scanAccount(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, mapError(err)
	}

	return a.View(), nil
}

// SwapSessionSecret replaces the stored secret only if it still equals
// expected. An empty expected never matches.
func (r *PostgresRepository) SwapSessionSecret(ctx context.Context, id, expected, next string) error {
	if expected == "" {
		return common.ErrSessionMismatch
	}

	query :=
		`UPDATE accounts SET session_secret = $1, updated_at = now()
		 WHERE id = $2 AND session_secret = $3 AND session_secret <> ''
		 `

	res, err := r.db.ExecContext(ctx, query, next, id, expected)
	if err != nil {
		return mapError(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrSessionMismatch
	}

	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) (*models.Account, error) {
	query :=
		`DELETE FROM accounts
		 WHERE id = $1
		 RETURNING ` + accountColumns

	a, err := scanAccount(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, mapError(err)
	}

	return a, nil
}
