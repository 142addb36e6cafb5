package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"HoneyHubUsers/internal/domain"
	"HoneyHubUsers/internal/store"
)

type UsersStore struct {
	pool *pgxpool.Pool
}

func NewUsersStore(pool *pgxpool.Pool) *UsersStore {
	return &UsersStore{pool: pool}
}

// WithinTx runs fn in one transaction. Commit and rollback are detached from
// ctx cancellation so an in-flight commit is never abandoned half way.
func (s *UsersStore) WithinTx(ctx context.Context, fn store.TxFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *UsersStore) UsernameExists(ctx context.Context, normalized string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM users WHERE normalized_user_name = $1)`
	var exists bool
	if err := s.pool.QueryRow(ctx, q, normalized).Scan(&exists); err != nil {
		return false, fmt.Errorf("username exists: %w", err)
	}
	return exists, nil
}

func (s *UsersStore) EmailExists(ctx context.Context, normalized string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM users WHERE normalized_email = $1)`
	var exists bool
	if err := s.pool.QueryRow(ctx, q, normalized).Scan(&exists); err != nil {
		return false, fmt.Errorf("email exists: %w", err)
	}
	return exists, nil
}

func (s *UsersStore) ExternalLoginExists(ctx context.Context, provider, providerKey string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM user_logins WHERE login_provider = $1 AND provider_key = $2)`
	var exists bool
	if err := s.pool.QueryRow(ctx, q, provider, providerKey).Scan(&exists); err != nil {
		return false, fmt.Errorf("external login exists: %w", err)
	}
	return exists, nil
}

const userColumns = `
	u.id, u.public_id, u.user_name, u.normalized_user_name, u.email, u.normalized_email,
	u.email_confirmed, u.password_hash, u.security_stamp, u.concurrency_stamp,
	u.phone_number, u.phone_number_confirmed, u.two_factor_enabled, u.lockout_enabled,
	u.access_failed_count, u.is_active, u.is_deleted, u.subscription_plan_id, u.last_login_at,
	u.created_by, u.created_at, u.updated_by, u.updated_at,
	l.login_provider, l.provider_key, l.provider_display_name
`

func (s *UsersStore) GetUserByPublicID(ctx context.Context, publicID uuid.UUID) (domain.User, error) {
	q := `
		SELECT ` + userColumns + `
		FROM users u
		LEFT JOIN user_logins l ON l.user_id = u.id
		WHERE u.public_id = $1
		ORDER BY l.created_at
		LIMIT 1
	`
	u, err := scanUser(s.pool.QueryRow(ctx, q, publicID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, fmt.Errorf("get user by public id: %w", err)
	}
	return u, nil
}

// GetUserByLogin matches a normalized username or email, preferring the username.
func (s *UsersStore) GetUserByLogin(ctx context.Context, normalizedLogin string) (domain.User, error) {
	q := `
		SELECT ` + userColumns + `
		FROM users u
		LEFT JOIN user_logins l ON l.user_id = u.id
		WHERE u.normalized_user_name = $1 OR u.normalized_email = $1
		ORDER BY (u.normalized_user_name = $1) DESC, l.created_at
		LIMIT 1
	`
	u, err := scanUser(s.pool.QueryRow(ctx, q, normalizedLogin))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, fmt.Errorf("get user by login: %w", err)
	}
	return u, nil
}

func scanUser(row pgx.Row) (domain.User, error) {
	var (
		u               domain.User
		publicID        pgtype.UUID
		passwordHash    pgtype.Text
		phone           pgtype.Text
		lastLoginTS     pgtype.Timestamptz
		loginProvider   pgtype.Text
		providerKey     pgtype.Text
		providerDisplay pgtype.Text
	)
	err := row.Scan(
		&u.ID,
		&publicID,
		&u.UserName,
		&u.NormalizedUserName,
		&u.Email,
		&u.NormalizedEmail,
		&u.EmailConfirmed,
		&passwordHash,
		&u.SecurityStamp,
		&u.ConcurrencyStamp,
		&phone,
		&u.PhoneNumberConfirmed,
		&u.TwoFactorEnabled,
		&u.LockoutEnabled,
		&u.AccessFailedCount,
		&u.IsActive,
		&u.IsDeleted,
		&u.SubscriptionPlanID,
		&lastLoginTS,
		&u.CreatedBy,
		&u.CreatedAt,
		&u.UpdatedBy,
		&u.UpdatedAt,
		&loginProvider,
		&providerKey,
		&providerDisplay,
	)
	if err != nil {
		return domain.User{}, err
	}

	u.PublicID = uuidOrNil(publicID)
	u.PhoneNumber = textOrEmpty(phone)
	u.LastLoginAt = timestamptzPtr(lastLoginTS)
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	switch {
	case passwordHash.Valid && passwordHash.String != "":
		u.Auth = domain.PasswordAuth{Hash: passwordHash.String}
	case loginProvider.Valid:
		u.Auth = domain.ExternalAuth{
			Provider:    loginProvider.String,
			ProviderKey: textOrEmpty(providerKey),
			DisplayName: textOrEmpty(providerDisplay),
		}
	default:
		u.Auth = domain.NoAuth{}
	}
	return u, nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) InsertUser(ctx context.Context, u *domain.User) error {
	const q = `
		INSERT INTO users (
			public_id, user_name, normalized_user_name, email, normalized_email,
			email_confirmed, password_hash, security_stamp, concurrency_stamp,
			phone_number, phone_number_confirmed, two_factor_enabled, lockout_enabled,
			access_failed_count, is_active, is_deleted, subscription_plan_id,
			created_by, created_at, updated_by, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		RETURNING id
	`

	passwordHash, _ := u.PasswordHash()
	err := t.tx.QueryRow(ctx, q,
		u.PublicID,
		u.UserName,
		u.NormalizedUserName,
		u.Email,
		u.NormalizedEmail,
		u.EmailConfirmed,
		nullIfEmpty(passwordHash),
		u.SecurityStamp,
		u.ConcurrencyStamp,
		nullIfEmpty(u.PhoneNumber),
		u.PhoneNumberConfirmed,
		u.TwoFactorEnabled,
		u.LockoutEnabled,
		u.AccessFailedCount,
		u.IsActive,
		u.IsDeleted,
		u.SubscriptionPlanID,
		u.CreatedBy,
		u.CreatedAt,
		u.UpdatedBy,
		u.UpdatedAt,
	).Scan(&u.ID)
	if err != nil {
		return mapUserWriteError(err)
	}

	login, ok := u.ExternalLogin()
	if !ok {
		return nil
	}

	const loginQ = `
		INSERT INTO user_logins (login_provider, provider_key, provider_display_name, user_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err = t.tx.Exec(ctx, loginQ, login.Provider, login.ProviderKey, nullIfEmpty(login.DisplayName), login.UserID, u.CreatedAt)
	if err != nil {
		return mapUserWriteError(err)
	}
	return nil
}

func mapUserWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		switch pgErr.ConstraintName {
		case "users_normalized_user_name_uq":
			return domain.ErrUsernameTaken
		case "users_normalized_email_uq":
			return domain.ErrEmailTaken
		case "user_logins_pkey":
			return domain.ErrExternalLoginTaken
		}
	}
	return fmt.Errorf("write user: %w", err)
}
