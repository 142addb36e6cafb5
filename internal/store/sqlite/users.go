package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"HoneyHubUsers/internal/domain"
)

func (s *Store) UsernameExists(ctx context.Context, normalized string) (bool, error) {
	return s.exists(ctx, "username exists", `SELECT COUNT(1) FROM users WHERE normalized_user_name = ?`, normalized)
}

func (s *Store) EmailExists(ctx context.Context, normalized string) (bool, error) {
	return s.exists(ctx, "email exists", `SELECT COUNT(1) FROM users WHERE normalized_email = ?`, normalized)
}

func (s *Store) ExternalLoginExists(ctx context.Context, provider, providerKey string) (bool, error) {
	return s.exists(ctx, "external login exists", `SELECT COUNT(1) FROM user_logins WHERE login_provider = ? AND provider_key = ?`, provider, providerKey)
}

func (s *Store) exists(ctx context.Context, op, q string, args ...any) (bool, error) {
	var n int
	if err := s.sqlDB.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return n > 0, nil
}

const userColumns = `
	u.id, u.public_id, u.user_name, u.normalized_user_name, u.email, u.normalized_email,
	u.email_confirmed, u.password_hash, u.security_stamp, u.concurrency_stamp,
	u.phone_number, u.phone_number_confirmed, u.two_factor_enabled, u.lockout_enabled,
	u.access_failed_count, u.is_active, u.is_deleted, u.subscription_plan_id, u.last_login_at,
	u.created_by, u.created_at, u.updated_by, u.updated_at,
	l.login_provider, l.provider_key, l.provider_display_name
`

func (s *Store) GetUserByPublicID(ctx context.Context, publicID uuid.UUID) (domain.User, error) {
	q := `
		SELECT ` + userColumns + `
		FROM users u
		LEFT JOIN user_logins l ON l.user_id = u.id
		WHERE u.public_id = ?
		ORDER BY l.created_at
		LIMIT 1
	`
	u, err := scanUser(s.sqlDB.QueryRowContext(ctx, q, publicID.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, fmt.Errorf("get user by public id: %w", err)
	}
	return u, nil
}

// GetUserByLogin matches a normalized username or email, preferring the username.
func (s *Store) GetUserByLogin(ctx context.Context, normalizedLogin string) (domain.User, error) {
	q := `
		SELECT ` + userColumns + `
		FROM users u
		LEFT JOIN user_logins l ON l.user_id = u.id
		WHERE u.normalized_user_name = ?1 OR u.normalized_email = ?1
		ORDER BY (u.normalized_user_name = ?1) DESC, l.created_at
		LIMIT 1
	`
	u, err := scanUser(s.sqlDB.QueryRowContext(ctx, q, normalizedLogin))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, fmt.Errorf("get user by login: %w", err)
	}
	return u, nil
}

func scanUser(row *sql.Row) (domain.User, error) {
	var (
		u               domain.User
		publicID        string
		passwordHash    sql.NullString
		phone           sql.NullString
		lastLogin       sql.NullInt64
		createdAt       int64
		updatedAt       int64
		loginProvider   sql.NullString
		providerKey     sql.NullString
		providerDisplay sql.NullString
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
		&lastLogin,
		&u.CreatedBy,
		&createdAt,
		&u.UpdatedBy,
		&updatedAt,
		&loginProvider,
		&providerKey,
		&providerDisplay,
	)
	if err != nil {
		return domain.User{}, err
	}

	if u.PublicID, err = uuid.Parse(publicID); err != nil {
		return domain.User{}, fmt.Errorf("parse public id: %w", err)
	}
	u.PhoneNumber = phone.String
	u.CreatedAt = fromMillis(createdAt)
	u.UpdatedAt = fromMillis(updatedAt)
	if lastLogin.Valid {
		t := fromMillis(lastLogin.Int64)
		u.LastLoginAt = &t
	}
	switch {
	case passwordHash.Valid && passwordHash.String != "":
		u.Auth = domain.PasswordAuth{Hash: passwordHash.String}
	case loginProvider.Valid:
		u.Auth = domain.ExternalAuth{
			Provider:    loginProvider.String,
			ProviderKey: providerKey.String,
			DisplayName: providerDisplay.String,
		}
	default:
		u.Auth = domain.NoAuth{}
	}
	return u, nil
}

func (t *sqliteTx) InsertUser(ctx context.Context, u *domain.User) error {
	const q = `
		INSERT INTO users (
			public_id, user_name, normalized_user_name, email, normalized_email,
			email_confirmed, password_hash, security_stamp, concurrency_stamp,
			phone_number, phone_number_confirmed, two_factor_enabled, lockout_enabled,
			access_failed_count, is_active, is_deleted, subscription_plan_id,
			created_by, created_at, updated_by, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	passwordHash, _ := u.PasswordHash()
	res, err := t.tx.ExecContext(ctx, q,
		u.PublicID.String(),
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
		toMillis(u.CreatedAt),
		u.UpdatedBy,
		toMillis(u.UpdatedAt),
	)
	if err != nil {
		return mapUserWriteError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("user id: %w", err)
	}
	u.ID = id

	login, ok := u.ExternalLogin()
	if !ok {
		return nil
	}

	const loginQ = `
		INSERT INTO user_logins (login_provider, provider_key, provider_display_name, user_id, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	if _, err := t.tx.ExecContext(ctx, loginQ, login.Provider, login.ProviderKey, nullIfEmpty(login.DisplayName), login.UserID, toMillis(u.CreatedAt)); err != nil {
		return mapUserWriteError(err)
	}
	return nil
}
