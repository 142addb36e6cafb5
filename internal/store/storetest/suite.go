// Package storetest runs the same behavioural checks against every users
// store backend.
package storetest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"HoneyHubUsers/internal/domain"
	"HoneyHubUsers/internal/store"
)

type Backend interface {
	WithinTx(ctx context.Context, fn store.TxFunc) error
	UsernameExists(ctx context.Context, normalized string) (bool, error)
	EmailExists(ctx context.Context, normalized string) (bool, error)
	ExternalLoginExists(ctx context.Context, provider, providerKey string) (bool, error)
	GetUserByPublicID(ctx context.Context, publicID uuid.UUID) (domain.User, error)
	GetUserByLogin(ctx context.Context, normalizedLogin string) (domain.User, error)
	GetPlanByID(ctx context.Context, id int64) (domain.SubscriptionPlan, error)
	ListOutboxByAggregate(ctx context.Context, aggregateType string, aggregateID uuid.UUID) ([]domain.OutboxMessage, error)
}

// Run executes the suite; newBackend must return an empty, migrated store.
func Run(t *testing.T, newBackend func(t *testing.T) Backend) {
	t.Run("commit persists user and outbox", func(t *testing.T) { testCommit(t, newBackend(t)) })
	t.Run("error rolls back both rows", func(t *testing.T) { testRollback(t, newBackend(t)) })
	t.Run("username unique case-insensitively", func(t *testing.T) { testUsernameUnique(t, newBackend(t)) })
	t.Run("email unique", func(t *testing.T) { testEmailUnique(t, newBackend(t)) })
	t.Run("external login", func(t *testing.T) { testExternalLogin(t, newBackend(t)) })
	t.Run("lookup by login", func(t *testing.T) { testGetUserByLogin(t, newBackend(t)) })
	t.Run("default plan seeded", func(t *testing.T) { testPlans(t, newBackend(t)) })
	t.Run("canceled context opens no tx", func(t *testing.T) { testCanceled(t, newBackend(t)) })
}

var fixedNow = time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)

func NewUser(username, email string, auth domain.AuthMethod) *domain.User {
	u := &domain.User{
		PublicID:           uuid.New(),
		UserName:           username,
		NormalizedUserName: domain.Normalize(username),
		Email:              email,
		NormalizedEmail:    domain.Normalize(email),
		Auth:               auth,
		SecurityStamp:      uuid.NewString(),
		ConcurrencyStamp:   uuid.NewString(),
		LockoutEnabled:     true,
		IsActive:           true,
		SubscriptionPlanID: domain.DefaultSubscriptionPlanID,
	}
	u.Stamp(username, fixedNow)
	return u
}

func NewMessage(aggregate uuid.UUID) domain.OutboxMessage {
	corr := uuid.New()
	return domain.OutboxMessage{
		PublicID:          uuid.New(),
		AggregateType:     "User",
		AggregatePublicID: aggregate,
		EventType:         "users.user.created",
		Payload:           json.RawMessage(`{"userId":"` + aggregate.String() + `"}`),
		Headers:           map[string]string{"source": "storetest"},
		Status:            domain.OutboxPending,
		OccurredAt:        fixedNow,
		AvailableAt:       fixedNow,
		CorrelationID:     &corr,
		CreatedBy:         "System",
	}
}

func testCommit(t *testing.T, b Backend) {
	ctx := context.Background()
	u := NewUser("Alice", "alice@example.com", domain.PasswordAuth{Hash: "c2FsdA==:aGFzaA=="})
	u.PhoneNumber = "+15550100"
	msg := NewMessage(u.PublicID)

	err := b.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.InsertUser(ctx, u); err != nil {
			return err
		}
		return tx.InsertOutboxMessage(ctx, msg)
	})
	require.NoError(t, err)
	require.NotZero(t, u.ID)

	got, err := b.GetUserByPublicID(ctx, u.PublicID)
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)
	require.Equal(t, "Alice", got.UserName)
	require.Equal(t, "ALICE", got.NormalizedUserName)
	require.Equal(t, "ALICE@EXAMPLE.COM", got.NormalizedEmail)
	require.Equal(t, "+15550100", got.PhoneNumber)
	require.Equal(t, domain.PasswordAuth{Hash: "c2FsdA==:aGFzaA=="}, got.Auth)
	require.True(t, got.IsActive)
	require.True(t, got.LockoutEnabled)
	require.False(t, got.EmailConfirmed)
	require.Equal(t, domain.DefaultSubscriptionPlanID, got.SubscriptionPlanID)
	require.True(t, fixedNow.Equal(got.CreatedAt))
	require.Equal(t, "Alice", got.CreatedBy)

	msgs, err := b.ListOutboxByAggregate(ctx, "User", u.PublicID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, msg.PublicID, msgs[0].PublicID)
	require.Equal(t, domain.OutboxPending, msgs[0].Status)
	require.Zero(t, msgs[0].Attempts)
	require.Equal(t, msg.CorrelationID, msgs[0].CorrelationID)
	require.Nil(t, msgs[0].CausationID)
	require.Equal(t, "storetest", msgs[0].Headers["source"])
	require.JSONEq(t, string(msg.Payload), string(msgs[0].Payload))
	require.True(t, fixedNow.Equal(msgs[0].AvailableAt))
}

func testRollback(t *testing.T, b Backend) {
	ctx := context.Background()
	u := NewUser("bob", "bob@example.com", domain.PasswordAuth{Hash: "c2FsdA==:aGFzaA=="})
	boom := errors.New("outbox unavailable")

	err := b.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.InsertUser(ctx, u); err != nil {
			return err
		}
		if err := tx.InsertOutboxMessage(ctx, NewMessage(u.PublicID)); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	exists, err := b.UsernameExists(ctx, "BOB")
	require.NoError(t, err)
	require.False(t, exists)
	_, err = b.GetUserByPublicID(ctx, u.PublicID)
	require.ErrorIs(t, err, domain.ErrNotFound)
	msgs, err := b.ListOutboxByAggregate(ctx, "User", u.PublicID)
	require.NoError(t, err)
	require.Empty(t, msgs)
}

func insert(ctx context.Context, b Backend, u *domain.User) error {
	return b.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.InsertUser(ctx, u); err != nil {
			return err
		}
		return tx.InsertOutboxMessage(ctx, NewMessage(u.PublicID))
	})
}

func testUsernameUnique(t *testing.T, b Backend) {
	ctx := context.Background()
	require.NoError(t, insert(ctx, b, NewUser("carol", "carol@example.com", domain.PasswordAuth{Hash: "a:b"})))

	dup := NewUser("CAROL", "carol2@example.com", domain.PasswordAuth{Hash: "a:b"})
	err := insert(ctx, b, dup)
	require.ErrorIs(t, err, domain.ErrUsernameTaken)

	_, err = b.GetUserByPublicID(ctx, dup.PublicID)
	require.ErrorIs(t, err, domain.ErrNotFound)
	msgs, err := b.ListOutboxByAggregate(ctx, "User", dup.PublicID)
	require.NoError(t, err)
	require.Empty(t, msgs)
}

func testEmailUnique(t *testing.T, b Backend) {
	ctx := context.Background()
	require.NoError(t, insert(ctx, b, NewUser("dave", "dave@example.com", domain.PasswordAuth{Hash: "a:b"})))

	exists, err := b.EmailExists(ctx, "DAVE@EXAMPLE.COM")
	require.NoError(t, err)
	require.True(t, exists)

	err = insert(ctx, b, NewUser("dave2", "Dave@Example.com", domain.PasswordAuth{Hash: "a:b"}))
	require.ErrorIs(t, err, domain.ErrEmailTaken)
}

func testExternalLogin(t *testing.T, b Backend) {
	ctx := context.Background()
	u := NewUser("erin", "erin@example.com", domain.ExternalAuth{Provider: "google", ProviderKey: "sub-1", DisplayName: "Google"})
	require.NoError(t, insert(ctx, b, u))

	got, err := b.GetUserByPublicID(ctx, u.PublicID)
	require.NoError(t, err)
	require.Equal(t, domain.AuthKindExternal, got.AuthKind())
	require.Equal(t, domain.ExternalAuth{Provider: "google", ProviderKey: "sub-1", DisplayName: "Google"}, got.Auth)

	exists, err := b.ExternalLoginExists(ctx, "google", "sub-1")
	require.NoError(t, err)
	require.True(t, exists)

	dup := NewUser("erin2", "erin2@example.com", domain.ExternalAuth{Provider: "google", ProviderKey: "sub-1"})
	err = insert(ctx, b, dup)
	require.ErrorIs(t, err, domain.ErrExternalLoginTaken)

	// The user row of the failed attempt must not survive the login failure.
	exists, err = b.UsernameExists(ctx, "ERIN2")
	require.NoError(t, err)
	require.False(t, exists)
}

func testGetUserByLogin(t *testing.T, b Backend) {
	ctx := context.Background()
	u := NewUser("frank", "frank@example.com", domain.PasswordAuth{Hash: "a:b"})
	require.NoError(t, insert(ctx, b, u))

	byName, err := b.GetUserByLogin(ctx, "FRANK")
	require.NoError(t, err)
	require.Equal(t, u.PublicID, byName.PublicID)

	byEmail, err := b.GetUserByLogin(ctx, "FRANK@EXAMPLE.COM")
	require.NoError(t, err)
	require.Equal(t, u.PublicID, byEmail.PublicID)

	_, err = b.GetUserByLogin(ctx, "NOBODY")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func testPlans(t *testing.T, b Backend) {
	ctx := context.Background()
	p, err := b.GetPlanByID(ctx, domain.DefaultSubscriptionPlanID)
	require.NoError(t, err)
	require.True(t, p.IsActive)
	require.True(t, p.IsDefault)

	_, err = b.GetPlanByID(ctx, 999)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func testCanceled(t *testing.T, b Backend) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := b.WithinTx(ctx, func(context.Context, store.Tx) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, called)
}
