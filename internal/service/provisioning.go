package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"HoneyHubUsers/internal/domain"
	"HoneyHubUsers/internal/metrics"
	"HoneyHubUsers/internal/outbox"
	"HoneyHubUsers/internal/pkg/reqctx"
	"HoneyHubUsers/internal/store"
)

type UsersStore interface {
	WithinTx(ctx context.Context, fn store.TxFunc) error
	UsernameExists(ctx context.Context, normalized string) (bool, error)
	EmailExists(ctx context.Context, normalized string) (bool, error)
	ExternalLoginExists(ctx context.Context, provider, providerKey string) (bool, error)
	GetUserByPublicID(ctx context.Context, publicID uuid.UUID) (domain.User, error)
	GetUserByLogin(ctx context.Context, normalizedLogin string) (domain.User, error)
}

type OutboxReader interface {
	ListOutboxByAggregate(ctx context.Context, aggregateType string, aggregateID uuid.UUID) ([]domain.OutboxMessage, error)
}

type PasswordHasher interface {
	Hash(ctx context.Context, password string) (string, error)
	Verify(ctx context.Context, password, stored string) (bool, error)
}

type CreatePasswordUserInput struct {
	UserName           string
	Email              string
	Password           string
	PhoneNumber        string
	SubscriptionPlanID *int64
}

type CreateExternalUserInput struct {
	UserName            string
	Email               string
	Provider            string
	ProviderKey         string
	ProviderDisplayName string
	PhoneNumber         string
	// EmailConfirmed defaults to true: the provider vouches for the address.
	EmailConfirmed     *bool
	SubscriptionPlanID *int64
}

type AdminCreateUserInput struct {
	UserName            string
	Email               string
	Password            string
	Provider            string
	ProviderKey         string
	ProviderDisplayName string
	PhoneNumber         string

	EmailConfirmed       bool
	PhoneNumberConfirmed bool
	IsActive             bool
	TwoFactorEnabled     bool
	LockoutEnabled       bool

	SubscriptionPlanID *int64
	CreatedBy          string
}

// Result is the outcome of a provisioning call. Exactly one of PublicID or
// Failure is set when the accompanying error is nil.
type Result struct {
	PublicID uuid.UUID
	Failure  *domain.Failure
}

func (r Result) OK() bool { return r.Failure == nil && r.PublicID != uuid.Nil }

const (
	pathPassword = "password"
	pathExternal = "external"
	pathAdmin    = "admin"
)

type provisionState string

const (
	stateValidating provisionState = "validating"
	stateHashing    provisionState = "hashing"
	statePersisting provisionState = "persisting"
	stateEnqueuing  provisionState = "enqueuing"
	stateCommitting provisionState = "committing"
	stateCommitted  provisionState = "committed"
	stateRolledBack provisionState = "rolled_back"
)

// ProvisioningService creates user accounts. Each call validates, optionally
// hashes, then stages the user and its users.user.created outbox record in a
// single transaction, so either both become visible or neither does.
type ProvisioningService struct {
	Users   UsersStore
	Plans   PlansStore
	Outbox  OutboxReader
	Hasher  PasswordHasher
	Writer  *outbox.Writer
	Metrics *metrics.Metrics
	Logger  *slog.Logger

	Now   func() time.Time
	NewID func() uuid.UUID
}

func (s *ProvisioningService) CreatePasswordUser(ctx context.Context, in CreatePasswordUserInput) (Result, error) {
	start := time.Now()
	res, err := s.createPasswordUser(ctx, in)
	s.finish(pathPassword, start, res, err)
	return res, err
}

func (s *ProvisioningService) createPasswordUser(ctx context.Context, in CreatePasswordUserInput) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	s.trace(ctx, pathPassword, stateValidating, in.UserName)
	policy := s.policy()
	if f := policy.CheckPasswordUser(in); f != nil {
		return Result{Failure: f}, nil
	}
	planID, f, err := policy.ResolvePlan(ctx, in.SubscriptionPlanID)
	if err != nil {
		return Result{}, domain.NewPersistenceError("resolve plan", err)
	}
	if f != nil {
		return Result{Failure: f}, nil
	}

	u := s.newUser(in.UserName, in.Email, in.PhoneNumber, planID)
	if f, err := s.checkAvailable(ctx, u, "", ""); err != nil || f != nil {
		return Result{Failure: f}, err
	}

	s.trace(ctx, pathPassword, stateHashing, in.UserName)
	hash, err := s.Hasher.Hash(ctx, in.Password)
	if err != nil {
		return Result{}, err
	}
	u.Auth = domain.PasswordAuth{Hash: hash}
	u.EmailConfirmed = false
	u.Stamp(u.UserName, s.now())

	return s.persist(ctx, pathPassword, u, newUserCreatedEvent(u))
}

func (s *ProvisioningService) CreateExternalUser(ctx context.Context, in CreateExternalUserInput) (Result, error) {
	start := time.Now()
	res, err := s.createExternalUser(ctx, in)
	s.finish(pathExternal, start, res, err)
	return res, err
}

func (s *ProvisioningService) createExternalUser(ctx context.Context, in CreateExternalUserInput) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	s.trace(ctx, pathExternal, stateValidating, in.UserName)
	policy := s.policy()
	if f := policy.CheckExternalUser(in); f != nil {
		return Result{Failure: f}, nil
	}
	planID, f, err := policy.ResolvePlan(ctx, in.SubscriptionPlanID)
	if err != nil {
		return Result{}, domain.NewPersistenceError("resolve plan", err)
	}
	if f != nil {
		return Result{Failure: f}, nil
	}

	provider := strings.TrimSpace(in.Provider)
	providerKey := strings.TrimSpace(in.ProviderKey)
	u := s.newUser(in.UserName, in.Email, in.PhoneNumber, planID)
	if f, err := s.checkAvailable(ctx, u, provider, providerKey); err != nil || f != nil {
		return Result{Failure: f}, err
	}

	u.Auth = domain.ExternalAuth{
		Provider:    provider,
		ProviderKey: providerKey,
		DisplayName: strings.TrimSpace(in.ProviderDisplayName),
	}
	u.EmailConfirmed = true
	if in.EmailConfirmed != nil {
		u.EmailConfirmed = *in.EmailConfirmed
	}
	u.Stamp(u.UserName, s.now())

	return s.persist(ctx, pathExternal, u, newUserCreatedEvent(u))
}

func (s *ProvisioningService) AdminCreateUser(ctx context.Context, in AdminCreateUserInput) (Result, error) {
	start := time.Now()
	res, err := s.adminCreateUser(ctx, in)
	s.finish(pathAdmin, start, res, err)
	return res, err
}

func (s *ProvisioningService) adminCreateUser(ctx context.Context, in AdminCreateUserInput) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	s.trace(ctx, pathAdmin, stateValidating, in.UserName)
	policy := s.policy()
	if f := policy.CheckAdminUser(in); f != nil {
		return Result{Failure: f}, nil
	}
	planID, f, err := policy.ResolvePlan(ctx, in.SubscriptionPlanID)
	if err != nil {
		return Result{}, domain.NewPersistenceError("resolve plan", err)
	}
	if f != nil {
		return Result{Failure: f}, nil
	}

	provider := strings.TrimSpace(in.Provider)
	providerKey := strings.TrimSpace(in.ProviderKey)
	u := s.newUser(in.UserName, in.Email, in.PhoneNumber, planID)
	if f, err := s.checkAvailable(ctx, u, provider, providerKey); err != nil || f != nil {
		return Result{Failure: f}, err
	}

	hasPassword := provider == ""
	if hasPassword {
		s.trace(ctx, pathAdmin, stateHashing, in.UserName)
		hash, err := s.Hasher.Hash(ctx, in.Password)
		if err != nil {
			return Result{}, err
		}
		u.Auth = domain.PasswordAuth{Hash: hash}
	} else {
		u.Auth = domain.ExternalAuth{
			Provider:    provider,
			ProviderKey: providerKey,
			DisplayName: strings.TrimSpace(in.ProviderDisplayName),
		}
	}

	u.EmailConfirmed = in.EmailConfirmed
	u.PhoneNumberConfirmed = in.PhoneNumberConfirmed
	u.IsActive = in.IsActive
	u.TwoFactorEnabled = in.TwoFactorEnabled
	u.LockoutEnabled = in.LockoutEnabled
	u.Stamp(strings.TrimSpace(in.CreatedBy), s.now())

	ev := newUserCreatedEvent(u)
	ev.HasPassword = &hasPassword
	ev.CreatedBy = u.CreatedBy
	return s.persist(ctx, pathAdmin, u, ev)
}

// checkAvailable reports the first identity already claimed. The unique
// indexes remain authoritative for races between concurrent requests.
func (s *ProvisioningService) checkAvailable(ctx context.Context, u *domain.User, provider, providerKey string) (*domain.Failure, error) {
	taken, err := s.Users.UsernameExists(ctx, u.NormalizedUserName)
	if err != nil {
		return nil, domain.NewPersistenceError("check username", err)
	}
	if taken {
		return failureFor(domain.ErrUsernameTaken), nil
	}

	taken, err = s.Users.EmailExists(ctx, u.NormalizedEmail)
	if err != nil {
		return nil, domain.NewPersistenceError("check email", err)
	}
	if taken {
		return failureFor(domain.ErrEmailTaken), nil
	}

	if provider == "" {
		return nil, nil
	}
	taken, err = s.Users.ExternalLoginExists(ctx, provider, providerKey)
	if err != nil {
		return nil, domain.NewPersistenceError("check external login", err)
	}
	if taken {
		return failureFor(domain.ErrExternalLoginTaken), nil
	}
	return nil, nil
}

func (s *ProvisioningService) persist(ctx context.Context, path string, u *domain.User, ev UserCreatedEvent) (Result, error) {
	err := s.Users.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		s.trace(ctx, path, statePersisting, u.UserName)
		if err := tx.InsertUser(ctx, u); err != nil {
			return err
		}

		s.trace(ctx, path, stateEnqueuing, u.UserName)
		_, err := s.writer().Enqueue(ctx, tx, outbox.Event{
			EventType:         EventUserCreated,
			AggregateType:     AggregateUser,
			AggregatePublicID: u.PublicID,
			Payload:           ev,
			CorrelationID:     reqctx.CorrelationID(ctx),
			CausationID:       reqctx.CausationID(ctx),
		})
		if err != nil {
			return err
		}

		s.trace(ctx, path, stateCommitting, u.UserName)
		return nil
	})
	if err != nil {
		s.trace(ctx, path, stateRolledBack, u.UserName)
		if f := failureFor(err); f != nil {
			return Result{Failure: f}, nil
		}
		return Result{}, domain.NewPersistenceError("create user", err)
	}

	s.trace(ctx, path, stateCommitted, u.UserName)
	s.Metrics.OutboxEnqueued(EventUserCreated)
	return Result{PublicID: u.PublicID}, nil
}

func failureFor(err error) *domain.Failure {
	switch {
	case errors.Is(err, domain.ErrUsernameTaken):
		return domain.BusinessRule("username_taken", "Username is already taken.")
	case errors.Is(err, domain.ErrEmailTaken):
		return domain.BusinessRule("email_taken", "Email is already registered.")
	case errors.Is(err, domain.ErrExternalLoginTaken):
		return domain.BusinessRule("external_login_taken", "External login is already linked to another user.")
	default:
		return nil
	}
}

func (s *ProvisioningService) newUser(userName, email, phone string, planID int64) *domain.User {
	userName = strings.TrimSpace(userName)
	email = strings.TrimSpace(email)
	return &domain.User{
		PublicID:           s.newID(),
		UserName:           userName,
		NormalizedUserName: domain.Normalize(userName),
		Email:              email,
		NormalizedEmail:    domain.Normalize(email),
		Auth:               domain.NoAuth{},
		SecurityStamp:      s.newID().String(),
		ConcurrencyStamp:   s.newID().String(),
		PhoneNumber:        strings.TrimSpace(phone),
		LockoutEnabled:     true,
		IsActive:           true,
		SubscriptionPlanID: planID,
	}
}

// GetUser returns domain.ErrNotFound for unknown ids.
func (s *ProvisioningService) GetUser(ctx context.Context, publicID uuid.UUID) (domain.User, error) {
	return s.Users.GetUserByPublicID(ctx, publicID)
}

// ListUserEvents returns the outbox records staged for a user, oldest first.
func (s *ProvisioningService) ListUserEvents(ctx context.Context, publicID uuid.UUID) ([]domain.OutboxMessage, error) {
	if s.Outbox == nil {
		return nil, errors.New("outbox reader not configured")
	}
	if _, err := s.Users.GetUserByPublicID(ctx, publicID); err != nil {
		return nil, err
	}
	return s.Outbox.ListOutboxByAggregate(ctx, AggregateUser, publicID)
}

// VerifyCredentials checks login (username or email) and password. It returns
// false, not an error, for unknown, inactive, deleted or external-only users.
func (s *ProvisioningService) VerifyCredentials(ctx context.Context, login, password string) (uuid.UUID, bool, error) {
	normalized := domain.Normalize(login)
	if normalized == "" || password == "" {
		return uuid.Nil, false, nil
	}

	u, err := s.Users.GetUserByLogin(ctx, normalized)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return uuid.Nil, false, nil
		}
		return uuid.Nil, false, domain.NewPersistenceError("get user by login", err)
	}
	if !u.IsActive || u.IsDeleted {
		return uuid.Nil, false, nil
	}
	hash, ok := u.PasswordHash()
	if !ok {
		return uuid.Nil, false, nil
	}

	ok, err = s.Hasher.Verify(ctx, password, hash)
	if err != nil || !ok {
		return uuid.Nil, false, err
	}
	return u.PublicID, true, nil
}

func (s *ProvisioningService) policy() *ValidationPolicy {
	return &ValidationPolicy{Plans: s.Plans}
}

func (s *ProvisioningService) writer() *outbox.Writer {
	if s.Writer != nil {
		return s.Writer
	}
	return &outbox.Writer{Now: s.Now, NewID: s.NewID}
}

func (s *ProvisioningService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *ProvisioningService) newID() uuid.UUID {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.New()
}

func (s *ProvisioningService) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *ProvisioningService) trace(ctx context.Context, path string, state provisionState, userName string) {
	s.logger().DebugContext(ctx, "provision user", "path", path, "state", string(state), "username", strings.TrimSpace(userName))
}

func (s *ProvisioningService) finish(path string, start time.Time, res Result, err error) {
	s.Metrics.ObserveProvision(path, time.Since(start))
	switch {
	case err != nil:
		s.Metrics.ProvisionFailed(path)
		s.logger().Error("provision user failed", "path", path, "err", err)
	case res.Failure != nil:
		s.Metrics.ProvisionRejected(path, res.Failure.Code)
		s.logger().Info("provision user rejected", "path", path, "code", res.Failure.Code, "kind", string(res.Failure.Kind))
	default:
		s.Metrics.UserProvisioned(path)
		s.logger().Info("provision user committed", "path", path, "user_id", res.PublicID.String())
	}
}
