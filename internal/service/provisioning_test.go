package service

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"HoneyHubUsers/internal/domain"
	"HoneyHubUsers/internal/pkg/reqctx"
	"HoneyHubUsers/internal/store"
)

type stubUsersStore struct {
	t *testing.T

	withinTxFunc            func(context.Context, store.TxFunc) error
	usernameExistsFunc      func(context.Context, string) (bool, error)
	emailExistsFunc         func(context.Context, string) (bool, error)
	externalLoginExistsFunc func(context.Context, string, string) (bool, error)
	getUserByPublicIDFunc   func(context.Context, uuid.UUID) (domain.User, error)
	getUserByLoginFunc      func(context.Context, string) (domain.User, error)
}

func (s *stubUsersStore) WithinTx(ctx context.Context, fn store.TxFunc) error {
	if s.withinTxFunc != nil {
		return s.withinTxFunc(ctx, fn)
	}
	s.t.Fatalf("WithinTx called unexpectedly")
	return errors.New("unexpected call")
}

func (s *stubUsersStore) UsernameExists(ctx context.Context, normalized string) (bool, error) {
	if s.usernameExistsFunc != nil {
		return s.usernameExistsFunc(ctx, normalized)
	}
	s.t.Fatalf("UsernameExists called unexpectedly")
	return false, errors.New("unexpected call")
}

func (s *stubUsersStore) EmailExists(ctx context.Context, normalized string) (bool, error) {
	if s.emailExistsFunc != nil {
		return s.emailExistsFunc(ctx, normalized)
	}
	s.t.Fatalf("EmailExists called unexpectedly")
	return false, errors.New("unexpected call")
}

func (s *stubUsersStore) ExternalLoginExists(ctx context.Context, provider, providerKey string) (bool, error) {
	if s.externalLoginExistsFunc != nil {
		return s.externalLoginExistsFunc(ctx, provider, providerKey)
	}
	s.t.Fatalf("ExternalLoginExists called unexpectedly")
	return false, errors.New("unexpected call")
}

func (s *stubUsersStore) GetUserByPublicID(ctx context.Context, publicID uuid.UUID) (domain.User, error) {
	if s.getUserByPublicIDFunc != nil {
		return s.getUserByPublicIDFunc(ctx, publicID)
	}
	s.t.Fatalf("GetUserByPublicID called unexpectedly")
	return domain.User{}, errors.New("unexpected call")
}

func (s *stubUsersStore) GetUserByLogin(ctx context.Context, login string) (domain.User, error) {
	if s.getUserByLoginFunc != nil {
		return s.getUserByLoginFunc(ctx, login)
	}
	s.t.Fatalf("GetUserByLogin called unexpectedly")
	return domain.User{}, errors.New("unexpected call")
}

// recordingTx captures what a unit of work staged.
type recordingTx struct {
	users     []*domain.User
	messages  []domain.OutboxMessage
	userErr   error
	outboxErr error
}

func (tx *recordingTx) InsertUser(_ context.Context, u *domain.User) error {
	if tx.userErr != nil {
		return tx.userErr
	}
	u.ID = int64(len(tx.users) + 1)
	tx.users = append(tx.users, u)
	return nil
}

func (tx *recordingTx) InsertOutboxMessage(_ context.Context, msg domain.OutboxMessage) error {
	if tx.outboxErr != nil {
		return tx.outboxErr
	}
	tx.messages = append(tx.messages, msg)
	return nil
}

type stubPlansStore struct {
	t *testing.T

	getPlanByIDFunc func(context.Context, int64) (domain.SubscriptionPlan, error)
}

func (s *stubPlansStore) GetPlanByID(ctx context.Context, id int64) (domain.SubscriptionPlan, error) {
	if s.getPlanByIDFunc != nil {
		return s.getPlanByIDFunc(ctx, id)
	}
	s.t.Fatalf("GetPlanByID called unexpectedly")
	return domain.SubscriptionPlan{}, errors.New("unexpected call")
}

type stubHasher struct {
	t *testing.T

	hashFunc   func(context.Context, string) (string, error)
	verifyFunc func(context.Context, string, string) (bool, error)
}

func (h *stubHasher) Hash(ctx context.Context, password string) (string, error) {
	if h.hashFunc != nil {
		return h.hashFunc(ctx, password)
	}
	h.t.Fatalf("Hash called unexpectedly")
	return "", errors.New("unexpected call")
}

func (h *stubHasher) Verify(ctx context.Context, password, stored string) (bool, error) {
	if h.verifyFunc != nil {
		return h.verifyFunc(ctx, password, stored)
	}
	h.t.Fatalf("Verify called unexpectedly")
	return false, errors.New("unexpected call")
}

const testHash = "c2FsdHNhbHRzYWx0:aGFzaGhhc2hoYXNo"

var testNow = time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)

func available() *stubUsersStore {
	return &stubUsersStore{
		usernameExistsFunc:      func(context.Context, string) (bool, error) { return false, nil },
		emailExistsFunc:         func(context.Context, string) (bool, error) { return false, nil },
		externalLoginExistsFunc: func(context.Context, string, string) (bool, error) { return false, nil },
	}
}

func committing(users *stubUsersStore, tx *recordingTx) *stubUsersStore {
	users.withinTxFunc = func(ctx context.Context, fn store.TxFunc) error {
		return fn(ctx, tx)
	}
	return users
}

func newTestService(t *testing.T, users *stubUsersStore) *ProvisioningService {
	users.t = t
	return &ProvisioningService{
		Users: users,
		Plans: &stubPlansStore{t: t},
		Hasher: &stubHasher{t: t, hashFunc: func(_ context.Context, password string) (string, error) {
			if password == "" {
				t.Fatalf("empty password reached the hasher")
			}
			return testHash, nil
		}},
		Now: func() time.Time { return testNow },
	}
}

func decodeEvent(t *testing.T, msg domain.OutboxMessage) UserCreatedEvent {
	t.Helper()
	var ev UserCreatedEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	return ev
}

func TestCreatePasswordUser_Commits(t *testing.T) {
	tx := &recordingTx{}
	svc := newTestService(t, committing(available(), tx))

	corr := uuid.New()
	ctx := reqctx.WithCorrelationID(context.Background(), corr)
	res, err := svc.CreatePasswordUser(ctx, CreatePasswordUserInput{
		UserName: " Alice ",
		Email:    "Alice@Example.com",
		Password: "Str0ng!pass",
	})
	if err != nil {
		t.Fatalf("CreatePasswordUser: %v", err)
	}
	if !res.OK() {
		t.Fatalf("expected success, got failure %+v", res.Failure)
	}
	if len(tx.users) != 1 || len(tx.messages) != 1 {
		t.Fatalf("expected one user and one outbox record, got %d and %d", len(tx.users), len(tx.messages))
	}

	u := tx.users[0]
	if u.PublicID != res.PublicID {
		t.Fatalf("public id mismatch: %s vs %s", u.PublicID, res.PublicID)
	}
	if u.UserName != "Alice" || u.NormalizedUserName != "ALICE" || u.NormalizedEmail != "ALICE@EXAMPLE.COM" {
		t.Fatalf("unexpected identity: %+v", u)
	}
	if u.EmailConfirmed {
		t.Fatalf("self-service users must start unconfirmed")
	}
	if !u.IsActive || !u.LockoutEnabled {
		t.Fatalf("expected active user with lockout enabled")
	}
	if h, ok := u.PasswordHash(); !ok || h != testHash {
		t.Fatalf("unexpected auth: %#v", u.Auth)
	}
	if u.SubscriptionPlanID != domain.DefaultSubscriptionPlanID {
		t.Fatalf("expected default plan, got %d", u.SubscriptionPlanID)
	}
	if u.CreatedBy != "Alice" || !u.CreatedAt.Equal(testNow) {
		t.Fatalf("unexpected audit: %+v", u.Audit)
	}
	if u.SecurityStamp == "" || u.ConcurrencyStamp == "" || u.SecurityStamp == u.ConcurrencyStamp {
		t.Fatalf("expected distinct stamps")
	}

	msg := tx.messages[0]
	if msg.EventType != EventUserCreated || msg.AggregateType != AggregateUser || msg.AggregatePublicID != res.PublicID {
		t.Fatalf("unexpected outbox record: %+v", msg)
	}
	if msg.Status != domain.OutboxPending {
		t.Fatalf("expected pending status, got %v", msg.Status)
	}
	if msg.CorrelationID == nil || *msg.CorrelationID != corr {
		t.Fatalf("expected correlation id %s, got %v", corr, msg.CorrelationID)
	}
	payload := string(msg.Payload)
	if strings.Contains(payload, "Str0ng!pass") || strings.Contains(payload, testHash) {
		t.Fatalf("payload leaks credential: %s", payload)
	}
	ev := decodeEvent(t, msg)
	if ev.UserID != res.PublicID || ev.Username != "Alice" || ev.AuthMethod != domain.AuthKindPassword {
		t.Fatalf("unexpected payload: %+v", ev)
	}
	if ev.HasPassword != nil || ev.Provider != "" {
		t.Fatalf("password path payload has admin or external fields: %+v", ev)
	}
}

func TestCreatePasswordUser_ValidationFailures(t *testing.T) {
	cases := []struct {
		name string
		in   CreatePasswordUserInput
		code string
		kind domain.FailureKind
	}{
		{"missing username", CreatePasswordUserInput{Email: "a@example.com", Password: "x"}, "username_required", domain.FailureInvalidArgument},
		{"missing email", CreatePasswordUserInput{UserName: "alice", Password: "x"}, "email_required", domain.FailureInvalidArgument},
		{"username equals email", CreatePasswordUserInput{UserName: "A@example.com", Email: " a@EXAMPLE.com ", Password: "x"}, "username_equals_email", domain.FailureBusinessRule},
		{"missing password", CreatePasswordUserInput{UserName: "alice", Email: "a@example.com", Password: "   "}, "password_required", domain.FailureInvalidArgument},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := newTestService(t, &stubUsersStore{})
			res, err := svc.CreatePasswordUser(context.Background(), tc.in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Failure == nil || res.Failure.Code != tc.code || res.Failure.Kind != tc.kind {
				t.Fatalf("expected %s %s, got %+v", tc.code, tc.kind, res.Failure)
			}
			if res.PublicID != uuid.Nil {
				t.Fatalf("no id may be returned on failure")
			}
		})
	}
}

func TestCreatePasswordUser_DuplicateUsername(t *testing.T) {
	users := &stubUsersStore{
		usernameExistsFunc: func(_ context.Context, normalized string) (bool, error) {
			if normalized != "ALICE" {
				t.Fatalf("expected normalized lookup, got %q", normalized)
			}
			return true, nil
		},
	}
	svc := newTestService(t, users)
	svc.Hasher = &stubHasher{t: t}

	res, err := svc.CreatePasswordUser(context.Background(), CreatePasswordUserInput{
		UserName: "alice",
		Email:    "alice@example.com",
		Password: "Str0ng!pass",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Failure == nil || res.Failure.Code != "username_taken" || res.Failure.Kind != domain.FailureBusinessRule {
		t.Fatalf("expected username_taken, got %+v", res.Failure)
	}
}

func TestCreatePasswordUser_DuplicateEmail(t *testing.T) {
	users := available()
	users.emailExistsFunc = func(context.Context, string) (bool, error) { return true, nil }
	svc := newTestService(t, users)
	svc.Hasher = &stubHasher{t: t}

	res, err := svc.CreatePasswordUser(context.Background(), CreatePasswordUserInput{
		UserName: "alice",
		Email:    "alice@example.com",
		Password: "Str0ng!pass",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Failure == nil || res.Failure.Code != "email_taken" {
		t.Fatalf("expected email_taken, got %+v", res.Failure)
	}
}

func TestCreatePasswordUser_PlanRules(t *testing.T) {
	cases := []struct {
		name    string
		plan    domain.SubscriptionPlan
		planErr error
		code    string
		message string
	}{
		{"inactive", domain.SubscriptionPlan{IsActive: false}, nil, "plan_inactive", "Subscription plan with ID 5 is inactive."},
		{"missing", domain.SubscriptionPlan{}, domain.ErrNotFound, "plan_not_found", "Subscription plan with ID 5 is not found."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := newTestService(t, &stubUsersStore{})
			svc.Hasher = &stubHasher{t: t}
			svc.Plans = &stubPlansStore{t: t, getPlanByIDFunc: func(_ context.Context, id int64) (domain.SubscriptionPlan, error) {
				if id != 5 {
					t.Fatalf("unexpected plan id %d", id)
				}
				return tc.plan, tc.planErr
			}}

			plan := int64(5)
			res, err := svc.CreatePasswordUser(context.Background(), CreatePasswordUserInput{
				UserName:           "alice",
				Email:              "alice@example.com",
				Password:           "Str0ng!pass",
				SubscriptionPlanID: &plan,
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Failure == nil || res.Failure.Code != tc.code || res.Failure.Message != tc.message {
				t.Fatalf("expected %s, got %+v", tc.code, res.Failure)
			}
		})
	}
}

func TestCreatePasswordUser_ActivePlanUsed(t *testing.T) {
	tx := &recordingTx{}
	svc := newTestService(t, committing(available(), tx))
	svc.Plans = &stubPlansStore{t: t, getPlanByIDFunc: func(context.Context, int64) (domain.SubscriptionPlan, error) {
		return domain.SubscriptionPlan{IsActive: true}, nil
	}}

	plan := int64(3)
	res, err := svc.CreatePasswordUser(context.Background(), CreatePasswordUserInput{
		UserName:           "alice",
		Email:              "alice@example.com",
		Password:           "Str0ng!pass",
		SubscriptionPlanID: &plan,
	})
	if err != nil || !res.OK() {
		t.Fatalf("expected success: res=%+v err=%v", res, err)
	}
	if tx.users[0].SubscriptionPlanID != 3 {
		t.Fatalf("expected plan 3, got %d", tx.users[0].SubscriptionPlanID)
	}
	if ev := decodeEvent(t, tx.messages[0]); ev.SubscriptionPlanID != 3 {
		t.Fatalf("payload plan: got %d", ev.SubscriptionPlanID)
	}
}

func TestCreatePasswordUser_OutboxFailureIsPersistenceError(t *testing.T) {
	boom := errors.New("outbox insert failed")
	tx := &recordingTx{outboxErr: boom}
	svc := newTestService(t, committing(available(), tx))

	res, err := svc.CreatePasswordUser(context.Background(), CreatePasswordUserInput{
		UserName: "alice",
		Email:    "alice@example.com",
		Password: "Str0ng!pass",
	})
	if !errors.Is(err, domain.ErrPersistence) || !errors.Is(err, boom) {
		t.Fatalf("expected persistence error wrapping cause, got %v", err)
	}
	if res.PublicID != uuid.Nil || res.Failure != nil {
		t.Fatalf("expected empty result, got %+v", res)
	}
}

// provisionStates returns the state of every "provision user" debug record.
func provisionStates(t *testing.T, logs *bytes.Buffer) []string {
	t.Helper()
	var states []string
	sc := bufio.NewScanner(logs)
	for sc.Scan() {
		var rec struct {
			Msg   string `json:"msg"`
			State string `json:"state"`
		}
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatalf("decode log line %q: %v", sc.Text(), err)
		}
		if rec.Msg == "provision user" {
			states = append(states, rec.State)
		}
	}
	return states
}

func TestCreatePasswordUser_TracesStates(t *testing.T) {
	in := CreatePasswordUserInput{UserName: "alice", Email: "alice@example.com", Password: "Str0ng!pass"}

	for _, tc := range []struct {
		name string
		tx   *recordingTx
		want []string
	}{
		{"committed", &recordingTx{}, []string{"validating", "hashing", "persisting", "enqueuing", "committing", "committed"}},
		{"rolled back", &recordingTx{outboxErr: errors.New("outbox insert failed")}, []string{"validating", "hashing", "persisting", "enqueuing", "rolled_back"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var logs bytes.Buffer
			svc := newTestService(t, committing(available(), tc.tx))
			svc.Logger = slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

			_, _ = svc.CreatePasswordUser(context.Background(), in)

			if got := provisionStates(t, &logs); !slices.Equal(got, tc.want) {
				t.Fatalf("states: got %v want %v", got, tc.want)
			}
		})
	}
}

func TestCreatePasswordUser_UniqueRaceBecomesFailure(t *testing.T) {
	for _, tc := range []struct {
		err  error
		code string
	}{
		{domain.ErrUsernameTaken, "username_taken"},
		{domain.ErrEmailTaken, "email_taken"},
	} {
		tx := &recordingTx{userErr: tc.err}
		svc := newTestService(t, committing(available(), tx))

		res, err := svc.CreatePasswordUser(context.Background(), CreatePasswordUserInput{
			UserName: "alice",
			Email:    "alice@example.com",
			Password: "Str0ng!pass",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Failure == nil || res.Failure.Code != tc.code {
			t.Fatalf("expected %s, got %+v", tc.code, res.Failure)
		}
		if len(tx.messages) != 0 {
			t.Fatalf("no outbox record may be staged after a failed insert")
		}
	}
}

func TestCreatePasswordUser_CanceledBeforeStart(t *testing.T) {
	svc := newTestService(t, &stubUsersStore{})
	svc.Hasher = &stubHasher{t: t}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.CreatePasswordUser(ctx, CreatePasswordUserInput{UserName: "alice", Email: "alice@example.com", Password: "x"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestCreatePasswordUser_PrecheckErrorIsPersistenceError(t *testing.T) {
	users := &stubUsersStore{
		usernameExistsFunc: func(context.Context, string) (bool, error) { return false, errors.New("connection reset") },
	}
	svc := newTestService(t, users)
	svc.Hasher = &stubHasher{t: t}

	_, err := svc.CreatePasswordUser(context.Background(), CreatePasswordUserInput{UserName: "alice", Email: "alice@example.com", Password: "x"})
	var perr *domain.PersistenceError
	if !errors.As(err, &perr) || perr.Op != "check username" {
		t.Fatalf("expected persistence error, got %v", err)
	}
}

func TestCreateExternalUser_Commits(t *testing.T) {
	tx := &recordingTx{}
	users := committing(available(), tx)
	users.externalLoginExistsFunc = func(_ context.Context, provider, key string) (bool, error) {
		if provider != "google" || key != "sub-123" {
			t.Fatalf("unexpected login lookup %q %q", provider, key)
		}
		return false, nil
	}
	svc := newTestService(t, users)
	svc.Hasher = &stubHasher{t: t}

	res, err := svc.CreateExternalUser(context.Background(), CreateExternalUserInput{
		UserName:            "bob",
		Email:               "bob@example.com",
		Provider:            " google ",
		ProviderKey:         "sub-123",
		ProviderDisplayName: "Google",
	})
	if err != nil || !res.OK() {
		t.Fatalf("expected success: res=%+v err=%v", res, err)
	}

	u := tx.users[0]
	if !u.EmailConfirmed {
		t.Fatalf("external users default to confirmed email")
	}
	login, ok := u.ExternalLogin()
	if !ok || login.Provider != "google" || login.ProviderKey != "sub-123" || login.DisplayName != "Google" {
		t.Fatalf("unexpected login: %+v", login)
	}
	if _, ok := u.PasswordHash(); ok {
		t.Fatalf("external user must not have a password")
	}

	ev := decodeEvent(t, tx.messages[0])
	if ev.Provider != "google" || ev.ProviderID != "sub-123" || ev.AuthMethod != domain.AuthKindExternal {
		t.Fatalf("unexpected payload: %+v", ev)
	}
}

func TestCreateExternalUser_UnverifiedEmail(t *testing.T) {
	tx := &recordingTx{}
	svc := newTestService(t, committing(available(), tx))

	confirmed := false
	res, err := svc.CreateExternalUser(context.Background(), CreateExternalUserInput{
		UserName:       "bob",
		Email:          "bob@example.com",
		Provider:       "apple",
		ProviderKey:    "001.abc",
		EmailConfirmed: &confirmed,
	})
	if err != nil || !res.OK() {
		t.Fatalf("expected success: res=%+v err=%v", res, err)
	}
	if tx.users[0].EmailConfirmed {
		t.Fatalf("expected caller's email confirmation to be honoured")
	}
}

func TestCreateExternalUser_Failures(t *testing.T) {
	t.Run("missing provider", func(t *testing.T) {
		svc := newTestService(t, &stubUsersStore{})
		res, err := svc.CreateExternalUser(context.Background(), CreateExternalUserInput{UserName: "bob", Email: "b@example.com", ProviderKey: "k"})
		if err != nil || res.Failure == nil || res.Failure.Code != "provider_required" {
			t.Fatalf("expected provider_required, got %+v %v", res.Failure, err)
		}
	})
	t.Run("missing provider id", func(t *testing.T) {
		svc := newTestService(t, &stubUsersStore{})
		res, err := svc.CreateExternalUser(context.Background(), CreateExternalUserInput{UserName: "bob", Email: "b@example.com", Provider: "google"})
		if err != nil || res.Failure == nil || res.Failure.Code != "provider_id_required" {
			t.Fatalf("expected provider_id_required, got %+v %v", res.Failure, err)
		}
	})
	t.Run("login already linked", func(t *testing.T) {
		users := available()
		users.externalLoginExistsFunc = func(context.Context, string, string) (bool, error) { return true, nil }
		svc := newTestService(t, users)
		res, err := svc.CreateExternalUser(context.Background(), CreateExternalUserInput{UserName: "bob", Email: "b@example.com", Provider: "google", ProviderKey: "k"})
		if err != nil || res.Failure == nil || res.Failure.Code != "external_login_taken" {
			t.Fatalf("expected external_login_taken, got %+v %v", res.Failure, err)
		}
	})
	t.Run("login race", func(t *testing.T) {
		tx := &recordingTx{userErr: domain.ErrExternalLoginTaken}
		svc := newTestService(t, committing(available(), tx))
		res, err := svc.CreateExternalUser(context.Background(), CreateExternalUserInput{UserName: "bob", Email: "b@example.com", Provider: "google", ProviderKey: "k"})
		if err != nil || res.Failure == nil || res.Failure.Code != "external_login_taken" {
			t.Fatalf("expected external_login_taken, got %+v %v", res.Failure, err)
		}
	})
}

func TestAdminCreateUser_WithPassword(t *testing.T) {
	tx := &recordingTx{}
	svc := newTestService(t, committing(available(), tx))

	res, err := svc.AdminCreateUser(context.Background(), AdminCreateUserInput{
		UserName:             "carol",
		Email:                "carol@example.com",
		Password:             "Str0ng!pass",
		PhoneNumber:          "+15550100",
		EmailConfirmed:       true,
		PhoneNumberConfirmed: true,
		IsActive:             false,
		TwoFactorEnabled:     true,
		LockoutEnabled:       false,
		CreatedBy:            "ops@example.com",
	})
	if err != nil || !res.OK() {
		t.Fatalf("expected success: res=%+v err=%v", res, err)
	}

	u := tx.users[0]
	if !u.EmailConfirmed || !u.PhoneNumberConfirmed || u.IsActive || !u.TwoFactorEnabled || u.LockoutEnabled {
		t.Fatalf("admin flags not applied: %+v", u)
	}
	if u.PhoneNumber != "+15550100" || u.CreatedBy != "ops@example.com" || u.UpdatedBy != "ops@example.com" {
		t.Fatalf("unexpected user: %+v", u)
	}
	if u.AuthKind() != domain.AuthKindPassword {
		t.Fatalf("expected password auth, got %s", u.AuthKind())
	}

	ev := decodeEvent(t, tx.messages[0])
	if ev.HasPassword == nil || !*ev.HasPassword || ev.CreatedBy != "ops@example.com" {
		t.Fatalf("unexpected admin payload: %+v", ev)
	}
}

func TestAdminCreateUser_WithProvider(t *testing.T) {
	tx := &recordingTx{}
	svc := newTestService(t, committing(available(), tx))
	svc.Hasher = &stubHasher{t: t}

	res, err := svc.AdminCreateUser(context.Background(), AdminCreateUserInput{
		UserName:    "dave",
		Email:       "dave@example.com",
		Provider:    "google",
		ProviderKey: "sub-9",
		IsActive:    true,
		CreatedBy:   "ops",
	})
	if err != nil || !res.OK() {
		t.Fatalf("expected success: res=%+v err=%v", res, err)
	}
	ev := decodeEvent(t, tx.messages[0])
	if ev.HasPassword == nil || *ev.HasPassword || ev.Provider != "google" {
		t.Fatalf("unexpected admin payload: %+v", ev)
	}
}

func TestAdminCreateUser_AuthMethodRules(t *testing.T) {
	base := AdminCreateUserInput{UserName: "erin", Email: "erin@example.com", CreatedBy: "ops"}

	cases := []struct {
		name   string
		mutate func(*AdminCreateUserInput)
		code   string
		kind   domain.FailureKind
	}{
		{"none", func(*AdminCreateUserInput) {}, "auth_method_required", domain.FailureBusinessRule},
		{"both", func(in *AdminCreateUserInput) {
			in.Password = "Str0ng!pass"
			in.Provider, in.ProviderKey = "google", "k"
		}, "auth_method_ambiguous", domain.FailureInvalidArgument},
		{"provider without key", func(in *AdminCreateUserInput) { in.Provider = "google" }, "provider_incomplete", domain.FailureInvalidArgument},
		{"key without provider", func(in *AdminCreateUserInput) {
			in.Password = "Str0ng!pass"
			in.ProviderKey = "k"
		}, "provider_incomplete", domain.FailureInvalidArgument},
		{"missing creator", func(in *AdminCreateUserInput) {
			in.Password = "Str0ng!pass"
			in.CreatedBy = " "
		}, "created_by_required", domain.FailureInvalidArgument},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := base
			tc.mutate(&in)
			svc := newTestService(t, &stubUsersStore{})
			res, err := svc.AdminCreateUser(context.Background(), in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Failure == nil || res.Failure.Code != tc.code || res.Failure.Kind != tc.kind {
				t.Fatalf("expected %s %s, got %+v", tc.code, tc.kind, res.Failure)
			}
		})
	}
}

func TestVerifyCredentials(t *testing.T) {
	id := uuid.New()
	active := domain.User{PublicID: id, IsActive: true, Auth: domain.PasswordAuth{Hash: testHash}}

	cases := []struct {
		name    string
		user    domain.User
		userErr error
		verify  bool
		wantOK  bool
	}{
		{"match", active, nil, true, true},
		{"wrong password", active, nil, false, false},
		{"unknown user", domain.User{}, domain.ErrNotFound, false, false},
		{"inactive", domain.User{PublicID: id, Auth: domain.PasswordAuth{Hash: testHash}}, nil, true, false},
		{"deleted", domain.User{PublicID: id, IsActive: true, IsDeleted: true, Auth: domain.PasswordAuth{Hash: testHash}}, nil, true, false},
		{"external only", domain.User{PublicID: id, IsActive: true, Auth: domain.ExternalAuth{Provider: "google", ProviderKey: "k"}}, nil, true, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			users := &stubUsersStore{getUserByLoginFunc: func(_ context.Context, login string) (domain.User, error) {
				if login != "ALICE@EXAMPLE.COM" {
					t.Fatalf("expected normalized login, got %q", login)
				}
				return tc.user, tc.userErr
			}}
			svc := newTestService(t, users)
			svc.Hasher = &stubHasher{t: t, verifyFunc: func(_ context.Context, _, stored string) (bool, error) {
				if stored != testHash {
					t.Fatalf("unexpected stored hash %q", stored)
				}
				return tc.verify, nil
			}}

			got, ok, err := svc.VerifyCredentials(context.Background(), " alice@example.com ", "Str0ng!pass")
			if err != nil {
				t.Fatalf("VerifyCredentials: %v", err)
			}
			if ok != tc.wantOK {
				t.Fatalf("ok: got %v want %v", ok, tc.wantOK)
			}
			if ok && got != id {
				t.Fatalf("id: got %s want %s", got, id)
			}
		})
	}
}

func TestVerifyCredentials_EmptyInput(t *testing.T) {
	svc := newTestService(t, &stubUsersStore{})
	if _, ok, err := svc.VerifyCredentials(context.Background(), " ", "x"); ok || err != nil {
		t.Fatalf("expected false for empty login")
	}
	if _, ok, err := svc.VerifyCredentials(context.Background(), "alice", ""); ok || err != nil {
		t.Fatalf("expected false for empty password")
	}
}

func TestListUserEvents_UnknownUser(t *testing.T) {
	users := &stubUsersStore{getUserByPublicIDFunc: func(context.Context, uuid.UUID) (domain.User, error) {
		return domain.User{}, domain.ErrNotFound
	}}
	svc := newTestService(t, users)
	svc.Outbox = outboxReaderFunc(func(context.Context, string, uuid.UUID) ([]domain.OutboxMessage, error) {
		t.Fatalf("outbox must not be read for unknown users")
		return nil, nil
	})

	if _, err := svc.ListUserEvents(context.Background(), uuid.New()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

type outboxReaderFunc func(context.Context, string, uuid.UUID) ([]domain.OutboxMessage, error)

func (f outboxReaderFunc) ListOutboxByAggregate(ctx context.Context, aggregateType string, id uuid.UUID) ([]domain.OutboxMessage, error) {
	return f(ctx, aggregateType, id)
}
