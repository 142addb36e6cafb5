package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultSubscriptionPlanID is the plan assigned when a request names none.
const DefaultSubscriptionPlanID int64 = 1

// Audit is embedded by every persisted aggregate.
type Audit struct {
	ID        int64
	CreatedBy string
	CreatedAt time.Time
	UpdatedBy string
	UpdatedAt time.Time
}

func (a *Audit) Stamp(by string, at time.Time) {
	a.CreatedBy = by
	a.CreatedAt = at
	a.UpdatedBy = by
	a.UpdatedAt = at
}

type AuthKind string

const (
	AuthKindNone     AuthKind = "none"
	AuthKindPassword AuthKind = "password"
	AuthKindExternal AuthKind = "external"
)

// AuthMethod is one of PasswordAuth, ExternalAuth or NoAuth.
type AuthMethod interface {
	Kind() AuthKind
	isAuthMethod()
}

// PasswordAuth carries the stored credential in "salt:hash" form.
type PasswordAuth struct {
	Hash string
}

type ExternalAuth struct {
	Provider    string
	ProviderKey string
	DisplayName string
}

type NoAuth struct{}

func (PasswordAuth) Kind() AuthKind { return AuthKindPassword }
func (ExternalAuth) Kind() AuthKind { return AuthKindExternal }
func (NoAuth) Kind() AuthKind       { return AuthKindNone }

func (PasswordAuth) isAuthMethod() {}
func (ExternalAuth) isAuthMethod() {}
func (NoAuth) isAuthMethod()       {}

type User struct {
	Audit

	PublicID           uuid.UUID
	UserName           string
	NormalizedUserName string
	Email              string
	NormalizedEmail    string
	EmailConfirmed     bool

	Auth AuthMethod

	SecurityStamp    string
	ConcurrencyStamp string

	PhoneNumber          string
	PhoneNumberConfirmed bool
	TwoFactorEnabled     bool
	LockoutEnabled       bool
	AccessFailedCount    int
	IsActive             bool
	IsDeleted            bool
	SubscriptionPlanID   int64
	LastLoginAt          *time.Time
}

// AuthKind reports the variant of u.Auth, treating nil as none.
func (u User) AuthKind() AuthKind {
	if u.Auth == nil {
		return AuthKindNone
	}
	return u.Auth.Kind()
}

func (u User) PasswordHash() (string, bool) {
	p, ok := u.Auth.(PasswordAuth)
	if !ok || p.Hash == "" {
		return "", false
	}
	return p.Hash, true
}

func (u User) ExternalLogin() (ExternalLogin, bool) {
	e, ok := u.Auth.(ExternalAuth)
	if !ok {
		return ExternalLogin{}, false
	}
	return ExternalLogin{
		Provider:    e.Provider,
		ProviderKey: e.ProviderKey,
		DisplayName: e.DisplayName,
		UserID:      u.ID,
	}, true
}

// ExternalLogin links a provider identity (Provider, ProviderKey) to one user.
type ExternalLogin struct {
	Provider    string
	ProviderKey string
	DisplayName string
	UserID      int64
}

type SubscriptionPlan struct {
	Audit

	Name        string
	DisplayName string
	IsActive    bool
	IsDefault   bool
}

// Normalize produces the case-insensitive lookup form of a username or email.
func Normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
