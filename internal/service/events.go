package service

import (
	"time"

	"github.com/google/uuid"

	"HoneyHubUsers/internal/domain"
)

const (
	EventUserCreated = "users.user.created"
	AggregateUser    = "User"
)

// UserCreatedEvent is the outbox payload for a newly provisioned account. It
// never carries the password or its hash.
type UserCreatedEvent struct {
	UserID             uuid.UUID       `json:"userId"`
	Username           string          `json:"username"`
	Email              string          `json:"email"`
	NormalizedUsername string          `json:"normalizedUsername"`
	NormalizedEmail    string          `json:"normalizedEmail"`
	AuthMethod         domain.AuthKind `json:"authMethod"`
	EmailConfirmed     bool            `json:"emailConfirmed"`
	SubscriptionPlanID int64           `json:"subscriptionPlanId"`
	CreatedAt          time.Time       `json:"createdAt"`
	Provider           string          `json:"provider,omitempty"`
	ProviderID         string          `json:"providerId,omitempty"`
	HasPassword        *bool           `json:"hasPassword,omitempty"`
	CreatedBy          string          `json:"createdBy,omitempty"`
}

func newUserCreatedEvent(u *domain.User) UserCreatedEvent {
	ev := UserCreatedEvent{
		UserID:             u.PublicID,
		Username:           u.UserName,
		Email:              u.Email,
		NormalizedUsername: u.NormalizedUserName,
		NormalizedEmail:    u.NormalizedEmail,
		AuthMethod:         u.AuthKind(),
		EmailConfirmed:     u.EmailConfirmed,
		SubscriptionPlanID: u.SubscriptionPlanID,
		CreatedAt:          u.CreatedAt,
	}
	if login, ok := u.ExternalLogin(); ok {
		ev.Provider = login.Provider
		ev.ProviderID = login.ProviderKey
	}
	return ev
}
