package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"HoneyHubUsers/internal/domain"
	"HoneyHubUsers/internal/service"
)

type createPasswordUserRequest struct {
	Username           string `json:"username" validate:"required,min=3,max=256,username_chars"`
	Email              string `json:"email" validate:"required,email,max=256"`
	Password           string `json:"password" validate:"required,min=8,max=128,password_strength"`
	PhoneNumber        string `json:"phone_number" validate:"omitempty,max=32,e164"`
	SubscriptionPlanID *int64 `json:"subscription_plan_id" validate:"omitempty,gt=0"`
}

type createExternalUserRequest struct {
	Username            string `json:"username" validate:"required,max=256,username_chars"`
	Email               string `json:"email" validate:"required,email,max=256"`
	Provider            string `json:"provider" validate:"required,max=100"`
	ProviderID          string `json:"provider_id" validate:"required,max=512"`
	ProviderDisplayName string `json:"provider_display_name" validate:"omitempty,max=100"`
	PhoneNumber         string `json:"phone_number" validate:"omitempty,max=32,e164"`
	EmailConfirmed      *bool  `json:"email_confirmed"`
	SubscriptionPlanID  *int64 `json:"subscription_plan_id" validate:"omitempty,gt=0"`
}

type adminCreateUserRequest struct {
	Username            string `json:"username" validate:"required,max=256,username_chars"`
	Email               string `json:"email" validate:"required,email,max=256"`
	Password            string `json:"password" validate:"omitempty,min=8,max=128,password_strength"`
	Provider            string `json:"provider" validate:"omitempty,max=100"`
	ProviderID          string `json:"provider_id" validate:"omitempty,max=512"`
	ProviderDisplayName string `json:"provider_display_name" validate:"omitempty,max=100"`
	PhoneNumber         string `json:"phone_number" validate:"omitempty,max=32,e164"`

	EmailConfirmed       bool  `json:"email_confirmed"`
	PhoneNumberConfirmed bool  `json:"phone_number_confirmed"`
	IsActive             *bool `json:"is_active"`
	TwoFactorEnabled     bool  `json:"two_factor_enabled"`
	LockoutEnabled       *bool `json:"lockout_enabled"`

	SubscriptionPlanID *int64 `json:"subscription_plan_id" validate:"omitempty,gt=0"`
	CreatedBy          string `json:"created_by" validate:"required,max=100"`
}

type createdResponse struct {
	ID uuid.UUID `json:"id"`
}

func (a *api) handleCreatePasswordUser(w http.ResponseWriter, r *http.Request) {
	var req createPasswordUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_json", "invalid json")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	req.PhoneNumber = strings.TrimSpace(req.PhoneNumber)
	if err := validateRequest(req); err != nil {
		WriteDomainError(w, err)
		return
	}

	res, err := a.usersSvc.CreatePasswordUser(r.Context(), service.CreatePasswordUserInput{
		UserName:           req.Username,
		Email:              req.Email,
		Password:           req.Password,
		PhoneNumber:        req.PhoneNumber,
		SubscriptionPlanID: req.SubscriptionPlanID,
	})
	a.writeCreated(w, res, err)
}

func (a *api) handleCreateExternalUser(w http.ResponseWriter, r *http.Request) {
	var req createExternalUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_json", "invalid json")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	req.Provider = strings.TrimSpace(req.Provider)
	req.ProviderID = strings.TrimSpace(req.ProviderID)
	req.PhoneNumber = strings.TrimSpace(req.PhoneNumber)
	if err := validateRequest(req); err != nil {
		WriteDomainError(w, err)
		return
	}

	res, err := a.usersSvc.CreateExternalUser(r.Context(), service.CreateExternalUserInput{
		UserName:            req.Username,
		Email:               req.Email,
		Provider:            req.Provider,
		ProviderKey:         req.ProviderID,
		ProviderDisplayName: req.ProviderDisplayName,
		PhoneNumber:         req.PhoneNumber,
		EmailConfirmed:      req.EmailConfirmed,
		SubscriptionPlanID:  req.SubscriptionPlanID,
	})
	a.writeCreated(w, res, err)
}

func (a *api) handleAdminCreateUser(w http.ResponseWriter, r *http.Request) {
	var req adminCreateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_json", "invalid json")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	req.Provider = strings.TrimSpace(req.Provider)
	req.ProviderID = strings.TrimSpace(req.ProviderID)
	req.PhoneNumber = strings.TrimSpace(req.PhoneNumber)
	req.CreatedBy = strings.TrimSpace(req.CreatedBy)
	if err := validateRequest(req); err != nil {
		WriteDomainError(w, err)
		return
	}

	res, err := a.usersSvc.AdminCreateUser(r.Context(), service.AdminCreateUserInput{
		UserName:             req.Username,
		Email:                req.Email,
		Password:             req.Password,
		Provider:             req.Provider,
		ProviderKey:          req.ProviderID,
		ProviderDisplayName:  req.ProviderDisplayName,
		PhoneNumber:          req.PhoneNumber,
		EmailConfirmed:       req.EmailConfirmed,
		PhoneNumberConfirmed: req.PhoneNumberConfirmed,
		IsActive:             boolOr(req.IsActive, true),
		TwoFactorEnabled:     req.TwoFactorEnabled,
		LockoutEnabled:       boolOr(req.LockoutEnabled, true),
		SubscriptionPlanID:   req.SubscriptionPlanID,
		CreatedBy:            req.CreatedBy,
	})
	a.writeCreated(w, res, err)
}

func (a *api) writeCreated(w http.ResponseWriter, res service.Result, err error) {
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	if res.Failure != nil {
		WriteFailure(w, res.Failure)
		return
	}
	w.Header().Set("Location", "/v1/users/"+res.PublicID.String())
	WriteJSON(w, http.StatusCreated, createdResponse{ID: res.PublicID})
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

type userResponse struct {
	ID                   uuid.UUID  `json:"id"`
	Username             string     `json:"username"`
	Email                string     `json:"email"`
	EmailConfirmed       bool       `json:"email_confirmed"`
	PhoneNumber          string     `json:"phone_number,omitempty"`
	PhoneNumberConfirmed bool       `json:"phone_number_confirmed"`
	TwoFactorEnabled     bool       `json:"two_factor_enabled"`
	LockoutEnabled       bool       `json:"lockout_enabled"`
	IsActive             bool       `json:"is_active"`
	AuthMethod           string     `json:"auth_method"`
	Provider             string     `json:"provider,omitempty"`
	SubscriptionPlanID   int64      `json:"subscription_plan_id"`
	LastLoginAt          *time.Time `json:"last_login_at,omitempty"`
	CreatedBy            string     `json:"created_by"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

func writeUser(w http.ResponseWriter, status int, u domain.User) {
	resp := userResponse{
		ID:                   u.PublicID,
		Username:             u.UserName,
		Email:                u.Email,
		EmailConfirmed:       u.EmailConfirmed,
		PhoneNumber:          u.PhoneNumber,
		PhoneNumberConfirmed: u.PhoneNumberConfirmed,
		TwoFactorEnabled:     u.TwoFactorEnabled,
		LockoutEnabled:       u.LockoutEnabled,
		IsActive:             u.IsActive,
		AuthMethod:           string(u.AuthKind()),
		SubscriptionPlanID:   u.SubscriptionPlanID,
		LastLoginAt:          u.LastLoginAt,
		CreatedBy:            u.CreatedBy,
		CreatedAt:            u.CreatedAt,
		UpdatedAt:            u.UpdatedAt,
	}
	if login, ok := u.ExternalLogin(); ok {
		resp.Provider = login.Provider
	}
	WriteJSON(w, status, resp)
}

func (a *api) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		WriteDomainError(w, domain.NewValidationError(map[string]string{"id": "must be a uuid"}))
		return
	}

	u, err := a.usersSvc.GetUser(r.Context(), id)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeUser(w, http.StatusOK, u)
}

type eventResponse struct {
	ID            uuid.UUID       `json:"id"`
	EventType     string          `json:"event_type"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   uuid.UUID       `json:"aggregate_id"`
	Payload       json.RawMessage `json:"payload"`
	Status        string          `json:"status"`
	Attempts      int             `json:"attempts"`
	OccurredAt    time.Time       `json:"occurred_at"`
	AvailableAt   time.Time       `json:"available_at"`
	CorrelationID *uuid.UUID      `json:"correlation_id,omitempty"`
	CausationID   *uuid.UUID      `json:"causation_id,omitempty"`
}

func (a *api) handleListUserEvents(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		WriteDomainError(w, domain.NewValidationError(map[string]string{"id": "must be a uuid"}))
		return
	}

	msgs, err := a.usersSvc.ListUserEvents(r.Context(), id)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	out := make([]eventResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, eventResponse{
			ID:            m.PublicID,
			EventType:     m.EventType,
			AggregateType: m.AggregateType,
			AggregateID:   m.AggregatePublicID,
			Payload:       m.Payload,
			Status:        m.Status.String(),
			Attempts:      m.Attempts,
			OccurredAt:    m.OccurredAt,
			AvailableAt:   m.AvailableAt,
			CorrelationID: m.CorrelationID,
			CausationID:   m.CausationID,
		})
	}
	WriteJSON(w, http.StatusOK, map[string]any{"events": out})
}

type verifyCredentialsRequest struct {
	Login    string `json:"login" validate:"required,max=256"`
	Password string `json:"password" validate:"required,max=128"`
}

func (a *api) handleVerifyCredentials(w http.ResponseWriter, r *http.Request) {
	var req verifyCredentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_json", "invalid json")
		return
	}
	req.Login = strings.TrimSpace(req.Login)
	if err := validateRequest(req); err != nil {
		WriteDomainError(w, err)
		return
	}

	loginKey := "login:" + domain.Normalize(req.Login)
	now := time.Now()
	if !a.verifyLimiter.Allow("ip:"+clientIP(r), now) || !a.verifyLimiter.Allow(loginKey, now) {
		WriteError(w, http.StatusTooManyRequests, "rate_limited", "too many attempts")
		return
	}

	id, ok, err := a.usersSvc.VerifyCredentials(r.Context(), req.Login, req.Password)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	if !ok {
		WriteError(w, http.StatusUnauthorized, "invalid_credentials", "invalid login or password")
		return
	}
	a.verifyLimiter.Reset(loginKey)
	WriteJSON(w, http.StatusOK, createdResponse{ID: id})
}
