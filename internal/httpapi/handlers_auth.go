package httpapi

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"HoneyHubUsers/internal/auth"
	"HoneyHubUsers/internal/domain"
	"HoneyHubUsers/internal/service"
)

type idTokenUserRequest struct {
	IDToken     string `json:"id_token" validate:"required"`
	Username    string `json:"username" validate:"omitempty,min=3,max=256,username_chars"`
	PhoneNumber string `json:"phone_number" validate:"omitempty,max=32,e164"`
}

func (a *api) handleCreateGoogleUser(w http.ResponseWriter, r *http.Request) {
	a.createFromIDToken(w, r, auth.ProviderGoogle, "Google", a.googleClientID, a.verifyGoogle)
}

func (a *api) handleCreateAppleUser(w http.ResponseWriter, r *http.Request) {
	a.createFromIDToken(w, r, auth.ProviderApple, "Apple", a.appleServiceID, a.verifyApple)
}

// createFromIDToken provisions an external user from a verified provider
// token. The provider's subject becomes the login key.
func (a *api) createFromIDToken(w http.ResponseWriter, r *http.Request, provider, displayName, audience string, verify auth.IDTokenVerifier) {
	if audience == "" {
		handleNotImplemented(w, r)
		return
	}

	var req idTokenUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_json", "invalid json")
		return
	}
	req.IDToken = strings.TrimSpace(req.IDToken)
	req.Username = strings.TrimSpace(req.Username)
	req.PhoneNumber = strings.TrimSpace(req.PhoneNumber)
	if err := validateRequest(req); err != nil {
		WriteDomainError(w, err)
		return
	}

	claims, err := verify(r.Context(), req.IDToken, audience)
	if err != nil {
		a.logger.Info("id token rejected", "provider", provider, "err", err)
		WriteError(w, http.StatusUnauthorized, "invalid_token", "invalid id token")
		return
	}
	if claims.Email == "" {
		WriteDomainError(w, domain.NewValidationError(map[string]string{"id_token": "provider did not supply an email"}))
		return
	}

	in := service.CreateExternalUserInput{
		UserName:            req.Username,
		Email:               claims.Email,
		Provider:            provider,
		ProviderKey:         claims.Subject,
		ProviderDisplayName: displayName,
		PhoneNumber:         req.PhoneNumber,
		EmailConfirmed:      &claims.EmailVerified,
	}
	derived := in.UserName == ""
	if derived {
		in.UserName = usernameFromEmail(claims.Email)
	}

	res, err := a.usersSvc.CreateExternalUser(r.Context(), in)
	// A derived name that is already taken gets one retry with a random
	// suffix; a name the caller chose is reported as a conflict.
	if err == nil && derived && res.Failure != nil && res.Failure.Code == "username_taken" {
		in.UserName = withUsernameSuffix(in.UserName)
		res, err = a.usersSvc.CreateExternalUser(r.Context(), in)
	}
	a.writeCreated(w, res, err)
}

const (
	minDerivedUsername = 3
	maxDerivedUsername = 240
)

// usernameFromEmail keeps the allowed characters of the address's local part,
// padded to the minimum username length.
func usernameFromEmail(email string) string {
	local, _, _ := strings.Cut(email, "@")
	var b strings.Builder
	for _, r := range local {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		}
	}
	name := b.String()
	switch {
	case name == "":
		return "user"
	case len(name) < minDerivedUsername:
		return name + "-user"
	case len(name) > maxDerivedUsername:
		return name[:maxDerivedUsername]
	}
	return name
}

func withUsernameSuffix(name string) string {
	return name + "-" + uuid.NewString()[:6]
}
