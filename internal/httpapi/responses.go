package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"HoneyHubUsers/internal/domain"
)

type errorEnvelope struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, errorEnvelope{Error: apiError{Code: code, Message: message}})
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteFailure maps a rejected provisioning request onto a client error.
func WriteFailure(w http.ResponseWriter, f *domain.Failure) {
	WriteError(w, failureStatus(f), f.Code, f.Message)
}

func failureStatus(f *domain.Failure) int {
	if f.Kind == domain.FailureInvalidArgument {
		return http.StatusBadRequest
	}
	switch f.Code {
	case "username_taken", "email_taken", "external_login_taken":
		return http.StatusConflict
	default:
		return http.StatusUnprocessableEntity
	}
}

func WriteDomainError(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	var rerr *domain.RuleError

	switch {
	case errors.As(err, &verr):
		WriteJSON(w, http.StatusBadRequest, errorEnvelope{Error: apiError{
			Code:    "validation_error",
			Message: "invalid request",
			Fields:  verr.Fields,
		}})
	case errors.As(err, &rerr):
		WriteFailure(w, &rerr.Failure)
	case errors.Is(err, domain.ErrUsernameTaken):
		WriteError(w, http.StatusConflict, "username_taken", "username already taken")
	case errors.Is(err, domain.ErrEmailTaken):
		WriteError(w, http.StatusConflict, "email_taken", "email already taken")
	case errors.Is(err, domain.ErrExternalLoginTaken):
		WriteError(w, http.StatusConflict, "external_login_taken", "external login already linked")
	case errors.Is(err, domain.ErrInvalidArgument):
		WriteError(w, http.StatusBadRequest, "invalid_argument", "invalid argument")
	case errors.Is(err, domain.ErrUnauthorized):
		WriteError(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
	case errors.Is(err, domain.ErrNotFound):
		WriteError(w, http.StatusNotFound, "not_found", "not found")
	default:
		WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
