package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"HoneyHubUsers/internal/auth"
	"HoneyHubUsers/internal/metrics"
	"HoneyHubUsers/internal/service"
)

type RouterOpts struct {
	Logger *slog.Logger
	IsProd bool

	DBPing func(context.Context) error

	Users   *service.ProvisioningService
	Metrics *metrics.Metrics

	// InternalToken protects service-to-service routes; empty disables them.
	InternalToken string

	GoogleClientID string
	AppleServiceID string
	VerifyGoogle   auth.IDTokenVerifier
	VerifyApple    auth.IDTokenVerifier
}

func NewRouter(opts RouterOpts) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.VerifyGoogle == nil {
		opts.VerifyGoogle = auth.VerifyGoogleIDToken
	}
	if opts.VerifyApple == nil {
		opts.VerifyApple = auth.VerifyAppleIDToken
	}

	api := &api{
		logger:         logger,
		isProd:         opts.IsProd,
		dbPing:         opts.DBPing,
		usersSvc:       opts.Users,
		internalToken:  strings.TrimSpace(opts.InternalToken),
		googleClientID: strings.TrimSpace(opts.GoogleClientID),
		appleServiceID: strings.TrimSpace(opts.AppleServiceID),
		verifyGoogle:   opts.VerifyGoogle,
		verifyApple:    opts.VerifyApple,
		verifyLimiter:  newAttemptLimiter(5*time.Minute, 10),
	}

	publicMux := http.NewServeMux()
	apiMux := http.NewServeMux()

	publicMux.HandleFunc("GET /healthz", api.handleHealthz)
	publicMux.Handle("GET /metrics", opts.Metrics.Handler())

	if api.usersSvc == nil {
		apiMux.HandleFunc("POST /v1/users", handleNotImplemented)
		apiMux.HandleFunc("POST /v1/users/external", handleNotImplemented)
		apiMux.HandleFunc("POST /v1/users/external/google", handleNotImplemented)
		apiMux.HandleFunc("POST /v1/users/external/apple", handleNotImplemented)
		apiMux.HandleFunc("POST /v1/users/admin", handleNotImplemented)
	} else {
		apiMux.HandleFunc("POST /v1/users", api.handleCreatePasswordUser)
		apiMux.HandleFunc("POST /v1/users/external", api.requireInternal(api.handleCreateExternalUser))
		apiMux.HandleFunc("POST /v1/users/external/google", api.handleCreateGoogleUser)
		apiMux.HandleFunc("POST /v1/users/external/apple", api.handleCreateAppleUser)
		apiMux.HandleFunc("POST /v1/users/admin", api.requireInternal(api.handleAdminCreateUser))
		apiMux.HandleFunc("POST /v1/users/credentials/verify", api.requireInternal(api.handleVerifyCredentials))
		apiMux.HandleFunc("GET /v1/users/{id}", api.requireInternal(api.handleGetUser))
		apiMux.HandleFunc("GET /v1/users/{id}/events", api.requireInternal(api.handleListUserEvents))
	}

	dispatch := func(mux *http.ServeMux, notFound http.HandlerFunc) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Handler only resolves the pattern; ServeHTTP also sets path values.
			_, pattern := mux.Handler(r)
			if pattern == "" && notFound != nil {
				notFound(w, r)
				return
			}
			setRoute(r.Context(), pattern)
			mux.ServeHTTP(w, r)
		})
	}
	apiHandler := dispatch(apiMux, handleV1NotFound)
	publicHandler := dispatch(publicMux, nil)

	root := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/v1/") || r.URL.Path == "/v1" {
			apiHandler.ServeHTTP(w, r)
			return
		}
		publicHandler.ServeHTTP(w, r)
	})

	var h http.Handler = root
	h = RequestLogger(logger, opts.Metrics)(h)
	h = Correlation()(h)
	h = Recoverer(logger, opts.IsProd)(h)
	return h
}

func handleNotImplemented(w http.ResponseWriter, _ *http.Request) {
	WriteError(w, http.StatusNotImplemented, "not_implemented", "not implemented")
}

func handleV1NotFound(w http.ResponseWriter, _ *http.Request) {
	WriteError(w, http.StatusNotFound, "not_found", "not found")
}

type api struct {
	logger *slog.Logger
	isProd bool

	dbPing func(context.Context) error

	usersSvc      *service.ProvisioningService
	internalToken string

	googleClientID string
	appleServiceID string
	verifyGoogle   auth.IDTokenVerifier
	verifyApple    auth.IDTokenVerifier

	verifyLimiter *attemptLimiter
}

func (a *api) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	if a.dbPing != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 1*time.Second)
		defer cancel()
		if err := a.dbPing(ctx); err != nil {
			a.logger.Warn("health check failed", "err", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("db down"))
			return
		}
	}

	_, _ = w.Write([]byte("ok"))
}
