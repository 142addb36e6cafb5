package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"HoneyHubUsers/internal/metrics"
	"HoneyHubUsers/internal/pkg/reqctx"
)

const (
	headerRequestID     = "X-Request-Id"
	headerCorrelationID = "X-Correlation-Id"
	headerCausationID   = "X-Causation-Id"
)

type ctxKey int

const routeKey ctxKey = iota

// routeInfo is filled in by the router once a pattern has matched so that
// outer middleware can label requests without high-cardinality paths.
type routeInfo struct {
	pattern string
}

func setRoute(ctx context.Context, pattern string) {
	if ri, ok := ctx.Value(routeKey).(*routeInfo); ok {
		ri.pattern = pattern
	}
}

// Correlation puts the request's correlation and causation ids on the context.
// A missing or non-UUID correlation header is replaced with a fresh id.
func Correlation() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			corr, ok := parseUUIDHeader(r, headerCorrelationID)
			if !ok {
				corr, ok = parseUUIDHeader(r, headerRequestID)
			}
			if !ok {
				corr = uuid.New()
			}
			w.Header().Set(headerRequestID, corr.String())
			w.Header().Set(headerCorrelationID, corr.String())

			ctx := reqctx.WithCorrelationID(r.Context(), corr)
			if cause, ok := parseUUIDHeader(r, headerCausationID); ok {
				ctx = reqctx.WithCausationID(ctx, cause)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func parseUUIDHeader(r *http.Request, name string) (uuid.UUID, bool) {
	v := strings.TrimSpace(r.Header.Get(name))
	if v == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(v)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

func RequestLogger(logger *slog.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: 200}
			ri := &routeInfo{}

			next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), routeKey, ri)))

			elapsed := time.Since(start)
			route := ri.pattern
			if route == "" {
				route = "unmatched"
			}
			m.ObserveHTTP(r.Method, route, rec.status, elapsed)

			fields := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"route", route,
				"status", rec.status,
				"bytes", rec.bytes,
				"duration_ms", elapsed.Milliseconds(),
			}
			if id := reqctx.CorrelationID(r.Context()); id != nil {
				fields = append(fields, "correlation_id", id.String())
			}
			logger.Info("http request", fields...)
		})
	}
}

func Recoverer(logger *slog.Logger, isProd bool) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if isProd {
						logger.Error("panic", "panic", rec)
					} else {
						logger.Error("panic", "panic", rec, "stack", string(debug.Stack()))
					}
					WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error")
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.status = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	n, err := r.ResponseWriter.Write(p)
	r.bytes += n
	return n, err
}
