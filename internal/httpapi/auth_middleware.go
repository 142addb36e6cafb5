package httpapi

import (
	"crypto/subtle"
	"net"
	"net/http"
	"strings"

	"HoneyHubUsers/internal/domain"
)

const headerInternalToken = "X-Internal-Token"

// requireInternal guards service-to-service routes. Without a configured
// token the routes are disabled rather than open.
func (a *api) requireInternal(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if a.internalToken == "" {
			handleNotImplemented(w, r)
			return
		}

		got := strings.TrimSpace(r.Header.Get(headerInternalToken))
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(a.internalToken)) != 1 {
			WriteDomainError(w, domain.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	}
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
