package httpx

import (
	"context"
	"net/http"
	"strings"
)

// requesterKey is an unexported context key type to avoid collisions across packages.
type requesterKey struct{}

// maxRequesterLen bounds the principal taken from the requester header.
const maxRequesterLen = 255

// SetRequesterInContext returns a child context that carries the requester principal.
// If requester is empty, the original ctx is returned unchanged.
func SetRequesterInContext(ctx context.Context, requester string) context.Context {
	if requester == "" {
		return ctx
	}
	return context.WithValue(ctx, requesterKey{}, requester)
}

// RequesterFromContext returns the requester principal and a boolean indicating presence.
func RequesterFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requesterKey{}).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// DefaultRequesterHeader is read when no requester header is configured.
const DefaultRequesterHeader = "X-Requested-By"

// Requester returns a middleware that copies the principal asserted by the fronting proxy in
// header into the request context. Authentication happens before this service.
func Requester(header string) Middleware {
	if header == "" {
		header = DefaultRequesterHeader
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			v := strings.TrimSpace(r.Header.Get(header))
			if len(v) > maxRequesterLen {
				v = v[:maxRequesterLen]
			}
			next.ServeHTTP(w, r.WithContext(SetRequesterInContext(r.Context(), v)))
		})
	}
}
