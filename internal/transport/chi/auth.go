package chi

import (
	"context"
	"net/http"
	"strings"

	"github.com/hexleaf/kbsearch/internal/domain"
)

// Credential binds an API key to the caller it authenticates as.
type Credential struct {
	Key    string
	Caller domain.Caller
}

type callerContextKey struct{}

// CallerFromContext returns the authenticated caller, or a zero Caller
// when the request never passed the auth middleware.
func CallerFromContext(ctx context.Context) domain.Caller {
	caller, _ := ctx.Value(callerContextKey{}).(domain.Caller)
	return caller
}

// localCaller is injected when no credentials are configured, so local
// development works without an auth setup.
var localCaller = domain.Caller{UserID: "local", WorkspaceID: "local"}

// BearerAuthMiddleware authenticates requests with a Bearer token and
// attaches the matching caller to the request context. Probe endpoints
// stay open. With no credentials configured every request runs as the
// local caller.
func BearerAuthMiddleware(credentials []Credential) func(http.Handler) http.Handler {
	exemptPaths := map[string]bool{
		"/health":  true,
		"/metrics": true,
	}

	byKey := make(map[string]domain.Caller, len(credentials))
	for _, c := range credentials {
		if c.Key != "" {
			byKey[c.Key] = c.Caller
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if exemptPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			if len(byKey) == 0 {
				next.ServeHTTP(w, r.WithContext(
					context.WithValue(r.Context(), callerContextKey{}, localCaller)))
				return
			}

			auth := r.Header.Get("Authorization")
			if auth == "" {
				writeError(w, http.StatusUnauthorized, codeUnauthorized, "Missing Authorization header")
				return
			}

			token, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok {
				writeError(w, http.StatusUnauthorized, codeUnauthorized, "Invalid Authorization header format")
				return
			}

			caller, ok := byKey[token]
			if !ok {
				writeError(w, http.StatusUnauthorized, codeUnauthorized, "Invalid API key")
				return
			}

			next.ServeHTTP(w, r.WithContext(
				context.WithValue(r.Context(), callerContextKey{}, caller)))
		})
	}
}
