package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

// Middleware authenticates every request and enforces the role required for
// the method. A nil Authenticator disables auth entirely (mode=disabled).
type Middleware struct {
	Logger        *slog.Logger
	Authenticator Authenticator
	SkipPrefixes  []string
}

func (m Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, prefix := range m.SkipPrefixes {
			if strings.HasPrefix(r.URL.Path, prefix) {
				next.ServeHTTP(w, r)
				return
			}
		}

		if m.Authenticator == nil {
			next.ServeHTTP(w, r)
			return
		}

		identity, err := m.Authenticator.Authenticate(r.Context(), r)
		if err != nil {
			if m.Logger != nil {
				m.Logger.Info("authentication failed", "path", r.URL.Path, "error", err)
			}
			writeAuthError(w, http.StatusUnauthorized, "unauthenticated")
			return
		}

		required := RequiredRoleForRequest(r)
		if !HasAtLeast(identity.Roles, required) {
			if m.Logger != nil {
				m.Logger.Info("authorization denied",
					"path", r.URL.Path,
					"subject", identity.Subject,
					"required_role", required,
				)
			}
			writeAuthError(w, http.StatusForbidden, "forbidden")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
	})
}

func writeAuthError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": code})
}
