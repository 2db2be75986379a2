package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/croftbase/member-console/models"
	"github.com/croftbase/member-console/services"
)

// Authenticate resolves the bearer token to its user and session and stores
// both on the request context. Browsers cannot set headers on websocket
// upgrades, so a token query parameter is accepted as a fallback.
func Authenticate(sessions services.SessionService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
				return
			}

			user, session, err := sessions.Authenticate(r.Context(), token)
			if err != nil {
				switch {
				case errors.Is(err, services.ErrUserBanned):
					writeError(w, http.StatusForbidden, "forbidden", "account is banned")
				case errors.Is(err, services.ErrSessionInvalid):
					writeError(w, http.StatusUnauthorized, "unauthorized", "session is invalid or expired")
				default:
					writeError(w, http.StatusInternalServerError, "internal", "could not authenticate request")
				}
				return
			}

			ctx := withUser(r.Context(), user)
			ctx = withSession(ctx, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole gates a route group to the given roles. It must run after
// Authenticate.
func RequireRole(roles ...models.UserRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := CurrentUser(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
				return
			}
			for _, role := range roles {
				if user.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, "forbidden", "insufficient role")
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// writeError emits the standard error envelope without importing the
// handlers package.
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
