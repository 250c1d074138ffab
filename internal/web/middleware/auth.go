package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"

	"github.com/kozaktomas/faceid/internal/session"
)

type contextKey string

const (
	sessionContextKey    contextKey = "session"
	credentialContextKey contextKey = "credential"
)

// RequireAuth is middleware that requires a valid session
func RequireAuth(sm *SessionManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, cred, err := sm.GetSessionFromRequest(r)
			if err != nil {
				if isAuthError(err) {
					slog.DebugContext(r.Context(), "request not authenticated", "reason", err.Error())
					writeJSONError(w, http.StatusUnauthorized, "unauthorized")
					return
				}
				slog.ErrorContext(r.Context(), "session verification failed", "error", err)
				writeJSONError(w, http.StatusServiceUnavailable, "service unavailable")
				return
			}

			ctx := SetSessionInContext(r.Context(), s)
			ctx = context.WithValue(ctx, credentialContextKey, cred)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects authenticated sessions whose role is not listed.
// It must run after RequireAuth.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s := GetSessionFromContext(r.Context())
			if s == nil {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if !slices.Contains(roles, s.Role) {
				writeJSONError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isAuthError(err error) bool {
	return errors.Is(err, session.ErrSignatureInvalid) ||
		errors.Is(err, session.ErrSessionExpired) ||
		errors.Is(err, session.ErrRevoked)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + message + `"}`))
}

// GetSessionFromContext retrieves the session from the request context
func GetSessionFromContext(ctx context.Context) *session.Session {
	s, ok := ctx.Value(sessionContextKey).(*session.Session)
	if !ok {
		return nil
	}
	return s
}

// GetCredentialFromContext returns the credential RequireAuth verified.
func GetCredentialFromContext(ctx context.Context) string {
	cred, _ := ctx.Value(credentialContextKey).(string)
	return cred
}

// SetSessionInContext adds a session to the context.
// This is primarily for testing - use RequireAuth middleware in production.
func SetSessionInContext(ctx context.Context, s *session.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, s)
}
