package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/kozaktomas/faceid/internal/session"
)

const sessionCookieName = "faceid_session"

// SessionManager reads and writes login credentials on HTTP requests.
// Credentials are verified by the session issuer; nothing is stored server side.
type SessionManager struct {
	issuer *session.Issuer
	secure *bool
	now    func() time.Time
}

// NewSessionManager creates a session manager. A nil secure flag marks cookies
// Secure only for requests that arrived over HTTPS.
func NewSessionManager(issuer *session.Issuer, secure *bool) *SessionManager {
	return &SessionManager{issuer: issuer, secure: secure, now: time.Now}
}

// Issuer returns the underlying session issuer.
func (sm *SessionManager) Issuer() *session.Issuer {
	return sm.issuer
}

// CredentialFromRequest returns the credential from the Authorization bearer
// header or the session cookie. An explicit bearer token wins over a cookie.
func CredentialFromRequest(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(authHeader, "Bearer "); ok {
		if token = strings.TrimSpace(token); token != "" {
			return token
		}
	}
	if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return ""
}

// GetSessionFromRequest verifies the request credential.
func (sm *SessionManager) GetSessionFromRequest(r *http.Request) (*session.Session, string, error) {
	cred := CredentialFromRequest(r)
	if cred == "" {
		return nil, "", session.ErrSignatureInvalid
	}
	s, err := sm.issuer.Verify(r.Context(), cred)
	if err != nil {
		return nil, "", err
	}
	return s, cred, nil
}

// Revoke blocks s if the issuer has a revocation list.
func (sm *SessionManager) Revoke(ctx context.Context, s *session.Session) error {
	return sm.issuer.Revoke(ctx, s)
}

func (sm *SessionManager) isSecure(r *http.Request) bool {
	if sm.secure != nil {
		return *sm.secure
	}
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

// SetSessionCookie stores credential in an HttpOnly cookie that expires with the session.
func (sm *SessionManager) SetSessionCookie(w http.ResponseWriter, r *http.Request, credential string, s *session.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    credential,
		Path:     "/",
		HttpOnly: true,
		Secure:   sm.isSecure(r),
		SameSite: http.SameSiteLaxMode,
		Expires:  s.ExpiresAt,
		MaxAge:   max(int(s.ExpiresAt.Sub(sm.now()).Seconds()), 1),
	})
}

// ClearSessionCookie removes the session cookie
func (sm *SessionManager) ClearSessionCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   sm.isSecure(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}
