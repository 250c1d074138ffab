package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kozaktomas/faceid/internal/session"
)

var testSecret = []byte("middleware-test-secret-0123456789")

func newTestManager(t *testing.T, opts ...session.Option) (*SessionManager, *session.Issuer) {
	t.Helper()
	issuer, err := session.NewIssuer(testSecret, opts...)
	if err != nil {
		t.Fatalf("NewIssuer() error = %v", err)
	}
	return NewSessionManager(issuer, nil), issuer
}

func issue(t *testing.T, issuer *session.Issuer, role string, ttl time.Duration) (string, *session.Session) {
	t.Helper()
	cred, s, err := issuer.Issue("owner-1", role, "owner@example.com", ttl)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	return cred, s
}

func TestSessionManager_SetAndGetSessionCookie(t *testing.T) {
	sm, issuer := newTestManager(t)
	cred, s := issue(t, issuer, "member", time.Hour)

	w := httptest.NewRecorder()
	sm.SetSessionCookie(w, httptest.NewRequest(http.MethodPost, "/", nil), cred, s)

	cookies := w.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected 1 cookie, got %d", len(cookies))
	}
	cookie := cookies[0]
	if cookie.Name != sessionCookieName {
		t.Errorf("cookie name = %s, want %s", cookie.Name, sessionCookieName)
	}
	if !cookie.HttpOnly {
		t.Error("cookie should be HttpOnly")
	}
	if cookie.Secure {
		t.Error("cookie should not be Secure on plain HTTP")
	}
	if cookie.MaxAge <= 0 || cookie.MaxAge > 3601 {
		t.Errorf("unexpected MaxAge %d", cookie.MaxAge)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	got, gotCred, err := sm.GetSessionFromRequest(req)
	if err != nil {
		t.Fatalf("GetSessionFromRequest() error = %v", err)
	}
	if got.ID != s.ID || gotCred != cred {
		t.Errorf("session mismatch: got %s, want %s", got.ID, s.ID)
	}
}

func TestSessionManager_SecureCookie(t *testing.T) {
	_, issuer := newTestManager(t)
	cred, s := issue(t, issuer, "member", time.Hour)

	forwarded := httptest.NewRequest(http.MethodPost, "/", nil)
	forwarded.Header.Set("X-Forwarded-Proto", "https")

	w := httptest.NewRecorder()
	NewSessionManager(issuer, nil).SetSessionCookie(w, forwarded, cred, s)
	if !w.Result().Cookies()[0].Secure {
		t.Error("expected Secure cookie behind HTTPS proxy")
	}

	off := false
	w = httptest.NewRecorder()
	NewSessionManager(issuer, &off).SetSessionCookie(w, forwarded, cred, s)
	if w.Result().Cookies()[0].Secure {
		t.Error("explicit setting should override the request scheme")
	}
}

func TestSessionManager_BearerAuth(t *testing.T) {
	sm, issuer := newTestManager(t)
	cred, s := issue(t, issuer, "member", time.Hour)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+cred)

	got, _, err := sm.GetSessionFromRequest(req)
	if err != nil {
		t.Fatalf("GetSessionFromRequest() error = %v", err)
	}
	if got.ID != s.ID {
		t.Errorf("ID = %s, want %s", got.ID, s.ID)
	}
}

func TestRequireAuth_BearerWinsOverStaleCookie(t *testing.T) {
	sm, issuer := newTestManager(t)
	valid, s := issue(t, issuer, "member", time.Hour)
	expired, _ := issue(t, issuer, "member", -time.Minute)

	var seen *session.Session
	handler := RequireAuth(sm)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetSessionFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: expired})
	req.Header.Set("Authorization", "Bearer "+valid)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if seen == nil || seen.ID != s.ID {
		t.Errorf("expected session from bearer token, got %+v", seen)
	}
}

func TestCredentialFromRequest_EmptyBearerFallsBackToCookie(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "from-cookie"})
	req.Header.Set("Authorization", "Bearer ")

	if got := CredentialFromRequest(req); got != "from-cookie" {
		t.Errorf("CredentialFromRequest() = %q, want %q", got, "from-cookie")
	}
}

func TestSessionManager_InvalidCredential(t *testing.T) {
	sm, _ := newTestManager(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "garbage"})

	if _, _, err := sm.GetSessionFromRequest(req); err == nil {
		t.Error("expected error for invalid credential")
	}
	if _, _, err := sm.GetSessionFromRequest(httptest.NewRequest(http.MethodGet, "/", nil)); err == nil {
		t.Error("expected error without credential")
	}
}

func TestRequireAuth(t *testing.T) {
	sm, issuer := newTestManager(t)
	valid, _ := issue(t, issuer, "member", time.Hour)
	expired, _ := issue(t, issuer, "member", -time.Minute)

	var seen *session.Session
	handler := RequireAuth(sm)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetSessionFromContext(r.Context())
		if GetCredentialFromContext(r.Context()) == "" {
			t.Error("credential missing from context")
		}
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name       string
		credential string
		wantStatus int
	}{
		{"valid", valid, http.StatusOK},
		{"expired", expired, http.StatusUnauthorized},
		{"tampered", valid[:len(valid)-2] + "xx", http.StatusUnauthorized},
		{"missing", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.credential != "" {
				req.Header.Set("Authorization", "Bearer "+tt.credential)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK && seen == nil {
				t.Error("session not set in context")
			}
			if tt.wantStatus == http.StatusUnauthorized && !strings.Contains(w.Body.String(), `"unauthorized"`) {
				t.Errorf("unexpected body %s", w.Body.String())
			}
		})
	}
}

type brokenRevocations struct{}

func (brokenRevocations) Revoke(context.Context, string, time.Time) error { return nil }

func (brokenRevocations) IsRevoked(context.Context, string) (bool, error) {
	return false, context.DeadlineExceeded
}

func TestRequireAuth_RevocationStoreDown(t *testing.T) {
	sm, issuer := newTestManager(t, session.WithRevocations(brokenRevocations{}))
	cred, _ := issue(t, issuer, "member", time.Hour)

	handler := RequireAuth(sm)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+cred)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestRequireRole(t *testing.T) {
	handler := RequireRole("admin")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name       string
		sess       *session.Session
		wantStatus int
	}{
		{"admin", &session.Session{OwnerID: "a", Role: "admin"}, http.StatusOK},
		{"member", &session.Session{OwnerID: "m", Role: "member"}, http.StatusForbidden},
		{"anonymous", nil, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.sess != nil {
				req = req.WithContext(SetSessionInContext(req.Context(), tt.sess))
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestGetSessionFromContext(t *testing.T) {
	if GetSessionFromContext(context.Background()) != nil {
		t.Error("expected nil for empty context")
	}

	s := &session.Session{ID: "abc"}
	ctx := SetSessionInContext(context.Background(), s)
	if got := GetSessionFromContext(ctx); got != s {
		t.Error("GetSessionFromContext() did not return stored session")
	}
}

func TestSessionManager_ClearSessionCookie(t *testing.T) {
	sm, _ := newTestManager(t)
	w := httptest.NewRecorder()
	sm.ClearSessionCookie(w, httptest.NewRequest(http.MethodPost, "/", nil))

	cookies := w.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected 1 cookie, got %d", len(cookies))
	}
	if cookies[0].MaxAge >= 0 {
		t.Errorf("MaxAge = %d, want negative", cookies[0].MaxAge)
	}
}
