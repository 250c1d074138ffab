package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/faceid/internal/directory"
	"github.com/kozaktomas/faceid/internal/session"
	"github.com/kozaktomas/faceid/internal/web/middleware"
)

// withAuth runs the handler behind RequireAuth, as the router does.
func (e *testEnv) withAuth(h http.HandlerFunc) http.Handler {
	return middleware.RequireAuth(e.sm)(h)
}

func TestAuthHandler_Status(t *testing.T) {
	env := newTestEnv(t)

	recorder := httptest.NewRecorder()
	env.auth.Status(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/auth/status", nil))
	if decodeBody[StatusResponse](t, recorder).Authenticated {
		t.Error("expected unauthenticated status without credential")
	}

	recorder = httptest.NewRecorder()
	env.auth.Status(recorder, env.asMember(t, httptest.NewRequest(http.MethodGet, "/api/v1/auth/status", nil), "member-1"))
	status := decodeBody[StatusResponse](t, recorder)
	if !status.Authenticated || status.OwnerID != "member-1" || status.ExpiresAt == nil {
		t.Errorf("unexpected status %+v", status)
	}
}

func TestAuthHandler_RefreshPicksUpRoleChange(t *testing.T) {
	env := newTestEnv(t)
	req := env.asMember(t, httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", nil), "member-1")
	oldCred := req.Header.Get("Authorization")[len("Bearer "):]

	env.members.Put(directory.Member{ID: "member-1", Role: directory.RoleTrainer, Email: "m1@example.com"})

	recorder := httptest.NewRecorder()
	env.withAuth(env.auth.Refresh).ServeHTTP(recorder, req)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", recorder.Code, recorder.Body.String())
	}

	resp := decodeBody[RefreshResponse](t, recorder)
	s, err := env.issuer.Verify(context.Background(), resp.Credential)
	if err != nil {
		t.Fatalf("refreshed credential does not verify: %v", err)
	}
	if s.Role != directory.RoleTrainer {
		t.Errorf("expected refreshed role trainer, got %s", s.Role)
	}

	if _, err := env.issuer.Verify(context.Background(), oldCred); err != nil {
		t.Errorf("old credential should stay valid: %v", err)
	}
}

func TestAuthHandler_LogoutRevokes(t *testing.T) {
	env := newTestEnv(t)
	req := env.asMember(t, httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil), "member-1")
	cred := req.Header.Get("Authorization")[len("Bearer "):]

	recorder := httptest.NewRecorder()
	env.auth.Logout(recorder, req)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", recorder.Code)
	}

	cookies := recorder.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge >= 0 {
		t.Error("expected session cookie to be cleared")
	}

	if _, err := env.issuer.Verify(context.Background(), cred); !errors.Is(err, session.ErrRevoked) {
		t.Errorf("expected ErrRevoked after logout, got %v", err)
	}
}

func TestAuthHandler_LogoutWithoutSession(t *testing.T) {
	env := newTestEnv(t)

	recorder := httptest.NewRecorder()
	env.auth.Logout(recorder, httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil))
	if recorder.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", recorder.Code)
	}
}
