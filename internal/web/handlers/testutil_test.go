package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/faceid/internal/database/memory"
	"github.com/kozaktomas/faceid/internal/directory"
	"github.com/kozaktomas/faceid/internal/faceid"
	"github.com/kozaktomas/faceid/internal/matching"
	"github.com/kozaktomas/faceid/internal/session"
	"github.com/kozaktomas/faceid/internal/web/middleware"
)

const testDim = 4

type testEnv struct {
	store   *memory.ProfileStore
	issuer  *session.Issuer
	members *directory.StaticDirectory
	sm      *middleware.SessionManager
	svc     *faceid.Service
	faceID  *FaceIDHandler
	auth    *AuthHandler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := memory.NewProfileStore(testDim)
	issuer, err := session.NewIssuer([]byte("handler-test-secret-0123456789abcdef"),
		session.WithRevocations(session.NewMemoryRevocations(nil)))
	if err != nil {
		t.Fatalf("NewIssuer() error = %v", err)
	}
	members := directory.NewStaticDirectory(
		directory.Member{ID: "member-1", Role: directory.RoleMember, Email: "m1@example.com"},
		directory.Member{ID: "member-2", Role: directory.RoleMember, Email: "m2@example.com"},
		directory.Member{ID: "admin-1", Role: directory.RoleAdmin, Email: "admin@example.com"},
	)

	opts := faceid.DefaultOptions()
	opts.Dim = testDim
	svc := faceid.NewService(store, matching.NewLinearEngine(store, 0), issuer, members, opts)
	sm := middleware.NewSessionManager(issuer, nil)

	return &testEnv{
		store:   store,
		issuer:  issuer,
		members: members,
		sm:      sm,
		svc:     svc,
		faceID:  NewFaceIDHandler(svc, sm),
		auth:    NewAuthHandler(sm, members, time.Hour),
	}
}

// jsonRequest builds a request with a JSON body.
func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// asMember attaches a verified session for ownerID to the request, as RequireAuth would.
func (e *testEnv) asMember(t *testing.T, r *http.Request, ownerID string) *http.Request {
	t.Helper()
	m, err := e.members.LookupMember(context.Background(), ownerID)
	if err != nil {
		t.Fatalf("unknown test member %s", ownerID)
	}
	cred, s, err := e.issuer.Issue(m.ID, m.Role, m.Email, time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	r.Header.Set("Authorization", "Bearer "+cred)
	return r.WithContext(middleware.SetSessionInContext(r.Context(), s))
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func decodeBody[T any](t *testing.T, recorder *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(recorder.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to unmarshal response %q: %v", recorder.Body.String(), err)
	}
	return v
}
