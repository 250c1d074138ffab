package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/kozaktomas/faceid/internal/directory"
	"github.com/kozaktomas/faceid/internal/faceid"
	"github.com/kozaktomas/faceid/internal/session"
	"github.com/kozaktomas/faceid/internal/web/middleware"
)

// AuthHandler handles session status, refresh and logout
type AuthHandler struct {
	sessionManager *middleware.SessionManager
	members        faceid.MemberDirectory
	ttl            time.Duration
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(sm *middleware.SessionManager, members faceid.MemberDirectory, ttl time.Duration) *AuthHandler {
	return &AuthHandler{
		sessionManager: sm,
		members:        members,
		ttl:            ttl,
	}
}

// StatusResponse represents the auth status response
type StatusResponse struct {
	Authenticated bool       `json:"authenticated"`
	OwnerID       string     `json:"ownerId,omitempty"`
	Role          string     `json:"role,omitempty"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
}

// Status reports whether the request carries a valid session.
func (h *AuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	s, _, err := h.sessionManager.GetSessionFromRequest(r)
	if err != nil {
		respondJSON(w, http.StatusOK, StatusResponse{Authenticated: false})
		return
	}
	respondJSON(w, http.StatusOK, StatusResponse{
		Authenticated: true,
		OwnerID:       s.OwnerID,
		Role:          s.Role,
		ExpiresAt:     &s.ExpiresAt,
	})
}

// RefreshResponse carries the reissued credential.
type RefreshResponse struct {
	Credential string    `json:"credential"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// Refresh reissues the caller's credential with a new expiry and the member's
// current role and email. The previous credential stays valid until it expires.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	current := middleware.GetSessionFromContext(r.Context())
	cred := middleware.GetCredentialFromContext(r.Context())
	if current == nil || cred == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var updates session.Updates
	member, err := h.members.LookupMember(r.Context(), current.OwnerID)
	switch {
	case errors.Is(err, directory.ErrMemberNotFound):
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	case err != nil:
		respondServiceError(w, r, err)
		return
	default:
		updates.Role = &member.Role
		updates.Email = &member.Email
	}

	next, s, err := h.sessionManager.Issuer().Reissue(r.Context(), cred, updates, h.ttl)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	h.sessionManager.SetSessionCookie(w, r, next, s)
	respondJSON(w, http.StatusOK, RefreshResponse{Credential: next, ExpiresAt: s.ExpiresAt})
}

// Logout clears the session cookie and, when a revocation list is configured,
// revokes the presented credential.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if s, _, err := h.sessionManager.GetSessionFromRequest(r); err == nil {
		if err := h.sessionManager.Revoke(r.Context(), s); err != nil {
			slog.ErrorContext(r.Context(), "failed to revoke session", "session_id", s.ID, "error", err)
			respondError(w, http.StatusServiceUnavailable, "service temporarily unavailable")
			return
		}
	}

	h.sessionManager.ClearSessionCookie(w, r)
	respondJSON(w, http.StatusOK, map[string]bool{"success": true, "revoked": h.sessionManager.Issuer().RevocationEnabled()})
}
