package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/faceid/internal/database"
	"github.com/kozaktomas/faceid/internal/directory"
	"github.com/kozaktomas/faceid/internal/faceid"
	"github.com/kozaktomas/faceid/internal/session"
	"github.com/kozaktomas/faceid/internal/web/middleware"
)

// FaceIDHandler handles face enrollment, face login and profile management.
type FaceIDHandler struct {
	service        *faceid.Service
	sessionManager *middleware.SessionManager
}

// NewFaceIDHandler creates a new face ID handler
func NewFaceIDHandler(svc *faceid.Service, sm *middleware.SessionManager) *FaceIDHandler {
	return &FaceIDHandler{service: svc, sessionManager: sm}
}

type deviceInfoJSON struct {
	ClientID         string `json:"clientId"`
	Platform         string `json:"platform"`
	ScreenResolution string `json:"screenResolution"`
	UserAgent        string `json:"userAgent"`
}

func (d deviceInfoJSON) toDevice() database.DeviceInfo {
	return database.DeviceInfo(d)
}

type registerRequest struct {
	OwnerID    string         `json:"ownerId"`
	Descriptor []float32      `json:"descriptor"`
	Confidence float64        `json:"confidence"`
	DeviceInfo deviceInfoJSON `json:"deviceInfo"`
}

type registerResponse struct {
	ProfileID string `json:"profileId"`
}

// Register enrolls a descriptor for the authenticated member. Admins may enroll
// on behalf of another owner.
func (h *FaceIDHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	ownerID, ok := resolveOwner(w, r, req.OwnerID)
	if !ok {
		return
	}

	p, err := h.service.Register(r.Context(), faceid.RegisterRequest{
		OwnerID:    ownerID,
		Descriptor: req.Descriptor,
		Confidence: req.Confidence,
		DeviceInfo: req.DeviceInfo.toDevice(),
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, registerResponse{ProfileID: p.ID})
}

type loginRequest struct {
	Descriptor []float32      `json:"descriptor"`
	Confidence float64        `json:"confidence"`
	DeviceInfo deviceInfoJSON `json:"deviceInfo"`
}

// LoginResponse is returned by a successful face login.
type LoginResponse struct {
	Credential string    `json:"credential"`
	OwnerID    string    `json:"ownerId"`
	Similarity float64   `json:"similarity"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// Login identifies the caller by face and sets the session cookie.
func (h *FaceIDHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	res, err := h.service.Login(r.Context(), faceid.LoginRequest{
		Descriptor: req.Descriptor,
		Confidence: req.Confidence,
		DeviceInfo: req.DeviceInfo.toDevice(),
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	h.sessionManager.SetSessionCookie(w, r, res.Credential, res.Session)
	respondJSON(w, http.StatusOK, LoginResponse{
		Credential: res.Credential,
		OwnerID:    res.OwnerID,
		Similarity: res.Similarity,
		ExpiresAt:  res.Session.ExpiresAt,
	})
}

// ProfileResponse is the client view of a profile. Descriptors are never returned.
type ProfileResponse struct {
	ID         string         `json:"id"`
	DeviceInfo deviceInfoJSON `json:"deviceInfo"`
	Confidence float64        `json:"confidence"`
	CreatedAt  time.Time      `json:"createdAt"`
	LastUsedAt *time.Time     `json:"lastUsedAt"`
	UsageCount int64          `json:"usageCount"`
}

func toProfileResponse(p *database.StoredProfile) ProfileResponse {
	return ProfileResponse{
		ID:         p.ID,
		DeviceInfo: deviceInfoJSON(p.DeviceInfo),
		Confidence: p.Confidence,
		CreatedAt:  p.CreatedAt,
		LastUsedAt: p.LastUsedAt,
		UsageCount: p.UsageCount,
	}
}

// ListProfiles returns the active profiles of the caller, or of ?ownerId= for admins.
func (h *FaceIDHandler) ListProfiles(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := resolveOwner(w, r, r.URL.Query().Get("ownerId"))
	if !ok {
		return
	}

	profiles, err := h.service.ListProfiles(r.Context(), ownerID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	out := make([]ProfileResponse, 0, len(profiles))
	for i := range profiles {
		out = append(out, toProfileResponse(&profiles[i]))
	}
	respondJSON(w, http.StatusOK, out)
}

// GetProfile returns one profile of the caller.
func (h *FaceIDHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	scope, ok := ownerScope(w, r)
	if !ok {
		return
	}
	p, err := h.service.Profile(r.Context(), chi.URLParam(r, "id"), scope)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toProfileResponse(p))
}

// DeactivateProfile soft-deletes one profile.
func (h *FaceIDHandler) DeactivateProfile(w http.ResponseWriter, r *http.Request) {
	scope, ok := ownerScope(w, r)
	if !ok {
		return
	}
	if err := h.service.DeactivateProfile(r.Context(), chi.URLParam(r, "id"), scope); err != nil {
		respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ReactivateProfile restores a soft-deleted profile.
func (h *FaceIDHandler) ReactivateProfile(w http.ResponseWriter, r *http.Request) {
	scope, ok := ownerScope(w, r)
	if !ok {
		return
	}
	if err := h.service.ReactivateProfile(r.Context(), chi.URLParam(r, "id"), scope); err != nil {
		respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteProfile permanently removes one profile.
func (h *FaceIDHandler) DeleteProfile(w http.ResponseWriter, r *http.Request) {
	scope, ok := ownerScope(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteProfile(r.Context(), chi.URLParam(r, "id"), scope); err != nil {
		respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeactivateAll disables face login for the caller (or ?ownerId= for admins) on all devices.
func (h *FaceIDHandler) DeactivateAll(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := resolveOwner(w, r, r.URL.Query().Get("ownerId"))
	if !ok {
		return
	}

	n, err := h.service.DeactivateAll(r.Context(), ownerID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"deactivated": n})
}

type cleanupRequest struct {
	RetentionDays *int `json:"retentionDays"`
}

// Cleanup runs the retention sweep on demand. Admin only.
func (h *FaceIDHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	days := h.service.Options().RetentionDays
	if r.ContentLength != 0 {
		var req cleanupRequest
		if err := decodeJSON(w, r, &req); err != nil {
			respondError(w, http.StatusBadRequest, errInvalidRequestBody)
			return
		}
		if req.RetentionDays != nil {
			days = *req.RetentionDays
		}
	}

	n, err := h.service.CleanupOlderThan(r.Context(), days)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"removed": n, "retentionDays": days})
}

// resolveOwner returns the owner a request acts on. Members may only act on
// themselves; admins may name any owner.
func resolveOwner(w http.ResponseWriter, r *http.Request, requested string) (string, bool) {
	s := middleware.GetSessionFromContext(r.Context())
	if s == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return "", false
	}
	if requested == "" || requested == s.OwnerID {
		return s.OwnerID, true
	}
	if !isAdmin(s) {
		respondError(w, http.StatusForbidden, "forbidden")
		return "", false
	}
	return requested, true
}

// ownerScope restricts single-profile operations to the caller's own profiles.
// Admins get an empty scope, which the service treats as unrestricted.
func ownerScope(w http.ResponseWriter, r *http.Request) (string, bool) {
	s := middleware.GetSessionFromContext(r.Context())
	if s == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return "", false
	}
	if isAdmin(s) {
		return "", true
	}
	return s.OwnerID, true
}

func isAdmin(s *session.Session) bool {
	return s.Role == directory.RoleAdmin
}
