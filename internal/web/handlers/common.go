package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kozaktomas/faceid/internal/faceid"
	"github.com/kozaktomas/faceid/internal/matching"
	"github.com/kozaktomas/faceid/internal/session"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// maxBodyBytes bounds request bodies; a 512-value descriptor is well below it.
const maxBodyBytes = 64 << 10

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// decodeJSON reads a single JSON object from the request body.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("trailing data after JSON object")
	}
	return nil
}

// respondServiceError maps orchestrator errors to HTTP responses. Only validation
// errors carry details; authentication failures are generic.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *faceid.ValidationError
	switch {
	case errors.As(err, &verr):
		respondError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, faceid.ErrNoMatchFound):
		respondError(w, http.StatusUnauthorized, faceid.ErrNoMatchFound.Error())
	case errors.Is(err, session.ErrSignatureInvalid),
		errors.Is(err, session.ErrSessionExpired),
		errors.Is(err, session.ErrRevoked):
		respondError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, faceid.ErrNotFound):
		respondError(w, http.StatusNotFound, "profile not found")
	case errors.Is(err, matching.ErrScanLimitExceeded),
		errors.Is(err, context.DeadlineExceeded):
		slog.WarnContext(r.Context(), "request could not complete in time", "path", r.URL.Path, "error", err)
		respondError(w, http.StatusServiceUnavailable, "service temporarily unavailable")
	default:
		slog.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", sanitizeForLog(err.Error()))
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Readiness returns a handler that pings every dependency.
func Readiness(deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		checks := make(map[string]string, len(deps))
		for name, dep := range deps {
			if err := dep.Ping(r.Context()); err != nil {
				slog.WarnContext(r.Context(), "readiness check failed", "dependency", name, "error", err)
				checks[name] = "unavailable"
				status = http.StatusServiceUnavailable
				continue
			}
			checks[name] = "ok"
		}
		respondJSON(w, status, map[string]any{"status": http.StatusText(status), "checks": checks})
	}
}
