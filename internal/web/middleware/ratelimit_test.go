package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestIPRateLimiter_Burst(t *testing.T) {
	l := NewIPRateLimiter(0.001, 2)

	if !l.Allow("10.0.0.1") || !l.Allow("10.0.0.1") {
		t.Fatal("burst requests should be allowed")
	}
	if l.Allow("10.0.0.1") {
		t.Error("third request should be limited")
	}
	if !l.Allow("10.0.0.2") {
		t.Error("other clients have their own bucket")
	}
}

func TestIPRateLimiter_Disabled(t *testing.T) {
	l := NewIPRateLimiter(0, 1)
	for range 10 {
		if !l.Allow("10.0.0.1") {
			t.Fatal("disabled limiter should allow everything")
		}
	}
}

func TestIPRateLimiter_Sweep(t *testing.T) {
	l := NewIPRateLimiter(1, 1)
	l.Allow("10.0.0.1")
	l.Sweep(time.Hour)
	if len(l.clients) != 1 {
		t.Errorf("recent client should be kept, got %d", len(l.clients))
	}
	l.Sweep(-time.Second)
	if len(l.clients) != 0 {
		t.Errorf("idle client should be removed, got %d", len(l.clients))
	}
}

func TestRateLimit_Middleware(t *testing.T) {
	handler := RateLimit(NewIPRateLimiter(0.001, 1))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 2)
	for range 2 {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.RemoteAddr = "192.0.2.1:1234"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		codes = append(codes, w.Code)
		if w.Code == http.StatusTooManyRequests && w.Header().Get("Retry-After") == "" {
			t.Error("missing Retry-After header")
		}
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Errorf("codes = %v, want [200 429]", codes)
	}
}
