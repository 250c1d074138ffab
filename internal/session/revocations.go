package session

import (
	"context"
	"sync"
	"time"
)

// MemoryRevocations is an in-process RevocationList for single-instance deployments.
type MemoryRevocations struct {
	mu      sync.Mutex
	revoked map[string]time.Time
	now     func() time.Time
}

// NewMemoryRevocations creates an empty list. A nil clock uses time.Now.
func NewMemoryRevocations(now func() time.Time) *MemoryRevocations {
	if now == nil {
		now = time.Now
	}
	return &MemoryRevocations{revoked: make(map[string]time.Time), now: now}
}

// Revoke blocks sessionID until expiresAt and drops entries that have expired.
func (m *MemoryRevocations) Revoke(ctx context.Context, sessionID string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for id, exp := range m.revoked {
		if !exp.After(now) {
			delete(m.revoked, id)
		}
	}
	if expiresAt.After(now) {
		m.revoked[sessionID] = expiresAt
	}
	return nil
}

// IsRevoked reports whether sessionID is blocked.
func (m *MemoryRevocations) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	exp, ok := m.revoked[sessionID]
	return ok && exp.After(m.now()), nil
}

// Len returns the number of stored entries.
func (m *MemoryRevocations) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.revoked)
}
