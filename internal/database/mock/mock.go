// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"sync"

	"github.com/kozaktomas/faceid/internal/database"
	"github.com/kozaktomas/faceid/internal/database/memory"
)

// MockProfileStore is an in-memory database.ProfileWriter with error injection
// and call counters.
type MockProfileStore struct {
	*memory.ProfileStore

	mu    sync.Mutex
	calls map[string]int

	// Error injection
	CreateError        error
	GetError           error
	ListActiveError    error
	ListByOwnerError   error
	RecordUsageError   error
	DeactivateError    error
	DeactivateAllError error
	DeleteError        error
	CleanupError       error
}

// NewMockProfileStore creates a new mock profile store for descriptors of length dim
func NewMockProfileStore(dim int, opts ...memory.Option) *MockProfileStore {
	return &MockProfileStore{
		ProfileStore: memory.NewProfileStore(dim, opts...),
		calls:        make(map[string]int),
	}
}

func (m *MockProfileStore) record(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[name]++
}

// Calls returns how many times the named method was invoked
func (m *MockProfileStore) Calls(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[name]
}

// Create stores a profile unless CreateError is set
func (m *MockProfileStore) Create(ctx context.Context, p database.NewProfile) (*database.StoredProfile, error) {
	m.record("Create")
	if m.CreateError != nil {
		return nil, m.CreateError
	}
	return m.ProfileStore.Create(ctx, p)
}

// Get retrieves a profile unless GetError is set
func (m *MockProfileStore) Get(ctx context.Context, id string) (*database.StoredProfile, error) {
	m.record("Get")
	if m.GetError != nil {
		return nil, m.GetError
	}
	return m.ProfileStore.Get(ctx, id)
}

// ListActive lists active profiles unless ListActiveError is set
func (m *MockProfileStore) ListActive(ctx context.Context) ([]database.StoredProfile, error) {
	m.record("ListActive")
	if m.ListActiveError != nil {
		return nil, m.ListActiveError
	}
	return m.ProfileStore.ListActive(ctx)
}

// ListByOwner lists an owner's profiles unless ListByOwnerError is set
func (m *MockProfileStore) ListByOwner(ctx context.Context, ownerID string) ([]database.StoredProfile, error) {
	m.record("ListByOwner")
	if m.ListByOwnerError != nil {
		return nil, m.ListByOwnerError
	}
	return m.ProfileStore.ListByOwner(ctx, ownerID)
}

// RecordUsage bumps usage unless RecordUsageError is set
func (m *MockProfileStore) RecordUsage(ctx context.Context, id string) error {
	m.record("RecordUsage")
	if m.RecordUsageError != nil {
		return m.RecordUsageError
	}
	return m.ProfileStore.RecordUsage(ctx, id)
}

// Deactivate soft-deletes unless DeactivateError is set
func (m *MockProfileStore) Deactivate(ctx context.Context, id string) error {
	m.record("Deactivate")
	if m.DeactivateError != nil {
		return m.DeactivateError
	}
	return m.ProfileStore.Deactivate(ctx, id)
}

// DeactivateAllForOwner soft-deletes unless DeactivateAllError is set
func (m *MockProfileStore) DeactivateAllForOwner(ctx context.Context, ownerID string) (int, error) {
	m.record("DeactivateAllForOwner")
	if m.DeactivateAllError != nil {
		return 0, m.DeactivateAllError
	}
	return m.ProfileStore.DeactivateAllForOwner(ctx, ownerID)
}

// Delete removes unless DeleteError is set
func (m *MockProfileStore) Delete(ctx context.Context, id string) error {
	m.record("Delete")
	if m.DeleteError != nil {
		return m.DeleteError
	}
	return m.ProfileStore.Delete(ctx, id)
}

// Cleanup sweeps unless CleanupError is set
func (m *MockProfileStore) Cleanup(ctx context.Context, retentionDays int) ([]string, error) {
	m.record("Cleanup")
	if m.CleanupError != nil {
		return nil, m.CleanupError
	}
	return m.ProfileStore.Cleanup(ctx, retentionDays)
}
