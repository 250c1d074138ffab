// Package memory provides a process-local Profile Store guarded by a mutex.
// It backs development servers without DATABASE_URL and the orchestrator tests.
package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/faceid/internal/biometric"
	"github.com/kozaktomas/faceid/internal/database"
)

// ProfileStore is an in-memory database.ProfileWriter.
type ProfileStore struct {
	mu       sync.RWMutex
	profiles map[string]*database.StoredProfile
	byOwner  map[string][]string // owner id -> profile ids in creation order
	dim      int
	now      func() time.Time
}

var _ database.ProfileWriter = (*ProfileStore)(nil)

// Option configures a ProfileStore.
type Option func(*ProfileStore)

// WithClock overrides time.Now, for tests that move time forward.
func WithClock(now func() time.Time) Option {
	return func(s *ProfileStore) { s.now = now }
}

// NewProfileStore creates an empty store accepting descriptors of length dim.
func NewProfileStore(dim int, opts ...Option) *ProfileStore {
	s := &ProfileStore{
		profiles: make(map[string]*database.StoredProfile),
		byOwner:  make(map[string][]string),
		dim:      dim,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create stores a new active profile.
func (s *ProfileStore) Create(ctx context.Context, p database.NewProfile) (*database.StoredProfile, error) {
	if err := biometric.ValidateDescriptor(p.Descriptor, s.dim); err != nil {
		return nil, fmt.Errorf("create profile: %w", err)
	}

	now := s.now()
	profile := &database.StoredProfile{
		ID:         uuid.NewString(),
		OwnerID:    p.OwnerID,
		Descriptor: append([]float32(nil), p.Descriptor...),
		Confidence: p.Confidence,
		DeviceInfo: p.DeviceInfo,
		CreatedAt:  now,
		UpdatedAt:  now,
		IsActive:   true,
	}

	s.mu.Lock()
	s.profiles[profile.ID] = profile
	s.byOwner[p.OwnerID] = append(s.byOwner[p.OwnerID], profile.ID)
	s.mu.Unlock()

	c := profile.Clone()
	return &c, nil
}

// Get retrieves a profile by id.
func (s *ProfileStore) Get(ctx context.Context, id string) (*database.StoredProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	c := p.Clone()
	return &c, nil
}

// ListActive returns all active profiles ordered by creation time.
func (s *ProfileStore) ListActive(ctx context.Context) ([]database.StoredProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]database.StoredProfile, 0, len(s.profiles))
	for _, p := range s.profiles {
		if p.IsActive {
			result = append(result, p.Clone())
		}
	}
	sortByCreation(result)
	return result, nil
}

// ListByOwner returns the active profiles of one owner.
func (s *ProfileStore) ListByOwner(ctx context.Context, ownerID string) ([]database.StoredProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []database.StoredProfile
	for _, id := range s.byOwner[ownerID] {
		if p := s.profiles[id]; p != nil && p.IsActive {
			result = append(result, p.Clone())
		}
	}
	return result, nil
}

// CountActive returns the number of active profiles.
func (s *ProfileStore) CountActive(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, p := range s.profiles {
		if p.IsActive {
			count++
		}
	}
	return count, nil
}

// RecordUsage bumps the usage counters of a profile.
func (s *ProfileStore) RecordUsage(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[id]
	if !ok {
		return nil
	}
	now := s.now()
	p.LastUsedAt = &now
	p.UsageCount++
	p.UpdatedAt = now
	return nil
}

// Deactivate soft-deletes a profile.
func (s *ProfileStore) Deactivate(ctx context.Context, id string) error {
	return s.setActive(id, false)
}

// Reactivate restores a soft-deleted profile.
func (s *ProfileStore) Reactivate(ctx context.Context, id string) error {
	return s.setActive(id, true)
}

func (s *ProfileStore) setActive(id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[id]
	if !ok {
		return database.ErrNotFound
	}
	if p.IsActive != active {
		p.IsActive = active
		p.UpdatedAt = s.now()
	}
	return nil
}

// DeactivateAllForOwner soft-deletes every active profile of an owner.
func (s *ProfileStore) DeactivateAllForOwner(ctx context.Context, ownerID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	count := 0
	for _, id := range s.byOwner[ownerID] {
		if p := s.profiles[id]; p != nil && p.IsActive {
			p.IsActive = false
			p.UpdatedAt = now
			count++
		}
	}
	return count, nil
}

// Delete permanently removes a profile.
func (s *ProfileStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.profiles[id]; !ok {
		return database.ErrNotFound
	}
	s.removeLocked(id)
	return nil
}

// Cleanup removes profiles idle for longer than retentionDays.
func (s *ProfileStore) Cleanup(ctx context.Context, retentionDays int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := database.RetentionCutoff(s.now(), retentionDays)

	var removed []string
	for id, p := range s.profiles {
		if p.LastActivity().Before(cutoff) {
			removed = append(removed, id)
		}
	}
	for _, id := range removed {
		s.removeLocked(id)
	}
	slices.Sort(removed)
	return removed, nil
}

// removeLocked deletes the record and its owner index entry. Caller holds mu.
func (s *ProfileStore) removeLocked(id string) {
	p := s.profiles[id]
	delete(s.profiles, id)

	ids := slices.DeleteFunc(s.byOwner[p.OwnerID], func(x string) bool { return x == id })
	if len(ids) == 0 {
		delete(s.byOwner, p.OwnerID)
	} else {
		s.byOwner[p.OwnerID] = ids
	}
}

// OwnerIndex returns a copy of the owner's indexed profile ids, active or not.
func (s *ProfileStore) OwnerIndex(ownerID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.byOwner[ownerID])
}

func sortByCreation(profiles []database.StoredProfile) {
	slices.SortFunc(profiles, func(a, b database.StoredProfile) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
