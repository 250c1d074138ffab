package database

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a profile id does not exist.
var ErrNotFound = errors.New("profile not found")

// ProfileReader provides read-only access to biometric profiles
type ProfileReader interface {
	// Get retrieves a profile by id regardless of its active flag, ErrNotFound if missing
	Get(ctx context.Context, id string) (*StoredProfile, error)
	// ListActive returns every active profile (the matching scan set)
	ListActive(ctx context.Context) ([]StoredProfile, error)
	// ListByOwner returns the active profiles of one owner, oldest first
	ListByOwner(ctx context.Context, ownerID string) ([]StoredProfile, error)
	// CountActive returns the number of active profiles
	CountActive(ctx context.Context) (int, error)
}

// ProfileWriter provides write access to biometric profiles
type ProfileWriter interface {
	ProfileReader

	// Create validates the descriptor length, assigns an id and stores an active profile.
	// The owner index is updated in the same operation.
	Create(ctx context.Context, p NewProfile) (*StoredProfile, error)

	// RecordUsage sets LastUsedAt to now and increments UsageCount.
	// A profile that no longer exists is a no-op, not an error.
	RecordUsage(ctx context.Context, id string) error

	// Deactivate soft-deletes a profile. ErrNotFound if missing.
	Deactivate(ctx context.Context, id string) error

	// DeactivateAllForOwner soft-deletes every active profile of an owner.
	// Returns the number of profiles that changed state.
	DeactivateAllForOwner(ctx context.Context, ownerID string) (int, error)

	// Reactivate reverses Deactivate. ErrNotFound if missing.
	Reactivate(ctx context.Context, id string) error

	// Delete permanently removes a profile and its owner index entry. ErrNotFound if missing.
	Delete(ctx context.Context, id string) error

	// Cleanup permanently removes profiles whose last activity is older than
	// now - retentionDays. Returns the removed ids.
	Cleanup(ctx context.Context, retentionDays int) ([]string, error)
}

// RetentionCutoff returns the instant before which a profile's last activity makes it
// eligible for cleanup.
func RetentionCutoff(now time.Time, retentionDays int) time.Time {
	return now.AddDate(0, 0, -retentionDays)
}
