// Package matching finds the enrolled profile that best matches a login descriptor.
package matching

import (
	"context"
	"errors"
	"strings"

	"github.com/kozaktomas/faceid/internal/database"
)

// DefaultThreshold is the similarity a candidate must strictly exceed to be accepted.
const DefaultThreshold = 0.6

// DefaultMaxScan bounds the number of active profiles a single linear scan may visit.
const DefaultMaxScan = 50000

var (
	// ErrNoMatch is returned when no active profile scores above the threshold.
	ErrNoMatch = errors.New("no matching profile")

	// ErrScanLimitExceeded is returned when the active set is larger than the scan bound.
	ErrScanLimitExceeded = errors.New("active profile count exceeds scan limit")
)

// Match is an accepted candidate.
type Match struct {
	Profile    database.StoredProfile
	Similarity float64
}

// Engine finds the best active profile for a query descriptor.
type Engine interface {
	FindBestMatch(ctx context.Context, query []float32, threshold float64) (*Match, error)
}

// ProfileObserver is implemented by engines that keep derived state in sync with the store.
type ProfileObserver interface {
	ProfileAdded(p *database.StoredProfile)
	ProfileRemoved(id string)
	Rebuild(ctx context.Context) error
}

// better reports whether candidate beats the current best. Equal similarities prefer a
// profile that has been used, then the more recent lastUsedAt, then the more recent
// createdAt. The id comparison keeps the result deterministic.
func better(candidate *database.StoredProfile, candSim float64, best *Match) bool {
	if best == nil {
		return true
	}
	if candSim != best.Similarity {
		return candSim > best.Similarity
	}

	cu, bu := candidate.LastUsedAt, best.Profile.LastUsedAt
	switch {
	case cu != nil && bu == nil:
		return true
	case cu == nil && bu != nil:
		return false
	case cu != nil && bu != nil && !cu.Equal(*bu):
		return cu.After(*bu)
	}

	if !candidate.CreatedAt.Equal(best.Profile.CreatedAt) {
		return candidate.CreatedAt.After(best.Profile.CreatedAt)
	}
	return strings.Compare(candidate.ID, best.Profile.ID) < 0
}
