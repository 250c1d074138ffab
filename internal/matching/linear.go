package matching

import (
	"context"
	"fmt"

	"github.com/kozaktomas/faceid/internal/biometric"
	"github.com/kozaktomas/faceid/internal/database"
)

// ctxCheckEvery is how many profiles are scored between context checks.
const ctxCheckEvery = 256

// LinearEngine scores every active profile.
type LinearEngine struct {
	store   database.ProfileReader
	maxScan int
}

// NewLinearEngine creates a linear engine. maxScan <= 0 disables the bound.
func NewLinearEngine(store database.ProfileReader, maxScan int) *LinearEngine {
	return &LinearEngine{store: store, maxScan: maxScan}
}

// FindBestMatch returns the highest scoring active profile whose similarity is
// strictly greater than threshold, or ErrNoMatch.
func (e *LinearEngine) FindBestMatch(ctx context.Context, query []float32, threshold float64) (*Match, error) {
	profiles, err := e.store.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active profiles: %w", err)
	}
	if e.maxScan > 0 && len(profiles) > e.maxScan {
		return nil, fmt.Errorf("%w: %d > %d", ErrScanLimitExceeded, len(profiles), e.maxScan)
	}
	return bestOf(ctx, profiles, query, threshold)
}

func bestOf(ctx context.Context, profiles []database.StoredProfile, query []float32, threshold float64) (*Match, error) {
	var best *Match
	for i := range profiles {
		if i%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		p := &profiles[i]
		if !p.IsActive {
			continue
		}
		sim, err := biometric.Similarity(query, p.Descriptor)
		if err != nil {
			return nil, fmt.Errorf("score profile %s: %w", p.ID, err)
		}
		if sim <= threshold {
			continue
		}
		if better(p, sim, best) {
			best = &Match{Profile: *p, Similarity: sim}
		}
	}

	if best == nil {
		return nil, ErrNoMatch
	}
	return best, nil
}
