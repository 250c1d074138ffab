package matching

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kozaktomas/faceid/internal/database"
)

// IndexedEngine asks an HNSW graph for candidates, then rescores them exactly against
// the store so the threshold and tie-break rules are the same as the linear scan.
// The index only sees changes made through this process. When its live count
// disagrees with the store, or the candidates produce no match, the engine falls
// back to a linear scan, so a profile enrolled elsewhere is still found.
type IndexedEngine struct {
	index      *database.ProfileIndex
	store      database.ProfileReader
	fallback   *LinearEngine
	candidates int
}

// NewIndexedEngine creates an engine over index. Fallback scans are bounded by maxScan.
func NewIndexedEngine(index *database.ProfileIndex, store database.ProfileReader, maxScan, candidates int) *IndexedEngine {
	return &IndexedEngine{
		index:      index,
		store:      store,
		fallback:   NewLinearEngine(store, maxScan),
		candidates: max(candidates, database.HNSWMinCandidates),
	}
}

// FindBestMatch implements Engine.
func (e *IndexedEngine) FindBestMatch(ctx context.Context, query []float32, threshold float64) (*Match, error) {
	if e.index.IsEmpty() {
		return e.fallback.FindBestMatch(ctx, query, threshold)
	}

	active, err := e.store.CountActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("count active profiles: %w", err)
	}
	if indexed := e.index.Count(); indexed != active {
		slog.DebugContext(ctx, "profile index out of sync, scanning store", "indexed", indexed, "active", active)
		return e.fallback.FindBestMatch(ctx, query, threshold)
	}

	ids, err := e.index.Search(query, e.candidates)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	profiles := make([]database.StoredProfile, 0, len(ids))
	for _, id := range ids {
		p, err := e.store.Get(ctx, id)
		if errors.Is(err, database.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load candidate %s: %w", id, err)
		}
		profiles = append(profiles, *p)
	}

	m, err := bestOf(ctx, profiles, query, threshold)
	if errors.Is(err, ErrNoMatch) {
		return e.fallback.FindBestMatch(ctx, query, threshold)
	}
	return m, err
}

// ProfileAdded indexes a newly created or reactivated profile.
func (e *IndexedEngine) ProfileAdded(p *database.StoredProfile) {
	e.index.Add(p)
}

// ProfileRemoved hides a deactivated or deleted profile.
func (e *IndexedEngine) ProfileRemoved(id string) {
	e.index.Remove(id)
}

// Rebuild reloads the graph from the active profiles in the store.
func (e *IndexedEngine) Rebuild(ctx context.Context) error {
	profiles, err := e.store.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active profiles: %w", err)
	}
	e.index.Build(profiles)
	slog.DebugContext(ctx, "profile index rebuilt", "profiles", e.index.Count())
	return nil
}
