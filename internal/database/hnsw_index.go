package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/coder/hnsw"
)

// HNSW index parameters for profile descriptors
const (
	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	HNSWMaxNeighbors = 16

	// HNSWMinCandidates is the smallest candidate pool requested from the graph
	// before exact rescoring.
	HNSWMinCandidates = 32
)

// HNSWIndexMetadata stores metadata for validating cached HNSW indexes.
type HNSWIndexMetadata struct {
	ProfileCount int       `json:"profile_count"`
	Dim          int       `json:"dim"`
	BuildTime    time.Time `json:"build_time"`
	Version      int       `json:"version"`
}

const hnswMetadataVersion = 1

// ProfileIndex wraps an HNSW graph keyed by profile id.
// The graph only proposes candidates; live holds the ids that may be returned, so
// a deactivated profile disappears from results without rebuilding the graph.
type ProfileIndex struct {
	graph   *hnsw.Graph[string]
	indexed map[string]struct{}
	live    map[string]struct{}
	dim     int
	mu      sync.RWMutex
}

// NewProfileIndex creates a new empty index for descriptors of length dim.
func NewProfileIndex(dim int) *ProfileIndex {
	return &ProfileIndex{
		indexed: make(map[string]struct{}),
		live:    make(map[string]struct{}),
		dim:     dim,
	}
}

func newGraph() *hnsw.Graph[string] {
	g := hnsw.NewGraph[string]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.Distance = hnsw.CosineDistance
	return g
}

// Build replaces the index contents with the given profiles. Inactive profiles are skipped.
func (h *ProfileIndex) Build(profiles []StoredProfile) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.graph = nil
	h.indexed = make(map[string]struct{}, len(profiles))
	h.live = make(map[string]struct{}, len(profiles))
	for i := range profiles {
		h.addLocked(&profiles[i])
	}
}

// Add inserts a single profile. A profile already in the graph (for example a
// reactivated one) is only marked live again.
func (h *ProfileIndex) Add(p *StoredProfile) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.addLocked(p)
}

func (h *ProfileIndex) addLocked(p *StoredProfile) {
	if !p.IsActive || len(p.Descriptor) != h.dim {
		return
	}
	if h.graph == nil {
		h.graph = newGraph()
	}
	if _, ok := h.indexed[p.ID]; !ok {
		h.graph.Add(hnsw.MakeNode(p.ID, append([]float32(nil), p.Descriptor...)))
		h.indexed[p.ID] = struct{}{}
	}
	h.live[p.ID] = struct{}{}
}

// Remove hides a profile from search results.
func (h *ProfileIndex) Remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	// coder/hnsw graphs degrade with frequent deletes; filtering by live is enough
	// until the next Build.
	delete(h.live, id)
}

// Search returns up to k live profile ids nearest to query.
func (h *ProfileIndex) Search(query []float32, k int) ([]string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil {
		return nil, errors.New("index not initialized")
	}
	if len(query) != h.dim {
		return nil, fmt.Errorf("query has %d dimensions, index has %d", len(query), h.dim)
	}
	if len(h.live) == 0 {
		return nil, nil
	}

	neighbors := h.graph.Search(query, k)
	ids := make([]string, 0, len(neighbors))
	for _, n := range neighbors {
		if _, ok := h.live[n.Key]; ok {
			ids = append(ids, n.Key)
		}
	}
	return ids, nil
}

// Count returns the number of live indexed profiles.
func (h *ProfileIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.live)
}

// IsEmpty returns true if the index has no live profiles.
func (h *ProfileIndex) IsEmpty() bool {
	return h.Count() == 0
}

// Save persists the graph and metadata to path and path+".meta".
func (h *ProfileIndex) Save(path string) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil {
		// Remove existing files if index is empty (best-effort cleanup).
		_ = os.Remove(path)
		_ = os.Remove(path + ".meta")
		return nil
	}

	f, err := os.Create(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to create HNSW index file: %w", err)
	}
	defer f.Close()

	if err := h.graph.Export(f); err != nil {
		return fmt.Errorf("exporting HNSW graph: %w", err)
	}

	metadata := HNSWIndexMetadata{
		ProfileCount: len(h.live),
		Dim:          h.dim,
		BuildTime:    time.Now(),
		Version:      hnswMetadataVersion,
	}
	metaData, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(path+".meta", metaData, 0600); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}
	return nil
}

// LoadHNSWMetadata loads metadata from a separate .meta file.
func LoadHNSWMetadata(path string) (HNSWIndexMetadata, error) {
	var metadata HNSWIndexMetadata

	data, err := os.ReadFile(path + ".meta") //nolint:gosec // path is from trusted config
	if err != nil {
		return metadata, fmt.Errorf("failed to read metadata file: %w", err)
	}
	if err := json.Unmarshal(data, &metadata); err != nil {
		return metadata, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return metadata, nil
}

// Load restores a graph saved with Save and reconciles it with profiles, the current
// active set. Profiles the saved graph has no node for are inserted; graph nodes for
// profiles that are no longer active stay hidden.
// Returns false when there is no usable file and the caller should Build instead.
func (h *ProfileIndex) Load(path string, profiles []StoredProfile) (bool, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return false, nil
	}

	metadata, err := LoadHNSWMetadata(path)
	if err != nil {
		return false, err
	}
	if metadata.Version != hnswMetadataVersion || metadata.Dim != h.dim {
		return false, nil
	}

	saved, err := hnsw.LoadSavedGraph[string](path)
	if err != nil {
		return false, fmt.Errorf("failed to load HNSW index: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.graph = saved.Graph
	h.indexed = make(map[string]struct{}, len(profiles))
	h.live = make(map[string]struct{}, len(profiles))
	for i := range profiles {
		p := &profiles[i]
		if _, ok := h.graph.Lookup(p.ID); ok && p.IsActive {
			h.indexed[p.ID] = struct{}{}
			h.live[p.ID] = struct{}{}
			continue
		}
		h.addLocked(p)
	}
	return true, nil
}
