// Package biometric scores facial descriptors against each other.
package biometric

import (
	"errors"
	"fmt"
	"math"
)

// DefaultDescriptorDim is the descriptor length produced by the enrollment client's
// face model (128 floats, face-api.js / dlib style).
const DefaultDescriptorDim = 128

var (
	// ErrDimensionMismatch is returned when two descriptors (or a descriptor and the
	// configured dimension) differ in length.
	ErrDimensionMismatch = errors.New("descriptor dimension mismatch")

	// ErrNonFinite is returned when a descriptor contains NaN or Inf.
	ErrNonFinite = errors.New("descriptor contains non-finite value")
)

// Similarity returns the cosine similarity of a and b remapped from [-1, 1] to [0, 1].
// Identical directions score 1, opposite directions score 0.
// A zero-norm vector scores 0 against anything.
func Similarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d != %d", ErrDimensionMismatch, len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0, nil
	}

	// sqrt(na*nb) rather than sqrt(na)*sqrt(nb) so that v.v / |v|^2 is exactly 1.
	cos := dot / math.Sqrt(normA*normB)
	// Clamp to [-1, 1] to handle floating point errors
	cos = max(-1, min(1, cos))

	return (cos + 1) / 2, nil
}

// ValidateDescriptor checks that d has exactly dim finite components.
func ValidateDescriptor(d []float32, dim int) error {
	if len(d) != dim {
		return fmt.Errorf("%w: got %d values, want %d", ErrDimensionMismatch, len(d), dim)
	}
	for i, v := range d {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w at index %d", ErrNonFinite, i)
		}
	}
	return nil
}
