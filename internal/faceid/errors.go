package faceid

import (
	"errors"
	"fmt"

	"github.com/kozaktomas/faceid/internal/database"
)

var (
	// ErrNoMatchFound is the only login failure callers see for an unknown face.
	ErrNoMatchFound = errors.New("face not recognized")

	// ErrNotFound is returned for missing profiles and for profiles owned by someone else.
	ErrNotFound = database.ErrNotFound
)

// ValidationError describes input rejected before it reaches storage or matching.
// The message is safe to show to the client.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
