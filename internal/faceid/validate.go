package faceid

import (
	"errors"
	"math"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/kozaktomas/faceid/internal/biometric"
	"github.com/kozaktomas/faceid/internal/database"
)

// MaxDeviceFieldLength bounds every deviceInfo string.
const MaxDeviceFieldLength = 256

func validateDescriptor(d []float32, dim int) error {
	if len(d) == 0 {
		return invalid("descriptor", "is required")
	}
	err := biometric.ValidateDescriptor(d, dim)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, biometric.ErrDimensionMismatch):
		return invalid("descriptor", "expected %d values, got %d", dim, len(d))
	default:
		return invalid("descriptor", "contains non-finite values")
	}
}

func validateConfidence(c float64) error {
	if math.IsNaN(c) || c < 0 || c > 100 {
		return invalid("confidence", "must be between 0 and 100")
	}
	return nil
}

// normalizeDeviceInfo checks every field and returns a copy in NFC form.
func normalizeDeviceInfo(info database.DeviceInfo) (database.DeviceInfo, error) {
	fields := []struct {
		name string
		val  *string
	}{
		{"deviceInfo.clientId", &info.ClientID},
		{"deviceInfo.platform", &info.Platform},
		{"deviceInfo.screenResolution", &info.ScreenResolution},
		{"deviceInfo.userAgent", &info.UserAgent},
	}

	for _, f := range fields {
		s := *f.val
		if !utf8.ValidString(s) {
			return info, invalid(f.name, "must be valid UTF-8")
		}
		for _, r := range s {
			if unicode.IsControl(r) {
				return info, invalid(f.name, "must not contain control characters")
			}
		}
		s = norm.NFC.String(s)
		if utf8.RuneCountInString(s) > MaxDeviceFieldLength {
			return info, invalid(f.name, "must be at most %d characters", MaxDeviceFieldLength)
		}
		*f.val = s
	}
	return info, nil
}
