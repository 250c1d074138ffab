package database

import (
	"time"
)

// DeviceInfo is free-form enrollment metadata reported by the client.
// It is informational only and never takes part in matching.
type DeviceInfo struct {
	ClientID         string `json:"client_id,omitempty"`
	Platform         string `json:"platform,omitempty"`
	ScreenResolution string `json:"screen_resolution,omitempty"`
	UserAgent        string `json:"user_agent,omitempty"`
}

// StoredProfile represents an enrolled biometric profile
type StoredProfile struct {
	ID         string
	OwnerID    string
	Descriptor []float32
	Confidence float64 // enrollment quality score in [0, 100]
	DeviceInfo DeviceInfo
	CreatedAt  time.Time
	UpdatedAt  time.Time
	LastUsedAt *time.Time // nil until the first successful match
	UsageCount int64
	IsActive   bool
}

// LastActivity returns LastUsedAt, or CreatedAt for a profile that was never matched.
// Retention and tie-breaking both key off this value.
func (p *StoredProfile) LastActivity() time.Time {
	if p.LastUsedAt != nil {
		return *p.LastUsedAt
	}
	return p.CreatedAt
}

// Clone returns a deep copy so callers can't mutate store-owned slices.
func (p *StoredProfile) Clone() StoredProfile {
	c := *p
	c.Descriptor = append([]float32(nil), p.Descriptor...)
	if p.LastUsedAt != nil {
		t := *p.LastUsedAt
		c.LastUsedAt = &t
	}
	return c
}

// NewProfile carries the caller-supplied fields for Create.
type NewProfile struct {
	OwnerID    string
	Descriptor []float32
	Confidence float64
	DeviceInfo DeviceInfo
}
