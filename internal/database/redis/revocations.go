package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const revokedKeyPrefix = "faceid:revoked:"

// RevocationList stores revoked session ids as keys that expire with the credential.
type RevocationList struct {
	client *goredis.Client
	now    func() time.Time
}

// NewRevocationList creates a Redis-backed revocation list.
func NewRevocationList(client *goredis.Client) *RevocationList {
	return &RevocationList{client: client, now: time.Now}
}

func revokedKey(sessionID string) string {
	return revokedKeyPrefix + sessionID
}

// Revoke blocks sessionID until expiresAt. Already expired credentials are not stored.
func (r *RevocationList) Revoke(ctx context.Context, sessionID string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(r.now())
	if ttl <= 0 {
		return nil
	}
	if err := r.client.Set(ctx, revokedKey(sessionID), expiresAt.Unix(), ttl).Err(); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// IsRevoked reports whether sessionID is on the list.
func (r *RevocationList) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	err := r.client.Get(ctx, revokedKey(sessionID)).Err()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check revoked session: %w", err)
	}
	return true, nil
}
