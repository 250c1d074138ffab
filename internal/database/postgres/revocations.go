package postgres

import (
	"context"
	"fmt"
	"time"
)

// RevocationRepository provides a PostgreSQL-backed denylist of revoked session ids.
type RevocationRepository struct {
	pool *Pool
}

// NewRevocationRepository creates a new PostgreSQL revocation repository
func NewRevocationRepository(pool *Pool) *RevocationRepository {
	return &RevocationRepository{pool: pool}
}

// Revoke records a session id as revoked until the credential would have expired anyway
func (r *RevocationRepository) Revoke(ctx context.Context, sessionID string, expiresAt time.Time) error {
	query := `
		INSERT INTO revoked_sessions (session_id, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (session_id) DO UPDATE SET expires_at = EXCLUDED.expires_at
	`
	if _, err := r.pool.Exec(ctx, query, sessionID, expiresAt); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// IsRevoked reports whether a session id is on the denylist
func (r *RevocationRepository) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	var revoked bool
	err := r.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM revoked_sessions WHERE session_id = $1 AND expires_at > NOW())",
		sessionID,
	).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked session: %w", err)
	}
	return revoked, nil
}

// DeleteExpired removes entries whose credentials have expired and returns the count deleted
func (r *RevocationRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.pool.Exec(ctx, "DELETE FROM revoked_sessions WHERE expires_at <= NOW()")
	if err != nil {
		return 0, fmt.Errorf("delete expired revocations: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}
	return count, nil
}
