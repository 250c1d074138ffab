package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/kozaktomas/faceid/internal/biometric"
	"github.com/kozaktomas/faceid/internal/database"
	"github.com/pgvector/pgvector-go"
)

const profileColumns = `id, owner_id, descriptor, confidence, device_info,
	created_at, updated_at, last_used_at, usage_count, is_active`

// ProfileRepository provides PostgreSQL-backed biometric profile storage.
type ProfileRepository struct {
	pool *Pool
	dim  int
}

var _ database.ProfileWriter = (*ProfileRepository)(nil)

// NewProfileRepository creates a new PostgreSQL profile repository for descriptors of length dim.
func NewProfileRepository(pool *Pool, dim int) *ProfileRepository {
	return &ProfileRepository{pool: pool, dim: dim}
}

// Create inserts a new active profile. The owner index is the owner_id B-tree,
// maintained by the same INSERT.
func (r *ProfileRepository) Create(ctx context.Context, p database.NewProfile) (*database.StoredProfile, error) {
	if err := biometric.ValidateDescriptor(p.Descriptor, r.dim); err != nil {
		return nil, fmt.Errorf("create profile: %w", err)
	}

	deviceInfo, err := json.Marshal(p.DeviceInfo)
	if err != nil {
		return nil, fmt.Errorf("marshal device info: %w", err)
	}

	query := `
		INSERT INTO biometric_profiles (id, owner_id, descriptor, dim, confidence, device_info)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + profileColumns

	row := r.pool.QueryRow(ctx, query,
		uuid.NewString(), p.OwnerID, pgvector.NewVector(p.Descriptor), r.dim, p.Confidence, deviceInfo,
	)
	profile, err := scanProfile(row)
	if err != nil {
		return nil, fmt.Errorf("insert profile: %w", err)
	}
	return &profile, nil
}

// Get retrieves a profile by id.
func (r *ProfileRepository) Get(ctx context.Context, id string) (*database.StoredProfile, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, database.ErrNotFound
	}

	row := r.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM biometric_profiles WHERE id = $1`, id)
	profile, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &profile, nil
}

// ListActive returns all active profiles.
func (r *ProfileRepository) ListActive(ctx context.Context) ([]database.StoredProfile, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+profileColumns+`
		FROM biometric_profiles
		WHERE is_active
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("query active profiles: %w", err)
	}
	defer rows.Close()

	return scanProfiles(rows)
}

// ListByOwner returns the active profiles of one owner.
func (r *ProfileRepository) ListByOwner(ctx context.Context, ownerID string) ([]database.StoredProfile, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+profileColumns+`
		FROM biometric_profiles
		WHERE owner_id = $1 AND is_active
		ORDER BY created_at, id
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query owner profiles: %w", err)
	}
	defer rows.Close()

	return scanProfiles(rows)
}

// CountActive returns the number of active profiles.
func (r *ProfileRepository) CountActive(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM biometric_profiles WHERE is_active").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count active profiles: %w", err)
	}
	return count, nil
}

// RecordUsage stamps last_used_at and increments usage_count. Missing ids are ignored.
func (r *ProfileRepository) RecordUsage(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return nil
	}
	_, err := r.pool.Exec(ctx, `
		UPDATE biometric_profiles
		SET last_used_at = NOW(), usage_count = usage_count + 1, updated_at = NOW()
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("record profile usage: %w", err)
	}
	return nil
}

// Deactivate soft-deletes a profile.
func (r *ProfileRepository) Deactivate(ctx context.Context, id string) error {
	return r.setActive(ctx, id, false)
}

// Reactivate restores a soft-deleted profile.
func (r *ProfileRepository) Reactivate(ctx context.Context, id string) error {
	return r.setActive(ctx, id, true)
}

func (r *ProfileRepository) setActive(ctx context.Context, id string, active bool) error {
	if _, err := uuid.Parse(id); err != nil {
		return database.ErrNotFound
	}
	result, err := r.pool.Exec(ctx, `
		UPDATE biometric_profiles
		SET is_active = $2,
		    updated_at = CASE WHEN is_active = $2 THEN updated_at ELSE NOW() END
		WHERE id = $1
	`, id, active)
	if err != nil {
		return fmt.Errorf("update profile state: %w", err)
	}
	return requireAffected(result)
}

// DeactivateAllForOwner soft-deletes every active profile of an owner.
func (r *ProfileRepository) DeactivateAllForOwner(ctx context.Context, ownerID string) (int, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE biometric_profiles
		SET is_active = FALSE, updated_at = NOW()
		WHERE owner_id = $1 AND is_active
	`, ownerID)
	if err != nil {
		return 0, fmt.Errorf("deactivate owner profiles: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}
	return int(count), nil
}

// Delete permanently removes a profile.
func (r *ProfileRepository) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return database.ErrNotFound
	}
	result, err := r.pool.Exec(ctx, "DELETE FROM biometric_profiles WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	return requireAffected(result)
}

// Cleanup removes profiles idle for longer than retentionDays and returns their ids.
func (r *ProfileRepository) Cleanup(ctx context.Context, retentionDays int) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		DELETE FROM biometric_profiles
		WHERE COALESCE(last_used_at, created_at) < NOW() - make_interval(days => $1)
		RETURNING id
	`, retentionDays)
	if err != nil {
		return nil, fmt.Errorf("cleanup profiles: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan removed profile id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate removed profiles: %w", err)
	}
	return ids, nil
}

func requireAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if n == 0 {
		return database.ErrNotFound
	}
	return nil
}

// scanProfile reads one row in profileColumns order.
func scanProfile(scanner interface{ Scan(...any) error }) (database.StoredProfile, error) {
	var (
		p          database.StoredProfile
		vec        pgvector.Vector
		deviceInfo []byte
		lastUsedAt sql.NullTime
	)
	err := scanner.Scan(
		&p.ID, &p.OwnerID, &vec, &p.Confidence, &deviceInfo,
		&p.CreatedAt, &p.UpdatedAt, &lastUsedAt, &p.UsageCount, &p.IsActive,
	)
	if err != nil {
		return p, err //nolint:wrapcheck // callers distinguish sql.ErrNoRows
	}

	p.Descriptor = vec.Slice()
	if lastUsedAt.Valid {
		t := lastUsedAt.Time
		p.LastUsedAt = &t
	}
	if len(deviceInfo) > 0 {
		if err := json.Unmarshal(deviceInfo, &p.DeviceInfo); err != nil {
			return p, fmt.Errorf("unmarshal device info: %w", err)
		}
	}
	return p, nil
}

func scanProfiles(rows *sql.Rows) ([]database.StoredProfile, error) {
	var profiles []database.StoredProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profiles: %w", err)
	}
	return profiles, nil
}
