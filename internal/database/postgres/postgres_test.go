//go:build integration

package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/kozaktomas/faceid/internal/biometric"
	"github.com/kozaktomas/faceid/internal/config"
	"github.com/kozaktomas/faceid/internal/database"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const testDim = 4

func setupTestContainer(t *testing.T) (*Pool, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	cfg := &config.DatabaseConfig{
		URL:          fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port()),
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}

	pool, err := Open(ctx, cfg)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to open pool: %v", err)
	}

	cleanup := func() {
		pool.Close()
		container.Terminate(ctx)
	}
	return pool, cleanup
}

func TestProfileRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewProfileRepository(pool, testDim)

	var created *database.StoredProfile

	t.Run("CreateAndGet", func(t *testing.T) {
		p, err := repo.Create(ctx, database.NewProfile{
			OwnerID:    "u1",
			Descriptor: []float32{0.1, 0.2, 0.3, 0.4},
			Confidence: 91.5,
			DeviceInfo: database.DeviceInfo{Platform: "Android", ScreenResolution: "1080x2400"},
		})
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		created = p

		got, err := repo.Get(ctx, p.ID)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.OwnerID != "u1" || !got.IsActive || got.UsageCount != 0 || got.LastUsedAt != nil {
			t.Errorf("unexpected profile: %+v", got)
		}
		if len(got.Descriptor) != testDim || got.Descriptor[3] != 0.4 {
			t.Errorf("descriptor round-trip failed: %v", got.Descriptor)
		}
		if got.DeviceInfo.ScreenResolution != "1080x2400" {
			t.Errorf("device info round-trip failed: %+v", got.DeviceInfo)
		}
	})

	t.Run("CreateRejectsWrongDimension", func(t *testing.T) {
		_, err := repo.Create(ctx, database.NewProfile{OwnerID: "u1", Descriptor: []float32{1, 2}})
		if !errors.Is(err, biometric.ErrDimensionMismatch) {
			t.Errorf("expected ErrDimensionMismatch, got %v", err)
		}
	})

	t.Run("GetNotFound", func(t *testing.T) {
		for _, id := range []string{"not-a-uuid", "2b1d9d5e-6b0c-4a55-9a53-7f7f3f0f8f10"} {
			if _, err := repo.Get(ctx, id); !errors.Is(err, database.ErrNotFound) {
				t.Errorf("Get(%q) expected ErrNotFound, got %v", id, err)
			}
		}
	})

	t.Run("RecordUsage", func(t *testing.T) {
		if err := repo.RecordUsage(ctx, created.ID); err != nil {
			t.Fatalf("RecordUsage() error = %v", err)
		}
		got, err := repo.Get(ctx, created.ID)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.UsageCount != 1 || got.LastUsedAt == nil {
			t.Errorf("usage not recorded: %+v", got)
		}
		if err := repo.RecordUsage(ctx, "2b1d9d5e-6b0c-4a55-9a53-7f7f3f0f8f10"); err != nil {
			t.Errorf("RecordUsage() on missing id should be a no-op, got %v", err)
		}
	})

	t.Run("DeactivateAndReactivate", func(t *testing.T) {
		if err := repo.Deactivate(ctx, created.ID); err != nil {
			t.Fatalf("Deactivate() error = %v", err)
		}
		active, err := repo.ListActive(ctx)
		if err != nil {
			t.Fatalf("ListActive() error = %v", err)
		}
		if len(active) != 0 {
			t.Errorf("expected no active profiles, got %d", len(active))
		}
		got, err := repo.Get(ctx, created.ID)
		if err != nil || got.IsActive {
			t.Errorf("soft-deleted profile should still be readable and inactive: %+v, %v", got, err)
		}
		if err := repo.Reactivate(ctx, created.ID); err != nil {
			t.Fatalf("Reactivate() error = %v", err)
		}
	})

	t.Run("DeactivateAllForOwner", func(t *testing.T) {
		for range 2 {
			if _, err := repo.Create(ctx, database.NewProfile{OwnerID: "u1", Descriptor: []float32{1, 0, 0, 0}}); err != nil {
				t.Fatalf("Create() error = %v", err)
			}
		}
		n, err := repo.DeactivateAllForOwner(ctx, "u1")
		if err != nil {
			t.Fatalf("DeactivateAllForOwner() error = %v", err)
		}
		if n != 3 {
			t.Errorf("expected 3 deactivated, got %d", n)
		}
		owned, err := repo.ListByOwner(ctx, "u1")
		if err != nil {
			t.Fatalf("ListByOwner() error = %v", err)
		}
		if len(owned) != 0 {
			t.Errorf("expected no active owner profiles, got %d", len(owned))
		}
	})

	t.Run("Cleanup", func(t *testing.T) {
		stale, err := repo.Create(ctx, database.NewProfile{OwnerID: "u2", Descriptor: []float32{0, 1, 0, 0}})
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		fresh, err := repo.Create(ctx, database.NewProfile{OwnerID: "u2", Descriptor: []float32{0, 0, 1, 0}})
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		_, err = pool.Exec(ctx, `
			UPDATE biometric_profiles SET last_used_at = NOW() - INTERVAL '120 days' WHERE id = $1
		`, stale.ID)
		if err != nil {
			t.Fatalf("backdate: %v", err)
		}
		_, err = pool.Exec(ctx, `
			UPDATE biometric_profiles SET last_used_at = NOW() - INTERVAL '10 days' WHERE id = $1
		`, fresh.ID)
		if err != nil {
			t.Fatalf("backdate: %v", err)
		}

		removed, err := repo.Cleanup(ctx, 90)
		if err != nil {
			t.Fatalf("Cleanup() error = %v", err)
		}
		if len(removed) != 1 || removed[0] != stale.ID {
			t.Errorf("Cleanup() removed %v, want [%s]", removed, stale.ID)
		}
		if _, err := repo.Get(ctx, fresh.ID); err != nil {
			t.Errorf("fresh profile should be retained: %v", err)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := repo.Delete(ctx, created.ID); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if err := repo.Delete(ctx, created.ID); !errors.Is(err, database.ErrNotFound) {
			t.Errorf("second Delete() expected ErrNotFound, got %v", err)
		}
	})
}

func TestRevocationRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewRevocationRepository(pool)

	if err := repo.Revoke(ctx, "live", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	if err := repo.Revoke(ctx, "gone", time.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}

	revoked, err := repo.IsRevoked(ctx, "live")
	if err != nil || !revoked {
		t.Errorf("IsRevoked(live) = %v, %v; want true", revoked, err)
	}
	revoked, err = repo.IsRevoked(ctx, "unknown")
	if err != nil || revoked {
		t.Errorf("IsRevoked(unknown) = %v, %v; want false", revoked, err)
	}

	n, err := repo.DeleteExpired(ctx)
	if err != nil {
		t.Fatalf("DeleteExpired() error = %v", err)
	}
	if n != 1 {
		t.Errorf("DeleteExpired() = %d, want 1", n)
	}
}
