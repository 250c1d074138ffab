package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kozaktomas/faceid/internal/config"
	"github.com/kozaktomas/faceid/internal/database"
	"github.com/kozaktomas/faceid/internal/database/mariadb"
	"github.com/kozaktomas/faceid/internal/database/memory"
	"github.com/kozaktomas/faceid/internal/database/postgres"
	"github.com/kozaktomas/faceid/internal/database/redis"
	"github.com/kozaktomas/faceid/internal/directory"
	"github.com/kozaktomas/faceid/internal/faceid"
	"github.com/kozaktomas/faceid/internal/matching"
	"github.com/kozaktomas/faceid/internal/session"
	"github.com/kozaktomas/faceid/internal/web/handlers"
)

// pingFunc adapts a function to handlers.Pinger.
type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

// backend holds the storage collaborators selected from configuration.
type backend struct {
	store       database.ProfileWriter
	pgPool      *postgres.Pool
	revocations session.RevocationList
	members     faceid.MemberDirectory
	checks      map[string]handlers.Pinger
	closers     []func() error
}

func newBackend() *backend {
	return &backend{checks: make(map[string]handlers.Pinger)}
}

func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			slog.Warn("closing backend", "error", err)
		}
	}
}

// openProfileStore connects to PostgreSQL when DATABASE_URL is set. Without it the
// store is in-memory unless requireDB is set, as it is for operator commands.
func openProfileStore(ctx context.Context, cfg *config.Config, requireDB bool) (*backend, error) {
	b := newBackend()

	if cfg.Database.URL == "" {
		if requireDB {
			return nil, errors.New("DATABASE_URL environment variable is required")
		}
		slog.Warn("DATABASE_URL not set, profiles are kept in memory and lost on restart")
		b.store = memory.NewProfileStore(cfg.FaceID.DescriptorDim)
		return b, nil
	}

	fmt.Printf("Connecting to PostgreSQL database...\n")
	pool, err := postgres.Open(ctx, &cfg.Database)
	if err != nil {
		return nil, err
	}
	b.pgPool = pool
	b.store = postgres.NewProfileRepository(pool, cfg.FaceID.DescriptorDim)
	b.checks["postgres"] = pool
	b.closers = append(b.closers, pool.Close)
	return b, nil
}

// openBackend selects the profile store, the revocation list and the member directory.
func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	b, err := openProfileStore(ctx, cfg, false)
	if err != nil {
		return nil, err
	}

	if err := b.openRevocations(ctx, cfg); err != nil {
		b.Close()
		return nil, err
	}
	if err := b.openMembers(cfg); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

// openRevocations prefers Redis, then the PostgreSQL table, then process memory.
func (b *backend) openRevocations(ctx context.Context, cfg *config.Config) error {
	switch {
	case cfg.Redis.URL != "":
		client, err := redis.NewClient(ctx, cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		b.revocations = redis.NewRevocationList(client)
		b.checks["redis"] = pingFunc(func(ctx context.Context) error { return redis.Ping(ctx, client) })
		b.closers = append(b.closers, client.Close)
		slog.Info("session revocation enabled", "backend", "redis")
	case b.pgPool != nil:
		b.revocations = postgres.NewRevocationRepository(b.pgPool)
		slog.Info("session revocation enabled", "backend", "postgres")
	default:
		b.revocations = session.NewMemoryRevocations(nil)
		slog.Info("session revocation enabled", "backend", "memory")
	}
	return nil
}

// openMembers prefers the MariaDB member database, then a YAML file.
func (b *backend) openMembers(cfg *config.Config) error {
	switch {
	case cfg.Members.DatabaseURL != "":
		pool, err := mariadb.NewPool(cfg.Members.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to member database: %w", err)
		}
		b.members = mariadb.NewMemberDirectory(pool)
		b.checks["members"] = pool
		b.closers = append(b.closers, pool.Close)
		slog.Info("member directory", "backend", "mariadb")
	case cfg.Members.File != "":
		dir, err := directory.LoadFile(cfg.Members.File)
		if err != nil {
			return err
		}
		b.members = dir
		slog.Info("member directory", "backend", "file", "path", cfg.Members.File, "members", dir.Len())
	default:
		return errors.New("MEMBERS_DATABASE_URL or MEMBERS_FILE is required")
	}
	return nil
}

// newIssuer creates the session issuer. revocations may be nil.
func newIssuer(cfg *config.Config, revocations session.RevocationList) (*session.Issuer, error) {
	opts := []session.Option{session.WithIssuer(cfg.Session.Issuer)}
	if revocations != nil {
		opts = append(opts, session.WithRevocations(revocations))
	}
	return session.NewIssuer([]byte(cfg.Session.Secret), opts...)
}

// newEngine builds the configured matching engine. For the hnsw matcher the index is
// loaded from HNSW_INDEX_PATH and reconciled with the active profiles, or rebuilt
// from the store when there is no usable file.
func newEngine(ctx context.Context, cfg *config.Config, store database.ProfileReader) (matching.Engine, *database.ProfileIndex, error) {
	if cfg.FaceID.Matcher != config.MatcherHNSW {
		return matching.NewLinearEngine(store, cfg.FaceID.MaxScan), nil, nil
	}

	index := database.NewProfileIndex(cfg.FaceID.DescriptorDim)
	profiles, err := store.ListActive(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("listing profiles for index: %w", err)
	}

	loaded := false
	if path := cfg.Database.HNSWIndexPath; path != "" {
		loaded, err = index.Load(path, profiles)
		if err != nil {
			slog.Warn("failed to load HNSW index, rebuilding", "path", path, "error", err)
			loaded = false
		}
	}
	if !loaded {
		index.Build(profiles)
	}
	slog.Info("profile HNSW index ready", "profiles", index.Count(), "loaded", loaded)

	return matching.NewIndexedEngine(index, store, cfg.FaceID.MaxScan, 0), index, nil
}

func serviceOptions(cfg *config.Config) faceid.Options {
	return faceid.Options{
		Dim:           cfg.FaceID.DescriptorDim,
		Threshold:     cfg.FaceID.MatchThreshold,
		SessionTTL:    cfg.Session.TTL,
		LoginTimeout:  cfg.FaceID.LoginTimeout,
		RetentionDays: cfg.FaceID.RetentionDays,
		Logger:        slog.Default(),
	}
}
