package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/faceid/internal/config"
	"github.com/kozaktomas/faceid/internal/database"
	"github.com/kozaktomas/faceid/internal/database/postgres"
	"github.com/kozaktomas/faceid/internal/faceid"
	"github.com/kozaktomas/faceid/internal/web"
	"github.com/kozaktomas/faceid/internal/web/middleware"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the face ID API server.
The server enrolls face descriptors, logs members in by face and issues
signed session credentials. Expired profiles are removed periodically.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides WEB_HOST)")
}

// resolveServeHostPort applies flag overrides on top of the environment.
func resolveServeHostPort(cmd *cobra.Command, cfg *config.Config) {
	if port := mustGetInt(cmd, "port"); port > 0 {
		cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Web.Host = host
	}
}

// saveHNSWIndex persists the profile index during shutdown.
func saveHNSWIndex(index *database.ProfileIndex, path string) {
	if index == nil || path == "" {
		return
	}
	if err := index.Save(path); err != nil {
		slog.Warn("failed to save HNSW index", "path", path, "error", err)
		return
	}
	slog.Info("profile HNSW index saved", "path", path, "profiles", index.Count())
}

// runRevocationSweep prunes expired denylist rows from PostgreSQL.
func runRevocationSweep(ctx context.Context, repo *postgres.RevocationRepository, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := repo.DeleteExpired(ctx)
			if err != nil {
				slog.Warn("revocation sweep failed", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("expired revocations removed", "count", n)
			}
		}
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	resolveServeHostPort(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	issuer, err := newIssuer(cfg, b.revocations)
	if err != nil {
		return fmt.Errorf("creating session issuer: %w", err)
	}

	engine, index, err := newEngine(ctx, cfg, b.store)
	if err != nil {
		return err
	}

	svc := faceid.NewService(b.store, engine, issuer, b.members, serviceOptions(cfg))
	if cfg.FaceID.CleanupInterval > 0 {
		go svc.RunRetention(ctx, cfg.FaceID.CleanupInterval)
		if repo, ok := b.revocations.(*postgres.RevocationRepository); ok {
			go runRevocationSweep(ctx, repo, cfg.FaceID.CleanupInterval)
		}
	}

	limiter := middleware.NewIPRateLimiter(cfg.RateLimit.LoginRPS, cfg.RateLimit.LoginBurst)
	go limiter.Run(ctx)

	server := web.NewServer(cfg, web.Dependencies{
		Service:     svc,
		Members:     b.members,
		LoginLimit:  limiter,
		ReadyChecks: b.checks,
		Logger:      slog.Default(),
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting face ID API on http://%s:%d\n", cfg.Web.Host, cfg.Web.Port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	saveHNSWIndex(index, cfg.Database.HNSWIndexPath)
	return nil
}
