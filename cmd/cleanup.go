package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/faceid/internal/config"
	"github.com/kozaktomas/faceid/internal/faceid"
	"github.com/kozaktomas/faceid/internal/matching"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove profiles unused for longer than the retention window",
	Long: `Permanently remove face profiles whose last use (or creation, if never used)
is older than the retention window.

Examples:
  # Use FACEID_RETENTION_DAYS (default 90)
  faceid cleanup

  # Remove profiles idle for more than 30 days
  faceid cleanup --retention-days 30`,
	RunE: runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)

	cleanupCmd.Flags().Int("retention-days", -1, "Retention window in days (defaults to FACEID_RETENTION_DAYS)")
	cleanupCmd.Flags().Bool("json", false, "Output as JSON")
}

// CleanupResult is the JSON output of the cleanup command
type CleanupResult struct {
	Removed       int `json:"removed"`
	RetentionDays int `json:"retention_days"`
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := context.Background()

	days := mustGetInt(cmd, "retention-days")
	if days < 0 {
		days = cfg.FaceID.RetentionDays
	}

	b, err := openProfileStore(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer b.Close()

	// Cleanup needs neither sessions nor the member directory.
	svc := faceid.NewService(b.store, matching.NewLinearEngine(b.store, 0), nil, nil, serviceOptions(cfg))
	removed, err := svc.CleanupOlderThan(ctx, days)
	if err != nil {
		return err
	}

	if mustGetBool(cmd, "json") {
		return json.NewEncoder(os.Stdout).Encode(CleanupResult{Removed: removed, RetentionDays: days})
	}
	fmt.Printf("Removed %d profile(s) unused for more than %d days\n", removed, days)
	if removed > 0 && cfg.Database.HNSWIndexPath != "" {
		fmt.Println("Run 'faceid index build' to refresh the persisted HNSW index")
	}
	return nil
}
