package cmd

import (
	"context"
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/faceid/internal/config"
	"github.com/kozaktomas/faceid/internal/database"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the persisted profile HNSW index",
}

var indexBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the HNSW index from all active profiles and save it",
	Long: `Build the HNSW candidate index used by the hnsw matcher from all active
profiles in PostgreSQL and save it, so the server can load it on startup
instead of rebuilding.

Examples:
  # Save to HNSW_INDEX_PATH
  faceid index build

  # Save to a specific file
  faceid index build --output /var/lib/faceid/profiles.hnsw`,
	RunE: runIndexBuild,
}

var indexInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show metadata of the persisted HNSW index",
	RunE:  runIndexInfo,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.AddCommand(indexBuildCmd, indexInfoCmd)

	indexBuildCmd.Flags().String("output", "", "Index file path (defaults to HNSW_INDEX_PATH)")
	indexInfoCmd.Flags().String("path", "", "Index file path (defaults to HNSW_INDEX_PATH)")
}

func indexPath(cmd *cobra.Command, flag string, cfg *config.Config) (string, error) {
	path := mustGetString(cmd, flag)
	if path == "" {
		path = cfg.Database.HNSWIndexPath
	}
	if path == "" {
		return "", fmt.Errorf("--%s or HNSW_INDEX_PATH is required", flag)
	}
	return path, nil
}

func runIndexBuild(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := context.Background()

	path, err := indexPath(cmd, "output", cfg)
	if err != nil {
		return err
	}

	b, err := openProfileStore(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer b.Close()

	profiles, err := b.store.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("listing profiles: %w", err)
	}
	fmt.Printf("Indexing %d active profiles\n", len(profiles))

	bar := progressbar.NewOptions(len(profiles),
		progressbar.OptionSetDescription("Building index"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("profiles"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	index := database.NewProfileIndex(cfg.FaceID.DescriptorDim)
	skipped := 0
	for i := range profiles {
		if len(profiles[i].Descriptor) != cfg.FaceID.DescriptorDim {
			skipped++
		} else {
			index.Add(&profiles[i])
		}
		_ = bar.Add(1)
	}
	_ = bar.Finish()
	fmt.Println()

	if err := index.Save(path); err != nil {
		return err
	}
	fmt.Printf("Saved index with %d profiles to %s\n", index.Count(), path)
	if skipped > 0 {
		fmt.Printf("Skipped %d profiles with a descriptor length other than %d\n", skipped, cfg.FaceID.DescriptorDim)
	}
	return nil
}

func runIndexInfo(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	path, err := indexPath(cmd, "path", cfg)
	if err != nil {
		return err
	}
	meta, err := database.LoadHNSWMetadata(path)
	if err != nil {
		return err
	}

	fmt.Printf("Path:      %s\n", path)
	fmt.Printf("Profiles:  %d\n", meta.ProfileCount)
	fmt.Printf("Dimension: %d\n", meta.Dim)
	fmt.Printf("Built:     %s\n", meta.BuildTime.Format("2006-01-02 15:04:05"))
	fmt.Printf("Version:   %d\n", meta.Version)
	return nil
}
