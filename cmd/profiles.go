package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/faceid/internal/config"
	"github.com/kozaktomas/faceid/internal/database"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "Inspect and manage face profiles",
}

var profilesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active profiles",
	Long: `List active face profiles, either of one member or all of them.
Descriptors are never printed.

Examples:
  faceid profiles list --owner 42
  faceid profiles list --json`,
	RunE: runProfilesList,
}

var profilesDeactivateCmd = &cobra.Command{
	Use:   "deactivate [profile-id]",
	Short: "Deactivate one profile, or all profiles of a member",
	Long: `Deactivate (soft-delete) one profile by id, or every active profile of a
member with --owner. Deactivated profiles never match a login.

Examples:
  faceid profiles deactivate 0f8c2a9e-...
  faceid profiles deactivate --owner 42`,
	Args: cobra.MaximumNArgs(1),
	RunE: runProfilesDeactivate,
}

var profilesDeleteCmd = &cobra.Command{
	Use:   "delete <profile-id>",
	Short: "Permanently delete a profile",
	Args:  cobra.ExactArgs(1),
	RunE:  runProfilesDelete,
}

func init() {
	rootCmd.AddCommand(profilesCmd)
	profilesCmd.AddCommand(profilesListCmd, profilesDeactivateCmd, profilesDeleteCmd)

	profilesListCmd.Flags().String("owner", "", "Only list profiles of this member")
	profilesListCmd.Flags().Bool("json", false, "Output as JSON")
	profilesDeactivateCmd.Flags().String("owner", "", "Deactivate all profiles of this member")
}

// ProfileEntry is one profile in the list output.
type ProfileEntry struct {
	ID         string              `json:"id"`
	OwnerID    string              `json:"owner_id"`
	DeviceInfo database.DeviceInfo `json:"device_info"`
	Confidence float64             `json:"confidence"`
	CreatedAt  time.Time           `json:"created_at"`
	LastUsedAt *time.Time          `json:"last_used_at,omitempty"`
	UsageCount int64               `json:"usage_count"`
}

func openOperatorStore(ctx context.Context) (*backend, error) {
	return openProfileStore(ctx, config.Load(), true)
}

func runProfilesList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	b, err := openOperatorStore(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	var profiles []database.StoredProfile
	if owner := mustGetString(cmd, "owner"); owner != "" {
		profiles, err = b.store.ListByOwner(ctx, owner)
	} else {
		profiles, err = b.store.ListActive(ctx)
	}
	if err != nil {
		return fmt.Errorf("listing profiles: %w", err)
	}

	entries := make([]ProfileEntry, 0, len(profiles))
	for _, p := range profiles {
		entries = append(entries, ProfileEntry{
			ID:         p.ID,
			OwnerID:    p.OwnerID,
			DeviceInfo: p.DeviceInfo,
			Confidence: p.Confidence,
			CreatedAt:  p.CreatedAt,
			LastUsedAt: p.LastUsedAt,
			UsageCount: p.UsageCount,
		})
	}

	if mustGetBool(cmd, "json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	if len(entries) == 0 {
		fmt.Println("No active profiles")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tOWNER\tPLATFORM\tCREATED\tLAST USED\tUSES")
	for _, e := range entries {
		lastUsed := "never"
		if e.LastUsedAt != nil {
			lastUsed = e.LastUsedAt.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n",
			e.ID, e.OwnerID, e.DeviceInfo.Platform, e.CreatedAt.Format("2006-01-02 15:04"), lastUsed, e.UsageCount)
	}
	return w.Flush()
}

func runProfilesDeactivate(cmd *cobra.Command, args []string) error {
	owner := mustGetString(cmd, "owner")
	if (owner == "") == (len(args) == 0) {
		return errors.New("pass either a profile id or --owner")
	}

	ctx := context.Background()
	b, err := openOperatorStore(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	if owner != "" {
		n, err := b.store.DeactivateAllForOwner(ctx, owner)
		if err != nil {
			return err
		}
		fmt.Printf("Deactivated %d profile(s) of %s\n", n, owner)
		return nil
	}

	if err := b.store.Deactivate(ctx, args[0]); err != nil {
		return err
	}
	fmt.Printf("Deactivated profile %s\n", args[0])
	return nil
}

func runProfilesDelete(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	b, err := openOperatorStore(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	if err := b.store.Delete(ctx, args[0]); err != nil {
		return err
	}
	fmt.Printf("Deleted profile %s\n", args[0])
	return nil
}
