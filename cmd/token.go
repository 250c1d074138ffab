package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/faceid/internal/config"
	"github.com/kozaktomas/faceid/internal/database/postgres"
	"github.com/kozaktomas/faceid/internal/database/redis"
	"github.com/kozaktomas/faceid/internal/session"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue and inspect session credentials",
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue a session credential for a member",
	Long: `Issue a session credential for a member without a face login.
The member's role and email are read from the member directory.

Examples:
  # Issue a 1 hour credential for member 42
  faceid token issue --owner 42 --ttl 1h`,
	RunE: runTokenIssue,
}

var tokenVerifyCmd = &cobra.Command{
	Use:   "verify <credential>",
	Short: "Verify a session credential and print its claims",
	Long: `Verify a session credential and print its claims.
The revocation list is consulted when REDIS_URL or DATABASE_URL is configured.`,
	Args: cobra.ExactArgs(1),
	RunE: runTokenVerify,
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.AddCommand(tokenIssueCmd, tokenVerifyCmd)

	tokenIssueCmd.Flags().String("owner", "", "Member ID (required)")
	tokenIssueCmd.Flags().Duration("ttl", 0, "Credential lifetime (defaults to SESSION_TTL)")
	_ = tokenIssueCmd.MarkFlagRequired("owner")

	tokenVerifyCmd.Flags().Bool("json", false, "Output as JSON")
}

func runTokenIssue(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := context.Background()

	b := newBackend()
	if err := b.openMembers(cfg); err != nil {
		return err
	}
	defer b.Close()

	member, err := b.members.LookupMember(ctx, mustGetString(cmd, "owner"))
	if err != nil {
		return fmt.Errorf("looking up member: %w", err)
	}

	issuer, err := newIssuer(cfg, nil)
	if err != nil {
		return err
	}
	ttl := mustGetDuration(cmd, "ttl")
	if ttl == 0 {
		ttl = cfg.Session.TTL
	}

	cred, s, err := issuer.Issue(member.ID, member.Role, member.Email, ttl)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Session %s for %s (%s) expires %s\n", s.ID, s.OwnerID, s.Role, s.ExpiresAt.Format(time.RFC3339))
	fmt.Println(cred)
	return nil
}

// verifyRevocations opens the shared denylist if one is configured.
func verifyRevocations(ctx context.Context, cfg *config.Config) (session.RevocationList, func(), error) {
	switch {
	case cfg.Redis.URL != "":
		client, err := redis.NewClient(ctx, cfg.Redis.URL)
		if err != nil {
			return nil, nil, err
		}
		return redis.NewRevocationList(client), func() { _ = client.Close() }, nil
	case cfg.Database.URL != "":
		pool, err := postgres.NewPool(&cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		return postgres.NewRevocationRepository(pool), func() { _ = pool.Close() }, nil
	}
	return nil, func() {}, nil
}

func runTokenVerify(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := context.Background()

	revocations, closeFn, err := verifyRevocations(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening revocation list: %w", err)
	}
	defer closeFn()

	issuer, err := newIssuer(cfg, revocations)
	if err != nil {
		return err
	}

	s, err := issuer.Verify(ctx, args[0])
	if err != nil {
		return err
	}

	if mustGetBool(cmd, "json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}

	fmt.Printf("Session:  %s\n", s.ID)
	fmt.Printf("Owner:    %s\n", s.OwnerID)
	fmt.Printf("Role:     %s\n", s.Role)
	if s.Email != "" {
		fmt.Printf("Email:    %s\n", s.Email)
	}
	fmt.Printf("Issued:   %s\n", s.IssuedAt.Format(time.RFC3339))
	fmt.Printf("Expires:  %s\n", s.ExpiresAt.Format(time.RFC3339))
	if !issuer.RevocationEnabled() {
		fmt.Println("Revocation list not configured, revocation was not checked")
	}
	return nil
}
