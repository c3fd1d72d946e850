package main

import (
	"context"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

// NewPurgeChallengesCmd creates the purge-challenges subcommand.
func NewPurgeChallengesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge-challenges",
		Short: "Delete expired verification codes and reset secrets",
		RunE:  runPurgeChallenges,
	}
}

func runPurgeChallenges(cmd *cobra.Command, _ []string) error {
	cfg, lg, err := setup()
	if err != nil {
		return err
	}
	defer lg.Sync()

	ctx := context.Background()
	a, err := buildApp(ctx, cfg, lg.Sugar(), false)
	if err != nil {
		return oops.Code("STARTUP_FAILED").Wrap(err)
	}
	defer a.Close()

	n, err := a.otp.PurgeExpired(ctx)
	if err != nil {
		return oops.Code("PURGE_FAILED").Wrap(err)
	}
	a.metrics.Purged(n)
	cmd.Printf("Purged %d expired challenge(s)\n", n)
	return nil
}
