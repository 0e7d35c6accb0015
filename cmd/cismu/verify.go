package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/franz/cismu/internal/acoustid"
	"github.com/franz/cismu/internal/config"
	"github.com/franz/cismu/internal/report"
	"github.com/franz/cismu/internal/store"
	"github.com/franz/cismu/internal/util"
	"github.com/franz/cismu/internal/worker"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Look up fingerprinted songs on AcoustID and merge duplicates",
	Long: `Send the fingerprint of every unverified song to AcoustID.

The best match's id is attached to the song. When another song already
carries that id, the two are the same recording: the track moves to the
existing song, credits are merged and the duplicate song is removed.

Requires an AcoustID application key (acoustid.client_key or
CISMU_ACOUSTID_CLIENT_KEY).`,
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	logger := openEventLogger(cfg)
	defer logger.Close()

	return verifySongs(ctx, cfg, st, logger)
}

func verifySongs(ctx context.Context, cfg *config.LibraryConfig, st *store.Store, logger *report.EventLogger) error {
	client, err := acoustid.NewClient(cfg.AcoustID)
	if err != nil {
		return err
	}
	defer client.Close()

	stats, err := st.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to read queue size: %w", err)
	}
	if stats.PendingVerification == 0 {
		util.InfoLog("Nothing to verify")
		return nil
	}

	util.InfoLog("=== Verifying %d tracks ===", stats.PendingVerification)
	w := worker.NewVerificationWorker(st, client, cfg.VerifyBatch, cfg.VerifyInterval, logger).
		WithProgress(util.NewProgressBar(int64(stats.PendingVerification), "Verifying", "tracks"))

	result, err := w.Run(ctx)
	if result != nil {
		util.SuccessLog("Verified %d of %d tracks", result.Verified, result.Checked)
		if result.Merged > 0 {
			util.InfoLog("  Merged songs: %d", result.Merged)
		}
		if result.NoMatch > 0 {
			util.InfoLog("  No match: %d", result.NoMatch)
		}
		if result.Failed > 0 {
			util.WarnLog("  Lookups failed: %d (retried on the next run)", result.Failed)
		}
	}
	return err
}
