package main

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/franz/cismu/internal/analysis"
	"github.com/franz/cismu/internal/config"
	"github.com/franz/cismu/internal/report"
	"github.com/franz/cismu/internal/store"
	"github.com/franz/cismu/internal/util"
	"github.com/franz/cismu/internal/worker"
)

var fingerprintCmd = &cobra.Command{
	Use:   "fingerprint",
	Short: "Fingerprint the tracks waiting in the fingerprint queue",
	Long: `Compute a Chromaprint fingerprint for every queued track.

Audio is decoded in-process for FLAC and through ffmpeg for everything else,
then fed to fpcalc. Tracks that cannot be fingerprinted leave the queue;
use --requeue to give them another try.`,
	RunE: runFingerprint,
}

func init() {
	rootCmd.AddCommand(fingerprintCmd)

	fingerprintCmd.Flags().Bool("requeue", false, "queue every track without a fingerprint before draining")
}

func runFingerprint(cmd *cobra.Command, args []string) error {
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

	if requeue, _ := cmd.Flags().GetBool("requeue"); requeue {
		n, err := st.RequeueUnfingerprinted(ctx)
		if err != nil {
			return fmt.Errorf("failed to requeue tracks: %w", err)
		}
		util.InfoLog("Requeued %d tracks", n)
	}

	return drainFingerprints(ctx, cfg, st, logger)
}

func drainFingerprints(ctx context.Context, cfg *config.LibraryConfig, st *store.Store, logger *report.EventLogger) error {
	if _, err := exec.LookPath("fpcalc"); err != nil {
		return fmt.Errorf("%w: fpcalc is required for fingerprinting", util.ErrToolMissing)
	}

	fp, err := analysis.NewFingerprinter(analysis.NewAutoDecoder(), cfg.FingerprintAlgorithm)
	if err != nil {
		return err
	}

	stats, err := st.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to read queue size: %w", err)
	}
	if stats.FingerprintQueue == 0 {
		util.InfoLog("Fingerprint queue is empty")
		return nil
	}

	util.InfoLog("=== Fingerprinting %d tracks ===", stats.FingerprintQueue)
	w := worker.NewFingerprintWorker(st, fp, cfg.FingerprintBatch, logger).
		WithProgress(util.NewProgressBar(int64(stats.FingerprintQueue), "Fingerprinting", "tracks"))

	result, err := w.Run(ctx)
	if result != nil {
		util.SuccessLog("Fingerprinted %d tracks", result.Fingerprinted)
		if result.Failed > 0 {
			util.WarnLog("  Failed: %d (see the event log)", result.Failed)
		}
	}
	return err
}
