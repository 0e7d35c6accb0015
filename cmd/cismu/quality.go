package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/franz/cismu/internal/analysis"
	"github.com/franz/cismu/internal/util"
	"github.com/franz/cismu/internal/worker"
)

var qualityCmd = &cobra.Command{
	Use:   "quality [path]",
	Short: "Estimate audio quality from the spectrum",
	Long: `Estimate the quality of audio files from their frequency spectrum.

Lossy encoders discard high frequencies. The first ten seconds are analyzed
and the frequency above which the energy drops off is mapped to a score
from 1 to 10.

With a path, analyze that one file and print the result. Without one,
score every track in the library that has no score yet.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runQuality,
}

func init() {
	rootCmd.AddCommand(qualityCmd)
}

func runQuality(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	decoder := analysis.NewAutoDecoder()
	if len(args) == 1 {
		return analyzeOne(ctx, decoder, args[0])
	}

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

	stats, err := st.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to count unscored tracks: %w", err)
	}
	if stats.UnscoredTracks == 0 {
		util.InfoLog("Every track has a quality score")
		return nil
	}

	util.InfoLog("=== Scoring %d tracks ===", stats.UnscoredTracks)
	analyze := func(ctx context.Context, path string) (*analysis.QualityResult, error) {
		return analysis.AnalyzeQuality(ctx, decoder, path)
	}
	w := worker.NewQualityWorker(st, analyze, cfg.QualityBatch, logger).
		WithProgress(util.NewProgressBar(int64(stats.UnscoredTracks), "Scoring", "tracks"))

	result, err := w.Run(ctx)
	if result != nil {
		util.SuccessLog("Scored %d tracks", result.Scored)
		if result.Inconclusive > 0 {
			util.InfoLog("  Inconclusive: %d", result.Inconclusive)
		}
		if result.Failed > 0 {
			util.WarnLog("  Failed: %d", result.Failed)
		}
	}
	return err
}

func analyzeOne(ctx context.Context, decoder analysis.Decoder, path string) error {
	r, err := analysis.AnalyzeQuality(ctx, decoder, path)
	if err != nil {
		return fmt.Errorf("failed to analyze %s: %w", path, err)
	}

	fmt.Printf("File:       %s\n", path)
	fmt.Printf("Outcome:    %s\n", r.Outcome)
	switch r.Outcome {
	case analysis.CutoffDetected:
		fmt.Printf("Cutoff:     %.0f Hz (%.1f dB vs %.1f dB reference)\n", r.CutoffHz, r.BandDB, r.ReferenceDB)
	case analysis.NoCutoffDetected:
		fmt.Printf("Analyzed:   up to %.0f Hz\n", r.MaxAnalyzedHz)
	case analysis.InconclusiveNotEnoughWindows:
		fmt.Printf("Windows:    %d of %d\n", r.Windows, r.RequiredWindows)
	}
	fmt.Printf("Score:      %.0f\n", r.Score)
	fmt.Printf("Assessment: %s\n", r.Assessment)
	return nil
}
