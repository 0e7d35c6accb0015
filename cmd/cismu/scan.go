package main

import (
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/franz/cismu/internal/library"
	"github.com/franz/cismu/internal/meta"
	"github.com/franz/cismu/internal/scan"
	"github.com/franz/cismu/internal/util"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan the include roots and index every audio file",
	Long: `Scan the configured include roots and index what they contain.

This command performs three steps:
1. Discovery: walks the include roots and groups audio files by device
2. Extraction: reads tags, audio properties and cover art from each file
3. Resolution: finds or creates the artists, release and song of each track

Unchanged files are recognized and keep their fingerprint and quality
score. New and changed tracks are queued for fingerprinting.`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringSlice("include", nil, "directories to scan (overrides config)")
	scanCmd.Flags().Bool("fingerprint", false, "drain the fingerprint queue after indexing")
	scanCmd.Flags().Bool("verify", false, "verify fingerprinted songs against AcoustID after indexing")
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if include, _ := cmd.Flags().GetStringSlice("include"); len(include) > 0 {
		cfg.Include = include
	}
	if len(cfg.Include) == 0 {
		return errNoInclude
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	logger := openEventLogger(cfg)
	defer logger.Close()

	if !meta.CheckFFprobeAvailable() {
		util.WarnLog("ffprobe not found in PATH - files taglib cannot read will be skipped")
	}

	lib := library.New(cfg,
		scan.New(scan.FromLibrary(cfg, logger)),
		meta.New(cfg, logger),
		st, logger)

	util.InfoLog("=== Indexing ===")
	for _, root := range cfg.Include {
		util.InfoLog("Root: %s", root)
	}

	stats, err := lib.Run(ctx)
	if stats != nil {
		printIngestStats(stats)
	}
	if err != nil {
		return err
	}

	if fp, _ := cmd.Flags().GetBool("fingerprint"); fp {
		util.InfoLog("")
		if err := drainFingerprints(ctx, cfg, st, logger); err != nil {
			return err
		}
	}
	if verify, _ := cmd.Flags().GetBool("verify"); verify {
		util.InfoLog("")
		if err := verifySongs(ctx, cfg, st, logger); err != nil {
			return err
		}
	}

	return nil
}

func printIngestStats(stats *library.IngestStats) {
	util.SuccessLog("Indexing finished in %v", stats.Duration.Round(time.Millisecond))
	util.InfoLog("  Files found: %s", humanize.Comma(int64(stats.Found)))
	util.InfoLog("  Tracks indexed: %s", humanize.Comma(int64(stats.Resolved)))
	util.InfoLog("  New songs: %d, new releases: %d", stats.NewSongs, stats.NewReleases)
	if stats.Skipped > 0 || stats.Duplicates > 0 {
		util.InfoLog("  Skipped: %d too small, %d duplicate paths", stats.Skipped, stats.Duplicates)
	}
	if stats.TooShort > 0 || stats.NoTitle > 0 {
		util.InfoLog("  Rejected: %d too short, %d without title", stats.TooShort, stats.NoTitle)
	}
	if stats.Failed > 0 || stats.ScanErrors > 0 {
		util.WarnLog("  Errors: %d files failed, %d scan errors", stats.Failed, stats.ScanErrors)
	}
}
