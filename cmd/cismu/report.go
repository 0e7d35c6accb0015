package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/franz/cismu/internal/report"
	"github.com/franz/cismu/internal/util"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Write a Markdown summary of the library",
	Long: `Generate a summary report of the library in Markdown format.

The report includes:
- Catalog counts (artists, releases, songs, tracks, genres, artwork)
- Queue status (fingerprinting, verification, quality scoring)
- Quality score distribution
- The artists with the most tracks

The report is saved to <event_log_dir>/reports/<timestamp>/summary.md`,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().String("out", "", "Output directory for report (default: <event_log_dir>/reports/<timestamp>)")
	reportCmd.Flags().String("event-log", "", "Path to the event log to reference in the report (optional)")
}

func runReport(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	util.InfoLog("=== Generating Summary Report ===")
	util.InfoLog("Database: %s", cfg.Database)

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	eventLogPath, _ := cmd.Flags().GetString("event-log")

	summary, err := report.GenerateSummaryReport(ctx, db, eventLogPath)
	if err != nil {
		return fmt.Errorf("failed to generate report: %w", err)
	}
	summary.DatabasePath = cfg.Database

	outputDir, _ := cmd.Flags().GetString("out")
	if outputDir == "" {
		timestamp := time.Now().Format("20060102-150405")
		outputDir = filepath.Join(cfg.EventLogDir, "reports", timestamp)
	}
	outputPath := filepath.Join(outputDir, "summary.md")

	if err := report.WriteMarkdownReport(summary, outputPath); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	util.SuccessLog("Report saved to: %s", outputPath)
	st := summary.Stats
	util.InfoLog("  Artists: %s, releases: %s, songs: %s",
		humanize.Comma(int64(st.Artists)), humanize.Comma(int64(st.Releases)), humanize.Comma(int64(st.Songs)))
	util.InfoLog("  Tracks: %s (%s, %v)",
		humanize.Comma(int64(st.Tracks)), humanize.IBytes(uint64(st.TotalBytes)), summary.TotalDuration())
	if st.FingerprintQueue > 0 || st.PendingVerification > 0 {
		util.InfoLog("  Pending: %d to fingerprint, %d to verify", st.FingerprintQueue, st.PendingVerification)
	}

	return nil
}
