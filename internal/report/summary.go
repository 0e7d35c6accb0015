package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/franz/cismu/internal/store"
)

// SummaryReport is a snapshot of the library for the markdown report
type SummaryReport struct {
	GeneratedAt time.Time

	Stats      store.Stats
	Quality    []store.QualityBucket
	TopArtists []store.TopArtist

	DatabasePath string
	EventLogPath string
}

// GenerateSummaryReport gathers statistics from the library database
func GenerateSummaryReport(ctx context.Context, db *store.Store, eventLogPath string) (*SummaryReport, error) {
	stats, err := db.Stats(ctx)
	if err != nil {
		return nil, err
	}
	quality, err := db.QualityDistribution(ctx)
	if err != nil {
		return nil, err
	}
	top, err := db.TopArtists(ctx, 10)
	if err != nil {
		return nil, err
	}

	return &SummaryReport{
		GeneratedAt:  time.Now(),
		Stats:        *stats,
		Quality:      quality,
		TopArtists:   top,
		EventLogPath: eventLogPath,
	}, nil
}

// TotalDuration returns the summed play time of all tracks
func (r *SummaryReport) TotalDuration() time.Duration {
	return time.Duration(r.Stats.TotalSeconds * float64(time.Second)).Round(time.Second)
}

// WriteMarkdownReport writes the summary report as Markdown
func WriteMarkdownReport(report *SummaryReport, outputPath string) error {
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	var md strings.Builder
	st := report.Stats

	md.WriteString("# cismu - Library Report\n\n")
	md.WriteString(fmt.Sprintf("**Generated:** %s\n\n", report.GeneratedAt.Format("2006-01-02 15:04:05")))

	if report.DatabasePath != "" {
		md.WriteString(fmt.Sprintf("**Database:** `%s`\n\n", report.DatabasePath))
	}
	if report.EventLogPath != "" {
		md.WriteString(fmt.Sprintf("**Event Log:** `%s`\n\n", report.EventLogPath))
	}

	md.WriteString("---\n\n")

	md.WriteString("## 📊 Library\n\n")
	md.WriteString("| Metric | Value |\n")
	md.WriteString("|--------|-------|\n")
	md.WriteString(fmt.Sprintf("| Artists | %s |\n", humanize.Comma(int64(st.Artists))))
	md.WriteString(fmt.Sprintf("| Releases | %s |\n", humanize.Comma(int64(st.Releases))))
	md.WriteString(fmt.Sprintf("| Songs | %s |\n", humanize.Comma(int64(st.Songs))))
	md.WriteString(fmt.Sprintf("| Tracks | %s |\n", humanize.Comma(int64(st.Tracks))))
	if st.Genres > 0 {
		md.WriteString(fmt.Sprintf("| Genres & Styles | %d |\n", st.Genres))
	}
	if st.Artworks > 0 {
		md.WriteString(fmt.Sprintf("| Cover Images | %d |\n", st.Artworks))
	}
	md.WriteString(fmt.Sprintf("| Total Size | %s |\n", humanize.IBytes(uint64(st.TotalBytes))))
	md.WriteString(fmt.Sprintf("| Total Play Time | %s |\n", report.TotalDuration()))
	md.WriteString("\n")

	md.WriteString("## 🔎 Fingerprinting & Verification\n\n")
	md.WriteString("| Metric | Value |\n")
	md.WriteString("|--------|-------|\n")
	md.WriteString(fmt.Sprintf("| Waiting for Fingerprint | %d |\n", st.FingerprintQueue))
	md.WriteString(fmt.Sprintf("| Waiting for Verification | %d |\n", st.PendingVerification))
	md.WriteString(fmt.Sprintf("| Verified Songs | %d |\n", st.VerifiedSongs))
	if st.Songs > 0 {
		pct := float64(st.VerifiedSongs) / float64(st.Songs) * 100
		md.WriteString(fmt.Sprintf("| Verified Share | %s%% |\n", humanize.FtoaWithDigits(pct, 1)))
	}
	md.WriteString("\n")

	if len(report.Quality) > 0 || st.UnscoredTracks > 0 {
		md.WriteString("## 🎚️ Spectral Quality\n\n")
		md.WriteString("| Assessment | Tracks |\n")
		md.WriteString("|------------|--------|\n")
		for _, b := range report.Quality {
			md.WriteString(fmt.Sprintf("| %s | %d |\n", b.Assessment, b.Count))
		}
		if st.UnscoredTracks > 0 {
			md.WriteString(fmt.Sprintf("| *Not analyzed* | %d |\n", st.UnscoredTracks))
		}
		md.WriteString("\n")
	}

	if len(report.TopArtists) > 0 {
		md.WriteString("## 🎤 Top Artists\n\n")
		md.WriteString("| # | Artist | Songs |\n")
		md.WriteString("|---|--------|-------|\n")
		for i, a := range report.TopArtists {
			md.WriteString(fmt.Sprintf("| %d | %s | %d |\n", i+1, escapeCell(a.Name), a.Songs))
		}
		md.WriteString("\n")
	}

	md.WriteString("---\n\n")
	md.WriteString(fmt.Sprintf("*Generated by cismu %s*\n", humanize.Time(report.GeneratedAt)))

	if err := os.WriteFile(outputPath, []byte(md.String()), 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	return nil
}

// escapeCell keeps artist names from breaking the table
func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}
