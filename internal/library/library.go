// Package library wires the scanner, the metadata pipeline and the store
// into one ingest run, and keeps the index current in watch mode.
package library

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/franz/cismu/internal/config"
	"github.com/franz/cismu/internal/meta"
	"github.com/franz/cismu/internal/model"
	"github.com/franz/cismu/internal/report"
	"github.com/franz/cismu/internal/scan"
	"github.com/franz/cismu/internal/store"
	"github.com/franz/cismu/internal/util"
)

// Scanner discovers files
type Scanner interface {
	Scan(ctx context.Context) (*scan.Result, error)
}

// Processor turns scanned files into unresolved tracks
type Processor interface {
	Process(ctx context.Context, res *scan.Result) <-chan meta.Result
}

// Resolver persists one track
type Resolver interface {
	Resolve(ctx context.Context, track *model.UnresolvedTrack) (*store.ResolveResult, error)
}

// IngestStats summarizes one ingest
type IngestStats struct {
	Found       int
	Skipped     int
	Duplicates  int
	ScanErrors  int
	Resolved    int
	NewSongs    int
	NewReleases int
	TooShort    int
	NoTitle     int
	Failed      int
	Duration    time.Duration
}

// Library runs scan, process and resolve as one pipeline
type Library struct {
	cfg       *config.LibraryConfig
	scanner   Scanner
	processor Processor
	resolver  Resolver
	logger    *report.EventLogger
}

// New creates a Library
func New(cfg *config.LibraryConfig, scanner Scanner, processor Processor, resolver Resolver, logger *report.EventLogger) *Library {
	return &Library{
		cfg:       cfg,
		scanner:   scanner,
		processor: processor,
		resolver:  resolver,
		logger:    logger,
	}
}

// Run scans every include root and resolves what it finds
func (l *Library) Run(ctx context.Context) (*IngestStats, error) {
	start := time.Now()

	res, err := l.scanner.Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}
	util.InfoLog("Discovered %d files (%d skipped, %d duplicates)", res.Total(), res.Skipped, res.Duplicates)
	for _, e := range res.Errors {
		util.DebugLog("Scan error: %v", e)
	}

	stats, err := l.Ingest(ctx, res)
	stats.Found = res.Total()
	stats.Skipped = res.Skipped
	stats.Duplicates = res.Duplicates
	stats.ScanErrors = len(res.Errors)
	stats.Duration = time.Since(start)
	return stats, err
}

// Ingest processes and resolves an already scanned set of files. Per-file
// failures are counted, never returned; the only error is ctx's.
func (l *Library) Ingest(ctx context.Context, res *scan.Result) (*IngestStats, error) {
	stats := &IngestStats{}
	start := time.Now()

	bar := util.NewProgressBar(int64(res.Total()), "Indexing", "files")

	for r := range l.processor.Process(ctx, res) {
		if bar != nil {
			bar.Add(1)
		}

		if r.Err != nil {
			switch {
			case errors.Is(r.Err, util.ErrTooShort):
				stats.TooShort++
			case errors.Is(r.Err, util.ErrNoTitle):
				util.DebugLog("Skipping untitled file %s", r.Path)
				stats.NoTitle++
			case ctx.Err() != nil:
			default:
				util.WarnLog("Skipping %s: %v", r.Path, r.Err)
				stats.Failed++
			}
			continue
		}

		rr, err := l.resolver.Resolve(ctx, r.Track)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			util.WarnLog("Failed to index %s: %v", r.Path, err)
			l.logger.LogError(report.EventResolve, r.Path, err)
			stats.Failed++
			continue
		}

		l.logger.LogResolve(r.Path, rr.TrackID, rr.SongID, rr.ReleaseID)
		stats.Resolved++
		if rr.NewSong {
			stats.NewSongs++
		}
		if rr.NewRelease {
			stats.NewReleases++
		}
	}

	if bar != nil {
		bar.Finish()
	}

	stats.Duration = time.Since(start)
	return stats, ctx.Err()
}
