package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/franz/cismu/internal/acoustid"
	"github.com/franz/cismu/internal/report"
	"github.com/franz/cismu/internal/util"
)

// VerifyStats summarizes one verification pass
type VerifyStats struct {
	Checked  int
	Verified int
	Merged   int
	NoMatch  int
	Failed   int
}

// VerificationWorker attaches AcoustIDs to fingerprinted songs and merges
// songs that turn out to be the same recording.
type VerificationWorker struct {
	store    VerificationStore
	lookup   Lookup
	batch    int
	interval time.Duration
	logger   *report.EventLogger
	progress progress
}

// NewVerificationWorker creates a verification worker. interval is the pause
// between batches.
func NewVerificationWorker(st VerificationStore, lookup Lookup, batch int, interval time.Duration, logger *report.EventLogger) *VerificationWorker {
	if batch <= 0 {
		batch = 3
	}
	return &VerificationWorker{store: st, lookup: lookup, batch: batch, interval: interval, logger: logger}
}

// WithProgress reports each checked track on bar
func (w *VerificationWorker) WithProgress(bar *progressbar.ProgressBar) *VerificationWorker {
	w.progress = progress{bar: bar}
	return w
}

// Run makes one pass over the verification queue. Tracks whose lookup fails
// or finds nothing stay queued for a later pass but are skipped for the
// rest of this one.
func (w *VerificationWorker) Run(ctx context.Context) (*VerifyStats, error) {
	stats := &VerifyStats{}
	defer w.progress.finish()

	var tried []int64
	for first := true; ; first = false {
		if !first && w.interval > 0 {
			timer := time.NewTimer(w.interval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return stats, ctx.Err()
			case <-timer.C:
			}
		}
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		batch, err := w.store.NextVerificationBatch(ctx, w.batch, tried)
		if err != nil {
			return stats, fmt.Errorf("failed to poll verification queue: %w", err)
		}
		if len(batch) == 0 {
			return stats, nil
		}

		for _, c := range batch {
			stats.Checked++
			w.progress.add(1)

			results, err := w.lookup.Lookup(ctx, c.Fingerprint, int(c.DurationSeconds+0.5))
			if err != nil {
				if ctx.Err() != nil {
					return stats, ctx.Err()
				}
				util.WarnLog("AcoustID lookup failed for %s: %v", c.Path, err)
				w.logger.LogVerify(c.TrackID, "", 0, err)
				tried = append(tried, c.TrackID)
				stats.Failed++
				continue
			}

			best := acoustid.BestMatch(results)
			if best == nil {
				util.DebugLog("No AcoustID match for %s", c.Path)
				w.logger.LogVerify(c.TrackID, "", 0, nil)
				tried = append(tried, c.TrackID)
				stats.NoMatch++
				continue
			}

			res, err := w.store.ApplyVerification(ctx, c.TrackID, best.ID)
			if err != nil {
				return stats, fmt.Errorf("failed to apply verification for track %d: %w", c.TrackID, err)
			}
			w.logger.LogVerify(c.TrackID, best.ID, best.Score, nil)
			stats.Verified++

			if res.Merged {
				util.InfoLog("Merged song %d into %d (%s)", res.SongID, res.MasterID, best.ID)
				w.logger.LogMerge(c.TrackID, res.SongID, res.MasterID, best.ID)
				stats.Merged++
			}
		}
	}
}
