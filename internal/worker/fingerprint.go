package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/schollz/progressbar/v3"
	"github.com/sourcegraph/conc/pool"

	"github.com/franz/cismu/internal/report"
	"github.com/franz/cismu/internal/store"
	"github.com/franz/cismu/internal/util"
)

// FingerprintStats summarizes one drain of the fingerprint queue
type FingerprintStats struct {
	Fingerprinted int
	Failed        int
}

// FingerprintWorker fingerprints queued tracks a batch at a time
type FingerprintWorker struct {
	store    FingerprintStore
	fp       Fingerprinter
	batch    int
	logger   *report.EventLogger
	progress progress
}

// NewFingerprintWorker creates a fingerprint worker
func NewFingerprintWorker(st FingerprintStore, fp Fingerprinter, batch int, logger *report.EventLogger) *FingerprintWorker {
	if batch <= 0 {
		batch = 10
	}
	return &FingerprintWorker{store: st, fp: fp, batch: batch, logger: logger}
}

// WithProgress reports each finished track on bar
func (w *FingerprintWorker) WithProgress(bar *progressbar.ProgressBar) *FingerprintWorker {
	w.progress = progress{bar: bar}
	return w
}

// Run drains the queue until a poll comes back empty or ctx ends. Failed
// tracks leave the queue so the loop always terminates.
func (w *FingerprintWorker) Run(ctx context.Context) (*FingerprintStats, error) {
	stats := &FingerprintStats{}
	defer w.progress.finish()

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		batch, err := w.store.NextFingerprintBatch(ctx, w.batch)
		if err != nil {
			return stats, fmt.Errorf("failed to poll fingerprint queue: %w", err)
		}
		if len(batch) == 0 {
			return stats, nil
		}

		if err := w.runBatch(ctx, batch, stats); err != nil {
			return stats, err
		}
	}
}

func (w *FingerprintWorker) runBatch(ctx context.Context, batch []store.QueuedTrack, stats *FingerprintStats) error {
	type outcome struct {
		track store.QueuedTrack
		fp    string
		err   error
	}

	var mu sync.Mutex
	outcomes := make([]outcome, 0, len(batch))

	p := pool.New().WithMaxGoroutines(len(batch))
	for _, track := range batch {
		p.Go(func() {
			fp, err := w.fp.Fingerprint(ctx, track.Path)
			mu.Lock()
			outcomes = append(outcomes, outcome{track: track, fp: fp, err: err})
			mu.Unlock()
		})
	}
	p.Wait()

	// Store writes stay on this goroutine; the store has a single writer anyway
	for _, o := range outcomes {
		if o.err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			util.WarnLog("Fingerprint failed for %s: %v", o.track.Path, o.err)
			w.logger.LogFingerprint(o.track.ID, o.track.Path, o.err)
			if err := w.store.DropFingerprintJob(ctx, o.track.ID); err != nil {
				return fmt.Errorf("failed to drop fingerprint job %d: %w", o.track.ID, err)
			}
			stats.Failed++
		} else {
			if err := w.store.SaveFingerprint(ctx, o.track.ID, o.fp); err != nil {
				return fmt.Errorf("failed to save fingerprint for %d: %w", o.track.ID, err)
			}
			w.logger.LogFingerprint(o.track.ID, o.track.Path, nil)
			stats.Fingerprinted++
		}
		w.progress.add(1)
	}

	return nil
}
