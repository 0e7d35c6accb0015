package worker

import (
	"context"
	"fmt"

	"github.com/schollz/progressbar/v3"

	"github.com/franz/cismu/internal/report"
	"github.com/franz/cismu/internal/util"
)

// QualityStats summarizes one quality pass
type QualityStats struct {
	Scored       int
	Inconclusive int
	Failed       int
}

// QualityWorker scores tracks that have no spectral quality yet
type QualityWorker struct {
	store    QualityStore
	analyze  QualityAnalyzer
	batch    int
	logger   *report.EventLogger
	progress progress
}

// NewQualityWorker creates a quality worker
func NewQualityWorker(st QualityStore, analyze QualityAnalyzer, batch int, logger *report.EventLogger) *QualityWorker {
	if batch <= 0 {
		batch = 10
	}
	return &QualityWorker{store: st, analyze: analyze, batch: batch, logger: logger}
}

// WithProgress reports each analyzed track on bar
func (w *QualityWorker) WithProgress(bar *progressbar.ProgressBar) *QualityWorker {
	w.progress = progress{bar: bar}
	return w
}

// Run analyzes unscored tracks until none are left. Inconclusive results
// are stored with a zero score so they are not analyzed again; decode
// failures stay unscored and are skipped for the rest of the pass.
func (w *QualityWorker) Run(ctx context.Context) (*QualityStats, error) {
	stats := &QualityStats{}
	defer w.progress.finish()

	var failed []int64
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		batch, err := w.store.NextQualityBatch(ctx, w.batch, failed)
		if err != nil {
			return stats, fmt.Errorf("failed to poll unscored tracks: %w", err)
		}
		if len(batch) == 0 {
			return stats, nil
		}

		for _, t := range batch {
			w.progress.add(1)

			result, err := w.analyze(ctx, t.Path)
			if err != nil {
				if ctx.Err() != nil {
					return stats, ctx.Err()
				}
				util.WarnLog("Quality analysis failed for %s: %v", t.Path, err)
				w.logger.LogError(report.EventQuality, t.Path, err)
				failed = append(failed, t.ID)
				stats.Failed++
				continue
			}

			if err := w.store.SaveQuality(ctx, t.ID, result.Score, result.Assessment); err != nil {
				return stats, fmt.Errorf("failed to save quality for %d: %w", t.ID, err)
			}
			w.logger.LogQuality(t.ID, t.Path, result.Score, result.Assessment)

			if result.Outcome.Inconclusive() {
				stats.Inconclusive++
			} else {
				stats.Scored++
			}
		}
	}
}
