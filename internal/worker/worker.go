// Package worker drains the library's durable queues: fingerprinting,
// AcoustID verification and spectral quality scoring.
package worker

import (
	"context"

	"github.com/schollz/progressbar/v3"

	"github.com/franz/cismu/internal/acoustid"
	"github.com/franz/cismu/internal/analysis"
	"github.com/franz/cismu/internal/store"
)

// Fingerprinter computes the fingerprint of one file
type Fingerprinter interface {
	Fingerprint(ctx context.Context, path string) (string, error)
}

// FingerprintStore is the queue side of the store used by FingerprintWorker
type FingerprintStore interface {
	NextFingerprintBatch(ctx context.Context, n int) ([]store.QueuedTrack, error)
	SaveFingerprint(ctx context.Context, trackID int64, fingerprint string) error
	DropFingerprintJob(ctx context.Context, trackID int64) error
}

// VerificationStore is the store side used by VerificationWorker
type VerificationStore interface {
	NextVerificationBatch(ctx context.Context, n int, exclude []int64) ([]store.VerificationCandidate, error)
	ApplyVerification(ctx context.Context, trackID int64, acoustID string) (*store.VerificationResult, error)
}

// Lookup resolves a fingerprint against AcoustID
type Lookup interface {
	Lookup(ctx context.Context, fingerprint string, durationSec int) ([]acoustid.Result, error)
}

// QualityStore is the store side used by QualityWorker
type QualityStore interface {
	NextQualityBatch(ctx context.Context, n int, exclude []int64) ([]store.QueuedTrack, error)
	SaveQuality(ctx context.Context, trackID int64, score float64, assessment string) error
}

// QualityAnalyzer scores one file
type QualityAnalyzer func(ctx context.Context, path string) (*analysis.QualityResult, error)

// progress wraps an optional progress bar
type progress struct {
	bar *progressbar.ProgressBar
}

func (p progress) add(n int) {
	if p.bar != nil {
		p.bar.Add(n)
	}
}

func (p progress) finish() {
	if p.bar != nil {
		p.bar.Finish()
	}
}
