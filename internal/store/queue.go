package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// NextFingerprintBatch returns up to n queued tracks, oldest first
func (s *Store) NextFingerprintBatch(ctx context.Context, n int) ([]QueuedTrack, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT q.release_track_id, rt.path
		FROM fingerprint_queue q
		JOIN release_tracks rt ON rt.id = q.release_track_id
		ORDER BY q.release_track_id
		LIMIT ?
	`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query fingerprint queue: %w", err)
	}
	defer rows.Close()

	batch := make([]QueuedTrack, 0, n)
	for rows.Next() {
		var t QueuedTrack
		if err := rows.Scan(&t.ID, &t.Path); err != nil {
			return nil, fmt.Errorf("failed to scan queued track: %w", err)
		}
		batch = append(batch, t)
	}

	return batch, rows.Err()
}

// SaveFingerprint stores a fingerprint and removes the track from the queue
func (s *Store) SaveFingerprint(ctx context.Context, trackID int64, fingerprint string) error {
	return s.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.Exec("UPDATE release_tracks SET fingerprint = ? WHERE id = ?", fingerprint, trackID); err != nil {
			return fmt.Errorf("failed to save fingerprint: %w", err)
		}
		if _, err := tx.Exec("DELETE FROM fingerprint_queue WHERE release_track_id = ?", trackID); err != nil {
			return fmt.Errorf("failed to dequeue track: %w", err)
		}
		return nil
	})
}

// DropFingerprintJob removes a track from the queue without a fingerprint
func (s *Store) DropFingerprintJob(ctx context.Context, trackID int64) error {
	return s.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM fingerprint_queue WHERE release_track_id = ?", trackID); err != nil {
			return fmt.Errorf("failed to dequeue track: %w", err)
		}
		return nil
	})
}

// RequeueUnfingerprinted queues every track that still has no fingerprint,
// including those dropped after a failure. It returns the number queued.
func (s *Store) RequeueUnfingerprinted(ctx context.Context) (int, error) {
	queued := 0
	err := s.Transaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.Exec(`
			INSERT OR IGNORE INTO fingerprint_queue (release_track_id)
			SELECT id FROM release_tracks WHERE fingerprint IS NULL
		`)
		if err != nil {
			return fmt.Errorf("failed to requeue tracks: %w", err)
		}
		n, _ := result.RowsAffected()
		queued = int(n)
		return nil
	})
	return queued, err
}

// NextVerificationBatch returns up to n fingerprinted tracks whose song has
// no acoustid yet, skipping the ids in exclude.
func (s *Store) NextVerificationBatch(ctx context.Context, n int, exclude []int64) ([]VerificationCandidate, error) {
	query := `
		SELECT rt.id, rt.song_id, rt.path, rt.fingerprint, COALESCE(rt.duration_seconds, 0)
		FROM release_tracks rt
		JOIN songs s ON s.id = rt.song_id
		WHERE rt.fingerprint IS NOT NULL AND s.acoustid IS NULL`
	args := make([]interface{}, 0, len(exclude)+1)
	if len(exclude) > 0 {
		query += " AND rt.id NOT IN (" + placeholders(len(exclude)) + ")"
		for _, id := range exclude {
			args = append(args, id)
		}
	}
	query += " ORDER BY rt.id LIMIT ?"
	args = append(args, n)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query verification queue: %w", err)
	}
	defer rows.Close()

	batch := make([]VerificationCandidate, 0, n)
	for rows.Next() {
		var c VerificationCandidate
		if err := rows.Scan(&c.TrackID, &c.SongID, &c.Path, &c.Fingerprint, &c.DurationSeconds); err != nil {
			return nil, fmt.Errorf("failed to scan verification candidate: %w", err)
		}
		batch = append(batch, c)
	}

	return batch, rows.Err()
}

// NextQualityBatch returns up to n tracks without a quality score
func (s *Store) NextQualityBatch(ctx context.Context, n int, exclude []int64) ([]QueuedTrack, error) {
	query := "SELECT id, path FROM release_tracks WHERE quality_score IS NULL"
	args := make([]interface{}, 0, len(exclude)+1)
	if len(exclude) > 0 {
		query += " AND id NOT IN (" + placeholders(len(exclude)) + ")"
		for _, id := range exclude {
			args = append(args, id)
		}
	}
	query += " ORDER BY id LIMIT ?"
	args = append(args, n)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query unscored tracks: %w", err)
	}
	defer rows.Close()

	batch := make([]QueuedTrack, 0, n)
	for rows.Next() {
		var t QueuedTrack
		if err := rows.Scan(&t.ID, &t.Path); err != nil {
			return nil, fmt.Errorf("failed to scan unscored track: %w", err)
		}
		batch = append(batch, t)
	}

	return batch, rows.Err()
}

// SaveQuality stores a spectral quality score and its assessment
func (s *Store) SaveQuality(ctx context.Context, trackID int64, score float64, assessment string) error {
	return s.Transaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			UPDATE release_tracks SET quality_score = ?, quality_assessment = ?
			WHERE id = ?
		`, score, assessment, trackID)
		if err != nil {
			return fmt.Errorf("failed to save quality: %w", err)
		}
		return nil
	})
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
