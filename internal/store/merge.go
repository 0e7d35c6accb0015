package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/franz/cismu/internal/util"
)

// ApplyVerification attaches a verified acoustid to the song of a track.
//
// When another song already owns the acoustid, that song is the master: the
// current song's credits, genres and rating are unioned into it, the track
// is repointed, and the current song is deleted once no track references
// it. Otherwise the acoustid is stamped onto the current song.
func (s *Store) ApplyVerification(ctx context.Context, trackID int64, acoustID string) (*VerificationResult, error) {
	res := &VerificationResult{}
	err := s.Transaction(ctx, func(tx *sql.Tx) error {
		var releaseID int64
		err := tx.QueryRow("SELECT song_id, release_id FROM release_tracks WHERE id = ?", trackID).Scan(&res.SongID, &releaseID)
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: release track %d", util.ErrNotFound, trackID)
		}
		if err != nil {
			return fmt.Errorf("failed to get release track: %w", err)
		}

		var owner sql.NullInt64
		err = tx.QueryRow("SELECT id FROM songs WHERE acoustid = ?", acoustID).Scan(&owner)
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("failed to look up acoustid owner: %w", err)
		}

		if !owner.Valid {
			if _, err := tx.Exec("UPDATE songs SET acoustid = ? WHERE id = ?", acoustID, res.SongID); err != nil {
				return fmt.Errorf("failed to stamp acoustid: %w", err)
			}
			res.MasterID = res.SongID
			return nil
		}

		res.MasterID = owner.Int64
		if res.MasterID == res.SongID {
			return nil
		}
		res.Merged = true
		return mergeInto(tx, trackID, releaseID, res.SongID, res.MasterID)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func mergeInto(tx *sql.Tx, trackID, releaseID, songID, masterID int64) error {
	if _, err := tx.Exec(`
		INSERT OR IGNORE INTO song_credits (song_id, artist_id, role)
		SELECT ?, artist_id, role FROM song_credits WHERE song_id = ?
	`, masterID, songID); err != nil {
		return fmt.Errorf("failed to merge credits: %w", err)
	}

	if _, err := tx.Exec(`
		INSERT OR IGNORE INTO song_genres (song_id, genre_id)
		SELECT ?, genre_id FROM song_genres WHERE song_id = ?
	`, masterID, songID); err != nil {
		return fmt.Errorf("failed to merge genres: %w", err)
	}

	if _, err := tx.Exec(`
		UPDATE songs SET rating = COALESCE(rating, (SELECT rating FROM songs WHERE id = ?))
		WHERE id = ?
	`, songID, masterID); err != nil {
		return fmt.Errorf("failed to merge rating: %w", err)
	}

	// (song, release) is unique: if the master already has a track on this
	// release, the master's row stands for both files and the dropped file
	// is remembered so an unchanged rescan does not bring it back.
	var existing int64
	err := tx.QueryRow("SELECT id FROM release_tracks WHERE song_id = ? AND release_id = ?", masterID, releaseID).Scan(&existing)
	switch {
	case err == sql.ErrNoRows:
		if _, err := tx.Exec("UPDATE release_tracks SET song_id = ? WHERE id = ?", masterID, trackID); err != nil {
			return fmt.Errorf("failed to repoint track: %w", err)
		}
	case err != nil:
		return fmt.Errorf("failed to check master track: %w", err)
	default:
		util.DebugLog("Master song %d already has track %d on release %d, dropping track %d", masterID, existing, releaseID, trackID)
		if _, err := tx.Exec(`
			INSERT OR REPLACE INTO absorbed_files (path, size_bytes, modified_timestamp, release_track_id)
			SELECT path, COALESCE(size_bytes, 0), COALESCE(modified_timestamp, 0), ? FROM release_tracks WHERE id = ?
		`, existing, trackID); err != nil {
			return fmt.Errorf("failed to record absorbed file: %w", err)
		}
		if _, err := tx.Exec("DELETE FROM release_tracks WHERE id = ?", trackID); err != nil {
			return fmt.Errorf("failed to drop duplicate track: %w", err)
		}
	}

	return pruneOrphans(tx, []int64{songID}, nil)
}
