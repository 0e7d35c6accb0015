package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/franz/cismu/internal/model"
	"github.com/franz/cismu/internal/util"
)

// Resolve finds or creates the artists, release and song behind an
// unresolved track and upserts its release track, all in one transaction.
// The track is queued for fingerprinting unless it already has one.
func (s *Store) Resolve(ctx context.Context, track *model.UnresolvedTrack) (*ResolveResult, error) {
	title := strings.TrimSpace(track.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: %s", util.ErrNoTitle, track.Path)
	}

	res := &ResolveResult{}
	err := s.Transaction(ctx, func(tx *sql.Tx) error {
		absorbed, err := lookupAbsorbed(tx, track, res)
		if err != nil || absorbed {
			return err
		}

		artists, err := findOrCreateArtists(tx, track.AllCreditNames())
		if err != nil {
			return err
		}

		res.ReleaseID, res.NewRelease, err = resolveRelease(tx, track, artists)
		if err != nil {
			return err
		}

		// A verified song keeps its unchanged files even when their tags
		// no longer match it by title and performers.
		var verified bool
		res.SongID, verified, err = verifiedSongAt(tx, track)
		if err != nil {
			return err
		}
		if !verified {
			res.SongID, res.NewSong, err = resolveSong(tx, title, track, artists)
			if err != nil {
				return err
			}
		}

		if err := linkGenres(tx, res.SongID, model.ClassifyGenres(track.Genres)); err != nil {
			return err
		}
		if err := linkArtworks(tx, res.ReleaseID, track.Artworks); err != nil {
			return err
		}

		res.TrackID, err = upsertReleaseTrack(tx, track, res.SongID, res.ReleaseID)
		if err != nil {
			return err
		}

		if err := removeStaleTracks(tx, track.Path, res.TrackID); err != nil {
			return err
		}

		_, err = tx.Exec(`
			INSERT OR IGNORE INTO fingerprint_queue (release_track_id)
			SELECT id FROM release_tracks WHERE id = ? AND fingerprint IS NULL
		`, res.TrackID)
		if err != nil {
			return fmt.Errorf("failed to enqueue fingerprint job: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return res, nil
}

// nameKey folds a credit name for case-insensitive comparison
func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// findOrCreateArtists returns a folded name -> id map for every distinct name
func findOrCreateArtists(tx *sql.Tx, names []string) (map[string]int64, error) {
	ids := make(map[string]int64, len(names))

	selectStmt, err := tx.Prepare(`
		SELECT id FROM artists
		WHERE TRIM(name) = TRIM(?) COLLATE NOCASE
		ORDER BY id LIMIT 1
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare artist lookup: %w", err)
	}
	defer selectStmt.Close()

	for _, name := range names {
		key := nameKey(name)
		if key == "" {
			continue
		}
		if _, ok := ids[key]; ok {
			continue
		}

		var id int64
		err := selectStmt.QueryRow(name).Scan(&id)
		if err == sql.ErrNoRows {
			result, err := tx.Exec("INSERT INTO artists (name) VALUES (?)", strings.TrimSpace(name))
			if err != nil {
				return nil, fmt.Errorf("failed to insert artist %q: %w", name, err)
			}
			id, err = result.LastInsertId()
			if err != nil {
				return nil, fmt.Errorf("failed to get artist ID: %w", err)
			}
		} else if err != nil {
			return nil, fmt.Errorf("failed to look up artist %q: %w", name, err)
		}

		ids[key] = id
	}

	return ids, nil
}

// idSet maps names to their ids, sorted and without duplicates
func idSet(names []string, artists map[string]int64) []int64 {
	seen := make(map[int64]bool, len(names))
	out := make([]int64, 0, len(names))
	for _, name := range names {
		id, ok := artists[nameKey(name)]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sameIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// queryIDs runs a single-column id query and returns the sorted result
func queryIDs(tx *sql.Tx, query string, args ...interface{}) ([]int64, error) {
	rows, err := tx.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func resolveRelease(tx *sql.Tx, track *model.UnresolvedTrack, artists map[string]int64) (int64, bool, error) {
	title := strings.TrimSpace(track.ReleaseTitle)
	if title == "" {
		title = UnknownRelease
	}
	target := idSet(track.ReleaseArtists, artists)

	candidates, err := queryIDs(tx, "SELECT id FROM releases WHERE title = ? COLLATE NOCASE", title)
	if err != nil {
		return 0, false, fmt.Errorf("failed to query releases: %w", err)
	}

	for _, releaseID := range candidates {
		mainArtists, err := queryIDs(tx, "SELECT artist_id FROM release_main_artists WHERE release_id = ?", releaseID)
		if err != nil {
			return 0, false, fmt.Errorf("failed to query release artists: %w", err)
		}
		if !sameIDs(target, mainArtists) {
			continue
		}

		// fill attributes an earlier track did not carry
		_, err = tx.Exec(`
			UPDATE releases SET
				release_date = COALESCE(release_date, ?),
				label = COALESCE(label, ?),
				catalog_number = COALESCE(catalog_number, ?),
				artwork_hash = COALESCE(artwork_hash, ?)
			WHERE id = ?
		`, nullString(track.ReleaseDate), nullString(track.RecordLabel),
			nullString(track.CatalogNumber), nullString(firstArtworkHash(track.Artworks)), releaseID)
		if err != nil {
			return 0, false, fmt.Errorf("failed to update release: %w", err)
		}
		return releaseID, false, nil
	}

	result, err := tx.Exec(`
		INSERT INTO releases (title, format, release_date, label, catalog_number, artwork_hash)
		VALUES (?, ?, ?, ?, ?, ?)
	`, title, model.ReleaseFormat(track.ReleaseTypes), nullString(track.ReleaseDate),
		nullString(track.RecordLabel), nullString(track.CatalogNumber),
		nullString(firstArtworkHash(track.Artworks)))
	if err != nil {
		return 0, false, fmt.Errorf("failed to insert release: %w", err)
	}
	releaseID, err := result.LastInsertId()
	if err != nil {
		return 0, false, fmt.Errorf("failed to get release ID: %w", err)
	}

	for _, artistID := range target {
		if _, err := tx.Exec("INSERT INTO release_main_artists (release_id, artist_id) VALUES (?, ?)", releaseID, artistID); err != nil {
			return 0, false, fmt.Errorf("failed to link release artist: %w", err)
		}
	}

	return releaseID, true, nil
}

// lookupAbsorbed reports whether the file was folded into another track by
// a merge and is unchanged since. A changed file loses that mark.
func lookupAbsorbed(tx *sql.Tx, track *model.UnresolvedTrack, res *ResolveResult) (bool, error) {
	var size, modified int64
	err := tx.QueryRow(`
		SELECT a.size_bytes, a.modified_timestamp, rt.id, rt.song_id, rt.release_id
		FROM absorbed_files a JOIN release_tracks rt ON rt.id = a.release_track_id
		WHERE a.path = ?
	`, track.Path).Scan(&size, &modified, &res.TrackID, &res.SongID, &res.ReleaseID)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up absorbed file: %w", err)
	}

	if size == track.FileSize && modified == track.LastModified.Unix() {
		return true, nil
	}

	*res = ResolveResult{}
	if _, err := tx.Exec("DELETE FROM absorbed_files WHERE path = ?", track.Path); err != nil {
		return false, fmt.Errorf("failed to clear absorbed file: %w", err)
	}
	return false, nil
}

// verifiedSongAt returns the acoustid-verified song already holding the
// unchanged file at track.Path.
func verifiedSongAt(tx *sql.Tx, track *model.UnresolvedTrack) (int64, bool, error) {
	var songID int64
	err := tx.QueryRow(`
		SELECT rt.song_id FROM release_tracks rt JOIN songs s ON s.id = rt.song_id
		WHERE rt.path = ? AND rt.size_bytes = ? AND rt.modified_timestamp = ?
		AND s.acoustid IS NOT NULL
		LIMIT 1
	`, track.Path, track.FileSize, track.LastModified.Unix()).Scan(&songID)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to look up verified song: %w", err)
	}
	return songID, true, nil
}

func resolveSong(tx *sql.Tx, title string, track *model.UnresolvedTrack, artists map[string]int64) (int64, bool, error) {
	target := idSet(track.Performers, artists)

	var rating interface{}
	if track.Rating != nil {
		rating = int64(track.Rating.Scaled())
	}

	candidates, err := queryIDs(tx, "SELECT id FROM songs WHERE title = ? COLLATE NOCASE", title)
	if err != nil {
		return 0, false, fmt.Errorf("failed to query songs: %w", err)
	}

	for _, songID := range candidates {
		performers, err := queryIDs(tx, "SELECT artist_id FROM song_credits WHERE song_id = ? AND role = 'performer'", songID)
		if err != nil {
			return 0, false, fmt.Errorf("failed to query song credits: %w", err)
		}
		if !sameIDs(target, performers) {
			continue
		}
		if rating != nil {
			if _, err := tx.Exec("UPDATE songs SET rating = COALESCE(rating, ?) WHERE id = ?", rating, songID); err != nil {
				return 0, false, fmt.Errorf("failed to update song rating: %w", err)
			}
		}
		return songID, false, nil
	}

	result, err := tx.Exec("INSERT INTO songs (title, rating) VALUES (?, ?)", title, rating)
	if err != nil {
		return 0, false, fmt.Errorf("failed to insert song: %w", err)
	}
	songID, err := result.LastInsertId()
	if err != nil {
		return 0, false, fmt.Errorf("failed to get song ID: %w", err)
	}

	stmt, err := tx.Prepare("INSERT OR IGNORE INTO song_credits (song_id, artist_id, role) VALUES (?, ?, ?)")
	if err != nil {
		return 0, false, fmt.Errorf("failed to prepare credit insert: %w", err)
	}
	defer stmt.Close()

	for _, role := range model.Roles {
		for _, artistID := range idSet(track.Credits(role), artists) {
			if _, err := stmt.Exec(songID, artistID, string(role)); err != nil {
				return 0, false, fmt.Errorf("failed to insert %s credit: %w", role, err)
			}
		}
	}

	return songID, true, nil
}

func linkGenres(tx *sql.Tx, songID int64, tags []model.GenreTag) error {
	for _, tag := range tags {
		if _, err := tx.Exec("INSERT INTO genres (name, kind) VALUES (?, ?) ON CONFLICT(name) DO NOTHING", tag.Name, tag.Kind); err != nil {
			return fmt.Errorf("failed to insert genre %q: %w", tag.Name, err)
		}
		_, err := tx.Exec(`
			INSERT OR IGNORE INTO song_genres (song_id, genre_id)
			SELECT ?, id FROM genres WHERE name = ?
		`, songID, tag.Name)
		if err != nil {
			return fmt.Errorf("failed to link genre %q: %w", tag.Name, err)
		}
	}
	return nil
}

func linkArtworks(tx *sql.Tx, releaseID int64, artworks []model.Artwork) error {
	for _, art := range artworks {
		if art.Hash == "" {
			continue
		}
		_, err := tx.Exec(`
			INSERT OR IGNORE INTO artworks (hash, path, mime, description)
			VALUES (?, ?, ?, ?)
		`, art.Hash, art.Path, art.MIME, nullString(art.Description))
		if err != nil {
			return fmt.Errorf("failed to insert artwork: %w", err)
		}
		if _, err := tx.Exec("INSERT OR IGNORE INTO release_artworks (release_id, hash) VALUES (?, ?)", releaseID, art.Hash); err != nil {
			return fmt.Errorf("failed to link artwork: %w", err)
		}
	}
	return nil
}

// upsertReleaseTrack writes the physical track for (song, release). The row
// id is stable across re-scans; the fingerprint and quality survive unless
// the file itself changed.
func upsertReleaseTrack(tx *sql.Tx, track *model.UnresolvedTrack, songID, releaseID int64) (int64, error) {
	var id int64
	err := tx.QueryRow(`
		INSERT INTO release_tracks (
			song_id, release_id, track_number, disc_number, path, size_bytes,
			modified_timestamp, duration_seconds, bitrate_kbps, sample_rate_hz, channels
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(song_id, release_id) DO UPDATE SET
			track_number = excluded.track_number,
			disc_number = excluded.disc_number,
			fingerprint = CASE WHEN `+unchangedFile+` THEN release_tracks.fingerprint ELSE NULL END,
			quality_score = CASE WHEN `+unchangedFile+` THEN release_tracks.quality_score ELSE NULL END,
			quality_assessment = CASE WHEN `+unchangedFile+` THEN release_tracks.quality_assessment ELSE NULL END,
			path = excluded.path,
			size_bytes = excluded.size_bytes,
			modified_timestamp = excluded.modified_timestamp,
			duration_seconds = excluded.duration_seconds,
			bitrate_kbps = excluded.bitrate_kbps,
			sample_rate_hz = excluded.sample_rate_hz,
			channels = excluded.channels
		RETURNING id
	`, songID, releaseID, nullInt(track.TrackNumber), nullInt(track.DiscNumber), track.Path,
		track.FileSize, track.LastModified.Unix(), track.Duration.Seconds(),
		track.BitrateKbps, track.SampleRate, track.Channels).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert release track: %w", err)
	}
	return id, nil
}

const unchangedFile = `release_tracks.path = excluded.path
	AND release_tracks.size_bytes = excluded.size_bytes
	AND release_tracks.modified_timestamp = excluded.modified_timestamp`

// removeStaleTracks drops rows left behind by an earlier resolution of the
// same file under different tags, then prunes what they orphaned.
func removeStaleTracks(tx *sql.Tx, path string, keepID int64) error {
	rows, err := tx.Query("SELECT song_id, release_id FROM release_tracks WHERE path = ? AND id != ?", path, keepID)
	if err != nil {
		return fmt.Errorf("failed to query stale tracks: %w", err)
	}
	var songs, releases []int64
	for rows.Next() {
		var songID, releaseID int64
		if err := rows.Scan(&songID, &releaseID); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan stale track: %w", err)
		}
		songs = append(songs, songID)
		releases = append(releases, releaseID)
	}
	rows.Close()
	if len(songs) == 0 {
		return nil
	}

	if _, err := tx.Exec("DELETE FROM release_tracks WHERE path = ? AND id != ?", path, keepID); err != nil {
		return fmt.Errorf("failed to delete stale tracks: %w", err)
	}
	return pruneOrphans(tx, songs, releases)
}

// pruneOrphans deletes the given songs and releases once no track uses them
func pruneOrphans(tx *sql.Tx, songIDs, releaseIDs []int64) error {
	for _, id := range songIDs {
		if _, err := tx.Exec(`
			DELETE FROM songs WHERE id = ?
			AND NOT EXISTS (SELECT 1 FROM release_tracks WHERE song_id = ?)
		`, id, id); err != nil {
			return fmt.Errorf("failed to prune song %d: %w", id, err)
		}
	}
	for _, id := range releaseIDs {
		if _, err := tx.Exec(`
			DELETE FROM releases WHERE id = ?
			AND NOT EXISTS (SELECT 1 FROM release_tracks WHERE release_id = ?)
		`, id, id); err != nil {
			return fmt.Errorf("failed to prune release %d: %w", id, err)
		}
	}
	return nil
}

// RemoveTrackByPath deletes the tracks of a file that no longer exists and
// prunes the songs and releases left without tracks. Artists are kept.
func (s *Store) RemoveTrackByPath(ctx context.Context, path string) (int, error) {
	return s.removeTracks(ctx, "path = ?", path)
}

// RemoveTracksUnder is RemoveTrackByPath for every file below dir
func (s *Store) RemoveTracksUnder(ctx context.Context, dir string) (int, error) {
	prefix := strings.TrimSuffix(dir, string(filepath.Separator)) + string(filepath.Separator)
	return s.removeTracks(ctx, "substr(path, 1, ?) = ?", utf8.RuneCountInString(prefix), prefix)
}

func (s *Store) removeTracks(ctx context.Context, where string, args ...interface{}) (int, error) {
	removed := 0
	err := s.Transaction(ctx, func(tx *sql.Tx) error {
		rows, err := tx.Query("SELECT song_id, release_id FROM release_tracks WHERE "+where, args...)
		if err != nil {
			return fmt.Errorf("failed to query tracks: %w", err)
		}
		var songs, releases []int64
		for rows.Next() {
			var songID, releaseID int64
			if err := rows.Scan(&songID, &releaseID); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan track: %w", err)
			}
			songs = append(songs, songID)
			releases = append(releases, releaseID)
		}
		rows.Close()

		if _, err := tx.Exec("DELETE FROM absorbed_files WHERE "+where, args...); err != nil {
			return fmt.Errorf("failed to delete absorbed files: %w", err)
		}
		result, err := tx.Exec("DELETE FROM release_tracks WHERE "+where, args...)
		if err != nil {
			return fmt.Errorf("failed to delete tracks: %w", err)
		}
		n, _ := result.RowsAffected()
		removed = int(n)
		return pruneOrphans(tx, songs, releases)
	})
	return removed, err
}

func firstArtworkHash(artworks []model.Artwork) string {
	for _, art := range artworks {
		if art.Hash != "" {
			return art.Hash
		}
	}
	return ""
}

func nullString(s string) interface{} {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return s
}

func nullInt(n int) interface{} {
	if n <= 0 {
		return nil
	}
	return n
}

func parseFormat(format string) []model.ReleaseType {
	if format == "" || format == model.FormatOther {
		return nil
	}
	parts := strings.Split(format, ";")
	types := make([]model.ReleaseType, 0, len(parts))
	for _, p := range parts {
		types = append(types, model.ParseReleaseType(p))
	}
	return types
}
