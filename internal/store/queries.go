package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/franz/cismu/internal/model"
)

// GetAllArtists returns every artist ordered by name
func (s *Store) GetAllArtists(ctx context.Context) ([]Artist, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(bio, ''), created_at
		FROM artists ORDER BY name COLLATE NOCASE
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query artists: %w", err)
	}
	defer rows.Close()

	artists := make([]Artist, 0)
	for rows.Next() {
		var a Artist
		if err := rows.Scan(&a.ID, &a.Name, &a.Bio, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan artist: %w", err)
		}
		artists = append(artists, a)
	}

	return artists, rows.Err()
}

// GetArtist retrieves an artist by id. Returns nil if not found.
func (s *Store) GetArtist(ctx context.Context, id int64) (*Artist, error) {
	a := &Artist{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(bio, ''), created_at FROM artists WHERE id = ?
	`, id).Scan(&a.ID, &a.Name, &a.Bio, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get artist: %w", err)
	}
	return a, nil
}

// GetReleasesForArtist returns the releases an artist is a main artist of,
// newest first. Tracks and artists are not loaded.
func (s *Store) GetReleasesForArtist(ctx context.Context, artistID int64) ([]Release, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.title, r.format, COALESCE(r.release_date, ''),
		       COALESCE(r.label, ''), COALESCE(r.catalog_number, ''), COALESCE(r.artwork_hash, '')
		FROM releases r
		JOIN release_main_artists rma ON r.id = rma.release_id
		WHERE rma.artist_id = ?
		ORDER BY r.release_date DESC, r.title COLLATE NOCASE
	`, artistID)
	if err != nil {
		return nil, fmt.Errorf("failed to query releases: %w", err)
	}
	defer rows.Close()

	releases := make([]Release, 0)
	for rows.Next() {
		var r Release
		if err := rows.Scan(&r.ID, &r.Title, &r.Format, &r.ReleaseDate, &r.Label, &r.CatalogNumber, &r.ArtworkHash); err != nil {
			return nil, fmt.Errorf("failed to scan release: %w", err)
		}
		releases = append(releases, r)
	}

	return releases, rows.Err()
}

// GetReleaseDetails loads a release with its main artists and tracks.
// Returns nil if not found.
func (s *Store) GetReleaseDetails(ctx context.Context, releaseID int64) (*Release, error) {
	r := &Release{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, format, COALESCE(release_date, ''), COALESCE(label, ''),
		       COALESCE(catalog_number, ''), COALESCE(artwork_hash, '')
		FROM releases WHERE id = ?
	`, releaseID).Scan(&r.ID, &r.Title, &r.Format, &r.ReleaseDate, &r.Label, &r.CatalogNumber, &r.ArtworkHash)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get release: %w", err)
	}

	artistRows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.name, COALESCE(a.bio, ''), a.created_at
		FROM release_main_artists rma
		JOIN artists a ON a.id = rma.artist_id
		WHERE rma.release_id = ?
		ORDER BY a.name COLLATE NOCASE
	`, releaseID)
	if err != nil {
		return nil, fmt.Errorf("failed to query release artists: %w", err)
	}
	for artistRows.Next() {
		var a Artist
		if err := artistRows.Scan(&a.ID, &a.Name, &a.Bio, &a.CreatedAt); err != nil {
			artistRows.Close()
			return nil, fmt.Errorf("failed to scan release artist: %w", err)
		}
		r.MainArtists = append(r.MainArtists, a)
	}
	artistRows.Close()

	trackRows, err := s.db.QueryContext(ctx, `
		SELECT rt.id, rt.song_id, s.title, COALESCE(rt.track_number, 0), COALESCE(rt.disc_number, 0),
		       rt.path, COALESCE(rt.size_bytes, 0), COALESCE(rt.duration_seconds, 0),
		       COALESCE(rt.bitrate_kbps, 0), COALESCE(rt.sample_rate_hz, 0), COALESCE(rt.channels, 0),
		       rt.fingerprint IS NOT NULL, rt.quality_score, COALESCE(rt.quality_assessment, '')
		FROM release_tracks rt
		JOIN songs s ON rt.song_id = s.id
		WHERE rt.release_id = ?
		ORDER BY COALESCE(rt.disc_number, 0), COALESCE(rt.track_number, 0), s.title
	`, releaseID)
	if err != nil {
		return nil, fmt.Errorf("failed to query release tracks: %w", err)
	}
	for trackRows.Next() {
		var t TrackDetail
		var score sql.NullFloat64
		if err := trackRows.Scan(&t.ID, &t.SongID, &t.SongTitle, &t.TrackNumber, &t.DiscNumber,
			&t.Path, &t.SizeBytes, &t.DurationSeconds, &t.BitrateKbps, &t.SampleRate, &t.Channels,
			&t.HasFingerprint, &score, &t.QualityAssessment); err != nil {
			trackRows.Close()
			return nil, fmt.Errorf("failed to scan release track: %w", err)
		}
		if score.Valid {
			t.QualityScore = &score.Float64
		}
		r.Tracks = append(r.Tracks, t)
	}
	trackRows.Close()

	// credits are loaded after the track cursor is closed: one connection
	for i := range r.Tracks {
		credits, err := s.songCredits(ctx, r.Tracks[i].SongID)
		if err != nil {
			return nil, err
		}
		r.Tracks[i].Credits = credits
	}

	return r, nil
}

// GetSong retrieves a song with its credits and genres. Returns nil if not found.
func (s *Store) GetSong(ctx context.Context, id int64) (*Song, error) {
	song := &Song{}
	var acoustID sql.NullString
	var rating sql.NullInt64
	err := s.db.QueryRowContext(ctx, "SELECT id, title, acoustid, rating FROM songs WHERE id = ?", id).
		Scan(&song.ID, &song.Title, &acoustID, &rating)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get song: %w", err)
	}
	song.AcoustID = acoustID.String
	if rating.Valid {
		if r, err := model.RatingFromScaled(uint32(rating.Int64)); err == nil {
			song.Rating = model.Rated(r)
		}
	}

	song.Credits, err = s.songCredits(ctx, id)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT g.name FROM song_genres sg
		JOIN genres g ON g.id = sg.genre_id
		WHERE sg.song_id = ?
		ORDER BY g.name COLLATE NOCASE
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query song genres: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan genre: %w", err)
		}
		song.Genres = append(song.Genres, name)
	}

	return song, rows.Err()
}

func (s *Store) songCredits(ctx context.Context, songID int64) ([]Credit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sc.artist_id, a.name, sc.role
		FROM song_credits sc
		JOIN artists a ON a.id = sc.artist_id
		WHERE sc.song_id = ?
		ORDER BY CASE sc.role
			WHEN 'performer' THEN 0 WHEN 'featured' THEN 1
			WHEN 'composer' THEN 2 ELSE 3 END, a.name COLLATE NOCASE
	`, songID)
	if err != nil {
		return nil, fmt.Errorf("failed to query credits: %w", err)
	}
	defer rows.Close()

	credits := make([]Credit, 0)
	for rows.Next() {
		var c Credit
		var role string
		if err := rows.Scan(&c.ArtistID, &c.Name, &role); err != nil {
			return nil, fmt.Errorf("failed to scan credit: %w", err)
		}
		c.Role = model.Role(role)
		credits = append(credits, c)
	}

	return credits, rows.Err()
}

// Stats counts the library contents and queue depths
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{}
	counts := []struct {
		dest  *int
		query string
	}{
		{&st.Artists, "SELECT COUNT(*) FROM artists"},
		{&st.Releases, "SELECT COUNT(*) FROM releases"},
		{&st.Songs, "SELECT COUNT(*) FROM songs"},
		{&st.Tracks, "SELECT COUNT(*) FROM release_tracks"},
		{&st.Genres, "SELECT COUNT(*) FROM genres"},
		{&st.Artworks, "SELECT COUNT(*) FROM artworks"},
		{&st.FingerprintQueue, "SELECT COUNT(*) FROM fingerprint_queue"},
		{&st.VerifiedSongs, "SELECT COUNT(*) FROM songs WHERE acoustid IS NOT NULL"},
		{&st.UnscoredTracks, "SELECT COUNT(*) FROM release_tracks WHERE quality_score IS NULL"},
		{&st.PendingVerification, `
			SELECT COUNT(*) FROM release_tracks rt JOIN songs s ON s.id = rt.song_id
			WHERE rt.fingerprint IS NOT NULL AND s.acoustid IS NULL`},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("failed to count: %w", err)
		}
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(size_bytes), 0), COALESCE(SUM(duration_seconds), 0) FROM release_tracks
	`).Scan(&st.TotalBytes, &st.TotalSeconds)
	if err != nil {
		return nil, fmt.Errorf("failed to sum tracks: %w", err)
	}

	return st, nil
}

// QualityBucket is the number of tracks sharing an assessment
type QualityBucket struct {
	Assessment string
	Count      int
}

// QualityDistribution groups scored tracks by assessment, best first
func (s *Store) QualityDistribution(ctx context.Context) ([]QualityBucket, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT quality_assessment, COUNT(*) FROM release_tracks
		WHERE quality_score IS NOT NULL
		GROUP BY quality_assessment
		ORDER BY MAX(quality_score) DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query quality distribution: %w", err)
	}
	defer rows.Close()

	buckets := make([]QualityBucket, 0)
	for rows.Next() {
		var b QualityBucket
		var assessment sql.NullString
		if err := rows.Scan(&assessment, &b.Count); err != nil {
			return nil, fmt.Errorf("failed to scan quality bucket: %w", err)
		}
		b.Assessment = assessment.String
		buckets = append(buckets, b)
	}

	return buckets, rows.Err()
}

// TopArtist is an artist with the number of songs they perform on
type TopArtist struct {
	Artist
	Songs int
}

// TopArtists returns the artists performing on the most songs
func (s *Store) TopArtists(ctx context.Context, limit int) ([]TopArtist, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.name, COUNT(DISTINCT sc.song_id) AS n
		FROM artists a
		JOIN song_credits sc ON sc.artist_id = a.id AND sc.role = 'performer'
		GROUP BY a.id
		ORDER BY n DESC, a.name COLLATE NOCASE
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top artists: %w", err)
	}
	defer rows.Close()

	top := make([]TopArtist, 0, limit)
	for rows.Next() {
		var t TopArtist
		if err := rows.Scan(&t.ID, &t.Name, &t.Songs); err != nil {
			return nil, fmt.Errorf("failed to scan top artist: %w", err)
		}
		top = append(top, t)
	}

	return top, rows.Err()
}
