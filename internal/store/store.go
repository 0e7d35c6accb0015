package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/franz/cismu/internal/model"
	"github.com/franz/cismu/internal/util"
	_ "modernc.org/sqlite" // SQLite driver
)

var currentSchemaVersion = len(migrations)

const (
	// UnknownRelease titles releases of tracks without an album tag
	UnknownRelease = "Unknown Release"
)

// Store is the library database. All writes go through one connection
// and are serialized by mu.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// OpenOptions holds options for opening a database
type OpenOptions struct {
	NetworkOptimized bool // Apply network-optimized pragmas
}

// Open opens or creates a SQLite database at the given path. Network
// pragmas are applied when the database directory sits on a network mount.
func Open(path string) (*Store, error) {
	return OpenWithOptions(path, &OpenOptions{
		NetworkOptimized: util.IsNetworkPath(filepath.Dir(path)),
	})
}

// OpenWithOptions opens or creates a SQLite database with custom options
func OpenWithOptions(path string, opts *OpenOptions) (*Store, error) {
	if opts == nil {
		opts = &OpenOptions{}
	}

	// Connection pragmas go in the DSN so a reopened pool connection keeps them
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite works best with a single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := &Store{db: db}

	if err := store.applyPragmas(opts.NetworkOptimized); err != nil {
		db.Close()
		return nil, err
	}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return store, nil
}

func (s *Store) applyPragmas(network bool) error {
	pragmas := []string{
		"PRAGMA synchronous = NORMAL",
	}
	if network {
		pragmas = append(pragmas,
			// Keep temp tables in memory instead of on network disk
			"PRAGMA temp_store = MEMORY",
			// 64MB cache, fewer round-trips
			"PRAGMA cache_size = -64000",
		)
	}

	for _, pragma := range pragmas {
		if _, err := s.db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}

	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection for custom queries
func (s *Store) DB() *sql.DB {
	return s.db
}

// SQLiteVersion returns the SQLite version string
func SQLiteVersion() string {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return ""
	}
	defer db.Close()

	var version string
	err = db.QueryRow("SELECT sqlite_version()").Scan(&version)
	if err != nil {
		return ""
	}
	return version
}

// CheckIntegrity runs PRAGMA integrity_check on the database
func (s *Store) CheckIntegrity() error {
	var result string
	err := s.db.QueryRow("PRAGMA integrity_check").Scan(&result)
	if err != nil {
		return fmt.Errorf("integrity check query failed: %w", err)
	}

	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}

	return nil
}

// migrate brings the schema up to date. Pending steps run in one
// transaction, each recording its version in schema_version.
func (s *Store) migrate() error {
	version, err := s.getSchemaVersion()
	if err != nil {
		return err
	}
	if version >= currentSchemaVersion {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin migration: %w", err)
	}
	defer tx.Rollback()

	for v := version + 1; v <= currentSchemaVersion; v++ {
		if _, err := tx.Exec(migrations[v-1]); err != nil {
			return fmt.Errorf("schema v%d: %w", v, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", v); err != nil {
			return fmt.Errorf("schema v%d: recording version: %w", v, err)
		}
	}

	return tx.Commit()
}

// getSchemaVersion returns 0 for a fresh database. The table check must be
// its own query: SQLite resolves every table name when preparing.
func (s *Store) getSchemaVersion() (int, error) {
	var tables int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM sqlite_master
		WHERE type = 'table' AND name = 'schema_version'
	`).Scan(&tables)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	if tables == 0 {
		return 0, nil
	}

	var version int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}

// Transaction executes fn within a write transaction. Concurrent callers
// are serialized; a returned error rolls everything back.
func (s *Store) Transaction(ctx context.Context, fn func(*sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Artist is a credited name
type Artist struct {
	ID        int64
	Name      string
	Bio       string
	CreatedAt time.Time
}

// Credit is an artist's role on a song
type Credit struct {
	ArtistID int64
	Name     string
	Role     model.Role
}

// Song is the abstract recording shared by one or more tracks
type Song struct {
	ID       int64
	Title    string
	AcoustID string
	Rating   model.AvgRating
	Credits  []Credit
	Genres   []string
}

// Release groups tracks under a title and a set of main artists
type Release struct {
	ID            int64
	Title         string
	Format        string
	ReleaseDate   string
	Label         string
	CatalogNumber string
	ArtworkHash   string
	MainArtists   []Artist
	Tracks        []TrackDetail
}

// Types parses the persisted format back into release types
func (r *Release) Types() []model.ReleaseType {
	return parseFormat(r.Format)
}

// TrackDetail is a release track joined with its song
type TrackDetail struct {
	ID                int64
	SongID            int64
	SongTitle         string
	TrackNumber       int
	DiscNumber        int
	Path              string
	SizeBytes         int64
	DurationSeconds   float64
	BitrateKbps       int
	SampleRate        int
	Channels          int
	HasFingerprint    bool
	QualityScore      *float64
	QualityAssessment string
	Credits           []Credit
}

// ResolveResult reports the ids a track was resolved into
type ResolveResult struct {
	TrackID    int64
	SongID     int64
	ReleaseID  int64
	NewSong    bool
	NewRelease bool
}

// QueuedTrack is a release track waiting for a worker
type QueuedTrack struct {
	ID   int64
	Path string
}

// VerificationCandidate is a fingerprinted track whose song has no acoustid
type VerificationCandidate struct {
	TrackID         int64
	SongID          int64
	Path            string
	Fingerprint     string
	DurationSeconds float64
}

// VerificationResult is the outcome of ApplyVerification
type VerificationResult struct {
	Merged   bool
	SongID   int64 // song the track pointed at before
	MasterID int64 // song the track points at now
}

// Stats summarizes the library contents
type Stats struct {
	Artists             int
	Releases            int
	Songs               int
	Tracks              int
	Genres              int
	Artworks            int
	FingerprintQueue    int
	PendingVerification int
	VerifiedSongs       int
	UnscoredTracks      int
	TotalBytes          int64
	TotalSeconds        float64
}
