package store

// Schema v1 - relational library model
const schemaV1 = `
-- Schema version tracking
CREATE TABLE IF NOT EXISTS schema_version (
  version INTEGER PRIMARY KEY,
  applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS artists (
  id INTEGER PRIMARY KEY NOT NULL,
  name TEXT NOT NULL,
  bio TEXT,
  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS artist_sites (
  artist_id INTEGER NOT NULL REFERENCES artists(id) ON DELETE CASCADE,
  url TEXT NOT NULL,
  PRIMARY KEY (artist_id, url)
);

CREATE TABLE IF NOT EXISTS artist_variations (
  artist_id INTEGER NOT NULL REFERENCES artists(id) ON DELETE CASCADE,
  variation TEXT NOT NULL,
  PRIMARY KEY (artist_id, variation)
);

CREATE TABLE IF NOT EXISTS genres (
  id INTEGER PRIMARY KEY NOT NULL,
  name TEXT NOT NULL UNIQUE COLLATE NOCASE,
  kind TEXT NOT NULL DEFAULT 'genre'
);

CREATE TABLE IF NOT EXISTS artists_genres (
  artist_id INTEGER NOT NULL REFERENCES artists(id) ON DELETE CASCADE,
  genre_id INTEGER NOT NULL REFERENCES genres(id) ON DELETE CASCADE,
  PRIMARY KEY (artist_id, genre_id)
);

CREATE TABLE IF NOT EXISTS releases (
  id INTEGER PRIMARY KEY NOT NULL,
  title TEXT NOT NULL,
  format TEXT NOT NULL DEFAULT 'Other',
  release_date TEXT,
  label TEXT,
  catalog_number TEXT,
  artwork_hash TEXT
);

CREATE TABLE IF NOT EXISTS release_main_artists (
  release_id INTEGER NOT NULL REFERENCES releases(id) ON DELETE CASCADE,
  artist_id INTEGER NOT NULL REFERENCES artists(id) ON DELETE CASCADE,
  PRIMARY KEY (release_id, artist_id)
);

CREATE TABLE IF NOT EXISTS songs (
  id INTEGER PRIMARY KEY NOT NULL,
  title TEXT NOT NULL,
  acoustid TEXT UNIQUE,
  rating INTEGER
);

CREATE TABLE IF NOT EXISTS song_credits (
  song_id INTEGER NOT NULL REFERENCES songs(id) ON DELETE CASCADE,
  artist_id INTEGER NOT NULL REFERENCES artists(id) ON DELETE CASCADE,
  role TEXT NOT NULL,
  PRIMARY KEY (song_id, artist_id, role)
);

CREATE TABLE IF NOT EXISTS song_genres (
  song_id INTEGER NOT NULL REFERENCES songs(id) ON DELETE CASCADE,
  genre_id INTEGER NOT NULL REFERENCES genres(id) ON DELETE CASCADE,
  PRIMARY KEY (song_id, genre_id)
);

-- One row per physical file
CREATE TABLE IF NOT EXISTS release_tracks (
  id INTEGER PRIMARY KEY NOT NULL,
  song_id INTEGER NOT NULL REFERENCES songs(id) ON DELETE CASCADE,
  release_id INTEGER NOT NULL REFERENCES releases(id) ON DELETE CASCADE,
  track_number INTEGER,
  disc_number INTEGER,
  path TEXT NOT NULL,
  size_bytes INTEGER,
  modified_timestamp INTEGER,
  duration_seconds REAL,
  bitrate_kbps INTEGER,
  sample_rate_hz INTEGER,
  channels INTEGER,
  fingerprint TEXT,
  UNIQUE (song_id, release_id)
);

CREATE TABLE IF NOT EXISTS fingerprint_queue (
  release_track_id INTEGER PRIMARY KEY REFERENCES release_tracks(id) ON DELETE CASCADE,
  queued_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS artworks (
  hash TEXT PRIMARY KEY,
  path TEXT NOT NULL,
  mime TEXT NOT NULL,
  description TEXT
);

CREATE TABLE IF NOT EXISTS release_artworks (
  release_id INTEGER NOT NULL REFERENCES releases(id) ON DELETE CASCADE,
  hash TEXT NOT NULL REFERENCES artworks(hash) ON DELETE CASCADE,
  PRIMARY KEY (release_id, hash)
);
`

// Schema v2 - quality columns and lookup indexes
const schemaV2 = `
ALTER TABLE release_tracks ADD COLUMN quality_score REAL;
ALTER TABLE release_tracks ADD COLUMN quality_assessment TEXT;

CREATE INDEX IF NOT EXISTS idx_artists_name ON artists(name COLLATE NOCASE);
CREATE INDEX IF NOT EXISTS idx_releases_title ON releases(title COLLATE NOCASE);
CREATE INDEX IF NOT EXISTS idx_songs_title ON songs(title COLLATE NOCASE);
CREATE INDEX IF NOT EXISTS idx_song_credits_role ON song_credits(song_id, role);
CREATE INDEX IF NOT EXISTS idx_song_credits_artist ON song_credits(artist_id);
CREATE INDEX IF NOT EXISTS idx_release_main_artists_artist ON release_main_artists(artist_id);
CREATE INDEX IF NOT EXISTS idx_release_tracks_path ON release_tracks(path);
CREATE INDEX IF NOT EXISTS idx_release_tracks_release ON release_tracks(release_id, disc_number, track_number);
CREATE INDEX IF NOT EXISTS idx_release_tracks_unscored ON release_tracks(id) WHERE quality_score IS NULL;
`

// Schema v3 - files folded into a master song's track on the same release
const schemaV3 = `
CREATE TABLE IF NOT EXISTS absorbed_files (
  path TEXT PRIMARY KEY NOT NULL,
  size_bytes INTEGER NOT NULL,
  modified_timestamp INTEGER NOT NULL,
  release_track_id INTEGER NOT NULL REFERENCES release_tracks(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_absorbed_files_track ON absorbed_files(release_track_id);
`

// migrations[i] upgrades the schema from version i to i+1
var migrations = []string{schemaV1, schemaV2, schemaV3}
