// Package model holds the types passed between the scanner, the metadata
// pipeline and the store.
package model

import "time"

// Role is the part an artist plays on a song
type Role string

const (
	RolePerformer Role = "performer"
	RoleFeatured  Role = "featured"
	RoleComposer  Role = "composer"
	RoleProducer  Role = "producer"
)

// Roles lists the credit roles in the order they are written
var Roles = []Role{RolePerformer, RoleFeatured, RoleComposer, RoleProducer}

// Artwork is an embedded image already written to the cover store
type Artwork struct {
	Path        string
	MIME        string
	Description string
	Hash        string // sha256 hex of the stored JPEG
}

// UnresolvedTrack is one file's worth of metadata before entity resolution.
// Credit fields hold raw names; the store turns them into artist ids.
type UnresolvedTrack struct {
	Path         string
	FileSize     int64
	LastModified time.Time

	Duration    time.Duration
	BitrateKbps int
	SampleRate  int
	Channels    int

	Title       string
	TrackNumber int
	DiscNumber  int
	Genres      []string
	Rating      *Rating

	ReleaseTitle  string
	ReleaseTypes  []ReleaseType
	ReleaseDate   string
	RecordLabel   string
	CatalogNumber string
	Artworks      []Artwork

	ReleaseArtists []string
	Performers     []string
	Featured       []string
	Composers      []string
	Producers      []string
}

// Credits returns the raw names credited under role
func (t *UnresolvedTrack) Credits(role Role) []string {
	switch role {
	case RolePerformer:
		return t.Performers
	case RoleFeatured:
		return t.Featured
	case RoleComposer:
		return t.Composers
	case RoleProducer:
		return t.Producers
	}
	return nil
}

// AllCreditNames returns every name credited anywhere on the track,
// release artists first, in first-seen order (duplicates included).
func (t *UnresolvedTrack) AllCreditNames() []string {
	names := make([]string, 0, len(t.ReleaseArtists)+len(t.Performers)+len(t.Featured)+len(t.Composers)+len(t.Producers))
	names = append(names, t.ReleaseArtists...)
	for _, role := range Roles {
		names = append(names, t.Credits(role)...)
	}
	return names
}

// DurationSeconds rounds the duration to whole seconds
func (t *UnresolvedTrack) DurationSeconds() int {
	return int(t.Duration.Round(time.Second) / time.Second)
}
