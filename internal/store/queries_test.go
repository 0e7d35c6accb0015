package store

import (
	"context"
	"testing"
)

func TestReadAPI(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	older := testTrack("/m/old/1.mp3", "First", "beta")
	older.ReleaseTitle = "Old"
	older.ReleaseDate = "2001"
	newer := testTrack("/m/new/2.mp3", "Second", "beta")
	newer.ReleaseTitle = "New"
	newer.ReleaseDate = "2020"
	newer.TrackNumber = 2
	newerOpener := testTrack("/m/new/1.mp3", "Opener", "beta")
	newerOpener.ReleaseTitle = "New"
	newerOpener.TrackNumber = 1
	mustResolve(t, store, testTrack("/m/other.mp3", "Other", "Alpha"))
	mustResolve(t, store, older)
	res := mustResolve(t, store, newer)
	mustResolve(t, store, newerOpener)

	artists, err := store.GetAllArtists(ctx)
	if err != nil {
		t.Fatalf("GetAllArtists failed: %v", err)
	}
	if len(artists) != 2 || artists[0].Name != "Alpha" || artists[1].Name != "beta" {
		t.Errorf("expected case-insensitive name order, got %+v", artists)
	}
	if artists[0].CreatedAt.IsZero() {
		t.Error("expected created_at to be set")
	}

	beta := artists[1]
	releases, err := store.GetReleasesForArtist(ctx, beta.ID)
	if err != nil {
		t.Fatalf("GetReleasesForArtist failed: %v", err)
	}
	if len(releases) != 2 || releases[0].Title != "New" || releases[1].Title != "Old" {
		t.Errorf("expected newest release first, got %+v", releases)
	}

	details, err := store.GetReleaseDetails(ctx, res.ReleaseID)
	if err != nil || details == nil {
		t.Fatalf("GetReleaseDetails failed: %v", err)
	}
	if len(details.Tracks) != 2 || details.Tracks[0].SongTitle != "Opener" || details.Tracks[1].TrackNumber != 2 {
		t.Errorf("expected tracks in track-number order, got %+v", details.Tracks)
	}
	if details.Tracks[0].HasFingerprint || details.Tracks[0].QualityScore != nil {
		t.Errorf("fresh track should have no fingerprint or score: %+v", details.Tracks[0])
	}
	if len(details.Tracks[0].Credits) != 1 || details.Tracks[0].Credits[0].Name != "beta" {
		t.Errorf("expected track credits, got %+v", details.Tracks[0].Credits)
	}

	if r, err := store.GetReleaseDetails(ctx, 9999); err != nil || r != nil {
		t.Errorf("missing release should be nil, nil; got %v, %v", r, err)
	}
	if s, err := store.GetSong(ctx, 9999); err != nil || s != nil {
		t.Errorf("missing song should be nil, nil; got %v, %v", s, err)
	}
	if a, err := store.GetArtist(ctx, beta.ID); err != nil || a == nil || a.Name != "beta" {
		t.Errorf("GetArtist returned %v, %v", a, err)
	}

	top, err := store.TopArtists(ctx, 5)
	if err != nil {
		t.Fatalf("TopArtists failed: %v", err)
	}
	if len(top) != 2 || top[0].Name != "beta" || top[0].Songs != 3 {
		t.Errorf("unexpected top artists %+v", top)
	}
}

func TestStats(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	a := mustResolve(t, store, testTrack("/m/a.mp3", "A", "X"))
	mustResolve(t, store, testTrack("/m/b.mp3", "B", "X"))
	store.SaveFingerprint(ctx, a.TrackID, "fp")

	st, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if st.Artists != 1 || st.Releases != 1 || st.Songs != 2 || st.Tracks != 2 {
		t.Errorf("unexpected entity counts %+v", st)
	}
	if st.FingerprintQueue != 1 || st.PendingVerification != 1 || st.VerifiedSongs != 0 || st.UnscoredTracks != 2 {
		t.Errorf("unexpected queue counts %+v", st)
	}
	if st.TotalBytes != 2*(4<<20) || st.TotalSeconds != 360 {
		t.Errorf("unexpected totals %+v", st)
	}
}
