package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/franz/cismu/internal/model"
	"github.com/franz/cismu/internal/util"
)

func TestFingerprintQueue(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	var ids []int64
	for _, p := range []string{"/m/1.mp3", "/m/2.mp3", "/m/3.mp3"} {
		ids = append(ids, mustResolve(t, store, testTrack(p, p, "Artist")).TrackID)
	}

	batch, err := store.NextFingerprintBatch(ctx, 2)
	if err != nil {
		t.Fatalf("NextFingerprintBatch failed: %v", err)
	}
	if len(batch) != 2 || batch[0].ID != ids[0] || batch[0].Path != "/m/1.mp3" {
		t.Fatalf("unexpected batch %+v", batch)
	}

	if err := store.SaveFingerprint(ctx, ids[0], "AQAAfp1"); err != nil {
		t.Fatalf("SaveFingerprint failed: %v", err)
	}
	if err := store.DropFingerprintJob(ctx, ids[1]); err != nil {
		t.Fatalf("DropFingerprintJob failed: %v", err)
	}

	batch, _ = store.NextFingerprintBatch(ctx, 10)
	if len(batch) != 1 || batch[0].ID != ids[2] {
		t.Fatalf("expected only the third track queued, got %+v", batch)
	}

	// dropped and pending tracks both lack a fingerprint
	n, err := store.RequeueUnfingerprinted(ctx)
	if err != nil {
		t.Fatalf("RequeueUnfingerprinted failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected the dropped track requeued, got %d", n)
	}
	if q := countRows(t, store, "fingerprint_queue"); q != 2 {
		t.Errorf("expected 2 queued tracks, got %d", q)
	}
}

func fingerprinted(t *testing.T, s *Store, track *model.UnresolvedTrack, fp string) *ResolveResult {
	t.Helper()
	res := mustResolve(t, s, track)
	if err := s.SaveFingerprint(context.Background(), res.TrackID, fp); err != nil {
		t.Fatalf("SaveFingerprint failed: %v", err)
	}
	return res
}

func TestNextVerificationBatch(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	a := fingerprinted(t, store, testTrack("/m/a.mp3", "A", "X"), "fpA")
	b := fingerprinted(t, store, testTrack("/m/b.mp3", "B", "X"), "fpB")
	mustResolve(t, store, testTrack("/m/c.mp3", "C", "X")) // no fingerprint

	batch, err := store.NextVerificationBatch(ctx, 3, nil)
	if err != nil {
		t.Fatalf("NextVerificationBatch failed: %v", err)
	}
	if len(batch) != 2 {
		t.Fatalf("expected two candidates, got %+v", batch)
	}
	if batch[0].Fingerprint != "fpA" || batch[0].DurationSeconds != 180 {
		t.Errorf("unexpected candidate %+v", batch[0])
	}

	batch, _ = store.NextVerificationBatch(ctx, 3, []int64{a.TrackID})
	if len(batch) != 1 || batch[0].TrackID != b.TrackID {
		t.Errorf("excluded track returned: %+v", batch)
	}

	if _, err := store.ApplyVerification(ctx, a.TrackID, "acoust-a"); err != nil {
		t.Fatalf("ApplyVerification failed: %v", err)
	}
	batch, _ = store.NextVerificationBatch(ctx, 3, nil)
	if len(batch) != 1 || batch[0].TrackID != b.TrackID {
		t.Errorf("verified song still pending: %+v", batch)
	}
}

func TestApplyVerificationMerge(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first := testTrack("/m/album/a.flac", "Song", "X")
	first.ReleaseTitle = "Album"
	second := testTrack("/m/live/a.mp3", "Song (Remastered)", "X")
	second.ReleaseTitle = "Best Of"
	second.Composers = []string{"Z"}
	second.Genres = []string{"Rock"}

	r1 := fingerprinted(t, store, first, "fp1")
	r2 := fingerprinted(t, store, second, "fp2")
	if r1.SongID == r2.SongID {
		t.Fatal("test setup: expected two songs")
	}

	v1, err := store.ApplyVerification(ctx, r1.TrackID, "acoust-1")
	if err != nil {
		t.Fatalf("ApplyVerification failed: %v", err)
	}
	if v1.Merged || v1.MasterID != r1.SongID {
		t.Errorf("first verification should stamp, got %+v", v1)
	}

	v2, err := store.ApplyVerification(ctx, r2.TrackID, "acoust-1")
	if err != nil {
		t.Fatalf("ApplyVerification failed: %v", err)
	}
	if !v2.Merged || v2.MasterID != r1.SongID || v2.SongID != r2.SongID {
		t.Errorf("second verification should merge into song %d, got %+v", r1.SongID, v2)
	}

	if n := countRows(t, store, "songs"); n != 1 {
		t.Errorf("expected songs collapsed to one, got %d", n)
	}
	var songID int64
	store.db.QueryRow("SELECT song_id FROM release_tracks WHERE id = ?", r2.TrackID).Scan(&songID)
	if songID != r1.SongID {
		t.Errorf("track not repointed: song %d", songID)
	}

	master, _ := store.GetSong(ctx, r1.SongID)
	if master.Title != "Song" || master.AcoustID != "acoust-1" {
		t.Errorf("master must keep its title and acoustid, got %+v", master)
	}
	var hasComposer bool
	for _, c := range master.Credits {
		if c.Name == "Z" && c.Role == model.RoleComposer {
			hasComposer = true
		}
	}
	if !hasComposer {
		t.Errorf("expected credits unioned into master, got %+v", master.Credits)
	}
	if len(master.Genres) != 1 || master.Genres[0] != "Rock" {
		t.Errorf("expected genres unioned into master, got %+v", master.Genres)
	}

	// applying again is a no-op
	v3, err := store.ApplyVerification(ctx, r2.TrackID, "acoust-1")
	if err != nil || v3.Merged {
		t.Errorf("re-applying should be a no-op, got %+v (%v)", v3, err)
	}
}

func TestApplyVerificationSameRelease(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	r1 := fingerprinted(t, store, testTrack("/m/a.flac", "Song", "X"), "fp1")
	r2 := fingerprinted(t, store, testTrack("/m/a.mp3", "Song (Album Version)", "X"), "fp2")
	if r1.ReleaseID != r2.ReleaseID {
		t.Fatal("test setup: expected one release")
	}

	store.ApplyVerification(ctx, r1.TrackID, "acoust-1")
	v, err := store.ApplyVerification(ctx, r2.TrackID, "acoust-1")
	if err != nil {
		t.Fatalf("ApplyVerification failed: %v", err)
	}
	if !v.Merged {
		t.Error("expected merge")
	}
	if n := countRows(t, store, "release_tracks"); n != 1 {
		t.Errorf("master track stands for both files, got %d tracks", n)
	}
	if n := countRows(t, store, "songs"); n != 1 {
		t.Errorf("expected one song, got %d", n)
	}
}

func TestRescanAfterMergeIsStable(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first := testTrack("/m/album/a.flac", "Song", "X")
	first.ReleaseTitle = "Album"
	second := testTrack("/m/live/a.mp3", "Song (Remastered)", "X")
	second.ReleaseTitle = "Best Of"

	r1 := fingerprinted(t, store, first, "fp1")
	r2 := fingerprinted(t, store, second, "fp2")
	store.ApplyVerification(ctx, r1.TrackID, "acoust-1")
	if _, err := store.ApplyVerification(ctx, r2.TrackID, "acoust-1"); err != nil {
		t.Fatalf("ApplyVerification failed: %v", err)
	}

	// the unchanged file stays on the verified song
	again := mustResolve(t, store, second)
	if again.NewSong || again.SongID != r1.SongID || again.TrackID != r2.TrackID {
		t.Errorf("rescan should keep track %d on song %d, got %+v", r2.TrackID, r1.SongID, again)
	}
	if n := countRows(t, store, "songs"); n != 1 {
		t.Errorf("expected 1 song after rescan, got %d", n)
	}
	if q := countRows(t, store, "fingerprint_queue"); q != 0 {
		t.Errorf("unchanged file must not be requeued, got %d jobs", q)
	}
	var fp string
	store.db.QueryRow("SELECT fingerprint FROM release_tracks WHERE id = ?", r2.TrackID).Scan(&fp)
	if fp != "fp2" {
		t.Errorf("fingerprint lost on rescan: %q", fp)
	}

	// an edited file is resolved from its tags again
	second.LastModified = second.LastModified.Add(time.Hour)
	edited := mustResolve(t, store, second)
	if !edited.NewSong {
		t.Errorf("changed file should be resolved by its tags, got %+v", edited)
	}
}

func TestRescanAfterSameReleaseMergeIsStable(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	flac := testTrack("/m/a.flac", "Song", "X")
	mp3 := testTrack("/m/a.mp3", "Song (Album Version)", "X")
	r1 := fingerprinted(t, store, flac, "fp1")
	r2 := fingerprinted(t, store, mp3, "fp2")

	store.ApplyVerification(ctx, r1.TrackID, "acoust-1")
	if _, err := store.ApplyVerification(ctx, r2.TrackID, "acoust-1"); err != nil {
		t.Fatalf("ApplyVerification failed: %v", err)
	}
	if n := countRows(t, store, "absorbed_files"); n != 1 {
		t.Fatalf("expected the dropped file to be recorded, got %d", n)
	}

	for i := 0; i < 2; i++ {
		res := mustResolve(t, store, mp3)
		if res.NewSong || res.TrackID != r1.TrackID || res.SongID != r1.SongID {
			t.Errorf("rescan %d: expected the master track, got %+v", i, res)
		}
	}
	if n := countRows(t, store, "songs"); n != 1 {
		t.Errorf("expected 1 song, got %d", n)
	}
	if n := countRows(t, store, "release_tracks"); n != 1 {
		t.Errorf("expected 1 release track, got %d", n)
	}
	if q := countRows(t, store, "fingerprint_queue"); q != 0 {
		t.Errorf("absorbed file must not be requeued, got %d jobs", q)
	}

	// removing the file clears the record
	if _, err := store.RemoveTrackByPath(ctx, "/m/a.mp3"); err != nil {
		t.Fatalf("RemoveTrackByPath failed: %v", err)
	}
	if n := countRows(t, store, "absorbed_files"); n != 0 {
		t.Errorf("expected absorbed record removed, got %d", n)
	}
	if n := countRows(t, store, "release_tracks"); n != 1 {
		t.Errorf("master track must survive, got %d tracks", n)
	}
}

func TestApplyVerificationUnknownTrack(t *testing.T) {
	store := openTestStore(t)

	_, err := store.ApplyVerification(context.Background(), 42, "acoust-1")
	if !errors.Is(err, util.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestQualityBatch(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	a := mustResolve(t, store, testTrack("/m/a.flac", "A", "X"))
	b := mustResolve(t, store, testTrack("/m/b.mp3", "B", "X"))

	batch, err := store.NextQualityBatch(ctx, 10, nil)
	if err != nil || len(batch) != 2 {
		t.Fatalf("expected two unscored tracks, got %+v (%v)", batch, err)
	}

	if err := store.SaveQuality(ctx, a.TrackID, 9.8, "Excellent"); err != nil {
		t.Fatalf("SaveQuality failed: %v", err)
	}
	batch, _ = store.NextQualityBatch(ctx, 10, nil)
	if len(batch) != 1 || batch[0].ID != b.TrackID {
		t.Errorf("expected only track b unscored, got %+v", batch)
	}
	batch, _ = store.NextQualityBatch(ctx, 10, []int64{b.TrackID})
	if len(batch) != 0 {
		t.Errorf("excluded track returned: %+v", batch)
	}

	store.SaveQuality(ctx, b.TrackID, 5.0, "Medium")
	dist, err := store.QualityDistribution(ctx)
	if err != nil {
		t.Fatalf("QualityDistribution failed: %v", err)
	}
	if len(dist) != 2 || dist[0].Assessment != "Excellent" || dist[1].Count != 1 {
		t.Errorf("unexpected distribution %+v", dist)
	}
}
