package scan

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/franz/cismu/internal/config"
	"github.com/franz/cismu/internal/util"
)

var testRules = map[string]config.ExtensionRule{
	"mp3":  {MinFileSize: 10, MinDuration: time.Second},
	"flac": {MinFileSize: 20, MinDuration: time.Second},
	"m4a":  {MinFileSize: 10, MinDuration: time.Second},
}

func writeFile(t *testing.T, path string, size int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, make([]byte, size), 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}
}

func scanPaths(t *testing.T, cfg *Config) ([]string, *Result) {
	t.Helper()
	if cfg.Rules == nil {
		cfg.Rules = testRules
	}
	if cfg.Threads == 0 {
		cfg.Threads = 3
	}
	result, err := New(cfg).Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	var paths []string
	for _, files := range result.Groups {
		for _, f := range files {
			paths = append(paths, filepath.Base(f.Path))
		}
	}
	sort.Strings(paths)
	return paths, result
}

func assertPaths(t *testing.T, got []string, want ...string) {
	t.Helper()
	sort.Strings(want)
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestScannerFiltersByExtensionAndSize(t *testing.T) {
	tmpDir := t.TempDir()

	albumDir := filepath.Join(tmpDir, "Artist", "Album")
	writeFile(t, filepath.Join(albumDir, "01 - Track One.mp3"), 100)
	writeFile(t, filepath.Join(albumDir, "02 - Track Two.FLAC"), 100)
	writeFile(t, filepath.Join(albumDir, "03 - Tiny.flac"), 5) // below 20 bytes
	writeFile(t, filepath.Join(tmpDir, "Artist", "single.m4a"), 50)
	writeFile(t, filepath.Join(tmpDir, "README.txt"), 100)
	writeFile(t, filepath.Join(albumDir, "cover.jpg"), 100)

	paths, result := scanPaths(t, &Config{Include: []string{tmpDir}})

	assertPaths(t, paths, "01 - Track One.mp3", "02 - Track Two.FLAC", "single.m4a")
	if result.Found != 3 {
		t.Errorf("Found = %d, want 3", result.Found)
	}
	if result.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", result.Skipped)
	}
	if len(result.Groups) != 1 {
		t.Errorf("expected a single device group, got %d", len(result.Groups))
	}

	for _, files := range result.Groups {
		for _, f := range files {
			if f.Extension != "mp3" && f.Extension != "flac" && f.Extension != "m4a" {
				t.Errorf("unexpected extension %q", f.Extension)
			}
			if f.Size == 0 || f.ModTime.IsZero() {
				t.Errorf("missing size or mtime for %s", f.Path)
			}
		}
	}
}

func TestScannerOverlappingRoots(t *testing.T) {
	tmpDir := t.TempDir()
	sub := filepath.Join(tmpDir, "sub")
	writeFile(t, filepath.Join(tmpDir, "a.mp3"), 100)
	writeFile(t, filepath.Join(sub, "b.mp3"), 100)

	paths, _ := scanPaths(t, &Config{Include: []string{tmpDir, sub, tmpDir}})
	assertPaths(t, paths, "a.mp3", "b.mp3")
}

func TestScannerHardlinkDedup(t *testing.T) {
	tmpDir := t.TempDir()
	orig := filepath.Join(tmpDir, "one", "a.mp3")
	writeFile(t, orig, 100)
	os.MkdirAll(filepath.Join(tmpDir, "two"), 0755)
	if err := os.Link(orig, filepath.Join(tmpDir, "two", "b.mp3")); err != nil {
		t.Skipf("hardlinks not supported: %v", err)
	}

	paths, result := scanPaths(t, &Config{Include: []string{tmpDir}})
	if len(paths) != 1 {
		t.Fatalf("expected hardlinked file once, got %v", paths)
	}
	if result.Duplicates != 1 {
		t.Errorf("Duplicates = %d, want 1", result.Duplicates)
	}
}

func TestScannerSymlinkCycle(t *testing.T) {
	tmpDir := t.TempDir()
	music := filepath.Join(tmpDir, "music")
	writeFile(t, filepath.Join(music, "a.mp3"), 100)
	writeFile(t, filepath.Join(music, "deep", "b.mp3"), 100)
	if err := os.Symlink(music, filepath.Join(music, "deep", "loop")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}
	if err := os.Symlink(filepath.Join(music, "a.mp3"), filepath.Join(music, "alias.mp3")); err != nil {
		t.Fatal(err)
	}

	paths, _ := scanPaths(t, &Config{Include: []string{music}, FollowSymlinks: true})
	if len(paths) != 2 {
		t.Fatalf("expected each physical file once, got %v", paths)
	}
}

func TestScannerSymlinksIgnoredWhenNotFollowing(t *testing.T) {
	tmpDir := t.TempDir()
	music := filepath.Join(tmpDir, "music")
	outside := filepath.Join(tmpDir, "outside")
	writeFile(t, filepath.Join(music, "a.mp3"), 100)
	writeFile(t, filepath.Join(outside, "b.mp3"), 100)
	if err := os.Symlink(outside, filepath.Join(music, "linked")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	paths, _ := scanPaths(t, &Config{Include: []string{music}, FollowSymlinks: false})
	assertPaths(t, paths, "a.mp3")

	paths, _ = scanPaths(t, &Config{Include: []string{music}, FollowSymlinks: true})
	assertPaths(t, paths, "a.mp3", "b.mp3")
}

func TestScannerExclusion(t *testing.T) {
	tmpDir := t.TempDir()
	writeFile(t, filepath.Join(tmpDir, "keep", "a.mp3"), 100)
	writeFile(t, filepath.Join(tmpDir, "podcasts", "b.mp3"), 100)
	writeFile(t, filepath.Join(tmpDir, "podcasts", "inner", "c.mp3"), 100)

	paths, _ := scanPaths(t, &Config{
		Include: []string{tmpDir, filepath.Join(tmpDir, "podcasts", "inner")},
		Exclude: []string{filepath.Join(tmpDir, "podcasts")},
	})
	assertPaths(t, paths, "a.mp3")
}

func TestScannerSymlinkIntoExcluded(t *testing.T) {
	tmpDir := t.TempDir()
	music := filepath.Join(tmpDir, "music")
	private := filepath.Join(tmpDir, "private")
	writeFile(t, filepath.Join(music, "a.mp3"), 100)
	writeFile(t, filepath.Join(private, "b.mp3"), 100)
	if err := os.Symlink(private, filepath.Join(music, "private")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	paths, _ := scanPaths(t, &Config{
		Include:        []string{music},
		Exclude:        []string{private},
		FollowSymlinks: true,
	})
	assertPaths(t, paths, "a.mp3")
}

func TestScannerMissingRoots(t *testing.T) {
	tmpDir := t.TempDir()
	writeFile(t, filepath.Join(tmpDir, "a.mp3"), 100)

	paths, _ := scanPaths(t, &Config{Include: []string{filepath.Join(tmpDir, "nope"), tmpDir}})
	assertPaths(t, paths, "a.mp3")

	_, err := New(&Config{Include: []string{filepath.Join(tmpDir, "nope")}, Rules: testRules}).Scan(context.Background())
	if !errors.Is(err, util.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig when no root is readable, got %v", err)
	}
}

func TestScannerCanceled(t *testing.T) {
	tmpDir := t.TempDir()
	writeFile(t, filepath.Join(tmpDir, "a.mp3"), 100)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(&Config{Include: []string{tmpDir}, Rules: testRules}).Scan(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestWithin(t *testing.T) {
	sep := string(filepath.Separator)
	root := filepath.Join(sep+"music", "rock")

	tests := []struct {
		path     string
		expected bool
	}{
		{root, true},
		{filepath.Join(root, "a.mp3"), true},
		{filepath.Join(root, "x", "y"), true},
		{filepath.Join(sep+"music", "rockabilly"), false},
		{filepath.Join(sep+"music"), false},
		{filepath.Join(sep+"other", "rock"), false},
	}

	for _, tt := range tests {
		if got := within(tt.path, root); got != tt.expected {
			t.Errorf("within(%s, %s) = %v, expected %v", tt.path, root, got, tt.expected)
		}
	}
}

func TestDirQueueDrains(t *testing.T) {
	q := newDirQueue()
	q.push("root")

	popped := 0
	for {
		dir, ok := q.pop()
		if !ok {
			break
		}
		popped++
		if dir == "root" {
			q.push("child1")
			q.push("child2")
		}
		q.done()
	}
	if popped != 3 {
		t.Errorf("popped %d directories, want 3", popped)
	}
}
