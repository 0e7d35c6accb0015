package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/franz/cismu/internal/config"
	"github.com/franz/cismu/internal/model"
	"github.com/franz/cismu/internal/store"
)

func TestCheckTool_Missing(t *testing.T) {
	r := checkTool("cismu-no-such-tool", "-version", 1, "testing")

	// Missing tools disable a feature, they never fail the run
	if r.status != statusWarn {
		t.Errorf("expected warning for missing tool, got status %d: %s", r.status, r.message)
	}
	if !strings.Contains(r.message, "testing") {
		t.Errorf("expected purpose in message, got %q", r.message)
	}
}

func TestCheckSQLite(t *testing.T) {
	r := checkSQLite()
	if r.status != statusOK || r.message == "" {
		t.Errorf("unexpected SQLite result: %+v", r)
	}
}

func TestCheckDatabase(t *testing.T) {
	dir := t.TempDir()

	populated := filepath.Join(dir, "library.db")
	db, err := store.Open(populated)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	_, err = db.Resolve(context.Background(), &model.UnresolvedTrack{
		Path:           "/test/path.mp3",
		FileSize:       1024,
		LastModified:   time.Unix(1700000000, 0),
		Duration:       3 * time.Minute,
		Title:          "Song",
		ReleaseTitle:   "Album",
		ReleaseArtists: []string{"Artist"},
		Performers:     []string{"Artist"},
	})
	if err != nil {
		t.Fatalf("failed to resolve test track: %v", err)
	}
	db.Close()

	tests := []struct {
		name   string
		path   string
		status checkStatus
		want   string
	}{
		{"no path", "", statusWarn, "no path"},
		{"not created yet", filepath.Join(dir, "new.db"), statusOK, "will create"},
		{"directory", dir, statusFail, "not a regular file"},
		{"populated", populated, statusOK, "1 tracks, 1 songs"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := checkDatabase(tt.path)
			if r.status != tt.status {
				t.Errorf("status = %d, want %d (%s)", r.status, tt.status, r.message)
			}
			if !strings.Contains(r.message, tt.want) {
				t.Errorf("message %q does not contain %q", r.message, tt.want)
			}
		})
	}
}

func TestCheckIncludeRoot(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file.txt")
	if err := os.WriteFile(file, []byte("test"), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	if r := checkIncludeRoot(dir); r.status != statusOK {
		t.Errorf("include root check failed: %s", r.message)
	}
	if r := checkIncludeRoot(filepath.Join(dir, "missing")); r.status != statusFail {
		t.Error("expected failure for non-existent directory")
	}
	if r := checkIncludeRoot(file); r.status != statusFail || !strings.Contains(r.message, "not a directory") {
		t.Errorf("expected failure for a file root, got %+v", r)
	}
}

func TestCheckWritableDirectory(t *testing.T) {
	dir := t.TempDir()

	r := checkWritableDirectory("Cover art directory", dir)
	if r.status != statusOK || !strings.Contains(r.message, "writable") {
		t.Errorf("writable directory check failed: %+v", r)
	}
	if _, err := os.Stat(filepath.Join(dir, ".cismu_write_test")); !os.IsNotExist(err) {
		t.Error("write test file was left behind")
	}

	nested := filepath.Join(dir, "covers", "nested")
	r = checkWritableDirectory("Cover art directory", nested)
	if r.status != statusOK || !strings.Contains(r.message, "created") {
		t.Errorf("expected directory to be created: %+v", r)
	}
	if info, err := os.Stat(nested); err != nil || !info.IsDir() {
		t.Error("directory was not created")
	}
}

func TestCheckDiskSpace(t *testing.T) {
	r := checkDiskSpace(t.TempDir(), "test")

	if r.status == statusFail {
		t.Errorf("disk space check should never fail: %s", r.message)
	}
	if !strings.Contains(r.message, "free") {
		t.Errorf("expected free space in message, got %q", r.message)
	}
}

func TestCheckAcoustIDKey(t *testing.T) {
	cfg := config.Default()

	if r := checkAcoustIDKey(cfg); r.status != statusWarn {
		t.Error("expected warning without a client key")
	}

	cfg.AcoustID.ClientKey = "secret"
	r := checkAcoustIDKey(cfg)
	if r.status != statusOK {
		t.Errorf("expected success with a client key, got %q", r.message)
	}
	if strings.Contains(r.message, "secret") {
		t.Error("client key must not be printed")
	}
}

func TestPrintResults(t *testing.T) {
	if err := printResults([]checkResult{ok("a", "fine"), warn("b", "meh")}); err != nil {
		t.Errorf("warnings should not fail: %v", err)
	}
	if err := printResults([]checkResult{ok("a", "fine"), fail("c", "broken")}); err == nil {
		t.Error("expected error when a check fails")
	}
}
