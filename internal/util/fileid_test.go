//go:build !windows

package util

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestStatFileID_HardlinkAndSymlink(t *testing.T) {
	dir := t.TempDir()
	orig := filepath.Join(dir, "track.flac")
	if err := os.WriteFile(orig, []byte("audio"), 0644); err != nil {
		t.Fatal(err)
	}

	hard := filepath.Join(dir, "hard.flac")
	if err := os.Link(orig, hard); err != nil {
		t.Skipf("hardlinks not supported: %v", err)
	}
	soft := filepath.Join(dir, "soft.flac")
	if err := os.Symlink(orig, soft); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	want, err := StatFileID(orig)
	if err != nil {
		t.Fatalf("StatFileID failed: %v", err)
	}
	for _, p := range []string{hard, soft} {
		got, err := StatFileID(p)
		if err != nil {
			t.Fatalf("StatFileID(%s) failed: %v", p, err)
		}
		if got != want {
			t.Errorf("StatFileID(%s) = %v, want %v", p, got, want)
		}
	}

	other := filepath.Join(dir, "other.flac")
	os.WriteFile(other, []byte("audio"), 0644)
	otherID, _ := StatFileID(other)
	if otherID == want {
		t.Error("distinct files must have distinct ids")
	}
}

func TestDeviceKey(t *testing.T) {
	dir := t.TempDir()
	info, err := os.Stat(dir)
	if err != nil {
		t.Fatal(err)
	}
	key := DeviceKey(dir, info)
	if !strings.HasPrefix(key, "dev:") {
		t.Errorf("DeviceKey = %q, want dev: prefix", key)
	}
	if DeviceKey(dir, nil) != DeviceUnknown {
		t.Error("nil info should map to DeviceUnknown")
	}
}
