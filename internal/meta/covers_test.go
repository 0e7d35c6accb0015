package meta

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/franz/cismu/internal/util"
)

func testPNG(t *testing.T, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		for y := 0; y < 8; y++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestCoverStoreSave(t *testing.T) {
	dir := t.TempDir()
	covers := NewCoverStore(dir)
	ctx := context.Background()

	art, err := covers.Save(ctx, testPNG(t, color.RGBA{R: 200, A: 255}), " Front ")
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if len(art.Hash) != 64 || art.MIME != "image/jpeg" || art.Description != "Front" {
		t.Errorf("unexpected artwork %+v", art)
	}
	if want := filepath.Join(dir, art.Hash[:1], art.Hash[:2], art.Hash+".jpg"); art.Path != want {
		t.Errorf("Path = %s, want %s", art.Path, want)
	}

	data, err := os.ReadFile(art.Path)
	if err != nil {
		t.Fatalf("stored cover missing: %v", err)
	}
	if _, format, err := image.Decode(bytes.NewReader(data)); err != nil || format != "jpeg" {
		t.Errorf("stored cover decodes as %q (%v), want jpeg", format, err)
	}

	// Same image again: same hash, no temp files left behind
	again, err := covers.Save(ctx, testPNG(t, color.RGBA{R: 200, A: 255}), "")
	if err != nil {
		t.Fatalf("second Save failed: %v", err)
	}
	if again.Hash != art.Hash {
		t.Errorf("same image hashed to %s and %s", art.Hash, again.Hash)
	}

	entries, err := os.ReadDir(filepath.Dir(art.Path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected one file in the cover directory, got %d", len(entries))
	}

	other, err := covers.Save(ctx, testPNG(t, color.RGBA{B: 200, A: 255}), "")
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if other.Hash == art.Hash {
		t.Error("different images should hash differently")
	}
}

func TestCoverStoreSave_Garbage(t *testing.T) {
	covers := NewCoverStore(t.TempDir())
	_, err := covers.Save(context.Background(), []byte("not an image"), "")
	if !errors.Is(err, util.ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
}
