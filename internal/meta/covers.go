package meta

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/gen2brain/avif"

	"github.com/franz/cismu/internal/model"
	"github.com/franz/cismu/internal/util"
)

const coverQuality = 100

// CoverStore writes embedded artwork into a content-addressed directory
type CoverStore struct {
	dir   string
	retry *util.RetryConfig
}

// NewCoverStore creates a cover store rooted at dir
func NewCoverStore(dir string) *CoverStore {
	return &CoverStore{dir: dir, retry: util.DefaultRetryConfig()}
}

// Dir returns the cover root directory
func (c *CoverStore) Dir() string {
	return c.dir
}

// CoverPath returns <dir>/<h[0]>/<h[0:2]>/<hash>.jpg
func CoverPath(dir, hash string) string {
	return filepath.Join(dir, hash[:1], hash[:2], hash+".jpg")
}

// Save decodes an embedded image, re-encodes it as JPEG and stores it under
// the sha256 of the encoded bytes. An existing file with that hash is reused.
func (c *CoverStore) Save(ctx context.Context, data []byte, description string) (*model.Artwork, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode cover image: %v", util.ErrUnsupported, err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: coverQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode cover as jpeg: %w", err)
	}

	sum := sha256.Sum256(buf.Bytes())
	hash := hex.EncodeToString(sum[:])
	path := CoverPath(c.dir, hash)

	art := &model.Artwork{
		Path:        path,
		MIME:        "image/jpeg",
		Description: strings.TrimSpace(description),
		Hash:        hash,
	}

	if _, err := os.Stat(path); err == nil {
		return art, nil
	}

	util.DebugLog("Storing %s cover %s", format, hash)

	if err := util.RetryableMkdirAll(ctx, filepath.Dir(path), 0755, c.retry); err != nil {
		return nil, fmt.Errorf("failed to create cover directory: %w", err)
	}

	// Write beside the target and rename so readers never see half a file
	tmp, err := os.CreateTemp(filepath.Dir(path), ".cover-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp cover file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to write cover: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to close cover: %w", err)
	}

	if err := util.RetryableRename(ctx, tmpPath, path, c.retry); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to store cover: %w", err)
	}

	return art, nil
}
