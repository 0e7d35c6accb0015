//go:build !windows

package util

import (
	"fmt"
	"io/fs"
	"os"
	"syscall"
)

// StatFileID returns the (device, inode) identity of path, following symlinks.
func StatFileID(path string) (FileID, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileID{}, fmt.Errorf("failed to stat file: %w", err)
	}
	return FileIDFromInfo(path, info)
}

// FileIDFromInfo extracts the identity from an existing stat result
func FileIDFromInfo(_ string, info fs.FileInfo) (FileID, error) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return FileID{}, fmt.Errorf("%w: no device/inode information", ErrUnsupported)
	}
	return FileID{Dev: uint64(stat.Dev), Ino: uint64(stat.Ino)}, nil
}

// DeviceKey groups files by the device number they live on
func DeviceKey(_ string, info fs.FileInfo) string {
	if info == nil {
		return DeviceUnknown
	}
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return DeviceUnknown
	}
	return fmt.Sprintf("dev:%d", uint64(stat.Dev))
}
