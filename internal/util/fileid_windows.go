//go:build windows

package util

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"syscall"
)

// StatFileID returns the (volume serial, file index) identity of path.
func StatFileID(path string) (FileID, error) {
	p, err := syscall.UTF16PtrFromString(path)
	if err != nil {
		return FileID{}, err
	}
	h, err := syscall.CreateFile(p, 0,
		syscall.FILE_SHARE_READ|syscall.FILE_SHARE_WRITE|syscall.FILE_SHARE_DELETE,
		nil, syscall.OPEN_EXISTING, syscall.FILE_FLAG_BACKUP_SEMANTICS, 0)
	if err != nil {
		return FileID{}, fmt.Errorf("failed to open file: %w", err)
	}
	defer syscall.CloseHandle(h)

	var d syscall.ByHandleFileInformation
	if err := syscall.GetFileInformationByHandle(h, &d); err != nil {
		return FileID{}, fmt.Errorf("failed to read file information: %w", err)
	}
	return FileID{
		Dev: uint64(d.VolumeSerialNumber),
		Ino: uint64(d.FileIndexHigh)<<32 | uint64(d.FileIndexLow),
	}, nil
}

// FileIDFromInfo needs a handle on Windows, so it reopens the path
func FileIDFromInfo(path string, _ fs.FileInfo) (FileID, error) {
	return StatFileID(path)
}

// DeviceKey groups files by drive letter
func DeviceKey(path string, _ fs.FileInfo) string {
	vol := filepath.VolumeName(path)
	switch {
	case vol == "":
		return "NO_DRIVE"
	case len(vol) == 2 && vol[1] == ':':
		return strings.ToUpper(vol[:1])
	case strings.HasPrefix(vol, `\\`):
		return "UNC_OTHER"
	default:
		return "OTHER_PREFIX"
	}
}
