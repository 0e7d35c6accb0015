//go:build !windows

package util

import (
	"fmt"
	"path/filepath"
	"syscall"
)

// MediumInfo describes the storage medium a path lives on
type MediumInfo struct {
	Network   bool   // Whether the filesystem is network-mounted
	Protocol  string // nfs, cifs, smbfs... or empty if local
	MountPath string // Mount point of the filesystem, when known
}

// ProbeMedium checks whether a path sits on a network-mounted filesystem.
// The metadata pipeline uses it to choose between CPU-based and
// throughput-based concurrency for a device group.
func ProbeMedium(path string) (*MediumInfo, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	var stat syscall.Statfs_t
	if err := syscall.Statfs(absPath, &stat); err != nil {
		return nil, fmt.Errorf("failed to stat filesystem: %w", err)
	}

	return probePlatformMedium(absPath, &stat)
}

// IsNetworkPath is a convenience wrapper around ProbeMedium
func IsNetworkPath(path string) bool {
	info, err := ProbeMedium(path)
	if err != nil {
		return false
	}
	return info.Network
}
