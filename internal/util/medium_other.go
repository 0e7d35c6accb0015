//go:build !linux && !darwin && !windows

package util

import "syscall"

func probePlatformMedium(path string, stat *syscall.Statfs_t) (*MediumInfo, error) {
	return &MediumInfo{}, nil
}
