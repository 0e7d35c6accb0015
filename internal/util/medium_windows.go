//go:build windows

package util

import "strings"

// MediumInfo describes the storage medium a path lives on
type MediumInfo struct {
	Network   bool
	Protocol  string
	MountPath string
}

// ProbeMedium treats UNC paths as network shares; drive letters are
// assumed local (mapped network drives are not detected).
func ProbeMedium(path string) (*MediumInfo, error) {
	if strings.HasPrefix(path, `\\`) {
		return &MediumInfo{Network: true, Protocol: "smb"}, nil
	}
	return &MediumInfo{}, nil
}

// IsNetworkPath is a convenience wrapper around ProbeMedium
func IsNetworkPath(path string) bool {
	info, _ := ProbeMedium(path)
	return info != nil && info.Network
}
