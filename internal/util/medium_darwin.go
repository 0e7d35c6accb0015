//go:build darwin

package util

import (
	"strings"
	"syscall"
)

var networkFSNames = []string{"nfs", "smbfs", "afpfs", "cifs", "webdav", "osxfuse", "macfuse"}

func probePlatformMedium(path string, stat *syscall.Statfs_t) (*MediumInfo, error) {
	info := &MediumInfo{
		MountPath: int8ArrayToString(stat.Mntonname[:]),
	}

	fsTypeName := strings.ToLower(int8ArrayToString(stat.Fstypename[:]))
	for _, netType := range networkFSNames {
		if strings.Contains(fsTypeName, netType) {
			info.Network = true
			info.Protocol = fsTypeName
			break
		}
	}
	return info, nil
}

// int8ArrayToString converts a null-terminated int8 array to a Go string
func int8ArrayToString(arr []int8) string {
	b := make([]byte, 0, len(arr))
	for _, c := range arr {
		if c == 0 {
			break
		}
		b = append(b, byte(c))
	}
	return string(b)
}
