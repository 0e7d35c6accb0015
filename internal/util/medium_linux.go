//go:build linux

package util

import (
	"bufio"
	"os"
	"strings"
	"syscall"
)

// Linux VFS magic numbers of network filesystems
var networkMagic = map[uint32]string{
	0x6969:     "nfs",
	0xff534d42: "cifs",
	0x517b:     "smb",
	0x01021994: "smbfs",
	0x564c:     "ncp",
	0xfe534d42: "smb2",
}

var networkFSNames = []string{"nfs", "cifs", "smb", "ncpfs", "fuse.sshfs", "fuse.rclone"}

func probePlatformMedium(path string, stat *syscall.Statfs_t) (*MediumInfo, error) {
	info := &MediumInfo{}

	if proto, found := networkMagic[uint32(stat.Type)]; found {
		info.Network = true
		info.Protocol = proto
	}

	mounts, err := parseProcMounts("/proc/mounts")
	if err != nil {
		// magic number check is all we have
		return info, nil
	}

	mountPoint, fsType := longestMount(mounts, path)
	if mountPoint == "" {
		return info, nil
	}
	info.MountPath = mountPoint
	if isNetworkFSName(fsType) {
		info.Network = true
		info.Protocol = strings.ToLower(fsType)
	}
	return info, nil
}

// longestMount returns the most specific mount point containing path
func longestMount(mounts map[string]string, path string) (string, string) {
	best := ""
	for mountPoint := range mounts {
		if !pathHasPrefix(path, mountPoint) {
			continue
		}
		if len(mountPoint) > len(best) {
			best = mountPoint
		}
	}
	if best == "" {
		return "", ""
	}
	return best, mounts[best]
}

func pathHasPrefix(path, prefix string) bool {
	if prefix == "/" {
		return strings.HasPrefix(path, "/")
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

func isNetworkFSName(fsType string) bool {
	lower := strings.ToLower(fsType)
	for _, name := range networkFSNames {
		if strings.Contains(lower, name) {
			return true
		}
	}
	return false
}

// parseProcMounts maps mount point to filesystem type
func parseProcMounts(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	mounts := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		// device mountpoint fstype options dump pass
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}
		mounts[fields[1]] = fields[2]
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return mounts, nil
}
