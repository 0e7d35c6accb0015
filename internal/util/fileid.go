package util

import "fmt"

// FileID identifies a physical file independent of the path used to reach it.
// Two paths with the same FileID are hardlinks, symlinks or overlapping roots.
type FileID struct {
	Dev uint64
	Ino uint64
}

func (id FileID) String() string {
	return fmt.Sprintf("%d:%d", id.Dev, id.Ino)
}

// DeviceUnknown is the device key used when the device cannot be determined
const DeviceUnknown = "DEV_UNKNOWN"
