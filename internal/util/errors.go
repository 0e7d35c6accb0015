package util

import "errors"

// Sentinel errors for common failure modes
var (
	// ErrUnsupported indicates a file format or operation is not supported
	ErrUnsupported = errors.New("unsupported")

	// ErrCorrupt indicates a file is corrupt or unreadable
	ErrCorrupt = errors.New("corrupt file")

	// ErrNotFound indicates a required resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrNoTitle is returned when a track cannot be resolved because it has no title
	ErrNoTitle = errors.New("track has no title")

	// ErrTooShort indicates a track below its extension's minimum duration
	ErrTooShort = errors.New("track shorter than minimum duration")

	// ErrTooSmall indicates a file below its extension's minimum size
	ErrTooSmall = errors.New("file smaller than minimum size")

	// ErrWorkerPanic wraps a recovered panic from a pipeline task
	ErrWorkerPanic = errors.New("worker panic")

	// ErrToolMissing indicates an external binary (ffmpeg, ffprobe, fpcalc) is not in PATH
	ErrToolMissing = errors.New("external tool not found")
)
