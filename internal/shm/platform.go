// Package shm contains platform-specific helpers for System V shared memory segments.
package shm

import "errors"

// ErrUnsupported is returned on platforms without System V shared memory support.
var ErrUnsupported = errors.New("shm: System V shared memory is not supported on this platform")

// SegmentInfo describes a segment as reported by IPC_STAT.
type SegmentInfo struct {
	ID         int
	Key        int
	Size       int
	Attached   int
	CreatorPID int
	LastPID    int
	Mode       uint32
}

// SegmentOptions defines options for getting or creating a segment.
type SegmentOptions struct {
	Key    int
	Size   int
	Mode   uint32
	Create bool
}

// Function implementations are provided in platform-specific files (platform_linux.go, platform_other.go).
