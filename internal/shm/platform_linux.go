//go:build linux

package shm

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Supported reports whether segments can be used on this platform.
func Supported() bool { return true }

// GetSegment returns the id of the segment for opts.Key, creating one of opts.Size
// bytes when opts.Create is set.
func GetSegment(opts SegmentOptions) (int, error) {
	flags := 0
	size := 0
	if opts.Create {
		flags = unix.IPC_CREAT | int(opts.Mode&0o777)
		size = opts.Size
	}
	id, err := unix.SysvShmGet(opts.Key, size, flags)
	if err != nil {
		return -1, fmt.Errorf("shmget key=%#x: %w", opts.Key, err)
	}
	return id, nil
}

// Probe reports whether a segment exists for key and is readable.
func Probe(key int) bool {
	id, err := unix.SysvShmGet(key, 0, 0)
	if err != nil {
		return false
	}
	mem, err := unix.SysvShmAttach(id, 0, unix.SHM_RDONLY)
	if err != nil {
		return false
	}
	_ = unix.SysvShmDetach(mem)
	return true
}

// WriteSegment attaches id, copies data at offset 0 and detaches.
func WriteSegment(id int, data []byte) error {
	mem, err := unix.SysvShmAttach(id, 0, 0)
	if err != nil {
		return fmt.Errorf("shmat id=%d: %w", id, err)
	}
	if len(mem) < len(data) {
		_ = unix.SysvShmDetach(mem)
		return fmt.Errorf("shmat id=%d: segment holds %d bytes, need %d", id, len(mem), len(data))
	}
	copy(mem, data)
	if err := unix.SysvShmDetach(mem); err != nil {
		return fmt.Errorf("shmdt id=%d: %w", id, err)
	}
	return nil
}

// ReadSegment attaches id read-only and returns a copy of its whole contents.
func ReadSegment(id int) ([]byte, error) {
	mem, err := unix.SysvShmAttach(id, 0, unix.SHM_RDONLY)
	if err != nil {
		return nil, fmt.Errorf("shmat id=%d: %w", id, err)
	}
	out := make([]byte, len(mem))
	copy(out, mem)
	if err := unix.SysvShmDetach(mem); err != nil {
		return nil, fmt.Errorf("shmdt id=%d: %w", id, err)
	}
	return out, nil
}

// RemoveSegment marks id for destruction once the last process detaches.
func RemoveSegment(id int) error {
	if _, err := unix.SysvShmCtl(id, unix.IPC_RMID, nil); err != nil {
		return fmt.Errorf("shmctl IPC_RMID id=%d: %w", id, err)
	}
	return nil
}

// StatSegment returns the kernel view of id.
func StatSegment(id int) (SegmentInfo, error) {
	var desc unix.SysvShmDesc
	if _, err := unix.SysvShmCtl(id, unix.IPC_STAT, &desc); err != nil {
		return SegmentInfo{}, fmt.Errorf("shmctl IPC_STAT id=%d: %w", id, err)
	}
	return SegmentInfo{
		ID:         id,
		Key:        int(desc.Perm.Key),
		Size:       int(desc.Segsz),
		Attached:   int(desc.Nattch),
		CreatorPID: int(desc.Cpid),
		LastPID:    int(desc.Lpid),
		Mode:       uint32(desc.Perm.Mode) & 0o777,
	}, nil
}

// IsNotExist reports whether err means no segment exists for a key or id.
func IsNotExist(err error) bool {
	return errors.Is(err, unix.ENOENT) || errors.Is(err, unix.EIDRM) || errors.Is(err, unix.EINVAL)
}

// Ftok computes a System V IPC key from path and proj the same way glibc does.
func Ftok(path string, proj byte) (int, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return 0, fmt.Errorf("ftok stat %s: %w", path, err)
	}
	k := uint32(st.Ino&0xffff) | uint32(st.Dev&0xff)<<16 | uint32(proj)<<24
	return int(int32(k)), nil
}
