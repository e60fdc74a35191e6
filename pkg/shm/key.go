package shm

import (
	"fmt"
	"os"

	internalshm "github.com/srediag/procpool-shm/internal/shm"
)

const (
	// DefaultPermissions are the mode bits applied to created segments.
	DefaultPermissions uint32 = 0o644
	// DefaultProject is the ftok project tag used by DefaultKey.
	DefaultProject byte = 'b'
)

// Key identifies one segment.
type Key int

func (k Key) String() string { return fmt.Sprintf("%#08x", uint32(k)) }

// Ftok derives a key from an existing path and a project tag.
func Ftok(path string, proj byte) (Key, error) {
	k, err := internalshm.Ftok(path, proj)
	if err != nil {
		return 0, err
	}
	return Key(k), nil
}

// DefaultKey derives the key from the running executable and DefaultProject. It is
// stable across runs and identical in re-executed children of the same binary.
func DefaultKey() (Key, error) {
	exe, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("shm: default key: %w", err)
	}
	return Ftok(exe, DefaultProject)
}
