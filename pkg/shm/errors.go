package shm

import (
	"errors"
	"fmt"

	internalshm "github.com/srediag/procpool-shm/internal/shm"
)

var (
	// ErrClosed is returned by operations on a Slot after Close.
	ErrClosed = errors.New("shm: slot is closed")
	// ErrUnsupported is returned on platforms without System V shared memory.
	ErrUnsupported = internalshm.ErrUnsupported
)

// DecodeError reports segment bytes that do not match the payload envelope or
// cannot be decoded into the requested value.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("shm: decode: %s: %v", e.Reason, e.Err)
	}
	return "shm: decode: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

func decodeErrorf(err error, format string, a ...interface{}) *DecodeError {
	return &DecodeError{Reason: fmt.Sprintf(format, a...), Err: err}
}
