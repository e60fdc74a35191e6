//go:build !linux

package shm

// Supported reports whether segments can be used on this platform.
func Supported() bool { return false }

func GetSegment(opts SegmentOptions) (int, error) { return -1, ErrUnsupported }

func Probe(key int) bool { return false }

func WriteSegment(id int, data []byte) error { return ErrUnsupported }

func ReadSegment(id int) ([]byte, error) { return nil, ErrUnsupported }

func RemoveSegment(id int) error { return ErrUnsupported }

func StatSegment(id int) (SegmentInfo, error) { return SegmentInfo{}, ErrUnsupported }

func IsNotExist(err error) bool { return false }

func Ftok(path string, proj byte) (int, error) { return 0, ErrUnsupported }
