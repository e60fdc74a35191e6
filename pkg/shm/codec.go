package shm

import (
	"bytes"
	"encoding/binary"

	"github.com/bytedance/sonic"
	"github.com/valyala/bytebufferpool"
)

// Kind tags the payload body.
type Kind uint8

const (
	// KindEmpty is an empty slot: never written, cleared, or absent.
	KindEmpty Kind = iota
	// KindJSON is a JSON encoded value.
	KindJSON
)

const (
	envelopeVersion    = 1
	envelopeHeaderSize = 12
	magicOffset        = 0
	versionOffset      = 4
	kindOffset         = 5
	lengthOffset       = 8
)

var envelopeMagic = [4]byte{'P', 'P', 'S', 'L'}

var codec = sonic.ConfigStd

// Payload is a decoded envelope.
type Payload struct {
	Kind Kind
	Body []byte
}

// IsEmpty reports whether the payload carries no value.
func (p Payload) IsEmpty() bool { return p.Kind == KindEmpty }

// Unmarshal decodes the body into v.
func (p Payload) Unmarshal(v interface{}) error {
	if p.Kind != KindJSON {
		return decodeErrorf(nil, "payload kind %d has no value", p.Kind)
	}
	if err := codec.Unmarshal(p.Body, v); err != nil {
		return decodeErrorf(err, "json body")
	}
	return nil
}

// Encode returns the envelope for v.
//
// Layout: magic "PPSL" | version 1B | kind 1B | reserved 2B | body length 4B big endian | body
func Encode(v interface{}) ([]byte, error) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	if err := encodeValue(buf, v); err != nil {
		return nil, err
	}
	return append([]byte(nil), buf.B...), nil
}

// encodeEmpty returns the envelope of the empty value.
func encodeEmpty() []byte {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	writeHeader(buf, KindEmpty, 0)
	return append([]byte(nil), buf.B...)
}

func encodeValue(buf *bytebufferpool.ByteBuffer, v interface{}) error {
	body, err := codec.Marshal(v)
	if err != nil {
		return err
	}
	writeHeader(buf, KindJSON, len(body))
	_, _ = buf.Write(body)
	return nil
}

func writeHeader(buf *bytebufferpool.ByteBuffer, kind Kind, length int) {
	var hdr [envelopeHeaderSize]byte
	copy(hdr[magicOffset:], envelopeMagic[:])
	hdr[versionOffset] = envelopeVersion
	hdr[kindOffset] = byte(kind)
	binary.BigEndian.PutUint32(hdr[lengthOffset:], uint32(length))
	_, _ = buf.Write(hdr[:])
}

// Decode parses an envelope. Trailing bytes after the body are ignored.
func Decode(data []byte) (Payload, error) {
	if len(data) < envelopeHeaderSize {
		return Payload{}, decodeErrorf(nil, "short segment: %d bytes", len(data))
	}
	if !bytes.Equal(data[magicOffset:magicOffset+4], envelopeMagic[:]) {
		return Payload{}, decodeErrorf(nil, "bad magic %q", data[magicOffset:magicOffset+4])
	}
	if data[versionOffset] != envelopeVersion {
		return Payload{}, decodeErrorf(nil, "unsupported version %d", data[versionOffset])
	}
	kind := Kind(data[kindOffset])
	length := binary.BigEndian.Uint32(data[lengthOffset:])
	if uint64(length) > uint64(len(data)-envelopeHeaderSize) {
		return Payload{}, decodeErrorf(nil, "body length %d exceeds segment", length)
	}
	switch kind {
	case KindEmpty:
		return Payload{Kind: KindEmpty}, nil
	case KindJSON:
		body := make([]byte, length)
		copy(body, data[envelopeHeaderSize:])
		return Payload{Kind: KindJSON, Body: body}, nil
	default:
		return Payload{}, decodeErrorf(nil, "unknown kind %d", kind)
	}
}
