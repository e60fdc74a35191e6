package shm

import (
	"context"
	"fmt"
	"sync"

	"github.com/valyala/bytebufferpool"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	internalshm "github.com/srediag/procpool-shm/internal/shm"
)

const instrumentationName = "github.com/srediag/procpool-shm/pkg/shm"

// Option configures a Slot.
type Option func(*options)

type options struct {
	perms  uint32
	meter  metric.Meter
	tracer trace.Tracer
}

// WithPermissions sets the mode bits for segments created by the slot.
func WithPermissions(mode uint32) Option {
	return func(o *options) { o.perms = mode }
}

// WithMeter records write and decode counters on m.
func WithMeter(m metric.Meter) Option {
	return func(o *options) { o.meter = m }
}

// WithTracer records a span per slot operation on t.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// Info is the kernel view of a slot's current segment.
type Info = internalshm.SegmentInfo

// Slot is a handle on the segment addressed by a key. It is safe for concurrent use
// within one process; across processes there is no synchronization.
type Slot struct {
	mu     sync.Mutex
	key    Key
	id     int
	perms  uint32
	closed bool

	tracer       trace.Tracer
	writes       metric.Int64Counter
	writtenBytes metric.Int64Counter
	decodeErrors metric.Int64Counter
}

// Exists reports whether a readable segment exists for key. It never fails.
func Exists(key Key) bool {
	return internalshm.Probe(int(key))
}

// Open returns a handle for key. No segment is created until the first write.
func Open(key Key, opts ...Option) *Slot {
	o := options{perms: DefaultPermissions}
	for _, opt := range opts {
		opt(&o)
	}
	if o.meter == nil {
		o.meter = metricnoop.NewMeterProvider().Meter(instrumentationName)
	}
	if o.tracer == nil {
		o.tracer = tracenoop.NewTracerProvider().Tracer(instrumentationName)
	}
	s := &Slot{
		key:    key,
		id:     -1,
		perms:  o.perms,
		tracer: o.tracer,
	}
	s.writes = int64Counter(o.meter, "shm.slot.writes", "Segments written by the slot.")
	s.writtenBytes = int64Counter(o.meter, "shm.slot.written_bytes", "Envelope bytes written by the slot.")
	s.decodeErrors = int64Counter(o.meter, "shm.slot.decode_errors", "Segments that failed to decode.")
	if id, err := internalshm.GetSegment(internalshm.SegmentOptions{Key: int(key)}); err == nil {
		s.id = id
	}
	return s
}

func int64Counter(m metric.Meter, name, desc string) metric.Int64Counter {
	c, err := m.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		return metricnoop.Int64Counter{}
	}
	return c
}

// Key returns the slot's key.
func (s *Slot) Key() Key { return s.key }

// ID returns the last segment id seen by the slot, or -1 when none is known.
func (s *Slot) ID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Permissions returns the mode bits used for new segments.
func (s *Slot) Permissions() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.perms
}

// SetPermissions changes the mode bits for segments created after the call.
func (s *Slot) SetPermissions(mode uint32) {
	s.mu.Lock()
	s.perms = mode
	s.mu.Unlock()
}

// Write replaces the stored value with v.
func (s *Slot) Write(ctx context.Context, v interface{}) error {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	if err := encodeValue(buf, v); err != nil {
		return fmt.Errorf("shm: encode: %w", err)
	}
	return s.store(ctx, "shm.Slot.Write", buf.B)
}

// Empty replaces the stored value with the empty value. The segment keeps existing.
func (s *Slot) Empty(ctx context.Context) error {
	return s.store(ctx, "shm.Slot.Empty", encodeEmpty())
}

func (s *Slot) store(ctx context.Context, op string, data []byte) error {
	ctx, span := s.tracer.Start(ctx, op)
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	// The old segment is removed first so the new one is sized to data.
	if id, err := internalshm.GetSegment(internalshm.SegmentOptions{Key: int(s.key)}); err == nil {
		if err := internalshm.RemoveSegment(id); err != nil && !internalshm.IsNotExist(err) {
			span.RecordError(err)
			return fmt.Errorf("shm: replace segment: %w", err)
		}
	}
	s.id = -1
	id, err := internalshm.GetSegment(internalshm.SegmentOptions{
		Key:    int(s.key),
		Size:   len(data),
		Mode:   s.perms,
		Create: true,
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("shm: create segment: %w", err)
	}
	if err := internalshm.WriteSegment(id, data); err != nil {
		span.RecordError(err)
		return fmt.Errorf("shm: write segment: %w", err)
	}
	s.id = id
	s.writes.Add(ctx, 1)
	s.writtenBytes.Add(ctx, int64(len(data)))
	return nil
}

// Read decodes the stored value into v. It returns false with a nil error when the
// segment is absent or holds the empty value.
func (s *Slot) Read(ctx context.Context, v interface{}) (bool, error) {
	p, err := s.Payload(ctx)
	if err != nil {
		return false, err
	}
	if p.IsEmpty() {
		return false, nil
	}
	if err := p.Unmarshal(v); err != nil {
		s.decodeErrors.Add(ctx, 1)
		return false, err
	}
	return true, nil
}

// Payload returns the current envelope. The segment is looked up by key on every
// call so writes made by other processes are visible.
func (s *Slot) Payload(ctx context.Context) (Payload, error) {
	ctx, span := s.tracer.Start(ctx, "shm.Slot.Read")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Payload{}, ErrClosed
	}
	id, err := internalshm.GetSegment(internalshm.SegmentOptions{Key: int(s.key)})
	if err != nil {
		if internalshm.IsNotExist(err) {
			s.id = -1
			return Payload{Kind: KindEmpty}, nil
		}
		span.RecordError(err)
		return Payload{}, fmt.Errorf("shm: open segment: %w", err)
	}
	s.id = id
	data, err := internalshm.ReadSegment(id)
	if err != nil {
		if internalshm.IsNotExist(err) {
			return Payload{Kind: KindEmpty}, nil
		}
		span.RecordError(err)
		return Payload{}, fmt.Errorf("shm: read segment: %w", err)
	}
	p, err := Decode(data)
	if err != nil {
		s.decodeErrors.Add(ctx, 1)
		span.RecordError(err)
		return Payload{}, err
	}
	return p, nil
}

// Delete marks the current segment for removal. It is a no-op when none exists.
func (s *Slot) Delete() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	id, err := internalshm.GetSegment(internalshm.SegmentOptions{Key: int(s.key)})
	if err != nil {
		if internalshm.IsNotExist(err) {
			s.id = -1
			return nil
		}
		return fmt.Errorf("shm: open segment: %w", err)
	}
	if err := internalshm.RemoveSegment(id); err != nil && !internalshm.IsNotExist(err) {
		return fmt.Errorf("shm: delete segment: %w", err)
	}
	s.id = -1
	return nil
}

// Stat reports the kernel view of the current segment.
func (s *Slot) Stat() (Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Info{}, ErrClosed
	}
	id, err := internalshm.GetSegment(internalshm.SegmentOptions{Key: int(s.key)})
	if err != nil {
		return Info{}, fmt.Errorf("shm: open segment: %w", err)
	}
	return internalshm.StatSegment(id)
}

// Close releases the handle. It never deletes the segment.
func (s *Slot) Close() error {
	s.mu.Lock()
	s.closed = true
	s.id = -1
	s.mu.Unlock()
	return nil
}
