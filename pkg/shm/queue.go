package shm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
)

// Queue treats a slot's value as an ordered sequence.
//
// Append reads the sequence, pushes one element and overwrites the slot. It is not
// atomic across processes: concurrent appends race and may lose updates.
type Queue struct {
	slot *Slot
}

// NewQueue returns a queue view over slot.
func NewQueue(slot *Slot) *Queue {
	return &Queue{slot: slot}
}

// Slot returns the underlying slot.
func (q *Queue) Slot() *Slot { return q.slot }

// Append adds v at the end of the sequence.
func (q *Queue) Append(ctx context.Context, v interface{}) error {
	items, err := q.Items(ctx)
	if err != nil {
		return err
	}
	raw, err := codec.Marshal(v)
	if err != nil {
		return fmt.Errorf("shm: encode queue element: %w", err)
	}
	items = append(items, json.RawMessage(raw))
	return q.slot.Write(ctx, items)
}

// Items returns the encoded elements. An absent, empty or falsy value is an empty
// sequence; a stored value that is not an array is a single-element sequence.
func (q *Queue) Items(ctx context.Context) ([]json.RawMessage, error) {
	p, err := q.slot.Payload(ctx)
	if err != nil {
		return nil, err
	}
	if p.IsEmpty() {
		return []json.RawMessage{}, nil
	}
	body := bytes.TrimSpace(p.Body)
	if isFalsy(body) {
		return []json.RawMessage{}, nil
	}
	if body[0] != '[' {
		return []json.RawMessage{append(json.RawMessage(nil), body...)}, nil
	}
	var items []json.RawMessage
	if err := codec.Unmarshal(body, &items); err != nil {
		return nil, decodeErrorf(err, "queue sequence")
	}
	return items, nil
}

// Len returns the number of elements.
func (q *Queue) Len(ctx context.Context) (int, error) {
	items, err := q.Items(ctx)
	return len(items), err
}

// Clear empties the queue.
func (q *Queue) Clear(ctx context.Context) error {
	return q.slot.Empty(ctx)
}

// ReadQueue decodes every element of q into T.
func ReadQueue[T any](ctx context.Context, q *Queue) ([]T, error) {
	items, err := q.Items(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(items))
	for i, raw := range items {
		var v T
		if err := codec.Unmarshal(raw, &v); err != nil {
			return nil, decodeErrorf(err, "queue element %d", i)
		}
		out = append(out, v)
	}
	return out, nil
}

// isFalsy matches null, false, numeric zero, "", "0" and [].
func isFalsy(body []byte) bool {
	if len(body) == 0 {
		return true
	}
	switch string(body) {
	case "null", "false", `""`, `"0"`:
		return true
	}
	if body[0] == '[' && len(body) >= 2 && body[len(body)-1] == ']' {
		return len(bytes.TrimSpace(body[1:len(body)-1])) == 0
	}
	if body[0] == '-' || (body[0] >= '0' && body[0] <= '9') {
		f, err := strconv.ParseFloat(string(body), 64)
		return err == nil && f == 0
	}
	return false
}
