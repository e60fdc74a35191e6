/*
 * Copyright 2025 SREDiag Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package procpool

import (
	"context"
	"sync"

	"github.com/srediag/procpool-shm/pkg/shm"
)

// Memory gives lazy access to one shared slot. The slot is opened on first use,
// and its key is kept for the rest of the Memory's life.
type Memory struct {
	mu       sync.Mutex
	key      shm.Key
	assigned bool
	opts     []shm.Option
	slot     *shm.Slot
}

// newMemory returns a Memory bound to key, or to shm.DefaultKey when key is zero.
func newMemory(key shm.Key, opts ...shm.Option) *Memory {
	return &Memory{key: key, assigned: key != 0, opts: opts}
}

// Key returns the segment key, deriving the default one on first call.
func (m *Memory) Key() (shm.Key, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resolveKey()
}

func (m *Memory) resolveKey() (shm.Key, error) {
	if !m.assigned {
		key, err := shm.DefaultKey()
		if err != nil {
			return 0, err
		}
		m.key = key
		m.assigned = true
	}
	return m.key, nil
}

// Slot returns the shared slot, opening it on first use.
func (m *Memory) Slot() (*shm.Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.slot != nil {
		return m.slot, nil
	}
	key, err := m.resolveKey()
	if err != nil {
		return nil, err
	}
	m.slot = shm.Open(key, m.opts...)
	return m.slot, nil
}

// ReadMem decodes the shared value into v; false means nothing is stored.
func (m *Memory) ReadMem(ctx context.Context, v interface{}) (bool, error) {
	slot, err := m.Slot()
	if err != nil {
		return false, err
	}
	return slot.Read(ctx, v)
}

// WriteMem overwrites the shared value.
func (m *Memory) WriteMem(ctx context.Context, v interface{}) error {
	slot, err := m.Slot()
	if err != nil {
		return err
	}
	return slot.Write(ctx, v)
}

// EmptyMem clears the shared value.
func (m *Memory) EmptyMem(ctx context.Context) error {
	slot, err := m.Slot()
	if err != nil {
		return err
	}
	return slot.Empty(ctx)
}

// DeleteMem marks the segment for removal. Nothing happens before a key is assigned.
func (m *Memory) DeleteMem() error {
	m.mu.Lock()
	assigned := m.assigned
	m.mu.Unlock()
	if !assigned {
		return nil
	}
	slot, err := m.Slot()
	if err != nil {
		return err
	}
	return slot.Delete()
}

// MemQueue returns a queue view of the shared value.
func (m *Memory) MemQueue() (*shm.Queue, error) {
	slot, err := m.Slot()
	if err != nil {
		return nil, err
	}
	return shm.NewQueue(slot), nil
}

// AppendToMemQueue appends v to the shared queue. Concurrent appends from several
// processes may lose updates.
func (m *Memory) AppendToMemQueue(ctx context.Context, v interface{}) error {
	q, err := m.MemQueue()
	if err != nil {
		return err
	}
	return q.Append(ctx, v)
}

// ReadMemQueue decodes the shared queue into a []T.
func ReadMemQueue[T any](ctx context.Context, m *Memory) ([]T, error) {
	q, err := m.MemQueue()
	if err != nil {
		return nil, err
	}
	return shm.ReadQueue[T](ctx, q)
}

// Close releases the slot handle without deleting the segment.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.slot == nil {
		return nil
	}
	err := m.slot.Close()
	m.slot = nil
	return err
}

func (m *Memory) isAssigned() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.assigned
}

// rebind moves a Memory that has not opened its slot yet to another key.
func (m *Memory) rebind(key shm.Key, opts ...shm.Option) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.slot != nil {
		return ErrMemoryAssigned
	}
	m.key = key
	m.assigned = key != 0
	m.opts = opts
	return nil
}

// setPermissions applies to segments created from now on.
func (m *Memory) setPermissions(mode uint32, opts ...shm.Option) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opts = opts
	if m.slot != nil {
		m.slot.SetPermissions(mode)
	}
}
