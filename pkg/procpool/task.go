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
	"encoding/json"
	"fmt"

	"github.com/bytedance/sonic"
	cmap "github.com/orcaman/concurrent-map/v2"
)

var codec = sonic.ConfigStd

// Func is the work run in a child process for one item.
type Func[T any] func(ctx context.Context, job *Job[T]) error

// Job is what a child knows about its item. The embedded Memory is attached to the
// pool's shared segment; closing it never deletes the segment.
type Job[T any] struct {
	Item     T
	Index    int
	OwnerPID int
	PID      int
	RunID    string
	*Memory
}

// Task is a named Func. Children look tasks up by name, so tasks must be created
// at package level in the binary that runs the pool.
type Task[T any] struct {
	name string
	fn   Func[T]
}

type runner interface {
	bind(d *descriptor, pid int, mem *Memory) (func(context.Context) error, error)
}

var tasks = cmap.New[runner]()

// NewTask registers fn as name. It panics if the name is already taken.
func NewTask[T any](name string, fn Func[T]) *Task[T] {
	if fn == nil {
		panic("procpool: NewTask with nil func")
	}
	t := &Task[T]{name: name, fn: fn}
	if !tasks.SetIfAbsent(name, t) {
		panic(fmt.Sprintf("procpool: task %q registered twice", name))
	}
	return t
}

// Name returns the registered name.
func (t *Task[T]) Name() string { return t.name }

func (t *Task[T]) bind(d *descriptor, pid int, mem *Memory) (func(context.Context) error, error) {
	job := &Job[T]{
		Index:    d.Index,
		OwnerPID: d.OwnerPID,
		PID:      pid,
		RunID:    d.RunID,
		Memory:   mem,
	}
	if err := codec.Unmarshal(d.Item, &job.Item); err != nil {
		return nil, fmt.Errorf("procpool: decode item %d for task %q: %w", d.Index, t.name, err)
	}
	return func(ctx context.Context) error { return t.fn(ctx, job) }, nil
}

func lookupTask(name string) (runner, bool) {
	return tasks.Get(name)
}

// descriptor is the work description a child reads from stdin.
type descriptor struct {
	Task         string          `json:"task"`
	Index        int             `json:"index"`
	Item         json.RawMessage `json:"item"`
	OwnerPID     int             `json:"owner_pid"`
	RunID        string          `json:"run_id"`
	Key          int             `json:"shm_key"`
	Permissions  uint32          `json:"shm_permissions"`
	ProcessTitle string          `json:"process_title,omitempty"`
	LogChannel   string          `json:"log_channel,omitempty"`
	Verbose      bool            `json:"verbose,omitempty"`
}

func (d *descriptor) config() Config {
	return Config{
		ProcessTitle:      d.ProcessTitle,
		MaxRunningThreads: 1,
		LogChannel:        d.LogChannel,
		Verbose:           d.Verbose,
		SharedMemoryKey:   d.Key,
		Permissions:       d.Permissions,
	}
}
