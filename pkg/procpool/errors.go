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
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig is wrapped by configuration validation failures.
	ErrInvalidConfig = errors.New("procpool: invalid config")
	// ErrUnknownTask is returned when a child is asked to run an unregistered task.
	ErrUnknownTask = errors.New("procpool: unknown task")
	// ErrNilTask is returned by Each when no task is given.
	ErrNilTask = errors.New("procpool: nil task")
	// ErrClosed is returned by Each after Close.
	ErrClosed = errors.New("procpool: pool is closed")
	// ErrMemoryAssigned is returned when reconfiguring the shared memory of a pool
	// that already uses it.
	ErrMemoryAssigned = errors.New("procpool: shared memory already assigned")
	// ErrChildProcess is returned by Each in a process started by a Pool whose main
	// did not call Init first.
	ErrChildProcess = errors.New("procpool: Each called in a child process; call Init first in main")
)

// ForkError reports that a child process could not be started. It aborts the
// dispatch loop of Each.
type ForkError struct {
	Index int
	Err   error
}

func (e *ForkError) Error() string {
	return fmt.Sprintf("procpool: couldn't fork item %d: %v", e.Index, e.Err)
}

func (e *ForkError) Unwrap() error { return e.Err }

// CallbackError is a task failure inside a child. It is logged by the child, which
// then exits with ExitCallbackFailed; the parent only observes the exit status.
type CallbackError struct {
	Index int
	Err   error
	Stack []byte
}

func (e *CallbackError) Error() string {
	return fmt.Sprintf("procpool: task failed for item %d: %v", e.Index, e.Err)
}

func (e *CallbackError) Unwrap() error { return e.Err }
