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
	"errors"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/srediag/procpool-shm/pkg/shm"
)

// Exit statuses of child processes.
const (
	ExitOK              = 0
	ExitCallbackFailed  = 1
	ExitBootstrapFailed = 2
)

const (
	childEnv = "PROCPOOL_CHILD"

	// launchInterval delays a successful child's exit to avoid a launch burst.
	launchInterval = 50 * time.Millisecond
)

// IsChild reports whether this process was started by a Pool.
func IsChild() bool {
	return os.Getenv(childEnv) == "1"
}

// Init runs the task described on stdin and exits when the process was started by
// a Pool; otherwise it returns false. Call it first in main.
func Init() bool {
	if !IsChild() {
		return false
	}
	_ = os.Unsetenv(childEnv)
	os.Exit(runChild(context.Background(), os.Stdin))
	return true
}

func runChild(ctx context.Context, r io.Reader) int {
	data, err := io.ReadAll(r)
	if err != nil {
		internalLogger.errorf("read child descriptor: %v", err)
		return ExitBootstrapFailed
	}
	var d descriptor
	if err := codec.Unmarshal(data, &d); err != nil {
		internalLogger.errorf("decode child descriptor: %v", err)
		return ExitBootstrapFailed
	}
	return execute(ctx, &d, time.Sleep)
}

// execute runs one item in the current process and returns its exit status.
func execute(ctx context.Context, d *descriptor, sleep func(time.Duration)) int {
	pid := os.Getpid()
	thread := strconv.Itoa(pid)
	log := newEventLogger(d.config())

	if d.ProcessTitle != "" {
		setProcessTitle(fmt.Sprintf("%s-%d-%d", d.ProcessTitle, d.OwnerPID, pid))
	}

	r, ok := lookupTask(d.Task)
	if !ok {
		log.error(d.OwnerPID, thread, fmt.Sprintf("%v: %q", ErrUnknownTask, d.Task))
		return ExitBootstrapFailed
	}
	mem := newMemory(shm.Key(d.Key), shm.WithPermissions(d.Permissions))
	defer func() {
		if err := mem.Close(); err != nil {
			internalLogger.warnf("release shared memory: %v", err)
		}
	}()

	call, err := r.bind(d, pid, mem)
	if err != nil {
		log.error(d.OwnerPID, thread, err.Error())
		return ExitBootstrapFailed
	}

	if err := invoke(ctx, call, d.Index); err != nil {
		var cbErr *CallbackError
		if errors.As(err, &cbErr) {
			log.error(d.OwnerPID, thread, cbErr.Err.Error()+"\n"+string(cbErr.Stack))
		} else {
			log.error(d.OwnerPID, thread, err.Error())
		}
		return ExitCallbackFailed
	}

	// START is reported after the task returns.
	log.info(d.OwnerPID, thread, " -> START THREAD")
	sleep(launchInterval)
	return ExitOK
}

func invoke(ctx context.Context, call func(context.Context) error, index int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &CallbackError{Index: index, Err: fmt.Errorf("panic: %v", r), Stack: debug.Stack()}
		}
	}()
	if err := call(ctx); err != nil {
		return &CallbackError{Index: index, Err: err, Stack: debug.Stack()}
	}
	return nil
}
