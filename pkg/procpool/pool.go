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
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/panjf2000/ants/v2"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/srediag/procpool-shm/pkg/shm"
)

// Stats summarizes the last run of Each.
type Stats struct {
	RunID      string
	Dispatched int
	Completed  int
	Failed     int
	PeakActive int
	Duration   time.Duration
}

// Pool starts one child process per item, keeping at most MaxRunningThreads alive.
// The embedded Memory is the pool's shared slot; Close deletes its segment when
// called from the owner process.
type Pool[T any] struct {
	*Memory

	mu       sync.Mutex
	set      settings
	items    []T
	stats    Stats
	closed   bool
	ownerPID atomic.Int64
	active   atomic.Int64

	runMu   sync.Mutex
	tracer  trace.Tracer
	metrics *metrics
}

// NewPool returns a pool owned by the calling process.
func NewPool[T any](opts ...Option) (*Pool[T], error) {
	set := defaultSettings()
	for _, opt := range opts {
		opt(&set)
	}
	set.cfg = set.cfg.withDefaults()
	if err := set.cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Pool[T]{
		Memory:  newMemory(shm.Key(set.cfg.SharedMemoryKey), set.slotOptions()...),
		set:     set,
		tracer:  set.tracer,
		metrics: newMetrics(set.registerer, set.cfg.name()),
	}
	if p.tracer == nil {
		p.tracer = tracenoop.NewTracerProvider().Tracer("github.com/srediag/procpool-shm/pkg/procpool")
	}
	p.ownerPID.Store(int64(os.Getpid()))
	return p, nil
}

// Configure applies opts. Invalid configurations are rejected and leave the pool
// unchanged. The shared memory key cannot change once the slot is in use.
func (p *Pool[T]) Configure(opts ...Option) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	next := p.set
	for _, opt := range opts {
		opt(&next)
	}
	next.cfg = next.cfg.withDefaults()
	if err := next.cfg.Validate(); err != nil {
		return err
	}
	if next.cfg.SharedMemoryKey != p.set.cfg.SharedMemoryKey {
		if err := p.Memory.rebind(shm.Key(next.cfg.SharedMemoryKey), next.slotOptions()...); err != nil {
			return err
		}
	} else if next.cfg.Permissions != p.set.cfg.Permissions {
		p.Memory.setPermissions(next.cfg.Permissions, next.slotOptions()...)
	}
	p.set = next
	return nil
}

// Config returns the current configuration.
func (p *Pool[T]) Config() Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.set.cfg
}

// Data sets the items of the next run.
func (p *Pool[T]) Data(items []T) *Pool[T] {
	p.mu.Lock()
	p.items = items
	p.mu.Unlock()
	return p
}

// OwnerPID returns the pid allowed to delete the shared segment.
func (p *Pool[T]) OwnerPID() int { return int(p.ownerPID.Load()) }

// Active returns the number of children started and not yet reaped.
func (p *Pool[T]) Active() int { return int(p.active.Load()) }

// MaxRunning returns the concurrency ceiling.
func (p *Pool[T]) MaxRunning() int { return p.Config().MaxRunningThreads }

// SegmentExists reports whether the pool's shared segment currently exists.
func (p *Pool[T]) SegmentExists() bool {
	if !p.Memory.isAssigned() {
		return false
	}
	key, err := p.Memory.Key()
	if err != nil {
		return false
	}
	return shm.Exists(key)
}

// Stats returns the summary of the last run.
func (p *Pool[T]) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Each runs task once per item, blocking until every started child has exited.
// A child's non-zero exit status is logged and counted in Stats, not returned.
// A child that cannot be started aborts dispatching with a *ForkError once the
// children already running are reaped. ctx carries tracing only; children are
// never cancelled.
func (p *Pool[T]) Each(ctx context.Context, task *Task[T]) error {
	if task == nil {
		return ErrNilTask
	}
	// Init unsets the marker before running a task, so it is only still set when
	// Init was skipped and main is dispatching again.
	if IsChild() {
		return ErrChildProcess
	}
	p.runMu.Lock()
	defer p.runMu.Unlock()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	set := p.set
	items := p.items
	p.mu.Unlock()

	cfg := set.cfg
	key, err := p.Memory.Key()
	if err != nil {
		return fmt.Errorf("procpool: shared memory key: %w", err)
	}

	ownerPID := os.Getpid()
	p.ownerPID.Store(int64(ownerPID))
	p.active.Store(0)
	stats := Stats{RunID: uuid.NewString()}
	start := time.Now()
	log := newEventLogger(cfg)

	_, span := p.tracer.Start(ctx, "procpool.Each")
	defer span.End()

	waiters, err := ants.NewPool(cfg.MaxRunningThreads)
	if err != nil {
		return fmt.Errorf("procpool: waiter pool: %w", err)
	}
	defer waiters.Release()
	done := newCompletions(cfg.MaxRunningThreads)
	defer done.dispose()
	running := cmap.NewWithCustomShardingFunction[int, int](func(pid int) uint32 { return uint32(pid) })

	log.info(ownerPID, ThreadMain, "=> START MAIN PROCESS")
	internalLogger.infof("run %s: %d items, key %s, at most %d children", stats.RunID, len(items), key, cfg.MaxRunningThreads)

	active := 0
	reap := func() error {
		c, err := done.next()
		if err != nil {
			return err
		}
		active--
		p.active.Store(int64(active))
		running.Remove(c.pid)
		stats.Completed++
		if c.status != 0 {
			stats.Failed++
		}
		p.metrics.childFinished(c.status)
		log.info(ownerPID, strconv.Itoa(c.pid), fmt.Sprintf(" <- END THREAD - WITH STATUS %d", c.status))
		return nil
	}

	var runErr error
	for index, item := range items {
		cmd, err := p.command(set, task, key, ownerPID, stats.RunID, index, item)
		if err == nil {
			err = cmd.Start()
		}
		if err != nil {
			log.error(ownerPID, "-1", "Couldn't fork")
			p.metrics.forkFailures.Inc()
			span.RecordError(err)
			runErr = &ForkError{Index: index, Err: err}
			break
		}

		pid := cmd.Process.Pid
		running.Set(pid, index)
		active++
		p.active.Store(int64(active))
		stats.Dispatched++
		if active > stats.PeakActive {
			stats.PeakActive = active
		}
		p.metrics.started.Inc()
		p.metrics.active.Inc()

		wait := waitFunc(cmd, pid, index, done)
		if err := waiters.Submit(wait); err != nil {
			internalLogger.warnf("waiter pool submit pid=%d: %v", pid, err)
			go wait()
		}

		if active >= cfg.MaxRunningThreads {
			if err := reap(); err != nil {
				runErr = err
				break
			}
		}
	}

	for active > 0 {
		if err := reap(); err != nil {
			internalLogger.errorf("reap children: %v; %d left running: %v", err, active, running.Keys())
			if runErr == nil {
				runErr = err
			}
			break
		}
	}

	log.info(ownerPID, ThreadMain, "<= END MAIN PROCESS")

	stats.Duration = time.Since(start)
	p.metrics.runDuration.Observe(stats.Duration.Seconds())
	p.mu.Lock()
	p.stats = stats
	p.mu.Unlock()
	return runErr
}

func (p *Pool[T]) command(set settings, task *Task[T], key shm.Key, ownerPID int, runID string, index int, item T) (*exec.Cmd, error) {
	raw, err := codec.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("encode item: %w", err)
	}
	d := descriptor{
		Task:         task.name,
		Index:        index,
		Item:         raw,
		OwnerPID:     ownerPID,
		RunID:        runID,
		Key:          int(key),
		Permissions:  set.cfg.Permissions,
		ProcessTitle: set.cfg.ProcessTitle,
		LogChannel:   set.cfg.LogChannel,
		Verbose:      set.cfg.Verbose,
	}
	payload, err := codec.Marshal(&d)
	if err != nil {
		return nil, fmt.Errorf("encode descriptor: %w", err)
	}
	exe := set.executable
	if exe == "" {
		if exe, err = os.Executable(); err != nil {
			return nil, err
		}
	}
	cmd := exec.Command(exe, set.args...)
	cmd.Env = append(os.Environ(), childEnv+"=1")
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = set.stdout
	cmd.Stderr = set.stderr
	return cmd, nil
}

func waitFunc(cmd *exec.Cmd, pid, index int, done *completions) func() {
	return func() {
		done.put(completion{pid: pid, index: index, status: exitStatus(cmd, cmd.Wait())})
	}
}

func exitStatus(cmd *exec.Cmd, err error) int {
	if err == nil {
		return 0
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode()
	}
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	return -1
}

// Close deletes the shared segment when called by the owner process and releases
// the slot handle. Calls from any other process only release the handle.
func (p *Pool[T]) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	var err error
	if p.OwnerPID() == os.Getpid() {
		err = p.Memory.DeleteMem()
	}
	if cerr := p.Memory.Close(); err == nil {
		err = cerr
	}
	return err
}
