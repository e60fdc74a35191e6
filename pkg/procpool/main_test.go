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
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/srediag/procpool-shm/pkg/shm"
)

// Tasks run by re-executed test binaries. They must be registered before
// TestMain so children resolve them by name.
var (
	appendTask = NewTask("test.append", func(ctx context.Context, job *Job[lockedItem]) error {
		return withFileLock(job.Item.Lock, func() error {
			return job.AppendToMemQueue(ctx, job.Item.Value*10)
		})
	})

	markerTask = NewTask("test.marker", func(ctx context.Context, job *Job[markerItem]) error {
		running := filepath.Join(job.Item.Dir, fmt.Sprintf("running-%d", job.Index))
		if err := os.WriteFile(running, nil, 0o600); err != nil {
			return err
		}
		seen, err := filepath.Glob(filepath.Join(job.Item.Dir, "running-*"))
		if err != nil {
			return err
		}
		out := filepath.Join(job.Item.Dir, fmt.Sprintf("seen-%d", job.Index))
		if err := os.WriteFile(out, []byte(fmt.Sprint(len(seen))), 0o600); err != nil {
			return err
		}
		time.Sleep(job.Item.Hold)
		return os.Remove(running)
	})

	failOddTask = NewTask("test.fail-odd", func(ctx context.Context, job *Job[int]) error {
		if job.Item%2 == 1 {
			return fmt.Errorf("odd item %d", job.Item)
		}
		return nil
	})

	closeMemTask = NewTask("test.close-mem", func(ctx context.Context, job *Job[string]) error {
		if err := job.WriteMem(ctx, job.Item); err != nil {
			return err
		}
		return job.Memory.Close()
	})

	titleTask = NewTask("test.title", func(ctx context.Context, job *Job[int]) error {
		comm, err := os.ReadFile("/proc/self/comm")
		if err != nil {
			return err
		}
		return job.WriteMem(ctx, titleReport{Comm: strings.TrimSpace(string(comm)), PID: job.PID})
	})

	// Used in-process only.
	inProcessTask = NewTask("test.in-process", func(ctx context.Context, job *Job[string]) error {
		switch job.Item {
		case "fail":
			return errors.New("boom")
		case "panic":
			panic("kaboom")
		}
		return nil
	})
)

type lockedItem struct {
	Value int    `json:"value"`
	Lock  string `json:"lock"`
}

type markerItem struct {
	Dir  string        `json:"dir"`
	Hold time.Duration `json:"hold"`
}

type titleReport struct {
	Comm string `json:"comm"`
	PID  int    `json:"pid"`
}

// fileChannel is registered before Init so re-executed children can log to it too.
// Events are appended as JSON lines to the file named by eventsFileEnv.
const (
	fileChannel   = "test-file"
	eventsFileEnv = "PROCPOOL_TEST_EVENTS_FILE"
)

type fileSink struct{}

func (fileSink) Log(e Event) {
	path := os.Getenv(eventsFileEnv)
	if path == "" {
		return
	}
	line, err := codec.Marshal(e)
	if err != nil {
		return
	}
	_ = withFileLock(path+".lock", func() error {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = f.Write(append(line, '\n'))
		return err
	})
}

func readFileEvents(t *testing.T, path string) []Event {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var events []Event
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var e Event
		if err := codec.Unmarshal([]byte(line), &e); err != nil {
			t.Fatalf("decode event %q: %v", line, err)
		}
		events = append(events, e)
	}
	return events
}

func TestMain(m *testing.M) {
	RegisterChannel(fileChannel, fileSink{})
	if Init() {
		return
	}
	os.Exit(m.Run())
}

// withFileLock serializes the read-modify-write of the shared queue across children.
func withFileLock(path string, fn func() error) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		return err
	}
	defer func() { _ = unix.Flock(int(f.Fd()), unix.LOCK_UN) }()
	return fn()
}

// testKey derives a segment key from a fresh file.
func testKey(t *testing.T, proj byte) shm.Key {
	t.Helper()
	path := filepath.Join(t.TempDir(), "segment.key")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	key, err := shm.Ftok(path, proj)
	if err != nil {
		t.Skipf("ftok unavailable: %v", err)
	}
	return key
}

// requireSysV skips when System V shared memory cannot be used.
func requireSysV(t *testing.T, key shm.Key) {
	t.Helper()
	slot := shm.Open(key)
	defer slot.Close()
	if err := slot.Write(context.Background(), "probe"); err != nil {
		t.Skipf("System V shared memory unavailable: %v", err)
	}
	if err := slot.Delete(); err != nil {
		t.Fatal(err)
	}
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Log(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// recordChannel registers a recorder under a channel unique to t.
func recordChannel(t *testing.T) (string, *recorder) {
	t.Helper()
	name := "test-" + strings.ReplaceAll(t.Name(), "/", "-")
	rec := &recorder{}
	RegisterChannel(name, rec)
	t.Cleanup(func() { UnregisterChannel(name) })
	return name, rec
}
