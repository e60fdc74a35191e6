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
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/srediag/procpool-shm/pkg/shm"
)

// Option configures a Pool.
type Option func(*settings)

type settings struct {
	cfg        Config
	registerer prometheus.Registerer
	tracer     trace.Tracer
	meter      metric.Meter
	executable string
	args       []string
	stdout     io.Writer
	stderr     io.Writer
}

func defaultSettings() settings {
	return settings{
		cfg:    DefaultConfig(),
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
}

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(s *settings) { s.cfg = cfg }
}

// WithProcessTitle sets the child name prefix. On Linux the full child name is cut
// to 15 bytes, so keep the title short if the pids should stay visible.
func WithProcessTitle(title string) Option {
	return func(s *settings) { s.cfg.ProcessTitle = title }
}

// WithMaxRunningThreads sets the concurrency ceiling.
func WithMaxRunningThreads(n int) Option {
	return func(s *settings) { s.cfg.MaxRunningThreads = n }
}

// WithLogChannel selects the log channel.
func WithLogChannel(name string) Option {
	return func(s *settings) { s.cfg.LogChannel = name }
}

// WithVerbose enables info events.
func WithVerbose(v bool) Option {
	return func(s *settings) { s.cfg.Verbose = v }
}

// WithSharedMemoryKey attaches the pool to an explicit segment key.
func WithSharedMemoryKey(key shm.Key) Option {
	return func(s *settings) { s.cfg.SharedMemoryKey = int(key) }
}

// WithPermissions sets the mode bits of created segments.
func WithPermissions(mode uint32) Option {
	return func(s *settings) { s.cfg.Permissions = mode }
}

// WithRegisterer registers the pool metrics on r.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(s *settings) { s.registerer = r }
}

// WithTracer records spans for runs and shared memory operations.
func WithTracer(t trace.Tracer) Option {
	return func(s *settings) { s.tracer = t }
}

// WithMeter records shared memory counters.
func WithMeter(m metric.Meter) Option {
	return func(s *settings) { s.meter = m }
}

// WithExecutable overrides the binary re-executed for children. It must call Init
// before doing anything else.
func WithExecutable(path string, args ...string) Option {
	return func(s *settings) {
		s.executable = path
		s.args = args
	}
}

// WithChildOutput redirects children's stdout and stderr.
func WithChildOutput(stdout, stderr io.Writer) Option {
	return func(s *settings) {
		s.stdout = stdout
		s.stderr = stderr
	}
}

func (s settings) slotOptions() []shm.Option {
	opts := []shm.Option{shm.WithPermissions(s.cfg.Permissions)}
	if s.meter != nil {
		opts = append(opts, shm.WithMeter(s.meter))
	}
	if s.tracer != nil {
		opts = append(opts, shm.WithTracer(s.tracer))
	}
	return opts
}
