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

// Package health exposes liveness and readiness endpoints for a process pool.
package health

import (
	"errors"
	"fmt"

	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v3/process"
)

// DefaultMaxGoroutines is the goroutine ceiling of the liveness check.
const DefaultMaxGoroutines = 10000

// Probe is the view of a pool the checks need. *procpool.Pool satisfies it.
type Probe interface {
	OwnerPID() int
	Active() int
	MaxRunning() int
	SegmentExists() bool
}

// Option configures NewHandler.
type Option func(*options)

type options struct {
	maxGoroutines   int
	requireSegment  bool
	registerer      prometheus.Registerer
	metricNamespace string
}

// WithMaxGoroutines overrides DefaultMaxGoroutines.
func WithMaxGoroutines(n int) Option {
	return func(o *options) { o.maxGoroutines = n }
}

// WithSegmentRequired makes readiness fail while the shared segment is absent.
func WithSegmentRequired() Option {
	return func(o *options) { o.requireSegment = true }
}

// WithRegisterer also exports check results as prometheus gauges under namespace.
func WithRegisterer(r prometheus.Registerer, namespace string) Option {
	return func(o *options) {
		o.registerer = r
		o.metricNamespace = namespace
	}
}

// NewHandler returns an http.Handler serving /live and /ready for p.
func NewHandler(p Probe, opts ...Option) healthcheck.Handler {
	o := options{maxGoroutines: DefaultMaxGoroutines}
	for _, opt := range opts {
		opt(&o)
	}

	var h healthcheck.Handler
	if o.registerer != nil {
		h = healthcheck.NewMetricsHandler(o.registerer, o.metricNamespace)
	} else {
		h = healthcheck.NewHandler()
	}

	h.AddLivenessCheck("owner-process", OwnerAlive(p))
	h.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(o.maxGoroutines))
	h.AddReadinessCheck("admission-gate", WithinCapacity(p))
	if o.requireSegment {
		h.AddReadinessCheck("shared-segment", SegmentPresent(p))
	}
	return h
}

// OwnerAlive fails when the process that owns the shared segment is gone.
func OwnerAlive(p Probe) healthcheck.Check {
	return func() error {
		pid := p.OwnerPID()
		if pid <= 0 {
			return errors.New("owner pid unknown")
		}
		ok, err := process.PidExists(int32(pid))
		if err != nil {
			return fmt.Errorf("owner pid %d: %w", pid, err)
		}
		if !ok {
			return fmt.Errorf("owner pid %d is not running", pid)
		}
		return nil
	}
}

// WithinCapacity fails when more children are running than the pool allows.
func WithinCapacity(p Probe) healthcheck.Check {
	return func() error {
		active, max := p.Active(), p.MaxRunning()
		if active > max {
			return fmt.Errorf("%d children running, limit %d", active, max)
		}
		return nil
	}
}

// SegmentPresent fails while the shared segment does not exist.
func SegmentPresent(p Probe) healthcheck.Check {
	return func() error {
		if !p.SegmentExists() {
			return errors.New("shared segment missing")
		}
		return nil
	}
}
