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

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	started      prometheus.Counter
	finished     *prometheus.CounterVec
	forkFailures prometheus.Counter
	active       prometheus.Gauge
	runDuration  prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer, pool string) *metrics {
	labels := prometheus.Labels{"pool": pool}
	m := &metrics{
		started: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "procpool_children_started_total",
			Help:        "Total number of child processes started.",
			ConstLabels: labels,
		}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "procpool_children_finished_total",
			Help:        "Total number of child processes reaped, by exit status class.",
			ConstLabels: labels,
		}, []string{"status"}),
		forkFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "procpool_fork_failures_total",
			Help:        "Total number of child processes that could not be started.",
			ConstLabels: labels,
		}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "procpool_active_children",
			Help:        "Child processes started and not yet reaped.",
			ConstLabels: labels,
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "procpool_run_duration_seconds",
			Help:        "Duration of Each runs.",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
	}
	if reg == nil {
		return m
	}
	m.started = register(reg, m.started).(prometheus.Counter)
	m.finished = register(reg, m.finished).(*prometheus.CounterVec)
	m.forkFailures = register(reg, m.forkFailures).(prometheus.Counter)
	m.active = register(reg, m.active).(prometheus.Gauge)
	m.runDuration = register(reg, m.runDuration).(prometheus.Histogram)
	return m
}

// register returns the already registered collector when pools share a name.
func register(reg prometheus.Registerer, c prometheus.Collector) prometheus.Collector {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return are.ExistingCollector
		}
		internalLogger.warnf("metrics register failed: %v", err)
	}
	return c
}

func (m *metrics) childFinished(status int) {
	class := "success"
	if status != 0 {
		class = "failure"
	}
	m.finished.WithLabelValues(class).Inc()
	m.active.Dec()
}
