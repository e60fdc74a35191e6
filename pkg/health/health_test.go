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

package health

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srediag/procpool-shm/pkg/procpool"
)

var _ Probe = (*procpool.Pool[int])(nil)

type fakeProbe struct {
	owner   int
	active  int
	max     int
	segment bool
}

func (f *fakeProbe) OwnerPID() int       { return f.owner }
func (f *fakeProbe) Active() int         { return f.active }
func (f *fakeProbe) MaxRunning() int     { return f.max }
func (f *fakeProbe) SegmentExists() bool { return f.segment }

func status(t *testing.T, h http.Handler, path string) int {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec.Code
}

func TestHealthyPool(t *testing.T) {
	h := NewHandler(&fakeProbe{owner: os.Getpid(), active: 2, max: 2})
	assert.Equal(t, http.StatusOK, status(t, h, "/live"))
	assert.Equal(t, http.StatusOK, status(t, h, "/ready"))
}

func TestOverCapacityIsNotReady(t *testing.T) {
	h := NewHandler(&fakeProbe{owner: os.Getpid(), active: 3, max: 2})
	assert.Equal(t, http.StatusOK, status(t, h, "/live"))
	assert.Equal(t, http.StatusServiceUnavailable, status(t, h, "/ready"))
}

func TestMissingSegment(t *testing.T) {
	p := &fakeProbe{owner: os.Getpid(), max: 1}
	assert.Equal(t, http.StatusOK, status(t, NewHandler(p), "/ready"))

	h := NewHandler(p, WithSegmentRequired())
	assert.Equal(t, http.StatusServiceUnavailable, status(t, h, "/ready"))
	p.segment = true
	assert.Equal(t, http.StatusOK, status(t, h, "/ready"))
}

func TestOwnerAlive(t *testing.T) {
	assert.NoError(t, OwnerAlive(&fakeProbe{owner: os.Getpid()})())
	assert.Error(t, OwnerAlive(&fakeProbe{owner: 0})())
	// pid_max on Linux never exceeds 2^22.
	assert.Error(t, OwnerAlive(&fakeProbe{owner: 1 << 30})())
}

func TestGoroutineThreshold(t *testing.T) {
	h := NewHandler(&fakeProbe{owner: os.Getpid(), max: 1}, WithMaxGoroutines(0))
	assert.Equal(t, http.StatusServiceUnavailable, status(t, h, "/live"))
}

func TestMetricsHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	h := NewHandler(&fakeProbe{owner: os.Getpid(), active: 5, max: 1}, WithRegisterer(reg, "procpool"))
	assert.Equal(t, http.StatusServiceUnavailable, status(t, h, "/ready"))

	families, err := reg.Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "procpool_healthcheck_status")
}
