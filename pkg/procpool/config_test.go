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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 1, cfg.MaxRunningThreads)
	assert.Equal(t, uint32(0o644), cfg.Permissions)
	assert.Empty(t, cfg.LogChannel)
	assert.False(t, cfg.Verbose)
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, "procpool", cfg.name())
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("PROCPOOL_PROCESS_TITLE", "crawler")
	t.Setenv("PROCPOOL_MAX_RUNNING_THREADS", "4")
	t.Setenv("PROCPOOL_LOG_CHANNEL", "stderr")
	t.Setenv("PROCPOOL_VERBOSE", "true")
	t.Setenv("PROCPOOL_SHM_KEY", "1234")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, Config{
		ProcessTitle:      "crawler",
		MaxRunningThreads: 4,
		LogChannel:        "stderr",
		Verbose:           true,
		SharedMemoryKey:   1234,
		Permissions:       0o644,
	}, cfg)
	assert.Equal(t, "crawler", cfg.name())
}

func TestLoadConfigZeroPermissionsUseDefault(t *testing.T) {
	t.Setenv("PROCPOOL_SHM_PERMISSIONS", "0")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, uint32(0o644), cfg.Permissions)
	assert.Equal(t, uint32(0o644), Config{}.withDefaults().Permissions)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	t.Setenv("PROCPOOL_MAX_RUNNING_THREADS", "0")
	_, err := LoadConfig()
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
process_title = "indexer"
max_running_threads = 3
shm_permissions = 0o600
`), 0o600))

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, "indexer", cfg.ProcessTitle)
	assert.Equal(t, 3, cfg.MaxRunningThreads)
	assert.Equal(t, uint32(0o600), cfg.Permissions)

	t.Setenv("PROCPOOL_MAX_RUNNING_THREADS", "8")
	cfg, err = LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.MaxRunningThreads)
	assert.Equal(t, "indexer", cfg.ProcessTitle)
}

func TestLoadConfigFileErrors(t *testing.T) {
	_, err := LoadConfigFile(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("max_running_threads = ["), 0o600))
	_, err = LoadConfigFile(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"default", DefaultConfig(), true},
		{"zero workers", Config{MaxRunningThreads: 0}, false},
		{"negative workers", Config{MaxRunningThreads: -2}, false},
		{"mode out of range", Config{MaxRunningThreads: 1, Permissions: 0o1777}, false},
		{"owner only", Config{MaxRunningThreads: 2, Permissions: 0o600}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := c.cfg.Validate()
			if c.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			}
		})
	}
}
