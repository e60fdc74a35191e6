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
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"

	"github.com/srediag/procpool-shm/pkg/shm"
)

const (
	// EnvPrefix prefixes every environment variable read by LoadConfig.
	EnvPrefix = "PROCPOOL"

	defaultMaxRunningThreads = 1
	defaultName              = "procpool"
)

// Config holds pool configuration.
type Config struct {
	// ProcessTitle prefixes child process names and labels log events. Children are
	// named "<title>-<owner pid>-<child pid>"; Linux keeps only the first 15 bytes,
	// so a long title hides the pids.
	ProcessTitle string `envconfig:"PROCESS_TITLE" toml:"process_title"`
	// MaxRunningThreads caps the children alive at once.
	MaxRunningThreads int `envconfig:"MAX_RUNNING_THREADS" toml:"max_running_threads"`
	// LogChannel names a channel registered with RegisterChannel. Empty disables logging.
	LogChannel string `envconfig:"LOG_CHANNEL" toml:"log_channel"`
	// Verbose enables info events; errors are always forwarded.
	Verbose bool `envconfig:"VERBOSE" toml:"verbose"`
	// SharedMemoryKey selects the segment. Zero derives shm.DefaultKey.
	SharedMemoryKey int `envconfig:"SHM_KEY" toml:"shm_key"`
	// Permissions are the mode bits of created segments. Zero means shm.DefaultPermissions.
	Permissions uint32 `envconfig:"SHM_PERMISSIONS" toml:"shm_permissions"`
}

// DefaultConfig returns a serial pool with logging disabled.
func DefaultConfig() Config {
	return Config{
		MaxRunningThreads: defaultMaxRunningThreads,
		Permissions:       shm.DefaultPermissions,
	}
}

// LoadConfig returns DefaultConfig overridden by PROCPOOL_* environment variables.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to load config: %w", err)
	}
	cfg = cfg.withDefaults()
	return cfg, cfg.Validate()
}

// LoadConfigFile reads a TOML file over DefaultConfig, then applies environment overrides.
func LoadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to load config: %w", err)
	}
	cfg = cfg.withDefaults()
	return cfg, cfg.Validate()
}

// withDefaults fills fields whose zero value is not usable.
func (c Config) withDefaults() Config {
	if c.Permissions == 0 {
		c.Permissions = shm.DefaultPermissions
	}
	return c
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.MaxRunningThreads < 1 {
		return fmt.Errorf("%w: max running threads must be positive, got %d", ErrInvalidConfig, c.MaxRunningThreads)
	}
	if c.Permissions > 0o777 {
		return fmt.Errorf("%w: permissions %#o out of range", ErrInvalidConfig, c.Permissions)
	}
	return nil
}

func (c Config) name() string {
	if c.ProcessTitle != "" {
		return c.ProcessTitle
	}
	return defaultName
}
