// Package config loads the YAML configuration for a procpool-managed
// pool. Grounded on the teacher's internal/cli.Config struct and its
// loadConfig function, trimmed to the pool's actual surface (no WAL,
// snapshot, or raft sections).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete on-disk configuration for a pool process.
type Config struct {
	Pool struct {
		Size                 int           `yaml:"size"`
		WorkerCommand        []string      `yaml:"worker_command"`
		QueueCapacity        int           `yaml:"queue_capacity"`
		DispatchWriteTimeout time.Duration `yaml:"dispatch_write_timeout"`
		DeathWindow          time.Duration `yaml:"death_window"`
		TerminateGrace       time.Duration `yaml:"terminate_grace"`
	} `yaml:"pool"`

	Metrics struct {
		Enabled bool `yaml:"enabled"`
		Port    int  `yaml:"port"`
	} `yaml:"metrics"`

	RPC struct {
		Enabled bool `yaml:"enabled"`
		Port    int  `yaml:"port"`
	} `yaml:"rpc"`
}

// Load reads and parses a YAML config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}
	cfg.setDefaults()
	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Pool.Size <= 0 {
		c.Pool.Size = 4
	}
	if c.Pool.QueueCapacity <= 0 {
		c.Pool.QueueCapacity = 1024
	}
	if c.Metrics.Port == 0 {
		c.Metrics.Port = 9090
	}
	if c.RPC.Port == 0 {
		c.RPC.Port = 8080
	}
}
