// Package config loads and validates the boot cache configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/bootcache/bootcache/pkg/types"
)

// Configuration represents the complete cache configuration.
type Configuration struct {
	Engine  EngineConfig  `yaml:"engine"`
	History HistoryConfig `yaml:"history"`
	Paths   PathConfig    `yaml:"paths"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// EngineConfig represents cache engine tuning.
type EngineConfig struct {
	// PrefetchWorkers is the size of the background readahead pool.
	PrefetchWorkers int `yaml:"prefetch_workers"`

	// WaitTimeout bounds how long an interception thread blocks on a
	// partial hit before degrading to a miss.
	WaitTimeout time.Duration `yaml:"wait_timeout"`

	// DrainChunk is the number of history entries moved per chunk when
	// draining the recorder.
	DrainChunk int `yaml:"drain_chunk"`

	// MaxHistoryTransfer is the largest history (in entries) Stop reports
	// as a single transfer; larger histories are reported truncated.
	MaxHistoryTransfer int `yaml:"max_history_transfer"`
}

// HistoryConfig represents history recorder sizing.
type HistoryConfig struct {
	// ClusterEntries is the number of entries per allocated cluster.
	ClusterEntries int `yaml:"cluster_entries"`

	// MaxClusters bounds recorder memory; exhaustion truncates the log.
	MaxClusters int `yaml:"max_clusters"`

	// Compression enables zstd compression of persisted history files.
	Compression bool `yaml:"compression"`
}

// PathConfig represents the well-known file locations.
type PathConfig struct {
	Playlist   string `yaml:"playlist"`
	History    string `yaml:"history"`
	Statistics string `yaml:"statistics"`
}

// MetricsConfig represents prometheus exposition settings.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// LoggingConfig represents logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the default configuration.
func Default() *Configuration {
	return &Configuration{
		Engine: EngineConfig{
			PrefetchWorkers:    4,
			WaitTimeout:        100 * time.Millisecond,
			DrainChunk:         types.DefaultCopyChunk,
			MaxHistoryTransfer: types.MaxPlaylistEntries,
		},
		History: HistoryConfig{
			ClusterEntries: 1024,
			MaxClusters:    512,
			Compression:    true,
		},
		Paths: PathConfig{
			Playlist:   "/var/db/bootcache.playlist",
			History:    "/tmp/bootcache.history",
			Statistics: "/tmp/bootcache.statistics",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "bootcache",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a configuration file, applying defaults for absent fields.
func Load(path string) (*Configuration, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for consistency.
func (c *Configuration) Validate() error {
	if c.Engine.PrefetchWorkers <= 0 {
		return fmt.Errorf("engine.prefetch_workers must be positive, got %d", c.Engine.PrefetchWorkers)
	}
	if c.Engine.WaitTimeout <= 0 {
		return fmt.Errorf("engine.wait_timeout must be positive, got %v", c.Engine.WaitTimeout)
	}
	if c.Engine.DrainChunk <= 0 {
		return fmt.Errorf("engine.drain_chunk must be positive, got %d", c.Engine.DrainChunk)
	}
	if c.Engine.MaxHistoryTransfer <= 0 {
		return fmt.Errorf("engine.max_history_transfer must be positive, got %d", c.Engine.MaxHistoryTransfer)
	}
	if c.History.ClusterEntries <= 0 {
		return fmt.Errorf("history.cluster_entries must be positive, got %d", c.History.ClusterEntries)
	}
	if c.History.MaxClusters <= 0 {
		return fmt.Errorf("history.max_clusters must be positive, got %d", c.History.MaxClusters)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug/info/warn/error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	return nil
}

// Save writes the configuration to a file.
func (c *Configuration) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
