// Package config provides unified configuration for the Recap service.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds the full service configuration. Values are loaded from
// an optional YAML file, then overridden by RECAP_* environment
// variables.
type Config struct {
	// DataDir is the base directory for the report database and any
	// locally archived report documents.
	DataDir string `json:"data_dir" yaml:"data_dir" envconfig:"RECAP_DATA_DIR"`

	// LogLevel is the zerolog level: trace, debug, info, warn, error.
	LogLevel string `json:"log_level" yaml:"log_level" envconfig:"RECAP_LOG_LEVEL"`

	HTTP    HTTPConfig    `json:"http" yaml:"http"`
	Freeze  FreezeConfig  `json:"freeze" yaml:"freeze"`
	Archive ArchiveConfig `json:"archive" yaml:"archive"`
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	// Addr is the listen address for the API server.
	Addr string `json:"addr" yaml:"addr" envconfig:"RECAP_HTTP_ADDR"`

	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout" envconfig:"RECAP_HTTP_READ_TIMEOUT"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout" envconfig:"RECAP_HTTP_WRITE_TIMEOUT"`
	IdleTimeout  time.Duration `json:"idle_timeout" yaml:"idle_timeout" envconfig:"RECAP_HTTP_IDLE_TIMEOUT"`
}

// FreezeConfig controls the periodic freeze daemon. The lifecycle
// engine itself has no scheduler; this daemon is its trigger source.
type FreezeConfig struct {
	// Auto enables the periodic freeze daemon.
	Auto bool `json:"auto" yaml:"auto" envconfig:"RECAP_FREEZE_AUTO"`

	// Interval is the reporting period length when Auto is enabled.
	Interval time.Duration `json:"interval" yaml:"interval" envconfig:"RECAP_FREEZE_INTERVAL"`
}

// ArchiveConfig controls best-effort export of frozen report documents
// to object storage.
type ArchiveConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled" envconfig:"RECAP_ARCHIVE_ENABLED"`

	// Type is the object store backend: local, s3.
	Type string `json:"type" yaml:"type" envconfig:"RECAP_ARCHIVE_TYPE"`

	// Path is the local archive directory (for local type).
	Path string `json:"path" yaml:"path" envconfig:"RECAP_ARCHIVE_PATH"`

	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 archive configuration.
type S3Config struct {
	Bucket   string `json:"bucket" yaml:"bucket" envconfig:"RECAP_S3_BUCKET"`
	Region   string `json:"region" yaml:"region" envconfig:"RECAP_S3_REGION"`
	Endpoint string `json:"endpoint" yaml:"endpoint" envconfig:"RECAP_S3_ENDPOINT"`
}

// DefaultConfig returns the default configuration for local development.
func DefaultConfig() *Config {
	return &Config{
		DataDir:  "./data/recap",
		LogLevel: "info",
		HTTP: HTTPConfig{
			Addr:         ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		Freeze: FreezeConfig{
			Auto:     false,
			Interval: 7 * 24 * time.Hour,
		},
		Archive: ArchiveConfig{
			Enabled: false,
			Type:    "local",
		},
	}
}

// Load builds the effective configuration: defaults, then the YAML
// file at path (if non-empty), then environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: failed to read file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: failed to parse YAML: %w", err)
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("config: failed to apply environment overrides: %w", err)
	}

	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Resolve fills derived paths from DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/recap"
	}
	if c.Archive.Path == "" {
		c.Archive.Path = filepath.Join(c.DataDir, "archive")
	}
}

// DBPath returns the path to the report database.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "recap.db")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("config: data_dir is required")
	}

	if c.HTTP.Addr == "" {
		return fmt.Errorf("config: http.addr is required")
	}

	if c.Freeze.Auto && c.Freeze.Interval < time.Minute {
		return fmt.Errorf("config: freeze.interval must be at least 1m when freeze.auto is set, got %s", c.Freeze.Interval)
	}

	if c.Archive.Enabled {
		switch c.Archive.Type {
		case "local":
		case "s3":
			if c.Archive.S3.Bucket == "" {
				return fmt.Errorf("config: archive.s3.bucket is required when archive type is s3")
			}
		default:
			return fmt.Errorf("config: invalid archive type: %s (must be local or s3)", c.Archive.Type)
		}
	}

	return nil
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.DataDir}
	if c.Archive.Enabled && c.Archive.Type == "local" {
		dirs = append(dirs, c.Archive.Path)
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("config: failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
