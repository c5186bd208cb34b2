// Package config provides unified configuration for the table-provider
// connection adapters.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Engine identifies the embedded database engine to adapt.
type Engine string

const (
	EngineDuckDB Engine = "duckdb"
	EngineSQLite Engine = "sqlite3"
)

// Config holds the configuration for a connection adapter.
type Config struct {
	// Engine is the embedded database engine: duckdb or sqlite3
	Engine Engine `json:"engine" yaml:"engine"`

	// Database is the path to the primary database file (empty for in-memory)
	Database string `json:"database" yaml:"database"`

	// PrimaryCatalog is the catalog identifier of the primary database,
	// used as the first entry of the rewritten search path
	PrimaryCatalog string `json:"primary_catalog" yaml:"primary_catalog"`

	// Attachments is the list of auxiliary database files to attach read-only
	Attachments []string `json:"attachments" yaml:"attachments"`

	// UnsupportedTypePolicy governs schema fields whose types cannot cross
	// into Arrow: fail, warn, or ignore
	UnsupportedTypePolicy string `json:"unsupported_type_policy" yaml:"unsupported_type_policy"`

	// Pool configuration
	Pool PoolConfig `json:"pool" yaml:"pool"`

	// Stream configuration
	Stream StreamConfig `json:"stream" yaml:"stream"`
}

// PoolConfig holds session pool configuration.
type PoolConfig struct {
	// MaxSessions is the maximum number of concurrently open sessions
	MaxSessions int `json:"max_sessions" yaml:"max_sessions"`

	// MaxIdleSessions is the number of idle driver connections kept open
	MaxIdleSessions int `json:"max_idle_sessions" yaml:"max_idle_sessions"`

	// SessionMaxLifetime bounds how long a driver connection is reused
	SessionMaxLifetime time.Duration `json:"session_max_lifetime" yaml:"session_max_lifetime"`

	// MaxConcurrentStreams caps concurrently live streaming workers
	MaxConcurrentStreams int64 `json:"max_concurrent_streams" yaml:"max_concurrent_streams"`
}

// StreamConfig holds streaming-bridge configuration.
type StreamConfig struct {
	// BatchSize is the number of rows per streamed record batch
	BatchSize int `json:"batch_size" yaml:"batch_size"`

	// ChannelCapacity bounds the batch relay channel between the worker
	// and the consumer; small values apply backpressure
	ChannelCapacity int `json:"channel_capacity" yaml:"channel_capacity"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Engine:                EngineDuckDB,
		Database:              "",
		PrimaryCatalog:        "main",
		UnsupportedTypePolicy: "fail",
		Pool: PoolConfig{
			MaxSessions:          10,
			MaxIdleSessions:      2,
			SessionMaxLifetime:   30 * time.Minute,
			MaxConcurrentStreams: 8,
		},
		Stream: StreamConfig{
			BatchSize:       1024,
			ChannelCapacity: 4,
		},
	}
}

// LoadFromFile loads configuration from a YAML or JSON file, merged over
// the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv overrides configuration from environment variables.
// Environment variables use the DTP_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("DTP_ENGINE"); v != "" {
		cfg.Engine = Engine(v)
	}
	if v := os.Getenv("DTP_DATABASE"); v != "" {
		cfg.Database = v
	}
	if v := os.Getenv("DTP_PRIMARY_CATALOG"); v != "" {
		cfg.PrimaryCatalog = v
	}
	if v := os.Getenv("DTP_ATTACHMENTS"); v != "" {
		cfg.Attachments = strings.Split(v, ",")
	}
	if v := os.Getenv("DTP_UNSUPPORTED_TYPE_POLICY"); v != "" {
		cfg.UnsupportedTypePolicy = v
	}
	if v := os.Getenv("DTP_POOL_MAX_SESSIONS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Pool.MaxSessions)
	}
	if v := os.Getenv("DTP_POOL_MAX_CONCURRENT_STREAMS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Pool.MaxConcurrentStreams)
	}
	if v := os.Getenv("DTP_POOL_SESSION_MAX_LIFETIME"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Pool.SessionMaxLifetime = d
		}
	}
	if v := os.Getenv("DTP_STREAM_BATCH_SIZE"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Stream.BatchSize)
	}
	if v := os.Getenv("DTP_STREAM_CHANNEL_CAPACITY"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Stream.ChannelCapacity)
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Engine {
	case EngineDuckDB, EngineSQLite:
		// valid engines
	default:
		return fmt.Errorf("invalid engine: %s (must be duckdb or sqlite3)", c.Engine)
	}

	switch strings.ToLower(c.UnsupportedTypePolicy) {
	case "fail", "error", "warn", "ignore", "silent":
		// valid policies
	default:
		return fmt.Errorf("invalid unsupported_type_policy: %s (must be fail, warn, or ignore)", c.UnsupportedTypePolicy)
	}

	if c.Engine == EngineSQLite && len(c.Attachments) > 0 {
		return fmt.Errorf("attachments are only supported for the duckdb engine")
	}

	if c.PrimaryCatalog == "" {
		return fmt.Errorf("primary_catalog is required")
	}

	if c.Stream.BatchSize < 0 {
		return fmt.Errorf("stream.batch_size must not be negative, got %d", c.Stream.BatchSize)
	}
	if c.Stream.ChannelCapacity < 0 {
		return fmt.Errorf("stream.channel_capacity must not be negative, got %d", c.Stream.ChannelCapacity)
	}

	return nil
}
