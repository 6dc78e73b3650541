package config

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

//go:generate go run ../../cmd/schema/main.go schema.json

// Config holds the application configuration
type Config struct {
	Server struct {
		Listen  string        `yaml:"listen" json:"listen" jsonschema:"default=:8080,description=HTTP server listen address"`
		Timeout time.Duration `yaml:"timeout" json:"timeout" jsonschema:"default=30s,description=HTTP server timeout"`
	} `yaml:"server" json:"server" jsonschema:"description=Server configuration"`

	Database struct {
		DSN             string `yaml:"dsn" json:"dsn" jsonschema:"default=file:feedsmith.db?cache=shared&mode=rwc,description=Database connection string"`
		MaxOpenConns    int    `yaml:"max_open_conns" json:"max_open_conns" jsonschema:"default=10,description=Maximum number of open connections"`
		MaxIdleConns    int    `yaml:"max_idle_conns" json:"max_idle_conns" jsonschema:"default=5,description=Maximum number of idle connections"`
		ConnMaxLifetime int    `yaml:"conn_max_lifetime" json:"conn_max_lifetime" jsonschema:"default=3600,description=Connection maximum lifetime in seconds"`
	} `yaml:"database" json:"database" jsonschema:"description=Database configuration"`

	HTTP struct {
		UserAgent string        `yaml:"user_agent" json:"user_agent" jsonschema:"default=Feedsmith/1.0,description=User agent for outbound requests"`
		Timeout   time.Duration `yaml:"timeout" json:"timeout" jsonschema:"default=30s,description=Outbound request timeout"`
	} `yaml:"http" json:"http" jsonschema:"description=Outbound HTTP client configuration"`

	Schedule ScheduleConfig `yaml:"schedule" json:"schedule" jsonschema:"description=Sweep scheduling configuration"`
}

// ScheduleConfig holds the recurring-sweep settings. MaxConcurrent caps
// simultaneous outbound requests process-wide; zero means logical CPU count.
type ScheduleConfig struct {
	EntryInterval  time.Duration `yaml:"entry_interval" json:"entry_interval" jsonschema:"default=1h,description=Interval between entry-fetch sweeps"`
	IconInterval   time.Duration `yaml:"icon_interval" json:"icon_interval" jsonschema:"default=6h,description=Interval between icon-fetch sweeps"`
	IconOffset     time.Duration `yaml:"icon_offset" json:"icon_offset" jsonschema:"default=30m,description=Delay of the first icon sweep after startup"`
	ErrorThreshold int           `yaml:"error_threshold" json:"error_threshold" jsonschema:"default=10,description=Consecutive errors before a feed is skipped by sweeps"`
	MaxConcurrent  int           `yaml:"max_concurrent" json:"max_concurrent" jsonschema:"default=0,description=Maximum concurrent outbound requests (0 = number of CPUs)"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // file path comes from CLI flag
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// expand environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	// validate configuration
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	// verify against embedded schema
	if err := VerifyAgainstEmbeddedSchema(&cfg); err != nil {
		// log warning but don't fail - schema validation is supplementary
		fmt.Printf("warning: schema validation failed: %v\n", err)
	}

	return &cfg, nil
}

// setDefaults fills zero values with defaults
func (c *Config) setDefaults() {
	if c.Server.Listen == "" {
		c.Server.Listen = ":8080"
	}
	if c.Server.Timeout == 0 {
		c.Server.Timeout = 30 * time.Second
	}

	if c.Database.DSN == "" {
		c.Database.DSN = "file:feedsmith.db?cache=shared&mode=rwc&_txlock=immediate"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 10
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = 3600
	}

	if c.HTTP.UserAgent == "" {
		c.HTTP.UserAgent = "Feedsmith/1.0"
	}
	if c.HTTP.Timeout == 0 {
		c.HTTP.Timeout = 30 * time.Second
	}

	if c.Schedule.EntryInterval == 0 {
		c.Schedule.EntryInterval = time.Hour
	}
	if c.Schedule.IconInterval == 0 {
		c.Schedule.IconInterval = 6 * time.Hour
	}
	if c.Schedule.IconOffset == 0 {
		c.Schedule.IconOffset = 30 * time.Minute
	}
	if c.Schedule.ErrorThreshold == 0 {
		c.Schedule.ErrorThreshold = 10
	}
	if c.Schedule.MaxConcurrent == 0 {
		c.Schedule.MaxConcurrent = runtime.NumCPU()
	}
}

// validate checks configuration for correctness
func validate(cfg *Config) error {
	if cfg.Server.Timeout < time.Second {
		return fmt.Errorf("server timeout must be at least 1 second")
	}
	if cfg.HTTP.Timeout < time.Second {
		return fmt.Errorf("http timeout must be at least 1 second")
	}
	if cfg.Schedule.EntryInterval < time.Minute {
		return fmt.Errorf("schedule.entry_interval must be at least 1 minute")
	}
	if cfg.Schedule.IconInterval < time.Minute {
		return fmt.Errorf("schedule.icon_interval must be at least 1 minute")
	}
	if cfg.Schedule.ErrorThreshold < 1 {
		return fmt.Errorf("schedule.error_threshold must be at least 1")
	}
	if cfg.Schedule.MaxConcurrent < 1 {
		return fmt.Errorf("schedule.max_concurrent must be at least 1")
	}
	return nil
}

// GetServerConfig returns server configuration
func (c *Config) GetServerConfig() (listen string, timeout time.Duration) {
	return c.Server.Listen, c.Server.Timeout
}

// GetScheduleConfig returns sweep scheduling configuration
func (c *Config) GetScheduleConfig() ScheduleConfig {
	return c.Schedule
}
