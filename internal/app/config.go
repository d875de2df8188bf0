package app

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/raysh454/zapscan/internal/apispec"
	"github.com/raysh454/zapscan/internal/reports"
	"github.com/raysh454/zapscan/internal/webclient"
	"github.com/raysh454/zapscan/internal/zap"
)

// Config is the runtime configuration shared by the service components.
type Config struct {
	ListenAddr string
	LogLevel   string

	// Zap addresses the scanner engine. BaseURL and APIKey are required.
	Zap zap.Config

	Database DatabaseConfig

	// Workers bounds how many scans run at once; QueueSize bounds how many
	// wait behind them.
	Workers   int
	QueueSize int

	// ContainerMode rewrites loopback hosts in submitted URLs to
	// ServiceAlias so the scanner container can reach them.
	ContainerMode bool
	ServiceAlias  string

	SpecFetchAttempts int
	SpecFetchSpacing  time.Duration

	// RecentLimit is how many scans GET /reports/recent returns.
	RecentLimit int

	WebClient webclient.Config
}

type DatabaseConfig struct {
	Driver string
	DSN    string
}

// DefaultConfig returns a Config populated with development defaults.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr: ":3000",
		LogLevel:   "info",
		Zap: zap.Config{
			ContextName: zap.DefaultContextName,
			Polling:     zap.DefaultPollSettings(),
		},
		Database: DatabaseConfig{
			Driver: reports.DriverSQLite,
			DSN:    "zapscan.db",
		},
		Workers:           4,
		QueueSize:         64,
		ServiceAlias:      "host.docker.internal",
		SpecFetchAttempts: apispec.DefaultFetchAttempts,
		SpecFetchSpacing:  apispec.DefaultFetchSpacing,
		RecentLimit:       10,
		WebClient: webclient.Config{
			Timeout:   webclient.DefaultTimeout,
			UserAgent: webclient.DefaultUserAgent,
		},
	}
}

// Validate reports the first missing or out-of-range setting.
func (c *Config) Validate() error {
	switch {
	case c.Zap.BaseURL == "":
		return errors.New("zap api url is required")
	case c.Zap.APIKey == "":
		return errors.New("zap api key is required")
	case c.Workers < 1:
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	case c.QueueSize < 1:
		return fmt.Errorf("queue size must be at least 1, got %d", c.QueueSize)
	case c.Database.DSN == "":
		return errors.New("database dsn is required")
	case c.ContainerMode && c.ServiceAlias == "":
		return errors.New("container mode requires a service alias")
	}
	return nil
}

// FileConfig is the YAML layout of an optional config file. Zero values
// leave the corresponding setting untouched.
type FileConfig struct {
	Listen   string `yaml:"listen"`
	LogLevel string `yaml:"log_level"`
	Zap      struct {
		URL         string `yaml:"url"`
		APIKey      string `yaml:"api_key"`
		ContextName string `yaml:"context_name"`
	} `yaml:"zap"`
	Database struct {
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
	} `yaml:"database"`
	Workers       int    `yaml:"workers"`
	QueueSize     int    `yaml:"queue_size"`
	ContainerMode bool   `yaml:"container_mode"`
	ServiceAlias  string `yaml:"service_alias"`
	RecentLimit   int    `yaml:"recent_limit"`
}

// LoadFile reads a YAML config file and applies it on top of cfg.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	fc.apply(cfg)
	return nil
}

func (fc *FileConfig) apply(cfg *Config) {
	setString(&cfg.ListenAddr, fc.Listen)
	setString(&cfg.LogLevel, fc.LogLevel)
	setString(&cfg.Zap.BaseURL, fc.Zap.URL)
	setString(&cfg.Zap.APIKey, fc.Zap.APIKey)
	setString(&cfg.Zap.ContextName, fc.Zap.ContextName)
	setString(&cfg.Database.Driver, fc.Database.Driver)
	setString(&cfg.Database.DSN, fc.Database.DSN)
	setString(&cfg.ServiceAlias, fc.ServiceAlias)
	setInt(&cfg.Workers, fc.Workers)
	setInt(&cfg.QueueSize, fc.QueueSize)
	setInt(&cfg.RecentLimit, fc.RecentLimit)
	if fc.ContainerMode {
		cfg.ContainerMode = true
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}
