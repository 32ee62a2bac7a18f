package config

import (
	"context"
	"time"
)

// Package config loads anomalyd settings.
//
// Sources, highest priority first:
//   1. Environment variables (ANOMALYD_* prefix, "." replaced by "_")
//   2. YAML config file (optional)
//   3. Built-in defaults
//
// Sections:
//
//   1. Server     - listen address, timeouts, CORS origins, upload limits
//   2. Storage    - upload and report directories
//   3. Detection  - Isolation Forest parameters and reason settings
//   4. Report     - PDF output options
//   5. Logging    - level, format and optional rotated file
//
// Config holds every setting.
type Config struct {
	Server struct {
		Host         string
		Port         int
		ReadTimeout  time.Duration
		WriteTimeout time.Duration
		// AllowedOrigins is passed to CORS. ["*"] allows any origin.
		AllowedOrigins []string
		MaxUploadMB    int64
		// UploadRatePerMinute limits uploads per client IP. 0 disables the limit.
		UploadRatePerMinute int
		// TrustProxyHeaders keys the upload limit on X-Forwarded-For/X-Real-IP.
		// Enable only behind a reverse proxy that overwrites them.
		TrustProxyHeaders bool
	}

	Storage struct {
		UploadDir string
		ReportDir string
	}

	Detection struct {
		Contamination  float64
		NumTrees       int
		SampleSize     int
		Seed           int64
		HighRiskStates []string
		// IDColumn is the input column shown as the agreement number in reports.
		IDColumn string
	}

	Report struct {
		Compress     bool
		RepeatHeader bool
	}

	Logging struct {
		Level      string
		Format     string
		File       string
		MaxSizeMB  int
		MaxBackups int
		MaxAgeDays int
		Compress   bool
	}
}

// Addr is the host:port the server listens on.
func (c *Config) Addr() string {
	return joinHostPort(c.Server.Host, c.Server.Port)
}

// ConfigManager defines the interface for configuration access.
type ConfigManager interface {
	// Load loads configuration from all sources.
	Load(ctx context.Context) error

	// Get returns the current configuration.
	Get(ctx context.Context) *Config

	// Validate validates configuration is correct and complete.
	Validate(ctx context.Context) error

	// Watch delivers the new configuration each time the file changes.
	Watch(ctx context.Context) <-chan Config

	// Reload re-reads every source.
	Reload(ctx context.Context) error
}

// NewConfigManager creates a manager for the YAML file at configPath. An
// empty path means defaults and environment only.
func NewConfigManager(configPath string) (ConfigManager, error) {
	mgr := &viperConfigManager{
		configPath: configPath,
		config:     DefaultConfig(),
		watchChan:  make(chan Config, 1),
	}
	return mgr, nil
}
