package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

var (
	validLogLevels  = []string{"debug", "info", "warn", "error"}
	validLogFormats = []string{"json", "console"}
)

// Validate validates the configuration and returns validation errors.
func (c *Config) Validate() []error {
	var errs []error
	add := func(field, format string, args ...any) {
		errs = append(errs, &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		add("server.port", "port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.ReadTimeout < 0 {
		add("server.read_timeout", "must not be negative, got %s", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout < 0 {
		add("server.write_timeout", "must not be negative, got %s", c.Server.WriteTimeout)
	}
	if c.Server.MaxUploadMB < 1 {
		add("server.max_upload_mb", "must be at least 1, got %d", c.Server.MaxUploadMB)
	}
	if c.Server.UploadRatePerMinute < 0 {
		add("server.upload_rate_per_minute", "must not be negative, got %d", c.Server.UploadRatePerMinute)
	}

	if strings.TrimSpace(c.Storage.UploadDir) == "" {
		add("storage.upload_dir", "upload directory is required")
	}
	if strings.TrimSpace(c.Storage.ReportDir) == "" {
		add("storage.report_dir", "report directory is required")
	}

	if c.Detection.Contamination <= 0 || c.Detection.Contamination > 0.5 {
		add("detection.contamination", "must be in (0, 0.5], got %g", c.Detection.Contamination)
	}
	if c.Detection.NumTrees < 1 {
		add("detection.num_trees", "must be at least 1, got %d", c.Detection.NumTrees)
	}
	if c.Detection.SampleSize < 2 {
		add("detection.sample_size", "must be at least 2, got %d", c.Detection.SampleSize)
	}

	if !contains(validLogLevels, c.Logging.Level) {
		add("logging.level", "must be one of %s, got %q", strings.Join(validLogLevels, ", "), c.Logging.Level)
	}
	if !contains(validLogFormats, c.Logging.Format) {
		add("logging.format", "must be one of %s, got %q", strings.Join(validLogFormats, ", "), c.Logging.Format)
	}
	if c.Logging.File != "" && c.Logging.MaxSizeMB < 1 {
		add("logging.max_size_mb", "must be at least 1 when logging.file is set, got %d", c.Logging.MaxSizeMB)
	}

	return errs
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
