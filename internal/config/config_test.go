package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:5000", cfg.Addr())
	assert.Equal(t, int64(32), cfg.Server.MaxUploadMB)
	assert.False(t, cfg.Server.TrustProxyHeaders)

	assert.Equal(t, "./uploads", cfg.Storage.UploadDir)
	assert.Equal(t, "./pdfs", cfg.Storage.ReportDir)

	assert.Equal(t, 0.1, cfg.Detection.Contamination)
	assert.Equal(t, 100, cfg.Detection.NumTrees)
	assert.Equal(t, 256, cfg.Detection.SampleSize)
	assert.Equal(t, int64(42), cfg.Detection.Seed)
	assert.Equal(t, []string{"Region_X"}, cfg.Detection.HighRiskStates)
	assert.Equal(t, "agmtno", cfg.Detection.IDColumn)

	assert.True(t, cfg.Report.Compress)
	assert.True(t, cfg.Report.RepeatHeader)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	assert.Empty(t, cfg.Validate())
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name     string
		modifyFn func(*Config)
		field    string
	}{
		{"port too high", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"port zero", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"negative timeout", func(c *Config) { c.Server.ReadTimeout = -time.Second }, "server.read_timeout"},
		{"upload limit", func(c *Config) { c.Server.MaxUploadMB = 0 }, "server.max_upload_mb"},
		{"negative rate", func(c *Config) { c.Server.UploadRatePerMinute = -1 }, "server.upload_rate_per_minute"},
		{"no upload dir", func(c *Config) { c.Storage.UploadDir = " " }, "storage.upload_dir"},
		{"no report dir", func(c *Config) { c.Storage.ReportDir = "" }, "storage.report_dir"},
		{"zero contamination", func(c *Config) { c.Detection.Contamination = 0 }, "detection.contamination"},
		{"contamination too high", func(c *Config) { c.Detection.Contamination = 0.6 }, "detection.contamination"},
		{"no trees", func(c *Config) { c.Detection.NumTrees = 0 }, "detection.num_trees"},
		{"tiny sample", func(c *Config) { c.Detection.SampleSize = 1 }, "detection.sample_size"},
		{"log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"log format", func(c *Config) { c.Logging.Format = "text" }, "logging.format"},
		{"rotation size", func(c *Config) { c.Logging.File = "x.log"; c.Logging.MaxSizeMB = 0 }, "logging.max_size_mb"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modifyFn(cfg)

			errs := cfg.Validate()
			require.Len(t, errs, 1)
			var ve *ValidationError
			require.True(t, errors.As(errs[0], &ve))
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestConfigManagerLoadFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	configContent := `
server:
  port: 8090
  read_timeout: 5s
  allowed_origins: ["http://localhost:3000"]
storage:
  upload_dir: /data/uploads
detection:
  contamination: 0.05
  high_risk_states: [Region_X, Region_Q]
report:
  repeat_header: false
logging:
  format: console
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0o644))

	mgr, err := NewConfigManager(configPath)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, mgr.Load(ctx))
	require.NoError(t, mgr.Validate(ctx))

	cfg := mgr.Get(ctx)
	assert.Equal(t, 8090, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "/data/uploads", cfg.Storage.UploadDir)
	assert.Equal(t, "./pdfs", cfg.Storage.ReportDir, "unset keys keep defaults")
	assert.Equal(t, 0.05, cfg.Detection.Contamination)
	assert.Equal(t, []string{"Region_X", "Region_Q"}, cfg.Detection.HighRiskStates)
	assert.False(t, cfg.Report.RepeatHeader)
	assert.True(t, cfg.Report.Compress)
	assert.Equal(t, "console", cfg.Logging.Format)
}

func TestConfigManagerEnvironmentOverrides(t *testing.T) {
	t.Setenv("ANOMALYD_SERVER_PORT", "7070")
	t.Setenv("ANOMALYD_DETECTION_CONTAMINATION", "0.2")
	t.Setenv("ANOMALYD_DETECTION_HIGH_RISK_STATES", "TX,FL")
	t.Setenv("ANOMALYD_SERVER_TRUST_PROXY_HEADERS", "true")

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server:\n  port: 8081\n"), 0o644))

	mgr, err := NewConfigManager(configPath)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, mgr.Load(ctx))

	cfg := mgr.Get(ctx)
	assert.Equal(t, 7070, cfg.Server.Port, "environment overrides the file")
	assert.Equal(t, 0.2, cfg.Detection.Contamination)
	assert.True(t, cfg.Server.TrustProxyHeaders)
	assert.Equal(t, []string{"TX", "FL"}, cfg.Detection.HighRiskStates)
}

func TestConfigManagerMissingFile(t *testing.T) {
	mgr, err := NewConfigManager(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, mgr.Load(ctx))
	assert.Equal(t, 5000, mgr.Get(ctx).Server.Port)
}

func TestConfigManagerNoPath(t *testing.T) {
	mgr, err := NewConfigManager("")
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, mgr.Load(ctx))
	require.NoError(t, mgr.Validate(ctx))
	assert.Equal(t, "agmtno", mgr.Get(ctx).Detection.IDColumn)
}

func TestConfigManagerValidation(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	configContent := `
server:
  port: 99999
detection:
  contamination: 0.9
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0o644))

	mgr, err := NewConfigManager(configPath)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, mgr.Load(ctx))

	err = mgr.Validate(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration validation failed")
	assert.Contains(t, err.Error(), "server.port")
	assert.Contains(t, err.Error(), "detection.contamination")
}

func TestConfigManagerMalformedFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server: [unterminated\n"), 0o644))

	mgr, err := NewConfigManager(configPath)
	require.NoError(t, err)
	assert.Error(t, mgr.Load(context.Background()))
}

func TestConfigManagerReload(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("detection:\n  num_trees: 50\n"), 0o644))

	mgr, err := NewConfigManager(configPath)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, mgr.Load(ctx))
	assert.Equal(t, 50, mgr.Get(ctx).Detection.NumTrees)

	require.NoError(t, os.WriteFile(configPath, []byte("detection:\n  num_trees: 75\n"), 0o644))
	require.NoError(t, mgr.Reload(ctx))
	assert.Equal(t, 75, mgr.Get(ctx).Detection.NumTrees)
}
