package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// viperConfigManager implements ConfigManager using Viper.
type viperConfigManager struct {
	configPath string

	mu        sync.RWMutex
	config    *Config
	viper     *viper.Viper
	watchChan chan Config
}

// Load loads configuration from all sources.
func (m *viperConfigManager) Load(ctx context.Context) error {
	m.viper = viper.New()

	if m.configPath != "" {
		m.viper.SetConfigFile(m.configPath)
		m.viper.SetConfigType("yaml")
	}

	m.viper.SetEnvPrefix("ANOMALYD")
	m.viper.AutomaticEnv()
	m.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	m.setDefaults()

	if err := m.readFile(); err != nil {
		return err
	}
	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}
	return nil
}

// readFile reads the YAML file. A missing file is not an error.
func (m *viperConfigManager) readFile() error {
	if m.configPath == "" {
		return nil
	}
	if err := m.viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("error reading config file: %w", err)
	}
	return nil
}

// Get returns the current configuration.
func (m *viperConfigManager) Get(ctx context.Context) *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// Validate validates configuration is correct and complete.
func (m *viperConfigManager) Validate(ctx context.Context) error {
	errs := m.Get(ctx).Validate()
	if len(errs) > 0 {
		var errMsgs []string
		for _, err := range errs {
			errMsgs = append(errMsgs, err.Error())
		}
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errMsgs, "\n  - "))
	}
	return nil
}

// Watch watches the config file and sends each valid new configuration.
// Changes that fail to parse or validate are dropped. Without a config file
// the channel never receives.
func (m *viperConfigManager) Watch(ctx context.Context) <-chan Config {
	if m.configPath == "" || m.viper == nil {
		return m.watchChan
	}
	m.viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		if err := m.unmarshalConfig(); err != nil {
			return
		}
		cfg := m.Get(ctx)
		if len(cfg.Validate()) > 0 {
			return
		}
		select {
		case m.watchChan <- *cfg:
		default:
			// Channel full, skip this update
		}
	})
	m.viper.WatchConfig()
	return m.watchChan
}

// Reload reloads configuration from sources.
func (m *viperConfigManager) Reload(ctx context.Context) error {
	if m.viper == nil {
		return m.Load(ctx)
	}
	if err := m.readFile(); err != nil {
		return err
	}
	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}
	return nil
}

// setDefaults sets default values in viper.
func (m *viperConfigManager) setDefaults() {
	defaults := DefaultConfig()

	m.viper.SetDefault("server.host", defaults.Server.Host)
	m.viper.SetDefault("server.port", defaults.Server.Port)
	m.viper.SetDefault("server.read_timeout", defaults.Server.ReadTimeout)
	m.viper.SetDefault("server.write_timeout", defaults.Server.WriteTimeout)
	m.viper.SetDefault("server.allowed_origins", defaults.Server.AllowedOrigins)
	m.viper.SetDefault("server.max_upload_mb", defaults.Server.MaxUploadMB)
	m.viper.SetDefault("server.upload_rate_per_minute", defaults.Server.UploadRatePerMinute)
	m.viper.SetDefault("server.trust_proxy_headers", defaults.Server.TrustProxyHeaders)

	m.viper.SetDefault("storage.upload_dir", defaults.Storage.UploadDir)
	m.viper.SetDefault("storage.report_dir", defaults.Storage.ReportDir)

	m.viper.SetDefault("detection.contamination", defaults.Detection.Contamination)
	m.viper.SetDefault("detection.num_trees", defaults.Detection.NumTrees)
	m.viper.SetDefault("detection.sample_size", defaults.Detection.SampleSize)
	m.viper.SetDefault("detection.seed", defaults.Detection.Seed)
	m.viper.SetDefault("detection.high_risk_states", defaults.Detection.HighRiskStates)
	m.viper.SetDefault("detection.id_column", defaults.Detection.IDColumn)

	m.viper.SetDefault("report.compress", defaults.Report.Compress)
	m.viper.SetDefault("report.repeat_header", defaults.Report.RepeatHeader)

	m.viper.SetDefault("logging.level", defaults.Logging.Level)
	m.viper.SetDefault("logging.format", defaults.Logging.Format)
	m.viper.SetDefault("logging.file", defaults.Logging.File)
	m.viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	m.viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	m.viper.SetDefault("logging.max_age_days", defaults.Logging.MaxAgeDays)
	m.viper.SetDefault("logging.compress", defaults.Logging.Compress)
}

// unmarshalConfig unmarshals viper config into Config struct.
func (m *viperConfigManager) unmarshalConfig() error {
	cfg := &Config{}

	cfg.Server.Host = m.viper.GetString("server.host")
	cfg.Server.Port = m.viper.GetInt("server.port")
	cfg.Server.ReadTimeout = m.viper.GetDuration("server.read_timeout")
	cfg.Server.WriteTimeout = m.viper.GetDuration("server.write_timeout")
	cfg.Server.AllowedOrigins = splitList(m.viper.GetStringSlice("server.allowed_origins"))
	cfg.Server.MaxUploadMB = m.viper.GetInt64("server.max_upload_mb")
	cfg.Server.UploadRatePerMinute = m.viper.GetInt("server.upload_rate_per_minute")
	cfg.Server.TrustProxyHeaders = m.viper.GetBool("server.trust_proxy_headers")

	cfg.Storage.UploadDir = m.viper.GetString("storage.upload_dir")
	cfg.Storage.ReportDir = m.viper.GetString("storage.report_dir")

	cfg.Detection.Contamination = m.viper.GetFloat64("detection.contamination")
	cfg.Detection.NumTrees = m.viper.GetInt("detection.num_trees")
	cfg.Detection.SampleSize = m.viper.GetInt("detection.sample_size")
	cfg.Detection.Seed = m.viper.GetInt64("detection.seed")
	cfg.Detection.HighRiskStates = splitList(m.viper.GetStringSlice("detection.high_risk_states"))
	cfg.Detection.IDColumn = m.viper.GetString("detection.id_column")

	cfg.Report.Compress = m.viper.GetBool("report.compress")
	cfg.Report.RepeatHeader = m.viper.GetBool("report.repeat_header")

	cfg.Logging.Level = m.viper.GetString("logging.level")
	cfg.Logging.Format = m.viper.GetString("logging.format")
	cfg.Logging.File = m.viper.GetString("logging.file")
	cfg.Logging.MaxSizeMB = m.viper.GetInt("logging.max_size_mb")
	cfg.Logging.MaxBackups = m.viper.GetInt("logging.max_backups")
	cfg.Logging.MaxAgeDays = m.viper.GetInt("logging.max_age_days")
	cfg.Logging.Compress = m.viper.GetBool("logging.compress")

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return nil
}

// splitList flattens comma separated entries, as environment variables
// arrive as a single string.
func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
