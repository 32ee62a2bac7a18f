package config

import (
	"net"
	"strconv"
	"time"
)

// DefaultConfig returns a configuration with all default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Host = "0.0.0.0"
	cfg.Server.Port = 5000
	cfg.Server.ReadTimeout = 30 * time.Second
	cfg.Server.WriteTimeout = 120 * time.Second
	cfg.Server.AllowedOrigins = []string{"*"}
	cfg.Server.MaxUploadMB = 32
	cfg.Server.UploadRatePerMinute = 30

	cfg.Storage.UploadDir = "./uploads"
	cfg.Storage.ReportDir = "./pdfs"

	cfg.Detection.Contamination = 0.1
	cfg.Detection.NumTrees = 100
	cfg.Detection.SampleSize = 256
	cfg.Detection.Seed = 42
	cfg.Detection.HighRiskStates = []string{"Region_X"}
	cfg.Detection.IDColumn = "agmtno"

	cfg.Report.Compress = true
	cfg.Report.RepeatHeader = true

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"
	cfg.Logging.File = ""
	cfg.Logging.MaxSizeMB = 100
	cfg.Logging.MaxBackups = 5
	cfg.Logging.MaxAgeDays = 30
	cfg.Logging.Compress = true

	return cfg
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
