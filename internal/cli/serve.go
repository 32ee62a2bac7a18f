package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Roshandass172/bot1/internal/logging"
	"github.com/Roshandass172/bot1/internal/server"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the upload/download HTTP API.

Endpoints:
  POST /upload                 multipart CSV upload (field "file")
  GET  /download/{filename}    generated PDF reports
  GET  /healthz/live, /healthz/ready
  GET  /metrics                Prometheus metrics

Detection and report settings are reloaded when the config file changes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	mgr, cfg, err := a.loadConfig(ctx)
	if err != nil {
		return err
	}

	logger, closeLog, err := logging.New(logging.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
		Output:     a.stderr,
	})
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()

	srv, err := server.NewServer(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", zap.Error(err))
		return err
	}
	if err := srv.Start(); err != nil {
		return err
	}
	srv.WatchConfig(ctx, mgr)

	<-ctx.Done()
	logger.Info("received shutdown signal")
	return srv.Stop()
}
