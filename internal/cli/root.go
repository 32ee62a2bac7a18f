// Package cli implements the anomalyd command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Roshandass172/bot1/internal/config"
)

// Version is set at build time with -ldflags.
var Version = "dev"

type app struct {
	configPath string
	stdout     io.Writer
	stderr     io.Writer
}

// NewRootCommand returns the root command bound to the process streams.
func NewRootCommand() *cobra.Command {
	return NewRootCommandWithIO(os.Stdout, os.Stderr)
}

// NewRootCommandWithIO returns the root command writing to out and errOut.
func NewRootCommandWithIO(out, errOut io.Writer) *cobra.Command {
	a := &app{stdout: out, stderr: errOut}

	cmd := &cobra.Command{
		Use:           "anomalyd",
		Short:         "Valuation anomaly detection service",
		Long:          "anomalyd flags unusual valuation/loss rows in uploaded CSV batches, explains them and renders a PDF report.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       Version,
	}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to a YAML config file")

	cmd.AddCommand(newServeCmd(a), newDetectCmd(a))
	return cmd
}

// loadConfig reads and validates configuration. The manager is returned so
// callers can watch for changes.
func (a *app) loadConfig(ctx context.Context) (config.ConfigManager, *config.Config, error) {
	mgr, err := config.NewConfigManager(a.configPath)
	if err != nil {
		return nil, nil, err
	}
	if err := mgr.Load(ctx); err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if err := mgr.Validate(ctx); err != nil {
		return nil, nil, err
	}
	return mgr, mgr.Get(ctx), nil
}
