package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Roshandass172/bot1/internal/anomaly"
	"github.com/Roshandass172/bot1/internal/server"
)

type detectOutput struct {
	TotalRows int             `json:"total_rows"`
	Anomalies *anomaly.Result `json:"anomalies"`
	PDF       string          `json:"pdf,omitempty"`
}

func newDetectCmd(a *app) *cobra.Command {
	var (
		pdfPath       string
		contamination float64
	)
	cmd := &cobra.Command{
		Use:   "detect <file.csv>",
		Short: "Score a CSV file and print the anomalies as JSON",
		Example: `  anomalyd detect batch.csv
  anomalyd detect batch.csv --pdf anomalies_batch.pdf --contamination 0.05`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, cfg, err := a.loadConfig(ctx)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("contamination") {
				cfg.Detection.Contamination = contamination
				if errs := cfg.Validate(); len(errs) > 0 {
					return errs[0]
				}
			}

			pipeline, err := server.NewPipeline(cfg)
			if err != nil {
				return err
			}
			res, err := pipeline.Detector.DetectFile(ctx, args[0])
			if err != nil {
				return err
			}
			if pdfPath != "" {
				if err := pipeline.Renderer.RenderFile(pdfPath, res); err != nil {
					return err
				}
			}

			enc := json.NewEncoder(a.stdout)
			if isTerminal(a.stdout) {
				enc.SetIndent("", "  ")
			}
			if err := enc.Encode(detectOutput{TotalRows: res.TotalRows, Anomalies: res, PDF: pdfPath}); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&pdfPath, "pdf", "", "also write the PDF report to this path")
	cmd.Flags().Float64Var(&contamination, "contamination", 0.1, "expected fraction of anomalies, in (0, 0.5]")
	return cmd
}

// isTerminal reports whether w is an interactive terminal. Piped output stays
// compact.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
