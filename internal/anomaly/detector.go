// Package anomaly flags unusual valuation/loss rows in an uploaded batch and
// explains each flagged row with fixed threshold rules.
package anomaly

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/Roshandass172/bot1/internal/dataset"
	"github.com/Roshandass172/bot1/internal/outlier"
)

// Detector fits an Isolation Forest over every batch it is given.
type Detector struct {
	forest     outlier.Config
	classifier *Classifier
}

// NewDetector validates the forest parameters. A nil classifier selects the
// default high-risk regions.
func NewDetector(forest outlier.Config, classifier *Classifier) (*Detector, error) {
	if err := forest.Validate(); err != nil {
		return nil, fmt.Errorf("invalid detector config: %w", err)
	}
	if classifier == nil {
		classifier = defaultClassifier
	}
	return &Detector{forest: forest, classifier: classifier}, nil
}

// DetectFile loads a CSV from disk and runs Detect on it.
func (d *Detector) DetectFile(ctx context.Context, path string) (*Result, error) {
	tbl, err := dataset.LoadCSV(path)
	if err != nil {
		return nil, err
	}
	return d.Detect(ctx, tbl)
}

// Detect returns the anomalous rows of tbl in input order. The table is not
// modified.
//
// Errors: *SchemaError when a required column is missing, *dataset.ParseError
// when a required cell is not a number.
func (d *Detector) Detect(ctx context.Context, tbl *dataset.Table) (*Result, error) {
	var missing []string
	for _, col := range RequiredColumns {
		if !tbl.HasColumn(col) {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, &SchemaError{Missing: missing}
	}

	n := tbl.Len()
	pv := make([]float64, n)
	loss := make([]float64, n)
	diff := make([]float64, n)
	for i := 0; i < n; i++ {
		var err error
		if pv[i], err = requiredNumber(tbl, i, ColPredictedValuation); err != nil {
			return nil, err
		}
		if loss[i], err = requiredNumber(tbl, i, ColNetLoss); err != nil {
			return nil, err
		}
		diff[i] = DifferencePct(pv[i], loss[i])
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fill := median(diff)
	points := make([][]float64, n)
	for i := range points {
		v := diff[i]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			v = fill
		}
		points[i] = []float64{pv[i], loss[i], v}
	}

	pred, err := outlier.FitPredict(d.forest, points)
	if err != nil {
		return nil, fmt.Errorf("fit outlier model: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	columns := tbl.Columns()
	available := NewColumnSet(columns)
	res := &Result{
		Columns:        columns,
		NumericColumns: numericColumns(tbl),
		TotalRows:      n,
		Threshold:      pred.Threshold,
		Anomalies:      make([]Record, 0, pred.Count()),
	}
	for i, flagged := range pred.Anomalous {
		if !flagged {
			continue
		}
		cells := tbl.Row(i)
		res.Anomalies = append(res.Anomalies, Record{
			Row:                i,
			Cells:              cells,
			PredictedValuation: pv[i],
			NetLoss:            loss[i],
			DifferencePct:      diff[i],
			Score:              pred.Scores[i],
			Reason:             d.classifier.Classify(Row{Cells: cells, DifferencePct: diff[i]}, available),
		})
	}
	return res, nil
}

// DifferencePct is (loss - valuation) / valuation * 100, NaN when the
// valuation is zero or the ratio overflows.
func DifferencePct(valuation, loss float64) float64 {
	if valuation == 0 {
		return math.NaN()
	}
	d := (loss - valuation) / valuation * 100
	if math.IsInf(d, 0) {
		return math.NaN()
	}
	return d
}

func requiredNumber(tbl *dataset.Table, row int, col string) (float64, error) {
	v, ok := tbl.Float(row, col)
	if !ok {
		// +2: one for the header, one for 1-based lines.
		return 0, &dataset.ParseError{
			Line: row + 2,
			Err:  fmt.Errorf("column %q: invalid number %q", col, tbl.Value(row, col)),
		}
	}
	return v, nil
}

// numericColumns returns the columns whose non-blank cells all parse as numbers.
func numericColumns(tbl *dataset.Table) map[string]bool {
	out := make(map[string]bool)
	for _, col := range tbl.Columns() {
		seen := false
		numeric := true
		for i := 0; i < tbl.Len() && numeric; i++ {
			raw := tbl.Value(i, col)
			if isBlank(raw) {
				continue
			}
			seen = true
			_, numeric = dataset.ParseNumber(raw)
		}
		if seen && numeric {
			out[col] = true
		}
	}
	return out
}

// median of the finite values, 0 when there are none.
func median(values []float64) float64 {
	finite := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			finite = append(finite, v)
		}
	}
	if len(finite) == 0 {
		return 0
	}
	sort.Float64s(finite)
	mid := len(finite) / 2
	if len(finite)%2 == 1 {
		return finite[mid]
	}
	return (finite[mid-1] + finite[mid]) / 2
}
