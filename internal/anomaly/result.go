package anomaly

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/Roshandass172/bot1/internal/dataset"
)

// JSON keys added to every anomaly record.
const (
	FieldAnomaly = "anomaly"
	FieldScore   = "anomaly_score"
	FieldReason  = "reason"
)

// Result is the anomalous subset of one batch.
type Result struct {
	// Columns is the input header in file order.
	Columns []string
	// NumericColumns holds the columns emitted as JSON numbers.
	NumericColumns map[string]bool
	TotalRows      int
	// Threshold is the model score above which rows were flagged.
	Threshold float64
	Anomalies []Record
}

// Record is one flagged row. Cells are the original values; the remaining
// fields are derived.
type Record struct {
	Row                int // zero-based data row in the input
	Cells              map[string]string
	PredictedValuation float64
	NetLoss            float64
	DifferencePct      float64 // NaN when undefined
	Score              float64
	Reason             string
}

// Fields returns the record as a column→value mapping. Numeric columns become
// float64, blank cells and non-finite numbers become nil.
func (r Record) Fields(numeric map[string]bool) map[string]any {
	out := make(map[string]any, len(r.Cells)+4)
	for col, raw := range r.Cells {
		switch {
		case isBlank(raw):
			out[col] = nil
		case numeric[col]:
			v, _ := dataset.ParseNumber(raw)
			out[col] = v
		default:
			out[col] = raw
		}
	}
	out[ColDifferencePct] = finiteOrNil(r.DifferencePct)
	out[FieldAnomaly] = true
	out[FieldScore] = finiteOrNil(r.Score)
	out[FieldReason] = r.Reason
	return out
}

// finiteOrNil maps NaN and ±Inf to nil; JSON has no encoding for them.
func finiteOrNil(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

// Records returns every anomaly as a field mapping, ready for encoding.
func (res *Result) Records() []map[string]any {
	out := make([]map[string]any, len(res.Anomalies))
	for i, a := range res.Anomalies {
		out[i] = a.Fields(res.NumericColumns)
	}
	return out
}

// MarshalJSON encodes the result as its list of records.
func (res *Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(res.Records())
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
