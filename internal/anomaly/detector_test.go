package anomaly

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Roshandass172/bot1/internal/dataset"
	"github.com/Roshandass172/bot1/internal/outlier"
)

// valuationBatch builds a 100 row CSV: 90 rows where NET_LOSS tracks the
// valuation closely and 10 rows with losses far off.
func valuationBatch() string {
	rng := rand.New(rand.NewSource(3))
	var b strings.Builder
	b.WriteString("agmtno,Predicted Valuation,NET_LOSS,STATE,LTV\n")
	for i := 0; i < 90; i++ {
		pv := 10000 + rng.NormFloat64()*400
		loss := pv * (1 + rng.NormFloat64()*0.05)
		fmt.Fprintf(&b, "AG%03d,%.2f,%.2f,Region_A,%d\n", i, pv, loss, 60+i%10)
	}
	for i := 0; i < 10; i++ {
		pv := 10000.0 + float64(i)*150
		loss := pv * (3 + float64(i))
		if i%2 == 1 {
			loss = pv * 0.05 / float64(i)
		}
		fmt.Fprintf(&b, "AG%03d,%.2f,%.2f,Region_X,%d\n", 90+i, pv, loss, 95)
	}
	return b.String()
}

func mustTable(t *testing.T, csv string) *dataset.Table {
	t.Helper()
	tbl, err := dataset.ReadCSV(strings.NewReader(csv))
	require.NoError(t, err)
	return tbl
}

func newDetector(t *testing.T) *Detector {
	t.Helper()
	d, err := NewDetector(outlier.DefaultConfig(), nil)
	require.NoError(t, err)
	return d
}

func TestDetect_FlagsContaminationFraction(t *testing.T) {
	tbl := mustTable(t, valuationBatch())

	res, err := newDetector(t).Detect(context.Background(), tbl)
	require.NoError(t, err)

	assert.Equal(t, 100, res.TotalRows)
	require.NotEmpty(t, res.Anomalies)
	assert.Less(t, len(res.Anomalies), res.TotalRows)
	assert.LessOrEqual(t, len(res.Anomalies), 10)

	prev := -1
	for _, a := range res.Anomalies {
		assert.Greater(t, a.Row, prev, "anomalies keep input order")
		prev = a.Row
		assert.NotEmpty(t, a.Reason)
		assert.Greater(t, a.Score, res.Threshold)
	}
}

func TestDetect_DifferencePercentage(t *testing.T) {
	tbl := mustTable(t, valuationBatch())
	res, err := newDetector(t).Detect(context.Background(), tbl)
	require.NoError(t, err)

	for _, a := range res.Anomalies {
		want := (a.NetLoss - a.PredictedValuation) / a.PredictedValuation * 100
		assert.InDelta(t, want, a.DifferencePct, 1e-9, "row %d", a.Row)
	}
}

func TestDetect_ReasonsUseOptionalColumns(t *testing.T) {
	tbl := mustTable(t, valuationBatch())
	res, err := newDetector(t).Detect(context.Background(), tbl)
	require.NoError(t, err)

	for _, a := range res.Anomalies {
		if a.Cells[ColState] == "Region_X" {
			assert.Contains(t, a.Reason, ReasonHighRiskRegion)
			assert.Contains(t, a.Reason, ReasonHighLTV)
		}
	}
}

func TestDetect_MissingColumns(t *testing.T) {
	tests := []struct {
		name    string
		csv     string
		missing []string
	}{
		{"no loss", "agmtno,Predicted Valuation\nA,1\n", []string{ColNetLoss}},
		{"no valuation", "agmtno,NET_LOSS\nA,1\n", []string{ColPredictedValuation}},
		{"neither", "agmtno,amount\nA,1\n", []string{ColPredictedValuation, ColNetLoss}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newDetector(t).Detect(context.Background(), mustTable(t, tt.csv))
			var se *SchemaError
			require.True(t, errors.As(err, &se), "expected *SchemaError, got %v", err)
			assert.Equal(t, tt.missing, se.Missing)
			for _, col := range tt.missing {
				assert.Contains(t, err.Error(), col)
			}
		})
	}
}

func TestDetect_NonNumericRequiredCell(t *testing.T) {
	csv := "agmtno,Predicted Valuation,NET_LOSS\nA,100,90\nB,abc,90\n"
	_, err := newDetector(t).Detect(context.Background(), mustTable(t, csv))

	var pe *dataset.ParseError
	require.True(t, errors.As(err, &pe), "expected *dataset.ParseError, got %v", err)
	assert.Equal(t, 3, pe.Line)
	assert.Contains(t, err.Error(), ColPredictedValuation)
}

func TestDetect_ZeroValuationIsNotFatal(t *testing.T) {
	var b strings.Builder
	b.WriteString("agmtno,Predicted Valuation,NET_LOSS\n")
	for i := 0; i < 30; i++ {
		fmt.Fprintf(&b, "A%d,%d,%d\n", i, 1000+i, 1000+i*2)
	}
	b.WriteString("Z,0,50000\n")

	res, err := newDetector(t).Detect(context.Background(), mustTable(t, b.String()))
	require.NoError(t, err)

	var zero *Record
	for i := range res.Anomalies {
		if res.Anomalies[i].Cells["agmtno"] == "Z" {
			zero = &res.Anomalies[i]
		}
	}
	require.NotNil(t, zero, "the zero-valuation row with a huge loss should be flagged")
	assert.True(t, math.IsNaN(zero.DifferencePct))
	assert.Equal(t, ReasonUnknown, zero.Reason)
}

func TestDetect_DoesNotMutateInput(t *testing.T) {
	tbl := mustTable(t, valuationBatch())
	before := tbl.Columns()

	_, err := newDetector(t).Detect(context.Background(), tbl)
	require.NoError(t, err)

	assert.Equal(t, before, tbl.Columns())
	assert.False(t, tbl.HasColumn(ColDifferencePct))
}

func TestDetect_EmptyTable(t *testing.T) {
	res, err := newDetector(t).Detect(context.Background(), mustTable(t, "Predicted Valuation,NET_LOSS\n"))
	require.NoError(t, err)
	assert.Empty(t, res.Anomalies)
	assert.Equal(t, 0, res.TotalRows)
}

func TestDetect_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newDetector(t).Detect(ctx, mustTable(t, valuationBatch()))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDetectFile(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.csv")
	require.NoError(t, os.WriteFile(good, []byte(valuationBatch()), 0o644))

	res, err := newDetector(t).DetectFile(context.Background(), good)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Anomalies)

	bad := filepath.Join(dir, "bad.csv")
	require.NoError(t, os.WriteFile(bad, []byte("a,b\n1,2,3\n"), 0o644))
	_, err = newDetector(t).DetectFile(context.Background(), bad)
	var pe *dataset.ParseError
	assert.True(t, errors.As(err, &pe))
}

func TestNewDetector_InvalidConfig(t *testing.T) {
	cfg := outlier.DefaultConfig()
	cfg.Contamination = 0
	_, err := NewDetector(cfg, nil)
	assert.Error(t, err)
}

func TestResult_JSON(t *testing.T) {
	res := &Result{
		Columns:        []string{"agmtno", ColPredictedValuation, ColNetLoss, ColState},
		NumericColumns: map[string]bool{ColPredictedValuation: true, ColNetLoss: true},
		Anomalies: []Record{{
			Cells: map[string]string{
				"agmtno": "A1", ColPredictedValuation: "0", ColNetLoss: "1234.5", ColState: "",
			},
			DifferencePct: math.NaN(),
			Score:         0.71,
			Reason:        ReasonUnknown,
		}},
	}

	data, err := json.Marshal(res)
	require.NoError(t, err)

	var got []map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	require.Len(t, got, 1)
	assert.Equal(t, "A1", got[0]["agmtno"])
	assert.Equal(t, 1234.5, got[0][ColNetLoss])
	assert.Nil(t, got[0][ColState])
	assert.Nil(t, got[0][ColDifferencePct])
	assert.Equal(t, true, got[0][FieldAnomaly])
	assert.Equal(t, ReasonUnknown, got[0][FieldReason])
}

func TestDifferencePct(t *testing.T) {
	assert.InDelta(t, 50.0, DifferencePct(100, 150), 1e-12)
	assert.InDelta(t, -25.0, DifferencePct(200, 150), 1e-12)
	assert.True(t, math.IsNaN(DifferencePct(0, 10)))
	assert.True(t, math.IsNaN(DifferencePct(1e-320, 5000)), "overflow is undefined, not infinite")
}

func TestDetect_TinyValuationEncodes(t *testing.T) {
	var b strings.Builder
	b.WriteString("agmtno,Predicted Valuation,NET_LOSS\n")
	for i := 0; i < 30; i++ {
		fmt.Fprintf(&b, "N%02d,%d,%d\n", i, 5000+i*10, 5000+i*11)
	}
	b.WriteString("TINY,1e-320,5000\n")

	res, err := newDetector(t).Detect(context.Background(), mustTable(t, b.String()))
	require.NoError(t, err)

	var tiny *Record
	for i := range res.Anomalies {
		assert.False(t, math.IsInf(res.Anomalies[i].DifferencePct, 0))
		if res.Anomalies[i].Cells["agmtno"] == "TINY" {
			tiny = &res.Anomalies[i]
		}
	}
	require.NotNil(t, tiny, "the near-zero valuation should be flagged")
	assert.True(t, math.IsNaN(tiny.DifferencePct))

	_, err = json.Marshal(res)
	assert.NoError(t, err)
}

func TestRecord_FieldsNonFinite(t *testing.T) {
	rec := Record{
		Cells:         map[string]string{"agmtno": "A1"},
		DifferencePct: math.Inf(1),
		Score:         math.NaN(),
	}
	fields := rec.Fields(nil)
	assert.Nil(t, fields[ColDifferencePct])
	assert.Nil(t, fields[FieldScore])

	_, err := json.Marshal(fields)
	assert.NoError(t, err)
}
