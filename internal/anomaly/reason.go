package anomaly

import (
	"strings"

	"github.com/Roshandass172/bot1/internal/dataset"
)

// Column names the rules read.
const (
	ColPredictedValuation = "Predicted Valuation"
	ColNetLoss            = "NET_LOSS"
	ColDifferencePct      = "Difference (%)"
	ColAssetCost          = "ASSET_COST"
	ColLTV                = "LTV"
	ColLoanAmount         = "LOAN_AMOUNT"
	ColState              = "STATE"
	ColDaysInYard         = "DAYS_IN_YARD"
	ColPreviousOwnerCount = "PREVIOUS_OWNER_COUNT"
	ColOdometerReading    = "ODOMETER_READING"
)

// Reason sentences, in rule order.
const (
	ReasonLossExceedsValuation = "NET_LOSS significantly exceeds Predicted Valuation"
	ReasonValuationTooHigh     = "Predicted Valuation is too high compared to NET_LOSS"
	ReasonDepreciated          = "Asset has depreciated significantly"
	ReasonHighLTV              = "High Loan-to-Value ratio, indicating risky lending"
	ReasonHighLossToLoan       = "High loss compared to loan amount"
	ReasonHighRiskRegion       = "Region has high-risk transactions"
	ReasonYardTime             = "Prolonged yard time may have led to depreciation"
	ReasonPreviousOwners       = "Multiple previous owners reduce valuation"
	ReasonHighMileage          = "High mileage may have reduced valuation"

	// ReasonUnknown is returned when no rule matches.
	ReasonUnknown = "Unknown cause"
)

// DefaultHighRiskStates lists the STATE codes treated as high-risk regions.
var DefaultHighRiskStates = []string{"Region_X"}

// Row is the input to the classifier: the raw cells of one CSV record plus
// its derived difference percentage (NaN when undefined).
type Row struct {
	Cells         map[string]string
	DifferencePct float64
}

func (r Row) number(col string) (float64, bool) {
	return dataset.ParseNumber(r.Cells[col])
}

// ColumnSet is the set of columns present in the uploaded file.
type ColumnSet map[string]bool

// NewColumnSet builds a ColumnSet from a header.
func NewColumnSet(columns []string) ColumnSet {
	set := make(ColumnSet, len(columns))
	for _, c := range columns {
		set[c] = true
	}
	return set
}

// Classifier explains why a row may be anomalous.
type Classifier struct {
	highRisk map[string]bool
}

// NewClassifier returns a classifier treating the given STATE codes as
// high-risk. A nil slice selects DefaultHighRiskStates.
func NewClassifier(highRiskStates []string) *Classifier {
	if highRiskStates == nil {
		highRiskStates = DefaultHighRiskStates
	}
	c := &Classifier{highRisk: make(map[string]bool, len(highRiskStates))}
	for _, s := range highRiskStates {
		if s = strings.TrimSpace(s); s != "" {
			c.highRisk[s] = true
		}
	}
	return c
}

var defaultClassifier = NewClassifier(nil)

// Classify explains row with the default high-risk regions.
func Classify(row Row, available ColumnSet) string {
	return defaultClassifier.Classify(row, available)
}

// rule appends at most one sentence. requires names the column that must be
// present in the file for the rule to be evaluated.
type rule struct {
	requires string
	eval     func(c *Classifier, r Row) string
}

// rules is evaluated in order. NaN and unparseable cells fail every comparison.
var rules = []rule{
	{requires: "", eval: func(_ *Classifier, r Row) string {
		switch {
		case r.DifferencePct > 50:
			return ReasonLossExceedsValuation
		case r.DifferencePct < -20:
			return ReasonValuationTooHigh
		}
		return ""
	}},
	{requires: ColAssetCost, eval: func(_ *Classifier, r Row) string {
		cost, ok := r.number(ColAssetCost)
		pv, pvOK := r.number(ColPredictedValuation)
		if ok && pvOK && cost > 0 && pv < cost*0.5 {
			return ReasonDepreciated
		}
		return ""
	}},
	{requires: ColLTV, eval: func(_ *Classifier, r Row) string {
		if v, ok := r.number(ColLTV); ok && v > 80 {
			return ReasonHighLTV
		}
		return ""
	}},
	{requires: ColLoanAmount, eval: func(_ *Classifier, r Row) string {
		loan, ok := r.number(ColLoanAmount)
		loss, lossOK := r.number(ColNetLoss)
		if ok && lossOK && loan > 0 && loss > loan*0.8 {
			return ReasonHighLossToLoan
		}
		return ""
	}},
	{requires: ColState, eval: func(c *Classifier, r Row) string {
		if c.highRisk[strings.TrimSpace(r.Cells[ColState])] {
			return ReasonHighRiskRegion
		}
		return ""
	}},
	{requires: ColDaysInYard, eval: func(_ *Classifier, r Row) string {
		if v, ok := r.number(ColDaysInYard); ok && v > 90 {
			return ReasonYardTime
		}
		return ""
	}},
	{requires: ColPreviousOwnerCount, eval: func(_ *Classifier, r Row) string {
		if v, ok := r.number(ColPreviousOwnerCount); ok && v > 2 {
			return ReasonPreviousOwners
		}
		return ""
	}},
	{requires: ColOdometerReading, eval: func(_ *Classifier, r Row) string {
		if v, ok := r.number(ColOdometerReading); ok && v > 200000 {
			return ReasonHighMileage
		}
		return ""
	}},
}

// Classify returns the matching rule sentences joined with "; ", or
// ReasonUnknown when none match.
func (c *Classifier) Classify(row Row, available ColumnSet) string {
	var reasons []string
	for _, r := range rules {
		if r.requires != "" && !available[r.requires] {
			continue
		}
		if s := r.eval(c, row); s != "" {
			reasons = append(reasons, s)
		}
	}
	if len(reasons) == 0 {
		return ReasonUnknown
	}
	return strings.Join(reasons, "; ")
}
