package report

import (
	"math"

	"github.com/shopspring/decimal"
)

// Money formats v as dollars with two decimals: 1234.5 -> "$1234.50".
func Money(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return notAvailable
	}
	d := decimal.NewFromFloat(v)
	if d.IsNegative() {
		return "-$" + d.Neg().StringFixed(2)
	}
	return "$" + d.StringFixed(2)
}

// Percent formats v with two decimals and a percent sign, N/A when undefined.
func Percent(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return notAvailable
	}
	return decimal.NewFromFloat(v).StringFixed(2) + "%"
}

const notAvailable = "N/A"
