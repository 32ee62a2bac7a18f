// Package dataset loads uploaded CSV files into an immutable in-memory table.
//
// The table keeps every cell as the raw string read from the file. Numeric
// interpretation happens on access so optional columns with blanks or free
// text never fail a load.
package dataset

import (
	"math"
	"strconv"
	"strings"
)

// Table is a header plus rows of raw string cells.
type Table struct {
	columns []string
	index   map[string]int
	rows    [][]string
}

// NewTable builds a table from a header and rows. Rows are not copied.
func NewTable(columns []string, rows [][]string) *Table {
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		index[c] = i
	}
	return &Table{columns: columns, index: index, rows: rows}
}

// Columns returns a copy of the header in file order.
func (t *Table) Columns() []string {
	out := make([]string, len(t.columns))
	copy(out, t.columns)
	return out
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// HasColumn reports whether the header contains name.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Value returns the raw cell, or "" when the column does not exist.
func (t *Table) Value(row int, col string) string {
	i, ok := t.index[col]
	if !ok || i >= len(t.rows[row]) {
		return ""
	}
	return t.rows[row][i]
}

// Float parses the cell as a number. It returns false for missing columns,
// blank cells and text that is not a number.
func (t *Table) Float(row int, col string) (float64, bool) {
	return ParseNumber(t.Value(row, col))
}

// Row returns the cells of row i keyed by column name.
func (t *Table) Row(i int) map[string]string {
	out := make(map[string]string, len(t.columns))
	for j, c := range t.columns {
		if j < len(t.rows[i]) {
			out[c] = t.rows[i][j]
		}
	}
	return out
}

// ParseNumber parses numeric cells the way spreadsheet exports write them:
// surrounding spaces, a leading currency sign and thousands separators are
// tolerated.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	s = strings.TrimPrefix(s, "$")
	// Only one sign is allowed.
	if neg && (strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+")) {
		return 0, false
	}
	s = strings.ReplaceAll(s, ",", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	if neg {
		v = -v
	}
	return v, true
}
