package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ParseError reports a CSV that could not be read into a table.
type ParseError struct {
	Line int // 1-based file line, 0 when unknown
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse csv: line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("parse csv: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ErrEmpty is returned (wrapped in a ParseError) for input without a header row.
var ErrEmpty = errors.New("file is empty")

const utf8BOM = "\ufeff"

// LoadCSV opens path and reads it with ReadCSV.
func LoadCSV(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()
	return ReadCSV(f)
}

// ReadCSV reads a comma separated file with a header row.
func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &ParseError{Err: ErrEmpty}
		}
		return nil, &ParseError{Line: lineOf(err), Err: err}
	}

	columns := make([]string, len(header))
	seen := make(map[string]bool, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, utf8BOM)
		}
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("Unnamed: %d", i)
		}
		if seen[h] {
			return nil, &ParseError{Line: 1, Err: fmt.Errorf("duplicate column %q", h)}
		}
		seen[h] = true
		columns[i] = h
	}

	var rows [][]string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &ParseError{Line: lineOf(err), Err: err}
		}
		rows = append(rows, rec)
	}
	return NewTable(columns, rows), nil
}

// lineOf extracts the line number encoding/csv attaches to its errors.
func lineOf(err error) int {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return pe.Line
	}
	return 0
}
