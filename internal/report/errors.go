package report

import "fmt"

// RenderError is returned when a report cannot be produced or written.
type RenderError struct {
	Path string
	Err  error
}

func (e *RenderError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("render report: %v", e.Err)
	}
	return fmt.Sprintf("render report %s: %v", e.Path, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }
