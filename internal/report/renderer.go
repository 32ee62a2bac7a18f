// Package report draws the anomalies of a batch as a single-table PDF.
package report

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/Roshandass172/bot1/internal/anomaly"
)

// Page geometry in points. Y coordinates are measured from the bottom edge.
const (
	PageWidth  = 612.0
	PageHeight = 792.0

	TitleX        = 200.0
	TitleY        = 770.0
	HeaderY       = 740.0
	FirstRowY     = 720.0
	RowStep       = 20.0
	BottomMargin  = 50.0
	Title         = "Anomalies Report"
	fontFamily    = "Helvetica"
	titleFontSize = 14.0
	bodyFontSize  = 10.0
)

// Column is one table column: its heading and left x offset.
type Column struct {
	Heading string
	X       float64
}

// Columns are drawn left to right in this order.
var Columns = []Column{
	{"Agreement No", 30},
	{"Predicted Valuation", 100},
	{"NET_LOSS", 200},
	{"Difference (%)", 270},
	{"Reason", 340},
}

// Font is a font face and size.
type Font struct {
	Bold bool
	Size float64
}

var (
	titleFont  = Font{Bold: true, Size: titleFontSize}
	headerFont = Font{Bold: true, Size: bodyFontSize}
	bodyFont   = Font{Size: bodyFontSize}
)

// Text is a string placed at a baseline position on a page.
type Text struct {
	X, Y  float64
	Font  Font
	Value string
}

// Page is everything drawn on one page.
type Page struct {
	Texts []Text
}

// Options control rendering.
type Options struct {
	// IDColumn names the input column shown under "Agreement No".
	IDColumn string
	// RepeatHeader redraws the column headings on continuation pages.
	RepeatHeader bool
	Compress     bool
	// CreationDate is stamped into the document when non-zero.
	CreationDate time.Time
}

// DefaultOptions returns the options used by the service.
func DefaultOptions() Options {
	return Options{
		IDColumn:     "agmtno",
		RepeatHeader: true,
		Compress:     true,
	}
}

// Renderer turns a detection result into a PDF document.
type Renderer struct {
	opts Options
}

// NewRenderer returns a renderer using opts.
func NewRenderer(opts Options) *Renderer {
	return &Renderer{opts: opts}
}

// Layout places every string of the report. Render draws exactly these pages.
func (r *Renderer) Layout(res *anomaly.Result) []Page {
	var pages []Page
	cur := Page{Texts: []Text{{X: TitleX, Y: TitleY, Font: titleFont, Value: Title}}}
	cur.Texts = append(cur.Texts, headerRow(HeaderY)...)
	y := FirstRowY

	for _, rec := range res.Anomalies {
		if y < BottomMargin {
			pages = append(pages, cur)
			cur = Page{}
			y = HeaderY
			if r.opts.RepeatHeader {
				cur.Texts = append(cur.Texts, headerRow(y)...)
				y -= RowStep
			}
		}
		cur.Texts = append(cur.Texts, r.recordRow(rec, y)...)
		y -= RowStep
	}
	return append(pages, cur)
}

func headerRow(y float64) []Text {
	out := make([]Text, len(Columns))
	for i, c := range Columns {
		out[i] = Text{X: c.X, Y: y, Font: headerFont, Value: c.Heading}
	}
	return out
}

func (r *Renderer) recordRow(rec anomaly.Record, y float64) []Text {
	values := []string{
		rec.Cells[r.opts.IDColumn],
		Money(rec.PredictedValuation),
		Money(rec.NetLoss),
		Percent(rec.DifferencePct),
		rec.Reason,
	}
	out := make([]Text, len(Columns))
	for i, c := range Columns {
		out[i] = Text{X: c.X, Y: y, Font: bodyFont, Value: values[i]}
	}
	return out
}

// Render writes the PDF for res to w.
func (r *Renderer) Render(w io.Writer, res *anomaly.Result) error {
	if res == nil {
		return &RenderError{Err: errors.New("nil result")}
	}

	pdf := fpdf.New("P", "pt", "Letter", "")
	pdf.SetCompression(r.opts.Compress)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetTitle(Title, false)
	if !r.opts.CreationDate.IsZero() {
		pdf.SetCreationDate(r.opts.CreationDate)
		pdf.SetModificationDate(r.opts.CreationDate)
	}
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	for _, page := range r.Layout(res) {
		pdf.AddPage()
		for _, t := range page.Texts {
			style := ""
			if t.Font.Bold {
				style = "B"
			}
			pdf.SetFont(fontFamily, style, t.Font.Size)
			pdf.Text(t.X, PageHeight-t.Y, tr(t.Value))
		}
	}

	if err := pdf.Output(w); err != nil {
		return &RenderError{Err: err}
	}
	return nil
}

// RenderFile writes the report to path via a temporary file in the same
// directory, so readers never see a partial document.
func (r *Renderer) RenderFile(path string, res *anomaly.Result) error {
	var buf bytes.Buffer
	if err := r.Render(&buf, res); err != nil {
		var re *RenderError
		if errors.As(err, &re) {
			re.Path = path
		}
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".report-*.pdf")
	if err != nil {
		return &RenderError{Path: path, Err: err}
	}
	tmpName := tmp.Name()
	cleanup := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return &RenderError{Path: path, Err: err}
	}

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		return cleanup(err)
	}
	if err := tmp.Sync(); err != nil {
		return cleanup(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return &RenderError{Path: path, Err: err}
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return &RenderError{Path: path, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return &RenderError{Path: path, Err: fmt.Errorf("rename: %w", err)}
	}
	return nil
}
