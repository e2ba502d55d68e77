// Package tables turns html tables into frames, plain grids of cell text.
package tables

import (
	"fmt"
	"sheltercrawl/internal/components/telemetry"
	"sheltercrawl/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

const report_validate = "tables.validate"

// Row is the ordered text of a table row's cells.
type Row []string

// Frame is the text grid of a single table, rows are allowed to differ in length.
type Frame []Row

// Extract converts every table element in `doc` into a Frame, in document order.
//
// Nested tables produce their own frame and their rows also show up inside every frame
// of an enclosing table, the report markup relies on this.
func Extract(doc *goquery.Document) []Frame {
	var frames []Frame
	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		frames = append(frames, FromTable(table))
	})
	return frames
}

// FromTable converts a single table element into a Frame.
func FromTable(table *goquery.Selection) Frame {
	frame := Frame{}
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		row := Row{}
		tr.Find("td").Each(func(_ int, td *goquery.Selection) {
			row = append(row, htmlutil.CellText(td.Get(0)))
		})
		frame = append(frame, row)
	})
	return frame
}

// Compact returns a copy of the frame with empty cells removed from every row, for tables
// where a cell's position carries no meaning.
func (f Frame) Compact() Frame {
	out := make(Frame, len(f))
	for i, row := range f {
		compacted := Row{}
		for _, cell := range row {
			if cell != "" {
				compacted = append(compacted, cell)
			}
		}
		out[i] = compacted
	}
	return out
}

const (
	// Any matches any size in a Shape dimension.
	Any = -1
	// Jagged is the column count reported for frames whose rows differ in length.
	Jagged = -2
)

// Shape is (rows, columns).
type Shape struct {
	Rows int
	Cols int
}

func (s Shape) String() string {
	dim := func(n int) string {
		switch n {
		case Any:
			return "*"
		case Jagged:
			return "jagged"
		}
		return fmt.Sprint(n)
	}
	return fmt.Sprintf("(%s, %s)", dim(s.Rows), dim(s.Cols))
}

// Shape reports the frame's dimensions, an empty frame has zero columns.
func (f Frame) Shape() Shape {
	if len(f) == 0 {
		return Shape{Rows: 0, Cols: 0}
	}
	cols := len(f[0])
	for _, row := range f[1:] {
		if len(row) != cols {
			return Shape{Rows: len(f), Cols: Jagged}
		}
	}
	return Shape{Rows: len(f), Cols: cols}
}

// Matches compares only the concrete dimensions of `expected`.
func (s Shape) Matches(expected Shape) bool {
	if expected.Rows != Any && expected.Rows != s.Rows {
		return false
	}
	if expected.Cols != Any && expected.Cols != s.Cols {
		return false
	}
	return true
}

// Validate checks `frame` against `expected`. A mismatch is reported as a warning and
// false is returned, callers keep extracting with whatever the frame holds.
func Validate(tel telemetry.API, name string, frame Frame, expected Shape) bool {
	actual := frame.Shape()
	if actual.Matches(expected) {
		return true
	}
	tel.ReportWarning(
		report_validate,
		fmt.Errorf("%s: shape %s, expected %s", name, actual, expected),
		frame.String(),
	)
	return false
}

// String renders the frame one row per line, used in logs.
func (f Frame) String() string {
	out := ""
	for i, row := range f {
		out += fmt.Sprintf("%d: %q\n", i, []string(row))
	}
	return out
}
