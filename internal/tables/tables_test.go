package tables

import (
	"sheltercrawl/internal/components/telemetry"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

const testDocument = `<html><body>
<table>
	<tr><td>Animal #: A12345678</td><td>&nbsp;</td></tr>
	<tr><td></td><td> Printed: 3/15/2016 2:41PM </td></tr>
</table>
<table>
	<tr><td>A12345678</td><td>Buddy</td></tr>
	<tr><td></td><td>Dog</td><td>extra</td></tr>
</table>
</body></html>`

func TestExtract(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(testDocument))
	require.NoError(t, err)

	frames := Extract(doc)
	require.Len(t, frames, 2)

	require.Equal(t, Frame{
		{"Animal #: A12345678", ""},
		{"", "Printed: 3/15/2016 2:41PM"},
	}, frames[0])
	require.Equal(t, Frame{
		{"Animal #: A12345678"},
		{"Printed: 3/15/2016 2:41PM"},
	}, frames[0].Compact())

	require.Equal(t, Frame{
		{"A12345678", "Buddy"},
		{"", "Dog", "extra"},
	}, frames[1])
	require.Equal(t, Shape{Rows: 2, Cols: Jagged}, frames[1].Shape())
}

func TestExtractNested(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`<table>
		<tr><td>outer</td></tr>
		<tr><td><table><tr><td>inner</td></tr></table></td></tr>
	</table>`))
	require.NoError(t, err)

	frames := Extract(doc)
	require.Len(t, frames, 2)
	require.Equal(t, Frame{{"outer"}, {"inner", "inner"}, {"inner"}}, frames[0])
	require.Equal(t, Frame{{"inner"}}, frames[1])
}

func TestShapeValidation(t *testing.T) {
	frame := Frame{
		{"a", "b"},
		{"c", "d"},
		{"e", "f"},
	}
	require.Equal(t, Shape{Rows: 3, Cols: 2}, frame.Shape())

	table := []struct {
		expected Shape
		matches  bool
	}{
		{expected: Shape{Rows: Any, Cols: 2}, matches: true},
		{expected: Shape{Rows: 3, Cols: Any}, matches: true},
		{expected: Shape{Rows: Any, Cols: Any}, matches: true},
		{expected: Shape{Rows: 3, Cols: 2}, matches: true},
		{expected: Shape{Rows: 4, Cols: 2}, matches: false},
		{expected: Shape{Rows: Any, Cols: 3}, matches: false},
	}

	for _, row := range table {
		tel := &telemetry.Recorder{}
		require.Equal(t, row.matches, Validate(tel, "test", frame, row.expected), row.expected.String())

		warnings := tel.Count("warning", report_validate)
		if row.matches {
			require.Equal(t, 0, warnings)
		} else {
			require.Equal(t, 1, warnings)
		}
	}
}

func TestShapeJaggedNeverMatchesConcreteColumns(t *testing.T) {
	jagged := Frame{{"a"}, {"b", "c"}}
	require.True(t, jagged.Shape().Matches(Shape{Rows: 2, Cols: Any}))
	require.False(t, jagged.Shape().Matches(Shape{Rows: 2, Cols: 1}))
	require.Equal(t, Shape{}, Frame{}.Shape())
}
