package sink

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/sawpanic/orthofit/internal/atomicio"
)

// CSVSink writes one line per grid row. Each field is one point's
// coefficients separated by spaces.
type CSVSink struct {
	Path string
}

// Name implements Sink.
func (s *CSVSink) Name() string { return "csv" }

// Write implements Sink.
func (s *CSVSink) Write(_ context.Context, res *Result) error {
	return atomicio.WriteFile(s.Path, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		for _, row := range res.Grid.Rows {
			record := make([]string, len(row.Cells))
			for i, cell := range row.Cells {
				record[i] = formatVector(cell.Coefficients)
			}
			if err := cw.Write(record); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	})
}

func formatVector(v []float64) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = strconv.FormatFloat(x, 'g', -1, 64)
	}
	return strings.Join(parts, " ")
}

// Close implements Sink.
func (s *CSVSink) Close() error { return nil }
