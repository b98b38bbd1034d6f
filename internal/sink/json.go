package sink

import (
	"context"

	"github.com/sawpanic/orthofit/internal/atomicio"
)

// JSONSink writes a document keyed by "[row,col]". Values are plain
// coefficient arrays unless IncludeError or IncludeDegenerate is set, in
// which case each value is an object. Non-finite numbers are written as
// null.
type JSONSink struct {
	Path              string
	Indent            int
	IncludeError      bool
	IncludeDegenerate bool
	// RowOrigin is subtracted from every row in the keys. Setting it to the
	// first row of the run keys rows by their ordinal in the run.
	RowOrigin int
}

type jsonPoint struct {
	Coefficients []jsonFloat `json:"coefficients"`
	Error        *jsonFloat  `json:"error,omitempty"`
	Degenerate   *int        `json:"degenerate,omitempty"`
}

// Name implements Sink.
func (s *JSONSink) Name() string { return "json" }

// Write implements Sink.
func (s *JSONSink) Write(_ context.Context, res *Result) error {
	return atomicio.WriteJSON(s.Path, s.document(res), s.Indent)
}

func (s *JSONSink) document(res *Result) map[string]any {
	doc := make(map[string]any, res.Grid.Len())
	for _, row := range res.Grid.Rows {
		for _, cell := range row.Cells {
			key := PointKey(cell.Row-s.RowOrigin, cell.Col)
			if !s.IncludeError && !s.IncludeDegenerate {
				doc[key] = jsonFloats(cell.Coefficients)
				continue
			}
			p := jsonPoint{Coefficients: jsonFloats(cell.Coefficients)}
			if s.IncludeError {
				e := jsonFloat(cell.Error)
				p.Error = &e
			}
			if s.IncludeDegenerate {
				d := cell.Degenerate
				p.Degenerate = &d
			}
			doc[key] = p
		}
	}
	return doc
}

// Close implements Sink.
func (s *JSONSink) Close() error { return nil }
