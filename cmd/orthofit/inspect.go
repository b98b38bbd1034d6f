package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/sawpanic/orthofit/internal/volume"
)

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show cube file headers or a result summary",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "cube FILE...",
		Short: "Print the dimensions of cube files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return inspectCubes(cmd.OutOrStdout(), args)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "result FILE",
		Short: "Summarize a JSON coefficient file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			summary, err := summarizeResult(args[0])
			if err != nil {
				return err
			}
			summary.render(cmd.OutOrStdout())
			return nil
		},
	})
	return cmd
}

func inspectCubes(w io.Writer, paths []string) error {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"FILE", "T", "ROWS", "COLS", "SIZE"})
	for _, p := range paths {
		h, err := volume.ReadHeader(p)
		if err != nil {
			return err
		}
		info, err := os.Stat(p)
		if err != nil {
			return err
		}
		tw.AppendRow(table.Row{p, h.T, h.Rows, h.Cols, info.Size()})
	}
	tw.Render()
	return nil
}

type coefficientStats struct {
	min, max, sum float64
}

type resultSummary struct {
	path       string
	points     int
	dims       int
	coefs      []coefficientStats
	maxError   float64
	hasError   bool
	degenerate int
}

// resultPoint accepts both layouts of the JSON sink: a bare array or an
// object with coefficients and diagnostics.
type resultPoint struct {
	Coefficients []float64
	Error        *float64
	Degenerate   *int
}

func (p *resultPoint) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '[' {
		return json.Unmarshal(data, &p.Coefficients)
	}
	var obj struct {
		Coefficients []float64 `json:"coefficients"`
		Error        *float64  `json:"error"`
		Degenerate   *int      `json:"degenerate"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	p.Coefficients, p.Error, p.Degenerate = obj.Coefficients, obj.Error, obj.Degenerate
	return nil
}

func summarizeResult(path string) (*resultSummary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc map[string]resultPoint
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	s := &resultSummary{path: path, points: len(doc)}
	for _, p := range doc {
		if len(p.Coefficients) > s.dims {
			for len(s.coefs) < len(p.Coefficients) {
				s.coefs = append(s.coefs, coefficientStats{min: math.Inf(1), max: math.Inf(-1)})
			}
			s.dims = len(p.Coefficients)
		}
		for k, v := range p.Coefficients {
			c := &s.coefs[k]
			c.min = math.Min(c.min, v)
			c.max = math.Max(c.max, v)
			c.sum += v
		}
		if p.Error != nil {
			s.hasError = true
			s.maxError = math.Max(s.maxError, *p.Error)
		}
		if p.Degenerate != nil && *p.Degenerate > 0 {
			s.degenerate++
		}
	}
	return s, nil
}

func (s *resultSummary) render(w io.Writer) {
	fmt.Fprintf(w, "%s: %d points, %d coefficients\n", s.path, s.points, s.dims)
	if s.hasError {
		fmt.Fprintf(w, "max reconstruction error: %.3e\n", s.maxError)
	}
	if s.degenerate > 0 {
		fmt.Fprintf(w, "degenerate points: %d\n", s.degenerate)
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"K", "MIN", "MEAN", "MAX"})
	for k, c := range s.coefs {
		mean := 0.0
		if s.points > 0 {
			mean = c.sum / float64(s.points)
		}
		tw.AppendRow(table.Row{k, fmt.Sprintf("%.6g", c.min), fmt.Sprintf("%.6g", mean), fmt.Sprintf("%.6g", c.max)})
	}
	tw.Render()
}
