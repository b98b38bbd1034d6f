// Package sweep runs the approximation engine over every point of a loaded
// batch. Rows are the unit of parallel work: a fixed pool of workers takes
// row indices from a channel and sweeps the columns of each row in order.
package sweep

import (
	"errors"
	"runtime"
	"sync"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"

	"github.com/sawpanic/orthofit/internal/approx"
	"github.com/sawpanic/orthofit/internal/volume"
)

// Approximator computes the coefficients of one signal. *approx.Engine
// implements it.
type Approximator interface {
	Approximate(x []float64, basis mat.Matrix) (approx.Result, error)
}

// Options controls a sweep.
type Options struct {
	// Workers is the number of concurrent row units; <= 0 means NumCPU.
	Workers int
	// Columns limits the sweep to columns [0, Columns); <= 0 means all.
	Columns int
}

// Cell is the result for one grid point. Row and Col are absolute grid
// coordinates.
type Cell struct {
	Row          int       `json:"row"`
	Col          int       `json:"col"`
	Coefficients []float64 `json:"coefficients"`
	Error        float64   `json:"error"`
	Degenerate   int       `json:"degenerate"`
}

// Row holds the computed cells of one grid row in column order. Skipped
// points have no cell.
type Row struct {
	Index int
	Cells []Cell
}

// Grid is an ordered set of rows.
type Grid struct {
	Rows []Row
}

// Len returns the number of cells in the grid.
func (g *Grid) Len() int {
	n := 0
	for _, r := range g.Rows {
		n += len(r.Cells)
	}
	return n
}

// Append adds the rows of other after the rows of g.
func (g *Grid) Append(other *Grid) {
	g.Rows = append(g.Rows, other.Rows...)
}

// Stats counts what happened during a sweep.
type Stats struct {
	Points               int `json:"points"`
	Skipped              int `json:"skipped"`
	DegenerateDirections int `json:"degenerate_directions"`
	DegeneratePoints     int `json:"degenerate_points"`
}

// Add accumulates o into s.
func (s *Stats) Add(o Stats) {
	s.Points += o.Points
	s.Skipped += o.Skipped
	s.DegenerateDirections += o.DegenerateDirections
	s.DegeneratePoints += o.DegeneratePoints
}

// Run approximates every point of the batch. The batch is shared read-only
// by all workers; each row unit writes only its own result slot, so the grid
// comes back in batch row order whatever order the units finish in.
func Run(batch *volume.Batch, engine Approximator, opts Options) (*Grid, Stats) {
	rows := batch.Rows()
	cols := batch.Cols()
	if opts.Columns > 0 && opts.Columns < cols {
		cols = opts.Columns
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > rows {
		workers = rows
	}

	results := make([]Row, rows)
	stats := make([]Stats, rows)

	queue := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := range queue {
				results[r], stats[r] = sweepRow(batch, engine, r, cols)
			}
		}()
	}
	for r := 0; r < rows; r++ {
		queue <- r
	}
	close(queue)
	wg.Wait()

	var total Stats
	for _, s := range stats {
		total.Add(s)
	}
	return &Grid{Rows: results}, total
}

// sweepRow runs one row unit. Scratch buffers are private to the unit and
// reused across its columns; the engine copies what it keeps.
func sweepRow(batch *volume.Batch, engine Approximator, r, cols int) (Row, Stats) {
	row := Row{Index: batch.YStart + r}
	var stats Stats

	signal := batch.Signal
	x := make([]float64, signal.T)

	n := len(batch.Basis)
	basisT := 0
	uniform := n > 0
	if uniform {
		basisT = batch.Basis[0].T
		for _, c := range batch.Basis[1:] {
			if c.T != basisT {
				uniform = false
				break
			}
		}
	}
	if !uniform || basisT == 0 {
		stats.Skipped = cols
		return row, stats
	}
	basis := mat.NewDense(n, basisT, nil)

	row.Cells = make([]Cell, 0, cols)
	for c := 0; c < cols; c++ {
		signal.Series(r, c, x)
		for k, field := range batch.Basis {
			field.Series(r, c, basis.RawRowView(k))
		}

		res, err := engine.Approximate(x, basis)
		if err != nil {
			if !errors.Is(err, approx.ErrShapeMismatch) {
				log.Debug().Err(err).Int("row", row.Index).Int("col", c).Msg("point skipped")
			}
			stats.Skipped++
			continue
		}

		stats.Points++
		if res.Degenerate > 0 {
			stats.DegeneratePoints++
			stats.DegenerateDirections += res.Degenerate
		}
		row.Cells = append(row.Cells, Cell{
			Row:          row.Index,
			Col:          c,
			Coefficients: res.Coefficients,
			Error:        res.Error,
			Degenerate:   res.Degenerate,
		})
	}
	return row, stats
}
