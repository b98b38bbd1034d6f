// Package driver walks a region of the grid in row batches: each batch is
// loaded, swept in parallel, and appended to the run's grid, which goes to
// the sinks once the last batch is done.
package driver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	olog "github.com/sawpanic/orthofit/internal/log"
	"github.com/sawpanic/orthofit/internal/metrics"
	"github.com/sawpanic/orthofit/internal/sink"
	"github.com/sawpanic/orthofit/internal/sweep"
	"github.com/sawpanic/orthofit/internal/volume"
)

// ErrNoSource is returned when the driver has nothing to read from.
var ErrNoSource = errors.New("driver: no data source")

// Options selects the region and the parallelism of a run.
type Options struct {
	// StartRow is the first absolute row processed.
	StartRow int
	// RowLimit is the exclusive last row; 0 means Height.
	RowLimit int
	// Height is the number of rows in the area.
	Height int
	// BatchSize is the number of rows loaded at once.
	BatchSize int
	// Columns limits every row to [0, Columns); 0 means all.
	Columns int
	// Workers is the size of the row pool of each sweep; 0 means NumCPU.
	Workers int
	// RunID tags the run; a UUID is generated when empty.
	RunID string
}

// BatchEvent describes a finished batch.
type BatchEvent struct {
	RunID     string        `json:"run_id"`
	Batch     int           `json:"batch"`
	YStart    int           `json:"y_start"`
	YEnd      int           `json:"y_end"`
	RowsDone  int           `json:"rows_done"`
	RowsTotal int           `json:"rows_total"`
	Stats     sweep.Stats   `json:"stats"`
	Duration  time.Duration `json:"duration_ns"`
	ETA       time.Duration `json:"eta_ns"`
}

// Observer is notified after every batch. Calls come from the driver
// goroutine in batch order.
type Observer interface {
	BatchDone(ev BatchEvent)
}

// Summary is the outcome of a run.
type Summary struct {
	RunID    string
	Batches  int
	Rows     int
	Stats    sweep.Stats
	Duration time.Duration
	Grid     *sweep.Grid
}

// Driver runs the batch loop.
type Driver struct {
	Source    volume.Source
	Engine    sweep.Approximator
	Sink      sink.Sink
	Metrics   *metrics.Registry
	Observers []Observer
	Options   Options
}

// Range returns the absolute half-open row range the run covers.
func (o Options) Range() (start, end int) {
	end = o.Height
	if o.RowLimit > 0 && o.RowLimit < end {
		end = o.RowLimit
	}
	start = o.StartRow
	if start > end {
		start = end
	}
	return start, end
}

// Run processes every batch of the region and writes the accumulated grid
// to the sink. The context is checked between batches; a batch in flight
// always completes. A batch that loads no rows after the first one marks the
// end of the data; any other load failure aborts the run.
func (d *Driver) Run(ctx context.Context) (*Summary, error) {
	if d.Source == nil {
		return nil, ErrNoSource
	}
	opts := d.Options
	if opts.BatchSize <= 0 {
		return nil, fmt.Errorf("driver: batch size must be positive, got %d", opts.BatchSize)
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}

	start, end := opts.Range()
	total := end - start
	logger := log.With().Str("run_id", opts.RunID).Logger()
	if total == 0 {
		logger.Warn().Int("start_row", opts.StartRow).Int("row_limit", end).Msg("Empty row range")
	}

	summary := &Summary{RunID: opts.RunID, Grid: &sweep.Grid{}}
	progress := olog.NewProgress("sweep", total)
	d.Metrics.SetRows(0, total)
	began := time.Now()

	for y := start; y < end; y += opts.BatchSize {
		if err := ctx.Err(); err != nil {
			progress.Fail(err)
			return summary, err
		}
		// The last batch stops at the row limit, not at Height.
		yEnd := min(y+opts.BatchSize, end)

		timer := d.Metrics.StartBatchTimer(summary.Batches)
		batch, err := d.Source.LoadRegion(ctx, y, yEnd)
		if errors.Is(err, volume.ErrEmptyRegion) && summary.Batches > 0 {
			timer.Stop("empty")
			logger.Warn().Int("data_rows", y).Int("row_limit", end).Msg("Data ends before row limit")
			break
		}
		if err != nil {
			timer.Stop("error")
			progress.Fail(err)
			return summary, fmt.Errorf("load rows [%d,%d): %w", y, yEnd, err)
		}

		grid, stats := sweep.Run(batch, d.Engine, sweep.Options{Workers: opts.Workers, Columns: opts.Columns})
		duration := timer.Stop("ok")

		summary.Grid.Append(grid)
		summary.Stats.Add(stats)
		summary.Rows += batch.Rows()
		d.record(grid, stats)

		batchLog := logger.Info()
		if stats.DegenerateDirections > 0 {
			batchLog = logger.Warn().Int("degenerate", stats.DegenerateDirections)
		}
		batchLog.
			Int("y_start", batch.YStart).
			Int("y_end", batch.YEnd).
			Int("points", stats.Points).
			Int("skipped", stats.Skipped).
			Dur("duration", duration).
			Msg("Batch processed")

		progress.Add(batch.Rows())
		d.Metrics.SetRows(summary.Rows, total)
		eta, _ := progress.ETA()
		d.notify(BatchEvent{
			RunID:     opts.RunID,
			Batch:     summary.Batches,
			YStart:    batch.YStart,
			YEnd:      batch.YEnd,
			RowsDone:  summary.Rows,
			RowsTotal: total,
			Stats:     stats,
			Duration:  duration,
			ETA:       eta,
		})
		summary.Batches++

		// A short batch means the data ends before the configured range.
		if batch.YEnd < yEnd {
			logger.Warn().Int("data_rows", batch.YEnd).Int("row_limit", end).Msg("Data ends before row limit")
			break
		}
	}
	summary.Duration = time.Since(began)
	progress.Finish()

	if d.Sink != nil {
		res := &sink.Result{RunID: opts.RunID, Grid: summary.Grid, Stats: summary.Stats}
		if err := d.Sink.Write(ctx, res); err != nil {
			return summary, fmt.Errorf("write results: %w", err)
		}
	}

	logger.Info().
		Int("batches", summary.Batches).
		Int("points", summary.Stats.Points).
		Int("skipped", summary.Stats.Skipped).
		Int("degenerate_points", summary.Stats.DegeneratePoints).
		Dur("duration", summary.Duration).
		Msg("Run complete")
	return summary, nil
}

func (d *Driver) record(grid *sweep.Grid, stats sweep.Stats) {
	if d.Metrics == nil {
		return
	}
	d.Metrics.RecordPoints(stats.Points, stats.Skipped, stats.DegenerateDirections)
	for _, row := range grid.Rows {
		for _, cell := range row.Cells {
			d.Metrics.ObserveError(cell.Error)
		}
	}
}

func (d *Driver) notify(ev BatchEvent) {
	for _, o := range d.Observers {
		o.BatchDone(ev)
	}
}
