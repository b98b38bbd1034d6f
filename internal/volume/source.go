package volume

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// ErrRegionShape is returned when a basis field does not cover the same rows
// and columns as the signal field.
var ErrRegionShape = errors.New("volume: basis field shape differs from signal field")

// Source loads row ranges of the signal field and every basis field.
type Source interface {
	// LoadRegion returns rows [yStart, yEnd) of every field. yEnd may be
	// clipped to the data height; the returned Batch reports the range
	// actually loaded. Basis cubes come in a stable order.
	LoadRegion(ctx context.Context, yStart, yEnd int) (*Batch, error)
}

// Batch is one loaded row range. Its cubes are read-only once returned.
type Batch struct {
	YStart, YEnd int
	Signal       *Cube
	Basis        []*Cube
}

// Rows returns the number of rows in the batch.
func (b *Batch) Rows() int {
	return b.YEnd - b.YStart
}

// Cols returns the number of columns in the batch.
func (b *Batch) Cols() int {
	return b.Signal.Cols
}

// Validate checks that every basis field covers the signal's rows and
// columns. Time lengths may differ; such points are skipped downstream.
func (b *Batch) Validate() error {
	if b.Signal == nil {
		return fmt.Errorf("volume: batch [%d,%d) has no signal", b.YStart, b.YEnd)
	}
	for i, c := range b.Basis {
		if c.Rows != b.Signal.Rows || c.Cols != b.Signal.Cols {
			return fmt.Errorf("basis field %d is %dx%d, signal is %dx%d: %w",
				i, c.Rows, c.Cols, b.Signal.Rows, b.Signal.Cols, ErrRegionShape)
		}
	}
	return nil
}

// MemorySource serves row ranges of in-memory cubes.
type MemorySource struct {
	Signal *Cube
	Basis  []*Cube
}

// LoadRegion implements Source.
func (m *MemorySource) LoadRegion(_ context.Context, yStart, yEnd int) (*Batch, error) {
	if yEnd > m.Signal.Rows {
		yEnd = m.Signal.Rows
	}
	if yStart < 0 || yStart >= yEnd {
		return nil, fmt.Errorf("memory rows [%d,%d) of %d: %w", yStart, yEnd, m.Signal.Rows, ErrEmptyRegion)
	}

	batch := &Batch{
		YStart: yStart,
		YEnd:   yEnd,
		Signal: m.Signal.SliceRows(yStart, yEnd),
		Basis:  make([]*Cube, len(m.Basis)),
	}
	for i, c := range m.Basis {
		if c.Rows < yEnd {
			return nil, fmt.Errorf("basis field %d has %d rows, need %d: %w", i, c.Rows, yEnd, ErrRegionShape)
		}
		batch.Basis[i] = c.SliceRows(yStart, yEnd)
	}
	if err := batch.Validate(); err != nil {
		return nil, err
	}
	return batch, nil
}

// CubeSource reads fields from cube files. BasisPaths order is the basis
// order.
type CubeSource struct {
	SignalPath string
	BasisPaths []string
}

// LoadRegion implements Source. Basis files are read concurrently; the first
// failure aborts the load and names the file.
func (s *CubeSource) LoadRegion(ctx context.Context, yStart, yEnd int) (*Batch, error) {
	log.Debug().Str("path", s.SignalPath).Int("y_start", yStart).Int("y_end", yEnd).Msg("loading signal region")

	signal, err := ReadRegion(s.SignalPath, yStart, yEnd)
	if err != nil {
		return nil, err
	}

	basis := make([]*Cube, len(s.BasisPaths))
	g, ctx := errgroup.WithContext(ctx)
	for i, path := range s.BasisPaths {
		i, path := i, path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			log.Debug().Str("path", path).Int("index", i).Msg("loading basis region")
			c, err := ReadRegion(path, yStart, yEnd)
			if err != nil {
				return err
			}
			basis[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	batch := &Batch{
		YStart: yStart,
		YEnd:   yStart + signal.Rows,
		Signal: signal,
		Basis:  basis,
	}
	if err := batch.Validate(); err != nil {
		return nil, err
	}
	return batch, nil
}

// Headers returns the header of the signal file followed by every basis
// file.
func (s *CubeSource) Headers() ([]Header, error) {
	paths := append([]string{s.SignalPath}, s.BasisPaths...)
	headers := make([]Header, len(paths))
	for i, p := range paths {
		h, err := ReadHeader(p)
		if err != nil {
			return nil, err
		}
		headers[i] = h
	}
	return headers, nil
}
