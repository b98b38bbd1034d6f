// Package sink writes the coefficient grid of a run to its destinations.
package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/orthofit/internal/metrics"
	"github.com/sawpanic/orthofit/internal/sweep"
)

// Result is what a run hands to its sinks.
type Result struct {
	RunID string
	Grid  *sweep.Grid
	Stats sweep.Stats
}

// Sink persists a run result.
type Sink interface {
	Name() string
	Write(ctx context.Context, res *Result) error
	Close() error
}

// PointKey returns the document key of a grid point, "[row,col]".
func PointKey(row, col int) string {
	return "[" + strconv.Itoa(row) + "," + strconv.Itoa(col) + "]"
}

// jsonFloat encodes NaN and ±Inf as null; encoding/json rejects them.
type jsonFloat float64

func (f jsonFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

func jsonFloats(vs []float64) []jsonFloat {
	if vs == nil {
		return nil
	}
	out := make([]jsonFloat, len(vs))
	for i, v := range vs {
		out[i] = jsonFloat(v)
	}
	return out
}

// Multi fans a result out to several sinks. Every sink is attempted; the
// errors of the failing ones are joined.
type Multi struct {
	Sinks   []Sink
	Metrics *metrics.Registry
}

// Name implements Sink.
func (m *Multi) Name() string { return "multi" }

// Write implements Sink.
func (m *Multi) Write(ctx context.Context, res *Result) error {
	var errs []error
	for _, s := range m.Sinks {
		err := s.Write(ctx, res)
		m.Metrics.RecordSinkWrite(s.Name(), err)
		if err != nil {
			log.Error().Err(err).Str("sink", s.Name()).Str("run_id", res.RunID).Msg("Sink write failed")
			errs = append(errs, fmt.Errorf("%s sink: %w", s.Name(), err))
			continue
		}
		log.Info().Str("sink", s.Name()).Int("points", res.Grid.Len()).Msg("Results written")
	}
	return errors.Join(errs...)
}

// Close implements Sink.
func (m *Multi) Close() error {
	var errs []error
	for _, s := range m.Sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s sink: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}
