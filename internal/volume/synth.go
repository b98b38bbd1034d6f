package volume

import (
	"math"
	"math/rand"
)

// SynthOptions shapes a synthetic dataset.
type SynthOptions struct {
	T, Rows, Cols int
	Fields        int
	// Noise is the standard deviation of Gaussian noise added to the signal.
	Noise float64
	Seed  int64
}

// Synthetic is a generated dataset with known coefficients.
type Synthetic struct {
	Signal *Cube
	Basis  []*Cube
	// Truth holds the generating coefficient of field k at (r, c) as
	// Truth.At(k, r, c).
	Truth *Cube
}

// Synthesize builds Gaussian-pulse basis fields whose arrival time drifts
// across the grid, and a signal mixing them with smoothly varying
// coefficients. Neighbouring pulses overlap, so the basis is not orthogonal.
func Synthesize(opts SynthOptions) *Synthetic {
	rng := rand.New(rand.NewSource(opts.Seed))
	s := &Synthetic{
		Signal: NewCube(opts.T, opts.Rows, opts.Cols),
		Basis:  make([]*Cube, opts.Fields),
		Truth:  NewCube(opts.Fields, opts.Rows, opts.Cols),
	}
	for k := range s.Basis {
		s.Basis[k] = NewCube(opts.T, opts.Rows, opts.Cols)
	}

	span := float64(opts.T)
	width := span / float64(2*opts.Fields+2)
	for r := 0; r < opts.Rows; r++ {
		for c := 0; c < opts.Cols; c++ {
			drift := 0.1 * span * (float64(r)/float64(max(opts.Rows, 1)) + float64(c)/float64(max(opts.Cols, 1))) / 2
			for k := 0; k < opts.Fields; k++ {
				centre := drift + width*float64(k+1)*1.5
				coef := 1 + 0.5*math.Sin(float64(k+1)*float64(r+1)/7) + 0.25*math.Cos(float64(c+k)/5)
				s.Truth.Set(k, r, c, coef)
				for t := 0; t < opts.T; t++ {
					d := (float64(t) - centre) / width
					v := math.Exp(-d * d / 2)
					s.Basis[k].Set(t, r, c, v)
					s.Signal.Set(t, r, c, s.Signal.At(t, r, c)+coef*v)
				}
			}
			if opts.Noise > 0 {
				for t := 0; t < opts.T; t++ {
					s.Signal.Set(t, r, c, s.Signal.At(t, r, c)+opts.Noise*rng.NormFloat64())
				}
			}
		}
	}
	return s
}
