// Package volume loads rectangular row ranges of gridded time-series fields.
//
// A field is a Cube: a dense [time][row][col] array of float64. A Source
// returns, for a half-open row range, the signal cube and one cube per basis
// field, always in the same basis order.
package volume

import "fmt"

// Cube is a dense [time][row][col] float64 array stored time-major.
type Cube struct {
	T, Rows, Cols int
	Data          []float64
}

// NewCube allocates a zeroed cube.
func NewCube(t, rows, cols int) *Cube {
	return &Cube{T: t, Rows: rows, Cols: cols, Data: make([]float64, t*rows*cols)}
}

func (c *Cube) index(t, r, col int) int {
	return (t*c.Rows+r)*c.Cols + col
}

// At returns the sample at time t, row r, column col.
func (c *Cube) At(t, r, col int) float64 {
	return c.Data[c.index(t, r, col)]
}

// Set stores v at time t, row r, column col.
func (c *Cube) Set(t, r, col int, v float64) {
	c.Data[c.index(t, r, col)] = v
}

// Series copies the time series of point (r, col) into dst, which must have
// room for c.T samples, and returns it.
func (c *Cube) Series(r, col int, dst []float64) []float64 {
	stride := c.Rows * c.Cols
	i := r*c.Cols + col
	for t := 0; t < c.T; t++ {
		dst[t] = c.Data[i]
		i += stride
	}
	return dst[:c.T]
}

// SliceRows returns a copy of rows [y0, y1) for every time step.
func (c *Cube) SliceRows(y0, y1 int) *Cube {
	out := NewCube(c.T, y1-y0, c.Cols)
	n := (y1 - y0) * c.Cols
	for t := 0; t < c.T; t++ {
		copy(out.Data[t*n:(t+1)*n], c.Data[c.index(t, y0, 0):c.index(t, y0, 0)+n])
	}
	return out
}

// String describes the cube shape.
func (c *Cube) String() string {
	return fmt.Sprintf("cube[t=%d rows=%d cols=%d]", c.T, c.Rows, c.Cols)
}
