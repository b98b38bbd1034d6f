package approx

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// OrthoBasis is an orthogonal basis derived from an ordered original basis.
// Vectors are not normalized.
type OrthoBasis struct {
	// Vectors holds e_0..e_{n-1} as rows.
	Vectors *mat.Dense
	// Norms holds <e_i, e_i>.
	Norms []float64
	// Degenerate marks directions guarded by the tolerance.
	Degenerate []bool
}

// Len returns the number of directions.
func (ob *OrthoBasis) Len() int {
	return len(ob.Norms)
}

// DegenerateCount returns how many directions were guarded.
func (ob *OrthoBasis) DegenerateCount() int {
	count := 0
	for _, d := range ob.Degenerate {
		if d {
			count++
		}
	}
	return count
}

// Orthogonalize runs classical Gram-Schmidt over the rows of basis.
// e_0 is f_0 unchanged; e_i is f_i minus its component along every earlier
// non-degenerate e_j, scaled by <current, e_j>/<e_j, e_j>.
func Orthogonalize(basis mat.Matrix, tol Tolerance) *OrthoBasis {
	n, t := basis.Dims()
	ob := &OrthoBasis{
		Norms:      make([]float64, n),
		Degenerate: make([]bool, n),
	}
	if n == 0 || t == 0 {
		ob.Vectors = &mat.Dense{}
		return ob
	}

	ob.Vectors = mat.NewDense(n, t, nil)
	for i := 0; i < n; i++ {
		current := ob.Vectors.RawRowView(i)
		mat.Row(current, i, basis)
		original := floats.Dot(current, current)

		for j := 0; j < i; j++ {
			if ob.Degenerate[j] {
				continue
			}
			earlier := ob.Vectors.RawRowView(j)
			scale := floats.Dot(current, earlier) / ob.Norms[j]
			floats.AddScaled(current, -scale, earlier)
		}

		ob.Norms[i] = floats.Dot(current, current)
		ob.Degenerate[i] = tol.degenerate(ob.Norms[i], original)
	}
	return ob
}
