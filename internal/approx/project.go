package approx

import "gonum.org/v1/gonum/floats"

// Project decomposes x onto the orthogonal basis: a_i = <x, e_i>/<e_i, e_i>,
// and 0 for degenerate directions. len(x) must equal the basis vector length.
func Project(x []float64, ob *OrthoBasis) []float64 {
	a := make([]float64, ob.Len())
	for i := range a {
		if ob.Degenerate[i] {
			continue
		}
		a[i] = floats.Dot(x, ob.Vectors.RawRowView(i)) / ob.Norms[i]
	}
	return a
}
