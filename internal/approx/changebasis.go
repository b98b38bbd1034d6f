package approx

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Leftover returns the Gram-Schmidt removal coefficients of the basis:
//
//	L[k][i] = -<f_k, e_i> / <e_i, e_i>   for k > i
//
// so that e_k = f_k + sum_{i<k} L[k][i] e_i. Degenerate directions give 0.
// Entries with k <= i are never read downstream and stay zero.
func Leftover(basis mat.Matrix, ob *OrthoBasis) *mat.Dense {
	n, t := basis.Dims()
	l := mat.NewDense(n, n, nil)
	f := make([]float64, t)
	for k := 1; k < n; k++ {
		mat.Row(f, k, basis)
		row := l.RawRowView(k)
		for i := 0; i < k; i++ {
			if ob.Degenerate[i] {
				continue
			}
			row[i] = -floats.Dot(f, ob.Vectors.RawRowView(i)) / ob.Norms[i]
		}
	}
	return l
}

// Transform builds the strictly lower-triangular matrix F expressing every
// orthogonal vector in the original basis, e_j = f_j + sum_{i<j} F[j][i] f_i:
//
//	F[j][i] = L[j][i] + sum_{k=i+1}^{j-1} L[j][k] * F[k][i]
//
// Rows are filled in increasing j, so every F[k][i] on the right is final.
func Transform(l *mat.Dense) *mat.Dense {
	n, _ := l.Dims()
	f := mat.NewDense(n, n, nil)
	for j := 1; j < n; j++ {
		lj := l.RawRowView(j)
		fj := f.RawRowView(j)
		for i := 0; i < j; i++ {
			sum := lj[i]
			for k := i + 1; k < j; k++ {
				sum += lj[k] * f.At(k, i)
			}
			fj[i] = sum
		}
	}
	return f
}

// BackSubstitute converts orthogonal-basis coefficients a into coefficients
// of the original basis, from the last index down:
//
//	b[i] = a[i] + sum_{j=i+1}^{n-1} a[j] * F[j][i]
func BackSubstitute(a []float64, f *mat.Dense) []float64 {
	n := len(a)
	b := make([]float64, n)
	for i := n - 1; i >= 0; i-- {
		sum := a[i]
		for j := i + 1; j < n; j++ {
			sum += a[j] * f.At(j, i)
		}
		b[i] = sum
	}
	return b
}

// ChangeBasis recovers the coefficients of the original basis from the
// coefficients a computed against its orthogonal basis ob.
func ChangeBasis(basis mat.Matrix, ob *OrthoBasis, a []float64) []float64 {
	if len(a) == 0 {
		return nil
	}
	return BackSubstitute(a, Transform(Leftover(basis, ob)))
}
