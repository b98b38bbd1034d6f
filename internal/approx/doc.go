// Package approx recovers the coefficients of a signal with respect to a
// non-orthogonal basis.
//
// The basis is orthogonalized with classical Gram-Schmidt (no normalization),
// the signal is projected onto the orthogonal directions, and the recorded
// Gram-Schmidt removal coefficients are folded back through a strictly
// lower-triangular transformation matrix to express the projection in the
// original basis. The Gram matrix of the original basis is never formed or
// inverted.
//
// Bases are gonum matrices with one basis vector per row:
//
//	basis := mat.NewDense(n, T, data) // row k is basis vector k
//	res, err := approx.NewEngine().Approximate(signal, basis)
//
// All functions are pure: every call allocates its own orthogonal basis and
// transformation matrix, so an Engine may be shared by any number of
// goroutines.
package approx
