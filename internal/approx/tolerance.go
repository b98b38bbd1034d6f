package approx

// Tolerance is the relative energy threshold under which an orthogonal
// direction is treated as degenerate.
//
// Direction i is degenerate when <e_i, e_i> <= Tolerance * <f_i, f_i>, where
// f_i is the original basis vector and e_i what is left of it after
// Gram-Schmidt. A degenerate direction contributes nothing: it is not
// subtracted from later vectors, its projection is 0 and its removal
// coefficients are 0. A zero tolerance only guards exact zeros.
type Tolerance float64

// DefaultTolerance flags directions that keep less than 1e-12 of their
// original energy, i.e. vectors dependent on earlier ones up to rounding.
const DefaultTolerance Tolerance = 1e-12

func (t Tolerance) degenerate(orthoSq, origSq float64) bool {
	if orthoSq == 0 {
		return true
	}
	if t <= 0 {
		return false
	}
	return orthoSq <= float64(t)*origSq
}
