package approx

import "errors"

var (
	// ErrShapeMismatch is returned when the basis vectors and the signal
	// have different lengths. Callers sweeping a region skip the point.
	ErrShapeMismatch = errors.New("approx: basis vector length does not match signal length")

	// ErrEmptyBasis is returned when the basis has no vectors.
	ErrEmptyBasis = errors.New("approx: empty basis")

	// ErrEmptySignal is returned for a zero-length signal.
	ErrEmptySignal = errors.New("approx: empty signal")
)
