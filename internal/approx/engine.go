package approx

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Result holds the coefficients recovered for one signal.
type Result struct {
	// Coefficients has one entry per original basis vector, in basis order.
	Coefficients []float64
	// Error is the RMS reconstruction residual. Zero unless the engine was
	// built WithReconstructionError(true).
	Error float64
	// Degenerate counts directions whose coefficient was forced to zero by
	// the tolerance guard.
	Degenerate int
}

// Engine approximates signals against freshly supplied bases. The zero value
// is not usable; build one with NewEngine.
type Engine struct {
	tol       Tolerance
	withError bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithTolerance sets the degeneracy tolerance. Negative values act as 0.
func WithTolerance(tol Tolerance) Option {
	return func(e *Engine) {
		if tol < 0 {
			tol = 0
		}
		e.tol = tol
	}
}

// WithReconstructionError enables the RMS residual in every Result.
func WithReconstructionError(enabled bool) Option {
	return func(e *Engine) {
		e.withError = enabled
	}
}

// NewEngine creates an engine using DefaultTolerance unless overridden.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{tol: DefaultTolerance}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Tolerance returns the configured degeneracy tolerance.
func (e *Engine) Tolerance() Tolerance {
	return e.tol
}

// Approximate expresses x as a linear combination of the rows of basis.
// A basis whose rows are not len(x) long yields ErrShapeMismatch and an
// empty Result; callers treat it as a skipped point.
func (e *Engine) Approximate(x []float64, basis mat.Matrix) (Result, error) {
	if len(x) == 0 {
		return Result{}, ErrEmptySignal
	}
	if basis == nil {
		return Result{}, ErrEmptyBasis
	}
	n, t := basis.Dims()
	if n == 0 {
		return Result{}, ErrEmptyBasis
	}
	if t != len(x) {
		return Result{}, ErrShapeMismatch
	}

	ob := Orthogonalize(basis, e.tol)
	a := Project(x, ob)
	res := Result{
		Coefficients: ChangeBasis(basis, ob, a),
		Degenerate:   ob.DegenerateCount(),
	}
	if e.withError {
		res.Error = ReconstructionError(x, basis, res.Coefficients)
	}
	return res, nil
}

// ApproximateRows is Approximate for a basis given as plain slices. Rows of
// unequal length yield ErrShapeMismatch.
func (e *Engine) ApproximateRows(x []float64, rows [][]float64) (Result, error) {
	if len(rows) == 0 {
		return Result{}, ErrEmptyBasis
	}
	t := len(rows[0])
	if t == 0 {
		return Result{}, ErrShapeMismatch
	}
	basis := mat.NewDense(len(rows), t, nil)
	for k, row := range rows {
		if len(row) != t {
			return Result{}, ErrShapeMismatch
		}
		basis.SetRow(k, row)
	}
	return e.Approximate(x, basis)
}

// ReconstructionError returns the root-mean-square of x - basis^T * coefs.
func ReconstructionError(x []float64, basis mat.Matrix, coefs []float64) float64 {
	if len(x) == 0 || len(coefs) == 0 {
		return 0
	}
	var rec mat.VecDense
	rec.MulVec(basis.T(), mat.NewVecDense(len(coefs), coefs))

	var sum float64
	for t, v := range x {
		d := v - rec.AtVec(t)
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(x)))
}
