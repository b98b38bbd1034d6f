package approx

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// SelfTestDims are the basis sizes exercised by SelfTest by default.
var SelfTestDims = []int{3, 4, 5, 6, 8}

// SelfTestCase is the outcome of one recovery check.
type SelfTestCase struct {
	Dim    int
	Err    float64
	Passed bool
}

// RandomBasis draws an n x n basis with entries uniform in [-1, 1) and
// redraws until |det| >= 1e-3.
func RandomBasis(rng *rand.Rand, n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for {
		raw := m.RawMatrix().Data
		for i := range raw {
			raw[i] = 2*rng.Float64() - 1
		}
		if math.Abs(mat.Det(m)) >= 1e-3 {
			return m
		}
	}
}

// SelfTest builds x = B^T c for random invertible bases B and coefficients c
// and checks that the engine recovers c within tol (Euclidean distance).
func SelfTest(e *Engine, rng *rand.Rand, dims []int, tol float64) []SelfTestCase {
	cases := make([]SelfTestCase, 0, len(dims))
	for _, n := range dims {
		basis := RandomBasis(rng, n)
		c := make([]float64, n)
		for i := range c {
			c[i] = 2*rng.Float64() - 1
		}

		var x mat.VecDense
		x.MulVec(basis.T(), mat.NewVecDense(n, c))

		tc := SelfTestCase{Dim: n, Err: math.Inf(1)}
		if res, err := e.Approximate(x.RawVector().Data, basis); err == nil {
			tc.Err = floats.Distance(res.Coefficients, c, 2)
		}
		tc.Passed = tc.Err < tol
		cases = append(cases, tc)
	}
	return cases
}
