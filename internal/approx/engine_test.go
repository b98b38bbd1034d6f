package approx

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func randomMatrix(rng *rand.Rand, rows, cols int) *mat.Dense {
	m := mat.NewDense(rows, cols, nil)
	raw := m.RawMatrix().Data
	for i := range raw {
		raw[i] = 2*rng.Float64() - 1
	}
	return m
}

func randomVector(rng *rand.Rand, n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = 2*rng.Float64() - 1
	}
	return v
}

// combine returns sum_k c[k] * basis.Row(k).
func combine(basis mat.Matrix, c []float64) []float64 {
	var x mat.VecDense
	x.MulVec(basis.T(), mat.NewVecDense(len(c), c))
	return x.RawVector().Data
}

func TestApproximate_RecoversFullRankBasis(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	engine := NewEngine()

	for _, n := range []int{3, 4, 5, 6, 8} {
		for _, extra := range []int{0, 7, 40} {
			basis := randomMatrix(rng, n, n+extra)
			c := randomVector(rng, n)
			x := combine(basis, c)

			res, err := engine.Approximate(x, basis)
			require.NoError(t, err)
			require.Len(t, res.Coefficients, n)
			assert.Less(t, floats.Distance(res.Coefficients, c, 2), 1e-6, "n=%d T=%d", n, n+extra)
			assert.Zero(t, res.Degenerate)
		}
	}
}

func TestApproximate_NearlyParallelBasis(t *testing.T) {
	basis := mat.NewDense(3, 5, []float64{
		1, 2, 3, 4, 5,
		1, 2, 3, 4, 5.001,
		0, 1, 0, 1, 0,
	})
	c := []float64{0.5, -1.5, 2}

	res, err := NewEngine().Approximate(combine(basis, c), basis)
	require.NoError(t, err)
	assert.InDeltaSlice(t, c, res.Coefficients, 1e-6)
}

func TestApproximate_OrderIndependent(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	engine := NewEngine()
	n, T := 5, 12

	basis := randomMatrix(rng, n, T)
	c := randomVector(rng, n)
	x := combine(basis, c)

	perm := rng.Perm(n)
	permuted := mat.NewDense(n, T, nil)
	for dst, src := range perm {
		permuted.SetRow(dst, basis.RawRowView(src))
	}

	orig, err := engine.Approximate(x, basis)
	require.NoError(t, err)
	shuffled, err := engine.Approximate(x, permuted)
	require.NoError(t, err)

	for dst, src := range perm {
		assert.InDelta(t, orig.Coefficients[src], shuffled.Coefficients[dst], 1e-9)
	}
}

func TestApproximate_ZeroResidualOnSpanningBasis(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	engine := NewEngine(WithReconstructionError(true))

	basis := randomMatrix(rng, 6, 30)
	x := combine(basis, randomVector(rng, 6))

	res, err := engine.Approximate(x, basis)
	require.NoError(t, err)
	assert.Less(t, res.Error, 1e-10)

	rebuilt := combine(basis, res.Coefficients)
	assert.InDeltaSlice(t, x, rebuilt, 1e-9)
}

func TestApproximate_MatchesLeastSquares(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	n, T := 4, 25
	basis := randomMatrix(rng, n, T)
	x := randomVector(rng, T)

	res, err := NewEngine(WithReconstructionError(true)).Approximate(x, basis)
	require.NoError(t, err)

	var qr mat.QR
	qr.Factorize(basis.T())
	var want mat.VecDense
	require.NoError(t, qr.SolveVecTo(&want, false, mat.NewVecDense(T, x)))

	assert.InDeltaSlice(t, want.RawVector().Data, res.Coefficients, 1e-8)
	assert.InDelta(t, ReconstructionError(x, basis, want.RawVector().Data), res.Error, 1e-12)
	assert.Greater(t, res.Error, 0.0)
}

func TestApproximate_DegenerateBasis(t *testing.T) {
	f0 := []float64{1, 2, 0, -1, 3}
	f1 := []float64{0, 1, 1, 2, -1}

	tests := []struct {
		name      string
		rows      [][]float64
		x         []float64
		want      []float64
		wantDegen int
	}{
		{
			name:      "duplicate vector",
			rows:      [][]float64{f0, f1, f0},
			x:         floatsAdd(scale(2, f0), scale(3, f1)),
			want:      []float64{2, 3, 0},
			wantDegen: 1,
		},
		{
			name:      "linear combination",
			rows:      [][]float64{f0, f1, floatsAdd(f0, scale(2, f1))},
			x:         floatsAdd(f0, scale(2, f1)),
			want:      []float64{1, 2, 0},
			wantDegen: 1,
		},
		{
			name:      "zero vector first",
			rows:      [][]float64{make([]float64, 5), f0, f1},
			x:         floatsAdd(scale(-1, f0), f1),
			want:      []float64{0, -1, 1},
			wantDegen: 1,
		},
	}

	engine := NewEngine(WithReconstructionError(true))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := engine.ApproximateRows(tt.x, tt.rows)
			require.NoError(t, err)
			for _, v := range res.Coefficients {
				assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), "non-finite coefficient %v", v)
			}
			assert.InDeltaSlice(t, tt.want, res.Coefficients, 1e-9)
			assert.Equal(t, tt.wantDegen, res.Degenerate)
			assert.Less(t, res.Error, 1e-9)
		})
	}
}

func TestApproximate_ExactZeroGuardWithoutTolerance(t *testing.T) {
	engine := NewEngine(WithTolerance(0))
	res, err := engine.ApproximateRows([]float64{1, 1, 0}, [][]float64{
		{1, 0, 0},
		{0, 0, 0},
		{0, 1, 0},
	})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1, 0, 1}, res.Coefficients, 1e-12)
	assert.Equal(t, 1, res.Degenerate)
	assert.Equal(t, Tolerance(0), engine.Tolerance())
}

func TestApproximate_Errors(t *testing.T) {
	engine := NewEngine()

	_, err := engine.Approximate([]float64{1, 2, 3}, mat.NewDense(2, 4, nil))
	assert.ErrorIs(t, err, ErrShapeMismatch)

	_, err = engine.Approximate(nil, mat.NewDense(2, 4, nil))
	assert.ErrorIs(t, err, ErrEmptySignal)

	_, err = engine.Approximate([]float64{1}, nil)
	assert.ErrorIs(t, err, ErrEmptyBasis)

	_, err = engine.ApproximateRows([]float64{1, 2}, nil)
	assert.ErrorIs(t, err, ErrEmptyBasis)

	res, err := engine.ApproximateRows([]float64{1, 2}, [][]float64{{1, 0}, {0, 1, 2}})
	assert.ErrorIs(t, err, ErrShapeMismatch)
	assert.Empty(t, res.Coefficients)
}

func TestApproximate_SmallBases(t *testing.T) {
	engine := NewEngine()

	res, err := engine.ApproximateRows([]float64{2, 4, 6}, [][]float64{{1, 2, 3}})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{2}, res.Coefficients, 1e-12)

	res, err = engine.ApproximateRows([]float64{3, 2}, [][]float64{{1, 0}, {1, 1}})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1, 2}, res.Coefficients, 1e-12)
}

func TestSelfTest(t *testing.T) {
	cases := SelfTest(NewEngine(), rand.New(rand.NewSource(1)), SelfTestDims, 1e-6)
	require.Len(t, cases, len(SelfTestDims))
	for _, tc := range cases {
		assert.True(t, tc.Passed, "dim %d err %g", tc.Dim, tc.Err)
	}
}

func scale(s float64, v []float64) []float64 {
	out := make([]float64, len(v))
	floats.ScaleTo(out, s, v)
	return out
}

func floatsAdd(a, b []float64) []float64 {
	out := make([]float64, len(a))
	floats.AddTo(out, a, b)
	return out
}
