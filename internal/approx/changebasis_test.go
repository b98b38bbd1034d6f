package approx

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func TestOrthogonalize_MutuallyOrthogonal(t *testing.T) {
	basis := randomMatrix(rand.New(rand.NewSource(5)), 6, 20)
	ob := Orthogonalize(basis, DefaultTolerance)

	require.Equal(t, 6, ob.Len())
	assert.Equal(t, basis.RawRowView(0), ob.Vectors.RawRowView(0), "first vector is kept as-is")
	for i := 0; i < ob.Len(); i++ {
		assert.InDelta(t, floats.Dot(ob.Vectors.RawRowView(i), ob.Vectors.RawRowView(i)), ob.Norms[i], 1e-12)
		for j := 0; j < i; j++ {
			assert.InDelta(t, 0, floats.Dot(ob.Vectors.RawRowView(i), ob.Vectors.RawRowView(j)), 1e-10, "e%d.e%d", i, j)
		}
	}
	assert.Zero(t, ob.DegenerateCount())
}

func TestOrthogonalize_DoesNotNormalize(t *testing.T) {
	basis := mat.NewDense(2, 2, []float64{
		3, 0,
		2, 5,
	})
	ob := Orthogonalize(basis, DefaultTolerance)
	assert.Equal(t, []float64{3, 0}, ob.Vectors.RawRowView(0))
	assert.InDeltaSlice(t, []float64{0, 5}, ob.Vectors.RawRowView(1), 1e-12)
	assert.InDeltaSlice(t, []float64{9, 25}, ob.Norms, 1e-12)
}

func TestOrthogonalize_Empty(t *testing.T) {
	ob := Orthogonalize(&mat.Dense{}, DefaultTolerance)
	assert.Zero(t, ob.Len())
	assert.Empty(t, Project(nil, ob))
}

func TestLeftover_ReconstructsOrthogonalVectors(t *testing.T) {
	basis := randomMatrix(rand.New(rand.NewSource(9)), 5, 8)
	ob := Orthogonalize(basis, DefaultTolerance)
	l := Leftover(basis, ob)

	// e_k = f_k + sum_{i<k} L[k][i] e_i
	for k := 0; k < 5; k++ {
		want := append([]float64(nil), basis.RawRowView(k)...)
		for i := 0; i < k; i++ {
			floats.AddScaled(want, l.At(k, i), ob.Vectors.RawRowView(i))
		}
		assert.InDeltaSlice(t, want, ob.Vectors.RawRowView(k), 1e-10)
		for i := k; i < 5; i++ {
			assert.Zero(t, l.At(k, i))
		}
	}
}

func TestTransform_ExpressesOrthogonalVectorsInOriginalBasis(t *testing.T) {
	basis := randomMatrix(rand.New(rand.NewSource(13)), 6, 9)
	ob := Orthogonalize(basis, DefaultTolerance)
	f := Transform(Leftover(basis, ob))

	// e_j = f_j + sum_{i<j} F[j][i] f_i
	for j := 0; j < 6; j++ {
		want := append([]float64(nil), basis.RawRowView(j)...)
		for i := 0; i < j; i++ {
			floats.AddScaled(want, f.At(j, i), basis.RawRowView(i))
		}
		assert.InDeltaSlice(t, ob.Vectors.RawRowView(j), want, 1e-9)
	}
}

func TestTransform_Recursion(t *testing.T) {
	l := mat.NewDense(4, 4, []float64{
		0, 0, 0, 0,
		2, 0, 0, 0,
		3, 5, 0, 0,
		7, 11, 13, 0,
	})
	f := Transform(l)

	assert.Equal(t, 2.0, f.At(1, 0))
	assert.Equal(t, 3.0+5*2, f.At(2, 0))
	assert.Equal(t, 5.0, f.At(2, 1))
	assert.Equal(t, 11.0+13*5, f.At(3, 1))
	assert.Equal(t, 7.0+11*2+13*(3+5*2), f.At(3, 0))
	assert.Equal(t, 13.0, f.At(3, 2))
	for i := 0; i < 4; i++ {
		for j := i; j < 4; j++ {
			assert.Zero(t, f.At(i, j))
		}
	}
}

func TestBackSubstitute(t *testing.T) {
	f := mat.NewDense(4, 4, []float64{
		0, 0, 0, 0,
		1, 0, 0, 0,
		2, 3, 0, 0,
		4, 5, 6, 0,
	})
	a := []float64{1, 1, 1, 1}
	b := BackSubstitute(a, f)

	assert.Equal(t, []float64{1 + 1 + 2 + 4, 1 + 3 + 5, 1 + 6, 1}, b)
	assert.Equal(t, []float64{5}, BackSubstitute([]float64{5}, mat.NewDense(1, 1, nil)))
	assert.Nil(t, ChangeBasis(&mat.Dense{}, &OrthoBasis{}, nil))
}
