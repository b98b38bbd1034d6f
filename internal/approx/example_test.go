package approx_test

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/sawpanic/orthofit/internal/approx"
)

func ExampleEngine_Approximate() {
	// Two non-orthogonal basis vectors, one per row.
	basis := mat.NewDense(2, 3, []float64{
		1, 0, 0,
		1, 1, 0,
	})
	signal := []float64{3, 2, 0} // 1*f0 + 2*f1

	res, err := approx.NewEngine(approx.WithReconstructionError(true)).Approximate(signal, basis)
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Printf("%.3f rms=%.3f\n", res.Coefficients, res.Error)
	// Output: [1.000 2.000] rms=0.000
}
