package neuralnet

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Cost selects the loss function whose gradient seeds backpropagation.
type Cost int

// MSE is mean squared error.
const MSE Cost = iota

func (c Cost) String() string {
	switch c {
	case MSE:
		return "mse"
	}
	return fmt.Sprintf("Cost(%d)", int(c))
}

// Prime returns d(cost)/d(actual) for the whole batch. The gradient is
// unscaled: batch-size normalization happens in Layer.Update. NaN or Inf
// entries pass straight through.
func (c Cost) Prime(actual, expected *mat.Dense) *mat.Dense {
	switch c {
	case MSE:
		rows, cols := actual.Dims()
		grad := mat.NewDense(rows, cols, nil)
		grad.Sub(actual, expected)
		return grad
	}
	panic(fmt.Sprintf("neuralnet: unknown cost %d", int(c)))
}
