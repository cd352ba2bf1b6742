package neuralnet

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// leakyAlpha is the fixed negative-side slope of LeakyReLU.
const leakyAlpha = 0.01

// Activation selects one of the supported neuron activation functions.
// The set is closed: a new variant needs a new constant plus a case in
// Call and Prime.
type Activation int

const (
	Sigmoid Activation = iota
	ReLU
	LeakyReLU
	Softmax
)

func (a Activation) String() string {
	switch a {
	case Sigmoid:
		return "sigmoid"
	case ReLU:
		return "relu"
	case LeakyReLU:
		return "leaky_relu"
	case Softmax:
		return "softmax"
	}
	return fmt.Sprintf("Activation(%d)", int(a))
}

// Call applies the activation elementwise to a batch of pre-activation
// values. Softmax normalizes along the feature axis, one example column
// at a time.
func (a Activation) Call(x *mat.Dense) *mat.Dense {
	switch a {
	case Sigmoid:
		return apply(x, sigmoid)
	case ReLU:
		return apply(x, relu)
	case LeakyReLU:
		return apply(x, leakyReLU)
	case Softmax:
		return softmaxCols(x)
	}
	panic(fmt.Sprintf("neuralnet: unknown activation %d", int(a)))
}

// Prime evaluates the first derivative at the same pre-activation
// values that were given to Call. For Softmax this is the diagonal term
// of the Jacobian, s*(1-s), which suffices for the costs enumerated in
// this package.
func (a Activation) Prime(x *mat.Dense) *mat.Dense {
	switch a {
	case Sigmoid:
		return apply(x, func(v float64) float64 {
			s := sigmoid(v)
			return s * (1 - s)
		})
	case ReLU:
		return apply(x, func(v float64) float64 {
			if v > 0 {
				return 1
			}
			return 0
		})
	case LeakyReLU:
		return apply(x, func(v float64) float64 {
			if v > 0 {
				return 1
			}
			return leakyAlpha
		})
	case Softmax:
		s := softmaxCols(x)
		s.Apply(func(_, _ int, v float64) float64 { return v * (1 - v) }, s)
		return s
	}
	panic(fmt.Sprintf("neuralnet: unknown activation %d", int(a)))
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func relu(x float64) float64 {
	return math.Max(x, 0)
}

func leakyReLU(x float64) float64 {
	if x > 0 {
		return x
	}
	return leakyAlpha * x
}

func apply(x *mat.Dense, fn func(float64) float64) *mat.Dense {
	rows, cols := x.Dims()
	out := mat.NewDense(rows, cols, nil)
	out.Apply(func(_, _ int, v float64) float64 { return fn(v) }, x)
	return out
}

// softmaxCols shifts each column by its maximum before exponentiating,
// which leaves the result unchanged but keeps the sums finite.
func softmaxCols(x *mat.Dense) *mat.Dense {
	rows, cols := x.Dims()
	out := mat.NewDense(rows, cols, nil)
	for j := 0; j < cols; j++ {
		max := math.Inf(-1)
		for i := 0; i < rows; i++ {
			if v := x.At(i, j); v > max {
				max = v
			}
		}
		var sum float64
		for i := 0; i < rows; i++ {
			e := math.Exp(x.At(i, j) - max)
			out.Set(i, j, e)
			sum += e
		}
		for i := 0; i < rows; i++ {
			out.Set(i, j, out.At(i, j)/sum)
		}
	}
	return out
}
