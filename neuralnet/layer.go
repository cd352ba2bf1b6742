package neuralnet

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// StepState carries the transient values recorded during one forward
// pass of a single layer: the input batch, the pre-activation batch, the
// neuron rows dropped by dropout, and (after the backward pass) the
// delta batch. FeedForward produces a fresh state on every call; the
// same state must be handed back to the backward pass of that step.
type StepState struct {
	Inputs  *mat.Dense
	PreAct  *mat.Dense
	Delta   *mat.Dense
	Dropped []int
}

// Layer is one fully-connected layer: a weight matrix of shape
// (neurons x inputs), one bias per neuron broadcast over example
// columns, an activation function and an optional dropout rate.
type Layer struct {
	Neurons    int
	Weights    *mat.Dense
	Biases     *mat.VecDense
	Activation Activation

	// Dropout is the per-row drop probability during training. Zero
	// disables dropout.
	Dropout float64
}

// NewLayer creates a layer with weights and biases drawn uniformly from
// (-1/sqrt(inputs), 1/sqrt(inputs)) to keep early gradients in range.
func NewLayer(neurons, inputs int, activation Activation, dropout float64) *Layer {
	limit := 1 / math.Sqrt(float64(inputs))
	weights := mat.NewDense(neurons, inputs, nil)
	for i := 0; i < neurons; i++ {
		for j := 0; j < inputs; j++ {
			weights.Set(i, j, uniform(limit))
		}
	}
	biases := mat.NewVecDense(neurons, nil)
	for i := 0; i < neurons; i++ {
		biases.SetVec(i, uniform(limit))
	}
	return &Layer{
		Neurons:    neurons,
		Weights:    weights,
		Biases:     biases,
		Activation: activation,
		Dropout:    dropout,
	}
}

func uniform(limit float64) float64 {
	return 2*limit*rand.Float64() - limit
}

// Inputs returns the input width the layer expects.
func (l *Layer) Inputs() int {
	_, cols := l.Weights.Dims()
	return cols
}

// FeedForward computes activation(weights*inputs + biases), recording
// the step state needed for the backward pass. When dropout is
// configured, every output row is independently zeroed across all
// example columns with probability Dropout, and the dropped row indices
// are recorded so the backward pass masks the same rows. The mask is
// resampled on every call.
func (l *Layer) FeedForward(inputs *mat.Dense) (*mat.Dense, *StepState) {
	preAct := l.preActivation(inputs)
	output := l.Activation.Call(preAct)

	state := &StepState{
		Inputs: mat.DenseCopyOf(inputs),
		PreAct: preAct,
	}
	if l.Dropout > 0 {
		_, cols := output.Dims()
		zero := make([]float64, cols)
		for i := 0; i < l.Neurons; i++ {
			if rand.Float64() < l.Dropout {
				state.Dropped = append(state.Dropped, i)
				output.SetRow(i, zero)
			}
		}
	}
	return output, state
}

// Predict is the inference path: the same computation as FeedForward,
// but with no recorded state and no dropout.
func (l *Layer) Predict(inputs *mat.Dense) *mat.Dense {
	return l.Activation.Call(l.preActivation(inputs))
}

func (l *Layer) preActivation(inputs *mat.Dense) *mat.Dense {
	_, cols := inputs.Dims()
	out := mat.NewDense(l.Neurons, cols, nil)
	out.Mul(l.Weights, inputs)
	for i := 0; i < l.Neurons; i++ {
		bias := l.Biases.AtVec(i)
		for j := 0; j < cols; j++ {
			out.Set(i, j, out.At(i, j)+bias)
		}
	}
	return out
}

// BackProp computes this layer's delta from the layer attached after
// it: prime(preAct) * (attached.Weights^T . attached delta), then zeroes
// the rows this layer dropped during the forward pass so no gradient
// flows through dropped units.
func (l *Layer) BackProp(state *StepState, attached *Layer, attachedState *StepState) {
	if attachedState == nil || attachedState.Delta == nil {
		panic("neuralnet: BackProp before the attached layer's backward pass")
	}
	var upstream mat.Dense
	upstream.Mul(attached.Weights.T(), attachedState.Delta)
	l.BackPropWithDelta(state, &upstream)
}

// BackPropWithDelta seeds the backward pass with an explicit upstream
// delta; the output layer uses this with the cost gradient. Calling it
// without a fresh FeedForward state is a programming error.
func (l *Layer) BackPropWithDelta(state *StepState, delta *mat.Dense) {
	if state == nil || state.PreAct == nil {
		panic("neuralnet: backward pass without a prior FeedForward")
	}
	prime := l.Activation.Prime(state.PreAct)
	rows, cols := prime.Dims()
	d := mat.NewDense(rows, cols, nil)
	d.MulElem(prime, delta)

	zero := make([]float64, cols)
	for _, i := range state.Dropped {
		d.SetRow(i, zero)
	}
	state.Delta = d
}

// Update applies precomputed weight and bias deltas, normalizing both
// by the example count of the trained batch. This is the only place
// batch-size normalization happens. The per-example bias deltas are
// reduced to one value per neuron row before the subtraction.
func (l *Layer) Update(deltaWeights, deltaBiases *mat.Dense, inputRows int) {
	if inputRows <= 0 {
		panic("neuralnet: Update with non-positive example count")
	}
	scale := 1 / float64(inputRows)

	var dw mat.Dense
	dw.Scale(scale, deltaWeights)
	l.Weights.Sub(l.Weights, &dw)

	_, cols := deltaBiases.Dims()
	for i := 0; i < l.Neurons; i++ {
		var sum float64
		for j := 0; j < cols; j++ {
			sum += deltaBiases.At(i, j)
		}
		l.Biases.SetVec(i, l.Biases.AtVec(i)-sum*scale)
	}
}
