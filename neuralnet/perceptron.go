// Package neuralnet implements a configurable feed-forward network
// trained by backpropagation. Batches are column-major throughout:
// matrices have shape (features x examples) and every column is one
// independent example.
//
// The engine is single-threaded and synchronous per training run.
// Concurrent runs are fine as long as each one owns its own Perceptron
// and Optimizer; nothing in this package shares mutable state between
// instances.
package neuralnet

import (
	"errors"
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// ShuffleMode controls if and when training example columns are
// permuted during Fit.
type ShuffleMode int

const (
	ShuffleOff ShuffleMode = iota
	// ShuffleOnce permutes the training columns a single time before
	// the first epoch.
	ShuffleOnce
	// ShuffleEachEpoch permutes the training columns at the start of
	// every epoch.
	ShuffleEachEpoch
)

// Dataset pairs an input batch with its labels. Columns are examples in
// both matrices and the column counts must line up.
type Dataset struct {
	Inputs  *mat.Dense
	Outputs *mat.Dense
}

// NewDataset validates that inputs and outputs cover the same examples.
func NewDataset(inputs, outputs *mat.Dense) (Dataset, error) {
	_, in := inputs.Dims()
	_, out := outputs.Dims()
	if in != out {
		return Dataset{}, fmt.Errorf("neuralnet: input examples (%d) != output examples (%d)", in, out)
	}
	return Dataset{Inputs: inputs, Outputs: outputs}, nil
}

// Examples returns the number of example columns.
func (d Dataset) Examples() int {
	_, cols := d.Inputs.Dims()
	return cols
}

// FitConfig carries the knobs for one training run.
type FitConfig struct {
	Optimizer *Optimizer
	Metric    Metric
	Cost      Cost
	Encoder   Encoder

	// Epochs is the training-cycle ceiling.
	Epochs int

	Shuffle ShuffleMode

	// BatchSize is the number of consecutive post-shuffle examples
	// trained per epoch. Zero trains the full set every epoch.
	BatchSize int
}

// Perceptron is an ordered sequence of fully-connected layers. Each
// layer feeds the next one in the slice.
type Perceptron struct {
	layers []*Layer
}

func New() *Perceptron {
	return &Perceptron{}
}

// Layers exposes the network's layers in forward order.
func (p *Perceptron) Layers() []*Layer {
	return p.layers
}

// AddInput adds the first layer, which also fixes the input feature
// width the network expects.
func (p *Perceptron) AddInput(neurons, inputs int, activation Activation, dropout float64) {
	p.layers = append(p.layers, NewLayer(neurons, inputs, activation, dropout))
}

// AddLayer adds a layer whose input width is inferred from the previous
// layer's neuron count.
func (p *Perceptron) AddLayer(neurons int, activation Activation, dropout float64) error {
	if len(p.layers) == 0 {
		return errors.New("neuralnet: AddLayer before AddInput")
	}
	prev := p.layers[len(p.layers)-1]
	p.layers = append(p.layers, NewLayer(neurons, prev.Neurons, activation, dropout))
	return nil
}

// Fit trains the network until the metric passes on the validation set
// or the epoch ceiling is reached, and returns the completion epoch.
// Configuration problems are reported before any training happens.
func (p *Perceptron) Fit(train, val Dataset, cfg FitConfig) (int, error) {
	if err := p.checkFit(train, cfg); err != nil {
		return 0, err
	}

	// Work on copies so shuffling never disturbs the caller's data.
	inputs := mat.DenseCopyOf(train.Inputs)
	expected := cfg.Encoder.Encode(train.Outputs)

	examples := train.Examples()
	if cfg.Shuffle == ShuffleOnce {
		permuteColumns(inputs, expected)
	}

	start := 0
	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		if cfg.Shuffle == ShuffleEachEpoch {
			permuteColumns(inputs, expected)
		}

		batchIn, batchOut, n := sliceWindow(inputs, expected, start, cfg.BatchSize)
		if cfg.BatchSize > 0 {
			start = (start + cfg.BatchSize) % examples
		}

		// Validation runs without dropout; stop as soon as the
		// metric is satisfied.
		prediction := p.Predict(val.Inputs, cfg.Encoder)
		if cfg.Metric.Check(prediction, val.Outputs) {
			return epoch, nil
		}

		actual, states := p.feedForward(batchIn)
		delta := cfg.Cost.Prime(actual, batchOut)
		p.backProp(states, delta)
		cfg.Optimizer.Update(p.layers, states, n)
	}
	return cfg.Epochs, nil
}

func (p *Perceptron) checkFit(train Dataset, cfg FitConfig) error {
	if len(p.layers) == 0 {
		return errors.New("neuralnet: Fit on a network with no layers")
	}
	if cfg.Optimizer == nil {
		return errors.New("neuralnet: Fit without an optimizer")
	}
	if cfg.Epochs <= 0 {
		return fmt.Errorf("neuralnet: epoch ceiling must be positive, got %d", cfg.Epochs)
	}
	if cfg.BatchSize < 0 {
		return fmt.Errorf("neuralnet: batch size must not be negative, got %d", cfg.BatchSize)
	}
	if cfg.BatchSize > train.Examples() {
		return fmt.Errorf("neuralnet: batch size (%d) exceeds training examples (%d)", cfg.BatchSize, train.Examples())
	}
	features, _ := train.Inputs.Dims()
	if want := p.layers[0].Inputs(); features != want {
		return fmt.Errorf("neuralnet: training inputs have %d features, network expects %d", features, want)
	}
	last := p.layers[len(p.layers)-1]
	if want := cfg.Encoder.Width(); last.Neurons != want {
		return fmt.Errorf("neuralnet: output layer has %d neurons, encoder produces %d rows", last.Neurons, want)
	}
	return nil
}

// feedForward runs the training-time forward pass and collects each
// layer's step state for the backward pass.
func (p *Perceptron) feedForward(inputs *mat.Dense) (*mat.Dense, []*StepState) {
	states := make([]*StepState, len(p.layers))
	output := inputs
	for i, layer := range p.layers {
		output, states[i] = layer.FeedForward(output)
	}
	return output, states
}

// backProp walks the layers in reverse order. The output layer consumes
// the cost gradient directly; every other layer pulls from its
// successor's weights and delta.
func (p *Perceptron) backProp(states []*StepState, delta *mat.Dense) {
	last := len(p.layers) - 1
	p.layers[last].BackPropWithDelta(states[last], delta)
	for i := last - 1; i >= 0; i-- {
		p.layers[i].BackProp(states[i], p.layers[i+1], states[i+1])
	}
}

// Predict runs the network without dropout or recorded state and
// decodes the raw output back to label space.
func (p *Perceptron) Predict(inputs *mat.Dense, encoder Encoder) *mat.Dense {
	output := inputs
	for _, layer := range p.layers {
		output = layer.Predict(output)
	}
	return encoder.Decode(output)
}

// LayerSnapshot is the serializable view of one layer's parameters.
type LayerSnapshot struct {
	Neurons    int         `json:"neurons"`
	Activation string      `json:"activation"`
	Weights    [][]float64 `json:"weights"`
	Biases     []float64   `json:"biases"`
}

// Snapshot captures every layer's weights and biases. Format and
// destination of the serialized form are the caller's concern.
func (p *Perceptron) Snapshot() []LayerSnapshot {
	snapshots := make([]LayerSnapshot, len(p.layers))
	for i, layer := range p.layers {
		rows, cols := layer.Weights.Dims()
		weights := make([][]float64, rows)
		for r := 0; r < rows; r++ {
			weights[r] = make([]float64, cols)
			for c := 0; c < cols; c++ {
				weights[r][c] = layer.Weights.At(r, c)
			}
		}
		biases := make([]float64, layer.Neurons)
		for r := 0; r < layer.Neurons; r++ {
			biases[r] = layer.Biases.AtVec(r)
		}
		snapshots[i] = LayerSnapshot{
			Neurons:    layer.Neurons,
			Activation: layer.Activation.String(),
			Weights:    weights,
			Biases:     biases,
		}
	}
	return snapshots
}

// permuteColumns applies one shared random column permutation to every
// matrix, keeping inputs and outputs paired.
func permuteColumns(ms ...*mat.Dense) {
	_, cols := ms[0].Dims()
	perm := rand.Perm(cols)
	for _, m := range ms {
		rows, _ := m.Dims()
		orig := mat.DenseCopyOf(m)
		buf := make([]float64, rows)
		for dst, src := range perm {
			mat.Col(buf, src, orig)
			m.SetCol(dst, buf)
		}
	}
}

// sliceWindow selects size consecutive columns starting at start,
// wrapping past the end. A size of zero (or the full set) returns the
// matrices unchanged.
func sliceWindow(inputs, expected *mat.Dense, start, size int) (*mat.Dense, *mat.Dense, int) {
	inRows, cols := inputs.Dims()
	if size <= 0 || size >= cols {
		return inputs, expected, cols
	}
	exRows, _ := expected.Dims()

	winIn := mat.NewDense(inRows, size, nil)
	winEx := mat.NewDense(exRows, size, nil)
	bufIn := make([]float64, inRows)
	bufEx := make([]float64, exRows)
	for j := 0; j < size; j++ {
		src := (start + j) % cols
		mat.Col(bufIn, src, inputs)
		winIn.SetCol(j, bufIn)
		mat.Col(bufEx, src, expected)
		winEx.SetCol(j, bufEx)
	}
	return winIn, winEx, size
}
