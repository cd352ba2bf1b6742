package neuralnet

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestAddInputAndLayerShapes(t *testing.T) {
	p := New()
	p.AddInput(5, 3, Sigmoid, 0)
	require.NoError(t, p.AddLayer(2, Softmax, 0))

	layers := p.Layers()
	require.Len(t, layers, 2)

	r, c := layers[0].Weights.Dims()
	assert.Equal(t, 5, r)
	assert.Equal(t, 3, c)
	assert.Equal(t, 5, layers[0].Biases.Len())

	r, c = layers[1].Weights.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 5, c)
	assert.Equal(t, 2, layers[1].Biases.Len())
}

func TestAddLayerWithoutInput(t *testing.T) {
	p := New()
	assert.Error(t, p.AddLayer(2, Sigmoid, 0))
}

func TestNewDatasetChecksExampleCounts(t *testing.T) {
	inputs := mat.NewDense(2, 3, nil)
	outputs := mat.NewDense(1, 2, nil)

	_, err := NewDataset(inputs, outputs)
	assert.Error(t, err)

	ds, err := NewDataset(inputs, mat.NewDense(1, 3, nil))
	require.NoError(t, err)
	assert.Equal(t, 3, ds.Examples())
}

func fitFixture() (*Perceptron, Dataset, Dataset, FitConfig) {
	p := New()
	p.AddInput(3, 2, Sigmoid, 0)
	_ = p.AddLayer(1, Sigmoid, 0)

	train := Dataset{
		Inputs:  mat.NewDense(2, 4, []float64{0, 0, 1, 1, 0, 1, 0, 1}),
		Outputs: mat.NewDense(1, 4, []float64{0, 1, 1, 0}),
	}
	val := Dataset{
		Inputs:  mat.DenseCopyOf(train.Inputs),
		Outputs: mat.DenseCopyOf(train.Outputs),
	}
	cfg := FitConfig{
		Optimizer: NewSGD(0.5, DefaultGamma),
		Metric:    NewAccuracy(0.75),
		Cost:      MSE,
		Encoder:   NewBinary(),
		Epochs:    10,
	}
	return p, train, val, cfg
}

func TestFitConfigErrors(t *testing.T) {
	tests := []struct {
		name   string
		mangle func(p *Perceptron, train *Dataset, cfg *FitConfig)
	}{
		{"no layers", func(p *Perceptron, _ *Dataset, _ *FitConfig) {
			p.layers = nil
		}},
		{"nil optimizer", func(_ *Perceptron, _ *Dataset, cfg *FitConfig) {
			cfg.Optimizer = nil
		}},
		{"zero epochs", func(_ *Perceptron, _ *Dataset, cfg *FitConfig) {
			cfg.Epochs = 0
		}},
		{"negative batch", func(_ *Perceptron, _ *Dataset, cfg *FitConfig) {
			cfg.BatchSize = -1
		}},
		{"batch larger than set", func(_ *Perceptron, _ *Dataset, cfg *FitConfig) {
			cfg.BatchSize = 5
		}},
		{"feature width mismatch", func(_ *Perceptron, train *Dataset, _ *FitConfig) {
			train.Inputs = mat.NewDense(3, 4, nil)
		}},
		{"encoder width mismatch", func(_ *Perceptron, _ *Dataset, cfg *FitConfig) {
			cfg.Encoder = NewOneHot(3)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, train, val, cfg := fitFixture()
			tt.mangle(p, &train, &cfg)

			_, err := p.Fit(train, val, cfg)
			assert.Error(t, err)
		})
	}
}

func TestFitStopsWhenMetricPasses(t *testing.T) {
	p, train, val, cfg := fitFixture()
	cfg.Metric = NewAccuracy(0)

	epoch, err := p.Fit(train, val, cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, epoch)
}

func TestFitRunsToEpochCeiling(t *testing.T) {
	p, train, val, cfg := fitFixture()
	// Binary decoding only yields 0 or 1, so these labels can never be
	// matched and the metric never passes.
	val.Outputs = mat.NewDense(1, 4, []float64{5, 5, 5, 5})
	cfg.Epochs = 3

	epoch, err := p.Fit(train, val, cfg)
	require.NoError(t, err)
	assert.Equal(t, 3, epoch)
}

func TestFitWithMinibatchesAndShuffle(t *testing.T) {
	p, train, val, cfg := fitFixture()
	val.Outputs = mat.NewDense(1, 4, []float64{5, 5, 5, 5})
	cfg.Epochs = 6
	cfg.BatchSize = 3
	cfg.Shuffle = ShuffleEachEpoch

	epoch, err := p.Fit(train, val, cfg)
	require.NoError(t, err)
	assert.Equal(t, 6, epoch)
}

func TestFitDoesNotMutateCallerData(t *testing.T) {
	p, train, val, cfg := fitFixture()
	val.Outputs = mat.NewDense(1, 4, []float64{5, 5, 5, 5})
	cfg.Epochs = 4
	cfg.Shuffle = ShuffleEachEpoch
	before := mat.DenseCopyOf(train.Inputs)

	_, err := p.Fit(train, val, cfg)
	require.NoError(t, err)
	assert.True(t, mat.Equal(before, train.Inputs))
}

func TestLearnsXOR(t *testing.T) {
	train := Dataset{
		Inputs:  mat.NewDense(2, 4, []float64{0, 0, 1, 1, 0, 1, 0, 1}),
		Outputs: mat.NewDense(1, 4, []float64{0, 1, 1, 0}),
	}

	// Training starts from random weights, so allow a few restarts.
	for attempt := 0; attempt < 5; attempt++ {
		p := New()
		p.AddInput(4, 2, Sigmoid, 0)
		require.NoError(t, p.AddLayer(1, Sigmoid, 0))

		cfg := FitConfig{
			Optimizer: NewSGD(0.5, DefaultGamma),
			Metric:    NewAccuracy(0.75),
			Cost:      MSE,
			Encoder:   NewBinary(),
			Epochs:    5000,
		}
		_, err := p.Fit(train, train, cfg)
		require.NoError(t, err)

		prediction := p.Predict(train.Inputs, cfg.Encoder)
		if cfg.Metric.Check(prediction, train.Outputs) {
			return
		}
	}
	t.Fatal("failed to learn XOR in 5 attempts")
}

func TestSnapshotShapes(t *testing.T) {
	p := New()
	p.AddInput(4, 3, ReLU, 0)
	require.NoError(t, p.AddLayer(2, Softmax, 0))

	snapshots := p.Snapshot()
	require.Len(t, snapshots, 2)

	assert.Equal(t, 4, snapshots[0].Neurons)
	assert.Equal(t, "relu", snapshots[0].Activation)
	require.Len(t, snapshots[0].Weights, 4)
	assert.Len(t, snapshots[0].Weights[0], 3)
	assert.Len(t, snapshots[0].Biases, 4)

	assert.Equal(t, "softmax", snapshots[1].Activation)
	require.Len(t, snapshots[1].Weights, 2)
	assert.Len(t, snapshots[1].Weights[0], 4)
}

func TestSliceWindowWrapsAround(t *testing.T) {
	inputs := mat.NewDense(1, 5, []float64{0, 1, 2, 3, 4})
	expected := mat.NewDense(1, 5, []float64{10, 11, 12, 13, 14})

	winIn, winEx, n := sliceWindow(inputs, expected, 3, 4)

	assert.Equal(t, 4, n)
	assert.Equal(t, []float64{3, 4, 0, 1}, winIn.RawMatrix().Data)
	assert.Equal(t, []float64{13, 14, 10, 11}, winEx.RawMatrix().Data)
}

func TestSliceWindowFullSetPassesThrough(t *testing.T) {
	inputs := mat.NewDense(1, 5, []float64{0, 1, 2, 3, 4})
	expected := mat.NewDense(1, 5, []float64{10, 11, 12, 13, 14})

	winIn, winEx, n := sliceWindow(inputs, expected, 2, 0)
	assert.Same(t, inputs, winIn)
	assert.Same(t, expected, winEx)
	assert.Equal(t, 5, n)

	winIn, _, n = sliceWindow(inputs, expected, 2, 5)
	assert.Same(t, inputs, winIn)
	assert.Equal(t, 5, n)
}

func TestPermuteColumnsKeepsPairsAligned(t *testing.T) {
	inputs := mat.NewDense(1, 6, []float64{0, 1, 2, 3, 4, 5})
	outputs := mat.NewDense(1, 6, []float64{10, 11, 12, 13, 14, 15})

	permuteColumns(inputs, outputs)

	for j := 0; j < 6; j++ {
		assert.Equal(t, inputs.At(0, j)+10, outputs.At(0, j))
	}

	got := append([]float64(nil), inputs.RawMatrix().Data...)
	sort.Float64s(got)
	assert.Equal(t, []float64{0, 1, 2, 3, 4, 5}, got)
}
