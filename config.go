package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"

	"onnb/neuralnet"
)

// networkFile mirrors the network JSON document: layer topology plus
// named selections for cost, optimizer, encoder, and metric.
type networkFile struct {
	Cost      string        `json:"cost"`
	Layers    []layerFile   `json:"layers"`
	Optimizer optimizerFile `json:"optimizer"`
	Encoder   selectionFile `json:"encoder"`
	Metric    selectionFile `json:"metric"`
}

type layerFile struct {
	Neurons     int     `json:"neurons"`
	Activation  string  `json:"activation"`
	DropoutRate float64 `json:"dropout_rate"`
}

type optimizerFile struct {
	Name         string   `json:"name"`
	LearningRate float64  `json:"learning_rate"`
	Beta1        *float64 `json:"beta1"`
	Beta2        *float64 `json:"beta2"`
}

// selectionFile is a named choice plus free-form constructor arguments.
type selectionFile struct {
	Name string             `json:"name"`
	Args map[string]float64 `json:"args"`
}

// dataFile mirrors the data JSON document. Matrices are stored
// row-major, one example per row.
type dataFile struct {
	TrainInputs  [][]float64 `json:"train_inputs"`
	TrainOutputs [][]float64 `json:"train_outputs"`
	TestInputs   [][]float64 `json:"test_inputs"`
	TestOutputs  [][]float64 `json:"test_outputs"`
}

// layerSpec is a layerFile with its activation name already resolved.
type layerSpec struct {
	neurons    int
	activation neuralnet.Activation
	dropout    float64
}

// runSetup holds everything needed to launch training runs: datasets in
// the engine's column convention and fully resolved component
// selections. Every name or shape problem surfaces here, before any
// training begins.
type runSetup struct {
	train neuralnet.Dataset
	val   neuralnet.Dataset

	layers     []layerSpec
	inputWidth int

	cost      neuralnet.Cost
	metric    neuralnet.Metric
	encoder   neuralnet.Encoder
	optimizer optimizerFile
}

// parseData converts the data JSON into training and validation
// datasets.
func parseData(dataJSON []byte) (train, val neuralnet.Dataset, err error) {
	var data dataFile
	if err = json.Unmarshal(dataJSON, &data); err != nil {
		return train, val, fmt.Errorf("parse data file: %w", err)
	}
	if len(data.TrainInputs) != len(data.TrainOutputs) {
		return train, val, fmt.Errorf("training inputs have %d rows, training outputs have %d",
			len(data.TrainInputs), len(data.TrainOutputs))
	}
	if len(data.TestInputs) != len(data.TestOutputs) {
		return train, val, fmt.Errorf("validation inputs have %d rows, validation outputs have %d",
			len(data.TestInputs), len(data.TestOutputs))
	}

	trainIn, err := columnMajor(data.TrainInputs)
	if err != nil {
		return train, val, fmt.Errorf("train_inputs: %w", err)
	}
	trainOut, err := columnMajor(data.TrainOutputs)
	if err != nil {
		return train, val, fmt.Errorf("train_outputs: %w", err)
	}
	testIn, err := columnMajor(data.TestInputs)
	if err != nil {
		return train, val, fmt.Errorf("test_inputs: %w", err)
	}
	testOut, err := columnMajor(data.TestOutputs)
	if err != nil {
		return train, val, fmt.Errorf("test_outputs: %w", err)
	}

	if train, err = neuralnet.NewDataset(trainIn, trainOut); err != nil {
		return train, val, err
	}
	val, err = neuralnet.NewDataset(testIn, testOut)
	return train, val, err
}

// newRunSetup resolves the network JSON against the given datasets.
func newRunSetup(networkJSON []byte, train, val neuralnet.Dataset) (*runSetup, error) {
	var network networkFile
	if err := json.Unmarshal(networkJSON, &network); err != nil {
		return nil, fmt.Errorf("parse network file: %w", err)
	}
	if len(network.Layers) == 0 {
		return nil, errors.New("network file declares no layers")
	}

	layers := make([]layerSpec, len(network.Layers))
	for i, layer := range network.Layers {
		activation, err := activationFromName(layer.Activation)
		if err != nil {
			return nil, err
		}
		layers[i] = layerSpec{
			neurons:    layer.Neurons,
			activation: activation,
			dropout:    layer.DropoutRate,
		}
	}

	cost, err := costFromName(network.Cost)
	if err != nil {
		return nil, err
	}
	metric, err := metricFromName(network.Metric)
	if err != nil {
		return nil, err
	}
	encoder, err := encoderFromName(network.Encoder)
	if err != nil {
		return nil, err
	}
	if _, err := optimizerFromConfig(network.Optimizer); err != nil {
		return nil, err
	}

	inputWidth, _ := train.Inputs.Dims()
	return &runSetup{
		train:      train,
		val:        val,
		layers:     layers,
		inputWidth: inputWidth,
		cost:       cost,
		metric:     metric,
		encoder:    encoder,
		optimizer:  network.Optimizer,
	}, nil
}

// buildNetwork creates a fresh, randomly initialized network from the
// declared topology. Each training run gets its own.
func (s *runSetup) buildNetwork() *neuralnet.Perceptron {
	p := neuralnet.New()
	for i, layer := range s.layers {
		if i == 0 {
			p.AddInput(layer.neurons, s.inputWidth, layer.activation, layer.dropout)
			continue
		}
		// The input width is inferred from the previous layer, so
		// this cannot fail on a non-empty network.
		_ = p.AddLayer(layer.neurons, layer.activation, layer.dropout)
	}
	return p
}

// newOptimizer creates a fresh optimizer with zeroed moment state.
func (s *runSetup) newOptimizer() *neuralnet.Optimizer {
	optimizer, _ := s.optimizerErr()
	return optimizer
}

func (s *runSetup) optimizerErr() (*neuralnet.Optimizer, error) {
	return optimizerFromConfig(s.optimizer)
}

// columnMajor transposes row-major example rows into the engine's
// (features x examples) convention.
func columnMajor(rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 {
		return nil, errors.New("empty matrix")
	}
	features := len(rows[0])
	if features == 0 {
		return nil, errors.New("empty row in matrix")
	}
	out := mat.NewDense(features, len(rows), nil)
	for j, row := range rows {
		if len(row) != features {
			return nil, fmt.Errorf("row %d has %d values, expected %d", j, len(row), features)
		}
		for i, v := range row {
			out.Set(i, j, v)
		}
	}
	return out, nil
}

func costFromName(name string) (neuralnet.Cost, error) {
	switch strings.ToLower(name) {
	case "mean squared error", "mean_squared_error", "mse":
		return neuralnet.MSE, nil
	}
	return 0, fmt.Errorf("unknown cost function %q", name)
}

func activationFromName(name string) (neuralnet.Activation, error) {
	switch strings.ToLower(name) {
	case "sigmoid":
		return neuralnet.Sigmoid, nil
	case "relu":
		return neuralnet.ReLU, nil
	case "leaky relu", "leaky_relu", "leakyrelu":
		return neuralnet.LeakyReLU, nil
	case "softmax":
		return neuralnet.Softmax, nil
	}
	return 0, fmt.Errorf("unknown activation function %q", name)
}

func metricFromName(sel selectionFile) (neuralnet.Metric, error) {
	switch strings.ToLower(sel.Name) {
	case "accuracy", "acc":
		min, ok := sel.Args["min"]
		if !ok {
			min = 1.0
		}
		return neuralnet.NewAccuracy(min), nil
	}
	return neuralnet.Metric{}, fmt.Errorf("unknown metric %q", sel.Name)
}

func encoderFromName(sel selectionFile) (neuralnet.Encoder, error) {
	switch strings.ToLower(sel.Name) {
	case "one hot", "one_hot", "onehot":
		return neuralnet.NewOneHot(int(sel.Args["max"])), nil
	case "binary":
		return neuralnet.NewBinary(), nil
	}
	return neuralnet.Encoder{}, fmt.Errorf("unknown encoder %q", sel.Name)
}

func optimizerFromConfig(cfg optimizerFile) (*neuralnet.Optimizer, error) {
	gamma := neuralnet.DefaultGamma
	if cfg.Beta1 != nil {
		gamma = *cfg.Beta1
	}
	beta := neuralnet.DefaultBeta
	if cfg.Beta2 != nil {
		beta = *cfg.Beta2
	}
	switch strings.ToLower(cfg.Name) {
	case "stochastic gradient descent", "gradient descent", "sgd":
		return neuralnet.NewSGD(cfg.LearningRate, gamma), nil
	case "adaptive momentum", "adam":
		return neuralnet.NewAdam(cfg.LearningRate, gamma, beta), nil
	}
	return nil, fmt.Errorf("unknown optimizer %q", cfg.Name)
}
