package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gonum.org/v1/gonum/mat"

	"onnb/neuralnet"
)

// runOptions are the scalar run parameters shared by every run.
type runOptions struct {
	Runs      int
	Epochs    int
	Shuffle   neuralnet.ShuffleMode
	BatchSize int
}

// runResult is the serializable outcome of one training run.
type runResult struct {
	Network         []neuralnet.LayerSnapshot `json:"network"`
	Metric          metricResult              `json:"metric"`
	ElapsedSeconds  float64                   `json:"elapsed_time"`
	TotalEpochs     int                       `json:"total_epochs"`
	PredictedOutput [][]float64               `json:"predicted_output"`
}

type metricResult struct {
	Name   string  `json:"name"`
	Value  float64 `json:"value"`
	Passed bool    `json:"passed"`
}

// results is the full JSON document covering a batch of runs.
type results struct {
	AllResults        []runResult `json:"all_results"`
	ValidationInputs  [][]float64 `json:"validation_inputs"`
	ValidationOutputs [][]float64 `json:"validation_outputs"`
	BatchSize         int         `json:"batch_size,omitempty"`
}

// trainRuns executes opts.Runs independent training runs concurrently.
// Each goroutine builds its own freshly initialized network and
// optimizer from the parsed setup, so no state is shared between runs
// beyond the read-only datasets.
func trainRuns(setup *runSetup, opts runOptions) (*results, error) {
	if opts.Runs <= 0 {
		return nil, fmt.Errorf("run count must be positive, got %d", opts.Runs)
	}

	all := make([]runResult, opts.Runs)
	errs := make([]error, opts.Runs)
	var wg sync.WaitGroup
	for id := 0; id < opts.Runs; id++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			all[id], errs[id] = trainOne(setup, opts, id)
		}(id)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return &results{
		AllResults:        all,
		ValidationInputs:  rowMajor(setup.val.Inputs),
		ValidationOutputs: rowMajor(setup.val.Outputs),
		BatchSize:         opts.BatchSize,
	}, nil
}

func trainOne(setup *runSetup, opts runOptions, id int) (runResult, error) {
	network := setup.buildNetwork()
	optimizer, err := setup.optimizerErr()
	if err != nil {
		return runResult{}, err
	}

	log.Printf("run %d: network initialized, starting training cycle", id)
	start := time.Now()
	epochs, err := network.Fit(setup.train, setup.val, neuralnet.FitConfig{
		Optimizer: optimizer,
		Metric:    setup.metric,
		Cost:      setup.cost,
		Encoder:   setup.encoder,
		Epochs:    opts.Epochs,
		Shuffle:   opts.Shuffle,
		BatchSize: opts.BatchSize,
	})
	if err != nil {
		return runResult{}, err
	}
	elapsed := time.Since(start).Seconds()

	prediction := network.Predict(setup.val.Inputs, setup.encoder)
	value := setup.metric.Value(prediction, setup.val.Outputs)
	passed := setup.metric.Check(prediction, setup.val.Outputs)
	log.Printf("run %d: finished after %d epochs (%s=%.4f, passed=%t, %.2fs)",
		id, epochs, setup.metric.Label(), value, passed, elapsed)

	return runResult{
		Network: network.Snapshot(),
		Metric: metricResult{
			Name:   setup.metric.Label(),
			Value:  value,
			Passed: passed,
		},
		ElapsedSeconds:  elapsed,
		TotalEpochs:     epochs,
		PredictedOutput: rowMajor(prediction),
	}, nil
}

// rowMajor converts a column-major batch back to one example per row
// for serialization, the transpose of how the data files store it.
func rowMajor(m *mat.Dense) [][]float64 {
	rows, cols := m.Dims()
	out := make([][]float64, cols)
	for j := 0; j < cols; j++ {
		example := make([]float64, rows)
		for i := 0; i < rows; i++ {
			example[i] = m.At(i, j)
		}
		out[j] = example
	}
	return out
}

// saveResults writes the results document as indented JSON, creating
// parent directories as needed. An empty path defaults to
// output/<timestamp>.json.
func saveResults(res *results, path string) error {
	if path == "" {
		path = filepath.Join("output", time.Now().UTC().Format("020106150405")+".json")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	buf, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	log.Printf("results written to %s", path)
	return nil
}
