package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"onnb/neuralnet"
)

func testSetup(t *testing.T) *runSetup {
	t.Helper()
	train, val, err := parseData([]byte(`{
		"train_inputs": [[0, 0], [0, 1], [1, 0], [1, 1]],
		"train_outputs": [[0], [1], [1], [0]],
		"test_inputs": [[0, 0], [0, 1], [1, 0], [1, 1]],
		"test_outputs": [[0], [1], [1], [0]]
	}`))
	require.NoError(t, err)

	setup, err := newRunSetup([]byte(`{
		"cost": "mse",
		"layers": [
			{"neurons": 3, "activation": "sigmoid"},
			{"neurons": 1, "activation": "sigmoid"}
		],
		"optimizer": {"name": "sgd", "learning_rate": 0.5},
		"encoder": {"name": "binary"},
		"metric": {"name": "accuracy", "args": {"min": 0.75}}
	}`), train, val)
	require.NoError(t, err)
	return setup
}

func TestTrainRuns(t *testing.T) {
	setup := testSetup(t)

	res, err := trainRuns(setup, runOptions{Runs: 3, Epochs: 2})
	require.NoError(t, err)

	require.Len(t, res.AllResults, 3)
	for _, run := range res.AllResults {
		assert.LessOrEqual(t, run.TotalEpochs, 2)
		assert.Greater(t, run.TotalEpochs, 0)
		require.Len(t, run.Network, 2)
		assert.Len(t, run.PredictedOutput, 4)
		assert.Equal(t, "Accuracy", run.Metric.Name)
	}
	assert.Len(t, res.ValidationInputs, 4)
	assert.Equal(t, []float64{0, 1}, res.ValidationInputs[1])
	assert.Len(t, res.ValidationOutputs, 4)
}

func TestTrainRunsRejectsZeroRuns(t *testing.T) {
	_, err := trainRuns(testSetup(t), runOptions{Runs: 0, Epochs: 1})
	assert.Error(t, err)
}

func TestRowMajor(t *testing.T) {
	m := mat.NewDense(2, 3, []float64{
		1, 2, 3,
		4, 5, 6,
	})
	assert.Equal(t, [][]float64{{1, 4}, {2, 5}, {3, 6}}, rowMajor(m))
}

func TestSaveResults(t *testing.T) {
	res := &results{
		AllResults: []runResult{{
			Network:         []neuralnet.LayerSnapshot{},
			Metric:          metricResult{Name: "Accuracy", Value: 0.5},
			TotalEpochs:     7,
			PredictedOutput: [][]float64{{1}},
		}},
		ValidationInputs:  [][]float64{{0, 1}},
		ValidationOutputs: [][]float64{{1}},
		BatchSize:         8,
	}

	path := filepath.Join(t.TempDir(), "nested", "results.json")
	require.NoError(t, saveResults(res, path))

	buf, err := os.ReadFile(path)
	require.NoError(t, err)

	var got results
	require.NoError(t, json.Unmarshal(buf, &got))
	require.Len(t, got.AllResults, 1)
	assert.Equal(t, 7, got.AllResults[0].TotalEpochs)
	assert.Equal(t, 8, got.BatchSize)
}
