package neuralnet

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// MetricKind enumerates the supported evaluation metrics.
type MetricKind int

// Accuracy scores the share of elementwise-equal entries between the
// prediction and the expected values.
const Accuracy MetricKind = iota

// Metric scores predictions against expected values and decides when the
// network performs well enough to stop training.
type Metric struct {
	Kind MetricKind

	// Min is the lowest passing score for Accuracy. The default of 1
	// demands an exact match.
	Min float64
}

func NewAccuracy(min float64) Metric {
	return Metric{Kind: Accuracy, Min: min}
}

// Label names the metric for reports.
func (m Metric) Label() string {
	switch m.Kind {
	case Accuracy:
		return "Accuracy"
	}
	panic(fmt.Sprintf("neuralnet: unknown metric %d", int(m.Kind)))
}

// Value scores a prediction. Scores are not necessarily bounded to
// [0, 1], though Accuracy's are.
func (m Metric) Value(actual, expected *mat.Dense) float64 {
	switch m.Kind {
	case Accuracy:
		rows, cols := actual.Dims()
		equal := 0
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				if actual.At(i, j) == expected.At(i, j) {
					equal++
				}
			}
		}
		return float64(equal) / float64(rows*cols)
	}
	panic(fmt.Sprintf("neuralnet: unknown metric %d", int(m.Kind)))
}

// Check reports whether the score counts as acceptable performance.
func (m Metric) Check(actual, expected *mat.Dense) bool {
	return m.Value(actual, expected) >= m.Min
}
