package neuralnet

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	// DefaultGamma is the usual primary momentum constant.
	DefaultGamma = 0.9

	// DefaultBeta is the usual secondary momentum constant (Adam).
	DefaultBeta = 0.999

	// adamEpsilon guards the Adam denominator against division by zero.
	adamEpsilon = 1e-7
)

type optimizerKind int

const (
	sgdKind optimizerKind = iota
	adamKind
)

// Optimizer owns the per-layer parameter-update rule together with its
// accumulated moment/velocity state. The state buffers are created
// lazily on the first Update call per layer index and persist across
// every later step of the same run; constructing a new Optimizer is the
// only way to reset them. One instance serves exactly one training run.
type Optimizer struct {
	kind optimizerKind

	LearningRate float64

	// Gamma is the primary momentum constant.
	Gamma float64

	// Beta is the secondary momentum constant, used only by Adam.
	Beta float64

	step       int
	moments    []*mat.Dense
	velocities []*mat.Dense
}

// NewSGD returns stochastic gradient descent with classical momentum.
// A gamma of zero reduces it to plain gradient descent.
func NewSGD(learningRate, gamma float64) *Optimizer {
	return &Optimizer{kind: sgdKind, LearningRate: learningRate, Gamma: gamma}
}

// NewAdam returns the adaptive-moment optimizer.
func NewAdam(learningRate, gamma, beta float64) *Optimizer {
	return &Optimizer{kind: adamKind, LearningRate: learningRate, Gamma: gamma, Beta: beta}
}

// Update consumes every layer's recorded step state and applies one
// optimization step across all layers. The weight gradient for layer i
// is states[i].Delta . states[i].Inputs^T; whether that delta came from
// one example, a minibatch, or the full set is the caller's scheduling
// decision.
func (o *Optimizer) Update(layers []*Layer, states []*StepState, inputRows int) {
	switch o.kind {
	case sgdKind:
		o.updateSGD(layers, states, inputRows)
	case adamKind:
		o.updateAdam(layers, states, inputRows)
	default:
		panic(fmt.Sprintf("neuralnet: unknown optimizer %d", int(o.kind)))
	}
}

func (o *Optimizer) updateSGD(layers []*Layer, states []*StepState, inputRows int) {
	for i, layer := range layers {
		gradW, gradB := o.gradients(states[i])

		if len(o.moments) <= i {
			r, c := gradW.Dims()
			o.moments = append(o.moments, mat.NewDense(r, c, nil))
		}

		// moment = gamma*moment + lr*gradient
		moment := o.moments[i]
		moment.Scale(o.Gamma, moment)
		gradW.Scale(o.LearningRate, gradW)
		moment.Add(moment, gradW)

		gradB.Scale(o.LearningRate, gradB)
		layer.Update(moment, gradB, inputRows)
	}
}

func (o *Optimizer) updateAdam(layers []*Layer, states []*StepState, inputRows int) {
	// One shared timestep per update call, not per layer.
	o.step++
	momentCorr := 1 - math.Pow(o.Gamma, float64(o.step))
	velocityCorr := 1 - math.Pow(o.Beta, float64(o.step))

	for i, layer := range layers {
		gradW, gradB := o.gradients(states[i])
		rows, cols := gradW.Dims()

		if len(o.moments) <= i {
			o.moments = append(o.moments, mat.NewDense(rows, cols, nil))
			o.velocities = append(o.velocities, mat.NewDense(rows, cols, nil))
		}
		moment := o.moments[i]
		velocity := o.velocities[i]

		adj := mat.NewDense(rows, cols, nil)
		for r := 0; r < rows; r++ {
			for c := 0; c < cols; c++ {
				g := gradW.At(r, c)
				m := o.Gamma*moment.At(r, c) + (1-o.Gamma)*g
				v := o.Beta*velocity.At(r, c) + (1-o.Beta)*g*g
				moment.Set(r, c, m)
				velocity.Set(r, c, v)

				mBar := m / momentCorr
				vBar := v / velocityCorr
				adj.Set(r, c, o.LearningRate*mBar/(math.Sqrt(vBar)+adamEpsilon))
			}
		}

		gradB.Scale(o.LearningRate, gradB)
		layer.Update(adj, gradB, inputRows)
	}
}

// gradients converts a layer's activation delta into raw weight and
// bias gradients.
func (o *Optimizer) gradients(state *StepState) (*mat.Dense, *mat.Dense) {
	if state == nil || state.Delta == nil {
		panic("neuralnet: optimizer update without a backward pass")
	}
	var gradW mat.Dense
	gradW.Mul(state.Delta, state.Inputs.T())
	return &gradW, mat.DenseCopyOf(state.Delta)
}
