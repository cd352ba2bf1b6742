package neuralnet

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// EncoderKind enumerates the supported output encodings.
type EncoderKind int

const (
	// OneHot maps class indices to one-hot columns and decodes by
	// per-column argmax.
	OneHot EncoderKind = iota
	// Binary keeps a single output row as-is and decodes by
	// thresholding at 0.5. Suited to networks with one output neuron.
	Binary
)

// Encoder converts between raw label values and the network's numeric
// output representation. Construct with NewOneHot or NewBinary.
type Encoder struct {
	Kind EncoderKind

	// Max is the largest class index OneHot will encode.
	Max int
}

func NewOneHot(max int) Encoder {
	return Encoder{Kind: OneHot, Max: max}
}

func NewBinary() Encoder {
	return Encoder{Kind: Binary}
}

// Width is the number of output rows the encoding produces, i.e. the
// neuron count required of the network's final layer.
func (e Encoder) Width() int {
	switch e.Kind {
	case OneHot:
		return e.Max + 1
	case Binary:
		return 1
	}
	panic(fmt.Sprintf("neuralnet: unknown encoder %d", int(e.Kind)))
}

// Encode maps raw labels (one column per example) into the network's
// output shape.
func (e Encoder) Encode(y *mat.Dense) *mat.Dense {
	switch e.Kind {
	case OneHot:
		_, cols := y.Dims()
		out := mat.NewDense(e.Max+1, cols, nil)
		for j := 0; j < cols; j++ {
			out.Set(int(y.At(0, j)), j, 1)
		}
		return out
	case Binary:
		return mat.DenseCopyOf(y)
	}
	panic(fmt.Sprintf("neuralnet: unknown encoder %d", int(e.Kind)))
}

// Decode maps raw network output back to label space, one value per
// example column. Decoding is lossy until the network converges; that
// is expected, not an error.
func (e Encoder) Decode(y *mat.Dense) *mat.Dense {
	rows, cols := y.Dims()
	out := mat.NewDense(1, cols, nil)
	switch e.Kind {
	case OneHot:
		for j := 0; j < cols; j++ {
			best, bestVal := 0, y.At(0, j)
			for i := 1; i < rows; i++ {
				if v := y.At(i, j); v > bestVal {
					best, bestVal = i, v
				}
			}
			out.Set(0, j, float64(best))
		}
	case Binary:
		for j := 0; j < cols; j++ {
			if y.At(0, j) >= 0.5 {
				out.Set(0, j, 1)
			}
		}
	default:
		panic(fmt.Sprintf("neuralnet: unknown encoder %d", int(e.Kind)))
	}
	return out
}
