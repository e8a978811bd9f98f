// Package layer provides the batched layer primitives and composite
// encoders that block projection networks are assembled from. All data
// flows as gonum matrices with rows indexing the batch dimension.
package layer

import (
	"gonum.org/v1/gonum/mat"

	"github.com/mresende-ds/nhits/internal/activations"
)

// Layer is one stage of a projection chain.
//
// Forward pushes whatever state the stage needs for backpropagation
// onto an internal stack (only while in training mode), and Backward
// pops it. A layer that is aliased into several stack positions
// therefore sees one stack frame per position, and its gradient
// buffers accumulate contributions from every position until ZeroGrad.
type Layer interface {
	Forward(x *mat.Dense) *mat.Dense
	Backward(grad *mat.Dense) *mat.Dense

	Params() []float64
	SetParams(params []float64)
	Gradients() []float64
	ZeroGrad()

	SetTraining(training bool)
}

// Kind identifies the weight-bearing variant of a layer for
// initialization dispatch, resolved once at construction.
type Kind int

const (
	KindLinear Kind = iota
	KindConv
	KindConvTranspose
	KindPool
	KindDropout
	KindBatchNorm
)

// Initializable is implemented by layers (or composites) that expose
// weight tensors for a named initialization scheme to fill.
type Initializable interface {
	// WeightTensors returns the weight tensors of the layer in a fixed
	// order. Bias vectors are not included; they start at zero.
	WeightTensors() []WeightTensor
}

// WeightTensor is one initializable weight tensor with its fan shape.
type WeightTensor struct {
	Kind   Kind
	Data   []float64
	FanIn  int
	FanOut int
}

// actForward applies act elementwise, returning a new matrix.
func actForward(act activations.Activation, x *mat.Dense) *mat.Dense {
	r, c := x.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Set(i, j, act.Activate(x.At(i, j)))
		}
	}
	return out
}

// actBackward scales grad by act' evaluated at the pre-activation
// input, returning a new matrix.
func actBackward(act activations.Activation, pre, grad *mat.Dense) *mat.Dense {
	r, c := grad.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Set(i, j, grad.At(i, j)*act.Derivative(pre.At(i, j)))
		}
	}
	return out
}

func zero(data []float64) {
	for i := range data {
		data[i] = 0
	}
}
