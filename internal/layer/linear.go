package layer

import (
	"gonum.org/v1/gonum/mat"

	"github.com/mresende-ds/nhits/internal/activations"
)

// Linear is a batched fully connected layer computing y = x*W^T + b.
type Linear struct {
	inSize  int
	outSize int

	weights *mat.Dense // outSize x inSize
	biases  []float64

	gradW *mat.Dense
	gradB []float64

	training bool
	saved    []*mat.Dense // inputs, one frame per forward call
}

// NewLinear creates a linear layer with zero weights and biases; the
// model applies a named initialization scheme after assembly.
func NewLinear(in, out int) *Linear {
	return &Linear{
		inSize:  in,
		outSize: out,
		weights: mat.NewDense(out, in, nil),
		biases:  make([]float64, out),
		gradW:   mat.NewDense(out, in, nil),
		gradB:   make([]float64, out),
	}
}

// Forward computes x*W^T + b for a (batch x inSize) input.
func (l *Linear) Forward(x *mat.Dense) *mat.Dense {
	batch, _ := x.Dims()
	var y mat.Dense
	y.Mul(x, l.weights.T())
	for i := 0; i < batch; i++ {
		for j := 0; j < l.outSize; j++ {
			y.Set(i, j, y.At(i, j)+l.biases[j])
		}
	}
	if l.training {
		l.saved = append(l.saved, mat.DenseCopyOf(x))
	}
	return &y
}

// Backward accumulates weight and bias gradients from the most recent
// unconsumed forward call and returns the gradient w.r.t. the input.
func (l *Linear) Backward(grad *mat.Dense) *mat.Dense {
	n := len(l.saved)
	if n == 0 {
		panic("layer: Linear.Backward called without a matching Forward")
	}
	x := l.saved[n-1]
	l.saved = l.saved[:n-1]

	var gw mat.Dense
	gw.Mul(grad.T(), x)
	l.gradW.Add(l.gradW, &gw)

	batch, _ := grad.Dims()
	for j := 0; j < l.outSize; j++ {
		sum := 0.0
		for i := 0; i < batch; i++ {
			sum += grad.At(i, j)
		}
		l.gradB[j] += sum
	}

	var dx mat.Dense
	dx.Mul(grad, l.weights)
	return &dx
}

// Params returns weights then biases, flattened.
func (l *Linear) Params() []float64 {
	out := make([]float64, 0, l.inSize*l.outSize+l.outSize)
	out = append(out, l.weights.RawMatrix().Data...)
	out = append(out, l.biases...)
	return out
}

// SetParams updates weights and biases from a flattened slice.
func (l *Linear) SetParams(params []float64) {
	nw := l.inSize * l.outSize
	copy(l.weights.RawMatrix().Data, params[:nw])
	copy(l.biases, params[nw:nw+l.outSize])
}

// Gradients returns accumulated weight then bias gradients, flattened.
func (l *Linear) Gradients() []float64 {
	out := make([]float64, 0, l.inSize*l.outSize+l.outSize)
	out = append(out, l.gradW.RawMatrix().Data...)
	out = append(out, l.gradB...)
	return out
}

// ZeroGrad clears the accumulated gradients.
func (l *Linear) ZeroGrad() {
	zero(l.gradW.RawMatrix().Data)
	zero(l.gradB)
}

// SetTraining toggles saving of backward state.
func (l *Linear) SetTraining(training bool) {
	l.training = training
	if !training {
		l.saved = nil
	}
}

// WeightTensors exposes the weight matrix for initialization.
func (l *Linear) WeightTensors() []WeightTensor {
	return []WeightTensor{{Kind: KindLinear, Data: l.weights.RawMatrix().Data, FanIn: l.inSize, FanOut: l.outSize}}
}

// InSize returns the input width.
func (l *Linear) InSize() int { return l.inSize }

// OutSize returns the output width.
func (l *Linear) OutSize() int { return l.outSize }

// SetWeight sets a single weight at (row, col).
func (l *Linear) SetWeight(row, col int, val float64) { l.weights.Set(row, col, val) }

// SetBias sets a single bias.
func (l *Linear) SetBias(idx int, val float64) { l.biases[idx] = val }

// LinearEncoder is the hidden-layer composite used in linear layer
// mode: (optional dropout) -> linear -> (optional batch norm) ->
// (optional activation). With a nil activation it degrades to the bare
// projection used for output layers.
type LinearEncoder struct {
	drop *Dropout
	lin  *Linear
	bn   *BatchNorm1D
	act  activations.Activation

	training bool
	savedPre []*mat.Dense // activation inputs
}

// NewLinearEncoder assembles the composite. dropoutProb <= 0 disables
// dropout and batchNorm=false disables normalization.
func NewLinearEncoder(in, out int, act activations.Activation, batchNorm bool, dropoutProb float64, seed int64) *LinearEncoder {
	enc := &LinearEncoder{
		lin: NewLinear(in, out),
		act: act,
	}
	if dropoutProb > 0 {
		enc.drop = NewDropout(dropoutProb, seed)
	}
	if batchNorm {
		enc.bn = NewBatchNorm1D(out)
	}
	return enc
}

// Forward runs the composite stages in order.
func (e *LinearEncoder) Forward(x *mat.Dense) *mat.Dense {
	h := x
	if e.drop != nil {
		h = e.drop.Forward(h)
	}
	h = e.lin.Forward(h)
	if e.bn != nil {
		h = e.bn.Forward(h)
	}
	if e.act != nil {
		if e.training {
			e.savedPre = append(e.savedPre, mat.DenseCopyOf(h))
		}
		h = actForward(e.act, h)
	}
	return h
}

// Backward runs the composite stages in reverse.
func (e *LinearEncoder) Backward(grad *mat.Dense) *mat.Dense {
	g := grad
	if e.act != nil {
		n := len(e.savedPre)
		if n == 0 {
			panic("layer: LinearEncoder.Backward called without a matching Forward")
		}
		pre := e.savedPre[n-1]
		e.savedPre = e.savedPre[:n-1]
		g = actBackward(e.act, pre, g)
	}
	if e.bn != nil {
		g = e.bn.Backward(g)
	}
	g = e.lin.Backward(g)
	if e.drop != nil {
		g = e.drop.Backward(g)
	}
	return g
}

// Params returns linear then batch-norm parameters.
func (e *LinearEncoder) Params() []float64 {
	out := e.lin.Params()
	if e.bn != nil {
		out = append(out, e.bn.Params()...)
	}
	return out
}

// SetParams updates linear then batch-norm parameters.
func (e *LinearEncoder) SetParams(params []float64) {
	n := len(e.lin.Params())
	e.lin.SetParams(params[:n])
	if e.bn != nil {
		e.bn.SetParams(params[n:])
	}
}

// Gradients returns linear then batch-norm gradients.
func (e *LinearEncoder) Gradients() []float64 {
	out := e.lin.Gradients()
	if e.bn != nil {
		out = append(out, e.bn.Gradients()...)
	}
	return out
}

// ZeroGrad clears all accumulated gradients.
func (e *LinearEncoder) ZeroGrad() {
	e.lin.ZeroGrad()
	if e.bn != nil {
		e.bn.ZeroGrad()
	}
}

// SetTraining toggles training mode on every stage.
func (e *LinearEncoder) SetTraining(training bool) {
	e.training = training
	if !training {
		e.savedPre = nil
	}
	if e.drop != nil {
		e.drop.SetTraining(training)
	}
	e.lin.SetTraining(training)
	if e.bn != nil {
		e.bn.SetTraining(training)
	}
}

// WeightTensors exposes the inner linear weights for initialization.
func (e *LinearEncoder) WeightTensors() []WeightTensor {
	return e.lin.WeightTensors()
}

// Linear returns the inner linear layer.
func (e *LinearEncoder) Linear() *Linear { return e.lin }

// OutSize returns the output width.
func (e *LinearEncoder) OutSize() int { return e.lin.OutSize() }
