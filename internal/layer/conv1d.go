package layer

import (
	"gonum.org/v1/gonum/mat"

	"github.com/mresende-ds/nhits/internal/activations"
)

// DeriveDownsample derives the kernel, stride and actual output width
// for mapping wIn down to wOut with a strided convolution. When the
// width ratio is at least 2 the kernel equals the stride and the
// actual width may undershoot wOut; the caller reconciles the slack.
// Otherwise the kernel is chosen so the mapping is exact.
func DeriveDownsample(wIn, wOut int) (kernel, stride, actual int) {
	if wIn/wOut >= 2 {
		kernel = wIn / wOut
		stride = kernel
		actual = (wIn-kernel)/stride + 1
		return kernel, stride, actual
	}
	kernel = wIn - wOut + 1
	return kernel, 1, wOut
}

// DeriveUpsample derives the kernel, stride and actual output width
// for mapping wIn up to wOut with a transposed convolution. When the
// width ratio is at least 2 the result is kernel*wIn, which may
// overshoot wOut; the caller reconciles the slack.
func DeriveUpsample(wIn, wOut int) (kernel, stride, actual int) {
	if wOut/wIn >= 2 {
		kernel = wOut / wIn
		stride = kernel
		actual = kernel * wIn
		return kernel, stride, actual
	}
	kernel = wOut - wIn + 1
	return kernel, 1, wOut
}

// Conv1D is a single-channel 1-D convolution over the width dimension.
type Conv1D struct {
	inSize  int
	outSize int
	kernel  int
	stride  int

	weights []float64 // kernel taps
	bias    float64

	gradW []float64
	gradB float64

	training bool
	saved    []*mat.Dense
}

// NewConv1D creates a strided single-channel convolution mapping
// width in to (in-kernel)/stride + 1.
func NewConv1D(in, kernel, stride int) *Conv1D {
	return &Conv1D{
		inSize:  in,
		outSize: (in-kernel)/stride + 1,
		kernel:  kernel,
		stride:  stride,
		weights: make([]float64, kernel),
		gradW:   make([]float64, kernel),
	}
}

// Forward convolves each batch row.
func (c *Conv1D) Forward(x *mat.Dense) *mat.Dense {
	batch, w := x.Dims()
	if w != c.inSize {
		panic("layer: Conv1D input width mismatch")
	}
	out := mat.NewDense(batch, c.outSize, nil)
	for b := 0; b < batch; b++ {
		for j := 0; j < c.outSize; j++ {
			sum := c.bias
			base := j * c.stride
			for i := 0; i < c.kernel; i++ {
				sum += c.weights[i] * x.At(b, base+i)
			}
			out.Set(b, j, sum)
		}
	}
	if c.training {
		c.saved = append(c.saved, mat.DenseCopyOf(x))
	}
	return out
}

// Backward accumulates kernel gradients and returns the input gradient.
func (c *Conv1D) Backward(grad *mat.Dense) *mat.Dense {
	n := len(c.saved)
	if n == 0 {
		panic("layer: Conv1D.Backward called without a matching Forward")
	}
	x := c.saved[n-1]
	c.saved = c.saved[:n-1]

	batch, _ := grad.Dims()
	dx := mat.NewDense(batch, c.inSize, nil)
	for b := 0; b < batch; b++ {
		for j := 0; j < c.outSize; j++ {
			g := grad.At(b, j)
			base := j * c.stride
			c.gradB += g
			for i := 0; i < c.kernel; i++ {
				c.gradW[i] += g * x.At(b, base+i)
				dx.Set(b, base+i, dx.At(b, base+i)+c.weights[i]*g)
			}
		}
	}
	return dx
}

// Params returns kernel taps then the bias.
func (c *Conv1D) Params() []float64 {
	out := make([]float64, 0, c.kernel+1)
	out = append(out, c.weights...)
	return append(out, c.bias)
}

// SetParams updates kernel taps then the bias.
func (c *Conv1D) SetParams(params []float64) {
	copy(c.weights, params[:c.kernel])
	c.bias = params[c.kernel]
}

// Gradients returns kernel then bias gradients.
func (c *Conv1D) Gradients() []float64 {
	out := make([]float64, 0, c.kernel+1)
	out = append(out, c.gradW...)
	return append(out, c.gradB)
}

// ZeroGrad clears the accumulated gradients.
func (c *Conv1D) ZeroGrad() {
	zero(c.gradW)
	c.gradB = 0
}

// SetTraining toggles saving of backward state.
func (c *Conv1D) SetTraining(training bool) {
	c.training = training
	if !training {
		c.saved = nil
	}
}

// WeightTensors exposes the kernel for initialization.
func (c *Conv1D) WeightTensors() []WeightTensor {
	return []WeightTensor{{Kind: KindConv, Data: c.weights, FanIn: c.kernel, FanOut: 1}}
}

// OutSize returns the output width.
func (c *Conv1D) OutSize() int { return c.outSize }

// ConvTranspose1D is a single-channel transposed 1-D convolution
// mapping width in to (in-1)*stride + kernel.
type ConvTranspose1D struct {
	inSize  int
	outSize int
	kernel  int
	stride  int

	weights []float64
	bias    float64

	gradW []float64
	gradB float64

	training bool
	saved    []*mat.Dense
}

// NewConvTranspose1D creates a transposed convolution for upsampling.
func NewConvTranspose1D(in, kernel, stride int) *ConvTranspose1D {
	return &ConvTranspose1D{
		inSize:  in,
		outSize: (in-1)*stride + kernel,
		kernel:  kernel,
		stride:  stride,
		weights: make([]float64, kernel),
		gradW:   make([]float64, kernel),
	}
}

// Forward scatters each input position through the kernel.
func (c *ConvTranspose1D) Forward(x *mat.Dense) *mat.Dense {
	batch, w := x.Dims()
	if w != c.inSize {
		panic("layer: ConvTranspose1D input width mismatch")
	}
	out := mat.NewDense(batch, c.outSize, nil)
	for b := 0; b < batch; b++ {
		for j := 0; j < c.inSize; j++ {
			v := x.At(b, j)
			base := j * c.stride
			for i := 0; i < c.kernel; i++ {
				out.Set(b, base+i, out.At(b, base+i)+c.weights[i]*v)
			}
		}
		for j := 0; j < c.outSize; j++ {
			out.Set(b, j, out.At(b, j)+c.bias)
		}
	}
	if c.training {
		c.saved = append(c.saved, mat.DenseCopyOf(x))
	}
	return out
}

// Backward accumulates kernel gradients and returns the input gradient.
func (c *ConvTranspose1D) Backward(grad *mat.Dense) *mat.Dense {
	n := len(c.saved)
	if n == 0 {
		panic("layer: ConvTranspose1D.Backward called without a matching Forward")
	}
	x := c.saved[n-1]
	c.saved = c.saved[:n-1]

	batch, _ := grad.Dims()
	dx := mat.NewDense(batch, c.inSize, nil)
	for b := 0; b < batch; b++ {
		for j := 0; j < c.outSize; j++ {
			c.gradB += grad.At(b, j)
		}
		for j := 0; j < c.inSize; j++ {
			base := j * c.stride
			sum := 0.0
			for i := 0; i < c.kernel; i++ {
				g := grad.At(b, base+i)
				c.gradW[i] += g * x.At(b, j)
				sum += c.weights[i] * g
			}
			dx.Set(b, j, sum)
		}
	}
	return dx
}

// Params returns kernel taps then the bias.
func (c *ConvTranspose1D) Params() []float64 {
	out := make([]float64, 0, c.kernel+1)
	out = append(out, c.weights...)
	return append(out, c.bias)
}

// SetParams updates kernel taps then the bias.
func (c *ConvTranspose1D) SetParams(params []float64) {
	copy(c.weights, params[:c.kernel])
	c.bias = params[c.kernel]
}

// Gradients returns kernel then bias gradients.
func (c *ConvTranspose1D) Gradients() []float64 {
	out := make([]float64, 0, c.kernel+1)
	out = append(out, c.gradW...)
	return append(out, c.gradB)
}

// ZeroGrad clears the accumulated gradients.
func (c *ConvTranspose1D) ZeroGrad() {
	zero(c.gradW)
	c.gradB = 0
}

// SetTraining toggles saving of backward state.
func (c *ConvTranspose1D) SetTraining(training bool) {
	c.training = training
	if !training {
		c.saved = nil
	}
}

// WeightTensors exposes the kernel for initialization.
func (c *ConvTranspose1D) WeightTensors() []WeightTensor {
	return []WeightTensor{{Kind: KindConvTranspose, Data: c.weights, FanIn: c.kernel, FanOut: 1}}
}

// OutSize returns the output width.
func (c *ConvTranspose1D) OutSize() int { return c.outSize }

// convEncoder is the shared composite behind the down- and up-sample
// encoders: convolution, then batch norm and the block activation
// together, or neither when the encoder is a pure width adapter.
type convEncoder struct {
	conv Layer
	bn   *BatchNorm1D
	act  activations.Activation

	outSize  int
	training bool
	savedPre []*mat.Dense
}

func newConvEncoder(conv Layer, outSize int, act activations.Activation) *convEncoder {
	enc := &convEncoder{conv: conv, act: act, outSize: outSize}
	if act != nil {
		enc.bn = NewBatchNorm1D(outSize)
	}
	return enc
}

func (e *convEncoder) Forward(x *mat.Dense) *mat.Dense {
	h := e.conv.Forward(x)
	if e.act != nil {
		h = e.bn.Forward(h)
		if e.training {
			e.savedPre = append(e.savedPre, mat.DenseCopyOf(h))
		}
		h = actForward(e.act, h)
	}
	return h
}

func (e *convEncoder) Backward(grad *mat.Dense) *mat.Dense {
	g := grad
	if e.act != nil {
		n := len(e.savedPre)
		if n == 0 {
			panic("layer: conv encoder Backward called without a matching Forward")
		}
		pre := e.savedPre[n-1]
		e.savedPre = e.savedPre[:n-1]
		g = actBackward(e.act, pre, g)
		g = e.bn.Backward(g)
	}
	return e.conv.Backward(g)
}

func (e *convEncoder) Params() []float64 {
	out := e.conv.Params()
	if e.bn != nil {
		out = append(out, e.bn.Params()...)
	}
	return out
}

func (e *convEncoder) SetParams(params []float64) {
	n := len(e.conv.Params())
	e.conv.SetParams(params[:n])
	if e.bn != nil {
		e.bn.SetParams(params[n:])
	}
}

func (e *convEncoder) Gradients() []float64 {
	out := e.conv.Gradients()
	if e.bn != nil {
		out = append(out, e.bn.Gradients()...)
	}
	return out
}

func (e *convEncoder) ZeroGrad() {
	e.conv.ZeroGrad()
	if e.bn != nil {
		e.bn.ZeroGrad()
	}
}

func (e *convEncoder) SetTraining(training bool) {
	e.training = training
	if !training {
		e.savedPre = nil
	}
	e.conv.SetTraining(training)
	if e.bn != nil {
		e.bn.SetTraining(training)
	}
}

func (e *convEncoder) WeightTensors() []WeightTensor {
	return e.conv.(Initializable).WeightTensors()
}

// OutSize returns the output width.
func (e *convEncoder) OutSize() int { return e.outSize }

// DownSampleEncoder reconciles a wider layer onto a narrower one with
// a strided convolution (see DeriveDownsample for the kernel policy).
type DownSampleEncoder struct {
	*convEncoder
}

// NewDownSampleEncoder creates a down-sample encoder over inWidth with
// the given derived kernel and stride. A nil activation makes it a
// pure width adapter with no normalization.
func NewDownSampleEncoder(inWidth, kernel, stride, outWidth int, act activations.Activation) *DownSampleEncoder {
	return &DownSampleEncoder{newConvEncoder(NewConv1D(inWidth, kernel, stride), outWidth, act)}
}

// UpSampleEncoder reconciles a narrower layer onto a wider one with a
// transposed convolution (see DeriveUpsample for the kernel policy).
type UpSampleEncoder struct {
	*convEncoder
}

// NewUpSampleEncoder creates an up-sample encoder over inWidth with
// the given derived kernel and stride. A nil activation makes it a
// pure width adapter with no normalization.
func NewUpSampleEncoder(inWidth, kernel, stride, outWidth int, act activations.Activation) *UpSampleEncoder {
	return &UpSampleEncoder{newConvEncoder(NewConvTranspose1D(inWidth, kernel, stride), outWidth, act)}
}
