package layer

import (
	rng "github.com/leesper/go_rng"
	"gonum.org/v1/gonum/mat"
)

// PoolOutSize returns the pooled width for the given input width,
// kernel, stride and ceil mode. In ceil mode a partial trailing window
// still produces an output position.
func PoolOutSize(in, kernel, stride int, ceilMode bool) int {
	if ceilMode {
		return (in-kernel+stride-1)/stride + 1
	}
	return (in-kernel)/stride + 1
}

// MaxPool1D takes the maximum over each kernel-sized window.
// With ceil mode enabled the trailing partial window participates,
// so a stride equal to the kernel yields ceil(width/kernel) outputs.
type MaxPool1D struct {
	inSize   int
	outSize  int
	kernel   int
	stride   int
	ceilMode bool

	training bool
	saved    [][]int // argmax column per (row-major) output element
}

// NewMaxPool1D creates a max-pooling layer over the given input width.
func NewMaxPool1D(in, kernel, stride int, ceilMode bool) *MaxPool1D {
	return &MaxPool1D{
		inSize:   in,
		outSize:  PoolOutSize(in, kernel, stride, ceilMode),
		kernel:   kernel,
		stride:   stride,
		ceilMode: ceilMode,
	}
}

// Forward pools each batch row.
func (p *MaxPool1D) Forward(x *mat.Dense) *mat.Dense {
	batch, w := x.Dims()
	if w != p.inSize {
		panic("layer: MaxPool1D input width mismatch")
	}
	out := mat.NewDense(batch, p.outSize, nil)
	var argmax []int
	if p.training {
		argmax = make([]int, batch*p.outSize)
	}
	for b := 0; b < batch; b++ {
		for j := 0; j < p.outSize; j++ {
			start := j * p.stride
			end := start + p.kernel
			if end > w {
				end = w
			}
			best := x.At(b, start)
			bestIdx := start
			for i := start + 1; i < end; i++ {
				if v := x.At(b, i); v > best {
					best = v
					bestIdx = i
				}
			}
			out.Set(b, j, best)
			if p.training {
				argmax[b*p.outSize+j] = bestIdx
			}
		}
	}
	if p.training {
		p.saved = append(p.saved, argmax)
	}
	return out
}

// Backward routes each gradient to the element that won its window.
func (p *MaxPool1D) Backward(grad *mat.Dense) *mat.Dense {
	n := len(p.saved)
	if n == 0 {
		panic("layer: MaxPool1D.Backward called without a matching Forward")
	}
	argmax := p.saved[n-1]
	p.saved = p.saved[:n-1]

	batch, _ := grad.Dims()
	dx := mat.NewDense(batch, p.inSize, nil)
	for b := 0; b < batch; b++ {
		for j := 0; j < p.outSize; j++ {
			idx := argmax[b*p.outSize+j]
			dx.Set(b, idx, dx.At(b, idx)+grad.At(b, j))
		}
	}
	return dx
}

// Params returns no parameters.
func (p *MaxPool1D) Params() []float64 { return nil }

// SetParams is a no-op.
func (p *MaxPool1D) SetParams(params []float64) {}

// Gradients returns no gradients.
func (p *MaxPool1D) Gradients() []float64 { return nil }

// ZeroGrad is a no-op.
func (p *MaxPool1D) ZeroGrad() {}

// SetTraining toggles saving of argmax state.
func (p *MaxPool1D) SetTraining(training bool) {
	p.training = training
	if !training {
		p.saved = nil
	}
}

// OutSize returns the pooled width.
func (p *MaxPool1D) OutSize() int { return p.outSize }

// StochasticPool1D selects one element per non-overlapping window at a
// uniformly random position, a randomized downsampling regularizer.
// The draw order is row-major over (batch, output position), from a
// generator seeded at construction, so runs are reproducible.
type StochasticPool1D struct {
	inSize  int
	outSize int
	kernel  int

	gen *rng.UniformGenerator

	training bool
	saved    [][]int
}

// NewStochasticPool1D creates a stochastic pooling layer with stride
// equal to the kernel and ceil-mode output width.
func NewStochasticPool1D(in, kernel int, seed int64) *StochasticPool1D {
	return &StochasticPool1D{
		inSize:  in,
		outSize: PoolOutSize(in, kernel, kernel, true),
		kernel:  kernel,
		gen:     rng.NewUniformGenerator(seed),
	}
}

// Forward draws one index per window, independently across windows and
// batch rows.
func (p *StochasticPool1D) Forward(x *mat.Dense) *mat.Dense {
	batch, w := x.Dims()
	if w != p.inSize {
		panic("layer: StochasticPool1D input width mismatch")
	}
	out := mat.NewDense(batch, p.outSize, nil)
	var picked []int
	if p.training {
		picked = make([]int, batch*p.outSize)
	}
	for b := 0; b < batch; b++ {
		for j := 0; j < p.outSize; j++ {
			start := j * p.kernel
			span := p.kernel
			if start+span > w {
				span = w - start
			}
			idx := start + int(p.gen.Int32n(int32(span)))
			out.Set(b, j, x.At(b, idx))
			if p.training {
				picked[b*p.outSize+j] = idx
			}
		}
	}
	if p.training {
		p.saved = append(p.saved, picked)
	}
	return out
}

// Backward routes each gradient to the randomly selected element.
func (p *StochasticPool1D) Backward(grad *mat.Dense) *mat.Dense {
	n := len(p.saved)
	if n == 0 {
		panic("layer: StochasticPool1D.Backward called without a matching Forward")
	}
	picked := p.saved[n-1]
	p.saved = p.saved[:n-1]

	batch, _ := grad.Dims()
	dx := mat.NewDense(batch, p.inSize, nil)
	for b := 0; b < batch; b++ {
		for j := 0; j < p.outSize; j++ {
			idx := picked[b*p.outSize+j]
			dx.Set(b, idx, dx.At(b, idx)+grad.At(b, j))
		}
	}
	return dx
}

// Params returns no parameters.
func (p *StochasticPool1D) Params() []float64 { return nil }

// SetParams is a no-op.
func (p *StochasticPool1D) SetParams(params []float64) {}

// Gradients returns no gradients.
func (p *StochasticPool1D) Gradients() []float64 { return nil }

// ZeroGrad is a no-op.
func (p *StochasticPool1D) ZeroGrad() {}

// SetTraining toggles saving of selection state.
func (p *StochasticPool1D) SetTraining(training bool) {
	p.training = training
	if !training {
		p.saved = nil
	}
}

// OutSize returns the pooled width.
func (p *StochasticPool1D) OutSize() int { return p.outSize }
