package layer

import (
	rng "github.com/leesper/go_rng"
	"gonum.org/v1/gonum/mat"
)

// Dropout implements inverted dropout over batched matrices.
// During training each element is zeroed with probability p and the
// survivors are scaled by 1/(1-p); during inference it is the
// identity. Randomness comes from a generator seeded at construction,
// never from global state.
type Dropout struct {
	p   float64
	gen *rng.UniformGenerator

	training bool
	saved    []*mat.Dense // masks holding 0 or the keep scale
}

// NewDropout creates a dropout layer with drop probability p.
func NewDropout(p float64, seed int64) *Dropout {
	return &Dropout{
		p:   p,
		gen: rng.NewUniformGenerator(seed),
	}
}

// Forward applies a fresh dropout mask in training mode.
func (d *Dropout) Forward(x *mat.Dense) *mat.Dense {
	if !d.training || d.p <= 0 {
		return x
	}
	r, c := x.Dims()
	scale := 1 / (1 - d.p)
	mask := mat.NewDense(r, c, nil)
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if d.gen.Float64() < d.p {
				continue
			}
			mask.Set(i, j, scale)
			out.Set(i, j, x.At(i, j)*scale)
		}
	}
	d.saved = append(d.saved, mask)
	return out
}

// Backward routes gradients through the mask of the matching forward.
func (d *Dropout) Backward(grad *mat.Dense) *mat.Dense {
	if !d.training || d.p <= 0 {
		return grad
	}
	n := len(d.saved)
	if n == 0 {
		panic("layer: Dropout.Backward called without a matching Forward")
	}
	mask := d.saved[n-1]
	d.saved = d.saved[:n-1]

	var out mat.Dense
	out.MulElem(grad, mask)
	return &out
}

// Params returns no parameters; dropout is stateless.
func (d *Dropout) Params() []float64 { return nil }

// SetParams is a no-op.
func (d *Dropout) SetParams(params []float64) {}

// Gradients returns no gradients.
func (d *Dropout) Gradients() []float64 { return nil }

// ZeroGrad is a no-op.
func (d *Dropout) ZeroGrad() {}

// SetTraining toggles mask generation.
func (d *Dropout) SetTraining(training bool) {
	d.training = training
	if !training {
		d.saved = nil
	}
}
