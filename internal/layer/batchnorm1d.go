package layer

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// BatchNorm1D normalizes each feature column over the batch.
// PyTorch reference: torch.nn.BatchNorm1d(num_features)
type BatchNorm1D struct {
	features int

	gamma []float64
	beta  []float64

	runningMean []float64
	runningVar  []float64
	momentum    float64
	eps         float64

	gradGamma []float64
	gradBeta  []float64

	training bool
	saved    []*bnFrame
}

type bnFrame struct {
	xhat   *mat.Dense
	invStd []float64
}

// NewBatchNorm1D creates a batch-normalization layer over the given
// feature width with gamma=1, beta=0 and unit running variance.
func NewBatchNorm1D(features int) *BatchNorm1D {
	bn := &BatchNorm1D{
		features:    features,
		gamma:       make([]float64, features),
		beta:        make([]float64, features),
		runningMean: make([]float64, features),
		runningVar:  make([]float64, features),
		momentum:    0.1,
		eps:         1e-5,
		gradGamma:   make([]float64, features),
		gradBeta:    make([]float64, features),
	}
	for j := 0; j < features; j++ {
		bn.gamma[j] = 1
		bn.runningVar[j] = 1
	}
	return bn
}

// Forward normalizes with batch statistics in training mode and with
// running statistics in inference mode.
func (bn *BatchNorm1D) Forward(x *mat.Dense) *mat.Dense {
	batch, c := x.Dims()
	if c != bn.features {
		panic("layer: BatchNorm1D feature width mismatch")
	}
	out := mat.NewDense(batch, c, nil)

	if !bn.training {
		for j := 0; j < c; j++ {
			invStd := 1 / math.Sqrt(bn.runningVar[j]+bn.eps)
			for i := 0; i < batch; i++ {
				xhat := (x.At(i, j) - bn.runningMean[j]) * invStd
				out.Set(i, j, bn.gamma[j]*xhat+bn.beta[j])
			}
		}
		return out
	}

	frame := &bnFrame{
		xhat:   mat.NewDense(batch, c, nil),
		invStd: make([]float64, c),
	}
	n := float64(batch)
	for j := 0; j < c; j++ {
		var sum float64
		for i := 0; i < batch; i++ {
			sum += x.At(i, j)
		}
		mean := sum / n

		var ss float64
		for i := 0; i < batch; i++ {
			d := x.At(i, j) - mean
			ss += d * d
		}
		biasedVar := ss / n
		invStd := 1 / math.Sqrt(biasedVar+bn.eps)
		frame.invStd[j] = invStd

		for i := 0; i < batch; i++ {
			xhat := (x.At(i, j) - mean) * invStd
			frame.xhat.Set(i, j, xhat)
			out.Set(i, j, bn.gamma[j]*xhat+bn.beta[j])
		}

		// Running stats track the unbiased variance, as in PyTorch.
		unbiasedVar := biasedVar
		if batch > 1 {
			unbiasedVar = ss / (n - 1)
		}
		bn.runningMean[j] = (1-bn.momentum)*bn.runningMean[j] + bn.momentum*mean
		bn.runningVar[j] = (1-bn.momentum)*bn.runningVar[j] + bn.momentum*unbiasedVar
	}
	bn.saved = append(bn.saved, frame)
	return out
}

// Backward accumulates gamma/beta gradients and returns the gradient
// w.r.t. the input for the matching training forward.
func (bn *BatchNorm1D) Backward(grad *mat.Dense) *mat.Dense {
	nSaved := len(bn.saved)
	if nSaved == 0 {
		panic("layer: BatchNorm1D.Backward called without a matching Forward")
	}
	frame := bn.saved[nSaved-1]
	bn.saved = bn.saved[:nSaved-1]

	batch, c := grad.Dims()
	n := float64(batch)
	out := mat.NewDense(batch, c, nil)

	for j := 0; j < c; j++ {
		var sumDy, sumDyXhat float64
		for i := 0; i < batch; i++ {
			dy := grad.At(i, j)
			sumDy += dy
			sumDyXhat += dy * frame.xhat.At(i, j)
		}
		bn.gradBeta[j] += sumDy
		bn.gradGamma[j] += sumDyXhat

		k := bn.gamma[j] * frame.invStd[j]
		meanDy := sumDy / n
		meanDyXhat := sumDyXhat / n
		for i := 0; i < batch; i++ {
			dx := k * (grad.At(i, j) - meanDy - frame.xhat.At(i, j)*meanDyXhat)
			out.Set(i, j, dx)
		}
	}
	return out
}

// Params returns gamma then beta.
func (bn *BatchNorm1D) Params() []float64 {
	out := make([]float64, 0, 2*bn.features)
	out = append(out, bn.gamma...)
	out = append(out, bn.beta...)
	return out
}

// SetParams updates gamma then beta.
func (bn *BatchNorm1D) SetParams(params []float64) {
	copy(bn.gamma, params[:bn.features])
	copy(bn.beta, params[bn.features:2*bn.features])
}

// Gradients returns gamma then beta gradients.
func (bn *BatchNorm1D) Gradients() []float64 {
	out := make([]float64, 0, 2*bn.features)
	out = append(out, bn.gradGamma...)
	out = append(out, bn.gradBeta...)
	return out
}

// ZeroGrad clears the accumulated gradients.
func (bn *BatchNorm1D) ZeroGrad() {
	zero(bn.gradGamma)
	zero(bn.gradBeta)
}

// SetTraining toggles between batch and running statistics.
func (bn *BatchNorm1D) SetTraining(training bool) {
	bn.training = training
	if !training {
		bn.saved = nil
	}
}
