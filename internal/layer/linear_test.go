package layer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/mresende-ds/nhits/internal/activations"
)

// TestLinearForward checks y = x*W^T + b on a hand-computed case.
func TestLinearForward(t *testing.T) {
	l := NewLinear(3, 2)
	// W = [[1 0 2], [0 -1 1]], b = [0.5, -0.5]
	l.SetWeight(0, 0, 1)
	l.SetWeight(0, 2, 2)
	l.SetWeight(1, 1, -1)
	l.SetWeight(1, 2, 1)
	l.SetBias(0, 0.5)
	l.SetBias(1, -0.5)

	x := mat.NewDense(2, 3, []float64{
		1, 2, 3,
		0, 1, -1,
	})
	y := l.Forward(x)

	assert.InDelta(t, 1+6+0.5, y.At(0, 0), 1e-12)
	assert.InDelta(t, -2+3-0.5, y.At(0, 1), 1e-12)
	assert.InDelta(t, -2+0.5, y.At(1, 0), 1e-12)
	assert.InDelta(t, -1-1-0.5, y.At(1, 1), 1e-12)
}

// TestLinearBackwardFiniteDifference compares analytic gradients with
// finite differences of a scalar sum-of-outputs objective.
func TestLinearBackwardFiniteDifference(t *testing.T) {
	const eps = 1e-6
	l := NewLinear(3, 2)
	params := []float64{0.3, -0.2, 0.7, 0.1, 0.5, -0.4, 0.05, -0.05}
	l.SetParams(params)
	l.SetTraining(true)

	x := mat.NewDense(2, 3, []float64{
		0.5, -1.2, 0.8,
		1.5, 0.3, -0.7,
	})

	objective := func() float64 {
		y := l.Forward(x)
		sum := 0.0
		r, c := y.Dims()
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				sum += y.At(i, j)
			}
		}
		// The probe forward pushed a frame we will not backprop.
		l.saved = l.saved[:len(l.saved)-1]
		return sum
	}

	y := l.Forward(x)
	r, c := y.Dims()
	ones := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			ones.Set(i, j, 1)
		}
	}
	dx := l.Backward(ones)
	analytic := l.Gradients()

	for p := range params {
		bumped := make([]float64, len(params))
		copy(bumped, params)
		bumped[p] += eps
		l.SetParams(bumped)
		up := objective()
		bumped[p] -= 2 * eps
		l.SetParams(bumped)
		down := objective()
		l.SetParams(params)

		numeric := (up - down) / (2 * eps)
		assert.InDelta(t, numeric, analytic[p], 1e-4, "param %d", p)
	}

	// dL/dx for a sum objective is the column sums of W.
	for i := 0; i < 2; i++ {
		assert.InDelta(t, 0.3+0.1, dx.At(i, 0), 1e-12)
		assert.InDelta(t, -0.2+0.5, dx.At(i, 1), 1e-12)
		assert.InDelta(t, 0.7-0.4, dx.At(i, 2), 1e-12)
	}
}

// TestLinearGradientAccumulation checks gradients sum across calls
// until ZeroGrad, the contract weight-shared blocks rely on.
func TestLinearGradientAccumulation(t *testing.T) {
	l := NewLinear(2, 1)
	l.SetParams([]float64{1, 1, 0})
	l.SetTraining(true)

	x := mat.NewDense(1, 2, []float64{2, 3})
	g := mat.NewDense(1, 1, []float64{1})

	l.Forward(x)
	l.Forward(x)
	l.Backward(g)
	first := append([]float64(nil), l.Gradients()...)
	l.Backward(g)
	second := l.Gradients()

	for i := range first {
		assert.InDelta(t, 2*first[i], second[i], 1e-12, "grad %d", i)
	}

	l.ZeroGrad()
	for _, v := range l.Gradients() {
		assert.Zero(t, v)
	}
}

// TestLinearEncoderStages checks dropout/batch-norm/activation wiring
// round-trips shapes and that inference mode is deterministic.
func TestLinearEncoderStages(t *testing.T) {
	enc := NewLinearEncoder(4, 3, activations.ReLU{}, true, 0.5, 9)
	enc.SetTraining(false)

	x := mat.NewDense(2, 4, []float64{
		1, 2, 3, 4,
		-1, -2, -3, -4,
	})
	y1 := enc.Forward(x)
	y2 := enc.Forward(x)

	r, c := y1.Dims()
	require.Equal(t, 2, r)
	require.Equal(t, 3, c)
	assert.True(t, mat.EqualApprox(y1, y2, 1e-15))
}

// TestLinearEncoderParamsRoundTrip checks Params/SetParams symmetry
// including the batch-norm tail.
func TestLinearEncoderParamsRoundTrip(t *testing.T) {
	enc := NewLinearEncoder(3, 2, activations.Tanh{}, true, 0, 1)
	params := enc.Params()
	require.Len(t, params, 3*2+2+2*2)

	for i := range params {
		params[i] = float64(i) * 0.1
	}
	enc.SetParams(params)
	assert.Equal(t, params, enc.Params())
}
