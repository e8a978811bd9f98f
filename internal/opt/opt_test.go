package opt

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSGDStep(t *testing.T) {
	s := &SGD{LR: 0.1}
	params := []float64{1, 2, 3}
	grads := []float64{1, -1, 0.5}
	updated := s.Step(params, grads)
	assert.InDeltaSlice(t, []float64{0.9, 2.1, 2.95}, updated, 1e-12)
	// Step must not mutate its input.
	assert.Equal(t, []float64{1, 2, 3}, params)
}

func TestSGDWeightDecay(t *testing.T) {
	s := &SGD{LR: 0.1, WeightDecay: 0.5}
	updated := s.Step([]float64{2}, []float64{0})
	assert.InDelta(t, 1.9, updated[0], 1e-12)
}

func TestAdamFirstStepIsSignedLR(t *testing.T) {
	// With bias correction the very first update is lr * sign(grad),
	// up to epsilon.
	a := NewAdam(0.01)
	updated := a.Step([]float64{0, 0}, []float64{3, -0.2})
	assert.InDelta(t, -0.01, updated[0], 1e-6)
	assert.InDelta(t, 0.01, updated[1], 1e-6)
}

func TestAdamConverges(t *testing.T) {
	// Minimize f(x) = (x-3)^2 from zero.
	a := NewAdam(0.1)
	x := []float64{0}
	for i := 0; i < 500; i++ {
		grad := []float64{2 * (x[0] - 3)}
		a.StepInPlace(x, grad)
	}
	assert.InDelta(t, 3.0, x[0], 1e-2)
}

func TestAdamRejectsResizedParams(t *testing.T) {
	a := NewAdam(0.1)
	a.StepInPlace([]float64{1, 2}, []float64{0, 0})
	assert.Panics(t, func() {
		a.StepInPlace([]float64{1}, []float64{0})
	})
}

func TestStepLR(t *testing.T) {
	s := &SGD{LR: 1.0}
	sched := NewStepLR(s, 2, 0.5)
	require.InDelta(t, 1.0, sched.GetLR(), 1e-12)

	sched.Step()
	assert.InDelta(t, 1.0, sched.GetLR(), 1e-12)
	sched.Step()
	assert.InDelta(t, 0.5, sched.GetLR(), 1e-12)
	sched.Step()
	sched.Step()
	assert.InDelta(t, 0.25, sched.GetLR(), 1e-12)
}

func TestAdamMomentsDampOscillation(t *testing.T) {
	// Alternating gradients should produce smaller net movement than
	// the same magnitude applied consistently.
	osc := NewAdam(0.1)
	xOsc := []float64{0}
	for i := 0; i < 20; i++ {
		g := 1.0
		if i%2 == 1 {
			g = -1.0
		}
		osc.StepInPlace(xOsc, []float64{g})
	}
	steady := NewAdam(0.1)
	xSteady := []float64{0}
	for i := 0; i < 20; i++ {
		steady.StepInPlace(xSteady, []float64{1.0})
	}
	assert.Less(t, math.Abs(xOsc[0]), math.Abs(xSteady[0]))
}
