// Package opt provides optimization algorithms and learning-rate
// schedulers operating on flattened parameter vectors.
package opt

import "math"

// Optimizer updates a flattened parameter vector from its gradients.
type Optimizer interface {
	// Step returns a new slice with updated parameter values.
	Step(params, gradients []float64) []float64

	// StepInPlace updates params in place, avoiding the allocation.
	StepInPlace(params, gradients []float64)

	LearningRate() float64
	SetLearningRate(lr float64)
}

// SGD (Stochastic Gradient Descent) optimizer with optional decoupled
// weight decay.
type SGD struct {
	LR          float64
	WeightDecay float64
}

// Step computes updated parameters: params - lr * gradients.
func (s *SGD) Step(params, gradients []float64) []float64 {
	result := make([]float64, len(params))
	copy(result, params)
	s.StepInPlace(result, gradients)
	return result
}

// StepInPlace updates params in place.
func (s *SGD) StepInPlace(params, gradients []float64) {
	for i := range params {
		params[i] -= s.LR * (gradients[i] + s.WeightDecay*params[i])
	}
}

func (s *SGD) LearningRate() float64      { return s.LR }
func (s *SGD) SetLearningRate(lr float64) { s.LR = lr }

// Adam optimizer with bias-corrected moment estimates and optional
// decoupled weight decay.
type Adam struct {
	LR          float64
	Beta1       float64 // exponential decay rate for the first moment
	Beta2       float64 // exponential decay rate for the second moment
	Epsilon     float64 // small constant for numerical stability
	WeightDecay float64

	step int
	m    []float64 // first moment, lazily sized to the parameter vector
	v    []float64 // second moment
}

// NewAdam creates an Adam optimizer with the usual defaults.
func NewAdam(lr float64) *Adam {
	return &Adam{
		LR:      lr,
		Beta1:   0.9,
		Beta2:   0.999,
		Epsilon: 1e-8,
	}
}

// Step computes updated parameters using Adam.
func (a *Adam) Step(params, gradients []float64) []float64 {
	result := make([]float64, len(params))
	copy(result, params)
	a.StepInPlace(result, gradients)
	return result
}

// StepInPlace updates params in place. The moment vectors are sized on
// first use and must see the same parameter layout on every call.
func (a *Adam) StepInPlace(params, gradients []float64) {
	if a.m == nil {
		a.m = make([]float64, len(params))
		a.v = make([]float64, len(params))
	}
	if len(a.m) != len(params) {
		panic("opt: parameter vector length changed between Adam steps")
	}
	a.step++
	c1 := 1 - math.Pow(a.Beta1, float64(a.step))
	c2 := 1 - math.Pow(a.Beta2, float64(a.step))
	for i := range params {
		g := gradients[i] + a.WeightDecay*params[i]
		a.m[i] = a.Beta1*a.m[i] + (1-a.Beta1)*g
		a.v[i] = a.Beta2*a.v[i] + (1-a.Beta2)*g*g
		mHat := a.m[i] / c1
		vHat := a.v[i] / c2
		params[i] -= a.LR * mHat / (math.Sqrt(vHat) + a.Epsilon)
	}
}

func (a *Adam) LearningRate() float64      { return a.LR }
func (a *Adam) SetLearningRate(lr float64) { a.LR = lr }
