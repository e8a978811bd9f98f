// Package activations provides the activation functions available to
// block hidden layers, selected by name.
package activations

import (
	"math"

	"github.com/pkg/errors"
)

// Activation is a unary nonlinearity with an analytic derivative.
type Activation interface {
	// Activate computes f(x)
	Activate(x float64) float64

	// Derivative computes f'(x)
	Derivative(x float64) float64
}

// Names is the closed set of activation names accepted by FromName.
var Names = []string{"ReLU", "Softplus", "Tanh", "SELU", "LeakyReLU", "PReLU", "Sigmoid", "Sin"}

// FromName resolves an activation by name. "Sin" yields the periodic
// activation sin(30*x) used for block hidden layers. Unknown names are
// configuration errors.
func FromName(name string) (Activation, error) {
	switch name {
	case "ReLU":
		return ReLU{}, nil
	case "Softplus":
		return Softplus{}, nil
	case "Tanh":
		return Tanh{}, nil
	case "SELU":
		return SELU{}, nil
	case "LeakyReLU":
		return NewLeakyReLU(0.01), nil
	case "PReLU":
		return NewPReLU(0.25), nil
	case "Sigmoid":
		return Sigmoid{}, nil
	case "Sin":
		return NewSine(30.0), nil
	}
	return nil, errors.Errorf("activations: %q is not in %v", name, Names)
}

// ReLU activation function.
type ReLU struct{}

// Activate computes max(0, x)
func (r ReLU) Activate(x float64) float64 {
	if x > 0 {
		return x
	}
	return 0
}

// Derivative returns 1 if x > 0, else 0
func (r ReLU) Derivative(x float64) float64 {
	if x > 0 {
		return 1
	}
	return 0
}

// Softplus activation function, a smooth approximation of ReLU.
// PyTorch reference: torch.nn.Softplus()
type Softplus struct{}

// Activate computes log(1 + exp(x))
func (s Softplus) Activate(x float64) float64 {
	// Large inputs saturate to the identity; guards exp overflow.
	if x > 30 {
		return x
	}
	return math.Log1p(math.Exp(x))
}

// Derivative computes sigmoid(x)
func (s Softplus) Derivative(x float64) float64 {
	return sigmoid(x)
}

// Tanh activation function.
type Tanh struct{}

// Activate computes tanh(x)
func (t Tanh) Activate(x float64) float64 {
	return math.Tanh(x)
}

// Derivative computes 1 - tanh(x)^2
func (t Tanh) Derivative(x float64) float64 {
	tanhX := math.Tanh(x)
	return 1 - tanhX*tanhX
}

// SELU activation function.
// PyTorch reference: torch.nn.SELU()
type SELU struct{}

const (
	seluScale = 1.0507009873554805
	seluAlpha = 1.6732632423543772
)

// Activate computes scale*x if x > 0, else scale*alpha*(exp(x)-1)
func (s SELU) Activate(x float64) float64 {
	if x > 0 {
		return seluScale * x
	}
	return seluScale * seluAlpha * (math.Exp(x) - 1)
}

// Derivative returns scale if x > 0, else scale*alpha*exp(x)
func (s SELU) Derivative(x float64) float64 {
	if x > 0 {
		return seluScale
	}
	return seluScale * seluAlpha * math.Exp(x)
}

// LeakyReLU activation function to prevent dying neurons.
// PyTorch reference: torch.nn.LeakyReLU(negative_slope=0.01)
type LeakyReLU struct {
	Alpha float64 // Slope for x <= 0
}

// NewLeakyReLU creates a LeakyReLU with the given alpha value.
func NewLeakyReLU(alpha float64) *LeakyReLU {
	return &LeakyReLU{Alpha: alpha}
}

// Activate computes x if x > 0, else alpha*x
func (l *LeakyReLU) Activate(x float64) float64 {
	if x > 0 {
		return x
	}
	return l.Alpha * x
}

// Derivative returns 1 if x > 0, else alpha
func (l *LeakyReLU) Derivative(x float64) float64 {
	if x > 0 {
		return 1
	}
	return l.Alpha
}

// PReLU (Parametric ReLU) activation function.
// PyTorch reference: torch.nn.PReLU(num_parameters=1)
// The slope is in principle learnable; it is held fixed here since the
// projection chain treats activations as stateless transforms.
type PReLU struct {
	Alpha float64 // Slope for x <= 0
}

// NewPReLU creates a PReLU with the given initial alpha value.
func NewPReLU(alpha float64) *PReLU {
	return &PReLU{Alpha: alpha}
}

// Activate computes x if x > 0, else alpha*x
func (p *PReLU) Activate(x float64) float64 {
	if x > 0 {
		return x
	}
	return p.Alpha * x
}

// Derivative returns 1 if x > 0, else alpha
func (p *PReLU) Derivative(x float64) float64 {
	if x > 0 {
		return 1
	}
	return p.Alpha
}

// Sigmoid activation function.
type Sigmoid struct{}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// Activate computes sigmoid(x)
func (s Sigmoid) Activate(x float64) float64 {
	return sigmoid(x)
}

// Derivative computes sigmoid(x) * (1 - sigmoid(x))
func (s Sigmoid) Derivative(x float64) float64 {
	sigma := sigmoid(x)
	return sigma * (1 - sigma)
}

// Sine is the periodic activation sin(w0*x) from SIREN
// (Sitzmann, Martel et al. 2020).
type Sine struct {
	W0 float64
}

// NewSine creates a Sine activation with the given frequency scale.
func NewSine(w0 float64) *Sine {
	return &Sine{W0: w0}
}

// Activate computes sin(w0*x)
func (s *Sine) Activate(x float64) float64 {
	return math.Sin(s.W0 * x)
}

// Derivative computes w0*cos(w0*x)
func (s *Sine) Derivative(x float64) float64 {
	return s.W0 * math.Cos(s.W0*x)
}
