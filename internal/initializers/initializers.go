// Package initializers provides weight-initialization strategies
// selected by name. All randomness comes from explicitly seeded
// generators so that construction is reproducible.
package initializers

import (
	"math"

	rng "github.com/leesper/go_rng"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Names is the closed set of initialization names accepted by New.
var Names = []string{"orthogonal", "he_uniform", "he_normal", "glorot_uniform", "glorot_normal", "Sin", "lecun_normal"}

// Initializer fills weight tensors in place according to a named
// fan-in/fan-out-aware scheme.
type Initializer struct {
	name  string
	uni   *rng.UniformGenerator
	gauss *rng.GaussianGenerator
}

// New creates an Initializer for the given scheme name, drawing from
// generators seeded with seed. Unknown names are configuration errors.
func New(name string, seed int64) (*Initializer, error) {
	known := false
	for _, n := range Names {
		if n == name {
			known = true
			break
		}
	}
	if !known {
		return nil, errors.Errorf("initializers: %q is not in %v", name, Names)
	}
	return &Initializer{
		name:  name,
		uni:   rng.NewUniformGenerator(seed),
		gauss: rng.NewGaussianGenerator(seed + 1),
	}, nil
}

// Name returns the scheme name.
func (in *Initializer) Name() string { return in.name }

// InitLinear fills a linear weight tensor (row-major, fanOut x fanIn)
// using the named scheme.
func (in *Initializer) InitLinear(data []float64, fanIn, fanOut int) {
	switch in.name {
	case "orthogonal":
		in.orthogonal(data, fanIn, fanOut)
	case "he_uniform":
		in.uniform(data, math.Sqrt(6/float64(fanIn)))
	case "he_normal":
		in.normal(data, math.Sqrt(2/float64(fanIn)))
	case "glorot_uniform":
		in.uniform(data, math.Sqrt(6/float64(fanIn+fanOut)))
	case "glorot_normal":
		in.normal(data, math.Sqrt(2/float64(fanIn+fanOut)))
	case "Sin":
		// Siren periodic-uniform scheme: U(-sqrt(c/fan_in), +sqrt(c/fan_in)), c=6.
		in.uniform(data, math.Sqrt(6/float64(fanIn)))
	case "lecun_normal":
		in.normal(data, math.Sqrt(1/float64(fanIn)))
	}
}

// InitConv fills a convolution kernel using the He uniform scheme,
// independently of the configured name; convolutional weights always
// use the ReLU-gain initialization.
func (in *Initializer) InitConv(data []float64, fanIn int) {
	in.uniform(data, math.Sqrt(6/float64(fanIn)))
}

func (in *Initializer) uniform(data []float64, bound float64) {
	for i := range data {
		data[i] = in.uni.Float64Range(-bound, bound)
	}
}

func (in *Initializer) normal(data []float64, std float64) {
	for i := range data {
		data[i] = in.gauss.Gaussian(0, std)
	}
}

// orthogonal fills data (fanOut x fanIn, row-major) so that the smaller
// dimension is orthonormal, via the QR decomposition of a Gaussian
// matrix with R's diagonal signs absorbed into Q.
func (in *Initializer) orthogonal(data []float64, fanIn, fanOut int) {
	r, c := fanOut, fanIn
	transposed := false
	if r < c {
		r, c = c, r
		transposed = true
	}

	a := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			a.Set(i, j, in.gauss.Gaussian(0, 1))
		}
	}

	var qr mat.QR
	qr.Factorize(a)
	var q, rm mat.Dense
	qr.QTo(&q)
	qr.RTo(&rm)

	// Thin Q with sign correction keeps the distribution uniform over
	// orthogonal matrices.
	for j := 0; j < c; j++ {
		if rm.At(j, j) < 0 {
			for i := 0; i < r; i++ {
				q.Set(i, j, -q.At(i, j))
			}
		}
	}

	for i := 0; i < fanOut; i++ {
		for j := 0; j < fanIn; j++ {
			if transposed {
				data[i*fanIn+j] = q.At(j, i)
			} else {
				data[i*fanIn+j] = q.At(i, j)
			}
		}
	}
}
