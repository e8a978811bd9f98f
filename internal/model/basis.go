package model

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// IdentityBasis splits a coefficient vector into a direct backcast and
// a low-rate forecast that is interpolated up to the full horizon.
//
// The interpolation is input-independent, so it is precomputed once as
// a knots-by-horizon weight matrix; the forward pass is then a single
// matrix product and the backward pass its transpose.
type IdentityBasis struct {
	backcastSize int
	forecastSize int
	knots        int

	mode       string
	cubicBatch int

	// weights maps knot values to horizon positions, knots x forecastSize.
	weights *mat.Dense
}

// NewIdentityBasis builds the basis for the given backcast length,
// horizon and number of interpolation knots.
func NewIdentityBasis(backcastSize, forecastSize, knots int, interpolationMode string) (*IdentityBasis, error) {
	base, cubicBatch, err := parseInterpolation(interpolationMode)
	if err != nil {
		return nil, err
	}
	b := &IdentityBasis{
		backcastSize: backcastSize,
		forecastSize: forecastSize,
		knots:        knots,
		mode:         base,
		cubicBatch:   cubicBatch,
		weights:      mat.NewDense(knots, forecastSize, nil),
	}
	switch base {
	case "nearest":
		b.fillNearest()
	case "linear":
		b.fillLinear()
	case "cubic":
		b.fillCubic()
	}
	return b, nil
}

// NTheta is the coefficient width this basis consumes.
func (b *IdentityBasis) NTheta() int { return b.backcastSize + b.knots }

func (b *IdentityBasis) fillNearest() {
	for j := 0; j < b.forecastSize; j++ {
		src := j * b.knots / b.forecastSize
		if src > b.knots-1 {
			src = b.knots - 1
		}
		b.weights.Set(src, j, 1)
	}
}

// sourcePosition maps a horizon index to fractional knot coordinates
// using half-pixel alignment, so knot centers line up with the centers
// of the horizon segments they cover.
func (b *IdentityBasis) sourcePosition(j int) float64 {
	scale := float64(b.knots) / float64(b.forecastSize)
	return (float64(j)+0.5)*scale - 0.5
}

func (b *IdentityBasis) fillLinear() {
	for j := 0; j < b.forecastSize; j++ {
		src := b.sourcePosition(j)
		if src < 0 {
			src = 0
		}
		if src > float64(b.knots-1) {
			src = float64(b.knots - 1)
		}
		i0 := int(math.Floor(src))
		t := src - float64(i0)
		i1 := i0 + 1
		if i1 > b.knots-1 {
			i1 = b.knots - 1
		}
		b.weights.Set(i0, j, b.weights.At(i0, j)+1-t)
		b.weights.Set(i1, j, b.weights.At(i1, j)+t)
	}
}

// cubicKernel is the Keys convolution kernel with a = -0.75.
func cubicKernel(x float64) float64 {
	const a = -0.75
	x = math.Abs(x)
	switch {
	case x <= 1:
		return (a+2)*x*x*x - (a+3)*x*x + 1
	case x < 2:
		return a * (x*x*x - 5*x*x + 8*x - 4)
	}
	return 0
}

func (b *IdentityBasis) fillCubic() {
	for j := 0; j < b.forecastSize; j++ {
		src := b.sourcePosition(j)
		i0 := int(math.Floor(src))
		t := src - float64(i0)
		for m := -1; m <= 2; m++ {
			idx := i0 + m
			if idx < 0 {
				idx = 0
			}
			if idx > b.knots-1 {
				idx = b.knots - 1
			}
			w := cubicKernel(t - float64(m))
			b.weights.Set(idx, j, b.weights.At(idx, j)+w)
		}
	}
}

// Forward splits theta into its backcast and knot halves and expands
// the knots to the full horizon. theta must be batch x NTheta().
func (b *IdentityBasis) Forward(theta *mat.Dense) (backcast, forecast *mat.Dense) {
	rows, cols := theta.Dims()
	if cols != b.NTheta() {
		panic("model: basis coefficient width mismatch")
	}
	backcast = mat.NewDense(rows, b.backcastSize, nil)
	backcast.Copy(theta.Slice(0, rows, 0, b.backcastSize))

	knots := theta.Slice(0, rows, b.backcastSize, b.backcastSize+b.knots).(*mat.Dense)
	forecast = mat.NewDense(rows, b.forecastSize, nil)
	if b.mode == "cubic" {
		// Cubic expansion runs in fixed-size row batches. The weights
		// are shared, so the result is identical to a single product.
		for r0 := 0; r0 < rows; r0 += b.cubicBatch {
			r1 := r0 + b.cubicBatch
			if r1 > rows {
				r1 = rows
			}
			out := forecast.Slice(r0, r1, 0, b.forecastSize).(*mat.Dense)
			out.Mul(knots.Slice(r0, r1, 0, b.knots), b.weights)
		}
		return backcast, forecast
	}
	forecast.Mul(knots, b.weights)
	return backcast, forecast
}

// Backward maps gradients on the backcast and forecast back to a
// gradient on the coefficient vector.
func (b *IdentityBasis) Backward(gradBackcast, gradForecast *mat.Dense) *mat.Dense {
	rows, _ := gradForecast.Dims()
	gradTheta := mat.NewDense(rows, b.NTheta(), nil)
	gradTheta.Slice(0, rows, 0, b.backcastSize).(*mat.Dense).Copy(gradBackcast)
	gradKnots := gradTheta.Slice(0, rows, b.backcastSize, b.backcastSize+b.knots).(*mat.Dense)
	gradKnots.Mul(gradForecast, b.weights.T())
	return gradTheta
}
