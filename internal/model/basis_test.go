package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestParseInterpolation(t *testing.T) {
	base, batch, err := parseInterpolation("nearest")
	require.NoError(t, err)
	assert.Equal(t, "nearest", base)
	assert.Equal(t, 0, batch)

	base, batch, err = parseInterpolation("cubic-32")
	require.NoError(t, err)
	assert.Equal(t, "cubic", base)
	assert.Equal(t, 32, batch)

	for _, mode := range []string{"cubic", "cubic-", "cubic-0", "cubic--4", "bilinear"} {
		_, _, err := parseInterpolation(mode)
		assert.Error(t, err, mode)
	}
}

func TestIdentityBasisNTheta(t *testing.T) {
	b, err := NewIdentityBasis(24, 12, 3, "linear")
	require.NoError(t, err)
	assert.Equal(t, 27, b.NTheta())
}

func TestIdentityBasisSplitsBackcast(t *testing.T) {
	b, err := NewIdentityBasis(3, 4, 2, "nearest")
	require.NoError(t, err)
	theta := mat.NewDense(1, 5, []float64{1, 2, 3, 10, 20})
	backcast, forecast := b.Forward(theta)
	assert.Equal(t, []float64{1, 2, 3}, backcast.RawRowView(0))
	// Two knots over four steps: each knot covers two positions.
	assert.Equal(t, []float64{10, 10, 20, 20}, forecast.RawRowView(0))
}

func TestIdentityBasisNearestFullRateIsIdentity(t *testing.T) {
	const h = 6
	b, err := NewIdentityBasis(2, h, h, "nearest")
	require.NoError(t, err)
	theta := mat.NewDense(1, 2+h, []float64{0, 0, 1, 2, 3, 4, 5, 6})
	_, forecast := b.Forward(theta)
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, forecast.RawRowView(0))
}

func TestIdentityBasisLinearFullRateIsIdentity(t *testing.T) {
	const h = 5
	b, err := NewIdentityBasis(1, h, h, "linear")
	require.NoError(t, err)
	theta := mat.NewDense(1, 1+h, []float64{9, -1, 0.5, 2, 7, 3})
	_, forecast := b.Forward(theta)
	for j, want := range []float64{-1, 0.5, 2, 7, 3} {
		assert.InDelta(t, want, forecast.At(0, j), 1e-12)
	}
}

func TestIdentityBasisLinearInterpolates(t *testing.T) {
	// Two knots expanded to four steps with half-pixel alignment:
	// sources are -0.25, 0.25, 0.75, 1.25, clamped at the edges.
	b, err := NewIdentityBasis(1, 4, 2, "linear")
	require.NoError(t, err)
	theta := mat.NewDense(1, 3, []float64{0, 0, 4})
	_, forecast := b.Forward(theta)
	want := []float64{0, 1, 3, 4}
	for j := range want {
		assert.InDelta(t, want[j], forecast.At(0, j), 1e-12)
	}
}

func TestIdentityBasisCubicPartitionOfUnity(t *testing.T) {
	// Constant knots must expand to the same constant: the kernel
	// weights of every horizon position sum to one.
	b, err := NewIdentityBasis(1, 12, 5, "cubic-8")
	require.NoError(t, err)
	theta := mat.NewDense(1, 6, []float64{0, 3, 3, 3, 3, 3})
	_, forecast := b.Forward(theta)
	for j := 0; j < 12; j++ {
		assert.InDelta(t, 3.0, forecast.At(0, j), 1e-12)
	}
}

func TestIdentityBasisCubicSubBatchInvariance(t *testing.T) {
	small, err := NewIdentityBasis(2, 9, 4, "cubic-2")
	require.NoError(t, err)
	big, err := NewIdentityBasis(2, 9, 4, "cubic-64")
	require.NoError(t, err)

	theta := mat.NewDense(5, 6, nil)
	for i := 0; i < 5; i++ {
		for j := 0; j < 6; j++ {
			theta.Set(i, j, float64(i*7+j)*0.3-2)
		}
	}
	_, fSmall := small.Forward(theta)
	_, fBig := big.Forward(theta)
	assert.True(t, mat.EqualApprox(fSmall, fBig, 1e-12))
}

func TestIdentityBasisBackward(t *testing.T) {
	b, err := NewIdentityBasis(3, 4, 2, "nearest")
	require.NoError(t, err)
	gradBackcast := mat.NewDense(1, 3, []float64{1, 2, 3})
	gradForecast := mat.NewDense(1, 4, []float64{1, 10, 100, 1000})
	gradTheta := b.Backward(gradBackcast, gradForecast)
	// Backcast gradients pass through; each knot collects the
	// gradients of the horizon positions it fed.
	assert.Equal(t, []float64{1, 2, 3, 11, 1100}, gradTheta.RawRowView(0))
}
