package initializers

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// TestNewUnknown checks unrecognized scheme names are rejected.
func TestNewUnknown(t *testing.T) {
	_, err := New("xavier", 1)
	assert.Error(t, err)

	_, err = New("", 1)
	assert.Error(t, err)
}

// TestUniformBounds checks the uniform schemes respect their fan-in
// derived bounds.
func TestUniformBounds(t *testing.T) {
	tests := []struct {
		name  string
		fanIn int
		fanOut int
		bound func(in, out int) float64
	}{
		{"he_uniform", 64, 32, func(in, out int) float64 { return math.Sqrt(6 / float64(in)) }},
		{"Sin", 64, 32, func(in, out int) float64 { return math.Sqrt(6 / float64(in)) }},
		{"glorot_uniform", 48, 16, func(in, out int) float64 { return math.Sqrt(6 / float64(in+out)) }},
	}
	for _, tt := range tests {
		ini, err := New(tt.name, 7)
		require.NoError(t, err)

		data := make([]float64, tt.fanIn*tt.fanOut)
		ini.InitLinear(data, tt.fanIn, tt.fanOut)

		bound := tt.bound(tt.fanIn, tt.fanOut)
		var nonzero int
		for _, v := range data {
			assert.LessOrEqual(t, math.Abs(v), bound, tt.name)
			if v != 0 {
				nonzero++
			}
		}
		assert.Greater(t, nonzero, len(data)/2, tt.name)
	}
}

// TestNormalSpread checks the normal schemes produce roughly the
// requested standard deviation.
func TestNormalSpread(t *testing.T) {
	const fanIn, fanOut = 100, 100
	ini, err := New("he_normal", 11)
	require.NoError(t, err)

	data := make([]float64, fanIn*fanOut)
	ini.InitLinear(data, fanIn, fanOut)

	var sum, sumSq float64
	for _, v := range data {
		sum += v
		sumSq += v * v
	}
	n := float64(len(data))
	mean := sum / n
	std := math.Sqrt(sumSq/n - mean*mean)

	want := math.Sqrt(2 / float64(fanIn))
	assert.InDelta(t, 0, mean, 0.01)
	assert.InDelta(t, want, std, 0.02)
}

// TestLecunNormalSpread checks the 1/fan_in variance scaling.
func TestLecunNormalSpread(t *testing.T) {
	ini, err := New("lecun_normal", 3)
	require.NoError(t, err)

	const fanIn, fanOut = 64, 64
	data := make([]float64, fanIn*fanOut)
	ini.InitLinear(data, fanIn, fanOut)

	variance := 0.0
	for _, v := range data {
		variance += v * v
	}
	variance /= float64(len(data))
	assert.InDelta(t, 1.0/fanIn, variance, 0.02)
}

// TestOrthogonalRows checks that for a wide matrix the rows come out
// orthonormal.
func TestOrthogonalRows(t *testing.T) {
	const fanIn, fanOut = 16, 8
	ini, err := New("orthogonal", 5)
	require.NoError(t, err)

	data := make([]float64, fanIn*fanOut)
	ini.InitLinear(data, fanIn, fanOut)

	w := mat.NewDense(fanOut, fanIn, data)
	var gram mat.Dense
	gram.Mul(w, w.T())

	for i := 0; i < fanOut; i++ {
		for j := 0; j < fanOut; j++ {
			want := 0.0
			if i == j {
				want = 1.0
			}
			assert.InDelta(t, want, gram.At(i, j), 1e-10, "gram[%d,%d]", i, j)
		}
	}
}

// TestSeedReproducibility checks two initializers with the same seed
// produce identical draws.
func TestSeedReproducibility(t *testing.T) {
	a, err := New("glorot_normal", 42)
	require.NoError(t, err)
	b, err := New("glorot_normal", 42)
	require.NoError(t, err)

	da := make([]float64, 64)
	db := make([]float64, 64)
	a.InitLinear(da, 8, 8)
	b.InitLinear(db, 8, 8)
	assert.Equal(t, da, db)
}
