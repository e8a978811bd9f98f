package loss

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestFromName(t *testing.T) {
	for _, name := range []string{"MAE", "MSE", "RMSE", "MAPE", "SMAPE"} {
		l, err := FromName(name, 0)
		require.NoError(t, err, name)
		require.NotNil(t, l, name)
	}
	_, err := FromName("MASE", 24)
	require.NoError(t, err)
	_, err = FromName("MASE", 0)
	assert.Error(t, err)
	_, err = FromName("Huber", 0)
	assert.Error(t, err)
}

func TestMAEForward(t *testing.T) {
	actual := mat.NewDense(1, 4, []float64{1, 2, 3, 4})
	predicted := mat.NewDense(1, 4, []float64{1, 4, 1, 4})
	mask := mat.NewDense(1, 4, []float64{1, 1, 1, 0})
	// |0| + |2| + |2| + masked, over four positions.
	assert.InDelta(t, 1.0, MAE{}.Forward(actual, predicted, mask, nil), 1e-12)
}

func TestMSEAndRMSE(t *testing.T) {
	actual := mat.NewDense(1, 2, []float64{3, 0})
	predicted := mat.NewDense(1, 2, []float64{0, 4})
	mask := mat.NewDense(1, 2, []float64{1, 1})
	assert.InDelta(t, 12.5, MSE{}.Forward(actual, predicted, mask, nil), 1e-12)
	assert.InDelta(t, 3.5355339059, RMSE{}.Forward(actual, predicted, mask, nil), 1e-9)
}

func TestSMAPERange(t *testing.T) {
	actual := mat.NewDense(1, 2, []float64{1, -1})
	predicted := mat.NewDense(1, 2, []float64{-1, 1})
	mask := mat.NewDense(1, 2, []float64{1, 1})
	// Opposite signs saturate the symmetric error at 2.
	assert.InDelta(t, 2.0, SMAPE{}.Forward(actual, predicted, mask, nil), 1e-12)
}

func TestMAPESkipsZeroTargets(t *testing.T) {
	actual := mat.NewDense(1, 2, []float64{0, 2})
	predicted := mat.NewDense(1, 2, []float64{5, 1})
	mask := mat.NewDense(1, 2, []float64{1, 1})
	assert.InDelta(t, 0.25, MAPE{}.Forward(actual, predicted, mask, nil), 1e-12)
}

func TestMASEUsesSeasonalScale(t *testing.T) {
	insample := mat.NewDense(1, 5, []float64{1, 2, 3, 4, 5})
	actual := mat.NewDense(1, 2, []float64{6, 7})
	predicted := mat.NewDense(1, 2, []float64{7, 9})
	mask := mat.NewDense(1, 2, []float64{1, 1})
	l := MASE{Seasonality: 1}
	// Scale is 1 (unit steps), so the loss is mean(|err|) = 1.5.
	assert.InDelta(t, 1.5, l.Forward(actual, predicted, mask, insample), 1e-12)
}

func TestMASEZeroScale(t *testing.T) {
	insample := mat.NewDense(1, 4, []float64{2, 2, 2, 2})
	actual := mat.NewDense(1, 2, []float64{6, 7})
	predicted := mat.NewDense(1, 2, []float64{7, 9})
	mask := mat.NewDense(1, 2, []float64{1, 1})
	l := MASE{Seasonality: 1}
	assert.Zero(t, l.Forward(actual, predicted, mask, insample))
	grad := l.Backward(actual, predicted, mask, insample)
	assert.True(t, mat.EqualApprox(grad, mat.NewDense(1, 2, nil), 0))
}

// finite-difference check of every gradient implementation.
func TestBackwardFiniteDifference(t *testing.T) {
	insample := mat.NewDense(2, 6, []float64{
		1, 3, 2, 5, 4, 6,
		-2, 1, 0.5, 2, -1, 3,
	})
	actual := mat.NewDense(2, 3, []float64{2, -1, 3, 0.5, 4, -2})
	predicted := mat.NewDense(2, 3, []float64{1.5, -2, 5, 1, 3.5, -1})
	mask := mat.NewDense(2, 3, []float64{1, 0, 1, 1, 1, 0})

	losses := map[string]Loss{
		"MAE":   MAE{},
		"MSE":   MSE{},
		"RMSE":  RMSE{},
		"MAPE":  MAPE{},
		"SMAPE": SMAPE{},
		"MASE":  MASE{Seasonality: 2},
	}
	const eps = 1e-7
	for name, l := range losses {
		t.Run(name, func(t *testing.T) {
			grad := l.Backward(actual, predicted, mask, insample)
			for i := 0; i < 2; i++ {
				for j := 0; j < 3; j++ {
					orig := predicted.At(i, j)
					predicted.Set(i, j, orig+eps)
					up := l.Forward(actual, predicted, mask, insample)
					predicted.Set(i, j, orig-eps)
					down := l.Forward(actual, predicted, mask, insample)
					predicted.Set(i, j, orig)
					assert.InDelta(t, (up-down)/(2*eps), grad.At(i, j), 1e-5,
						"position (%d,%d)", i, j)
				}
			}
		})
	}
}
