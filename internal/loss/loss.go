// Package loss provides the masked forecasting losses consumed by the
// trainer. Every loss takes the outsample targets, the predictions,
// the outsample mask and the insample targets (used only by scaled
// losses) and reduces to one scalar by averaging over every element.
package loss

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Loss pairs a scalar objective with its gradient on the predictions.
// Masked-out positions contribute neither value nor gradient.
type Loss interface {
	Forward(actual, predicted, mask, insampleActual *mat.Dense) float64
	Backward(actual, predicted, mask, insampleActual *mat.Dense) *mat.Dense
}

// Names lists the supported losses.
var Names = []string{"MAE", "MSE", "RMSE", "MAPE", "SMAPE", "MASE"}

// FromName resolves a loss by name. seasonality is only consumed by
// MASE, where it is the lag of the scaling naive forecast.
func FromName(name string, seasonality int) (Loss, error) {
	switch name {
	case "MAE":
		return MAE{}, nil
	case "MSE":
		return MSE{}, nil
	case "RMSE":
		return RMSE{}, nil
	case "MAPE":
		return MAPE{}, nil
	case "SMAPE":
		return SMAPE{}, nil
	case "MASE":
		if seasonality <= 0 {
			return nil, errors.Errorf("loss: MASE needs a positive seasonality, got %d", seasonality)
		}
		return MASE{Seasonality: seasonality}, nil
	}
	return nil, errors.Errorf("loss: %q not found", name)
}

func sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	}
	return 0
}

// MAE is the masked mean absolute error.
type MAE struct{}

func (MAE) Forward(actual, predicted, mask, _ *mat.Dense) float64 {
	r, c := actual.Dims()
	total := 0.0
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			total += math.Abs(actual.At(i, j)-predicted.At(i, j)) * mask.At(i, j)
		}
	}
	return total / float64(r*c)
}

func (MAE) Backward(actual, predicted, mask, _ *mat.Dense) *mat.Dense {
	r, c := actual.Dims()
	grad := mat.NewDense(r, c, nil)
	n := float64(r * c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			grad.Set(i, j, -sign(actual.At(i, j)-predicted.At(i, j))*mask.At(i, j)/n)
		}
	}
	return grad
}

// MSE is the masked mean squared error.
type MSE struct{}

func (MSE) Forward(actual, predicted, mask, _ *mat.Dense) float64 {
	r, c := actual.Dims()
	total := 0.0
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			d := actual.At(i, j) - predicted.At(i, j)
			total += d * d * mask.At(i, j)
		}
	}
	return total / float64(r*c)
}

func (MSE) Backward(actual, predicted, mask, _ *mat.Dense) *mat.Dense {
	r, c := actual.Dims()
	grad := mat.NewDense(r, c, nil)
	n := float64(r * c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			d := actual.At(i, j) - predicted.At(i, j)
			grad.Set(i, j, -2*d*mask.At(i, j)/n)
		}
	}
	return grad
}

// RMSE is the square root of the masked mean squared error.
type RMSE struct{}

func (RMSE) Forward(actual, predicted, mask, insample *mat.Dense) float64 {
	return math.Sqrt(MSE{}.Forward(actual, predicted, mask, insample))
}

func (l RMSE) Backward(actual, predicted, mask, insample *mat.Dense) *mat.Dense {
	root := l.Forward(actual, predicted, mask, insample)
	grad := MSE{}.Backward(actual, predicted, mask, insample)
	if root == 0 {
		grad.Zero()
		return grad
	}
	grad.Scale(1/(2*root), grad)
	return grad
}

// MAPE is the masked mean absolute percentage error. Positions where
// the target is zero are skipped instead of dividing by zero.
type MAPE struct{}

func (MAPE) Forward(actual, predicted, mask, _ *mat.Dense) float64 {
	r, c := actual.Dims()
	total := 0.0
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			y := actual.At(i, j)
			if y == 0 {
				continue
			}
			total += math.Abs(y-predicted.At(i, j)) / math.Abs(y) * mask.At(i, j)
		}
	}
	return total / float64(r*c)
}

func (MAPE) Backward(actual, predicted, mask, _ *mat.Dense) *mat.Dense {
	r, c := actual.Dims()
	grad := mat.NewDense(r, c, nil)
	n := float64(r * c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			y := actual.At(i, j)
			if y == 0 {
				continue
			}
			grad.Set(i, j, -sign(y-predicted.At(i, j))*mask.At(i, j)/(math.Abs(y)*n))
		}
	}
	return grad
}

// SMAPE is the masked symmetric mean absolute percentage error on the
// [0,2] scale.
type SMAPE struct{}

func (SMAPE) Forward(actual, predicted, mask, _ *mat.Dense) float64 {
	r, c := actual.Dims()
	total := 0.0
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			y, yh := actual.At(i, j), predicted.At(i, j)
			scale := math.Abs(y) + math.Abs(yh)
			if scale == 0 {
				continue
			}
			total += math.Abs(y-yh) / scale * mask.At(i, j)
		}
	}
	return 2 * total / float64(r*c)
}

func (SMAPE) Backward(actual, predicted, mask, _ *mat.Dense) *mat.Dense {
	r, c := actual.Dims()
	grad := mat.NewDense(r, c, nil)
	n := float64(r * c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			y, yh := actual.At(i, j), predicted.At(i, j)
			scale := math.Abs(y) + math.Abs(yh)
			if scale == 0 {
				continue
			}
			delta := math.Abs(y - yh)
			d := (-sign(y-yh)*scale - delta*sign(yh)) / (scale * scale)
			grad.Set(i, j, 2*d*mask.At(i, j)/n)
		}
	}
	return grad
}

// MASE scales the absolute error of each series by the in-window mean
// absolute error of a seasonal naive forecast over its insample
// window. This is the loss that consumes the insample targets.
type MASE struct {
	Seasonality int
}

// scales returns the per-row seasonal naive scale.
func (l MASE) scales(insample *mat.Dense) []float64 {
	r, c := insample.Dims()
	out := make([]float64, r)
	if c <= l.Seasonality {
		return out
	}
	for i := 0; i < r; i++ {
		total := 0.0
		for j := l.Seasonality; j < c; j++ {
			total += math.Abs(insample.At(i, j) - insample.At(i, j-l.Seasonality))
		}
		out[i] = total / float64(c-l.Seasonality)
	}
	return out
}

func (l MASE) Forward(actual, predicted, mask, insample *mat.Dense) float64 {
	scales := l.scales(insample)
	r, c := actual.Dims()
	total := 0.0
	for i := 0; i < r; i++ {
		if scales[i] == 0 {
			continue
		}
		for j := 0; j < c; j++ {
			total += math.Abs(actual.At(i, j)-predicted.At(i, j)) / scales[i] * mask.At(i, j)
		}
	}
	return total / float64(r*c)
}

func (l MASE) Backward(actual, predicted, mask, insample *mat.Dense) *mat.Dense {
	scales := l.scales(insample)
	r, c := actual.Dims()
	grad := mat.NewDense(r, c, nil)
	n := float64(r * c)
	for i := 0; i < r; i++ {
		if scales[i] == 0 {
			continue
		}
		for j := 0; j < c; j++ {
			grad.Set(i, j, -sign(actual.At(i, j)-predicted.At(i, j))*mask.At(i, j)/(scales[i]*n))
		}
	}
	return grad
}
