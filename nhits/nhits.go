// Package nhits is the public surface of the forecasting library. It
// re-exports the model, loss, optimizer and trainer types so callers
// do not import the internal packages directly.
package nhits

import (
	"github.com/mresende-ds/nhits/internal/loss"
	"github.com/mresende-ds/nhits/internal/model"
	"github.com/mresende-ds/nhits/internal/opt"
	"github.com/mresende-ds/nhits/internal/train"
)

// Re-export common types for easier access
type (
	Config    = model.Config
	Model     = model.Model
	StackType = model.StackType

	PoolingMode     = model.PoolingMode
	LayerMode       = model.LayerMode
	OutputLayerMode = model.OutputLayerMode

	Loss      = loss.Loss
	Optimizer = opt.Optimizer
	Scheduler = opt.Scheduler

	Batch   = train.Batch
	Trainer = train.Trainer
)

// Configuration enums
const (
	StackIdentity = model.StackIdentity

	PoolingMax        = model.PoolingMax
	PoolingStochastic = model.PoolingStochastic
	PoolingConv       = model.PoolingConv
	PoolingNone       = model.PoolingNone

	LayerLinear = model.LayerLinear
	LayerConv   = model.LayerConv

	OutputLinear = model.OutputLinear
	OutputConv   = model.OutputConv
	OutputMax    = model.OutputMax
)

// NewModel constructs and initializes a model from its configuration.
func NewModel(cfg Config) (*Model, error) {
	return model.New(cfg)
}

// LossByName resolves a loss by name; seasonality is only consumed by
// MASE.
func LossByName(name string, seasonality int) (Loss, error) {
	return loss.FromName(name, seasonality)
}

// Losses
var (
	MAE   = loss.MAE{}
	MSE   = loss.MSE{}
	RMSE  = loss.RMSE{}
	MAPE  = loss.MAPE{}
	SMAPE = loss.SMAPE{}
)

// MASE returns the seasonally scaled absolute error loss.
func MASE(seasonality int) Loss {
	return loss.MASE{Seasonality: seasonality}
}

// Optimizers and schedulers
func SGD(lr float64) Optimizer {
	return &opt.SGD{LR: lr}
}

func Adam(lr float64) Optimizer {
	return opt.NewAdam(lr)
}

func StepLR(optimizer Optimizer, stepSize int, gamma float64) Scheduler {
	return opt.NewStepLR(optimizer, stepSize, gamma)
}

// NewTrainer binds a model to its training collaborators; see
// train.New for the defaulting rules.
var NewTrainer = train.New
