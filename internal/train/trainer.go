// Package train binds a model to a loss, an optimizer and a scheduler
// and runs the epoch loop over prepared batches.
package train

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/mresende-ds/nhits/internal/loss"
	"github.com/mresende-ds/nhits/internal/model"
	"github.com/mresende-ds/nhits/internal/opt"
)

// Batch is one prepared training or validation batch. Y spans the
// insample window followed by the horizon; X, when present, spans the
// same timeline channel-major. Both masks cover the full timeline.
type Batch struct {
	S             *mat.Dense // static covariates, nil when unused
	Y             *mat.Dense
	X             *mat.Dense // exogenous covariates, nil when unused
	AvailableMask *mat.Dense
	SampleMask    *mat.Dense
}

// Trainer owns the optimization of one model. The loss, optimizer and
// scheduler are injected, not constructed here.
type Trainer struct {
	Model     *model.Model
	TrainLoss loss.Loss
	ValidLoss loss.Loss
	Optimizer opt.Optimizer
	Scheduler opt.Scheduler
	Log       *logrus.Logger
}

// New assembles a trainer. The scheduler may be nil for a constant
// learning rate, and the logger defaults to the standard one.
func New(m *model.Model, trainLoss, validLoss loss.Loss, optimizer opt.Optimizer, scheduler opt.Scheduler, log *logrus.Logger) (*Trainer, error) {
	if m == nil {
		return nil, errors.New("train: model is required")
	}
	if trainLoss == nil || validLoss == nil {
		return nil, errors.New("train: both losses are required")
	}
	if optimizer == nil {
		return nil, errors.New("train: optimizer is required")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Trainer{
		Model:     m,
		TrainLoss: trainLoss,
		ValidLoss: validLoss,
		Optimizer: optimizer,
		Scheduler: scheduler,
		Log:       log,
	}, nil
}

// insample slices the insample window out of a batch for the scaled
// losses.
func (t *Trainer) insample(b Batch) *mat.Dense {
	rows, _ := b.Y.Dims()
	in := t.Model.Config().InputSize
	return b.Y.Slice(0, rows, 0, in).(*mat.Dense)
}

// TrainStep runs one forward/backward/update cycle and returns the
// training loss of the batch.
func (t *Trainer) TrainStep(b Batch) float64 {
	t.Model.SetTraining(true)
	outY, forecast, outMask := t.Model.Forward(b.S, b.Y, b.X, b.AvailableMask, b.SampleMask)
	insample := t.insample(b)

	value := t.TrainLoss.Forward(outY, forecast, outMask, insample)
	grad := t.TrainLoss.Backward(outY, forecast, outMask, insample)
	t.Model.Backward(grad)

	params := t.Model.Params()
	t.Optimizer.StepInPlace(params, t.Model.Gradients())
	t.Model.SetParams(params)
	t.Model.ZeroGrad()
	return value
}

// ValidStep evaluates the validation loss of a batch without touching
// the parameters.
func (t *Trainer) ValidStep(b Batch) float64 {
	t.Model.SetTraining(false)
	outY, forecast, outMask := t.Model.Forward(b.S, b.Y, b.X, b.AvailableMask, b.SampleMask)
	return t.ValidLoss.Forward(outY, forecast, outMask, t.insample(b))
}

// Predict returns the forecast for a batch in evaluation mode.
func (t *Trainer) Predict(b Batch) *mat.Dense {
	t.Model.SetTraining(false)
	_, forecast, _ := t.Model.Forward(b.S, b.Y, b.X, b.AvailableMask, b.SampleMask)
	return forecast
}

// Fit runs the epoch loop. Validation runs after every epoch when
// valid is non-empty, and the scheduler advances once per epoch.
func (t *Trainer) Fit(train, valid []Batch, epochs int) error {
	if len(train) == 0 {
		return errors.New("train: no training batches")
	}
	for epoch := 1; epoch <= epochs; epoch++ {
		trainTotal := 0.0
		for _, b := range train {
			trainTotal += t.TrainStep(b)
		}
		fields := logrus.Fields{
			"epoch":      epoch,
			"train_loss": trainTotal / float64(len(train)),
			"lr":         t.Optimizer.LearningRate(),
		}
		if len(valid) > 0 {
			validTotal := 0.0
			for _, b := range valid {
				validTotal += t.ValidStep(b)
			}
			fields["valid_loss"] = validTotal / float64(len(valid))
		}
		t.Log.WithFields(fields).Info("epoch complete")
		if t.Scheduler != nil {
			t.Scheduler.Step()
		}
	}
	t.Model.SetTraining(false)
	return nil
}
