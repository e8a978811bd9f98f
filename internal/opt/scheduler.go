package opt

// Scheduler adjusts an optimizer's learning rate over epochs.
type Scheduler interface {
	Step()
	GetLR() float64
}

// StepLR multiplies the learning rate by gamma every stepSize epochs.
type StepLR struct {
	optimizer Optimizer
	stepSize  int
	gamma     float64
	lastEpoch int
}

// NewStepLR creates a StepLR schedule over the given optimizer.
func NewStepLR(optimizer Optimizer, stepSize int, gamma float64) *StepLR {
	return &StepLR{
		optimizer: optimizer,
		stepSize:  stepSize,
		gamma:     gamma,
	}
}

// Step advances one epoch, decaying the rate on every boundary.
func (s *StepLR) Step() {
	s.lastEpoch++
	if s.stepSize > 0 && s.lastEpoch%s.stepSize == 0 {
		s.optimizer.SetLearningRate(s.optimizer.LearningRate() * s.gamma)
	}
}

// GetLR returns the optimizer's current learning rate.
func (s *StepLR) GetLR() float64 {
	return s.optimizer.LearningRate()
}
