package model

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/mresende-ds/nhits/internal/initializers"
	"github.com/mresende-ds/nhits/internal/layer"
)

// Model is a stack of identity-basis blocks composed with doubly
// residual connections: each block subtracts its backcast from the
// running residual and adds its forecast to the running total, which
// starts from the naive level (the last observed value of each
// series).
type Model struct {
	cfg Config

	// positions holds one entry per stack position. With shared
	// weights, consecutive positions of a stack alias one *Block.
	positions []*Block
	unique    []*Block

	training bool
	// masks saved per training forward, popped by Backward.
	savedMasks []*mat.Dense
}

// New constructs and initializes a model from its configuration.
func New(cfg Config) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	initName := cfg.Initialization
	if cfg.Activation == "SELU" {
		initName = "lecun_normal"
	}
	initializer, err := initializers.New(initName, cfg.RandomSeed)
	if err != nil {
		return nil, err
	}

	m := &Model{cfg: cfg}
	seed := cfg.RandomSeed
	for s := range cfg.StackTypes {
		knots := cfg.Horizon / cfg.FreqDownsamples[s]
		if knots < 1 {
			knots = 1
		}
		for b := 0; b < cfg.NBlocks[s]; b++ {
			if cfg.SharedWeights && b > 0 {
				m.positions = append(m.positions, m.positions[len(m.positions)-1])
				continue
			}
			basis, err := NewIdentityBasis(cfg.InputSize, cfg.Horizon, knots, cfg.InterpolationMode)
			if err != nil {
				return nil, err
			}
			// Input normalization statistics are only stable on the
			// raw signal, so batch norm is confined to the first block
			// of the whole model.
			batchNorm := cfg.BatchNormalization && len(m.positions) == 0
			seed += 1000
			blk, err := newBlock(blockConfig{
				inputSize:      cfg.InputSize,
				horizon:        cfg.Horizon,
				nX:             cfg.NX,
				nS:             cfg.NS,
				nSHidden:       cfg.NSHidden,
				nLayers:        cfg.NLayers[s],
				hiddenWidths:   cfg.HiddenWidths[s],
				poolKernel:     cfg.PoolKernelSizes[s],
				poolingMode:    cfg.PoolingMode,
				layerMode:      cfg.LayerMode,
				outputMode:     cfg.OutputLayerMode,
				activationName: cfg.Activation,
				batchNorm:      batchNorm,
				dropoutProb:    cfg.DropoutProb,
				basis:          basis,
				seed:           seed,
			})
			if err != nil {
				return nil, errors.Wrapf(err, "stack %d block %d", s, b)
			}
			for _, wt := range blk.WeightTensors() {
				switch wt.Kind {
				case layer.KindLinear:
					initializer.InitLinear(wt.Data, wt.FanIn, wt.FanOut)
				case layer.KindConv, layer.KindConvTranspose:
					initializer.InitConv(wt.Data, wt.FanIn)
				}
			}
			m.positions = append(m.positions, blk)
			m.unique = append(m.unique, blk)
		}
	}
	return m, nil
}

// Config returns the configuration the model was built with.
func (m *Model) Config() Config { return m.cfg }

// NumBlocks returns the number of stack positions (aliased shared
// blocks count once per position).
func (m *Model) NumBlocks() int { return len(m.positions) }

// Forward runs the stack on one batch.
//
// y is batch x (InputSize+Horizon) with the insample window first and
// the target horizon after it. x, when NX > 0, is batch x
// NX*(InputSize+Horizon) laid out channel-major over the same
// timeline. availableMask and sampleMask cover the full timeline;
// only the insample part of availableMask and the outsample part of
// sampleMask are consumed here.
//
// It returns the outsample targets, the forecast and the outsample
// mask, all batch x Horizon.
func (m *Model) Forward(s, y, x, availableMask, sampleMask *mat.Dense) (outsampleY, forecast, outsampleMask *mat.Dense) {
	outsampleY, forecast, _, outsampleMask = m.run(s, y, x, availableMask, sampleMask, false)
	return outsampleY, forecast, outsampleMask
}

// ForwardDecomposition is Forward, additionally returning the stacked
// per-component forecasts: first the naive level, then one matrix per
// stack position. Their sum equals the aggregate forecast.
func (m *Model) ForwardDecomposition(s, y, x, availableMask, sampleMask *mat.Dense) (outsampleY, forecast *mat.Dense, components []*mat.Dense, outsampleMask *mat.Dense) {
	return m.run(s, y, x, availableMask, sampleMask, true)
}

func (m *Model) run(s, y, x, availableMask, sampleMask *mat.Dense, decompose bool) (*mat.Dense, *mat.Dense, []*mat.Dense, *mat.Dense) {
	in, h := m.cfg.InputSize, m.cfg.Horizon
	rows, cols := y.Dims()
	if cols != in+h {
		panic("model: y width must be input size plus horizon")
	}

	insample := reverseCols(y.Slice(0, rows, 0, in))
	mask := reverseCols(availableMask.Slice(0, rows, 0, in))
	outsampleY := mat.DenseCopyOf(y.Slice(0, rows, in, in+h))
	outsampleMask := mat.DenseCopyOf(sampleMask.Slice(0, rows, in, in+h))

	var xIn, xOut *mat.Dense
	if m.cfg.NX > 0 {
		xIn, xOut = m.splitExogenous(x, rows)
	}

	// The naive forecast: hold the last observed value flat across the
	// horizon. After reversal that value sits in column zero.
	forecast := mat.NewDense(rows, h, nil)
	level := mat.NewDense(rows, h, nil)
	for r := 0; r < rows; r++ {
		v := insample.At(r, 0)
		for c := 0; c < h; c++ {
			level.Set(r, c, v)
		}
	}
	forecast.Copy(level)

	var components []*mat.Dense
	if decompose {
		components = append(components, level)
	}

	residual := mat.DenseCopyOf(insample)
	for _, blk := range m.positions {
		backcast, blockForecast := blk.Forward(residual, xIn, xOut, s)
		residual.Sub(residual, backcast)
		residual.MulElem(residual, mask)
		forecast.Add(forecast, blockForecast)
		if decompose {
			components = append(components, blockForecast)
		}
	}

	if m.training {
		m.savedMasks = append(m.savedMasks, mask)
	}
	return outsampleY, forecast, components, outsampleMask
}

// Backward propagates a gradient on the aggregate forecast through
// every stack position, accumulating parameter gradients. Forecasts
// add up, so each position receives the same forecast gradient; the
// residual recurrence threads the backcast gradients between
// positions.
func (m *Model) Backward(gradForecast *mat.Dense) {
	n := len(m.savedMasks)
	if n == 0 {
		panic("model: Backward called without a matching training Forward")
	}
	mask := m.savedMasks[n-1]
	m.savedMasks = m.savedMasks[:n-1]

	rows, _ := gradForecast.Dims()
	gRes := mat.NewDense(rows, m.cfg.InputSize, nil)
	for i := len(m.positions) - 1; i >= 0; i-- {
		gBackcast := mat.NewDense(rows, m.cfg.InputSize, nil)
		gBackcast.MulElem(gRes, mask)
		gBackcast.Scale(-1, gBackcast)

		gIn := m.positions[i].Backward(gBackcast, gradForecast)

		next := mat.NewDense(rows, m.cfg.InputSize, nil)
		next.MulElem(gRes, mask)
		next.Add(next, gIn)
		gRes = next
	}
}

// splitExogenous separates the channel-major exogenous matrix into
// its flattened insample part (reversed alongside the signal) and its
// outsample part.
func (m *Model) splitExogenous(x *mat.Dense, rows int) (xIn, xOut *mat.Dense) {
	in, h := m.cfg.InputSize, m.cfg.Horizon
	nX := m.cfg.NX
	xIn = mat.NewDense(rows, nX*in, nil)
	xOut = mat.NewDense(rows, nX*h, nil)
	for c := 0; c < nX; c++ {
		base := c * (in + h)
		for r := 0; r < rows; r++ {
			for t := 0; t < in; t++ {
				xIn.Set(r, c*in+t, x.At(r, base+in-1-t))
			}
			for t := 0; t < h; t++ {
				xOut.Set(r, c*h+t, x.At(r, base+in+t))
			}
		}
	}
	return xIn, xOut
}

// Params returns the flattened parameter vector over all unique
// blocks. Aliased shared blocks contribute once.
func (m *Model) Params() []float64 {
	var out []float64
	for _, blk := range m.unique {
		out = append(out, blk.Params()...)
	}
	return out
}

// SetParams writes a flattened parameter vector back, in Params order.
func (m *Model) SetParams(params []float64) {
	for _, blk := range m.unique {
		n := len(blk.Params())
		blk.SetParams(params[:n])
		params = params[n:]
	}
}

// Gradients returns the flattened gradient vector, aligned with
// Params.
func (m *Model) Gradients() []float64 {
	var out []float64
	for _, blk := range m.unique {
		out = append(out, blk.Gradients()...)
	}
	return out
}

// ZeroGrad clears every accumulated gradient buffer.
func (m *Model) ZeroGrad() {
	for _, blk := range m.unique {
		blk.ZeroGrad()
	}
}

// SetTraining toggles training mode across the stack. Leaving
// training mode discards any unconsumed backward state.
func (m *Model) SetTraining(training bool) {
	m.training = training
	if !training {
		m.savedMasks = nil
	}
	for _, blk := range m.unique {
		blk.SetTraining(training)
	}
}

// reverseCols copies src with its column order flipped, so the most
// recent observation lands in column zero.
func reverseCols(src mat.Matrix) *mat.Dense {
	r, c := src.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Set(i, j, src.At(i, c-1-j))
		}
	}
	return out
}
