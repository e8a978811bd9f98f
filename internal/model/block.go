package model

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/mresende-ds/nhits/internal/activations"
	"github.com/mresende-ds/nhits/internal/layer"
)

// blockConfig carries the per-block construction parameters resolved
// by the model builder.
type blockConfig struct {
	inputSize int
	horizon   int

	nX       int
	nS       int
	nSHidden int

	nLayers      int
	hiddenWidths []int
	poolKernel   int

	poolingMode PoolingMode
	layerMode   LayerMode
	outputMode  OutputLayerMode

	activationName string
	batchNorm      bool
	dropoutProb    float64

	basis *IdentityBasis
	seed  int64
}

// Block pools its insample signal, concatenates exogenous and encoded
// static features, projects through the hidden chain onto a
// coefficient vector and expands it through the basis.
type Block struct {
	inputSize int
	horizon   int
	nX        int
	nS        int
	nSHidden  int

	pooledWidth  int
	featureWidth int

	pool          layer.Layer // nil when pooling is disabled
	staticEncoder *layer.LinearEncoder
	chain         []layer.Layer
	basis         *IdentityBasis
}

// newBlock assembles one block. Width reconciliation happens here: in
// conv layer mode the requested hidden widths are replaced by the
// widths the derived convolutions actually produce.
func newBlock(cfg blockConfig) (*Block, error) {
	act, err := activations.FromName(cfg.activationName)
	if err != nil {
		return nil, err
	}
	if cfg.nS == 0 {
		cfg.nSHidden = 0
	}

	b := &Block{
		inputSize: cfg.inputSize,
		horizon:   cfg.horizon,
		nX:        cfg.nX,
		nS:        cfg.nS,
		nSHidden:  cfg.nSHidden,
		basis:     cfg.basis,
	}

	switch cfg.poolingMode {
	case PoolingMax:
		b.pooledWidth = layer.PoolOutSize(cfg.inputSize, cfg.poolKernel, cfg.poolKernel, true)
		b.pool = layer.NewMaxPool1D(cfg.inputSize, cfg.poolKernel, cfg.poolKernel, true)
	case PoolingStochastic:
		b.pooledWidth = layer.PoolOutSize(cfg.inputSize, cfg.poolKernel, cfg.poolKernel, true)
		b.pool = layer.NewStochasticPool1D(cfg.inputSize, cfg.poolKernel, cfg.seed)
	case PoolingConv:
		if cfg.poolKernel > cfg.inputSize {
			return nil, errors.Errorf("model: conv pooling kernel %d exceeds input width %d",
				cfg.poolKernel, cfg.inputSize)
		}
		b.pooledWidth = (cfg.inputSize-cfg.poolKernel)/cfg.poolKernel + 1
		b.pool = layer.NewDownSampleEncoder(cfg.inputSize, cfg.poolKernel, cfg.poolKernel, b.pooledWidth, nil)
	case PoolingNone:
		b.pooledWidth = cfg.inputSize
	}

	b.featureWidth = b.pooledWidth + (cfg.inputSize+cfg.horizon)*cfg.nX + cfg.nSHidden

	widths := make([]int, 0, cfg.nLayers+1)
	widths = append(widths, b.featureWidth)
	widths = append(widths, cfg.hiddenWidths[:cfg.nLayers]...)

	for i := 0; i < cfg.nLayers; i++ {
		switch cfg.layerMode {
		case LayerLinear:
			b.chain = append(b.chain,
				layer.NewLinearEncoder(widths[i], widths[i+1], act, cfg.batchNorm, cfg.dropoutProb, cfg.seed+int64(i)+1))
		case LayerConv:
			enc, actual, err := convStage(widths[i], widths[i+1], act)
			if err != nil {
				return nil, errors.Wrapf(err, "model: hidden layer %d", i)
			}
			widths[i+1] = actual
			if enc != nil {
				b.chain = append(b.chain, enc)
			}
		}
	}

	out, err := outputStage(widths[cfg.nLayers], cfg.basis.NTheta(), cfg.outputMode)
	if err != nil {
		return nil, err
	}
	b.chain = append(b.chain, out...)

	if cfg.nS > 0 && cfg.nSHidden > 0 {
		b.staticEncoder = layer.NewLinearEncoder(cfg.nS, cfg.nSHidden, activations.ReLU{}, false, 0.5, cfg.seed+77)
	}
	return b, nil
}

// convStage builds one width-reconciling hidden stage. Equal widths
// produce no stage at all; the returned actual width is what the
// derived convolution emits, which replaces the requested width.
func convStage(wIn, wOut int, act activations.Activation) (layer.Layer, int, error) {
	switch {
	case wIn > wOut:
		kernel, stride, actual := layer.DeriveDownsample(wIn, wOut)
		if kernel <= 0 || stride <= 0 || actual <= 0 {
			return nil, 0, errors.Errorf("cannot downsample width %d to %d", wIn, wOut)
		}
		return layer.NewDownSampleEncoder(wIn, kernel, stride, actual, act), actual, nil
	case wIn < wOut:
		kernel, stride, actual := layer.DeriveUpsample(wIn, wOut)
		if kernel <= 0 || stride <= 0 || actual <= 0 {
			return nil, 0, errors.Errorf("cannot upsample width %d to %d", wIn, wOut)
		}
		return layer.NewUpSampleEncoder(wIn, kernel, stride, actual, act), actual, nil
	}
	return nil, wIn, nil
}

// outputStage projects the last hidden width onto exactly nTheta
// coefficients with no activation anywhere. Conv and max modes land as
// close as their derived geometry allows and append a repair linear
// layer when the landing width still differs from nTheta.
func outputStage(width, nTheta int, mode OutputLayerMode) ([]layer.Layer, error) {
	plain := []layer.Layer{layer.NewLinearEncoder(width, nTheta, nil, false, 0, 0)}
	switch mode {
	case OutputLinear:
		return plain, nil

	case OutputConv:
		switch {
		case width > nTheta:
			kernel, stride, actual := layer.DeriveDownsample(width, nTheta)
			if kernel <= 0 || stride <= 0 || actual <= 0 {
				return nil, errors.Errorf("model: cannot downsample output width %d to %d coefficients", width, nTheta)
			}
			if actual != nTheta {
				return []layer.Layer{
					layer.NewDownSampleEncoder(width, kernel, stride, actual, nil),
					layer.NewLinearEncoder(actual, nTheta, nil, false, 0, 0),
				}, nil
			}
			return []layer.Layer{layer.NewDownSampleEncoder(width, kernel, stride, actual, nil)}, nil
		case width < nTheta:
			kernel, stride, actual := layer.DeriveUpsample(width, nTheta)
			if kernel <= 0 || stride <= 0 || actual <= 0 {
				return nil, errors.Errorf("model: cannot upsample output width %d to %d coefficients", width, nTheta)
			}
			if actual != nTheta {
				return []layer.Layer{
					layer.NewUpSampleEncoder(width, kernel, stride, actual, nil),
					layer.NewLinearEncoder(actual, nTheta, nil, false, 0, 0),
				}, nil
			}
			return []layer.Layer{layer.NewUpSampleEncoder(width, kernel, stride, actual, nil)}, nil
		}
		return plain, nil

	case OutputMax:
		if width > nTheta {
			if width/nTheta >= 2 {
				k := width / nTheta
				actual := layer.PoolOutSize(width, k, k, false)
				pool := layer.NewMaxPool1D(width, k, k, false)
				if actual != nTheta {
					return []layer.Layer{pool, layer.NewLinearEncoder(actual, nTheta, nil, false, 0, 0)}, nil
				}
				return []layer.Layer{pool}, nil
			}
			k := width - nTheta + 1
			return []layer.Layer{layer.NewMaxPool1D(width, k, 1, false)}, nil
		}
		return plain, nil
	}
	return nil, errors.Errorf("model: output layer mode %q not found", mode)
}

// Forward runs the block on one batch. insample is the reversed
// availability-masked signal, xIn/xOut the flattened exogenous windows
// (nil when the model has none) and s the static covariates.
func (b *Block) Forward(insample, xIn, xOut, s *mat.Dense) (backcast, forecast *mat.Dense) {
	h := insample
	if b.pool != nil {
		h = b.pool.Forward(h)
	}
	features := h
	if b.nX > 0 {
		features = hstack(features, xIn, xOut)
	}
	if b.staticEncoder != nil {
		features = hstack(features, b.staticEncoder.Forward(s))
	}
	theta := features
	for _, l := range b.chain {
		theta = l.Forward(theta)
	}
	return b.basis.Forward(theta)
}

// Backward propagates gradients on the block outputs back to a
// gradient on the insample signal, accumulating parameter gradients
// along the way. Gradients on the exogenous and static inputs are
// computed and discarded, since those are data, not parameters.
func (b *Block) Backward(gradBackcast, gradForecast *mat.Dense) *mat.Dense {
	g := b.basis.Backward(gradBackcast, gradForecast)
	for i := len(b.chain) - 1; i >= 0; i-- {
		g = b.chain[i].Backward(g)
	}
	rows, _ := g.Dims()
	if b.staticEncoder != nil {
		gs := g.Slice(0, rows, b.featureWidth-b.nSHidden, b.featureWidth).(*mat.Dense)
		b.staticEncoder.Backward(gs)
	}
	gPooled := mat.DenseCopyOf(g.Slice(0, rows, 0, b.pooledWidth))
	if b.pool != nil {
		return b.pool.Backward(gPooled)
	}
	return gPooled
}

func (b *Block) layers() []layer.Layer {
	out := make([]layer.Layer, 0, len(b.chain)+2)
	if b.pool != nil {
		out = append(out, b.pool)
	}
	if b.staticEncoder != nil {
		out = append(out, b.staticEncoder)
	}
	return append(out, b.chain...)
}

// Params returns the flattened parameter vector of the block.
func (b *Block) Params() []float64 {
	var out []float64
	for _, l := range b.layers() {
		out = append(out, l.Params()...)
	}
	return out
}

// SetParams writes a flattened parameter vector back.
func (b *Block) SetParams(params []float64) {
	for _, l := range b.layers() {
		n := len(l.Params())
		l.SetParams(params[:n])
		params = params[n:]
	}
}

// Gradients returns the flattened gradient vector, aligned with
// Params.
func (b *Block) Gradients() []float64 {
	var out []float64
	for _, l := range b.layers() {
		out = append(out, l.Gradients()...)
	}
	return out
}

// ZeroGrad clears every accumulated gradient buffer.
func (b *Block) ZeroGrad() {
	for _, l := range b.layers() {
		l.ZeroGrad()
	}
}

// SetTraining toggles training mode on every stage.
func (b *Block) SetTraining(training bool) {
	for _, l := range b.layers() {
		l.SetTraining(training)
	}
}

// WeightTensors exposes every initializable weight tensor of the
// block, including the static encoder and a conv pooling stage.
func (b *Block) WeightTensors() []layer.WeightTensor {
	var out []layer.WeightTensor
	for _, l := range b.layers() {
		if init, ok := l.(layer.Initializable); ok {
			out = append(out, init.WeightTensors()...)
		}
	}
	return out
}

// hstack concatenates matrices with equal row counts side by side.
func hstack(parts ...*mat.Dense) *mat.Dense {
	rows, _ := parts[0].Dims()
	total := 0
	for _, p := range parts {
		_, c := p.Dims()
		total += c
	}
	out := mat.NewDense(rows, total, nil)
	col := 0
	for _, p := range parts {
		_, c := p.Dims()
		out.Slice(0, rows, col, col+c).(*mat.Dense).Copy(p)
		col += c
	}
	return out
}
