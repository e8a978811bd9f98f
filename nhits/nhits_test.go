package nhits_test

import (
	"io"
	"math"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/mresende-ds/nhits/nhits"
)

func TestEndToEnd(t *testing.T) {
	cfg := nhits.Config{
		InputSize:         16,
		Horizon:           8,
		StackTypes:        []nhits.StackType{nhits.StackIdentity, nhits.StackIdentity},
		NBlocks:           []int{1, 1},
		NLayers:           []int{2, 2},
		HiddenWidths:      [][]int{{32, 32}, {32, 32}},
		PoolKernelSizes:   []int{4, 2},
		FreqDownsamples:   []int{4, 1},
		PoolingMode:       nhits.PoolingMax,
		LayerMode:         nhits.LayerLinear,
		OutputLayerMode:   nhits.OutputLinear,
		InterpolationMode: "linear",
		Activation:        "ReLU",
		Initialization:    "glorot_uniform",
		RandomSeed:        11,
	}
	m, err := nhits.NewModel(cfg)
	require.NoError(t, err)

	optimizer := nhits.Adam(0.005)
	log := logrus.New()
	log.SetOutput(io.Discard)
	trainer, err := nhits.NewTrainer(m, nhits.MSE, nhits.MAE, optimizer,
		nhits.StepLR(optimizer, 20, 0.5), log)
	require.NoError(t, err)

	total := cfg.InputSize + cfg.Horizon
	y := mat.NewDense(8, total, nil)
	ones := mat.NewDense(8, total, nil)
	for r := 0; r < 8; r++ {
		for c := 0; c < total; c++ {
			y.Set(r, c, math.Sin(float64(r*3+c)*0.4))
			ones.Set(r, c, 1)
		}
	}
	batch := nhits.Batch{Y: y, AvailableMask: ones, SampleMask: ones}

	before := trainer.ValidStep(batch)
	require.NoError(t, trainer.Fit([]nhits.Batch{batch}, nil, 40))
	after := trainer.ValidStep(batch)
	assert.Less(t, after, before)

	forecast := trainer.Predict(batch)
	r, c := forecast.Dims()
	assert.Equal(t, 8, r)
	assert.Equal(t, cfg.Horizon, c)
}

func TestLossByName(t *testing.T) {
	l, err := nhits.LossByName("SMAPE", 0)
	require.NoError(t, err)
	require.NotNil(t, l)
	_, err = nhits.LossByName("pinball", 0)
	assert.Error(t, err)
}
