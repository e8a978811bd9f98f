// Package model implements the N-HiTS architecture: identity basis
// functions with multi-rate interpolation, blocks that pool and
// project the input signal, and the doubly-residual stack composition.
package model

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/mresende-ds/nhits/internal/activations"
	"github.com/mresende-ds/nhits/internal/initializers"
)

// PoolingMode selects how a block downsamples its input signal.
type PoolingMode string

const (
	PoolingMax        PoolingMode = "max"
	PoolingStochastic PoolingMode = "stochastic"
	PoolingConv       PoolingMode = "conv"
	PoolingNone       PoolingMode = "none"
)

// LayerMode selects how hidden widths are realized in the projection
// network.
type LayerMode string

const (
	LayerLinear LayerMode = "linear"
	LayerConv   LayerMode = "conv"
)

// OutputLayerMode selects the width-matching policy of the final
// projection onto the coefficient space.
type OutputLayerMode string

const (
	OutputLinear OutputLayerMode = "linear"
	OutputConv   OutputLayerMode = "conv"
	OutputMax    OutputLayerMode = "max"
)

// StackType names a basis family for a stack of blocks.
type StackType string

// StackIdentity is the identity/interpolation basis, the only stack
// type of the N-HiTS architecture.
const StackIdentity StackType = "identity"

// Config is the immutable hyperparameter set of a model, fixed at
// construction. Per-stack slices are indexed alongside StackTypes and
// broadcast across all blocks of that stack.
type Config struct {
	InputSize int // insample window length
	Horizon   int // forecast horizon

	NX       int // exogenous channels (span both windows)
	NXHidden int // reserved for exogenous encoders
	NS       int // static covariates per series
	NSHidden int // static encoder width; 0 disables the static path

	StackTypes      []StackType
	NBlocks         []int
	NLayers         []int
	HiddenWidths    [][]int // per stack, one width per hidden layer
	PoolKernelSizes []int
	FreqDownsamples []int

	PoolingMode       PoolingMode
	LayerMode         LayerMode
	OutputLayerMode   OutputLayerMode
	InterpolationMode string // "nearest", "linear" or "cubic-<batchsize>"

	Activation     string
	Initialization string

	BatchNormalization bool
	DropoutProb        float64
	SharedWeights      bool

	RandomSeed int64
}

// Validate checks the configuration surface. Every violation is a
// fatal construction error; nothing is silently defaulted.
func (c Config) Validate() error {
	if c.InputSize <= 0 {
		return errors.Errorf("model: input size must be positive, got %d", c.InputSize)
	}
	if c.Horizon <= 0 {
		return errors.Errorf("model: horizon must be positive, got %d", c.Horizon)
	}
	if c.NX < 0 || c.NXHidden < 0 || c.NS < 0 || c.NSHidden < 0 {
		return errors.New("model: feature dimensionalities must be non-negative")
	}
	if len(c.StackTypes) == 0 {
		return errors.New("model: at least one stack is required")
	}
	n := len(c.StackTypes)
	if len(c.NBlocks) != n || len(c.NLayers) != n || len(c.HiddenWidths) != n ||
		len(c.PoolKernelSizes) != n || len(c.FreqDownsamples) != n {
		return errors.Errorf("model: per-stack parameter slices must all have length %d", n)
	}
	for i, st := range c.StackTypes {
		if st != StackIdentity {
			return errors.Errorf("model: stack type %q not found", st)
		}
		if c.NBlocks[i] <= 0 {
			return errors.Errorf("model: stack %d needs a positive block count", i)
		}
		if c.NLayers[i] <= 0 {
			return errors.Errorf("model: stack %d needs a positive layer count", i)
		}
		if len(c.HiddenWidths[i]) < c.NLayers[i] {
			return errors.Errorf("model: stack %d declares %d layers but %d hidden widths",
				i, c.NLayers[i], len(c.HiddenWidths[i]))
		}
		for _, w := range c.HiddenWidths[i] {
			if w <= 0 {
				return errors.Errorf("model: stack %d has a non-positive hidden width", i)
			}
		}
		if c.PoolKernelSizes[i] <= 0 {
			return errors.Errorf("model: stack %d needs a positive pooling kernel", i)
		}
		if c.FreqDownsamples[i] <= 0 {
			return errors.Errorf("model: stack %d needs a positive frequency downsample", i)
		}
	}
	switch c.PoolingMode {
	case PoolingMax, PoolingStochastic, PoolingConv, PoolingNone:
	default:
		return errors.Errorf("model: pooling mode %q not found", c.PoolingMode)
	}
	switch c.LayerMode {
	case LayerLinear, LayerConv:
	default:
		return errors.Errorf("model: layer mode %q not found", c.LayerMode)
	}
	switch c.OutputLayerMode {
	case OutputLinear, OutputConv, OutputMax:
	default:
		return errors.Errorf("model: output layer mode %q not found", c.OutputLayerMode)
	}
	if _, _, err := parseInterpolation(c.InterpolationMode); err != nil {
		return err
	}
	if _, err := activations.FromName(c.Activation); err != nil {
		return err
	}
	if _, err := initializers.New(c.Initialization, 0); err != nil {
		return err
	}
	if c.DropoutProb < 0 || c.DropoutProb >= 1 {
		return errors.Errorf("model: dropout probability must be in [0,1), got %v", c.DropoutProb)
	}
	return nil
}

// parseInterpolation splits an interpolation mode into its base mode
// and, for cubic, the sub-batch size suffix.
func parseInterpolation(mode string) (base string, cubicBatch int, err error) {
	switch {
	case mode == "nearest" || mode == "linear":
		return mode, 0, nil
	case strings.HasPrefix(mode, "cubic-"):
		size, convErr := strconv.Atoi(strings.TrimPrefix(mode, "cubic-"))
		if convErr != nil || size <= 0 {
			return "", 0, errors.Errorf("model: cubic interpolation needs a positive batch-size suffix, got %q", mode)
		}
		return "cubic", size, nil
	}
	return "", 0, errors.Errorf("model: interpolation mode %q not found", mode)
}
