package model

import (
	"fmt"
	"log/slog"

	"go-seqae/nn"
	"go-seqae/tensor"
)

// LinearEncoder is the discriminator-mode LinearModel.
type LinearEncoder struct {
	cfg     Config
	flatten *nn.Flatten
	stages  *nn.Sequential
}

// LinearAutoencoder is the generator-mode LinearModel. Its output keeps the
// sequence length but has half the input width.
type LinearAutoencoder struct {
	encoder *LinearEncoder
	stages  *nn.Sequential
}

// NewLinear validates cfg and builds the variant selected by cfg.Mode.
func NewLinear(cfg Config) (Model, error) {
	cfg, err := cfg.resolveMode()
	if err != nil {
		return nil, err
	}
	if cfg.Mode == ModeGenerator {
		return NewLinearAutoencoder(cfg)
	}
	return NewLinearEncoder(cfg)
}

// NewLinearEncoder builds an encoder-only model. cfg.Mode must be empty or discriminator.
func NewLinearEncoder(cfg Config) (*LinearEncoder, error) {
	cfg, err := cfg.requireMode(ModeDiscriminator)
	if err != nil {
		return nil, err
	}
	if err := cfg.validateLinear(); err != nil {
		return nil, err
	}
	e, err := newLinearEncoder(cfg, nn.NewInitializer(nn.InitStdDev, cfg.Seed))
	if err != nil {
		return nil, err
	}
	slog.Debug("built linear encoder", "latent", cfg.LatentDim, "hidden", cfg.Hidden, "params", CountParameters(e))
	return e, nil
}

// NewLinearAutoencoder builds an encoder-decoder model. cfg.Mode must be empty or generator.
func NewLinearAutoencoder(cfg Config) (*LinearAutoencoder, error) {
	cfg, err := cfg.requireMode(ModeGenerator)
	if err != nil {
		return nil, err
	}
	if err := cfg.validateLinear(); err != nil {
		return nil, err
	}
	initW := nn.NewInitializer(nn.InitStdDev, cfg.Seed)
	enc, err := newLinearEncoder(cfg, initW)
	if err != nil {
		return nil, err
	}
	act, err := cfg.activation()
	if err != nil {
		return nil, err
	}

	first, err := nn.NewLinear(cfg.LatentDim, cfg.Hidden, initW)
	if err != nil {
		return nil, fmt.Errorf("linear decoder layer 1: %w", err)
	}
	stages := nn.NewSequential(first)
	outs := []int{cfg.Hidden, cfg.Hidden, cfg.SequenceLength * cfg.OutputWidth()}
	for i, out := range outs {
		l, err := nn.NewLinear(cfg.Hidden, out, initW)
		if err != nil {
			return nil, fmt.Errorf("linear decoder layer %d: %w", i+2, err)
		}
		if err := preStage(stages, l, cfg.Hidden, cfg, act); err != nil {
			return nil, fmt.Errorf("linear decoder layer %d: %w", i+2, err)
		}
	}

	a := &LinearAutoencoder{encoder: enc, stages: stages}
	slog.Debug("built linear autoencoder", "latent", cfg.LatentDim, "hidden", cfg.Hidden, "params", CountParameters(a))
	return a, nil
}

func newLinearEncoder(cfg Config, initW *nn.Initializer) (*LinearEncoder, error) {
	act, err := cfg.activation()
	if err != nil {
		return nil, err
	}
	stages := nn.NewSequential()
	in := cfg.SequenceLength * cfg.Width
	for i := 0; i < 3; i++ {
		l, err := nn.NewLinear(in, cfg.Hidden, initW)
		if err != nil {
			return nil, fmt.Errorf("linear encoder layer %d: %w", i+1, err)
		}
		if err := stage(stages, l, cfg.Hidden, cfg, act); err != nil {
			return nil, fmt.Errorf("linear encoder layer %d: %w", i+1, err)
		}
		in = cfg.Hidden
	}
	project, err := nn.NewLinear(cfg.Hidden, cfg.LatentDim, initW)
	if err != nil {
		return nil, fmt.Errorf("linear encoder layer 4: %w", err)
	}
	stages.Add(project)
	return &LinearEncoder{cfg: cfg, flatten: nn.NewFlatten(), stages: stages}, nil
}

// Encode flattens a batch of any rank to [B, L*Width] and maps it to [B, LatentDim].
// The returned shape is {B, 1, L, Width} whatever the input layout was.
func (e *LinearEncoder) Encode(x *tensor.Tensor) (*tensor.Tensor, FeatureShape, error) {
	dims := x.GetShape()
	if len(dims) == 0 || dims[0] <= 0 {
		return nil, FeatureShape{}, fmt.Errorf("linear encode: expected a batched input, got shape %v", dims)
	}
	want := e.cfg.SequenceLength * e.cfg.Width
	if got := tensor.Numel(x) / dims[0]; got != want {
		return nil, FeatureShape{}, fmt.Errorf("linear encode: input %v has %d features per item, want %d", dims, got, want)
	}
	shape := FeatureShape{Batch: dims[0], Channels: 1, Height: e.cfg.SequenceLength, Width: e.cfg.Width}
	flat, err := e.flatten.Forward(x)
	if err != nil {
		return nil, FeatureShape{}, fmt.Errorf("linear encode: %w", err)
	}
	latent, err := e.stages.Forward(flat)
	if err != nil {
		return nil, FeatureShape{}, fmt.Errorf("linear encode: %w", err)
	}
	return latent, shape, nil
}

func (e *LinearEncoder) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	latent, _, err := e.Encode(x)
	return latent, err
}

func (e *LinearEncoder) Parameters() []*tensor.Tensor { return e.stages.Parameters() }
func (e *LinearEncoder) ZeroGrad()                    { e.stages.ZeroGrad() }
func (e *LinearEncoder) SetTraining(training bool)    { e.stages.SetTraining(training) }

func (e *LinearEncoder) Layers() []nn.Layer {
	return append([]nn.Layer{e.flatten}, e.stages.Layers()...)
}

func (e *LinearEncoder) Config() Config { return e.cfg }
func (e *LinearEncoder) isModel()       {}

func (a *LinearAutoencoder) Encode(x *tensor.Tensor) (*tensor.Tensor, FeatureShape, error) {
	return a.encoder.Encode(x)
}

// Decode maps [B, LatentDim] to [B, 1, L, Width/2]. Only the batch size of shape is used.
func (a *LinearAutoencoder) Decode(h *tensor.Tensor, shape FeatureShape) (*tensor.Tensor, error) {
	if hs := h.GetShape(); len(hs) != 2 || hs[0] != shape.Batch {
		return nil, fmt.Errorf("%w: batch %d does not match latent shape %v", ErrFeatureShape, shape.Batch, hs)
	}
	z, err := a.stages.Forward(h)
	if err != nil {
		return nil, fmt.Errorf("linear decode: %w", err)
	}
	cfg := a.encoder.cfg
	out, err := tensor.Reshape(z, []int{shape.Batch, 1, cfg.SequenceLength, cfg.OutputWidth()})
	if err != nil {
		return nil, fmt.Errorf("linear decode: %w", err)
	}
	return out, nil
}

func (a *LinearAutoencoder) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	latent, shape, err := a.Encode(x)
	if err != nil {
		return nil, err
	}
	return a.Decode(latent, shape)
}

func (a *LinearAutoencoder) Parameters() []*tensor.Tensor {
	return append(a.encoder.Parameters(), a.stages.Parameters()...)
}

func (a *LinearAutoencoder) ZeroGrad() {
	a.encoder.ZeroGrad()
	a.stages.ZeroGrad()
}

func (a *LinearAutoencoder) SetTraining(training bool) {
	a.encoder.SetTraining(training)
	a.stages.SetTraining(training)
}

func (a *LinearAutoencoder) Layers() []nn.Layer {
	return append(a.encoder.Layers(), a.stages.Layers()...)
}

func (a *LinearAutoencoder) Config() Config { return a.encoder.cfg.withMode(ModeGenerator) }
func (a *LinearAutoencoder) isModel()       {}
