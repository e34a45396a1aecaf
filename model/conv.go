package model

import (
	"fmt"
	"log/slog"

	"go-seqae/nn"
	"go-seqae/tensor"
)

var (
	encoderChannels = []int{1, 32, 64, 64, 64, 128}
	decoderChannels = []int{128, 64, 64, 64, 32, 1}
)

// convGeometry halves the height and keeps the width.
func convGeometry(verticalKernel int) tensor.ConvGeometry {
	return tensor.ConvGeometry{
		KernelH: 4, KernelW: verticalKernel,
		StrideH: 2, StrideW: 1,
		PadH: 1, PadW: (verticalKernel - 1) / 2,
	}
}

// ConvEncoder is the discriminator-mode ConvModel: five strided conv stages and a
// projection to the latent code.
type ConvEncoder struct {
	cfg     Config
	stages  *nn.Sequential
	flatten *nn.Flatten
	project *nn.Linear
}

// ConvAutoencoder is the generator-mode ConvModel.
type ConvAutoencoder struct {
	encoder *ConvEncoder
	expand  *nn.Linear
	stages  *nn.Sequential
}

// NewConv validates cfg and builds the variant selected by cfg.Mode.
func NewConv(cfg Config) (Model, error) {
	cfg, err := cfg.resolveMode()
	if err != nil {
		return nil, err
	}
	if cfg.Mode == ModeGenerator {
		return NewConvAutoencoder(cfg)
	}
	return NewConvEncoder(cfg)
}

// NewConvEncoder builds an encoder-only model. cfg.Mode must be empty or discriminator.
func NewConvEncoder(cfg Config) (*ConvEncoder, error) {
	cfg, err := cfg.requireMode(ModeDiscriminator)
	if err != nil {
		return nil, err
	}
	if err := cfg.validateConv(); err != nil {
		return nil, err
	}
	e, err := newConvEncoder(cfg, nn.NewInitializer(nn.InitStdDev, cfg.Seed))
	if err != nil {
		return nil, err
	}
	slog.Debug("built conv encoder", "latent", cfg.LatentDim, "seq", cfg.SequenceLength, "params", CountParameters(e))
	return e, nil
}

// NewConvAutoencoder builds an encoder-decoder model. cfg.Mode must be empty or generator.
func NewConvAutoencoder(cfg Config) (*ConvAutoencoder, error) {
	cfg, err := cfg.requireMode(ModeGenerator)
	if err != nil {
		return nil, err
	}
	if err := cfg.validateConv(); err != nil {
		return nil, err
	}
	initW := nn.NewInitializer(nn.InitStdDev, cfg.Seed)
	enc, err := newConvEncoder(cfg, initW)
	if err != nil {
		return nil, err
	}
	act, err := cfg.activation()
	if err != nil {
		return nil, err
	}

	grid := cfg.SequenceLength / ConvSequenceMultiple
	expand, err := nn.NewLinear(cfg.LatentDim, decoderChannels[0]*grid*cfg.OutputWidth(), initW)
	if err != nil {
		return nil, fmt.Errorf("conv decoder projection: %w", err)
	}

	geom := convGeometry(cfg.VerticalKernelSize)
	stages := nn.NewSequential()
	for i := 0; i < len(decoderChannels)-1; i++ {
		deconv, err := nn.NewConvTranspose2D(decoderChannels[i], decoderChannels[i+1], geom, initW)
		if err != nil {
			return nil, fmt.Errorf("conv decoder stage %d: %w", i+1, err)
		}
		if err := preStage(stages, deconv, decoderChannels[i], cfg, act); err != nil {
			return nil, fmt.Errorf("conv decoder stage %d: %w", i+1, err)
		}
	}

	a := &ConvAutoencoder{encoder: enc, expand: expand, stages: stages}
	slog.Debug("built conv autoencoder", "latent", cfg.LatentDim, "seq", cfg.SequenceLength, "params", CountParameters(a))
	return a, nil
}

func newConvEncoder(cfg Config, initW *nn.Initializer) (*ConvEncoder, error) {
	act, err := cfg.activation()
	if err != nil {
		return nil, err
	}
	geom := convGeometry(cfg.VerticalKernelSize)
	stages := nn.NewSequential()
	for i := 0; i < len(encoderChannels)-1; i++ {
		conv, err := nn.NewConv2D(encoderChannels[i], encoderChannels[i+1], geom, initW)
		if err != nil {
			return nil, fmt.Errorf("conv encoder stage %d: %w", i+1, err)
		}
		if err := stage(stages, conv, encoderChannels[i+1], cfg, act); err != nil {
			return nil, fmt.Errorf("conv encoder stage %d: %w", i+1, err)
		}
	}

	grid := cfg.SequenceLength / ConvSequenceMultiple
	project, err := nn.NewLinear(encoderChannels[len(encoderChannels)-1]*grid*cfg.Width, cfg.LatentDim, initW)
	if err != nil {
		return nil, fmt.Errorf("conv encoder projection: %w", err)
	}
	return &ConvEncoder{cfg: cfg, stages: stages, flatten: nn.NewFlatten(), project: project}, nil
}

// Encode runs the conv stages and returns the latent code and the final feature-map shape.
func (e *ConvEncoder) Encode(x *tensor.Tensor) (*tensor.Tensor, FeatureShape, error) {
	h, err := e.stages.Forward(x)
	if err != nil {
		return nil, FeatureShape{}, fmt.Errorf("conv encode: %w", err)
	}
	shape, err := featureShapeOf(h)
	if err != nil {
		return nil, FeatureShape{}, fmt.Errorf("conv encode: %w", err)
	}
	flat, err := e.flatten.Forward(h)
	if err != nil {
		return nil, FeatureShape{}, fmt.Errorf("conv encode: %w", err)
	}
	latent, err := e.project.Forward(flat)
	if err != nil {
		return nil, FeatureShape{}, fmt.Errorf("conv encode projection: %w", err)
	}
	return latent, shape, nil
}

func (e *ConvEncoder) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	latent, _, err := e.Encode(x)
	return latent, err
}

func (e *ConvEncoder) Parameters() []*tensor.Tensor {
	return append(e.stages.Parameters(), e.project.Parameters()...)
}

func (e *ConvEncoder) ZeroGrad() {
	e.stages.ZeroGrad()
	e.project.ZeroGrad()
}

func (e *ConvEncoder) SetTraining(training bool) { e.stages.SetTraining(training) }

func (e *ConvEncoder) Layers() []nn.Layer {
	layers := append([]nn.Layer{}, e.stages.Layers()...)
	return append(layers, e.flatten, e.project)
}

func (e *ConvEncoder) Config() Config { return e.cfg }
func (e *ConvEncoder) isModel()       {}

func (a *ConvAutoencoder) Encode(x *tensor.Tensor) (*tensor.Tensor, FeatureShape, error) {
	return a.encoder.Encode(x)
}

// Decode projects h, lays it out as shape with the width halved, and upsamples it
// back to [B, 1, L, Width/2].
func (a *ConvAutoencoder) Decode(h *tensor.Tensor, shape FeatureShape) (*tensor.Tensor, error) {
	z, err := a.expand.Forward(h)
	if err != nil {
		return nil, fmt.Errorf("conv decode projection: %w", err)
	}
	grid := FeatureShape{Batch: shape.Batch, Channels: shape.Channels, Height: shape.Height, Width: shape.Width / 2}
	zs := z.GetShape()
	if grid.Batch != zs[0] || grid.Size() != zs[1] {
		return nil, fmt.Errorf("%w: %v cannot hold a projection of shape %v", ErrFeatureShape, grid, zs)
	}
	r, err := tensor.Reshape(z, grid.Dims())
	if err != nil {
		return nil, fmt.Errorf("conv decode: %w", err)
	}
	out, err := a.stages.Forward(r)
	if err != nil {
		return nil, fmt.Errorf("conv decode: %w", err)
	}
	return out, nil
}

func (a *ConvAutoencoder) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	latent, shape, err := a.Encode(x)
	if err != nil {
		return nil, err
	}
	return a.Decode(latent, shape)
}

func (a *ConvAutoencoder) Parameters() []*tensor.Tensor {
	params := a.encoder.Parameters()
	params = append(params, a.expand.Parameters()...)
	return append(params, a.stages.Parameters()...)
}

func (a *ConvAutoencoder) ZeroGrad() {
	a.encoder.ZeroGrad()
	a.expand.ZeroGrad()
	a.stages.ZeroGrad()
}

func (a *ConvAutoencoder) SetTraining(training bool) {
	a.encoder.SetTraining(training)
	a.stages.SetTraining(training)
}

func (a *ConvAutoencoder) Layers() []nn.Layer {
	layers := append(a.encoder.Layers(), a.expand)
	return append(layers, a.stages.Layers()...)
}

func (a *ConvAutoencoder) Config() Config { return a.encoder.cfg.withMode(ModeGenerator) }
func (a *ConvAutoencoder) isModel()       {}
