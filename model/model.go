// Package model defines the sequence autoencoders: a strided convolutional
// model and a fully-connected model, each built either as an encoder only
// (discriminator mode) or as an encoder-decoder (generator mode).
//
// Encode returns the latent code together with the FeatureShape the decoder
// needs, so decoding never depends on hidden state left behind by an earlier
// call:
//
//	latent, shape, err := m.Encode(x)
//	recon, err := m.Decode(latent, shape)
package model

import (
	"errors"
	"fmt"

	"go-seqae/nn"
	"go-seqae/tensor"
)

// Model is implemented by the four variants ConvEncoder, ConvAutoencoder,
// LinearEncoder and LinearAutoencoder.
type Model interface {
	// Encode maps a [B, 1, L, W] batch to a [B, LatentDim] code.
	Encode(x *tensor.Tensor) (*tensor.Tensor, FeatureShape, error)
	// Forward returns the latent code for encoders and the reconstruction for autoencoders.
	Forward(x *tensor.Tensor) (*tensor.Tensor, error)
	Parameters() []*tensor.Tensor
	ZeroGrad()
	// SetTraining switches batch normalization between batch and running statistics.
	SetTraining(training bool)
	// Layers lists every layer in execution order.
	Layers() []nn.Layer
	Config() Config

	isModel()
}

// Autoencoder is a Model with a decoder. Only generator-mode variants implement it.
type Autoencoder interface {
	Model
	Decode(h *tensor.Tensor, shape FeatureShape) (*tensor.Tensor, error)
}

// ErrFeatureShape is returned by Decode when the shape cannot hold the decoder's projection.
var ErrFeatureShape = errors.New("feature shape does not match decoder")

// FeatureShape is the [Batch, Channels, Height, Width] layout produced by an encoder
// before its final projection.
type FeatureShape struct {
	Batch, Channels, Height, Width int
}

func (s FeatureShape) Dims() []int {
	return []int{s.Batch, s.Channels, s.Height, s.Width}
}

// Size is the number of elements per batch item.
func (s FeatureShape) Size() int {
	return s.Channels * s.Height * s.Width
}

func (s FeatureShape) String() string {
	return fmt.Sprintf("(%d, %d, %d, %d)", s.Batch, s.Channels, s.Height, s.Width)
}

func featureShapeOf(t *tensor.Tensor) (FeatureShape, error) {
	s := t.GetShape()
	if len(s) != 4 {
		return FeatureShape{}, fmt.Errorf("expected a 4D feature map, got shape %v", s)
	}
	return FeatureShape{Batch: s[0], Channels: s[1], Height: s[2], Width: s[3]}, nil
}

// CountParameters is the number of scalar parameters in m.
func CountParameters(m Model) int {
	n := 0
	for _, p := range m.Parameters() {
		n += tensor.Numel(p)
	}
	return n
}

// stage appends layer, then an optional batch norm, then the activation.
func stage(seq *nn.Sequential, layer nn.Layer, channels int, cfg Config, act nn.Activation) error {
	seq.Add(layer)
	if err := norm(seq, channels, cfg); err != nil {
		return err
	}
	seq.Add(nn.NewActivationLayer(cfg.ActivationName(), act))
	return nil
}

// preStage appends an optional batch norm and the activation, then layer.
func preStage(seq *nn.Sequential, layer nn.Layer, channels int, cfg Config, act nn.Activation) error {
	if err := norm(seq, channels, cfg); err != nil {
		return err
	}
	seq.Add(nn.NewActivationLayer(cfg.ActivationName(), act))
	seq.Add(layer)
	return nil
}

func norm(seq *nn.Sequential, channels int, cfg Config) error {
	if !cfg.Normalize {
		return nil
	}
	bn, err := nn.NewBatchNorm(channels)
	if err != nil {
		return err
	}
	seq.Add(bn)
	return nil
}
