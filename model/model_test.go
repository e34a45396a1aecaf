package model

import (
	"errors"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-seqae/nn"
	"go-seqae/tensor"
)

func randomBatch(t *testing.T, seed uint64, shape ...int) *tensor.Tensor {
	t.Helper()
	rng := rand.New(rand.NewPCG(seed, 0))
	n := 1
	for _, d := range shape {
		n *= d
	}
	data := make([]float64, n)
	for i := range data {
		data[i] = rng.NormFloat64()
	}
	x, err := tensor.NewTensor(shape, data)
	require.NoError(t, err)
	return x
}

// weightedLoss reduces y to a scalar with distinct per-element weights.
func weightedLoss(t *testing.T, y *tensor.Tensor) *tensor.Tensor {
	t.Helper()
	r := randomBatch(t, 99, tensor.Numel(y), 1)
	flat, err := tensor.Reshape(y, []int{1, tensor.Numel(y)})
	require.NoError(t, err)
	loss, err := tensor.MatMulTensor(flat, r)
	require.NoError(t, err)
	return loss
}

func convConfig(mode Mode, normalize bool) Config {
	cfg := DefaultConvConfig()
	cfg.Mode = mode
	cfg.Normalize = normalize
	cfg.LatentDim = 16
	cfg.Seed = 3
	return cfg
}

func linearConfig(mode Mode, normalize bool) Config {
	cfg := DefaultLinearConfig()
	cfg.Mode = mode
	cfg.Normalize = normalize
	cfg.LatentDim = 8
	cfg.Hidden = 32
	cfg.Seed = 3
	return cfg
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode(" Generator ")
	require.NoError(t, err)
	assert.Equal(t, ModeGenerator, m)

	m, err = ParseMode("discriminator")
	require.NoError(t, err)
	assert.Equal(t, ModeDiscriminator, m)

	_, err = ParseMode("critic")
	assert.ErrorIs(t, err, ErrMode)
}

func TestConvConfigErrors(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"sequence not multiple of 32", func(c *Config) { c.SequenceLength = 30 }, ErrSequenceLength},
		{"zero sequence", func(c *Config) { c.SequenceLength = 0 }, ErrSequenceLength},
		{"unknown mode", func(c *Config) { c.Mode = "critic" }, ErrMode},
		{"empty mode", func(c *Config) { c.Mode = "" }, ErrMode},
		{"zero latent", func(c *Config) { c.LatentDim = 0 }, ErrLatentDim},
		{"even kernel", func(c *Config) { c.VerticalKernelSize = 2 }, ErrKernelSize},
		{"odd width", func(c *Config) { c.Width = 33 }, ErrWidth},
		{"unknown activation", func(c *Config) { c.Activation = "swish" }, ErrActivation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConvConfig()
			tc.mutate(&cfg)
			_, err := NewConv(cfg)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}

func TestLinearConfigErrors(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"unknown mode", func(c *Config) { c.Mode = "critic" }, ErrMode},
		{"zero latent", func(c *Config) { c.LatentDim = -1 }, ErrLatentDim},
		{"zero sequence", func(c *Config) { c.SequenceLength = 0 }, ErrSequenceLength},
		{"zero hidden", func(c *Config) { c.Hidden = 0 }, ErrHidden},
		{"odd width", func(c *Config) { c.Width = 7 }, ErrWidth},
		{"unknown activation", func(c *Config) { c.Activation = "gelu" }, ErrActivation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultLinearConfig()
			tc.mutate(&cfg)
			_, err := NewLinear(cfg)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestLinearAcceptsAnySequenceLength(t *testing.T) {
	cfg := linearConfig(ModeGenerator, false)
	cfg.SequenceLength = 5
	m, err := NewLinear(cfg)
	require.NoError(t, err)

	out, err := m.Forward(randomBatch(t, 1, 2, 1, 5, 34))
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1, 5, 17}, out.GetShape())
}

func TestConvGeneratorRoundTrip(t *testing.T) {
	for _, normalize := range []bool{false, true} {
		m, err := NewConv(convConfig(ModeGenerator, normalize))
		require.NoError(t, err)
		ae, ok := m.(Autoencoder)
		require.True(t, ok)

		x := randomBatch(t, 1, 4, 1, 32, 34)
		latent, shape, err := ae.Encode(x)
		require.NoError(t, err)
		assert.Equal(t, []int{4, 16}, latent.GetShape())
		assert.Equal(t, FeatureShape{Batch: 4, Channels: 128, Height: 1, Width: 34}, shape)

		out, err := ae.Decode(latent, shape)
		require.NoError(t, err)
		assert.Equal(t, []int{4, 1, 32, 17}, out.GetShape(), "normalize=%v", normalize)

		full, err := ae.Forward(x)
		require.NoError(t, err)
		assert.Equal(t, []int{4, 1, 32, 17}, full.GetShape())
	}
}

func TestConvLongerSequenceAndWideKernel(t *testing.T) {
	cfg := convConfig(ModeGenerator, true)
	cfg.SequenceLength = 64
	cfg.VerticalKernelSize = 3
	m, err := NewConvAutoencoder(cfg)
	require.NoError(t, err)

	out, err := m.Forward(randomBatch(t, 2, 2, 1, 64, 34))
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1, 64, 17}, out.GetShape())
}

func TestConvDecodeRejectsMismatchedShape(t *testing.T) {
	m, err := NewConvAutoencoder(convConfig(ModeGenerator, false))
	require.NoError(t, err)

	latent, shape, err := m.Encode(randomBatch(t, 1, 2, 1, 32, 34))
	require.NoError(t, err)

	shape.Height = 2
	_, err = m.Decode(latent, shape)
	assert.ErrorIs(t, err, ErrFeatureShape)

	shape.Height, shape.Batch = 1, 3
	_, err = m.Decode(latent, shape)
	assert.ErrorIs(t, err, ErrFeatureShape)
}

func TestLinearGeneratorRoundTrip(t *testing.T) {
	for _, normalize := range []bool{false, true} {
		m, err := NewLinear(linearConfig(ModeGenerator, normalize))
		require.NoError(t, err)
		ae, ok := m.(Autoencoder)
		require.True(t, ok)

		x := randomBatch(t, 1, 8, 1, 1, 34)
		latent, shape, err := ae.Encode(x)
		require.NoError(t, err)
		assert.Equal(t, []int{8, 8}, latent.GetShape())
		assert.Equal(t, FeatureShape{Batch: 8, Channels: 1, Height: 1, Width: 34}, shape)

		out, err := ae.Decode(latent, shape)
		require.NoError(t, err)
		assert.Equal(t, []int{8, 1, 1, 17}, out.GetShape(), "normalize=%v", normalize)
	}
}

func TestLinearEncodeRejectsWrongFeatureCount(t *testing.T) {
	m, err := NewLinear(linearConfig(ModeDiscriminator, false))
	require.NoError(t, err)
	_, _, err = m.Encode(randomBatch(t, 1, 2, 1, 2, 34))
	assert.Error(t, err)
}

func TestDiscriminatorForwardIsLatent(t *testing.T) {
	models := map[string]func() (Model, error){
		"conv":   func() (Model, error) { return NewConv(convConfig(ModeDiscriminator, true)) },
		"linear": func() (Model, error) { return NewLinear(linearConfig(ModeDiscriminator, true)) },
	}
	inputs := map[string][]int{
		"conv":   {3, 1, 32, 34},
		"linear": {3, 1, 1, 34},
	}
	for name, build := range models {
		t.Run(name, func(t *testing.T) {
			m, err := build()
			require.NoError(t, err)
			_, isAE := m.(Autoencoder)
			assert.False(t, isAE, "discriminator must not expose Decode")
			assert.Equal(t, ModeDiscriminator, m.Config().Mode)

			// eval mode keeps batch norm deterministic across the two passes
			m.SetTraining(false)
			x := randomBatch(t, 5, inputs[name]...)
			latent, _, err := m.Encode(x)
			require.NoError(t, err)
			out, err := m.Forward(x)
			require.NoError(t, err)
			assert.Equal(t, latent.GetShape(), out.GetShape())
			assert.InDeltaSlice(t, latent.GetData(), out.GetData(), 1e-12)
		})
	}
}

func TestTypedConstructorsCheckMode(t *testing.T) {
	cfg := convConfig("", false)
	ae, err := NewConvAutoencoder(cfg)
	require.NoError(t, err)
	assert.Equal(t, ModeGenerator, ae.Config().Mode)

	cfg = linearConfig("Discriminator", false)
	enc, err := NewLinearEncoder(cfg)
	require.NoError(t, err)
	assert.Equal(t, ModeDiscriminator, enc.Config().Mode)

	_, err = NewConvAutoencoder(convConfig(ModeDiscriminator, false))
	assert.ErrorIs(t, err, ErrMode)
	_, err = NewConvEncoder(convConfig("critic", false))
	assert.ErrorIs(t, err, ErrMode)
	_, err = NewLinearEncoder(linearConfig(ModeGenerator, false))
	assert.ErrorIs(t, err, ErrMode)
	_, err = NewLinearAutoencoder(linearConfig("critic", false))
	assert.ErrorIs(t, err, ErrMode)
}

func TestModeIsCaseInsensitive(t *testing.T) {
	m, err := NewConv(convConfig("Generator", false))
	require.NoError(t, err)
	_, ok := m.(*ConvAutoencoder)
	assert.True(t, ok)
	assert.Equal(t, ModeGenerator, m.Config().Mode)

	m, err = NewLinear(linearConfig(" DISCRIMINATOR", false))
	require.NoError(t, err)
	_, ok = m.(*LinearEncoder)
	assert.True(t, ok)
}

func TestLinearEncodeAcceptsAnyRank(t *testing.T) {
	m, err := NewLinear(linearConfig(ModeGenerator, false))
	require.NoError(t, err)
	ae := m.(Autoencoder)
	want := FeatureShape{Batch: 8, Channels: 1, Height: 1, Width: 34}

	for _, dims := range [][]int{{8, 34}, {8, 2, 17}, {8, 1, 1, 34}} {
		x := randomBatch(t, 1, dims...)
		latent, shape, err := ae.Encode(x)
		require.NoError(t, err, "input %v", dims)
		assert.Equal(t, []int{8, 8}, latent.GetShape())
		assert.Equal(t, want, shape)

		out, err := ae.Decode(latent, shape)
		require.NoError(t, err)
		assert.Equal(t, []int{8, 1, 1, 17}, out.GetShape())
	}

	// same data, same code whatever the layout
	flat, _, err := ae.Encode(randomBatch(t, 4, 8, 34))
	require.NoError(t, err)
	grid, _, err := ae.Encode(randomBatch(t, 4, 8, 1, 1, 34))
	require.NoError(t, err)
	assert.Equal(t, flat.GetData(), grid.GetData())

	_, _, err = ae.Encode(randomBatch(t, 1, 8, 33))
	assert.Error(t, err)
}

func TestNormalizeAddsBatchNormLayers(t *testing.T) {
	count := func(m Model) int {
		n := 0
		for _, l := range m.Layers() {
			if _, ok := l.(*nn.BatchNorm); ok {
				n++
			}
		}
		return n
	}

	plain, err := NewConv(convConfig(ModeGenerator, false))
	require.NoError(t, err)
	normed, err := NewConv(convConfig(ModeGenerator, true))
	require.NoError(t, err)
	assert.Equal(t, 0, count(plain))
	assert.Equal(t, 10, count(normed))

	plainLin, err := NewLinear(linearConfig(ModeGenerator, false))
	require.NoError(t, err)
	normedLin, err := NewLinear(linearConfig(ModeGenerator, true))
	require.NoError(t, err)
	assert.Equal(t, 0, count(plainLin))
	assert.Equal(t, 6, count(normedLin))
	assert.Greater(t, CountParameters(normedLin), CountParameters(plainLin))
}

func TestGradientsReachEveryParameter(t *testing.T) {
	builds := map[string]struct {
		build func() (Model, error)
		shape []int
	}{
		"conv generator":       {func() (Model, error) { return NewConv(convConfig(ModeGenerator, true)) }, []int{2, 1, 32, 34}},
		"conv discriminator":   {func() (Model, error) { return NewConv(convConfig(ModeDiscriminator, false)) }, []int{2, 1, 32, 34}},
		"linear generator":     {func() (Model, error) { return NewLinear(linearConfig(ModeGenerator, true)) }, []int{4, 1, 1, 34}},
		"linear discriminator": {func() (Model, error) { return NewLinear(linearConfig(ModeDiscriminator, false)) }, []int{4, 1, 1, 34}},
	}
	for name, tc := range builds {
		t.Run(name, func(t *testing.T) {
			m, err := tc.build()
			require.NoError(t, err)
			m.ZeroGrad()

			out, err := m.Forward(randomBatch(t, 8, tc.shape...))
			require.NoError(t, err)
			weightedLoss(t, out).Backward(nil)

			var total float64
			for i, p := range m.Parameters() {
				require.NotNil(t, p.Grad, "parameter %d has no gradient", i)
				for _, g := range p.Grad.GetData() {
					require.False(t, math.IsNaN(g), "parameter %d has NaN gradient", i)
					total += g * g
				}
			}
			assert.Greater(t, total, 0.0)

			m.ZeroGrad()
			for _, p := range m.Parameters() {
				for _, g := range p.Grad.GetData() {
					assert.Zero(t, g)
				}
			}
		})
	}
}

func TestSeedDeterminism(t *testing.T) {
	a, err := NewConv(convConfig(ModeGenerator, false))
	require.NoError(t, err)
	b, err := NewConv(convConfig(ModeGenerator, false))
	require.NoError(t, err)

	pa, pb := a.Parameters(), b.Parameters()
	require.Len(t, pb, len(pa))
	for i := range pa {
		assert.Equal(t, pa[i].GetData(), pb[i].GetData())
	}

	other := convConfig(ModeGenerator, false)
	other.Seed = 4
	c, err := NewConv(other)
	require.NoError(t, err)
	assert.NotEqual(t, pa[0].GetData(), c.Parameters()[0].GetData())
}

func TestCustomActivation(t *testing.T) {
	cfg := linearConfig(ModeGenerator, false)
	cfg.Activation = "does-not-matter"
	cfg.ActivationFunc = nn.Tanh
	m, err := NewLinear(cfg)
	require.NoError(t, err)
	assert.Equal(t, "custom", m.Config().ActivationName())

	names := map[string]bool{}
	for _, l := range m.Layers() {
		names[l.Name()] = true
	}
	assert.True(t, names["custom"])
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.yaml")
	doc := "latent_dim: 32\nsequence_length: 64\nmode: discriminator\nnormalize: true\nactivation: tanh\nvertical_kernel_size: 3\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := LoadConfig(path, DefaultConvConfig())
	require.NoError(t, err)
	assert.Equal(t, 32, cfg.LatentDim)
	assert.Equal(t, 64, cfg.SequenceLength)
	assert.Equal(t, ModeDiscriminator, cfg.Mode)
	assert.True(t, cfg.Normalize)
	assert.Equal(t, "tanh", cfg.Activation)
	assert.Equal(t, 3, cfg.VerticalKernelSize)
	assert.Equal(t, DefaultWidth, cfg.Width, "unset keys keep the base value")

	mixed := filepath.Join(t.TempDir(), "mixed.yaml")
	require.NoError(t, os.WriteFile(mixed, []byte("mode: Generator\n"), 0o644))
	cfg, err = LoadConfig(mixed, DefaultConvConfig())
	require.NoError(t, err)
	assert.Equal(t, ModeGenerator, cfg.Mode)
	_, err = NewConv(cfg)
	assert.NoError(t, err)

	badMode := filepath.Join(t.TempDir(), "critic.yaml")
	require.NoError(t, os.WriteFile(badMode, []byte("mode: critic\n"), 0o644))
	_, err = LoadConfig(badMode, DefaultConvConfig())
	assert.ErrorIs(t, err, ErrMode)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"), DefaultConvConfig())
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("latent_dim: [1, 2"), 0o644))
	_, err = LoadConfig(bad, DefaultConvConfig())
	assert.Error(t, err)
}

func TestFeatureShape(t *testing.T) {
	s := FeatureShape{Batch: 2, Channels: 128, Height: 1, Width: 34}
	assert.Equal(t, []int{2, 128, 1, 34}, s.Dims())
	assert.Equal(t, 128*34, s.Size())
	assert.Equal(t, "(2, 128, 1, 34)", s.String())
}
