package model

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"go-seqae/nn"
)

// Mode selects whether a model is a pure encoder or a full encoder-decoder.
type Mode string

const (
	ModeDiscriminator Mode = "discriminator"
	ModeGenerator     Mode = "generator"
)

// ParseMode accepts "discriminator" or "generator", case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeDiscriminator, ModeGenerator:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrMode, s)
}

// Configuration errors. Constructors wrap these, match them with errors.Is.
var (
	ErrSequenceLength = errors.New("sequence length must be a positive multiple of 32")
	ErrMode           = errors.New("mode must be 'discriminator' or 'generator'")
	ErrLatentDim      = errors.New("latent dimension must be positive")
	ErrKernelSize     = errors.New("vertical kernel size must be a positive odd number")
	ErrWidth          = errors.New("input width must be a positive even number")
	ErrHidden         = errors.New("hidden width must be positive")
	ErrActivation     = nn.ErrUnknownActivation
)

// ConvSequenceMultiple is the total height reduction of the five stride-2 conv stages.
const ConvSequenceMultiple = 32

const (
	// DefaultWidth is 17 joints with an (x, y) pair each.
	DefaultWidth  = 34
	DefaultLatent = 64
	DefaultHidden = 128
)

// Config is fixed at construction; models keep their own copy.
type Config struct {
	LatentDim      int    `yaml:"latent_dim"`
	SequenceLength int    `yaml:"sequence_length"`
	Width          int    `yaml:"width"`
	Hidden         int    `yaml:"hidden"`
	Mode           Mode   `yaml:"mode"`
	Normalize      bool   `yaml:"normalize"`
	Activation     string `yaml:"activation"`
	// VerticalKernelSize is the kernel extent along the width axis; ConvModel only.
	VerticalKernelSize int    `yaml:"vertical_kernel_size"`
	Seed               uint64 `yaml:"seed"`

	// ActivationFunc overrides Activation when set.
	ActivationFunc nn.Activation `yaml:"-"`
}

func DefaultConvConfig() Config {
	return Config{
		LatentDim:          DefaultLatent,
		SequenceLength:     32,
		Width:              DefaultWidth,
		Hidden:             DefaultHidden,
		Mode:               ModeGenerator,
		Activation:         "leaky_relu",
		VerticalKernelSize: 1,
	}
}

func DefaultLinearConfig() Config {
	return Config{
		LatentDim:          DefaultLatent,
		SequenceLength:     1,
		Width:              DefaultWidth,
		Hidden:             DefaultHidden,
		Mode:               ModeGenerator,
		Activation:         "relu",
		VerticalKernelSize: 1,
	}
}

// LoadConfig overlays the YAML document at path on base.
func LoadConfig(path string, base Config) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("could not read config %s: %w", path, err)
	}
	cfg := base
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return base, fmt.Errorf("could not parse config %s: %w", path, err)
	}
	if cfg.Mode != "" {
		if cfg, err = cfg.resolveMode(); err != nil {
			return base, fmt.Errorf("config %s: %w", path, err)
		}
	}
	return cfg, nil
}

// OutputWidth is the width of decoder output: half the input width.
func (c Config) OutputWidth() int {
	return c.Width / 2
}

// ActivationName is how the configured activation shows up in layer listings.
func (c Config) ActivationName() string {
	if c.ActivationFunc != nil {
		return "custom"
	}
	return c.Activation
}

func (c Config) activation() (nn.Activation, error) {
	if c.ActivationFunc != nil {
		return c.ActivationFunc, nil
	}
	return nn.ActivationByName(c.Activation)
}

// resolveMode returns c with Mode in canonical form.
func (c Config) resolveMode() (Config, error) {
	m, err := ParseMode(string(c.Mode))
	if err != nil {
		return c, err
	}
	c.Mode = m
	return c, nil
}

// requireMode sets an empty Mode to want and rejects any other mode.
func (c Config) requireMode(want Mode) (Config, error) {
	if strings.TrimSpace(string(c.Mode)) == "" {
		c.Mode = want
		return c, nil
	}
	c, err := c.resolveMode()
	if err != nil {
		return c, err
	}
	if c.Mode != want {
		return c, fmt.Errorf("%w: %s constructor given mode %q", ErrMode, want, c.Mode)
	}
	return c, nil
}

func (c Config) validateCommon() error {
	if c.LatentDim <= 0 {
		return fmt.Errorf("%w, got %d", ErrLatentDim, c.LatentDim)
	}
	if c.Width <= 0 || c.Width%2 != 0 {
		return fmt.Errorf("%w, got %d", ErrWidth, c.Width)
	}
	if _, err := c.activation(); err != nil {
		return err
	}
	return nil
}

func (c Config) validateConv() error {
	if c.SequenceLength <= 0 || c.SequenceLength%ConvSequenceMultiple != 0 {
		return fmt.Errorf("%w, got %d", ErrSequenceLength, c.SequenceLength)
	}
	if c.VerticalKernelSize <= 0 || c.VerticalKernelSize%2 == 0 {
		return fmt.Errorf("%w, got %d", ErrKernelSize, c.VerticalKernelSize)
	}
	return c.validateCommon()
}

func (c Config) validateLinear() error {
	if c.SequenceLength <= 0 {
		return fmt.Errorf("%w, got %d", ErrSequenceLength, c.SequenceLength)
	}
	if c.Hidden <= 0 {
		return fmt.Errorf("%w, got %d", ErrHidden, c.Hidden)
	}
	return c.validateCommon()
}

func (c Config) withMode(m Mode) Config {
	c.Mode = m
	return c
}
