package nn

import "go-seqae/tensor"


// Layer defines the interface that all neural network layers must implement.
type Layer interface {
	Forward(input *tensor.Tensor) (*tensor.Tensor, error)
	Parameters() []*tensor.Tensor
	ZeroGrad()
	Name() string
}


// TrainingModer is implemented by layers that behave differently while training (batch norm).
type TrainingModer interface {
	SetTraining(training bool)
}


// --- Activation Layers ---

// ActivationLayer lifts an Activation into a parameterless Layer.
type ActivationLayer struct {
	fn   Activation
	name string
}

func NewActivationLayer(name string, fn Activation) *ActivationLayer {
	return &ActivationLayer{fn: fn, name: name}
}

func (a *ActivationLayer) Forward(input *tensor.Tensor) (*tensor.Tensor, error) { return a.fn(input) }
func (a *ActivationLayer) Parameters() []*tensor.Tensor                       { return nil }
func (a *ActivationLayer) ZeroGrad()                                          {}
func (a *ActivationLayer) Name() string                                       { return a.name }


func zeroGrad(params ...*tensor.Tensor) {
	for _, p := range params {
		p.ZeroGrad()
	}
}
