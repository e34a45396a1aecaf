package nn

import (
	"fmt"

	"go-seqae/tensor"
)

// Flatten reshapes a multi-dimensional tensor into a 2D tensor [Batch, Features].
type Flatten struct{}


func NewFlatten() *Flatten {
	return &Flatten{}
}


func (f *Flatten) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	inputShape := input.GetShape()
	if len(inputShape) == 0 {
		return nil, fmt.Errorf("flatten expects a batched tensor, got shape %v", inputShape)
	}
	batchSize := inputShape[0]
	return tensor.Reshape(input, []int{batchSize, tensor.Numel(input) / batchSize})
}

func (f *Flatten) Parameters() []*tensor.Tensor { return nil }
func (f *Flatten) ZeroGrad()                    {}

func (f *Flatten) Name() string {
	return "Flatten"
}
