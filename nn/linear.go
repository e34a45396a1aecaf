package nn

import (
	"fmt"

	"go-seqae/tensor"
)


// linear dense layer: output = input @ weight + bias
type Linear struct {
	weight *tensor.Tensor // Shape: [inputDimensions, outputDimensions]
	bias   *tensor.Tensor // Shape: [outputDimensions]
}



// NewLinear draws the weights from initW and starts the bias at zero.
func NewLinear(inputDimensions, outputDimensions int, initW *Initializer) (*Linear, error) {
	if inputDimensions <= 0 || outputDimensions <= 0 {
		return nil, fmt.Errorf("linear layer dimensions must be positive, got input %d, output %d", inputDimensions, outputDimensions)
	}

	weights, err := initW.Tensor(inputDimensions, outputDimensions)
	if err != nil {
		return nil, fmt.Errorf("linear layer failed to create weight tensor: %w", err)
	}
	bias, err := constant(0, outputDimensions)
	if err != nil {
		return nil, fmt.Errorf("linear layer failed to create bias tensor: %w", err)
	}

	return &Linear{weight: weights, bias: bias}, nil
}



// Forward maps [batch_size, input_dimensions] to [batch_size, output_dimensions].
func (l *Linear) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	inputShape := input.GetShape()
	if len(inputShape) != 2 {
		return nil, fmt.Errorf("linear layer expects 2D input tensor [batch_size, input_dimensions], got shape %v", inputShape)
	}
	if inputShape[1] != l.InputDimensions() {
		return nil, fmt.Errorf("linear layer input dimension mismatch: input %d, weight expected %d", inputShape[1], l.InputDimensions())
	}

	step, err := tensor.MatMulTensor(input, l.weight)
	if err != nil {
		return nil, fmt.Errorf("linear layer matmul failed: %w", err)
	}

	output, err := tensor.AddBias(step, l.bias)
	if err != nil {
		return nil, fmt.Errorf("linear layer bias addition failed: %w", err)
	}
	return output, nil
}


func (l *Linear) InputDimensions() int  { return l.weight.GetShape()[0] }
func (l *Linear) OutputDimensions() int { return l.weight.GetShape()[1] }

func (l *Linear) Weight() *tensor.Tensor { return l.weight }
func (l *Linear) Bias() *tensor.Tensor   { return l.bias }


func (l *Linear) Parameters() []*tensor.Tensor {
	return []*tensor.Tensor{l.weight, l.bias}
}

func (l *Linear) ZeroGrad() {
	zeroGrad(l.weight, l.bias)
}

func (l *Linear) Name() string {
	return fmt.Sprintf("Linear(%d->%d)", l.InputDimensions(), l.OutputDimensions())
}
