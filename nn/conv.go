package nn

import (
	"fmt"

	"go-seqae/tensor"
)


// Conv2D implements a 2D convolutional layer with a rectangular kernel, fully integrated with autograd.
type Conv2D struct {
	Weight *tensor.Tensor // Shape: [OutChannels, InChannels, KernelHeight, KernelWidth]
	Bias   *tensor.Tensor // Shape: [OutChannels]
	Geom   tensor.ConvGeometry
}



// creates a new Conv2D layer.
func NewConv2D(inChannels, outChannels int, geom tensor.ConvGeometry, initW *Initializer) (*Conv2D, error) {
	weights, err := initW.Tensor(outChannels, inChannels, geom.KernelH, geom.KernelW)
	if err != nil {
		return nil, fmt.Errorf("failed to create weight tensor: %w", err)
	}
	bias, err := constant(0, outChannels)
	if err != nil {
		return nil, fmt.Errorf("failed to create bias tensor: %w", err)
	}

	return &Conv2D{Weight: weights, Bias: bias, Geom: geom}, nil
}



// Forward lowers the convolution to a single matmul over unfolded input columns:
// [Out, C*KH*KW] @ [C*KH*KW, B*OH*OW].
func (c *Conv2D) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	inShape := input.GetShape()
	if len(inShape) != 4 {
		return nil, fmt.Errorf("conv expects a 4D input [B, C, H, W], got %v", inShape)
	}
	wShape := c.Weight.GetShape()
	outChannels, inChannels := wShape[0], wShape[1]
	if inShape[1] != inChannels {
		return nil, fmt.Errorf("conv expects %d input channels, got %d", inChannels, inShape[1])
	}

	inputCols, err := tensor.Unfold(input, c.Geom)
	if err != nil {
		return nil, fmt.Errorf("conv forward failed during im2col: %w", err)
	}

	kernelMatrix, err := tensor.Reshape(c.Weight, []int{outChannels, tensor.Numel(c.Weight) / outChannels})
	if err != nil {
		return nil, fmt.Errorf("conv forward failed reshaping kernel: %w", err)
	}

	outputMatMul, err := tensor.MatMulTensor(kernelMatrix, inputCols)
	if err != nil {
		return nil, fmt.Errorf("conv forward failed during matmul: %w", err)
	}

	// reshape the output back into an image-like format
	outHeight, outWidth := c.Geom.OutputSize(inShape[2], inShape[3])
	outputReshaped, err := tensor.Reshape(outputMatMul, []int{outChannels, inShape[0], outHeight, outWidth})
	if err != nil {
		return nil, fmt.Errorf("conv forward failed reshaping output: %w", err)
	}

	outputPermuted, err := tensor.Permute(outputReshaped, []int{1, 0, 2, 3})
	if err != nil {
		return nil, fmt.Errorf("conv forward failed during permute: %w", err)
	}

	finalOutput, err := tensor.AddBias(outputPermuted, c.Bias)
	if err != nil {
		return nil, fmt.Errorf("conv forward failed during bias add: %w", err)
	}
	return finalOutput, nil
}


func (c *Conv2D) Parameters() []*tensor.Tensor {
	return []*tensor.Tensor{c.Weight, c.Bias}
}


func (c *Conv2D) ZeroGrad() {
	zeroGrad(c.Weight, c.Bias)
}


func (c *Conv2D) Name() string {
	s := c.Weight.GetShape()
	return fmt.Sprintf("Conv2D(%d->%d, k=%dx%d, s=%dx%d)", s[1], s[0], c.Geom.KernelH, c.Geom.KernelW, c.Geom.StrideH, c.Geom.StrideW)
}
