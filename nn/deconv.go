package nn

import (
	"fmt"

	"go-seqae/tensor"
)


// ConvTranspose2D (deconvolution) scatters every input pixel through the kernel.
// with the same geometry it inverts the spatial downsampling of a Conv2D.
type ConvTranspose2D struct {
	Weight *tensor.Tensor // Shape: [InChannels, OutChannels, KernelHeight, KernelWidth]
	Bias   *tensor.Tensor // Shape: [OutChannels]
	Geom   tensor.ConvGeometry
}


func NewConvTranspose2D(inChannels, outChannels int, geom tensor.ConvGeometry, initW *Initializer) (*ConvTranspose2D, error) {
	weights, err := initW.Tensor(inChannels, outChannels, geom.KernelH, geom.KernelW)
	if err != nil {
		return nil, fmt.Errorf("failed to create weight tensor: %w", err)
	}
	bias, err := constant(0, outChannels)
	if err != nil {
		return nil, fmt.Errorf("failed to create bias tensor: %w", err)
	}
	return &ConvTranspose2D{Weight: weights, Bias: bias, Geom: geom}, nil
}



// Forward computes W^T @ x as columns and folds them into the upsampled output:
// [Out*KH*KW, In] @ [In, B*H*W] -> fold -> [B, Out, H', W'].
func (d *ConvTranspose2D) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	inShape := input.GetShape()
	if len(inShape) != 4 {
		return nil, fmt.Errorf("deconv expects a 4D input [B, C, H, W], got %v", inShape)
	}
	wShape := d.Weight.GetShape()
	inChannels, outChannels := wShape[0], wShape[1]
	if inShape[1] != inChannels {
		return nil, fmt.Errorf("deconv expects %d input channels, got %d", inChannels, inShape[1])
	}
	batchSize, height, width := inShape[0], inShape[2], inShape[3]

	outHeight, outWidth := d.Geom.TransposedSize(height, width)
	if outHeight <= 0 || outWidth <= 0 {
		return nil, fmt.Errorf("deconv over %v produces invalid output size: %dx%d", inShape, outHeight, outWidth)
	}

	channelsFirst, err := tensor.Permute(input, []int{1, 0, 2, 3})
	if err != nil {
		return nil, fmt.Errorf("deconv forward failed during permute: %w", err)
	}
	inputMatrix, err := tensor.Reshape(channelsFirst, []int{inChannels, batchSize * height * width})
	if err != nil {
		return nil, fmt.Errorf("deconv forward failed reshaping input: %w", err)
	}

	kernelMatrix, err := tensor.Reshape(d.Weight, []int{inChannels, tensor.Numel(d.Weight) / inChannels})
	if err != nil {
		return nil, fmt.Errorf("deconv forward failed reshaping kernel: %w", err)
	}
	kernelT, err := tensor.Transpose(kernelMatrix)
	if err != nil {
		return nil, fmt.Errorf("deconv forward failed transposing kernel: %w", err)
	}

	cols, err := tensor.MatMulTensor(kernelT, inputMatrix)
	if err != nil {
		return nil, fmt.Errorf("deconv forward failed during matmul: %w", err)
	}

	folded, err := tensor.Fold(cols, []int{batchSize, outChannels, outHeight, outWidth}, d.Geom)
	if err != nil {
		return nil, fmt.Errorf("deconv forward failed during col2im: %w", err)
	}

	out, err := tensor.AddBias(folded, d.Bias)
	if err != nil {
		return nil, fmt.Errorf("deconv forward failed during bias add: %w", err)
	}
	return out, nil
}


func (d *ConvTranspose2D) Parameters() []*tensor.Tensor {
	return []*tensor.Tensor{d.Weight, d.Bias}
}

func (d *ConvTranspose2D) ZeroGrad() {
	zeroGrad(d.Weight, d.Bias)
}

func (d *ConvTranspose2D) Name() string {
	s := d.Weight.GetShape()
	return fmt.Sprintf("Deconv2D(%d->%d, k=%dx%d, s=%dx%d)", s[0], s[1], d.Geom.KernelH, d.Geom.KernelW, d.Geom.StrideH, d.Geom.StrideW)
}
