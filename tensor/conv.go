package tensor

import (
	"fmt"
	"runtime"
	"sync"
)


// ConvGeometry describes a sliding window over the last two axes of a [B, C, H, W] tensor.
type ConvGeometry struct {
	KernelH, KernelW int
	StrideH, StrideW int
	PadH, PadW       int
}


func (g ConvGeometry) validate() error {
	if g.KernelH <= 0 || g.KernelW <= 0 || g.StrideH <= 0 || g.StrideW <= 0 || g.PadH < 0 || g.PadW < 0 {
		return fmt.Errorf("invalid convolution geometry %+v", g)
	}
	return nil
}


// OutputSize is the spatial size produced by a convolution over an h x w input.
func (g ConvGeometry) OutputSize(h, w int) (int, int) {
	return (h+2*g.PadH-g.KernelH)/g.StrideH + 1, (w+2*g.PadW-g.KernelW)/g.StrideW + 1
}


// TransposedSize is the spatial size produced by a transposed convolution over an h x w input.
func (g ConvGeometry) TransposedSize(h, w int) (int, int) {
	return g.StrideH*(h-1) + g.KernelH - 2*g.PadH, g.StrideW*(w-1) + g.KernelW - 2*g.PadW
}



// Unfold (im2col) lays every receptive field of input out as a column:
// [B, C, H, W] -> [C*KH*KW, B*OH*OW]. its gradient is Fold.
func Unfold(input *Tensor, g ConvGeometry) (*Tensor, error) {
	if len(input.shape) != 4 {
		return nil, fmt.Errorf("unfold expects a 4D input tensor, but got %dD", len(input.shape))
	}
	if err := g.validate(); err != nil {
		return nil, err
	}
	outHeight, outWidth := g.OutputSize(input.shape[2], input.shape[3])
	if outHeight <= 0 || outWidth <= 0 {
		return nil, fmt.Errorf("convolution over %v produces invalid output size: %dx%d", input.shape, outHeight, outWidth)
	}

	inputShape := input.shape
	cols, colShape := im2col(input.data, inputShape, g)

	out := wrap(colShape, cols)
	return track(out, "unfold", func(grad *Tensor) {
		input.Backward(wrap(inputShape, col2im(grad.data, colShape, inputShape, g)))
	}, input), nil
}



// Fold (col2im) sums columns back into a [B, C, H, W] tensor of the given shape,
// accumulating where windows overlap. its gradient is Unfold.
func Fold(cols *Tensor, outputShape []int, g ConvGeometry) (*Tensor, error) {
	if len(outputShape) != 4 {
		return nil, fmt.Errorf("fold requires a 4D target shape, but got %v", outputShape)
	}
	if err := g.validate(); err != nil {
		return nil, err
	}
	batchSize, channels := outputShape[0], outputShape[1]
	outHeight, outWidth := g.OutputSize(outputShape[2], outputShape[3])
	want := []int{channels * g.KernelH * g.KernelW, batchSize * outHeight * outWidth}
	if !sameShape(cols.shape, want) {
		return nil, fmt.Errorf("fold expects columns of shape %v for target %v, got %v", want, outputShape, cols.shape)
	}

	colShape := cols.shape
	target := append([]int{}, outputShape...)

	out := wrap(target, col2im(cols.data, colShape, target, g))
	return track(out, "fold", func(grad *Tensor) {
		colsGrad, _ := im2col(grad.data, target, g)
		cols.Backward(wrap(colShape, colsGrad))
	}, cols), nil
}



// im2col uses core-parallelization over the batch dimension.
func im2col(inputData []float64, shape []int, g ConvGeometry) ([]float64, []int) {
	batchSize, channels, height, width := shape[0], shape[1], shape[2], shape[3]
	outHeight, outWidth := g.OutputSize(height, width)

	outputCols := outHeight * outWidth
	colShape := []int{channels * g.KernelH * g.KernelW, batchSize * outputCols}
	colData := make([]float64, colShape[0]*colShape[1])

	parallel(batchSize, func(b int) {
		for c := 0; c < channels; c++ {
			for kh := 0; kh < g.KernelH; kh++ {
				for kw := 0; kw < g.KernelW; kw++ {
					colRow := (c*g.KernelH+kh)*g.KernelW + kw
					rowBase := colRow*colShape[1] + b*outputCols
					for oh := 0; oh < outHeight; oh++ {
						inputRow := kh - g.PadH + oh*g.StrideH
						if inputRow < 0 || inputRow >= height {
							continue
						}
						srcBase := ((b*channels+c)*height + inputRow) * width
						for ow := 0; ow < outWidth; ow++ {
							inputCol := kw - g.PadW + ow*g.StrideW
							if inputCol >= 0 && inputCol < width {
								colData[rowBase+oh*outWidth+ow] = inputData[srcBase+inputCol]
							}
						}
					}
				}
			}
		}
	})
	return colData, colShape
}



// col2im splits work across batch/channel pairs so no two goroutines write the same image plane.
func col2im(colData []float64, colShape, shape []int, g ConvGeometry) []float64 {
	batchSize, channels, height, width := shape[0], shape[1], shape[2], shape[3]
	outHeight, outWidth := g.OutputSize(height, width)
	outputCols := outHeight * outWidth

	imgData := make([]float64, batchSize*channels*height*width)

	parallel(batchSize*channels, func(job int) {
		b := job / channels
		c := job % channels
		for kh := 0; kh < g.KernelH; kh++ {
			for kw := 0; kw < g.KernelW; kw++ {
				colRow := (c*g.KernelH+kh)*g.KernelW + kw
				rowBase := colRow*colShape[1] + b*outputCols
				for oh := 0; oh < outHeight; oh++ {
					inputRow := kh - g.PadH + oh*g.StrideH
					if inputRow < 0 || inputRow >= height {
						continue
					}
					destBase := ((b*channels+c)*height + inputRow) * width
					for ow := 0; ow < outWidth; ow++ {
						inputCol := kw - g.PadW + ow*g.StrideW
						if inputCol >= 0 && inputCol < width {
							imgData[destBase+inputCol] += colData[rowBase+oh*outWidth+ow]
						}
					}
				}
			}
		}
	})
	return imgData
}



// parallel runs fn(0..jobs-1) across runtime.NumCPU() goroutines in contiguous chunks.
func parallel(jobs int, fn func(job int)) {
	numGoroutines := runtime.NumCPU()
	jobsPerGo := (jobs + numGoroutines - 1) / numGoroutines
	var wg sync.WaitGroup

	for i := 0; i < numGoroutines; i++ {
		start := i * jobsPerGo
		end := start + jobsPerGo
		if end > jobs {
			end = jobs
		}
		if start >= end {
			continue
		}

		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for job := s; job < e; job++ {
				fn(job)
			}
		}(start, end)
	}
	wg.Wait()
}
