package tensor

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)


// Transpose swaps the two axes of a 2D tensor: [M, N] -> [N, M].
func Transpose(t *Tensor) (*Tensor, error) {
	if len(t.shape) != 2 {
		return nil, fmt.Errorf("transpose only supports 2D tensors, got %v", t.shape)
	}
	m, n := t.shape[0], t.shape[1]

	var dst mat.Dense
	dst.CloneFrom(mat.NewDense(m, n, t.data).T())

	out := wrap([]int{n, m}, dst.RawMatrix().Data)
	return track(out, "transpose", func(grad *Tensor) {
		gradT, err := Transpose(detach(grad))
		if err != nil {
			return
		}
		t.Backward(gradT)
	}, t), nil
}



// MatMulTensor multiplies [M, K] @ [K, N] -> [M, N].
// the product runs through gonum's BLAS-backed Dense.Mul.
func MatMulTensor(t1 *Tensor, t2 *Tensor) (*Tensor, error) {
	if len(t1.shape) != 2 || len(t2.shape) != 2 {
		return nil, fmt.Errorf("matmul only supports 2D tensors ([M, K] @ [K, N]), got %v and %v", t1.shape, t2.shape)
	}
	m, k := t1.shape[0], t1.shape[1]
	k2, n := t2.shape[0], t2.shape[1]
	if k != k2 {
		return nil, fmt.Errorf("matmul incompatible shapes: inner dimensions mismatch %v and %v (%d != %d)", t1.shape, t2.shape, k, k2)
	}

	a := mat.NewDense(m, k, t1.data)
	b := mat.NewDense(k, n, t2.data)
	var c mat.Dense
	c.Mul(a, b)

	out := wrap([]int{m, n}, c.RawMatrix().Data)
	return track(out, "matmul", func(grad *Tensor) {
		g := mat.NewDense(m, n, grad.data)

		// dL/dA = dL/dO @ B^T
		if t1.RequiresGrad {
			var ga mat.Dense
			ga.Mul(g, b.T())
			t1.Backward(wrap(t1.shape, ga.RawMatrix().Data))
		}
		// dL/dB = A^T @ dL/dO
		if t2.RequiresGrad {
			var gb mat.Dense
			gb.Mul(a.T(), g)
			t2.Backward(wrap(t2.shape, gb.RawMatrix().Data))
		}
	}, t1, t2), nil
}



// Permute reorders the axes of t. axes must be a permutation of 0..rank-1.
func Permute(t *Tensor, axes []int) (*Tensor, error) {
	rank := len(t.shape)
	if len(axes) != rank {
		return nil, fmt.Errorf("permute expects %d axes for shape %v, got %v", rank, t.shape, axes)
	}
	seen := make([]bool, rank)
	for _, a := range axes {
		if a < 0 || a >= rank || seen[a] {
			return nil, fmt.Errorf("permute axes %v are not a permutation of %d dimensions", axes, rank)
		}
		seen[a] = true
	}

	newShape := make([]int, rank)
	for i, a := range axes {
		newShape[i] = t.shape[a]
	}
	inStrides := strides(t.shape)

	// stride of the source tensor along each output axis
	srcStrides := make([]int, rank)
	for i, a := range axes {
		srcStrides[i] = inStrides[a]
	}

	outData := make([]float64, len(t.data))
	idx := make([]int, rank)
	src := 0
	for dst := range outData {
		outData[dst] = t.data[src]
		// advance the output multi-index like an odometer, tracking the source offset
		for d := rank - 1; d >= 0; d-- {
			idx[d]++
			src += srcStrides[d]
			if idx[d] < newShape[d] {
				break
			}
			src -= srcStrides[d] * newShape[d]
			idx[d] = 0
		}
	}

	inverse := make([]int, rank)
	for i, a := range axes {
		inverse[a] = i
	}

	out := wrap(newShape, outData)
	return track(out, "permute", func(grad *Tensor) {
		back, err := Permute(detach(grad), inverse)
		if err != nil {
			return
		}
		t.Backward(back)
	}, t), nil
}



// AddBias adds a per-channel bias along axis 1: t is [B, C, ...], bias is [C].
func AddBias(t *Tensor, bias *Tensor) (*Tensor, error) {
	if len(t.shape) < 2 {
		return nil, fmt.Errorf("add bias expects at least 2 dimensions, got %v", t.shape)
	}
	channels := t.shape[1]
	if len(bias.shape) != 1 || bias.shape[0] != channels {
		return nil, fmt.Errorf("bias shape %v does not match channel dimension %d of %v", bias.shape, channels, t.shape)
	}
	batch := t.shape[0]
	inner := len(t.data) / (batch * channels)

	outData := make([]float64, len(t.data))
	biasData := bias.data
	for b := 0; b < batch; b++ {
		for c := 0; c < channels; c++ {
			base := (b*channels + c) * inner
			for i := 0; i < inner; i++ {
				outData[base+i] = t.data[base+i] + biasData[c]
			}
		}
	}

	out := wrap(t.shape, outData)
	return track(out, "add_bias", func(grad *Tensor) {
		if t.RequiresGrad {
			t.Backward(CloneTensor(grad))
		}
		if bias.RequiresGrad {
			biasGrad := make([]float64, channels)
			for b := 0; b < batch; b++ {
				for c := 0; c < channels; c++ {
					base := (b*channels + c) * inner
					for i := 0; i < inner; i++ {
						biasGrad[c] += grad.data[base+i]
					}
				}
			}
			bias.Backward(wrap(bias.shape, biasGrad))
		}
	}, t, bias), nil
}



func strides(shape []int) []int {
	s := make([]int, len(shape))
	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		s[i] = stride
		stride *= shape[i]
	}
	return s
}


// detach returns a gradient-free view of t, used when backward passes reuse forward ops.
func detach(t *Tensor) *Tensor {
	return wrap(t.shape, t.data)
}
