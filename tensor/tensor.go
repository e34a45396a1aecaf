package tensor

import (
	"fmt"
	"log/slog"
	"strings"
)


// Tensor is a dense row-major float64 array that records the operation that produced it,
// so gradients can be pushed back to its parents.
type Tensor struct {
	shape        []int
	data         []float64
	Grad         *Tensor
	RequiresGrad bool
	Parents      []*Tensor
	Operation    string
	BackwardFunc func(*Tensor)
}



// IsSameSize reports whether two tensors have identical shapes.
func IsSameSize(a, b *Tensor) bool {
	return sameShape(a.shape, b.shape)
}


func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}



// NewTensor builds a tensor with the given shape. An empty data slice allocates zeros.
func NewTensor(shape []int, data []float64) (*Tensor, error) {
	total := 1
	for _, dim := range shape {
		if dim <= 0 {
			return nil, fmt.Errorf("shape %v contains non-positive dimension", shape)
		}
		total *= dim
	}
	if len(data) > 0 && total != len(data) {
		return nil, fmt.Errorf("shape %v implies %d elements but data has length %d", shape, total, len(data))
	}
	if len(data) == 0 {
		data = make([]float64, total)
	} else {
		data = append([]float64{}, data...)
	}

	return &Tensor{
		shape: append([]int{}, shape...),
		data:  data,
	}, nil
}


// wrap takes ownership of data without copying. callers guarantee len(data) matches shape.
func wrap(shape []int, data []float64) *Tensor {
	return &Tensor{shape: append([]int{}, shape...), data: data}
}



// CloneTensor copies shape and data. the clone is detached from the graph.
func CloneTensor(t *Tensor) *Tensor {
	clonedData := make([]float64, len(t.data))
	copy(clonedData, t.data)

	return &Tensor{
		data:         clonedData,
		shape:        append([]int{}, t.shape...),
		RequiresGrad: t.RequiresGrad,
	}
}



// Numel returns the number of elements in a tensor.
func Numel(t *Tensor) int {
	if t == nil {
		return 0
	}
	return len(t.data)
}



// this defines the GetData() and GetShape() accessors
func (t *Tensor) GetData() []float64 {
	return t.data
}

func (t *Tensor) GetShape() []int {
	return t.shape
}


// Dims returns the rank of the tensor.
func (t *Tensor) Dims() int {
	return len(t.shape)
}



// track marks out as the result of op over parents when any of them requires grad.
// backward is only installed in that case.
func track(out *Tensor, op string, backward func(grad *Tensor), parents ...*Tensor) *Tensor {
	for _, p := range parents {
		if p.RequiresGrad {
			out.RequiresGrad = true
			out.Parents = parents
			out.Operation = op
			out.BackwardFunc = backward
			break
		}
	}
	return out
}



// AddTensor adds two tensors of the same shape.
func AddTensor(t1 *Tensor, t2 *Tensor) (*Tensor, error) {
	if !IsSameSize(t1, t2) {
		return nil, fmt.Errorf("tensors of shape %v and %v have different sizes for addition", t1.shape, t2.shape)
	}

	outData := make([]float64, len(t1.data))
	for i := range t1.data {
		outData[i] = t1.data[i] + t2.data[i]
	}

	out := wrap(t1.shape, outData)
	return track(out, "add", func(grad *Tensor) {
		if t1.RequiresGrad {
			t1.Backward(CloneTensor(grad))
		}
		if t2.RequiresGrad {
			t2.Backward(CloneTensor(grad))
		}
	}, t1, t2), nil
}



// Reshape returns a tensor with the same data under a new shape.
func Reshape(t *Tensor, newShape []int) (*Tensor, error) {
	reshapedNumel := 1
	for _, dim := range newShape {
		if dim <= 0 {
			return nil, fmt.Errorf("newShape %v contains non-positive dimension", newShape)
		}
		reshapedNumel *= dim
	}
	if Numel(t) != reshapedNumel {
		return nil, fmt.Errorf("cannot reshape tensor with %d elements to shape %v (requires %d elements)", Numel(t), newShape, reshapedNumel)
	}

	outData := make([]float64, len(t.data))
	copy(outData, t.data)

	out := wrap(newShape, outData)
	return track(out, "reshape", func(grad *Tensor) {
		gradData := make([]float64, len(grad.data))
		copy(gradData, grad.data)
		t.Backward(wrap(t.shape, gradData))
	}, t), nil
}



// sets the gradient of a tensor to zero
func (t *Tensor) ZeroGrad() {
	if t.Grad != nil {
		for i := range t.Grad.data {
			t.Grad.data[i] = 0
		}
	} else if t.RequiresGrad {
		t.Grad = wrap(t.shape, make([]float64, len(t.data)))
	}
}



// Backward accumulates grad into t.Grad and forwards it to the parents.
// a nil grad is only valid for single-element tensors and seeds the pass with 1.
func (t *Tensor) Backward(grad *Tensor) {
	if !t.RequiresGrad {
		return
	}

	if grad == nil {
		if Numel(t) != 1 {
			slog.Warn("backward called with nil grad on non-scalar tensor", "shape", t.shape)
			return
		}
		grad = wrap(t.shape, []float64{1.0})
	} else if !IsSameSize(t, grad) {
		slog.Warn("gradient shape mismatch in backward", "op", t.Operation, "shape", t.shape, "grad", grad.shape)
		return
	}

	if t.Grad == nil {
		gradDataCopy := make([]float64, len(grad.data))
		copy(gradDataCopy, grad.data)
		t.Grad = wrap(t.shape, gradDataCopy)
	} else {
		for i := range t.Grad.data {
			t.Grad.data[i] += grad.data[i]
		}
	}

	if t.BackwardFunc != nil {
		t.BackwardFunc(grad)
	}
}



// SumAll reduces a tensor to a single-element tensor of shape [1].
func SumAll(t *Tensor) *Tensor {
	var sum float64
	for _, v := range t.data {
		sum += v
	}
	out := wrap([]int{1}, []float64{sum})
	return track(out, "sum", func(grad *Tensor) {
		g := grad.data[0]
		gradData := make([]float64, len(t.data))
		for i := range gradData {
			gradData[i] = g
		}
		t.Backward(wrap(t.shape, gradData))
	}, t)
}



// String renders shape, op and a short prefix of the data.
func (t *Tensor) String() string {
	if t == nil {
		return "<nil tensor>"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Tensor(shape=%v", t.shape)
	const preview = 8
	if len(t.data) > preview {
		fmt.Fprintf(&b, ", data=%v...", t.data[:preview])
	} else {
		fmt.Fprintf(&b, ", data=%v", t.data)
	}
	fmt.Fprintf(&b, ", requires_grad=%v", t.RequiresGrad)
	if t.Operation != "" {
		fmt.Fprintf(&b, ", op=%s", t.Operation)
	}
	b.WriteString(")")
	return b.String()
}
