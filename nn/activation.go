package nn

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"go-seqae/tensor"
)


// Activation is an elementwise nonlinearity that participates in autograd.
type Activation func(t *tensor.Tensor) (*tensor.Tensor, error)


// ErrUnknownActivation is returned when an activation name is not registered.
var ErrUnknownActivation = errors.New("unknown activation")


// LeakySlope is the negative slope used by the "leaky_relu" activation.
const LeakySlope = 0.2


var activations = map[string]Activation{
	"relu":       RELU,
	"leaky_relu": func(t *tensor.Tensor) (*tensor.Tensor, error) { return LeakyRELU(t, LeakySlope) },
	"sigmoid":    Sigmoid,
	"tanh":       Tanh,
}


// ActivationByName resolves one of the registered activation names.
func ActivationByName(name string) (Activation, error) {
	fn, ok := activations[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w %q (known: %s)", ErrUnknownActivation, name, strings.Join(ActivationNames(), ", "))
	}
	return fn, nil
}


// ActivationNames lists the registered activation names in sorted order.
func ActivationNames() []string {
	names := make([]string, 0, len(activations))
	for name := range activations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}



// elementwise applies f and wires the gradient dy/dx = df(x, y) into the graph.
func elementwise(t *tensor.Tensor, op string, f func(x float64) float64, df func(x, y float64) float64) (*tensor.Tensor, error) {
	tData := t.GetData()
	outData := make([]float64, len(tData))
	for i, v := range tData {
		outData[i] = f(v)
	}

	r, err := tensor.NewTensor(t.GetShape(), outData)
	if err != nil {
		return nil, fmt.Errorf("%s failed to create output tensor: %w", op, err)
	}

	if t.RequiresGrad {
		r.RequiresGrad = true
		r.Parents = []*tensor.Tensor{t}
		r.Operation = op

		// dL/dx_i = dL/dy_i * dy_i/dx_i
		r.BackwardFunc = func(grad *tensor.Tensor) {
			gradData := grad.GetData()
			gradDataForT := make([]float64, len(gradData))
			for i := range gradDataForT {
				gradDataForT[i] = gradData[i] * df(tData[i], outData[i])
			}
			gradTensorForT, err := tensor.NewTensor(t.GetShape(), gradDataForT)
			if err != nil {
				return
			}
			t.Backward(gradTensorForT)
		}
	}
	return r, nil
}



// out = max(0, t)
func RELU(t *tensor.Tensor) (*tensor.Tensor, error) {
	return elementwise(t, "relu",
		func(x float64) float64 { return math.Max(0, x) },
		func(x, _ float64) float64 {
			if x > 0 {
				return 1
			}
			return 0
		})
}



// out = t for t > 0, slope * t otherwise
func LeakyRELU(t *tensor.Tensor, slope float64) (*tensor.Tensor, error) {
	return elementwise(t, "leaky_relu",
		func(x float64) float64 {
			if x > 0 {
				return x
			}
			return slope * x
		},
		func(x, _ float64) float64 {
			if x > 0 {
				return 1
			}
			return slope
		})
}



// out = 1 / (1 + exp(-t)), gradient y * (1 - y)
func Sigmoid(t *tensor.Tensor) (*tensor.Tensor, error) {
	return elementwise(t, "sigmoid",
		func(x float64) float64 { return 1.0 / (1.0 + math.Exp(-x)) },
		func(_, y float64) float64 { return y * (1 - y) })
}



// out = tanh(t), gradient 1 - y^2
func Tanh(t *tensor.Tensor) (*tensor.Tensor, error) {
	return elementwise(t, "tanh", math.Tanh,
		func(_, y float64) float64 { return 1 - y*y })
}
