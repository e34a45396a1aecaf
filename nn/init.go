package nn

import (
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"go-seqae/tensor"
)


// InitStdDev is the standard deviation of the Gaussian used for every weight.
const InitStdDev = 0.02


// Initializer draws layer weights from a zero-mean Gaussian.
// layers constructed from one Initializer consume its stream in construction order,
// so a fixed seed reproduces the same parameters.
type Initializer struct {
	dist distuv.Normal
}


// NewInitializer seeds a N(0, stddev) generator. seed 0 picks a time-based seed.
func NewInitializer(stddev float64, seed uint64) *Initializer {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Initializer{dist: distuv.Normal{
		Mu:    0,
		Sigma: stddev,
		Src:   rand.NewPCG(seed, seed^0x9e3779b97f4a7c15),
	}}
}


// Tensor allocates a parameter of the given shape filled with Gaussian samples.
func (in *Initializer) Tensor(shape ...int) (*tensor.Tensor, error) {
	t, err := tensor.NewTensor(shape, nil)
	if err != nil {
		return nil, err
	}
	data := t.GetData()
	for i := range data {
		data[i] = in.dist.Rand()
	}
	t.RequiresGrad = true
	return t, nil
}


// constant allocates a parameter filled with v.
func constant(v float64, shape ...int) (*tensor.Tensor, error) {
	t, err := tensor.NewTensor(shape, nil)
	if err != nil {
		return nil, err
	}
	if v != 0 {
		data := t.GetData()
		for i := range data {
			data[i] = v
		}
	}
	t.RequiresGrad = true
	return t, nil
}
