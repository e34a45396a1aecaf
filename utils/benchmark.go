// Package utils times model passes for the bench command.
package utils

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"go-seqae/model"
	"go-seqae/tensor"
)

// Result holds the per-iteration timings of one benchmark.
type Result struct {
	Name       string
	Iterations int
	Mean       time.Duration
	Min        time.Duration
	Max        time.Duration
}

func (r Result) String() string {
	return fmt.Sprintf("%s: mean %v, min %v, max %v over %d iterations", r.Name, r.Mean, r.Min, r.Max, r.Iterations)
}

func (r *Result) add(d time.Duration) {
	if r.Iterations == 0 || d < r.Min {
		r.Min = d
	}
	if d > r.Max {
		r.Max = d
	}
	r.Mean = (r.Mean*time.Duration(r.Iterations) + d) / time.Duration(r.Iterations+1)
	r.Iterations++
}

// RandomInput returns a uniform [-1, 1) batch shaped for m's encoder.
func RandomInput(m model.Model, batch int, rng *rand.Rand) (*tensor.Tensor, error) {
	if batch <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batch)
	}
	cfg := m.Config()
	shape := []int{batch, 1, cfg.SequenceLength, cfg.Width}
	data := make([]float64, batch*cfg.SequenceLength*cfg.Width)
	for i := range data {
		data[i] = rng.Float64()*2 - 1
	}
	return tensor.NewTensor(shape, data)
}

// Forward times iterations forward passes on a fixed random batch.
func Forward(m model.Model, batch, iterations int, rng *rand.Rand) (Result, error) {
	res := Result{Name: "forward"}
	x, err := RandomInput(m, batch, rng)
	if err != nil {
		return res, err
	}
	for i := 0; i < iterations; i++ {
		start := time.Now()
		if _, err := m.Forward(x); err != nil {
			return res, fmt.Errorf("forward iteration %d: %w", i, err)
		}
		res.add(time.Since(start))
	}
	slog.Debug("benchmark complete", "result", res.String())
	return res, nil
}

// ForwardBackward times a forward pass, a sum reduction and the backward pass.
// Gradients are cleared outside the timed region.
func ForwardBackward(m model.Model, batch, iterations int, rng *rand.Rand) (Result, error) {
	res := Result{Name: "forward+backward"}
	x, err := RandomInput(m, batch, rng)
	if err != nil {
		return res, err
	}
	for i := 0; i < iterations; i++ {
		m.ZeroGrad()

		start := time.Now()
		out, err := m.Forward(x)
		if err != nil {
			return res, fmt.Errorf("forward iteration %d: %w", i, err)
		}
		tensor.SumAll(out).Backward(nil)
		res.add(time.Since(start))
	}
	slog.Debug("benchmark complete", "result", res.String())
	return res, nil
}
