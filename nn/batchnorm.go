package nn

import (
	"fmt"
	"math"

	"go-seqae/tensor"
)


const (
	// BatchNormDecay weights the previous running statistics on every update.
	BatchNormDecay = 0.9
	// BatchNormEps keeps the variance away from zero.
	BatchNormEps = 2e-5
)


// BatchNorm normalizes axis 1 of a [B, C, ...] tensor over every other axis.
// while training it uses batch statistics and folds them into running averages;
// in eval mode it uses the running averages.
type BatchNorm struct {
	Gamma *tensor.Tensor // Shape: [C]
	Beta  *tensor.Tensor // Shape: [C]

	RunningMean []float64
	RunningVar  []float64

	training bool
}


func NewBatchNorm(channels int) (*BatchNorm, error) {
	gamma, err := constant(1, channels)
	if err != nil {
		return nil, fmt.Errorf("batchnorm failed to create gamma: %w", err)
	}
	beta, err := constant(0, channels)
	if err != nil {
		return nil, fmt.Errorf("batchnorm failed to create beta: %w", err)
	}
	runningVar := make([]float64, channels)
	for i := range runningVar {
		runningVar[i] = 1
	}
	return &BatchNorm{
		Gamma:       gamma,
		Beta:        beta,
		RunningMean: make([]float64, channels),
		RunningVar:  runningVar,
		training:    true,
	}, nil
}


func (bn *BatchNorm) SetTraining(training bool) { bn.training = training }
func (bn *BatchNorm) Training() bool            { return bn.training }



func (bn *BatchNorm) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	shape := input.GetShape()
	channels := len(bn.RunningMean)
	if len(shape) < 2 || shape[1] != channels {
		return nil, fmt.Errorf("batchnorm expects [B, %d, ...] input, got %v", channels, shape)
	}
	batch := shape[0]
	inner := tensor.Numel(input) / (batch * channels)
	m := batch * inner

	x := input.GetData()
	gamma, beta := bn.Gamma.GetData(), bn.Beta.GetData()

	// visits every element of channel c as data index i
	each := func(c int, fn func(i int)) {
		for b := 0; b < batch; b++ {
			base := (b*channels + c) * inner
			for k := 0; k < inner; k++ {
				fn(base + k)
			}
		}
	}

	mean := make([]float64, channels)
	invStd := make([]float64, channels)
	for c := 0; c < channels; c++ {
		if bn.training {
			var sum float64
			each(c, func(i int) { sum += x[i] })
			mu := sum / float64(m)
			var sq float64
			each(c, func(i int) { d := x[i] - mu; sq += d * d })
			variance := sq / float64(m)

			mean[c] = mu
			invStd[c] = 1 / math.Sqrt(variance+BatchNormEps)

			unbiased := variance
			if m > 1 {
				unbiased = variance * float64(m) / float64(m-1)
			}
			bn.RunningMean[c] = BatchNormDecay*bn.RunningMean[c] + (1-BatchNormDecay)*mu
			bn.RunningVar[c] = BatchNormDecay*bn.RunningVar[c] + (1-BatchNormDecay)*unbiased
		} else {
			mean[c] = bn.RunningMean[c]
			invStd[c] = 1 / math.Sqrt(bn.RunningVar[c]+BatchNormEps)
		}
	}

	xhat := make([]float64, len(x))
	outData := make([]float64, len(x))
	for c := 0; c < channels; c++ {
		each(c, func(i int) {
			xhat[i] = (x[i] - mean[c]) * invStd[c]
			outData[i] = gamma[c]*xhat[i] + beta[c]
		})
	}

	out, err := tensor.NewTensor(shape, outData)
	if err != nil {
		return nil, fmt.Errorf("batchnorm failed to create output tensor: %w", err)
	}

	if !(input.RequiresGrad || bn.Gamma.RequiresGrad || bn.Beta.RequiresGrad) {
		return out, nil
	}

	training := bn.training
	out.RequiresGrad = true
	out.Parents = []*tensor.Tensor{input, bn.Gamma, bn.Beta}
	out.Operation = "batchnorm"
	out.BackwardFunc = func(grad *tensor.Tensor) {
		dy := grad.GetData()
		dGamma := make([]float64, channels)
		dBeta := make([]float64, channels)
		dx := make([]float64, len(x))

		for c := 0; c < channels; c++ {
			var sumDy, sumDyXhat float64
			each(c, func(i int) {
				sumDy += dy[i]
				sumDyXhat += dy[i] * xhat[i]
			})
			dGamma[c] = sumDyXhat
			dBeta[c] = sumDy

			scale := gamma[c] * invStd[c]
			if training {
				// batch statistics depend on x as well:
				// dx = gamma * invStd * (dy - mean(dy) - xhat * mean(dy * xhat))
				meanDy := sumDy / float64(m)
				meanDyXhat := sumDyXhat / float64(m)
				each(c, func(i int) { dx[i] = scale * (dy[i] - meanDy - xhat[i]*meanDyXhat) })
			} else {
				each(c, func(i int) { dx[i] = scale * dy[i] })
			}
		}

		if input.RequiresGrad {
			if g, err := tensor.NewTensor(shape, dx); err == nil {
				input.Backward(g)
			}
		}
		if bn.Gamma.RequiresGrad {
			if g, err := tensor.NewTensor(bn.Gamma.GetShape(), dGamma); err == nil {
				bn.Gamma.Backward(g)
			}
		}
		if bn.Beta.RequiresGrad {
			if g, err := tensor.NewTensor(bn.Beta.GetShape(), dBeta); err == nil {
				bn.Beta.Backward(g)
			}
		}
	}
	return out, nil
}


func (bn *BatchNorm) Parameters() []*tensor.Tensor {
	return []*tensor.Tensor{bn.Gamma, bn.Beta}
}

func (bn *BatchNorm) ZeroGrad() {
	zeroGrad(bn.Gamma, bn.Beta)
}

func (bn *BatchNorm) Name() string {
	return fmt.Sprintf("BatchNorm(%d)", len(bn.RunningMean))
}
