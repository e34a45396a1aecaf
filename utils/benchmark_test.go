package utils

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-seqae/model"
)

func smallLinear(t *testing.T) model.Model {
	t.Helper()
	cfg := model.DefaultLinearConfig()
	cfg.Hidden = 8
	cfg.LatentDim = 4
	cfg.Seed = 2
	m, err := model.NewLinear(cfg)
	require.NoError(t, err)
	return m
}

func TestResultAdd(t *testing.T) {
	var r Result
	r.add(3 * time.Millisecond)
	r.add(1 * time.Millisecond)
	r.add(2 * time.Millisecond)
	assert.Equal(t, 3, r.Iterations)
	assert.Equal(t, time.Millisecond, r.Min)
	assert.Equal(t, 3*time.Millisecond, r.Max)
	assert.Equal(t, 2*time.Millisecond, r.Mean)
}

func TestRandomInputShape(t *testing.T) {
	m := smallLinear(t)
	x, err := RandomInput(m, 3, rand.New(rand.NewPCG(1, 2)))
	require.NoError(t, err)
	assert.Equal(t, []int{3, 1, 1, 34}, x.GetShape())
	for _, v := range x.GetData() {
		assert.True(t, v >= -1 && v < 1)
	}

	_, err = RandomInput(m, 0, rand.New(rand.NewPCG(1, 2)))
	assert.Error(t, err)
}

func TestForwardAndBackwardBenchmarks(t *testing.T) {
	m := smallLinear(t)
	rng := rand.New(rand.NewPCG(1, 2))

	fwd, err := Forward(m, 2, 3, rng)
	require.NoError(t, err)
	assert.Equal(t, 3, fwd.Iterations)
	assert.LessOrEqual(t, fwd.Min, fwd.Max)

	fb, err := ForwardBackward(m, 2, 2, rng)
	require.NoError(t, err)
	assert.Equal(t, 2, fb.Iterations)
	for _, p := range m.Parameters() {
		assert.NotNil(t, p.Grad)
	}
}
