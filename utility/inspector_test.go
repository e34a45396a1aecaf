package utility

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-seqae/model"
)

func TestInspectorCountsMatchModel(t *testing.T) {
	cfg := model.DefaultLinearConfig()
	cfg.Hidden = 16
	cfg.LatentDim = 4
	cfg.Normalize = true
	cfg.Seed = 1
	m, err := model.NewLinear(cfg)
	require.NoError(t, err)

	total, trainable := NewModelInspector(m).CountParameters()
	assert.Equal(t, int64(model.CountParameters(m)), total)
	assert.Equal(t, total, trainable)

	// 34->16, 16->16, 16->16, 16->4 encoder; 4->16, 16->16, 16->16, 16->17 decoder; six batch norms
	want := (34*16 + 16) + 2*(16*16+16) + (16*4 + 4) +
		(4*16 + 16) + 2*(16*16+16) + (16*17 + 17) +
		6*2*16
	assert.Equal(t, int64(want), total)
}

func TestInspectorSummary(t *testing.T) {
	cfg := model.DefaultConvConfig()
	cfg.Mode = model.ModeDiscriminator
	cfg.Seed = 1
	m, err := model.NewConv(cfg)
	require.NoError(t, err)

	var buf bytes.Buffer
	NewModelInspector(m).Summary(&buf)
	out := buf.String()

	assert.Contains(t, out, "ConvEncoder")
	assert.Contains(t, out, "mode=discriminator")
	assert.Contains(t, out, "Conv2D(1->32")
	assert.Contains(t, out, "Linear(4352->64)")
	assert.Contains(t, out, "leaky_relu")
	assert.Contains(t, out, "Trainable Parameters")
}
