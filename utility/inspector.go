package utility

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"go-seqae/model"
	"go-seqae/tensor"
)

// ModelInspector reports the layers and parameter counts of a model.
type ModelInspector struct {
	model model.Model
}

func NewModelInspector(m model.Model) *ModelInspector {
	return &ModelInspector{model: m}
}

// paramNames labels parameters by position; BatchNorm's gamma and beta share the slots.
var paramNames = []string{"Weight", "Bias"}

// Summary writes one row per parameter tensor, followed by the totals.
func (mi *ModelInspector) Summary(w io.Writer) {
	cfg := mi.model.Config()
	fmt.Fprintf(w, "Model: %T (mode=%s, latent=%d, seq=%d, width=%d, activation=%s, normalize=%v)\n",
		mi.model, cfg.Mode, cfg.LatentDim, cfg.SequenceLength, cfg.Width, cfg.ActivationName(), cfg.Normalize)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"#", "Layer", "Parameter", "Shape", "Param #"})
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	for i, layer := range mi.model.Layers() {
		params := layer.Parameters()
		if len(params) == 0 {
			table.Append([]string{strconv.Itoa(i), layer.Name(), "-", "-", "0"})
			continue
		}
		for j, p := range params {
			index, name := strconv.Itoa(i), layer.Name()
			if j > 0 {
				index, name = "", ""
			}
			label := fmt.Sprintf("param%d", j)
			if j < len(paramNames) {
				label = paramNames[j]
			}
			table.Append([]string{index, name, label, fmt.Sprint(p.GetShape()), strconv.Itoa(tensor.Numel(p))})
		}
	}

	total, trainable := mi.CountParameters()
	table.SetFooter([]string{"", "", "", "Total", strconv.FormatInt(total, 10)})
	table.Render()
	fmt.Fprintf(w, "Trainable Parameters: %d\n", trainable)
}

// CountParameters returns the parameter count and how many of those require gradients.
func (mi *ModelInspector) CountParameters() (total int64, trainable int64) {
	for _, p := range mi.model.Parameters() {
		numel := int64(tensor.Numel(p))
		total += numel
		if p.RequiresGrad {
			trainable += numel
		}
	}
	return total, trainable
}
