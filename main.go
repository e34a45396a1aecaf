package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"go-seqae/autograd"
	"go-seqae/model"
	"go-seqae/utility"
	"go-seqae/utils"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel()})))

	if err := NewCLI().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func logLevel() slog.Level {
	switch strings.ToLower(os.Getenv("SEQAE_DEBUG")) {
	case "", "0", "false":
		return slog.LevelInfo
	}
	return slog.LevelDebug
}

func NewCLI() *cobra.Command {
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:           "seqae",
		Short:         "Build and inspect pose-sequence autoencoders",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	summaryCmd := &cobra.Command{
		Use:   "summary",
		Short: "Print the layers and parameter counts of a model",
		Args:  cobra.NoArgs,
		RunE:  summaryHandler,
	}

	forwardCmd := &cobra.Command{
		Use:   "forward",
		Short: "Run a random batch through a model and report tensor shapes",
		Args:  cobra.NoArgs,
		RunE:  forwardHandler,
	}
	forwardCmd.Flags().Int("batch", 4, "Batch size")

	benchCmd := &cobra.Command{
		Use:   "bench",
		Short: "Time forward and forward+backward passes",
		Args:  cobra.NoArgs,
		RunE:  benchHandler,
	}
	benchCmd.Flags().Int("batch", 4, "Batch size")
	benchCmd.Flags().Int("iterations", 10, "Timed iterations per benchmark")

	for _, cmd := range []*cobra.Command{summaryCmd, forwardCmd, benchCmd} {
		addModelFlags(cmd)
		rootCmd.AddCommand(cmd)
	}
	return rootCmd
}

func addModelFlags(cmd *cobra.Command) {
	cmd.Flags().String("arch", "conv", "Model architecture: conv or linear")
	cmd.Flags().String("config", "", "YAML file with model settings")
	cmd.Flags().String("mode", "", "discriminator or generator")
	cmd.Flags().Int("latent", 0, "Latent dimension")
	cmd.Flags().Int("seq", 0, "Sequence length")
	cmd.Flags().Int("width", 0, "Input width")
	cmd.Flags().Int("hidden", 0, "Hidden width (linear only)")
	cmd.Flags().String("activation", "", "Activation: relu, leaky_relu, sigmoid or tanh")
	cmd.Flags().Int("vk", 0, "Vertical kernel size (conv only)")
	cmd.Flags().Bool("normalize", false, "Insert batch normalization")
	cmd.Flags().Uint64("seed", 0, "Initialization seed, 0 for time-based")
}

// buildModel layers defaults, the config file and explicitly set flags, in that order.
func buildModel(cmd *cobra.Command) (model.Model, error) {
	arch, _ := cmd.Flags().GetString("arch")

	var cfg model.Config
	var build func(model.Config) (model.Model, error)
	switch strings.ToLower(arch) {
	case "conv":
		cfg, build = model.DefaultConvConfig(), model.NewConv
	case "linear":
		cfg, build = model.DefaultLinearConfig(), model.NewLinear
	default:
		return nil, fmt.Errorf("unknown architecture %q, expected conv or linear", arch)
	}

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		var err error
		if cfg, err = model.LoadConfig(path, cfg); err != nil {
			return nil, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("mode") {
		s, _ := flags.GetString("mode")
		mode, err := model.ParseMode(s)
		if err != nil {
			return nil, err
		}
		cfg.Mode = mode
	}
	ints := map[string]*int{
		"latent": &cfg.LatentDim,
		"seq":    &cfg.SequenceLength,
		"width":  &cfg.Width,
		"hidden": &cfg.Hidden,
		"vk":     &cfg.VerticalKernelSize,
	}
	for name, dst := range ints {
		if flags.Changed(name) {
			*dst, _ = flags.GetInt(name)
		}
	}
	if flags.Changed("activation") {
		cfg.Activation, _ = flags.GetString("activation")
	}
	if flags.Changed("normalize") {
		cfg.Normalize, _ = flags.GetBool("normalize")
	}
	if flags.Changed("seed") {
		cfg.Seed, _ = flags.GetUint64("seed")
	}

	slog.Debug("model config", "arch", arch, "mode", cfg.Mode, "latent", cfg.LatentDim, "seq", cfg.SequenceLength, "width", cfg.Width)
	return build(cfg)
}

func summaryHandler(cmd *cobra.Command, _ []string) error {
	m, err := buildModel(cmd)
	if err != nil {
		return err
	}
	utility.NewModelInspector(m).Summary(cmd.OutOrStdout())
	return nil
}

func forwardHandler(cmd *cobra.Command, _ []string) error {
	m, err := buildModel(cmd)
	if err != nil {
		return err
	}
	batch, _ := cmd.Flags().GetInt("batch")
	x, err := utils.RandomInput(m, batch, rand.New(rand.NewPCG(m.Config().Seed, 1)))
	if err != nil {
		return err
	}

	latent, shape, err := m.Encode(x)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "input:   %v\n", x.GetShape())
	fmt.Fprintf(out, "latent:  %v\n", latent.GetShape())

	root := latent
	if ae, ok := m.(model.Autoencoder); ok {
		if root, err = ae.Decode(latent, shape); err != nil {
			return err
		}
		fmt.Fprintf(out, "feature: %v\n", shape)
		fmt.Fprintf(out, "output:  %v\n", root.GetShape())
	}

	nodes := autograd.Trace(root)
	fmt.Fprintf(out, "graph:   %d nodes, %d parameter tensors\n", len(nodes), len(autograd.Leaves(root)))
	for _, c := range autograd.Ops(root) {
		slog.Debug("graph op", "op", c.Op, "count", c.Count)
	}
	return nil
}

func benchHandler(cmd *cobra.Command, _ []string) error {
	m, err := buildModel(cmd)
	if err != nil {
		return err
	}
	batch, _ := cmd.Flags().GetInt("batch")
	iterations, _ := cmd.Flags().GetInt("iterations")
	if iterations <= 0 {
		return fmt.Errorf("iterations must be positive, got %d", iterations)
	}
	rng := rand.New(rand.NewPCG(m.Config().Seed, 2))

	fwd, err := utils.Forward(m, batch, iterations, rng)
	if err != nil {
		return err
	}
	fb, err := utils.ForwardBackward(m, batch, iterations, rng)
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader([]string{"Benchmark", "Batch", "Iterations", "Mean", "Min", "Max"})
	for _, r := range []utils.Result{fwd, fb} {
		table.Append([]string{r.Name, fmt.Sprint(batch), fmt.Sprint(r.Iterations), r.Mean.String(), r.Min.String(), r.Max.String()})
	}
	table.Render()
	return nil
}
