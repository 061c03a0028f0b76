package main

import (
	"github.com/spf13/cobra"

	"github.com/snow-ghost/factorsearch/config"
)

// version is set at build time via -ldflags.
var version = "dev"

type globalFlags struct {
	configPath string
	dataset    string
	dataDir    string
	steps      int
	mock       bool
}

func newRootCmd() *cobra.Command {
	var flags globalFlags

	root := &cobra.Command{
		Use:   "factorsearch",
		Short: "Factorized prompt search with DAP-UCB",
		Long: "factorsearch asks an architect model to split a task prompt into named factors,\n" +
			"then rewrites one factor per step, choosing which with a UCB bandit and freezing\n" +
			"factors that stop improving.",
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		Version: version,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "Run configuration YAML")
	pf.StringVar(&flags.dataset, "dataset", "", "Dataset name (overrides config)")
	pf.StringVar(&flags.dataDir, "data-dir", "", "Directory holding <split>.jsonl files (overrides config)")
	pf.IntVar(&flags.steps, "steps", 0, "Optimization steps (overrides config)")
	pf.BoolVar(&flags.mock, "mock", false, "Run every role on the offline mock generator")

	root.AddCommand(newRunCmd(&flags))
	root.AddCommand(newDiscoverCmd(&flags))
	root.AddCommand(newVersionCmd())
	return root
}

// loadConfig applies command-line overrides on top of config.Load.
func loadConfig(flags *globalFlags) (config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if flags.dataset != "" {
		cfg.Dataset = flags.dataset
	}
	if flags.dataDir != "" {
		cfg.DataDir = flags.dataDir
	}
	if flags.steps > 0 {
		cfg.Steps = flags.steps
	}
	if flags.mock {
		cfg.LLMMode = "mock"
	}
	return cfg, cfg.Validate()
}
