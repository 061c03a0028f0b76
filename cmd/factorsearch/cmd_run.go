package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/snow-ghost/factorsearch/artifact"
	"github.com/snow-ghost/factorsearch/core"
	"github.com/snow-ghost/factorsearch/evaluation"
	"github.com/snow-ghost/factorsearch/optimizer"
	"github.com/snow-ghost/factorsearch/optimizer/mutate"
	"github.com/snow-ghost/factorsearch/pkg/cost"
	"github.com/snow-ghost/factorsearch/testkit"
)

// runResult is written to results_<dataset>_<timestamp>.json.
type runResult struct {
	RunID       string               `json:"run_id"`
	Dataset     string               `json:"dataset"`
	StartedAt   time.Time            `json:"started_at"`
	FinishedAt  time.Time            `json:"finished_at"`
	ValSize     int                  `json:"val_size"`
	TestSize    int                  `json:"test_size"`
	Params      optimizer.Params     `json:"params"`
	Metric      string               `json:"metric"`
	TestScore   float64              `json:"test_score"`
	TestMetrics map[string]float64   `json:"test_metrics"`
	Manifest    *artifact.Manifest   `json:"manifest"`
	Summary     optimizer.RunSummary `json:"summary"`
	Cost        []cost.Entry         `json:"cost"`
	TotalCost   cost.CostResult      `json:"total_cost"`
	Error       string               `json:"error,omitempty"`
}

func newRunCmd(flags *globalFlags) *cobra.Command {
	var resume string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Discover a structure, optimize it and score it on the test split",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.close(context.Background())

			path, err := a.run(cmd.Context(), resume)
			if path != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Results saved to %s\n", path)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&resume, "resume", "", "Continue from a manifest JSON instead of discovering a new structure")
	return cmd
}

// run executes one experiment and returns the results file path. A failed
// optimization still writes the partial result before returning the error.
func (a *app) run(ctx context.Context, resume string) (string, error) {
	res := runResult{
		RunID:     a.runID,
		Dataset:   a.cfg.Dataset,
		StartedAt: time.Now().UTC(),
		Params:    a.cfg.Optimizer,
	}

	val, test, err := a.splits()
	if err != nil {
		return "", err
	}
	res.ValSize, res.TestSize = len(val), len(test)
	a.logger.Info("loaded data", "dataset", a.cfg.Dataset, "val", len(val), "test", len(test))

	composite, err := a.initialComposite(ctx, val, resume)
	if err != nil {
		return "", err
	}
	a.logger.Info("structure ready", "factors", composite.FactorNames())

	evaluator, err := evaluation.ByName(a.cfg.Evaluator)
	if err != nil {
		return "", err
	}
	runner := testkit.NewRunner(a.worker, evaluator)
	runner.Concurrency = a.cfg.Optimizer.EvalConcurrency
	res.Metric, err = runner.MetricKey()
	if err != nil {
		return "", err
	}

	sched, err := optimizer.New(composite, mutate.NewLLMMutator(a.architect, a.logger), runner, val, a.cfg.Optimizer,
		optimizer.WithSeed(a.cfg.Seed),
		optimizer.WithLogger(a.logger),
		optimizer.WithTracer(a.obs.GetTracer().Tracer()),
		optimizer.WithRecorder(a.obs.GetMetrics()),
	)
	if err != nil {
		return "", err
	}

	summary, runErr := sched.Run(ctx, a.cfg.Steps)
	res.Summary = summary
	res.Manifest = composite.Manifest()
	res.Manifest.SetLabel("run_id", a.runID)
	res.Manifest.SetLabel("dataset", a.cfg.Dataset)

	if runErr == nil {
		a.logger.Info("optimization finished", "steps", summary.StepsRun, "converged", summary.Converged)
		res.TestScore, res.TestMetrics, runErr = runner.Score(ctx, composite.Render(), test)
		if runErr == nil {
			a.logger.Info("final score on test set", "metric", res.Metric, "score", res.TestScore)
		}
	}
	if runErr != nil {
		res.Error = runErr.Error()
		a.logger.Error("run failed", "error", runErr)
	}

	res.Cost = a.ledger.Entries()
	res.TotalCost = a.ledger.Total()
	res.FinishedAt = time.Now().UTC()

	path, err := writeResult(a.cfg.OutputDir, res)
	return path, errors.Join(runErr, err)
}

func (a *app) initialComposite(ctx context.Context, val []core.Example, resume string) (*artifact.Composite, error) {
	if resume == "" {
		return a.discover(ctx, val)
	}

	data, err := os.ReadFile(resume)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	// accept a bare manifest or a previous results file
	var (
		prev runResult
		m    *artifact.Manifest
	)
	if err := json.Unmarshal(data, &prev); err == nil && prev.Manifest != nil {
		m = prev.Manifest
	} else if m, err = artifact.FromJSON(data); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", resume, err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("manifest %s: %w", resume, err)
	}
	a.logger.Info("resuming from manifest", "path", resume, "factors", len(m.Factors))
	return m.Composite(), nil
}

func writeResult(dir string, res runResult) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	name := fmt.Sprintf("results_%s_%s.json", res.Dataset, res.StartedAt.Format("20060102_150405"))
	path := filepath.Join(dir, name)

	data, err := json.MarshalIndent(res, "", "    ")
	if err != nil {
		return "", fmt.Errorf("encode results: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write results: %w", err)
	}
	return path, nil
}
