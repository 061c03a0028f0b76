package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/snow-ghost/factorsearch/config"
	"github.com/snow-ghost/factorsearch/core"
	"github.com/snow-ghost/factorsearch/dataset"
	"github.com/snow-ghost/factorsearch/pkg/cache"
	"github.com/snow-ghost/factorsearch/pkg/cost"
	"github.com/snow-ghost/factorsearch/pkg/observability"
	"github.com/snow-ghost/factorsearch/pkg/providers"
)

// app is the wiring shared by every subcommand.
type app struct {
	cfg       config.Config
	runID     string
	obs       *observability.Manager
	logger    *slog.Logger
	ledger    *cost.Ledger
	cache     *cache.Cache
	architect core.Generator
	worker    core.Generator
	metrics   *http.Server
}

func newApp(cfg config.Config) (*app, error) {
	obs, err := observability.NewManager(observability.Config{
		ServiceName:    "factorsearch",
		ServiceVersion: version,
		JaegerEndpoint: cfg.JaegerEndpoint,
		Logging:        cfg.Logging,
	})
	if err != nil {
		return nil, fmt.Errorf("init observability: %w", err)
	}

	runID := uuid.NewString()
	logger := obs.GetLogger().WithRunID(runID)
	slog.SetDefault(logger.GetSlog())

	a := &app{
		cfg:    cfg,
		runID:  runID,
		obs:    observability.New(obs.GetMetrics(), obs.GetTracer(), logger),
		logger: logger.GetSlog(),
		ledger: cost.NewLedger(),
	}

	reg, err := cfg.Registry()
	if err != nil {
		a.close(context.Background())
		return nil, err
	}

	opts := []providers.Option{
		providers.WithObservability(a.obs),
		providers.WithLedger(a.ledger),
		providers.WithMockMode(cfg.MockMode()),
	}
	if cfg.Cache.Enabled {
		a.cache, err = cache.New(cfg.CacheOptions())
		if err != nil {
			a.close(context.Background())
			return nil, err
		}
		opts = append(opts, providers.WithCache(a.cache))
	}
	factory := providers.NewFactory(reg, opts...)

	if a.architect, err = factory.Build("architect", cfg.Roles.Architect); err != nil {
		a.close(context.Background())
		return nil, fmt.Errorf("architect: %w", err)
	}
	if a.worker, err = factory.Build(providers.RoleWorker, cfg.Roles.Worker); err != nil {
		a.close(context.Background())
		return nil, fmt.Errorf("worker: %w", err)
	}

	if cfg.MetricsAddr != "" {
		if err := a.serveMetrics(cfg.MetricsAddr); err != nil {
			a.close(context.Background())
			return nil, err
		}
	}
	return a, nil
}

func (a *app) serveMetrics(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.obs.GetMetrics().Handler())
	a.metrics = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := a.metrics.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server stopped", "error", err)
		}
	}()
	a.logger.Info("serving metrics", "addr", ln.Addr().String())
	return nil
}

func (a *app) close(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if a.metrics != nil {
		_ = a.metrics.Shutdown(ctx)
	}
	if a.cache != nil {
		st := a.cache.Stats()
		a.logger.Info("cache stats", "hits", st.Hits, "misses", st.Misses, "shared", st.Shared, "hit_rate", st.HitRate())
	}
	if err := a.obs.Shutdown(ctx); err != nil {
		a.logger.Warn("observability shutdown", "error", err)
	}
}

// splits loads the validation and test examples. When both come from the
// same split the examples are shuffled once and the test set gets whatever
// validation did not take.
func (a *app) splits() (val, test []core.Example, err error) {
	ds, err := dataset.Open(a.cfg.DataDir)
	if err != nil {
		return nil, nil, err
	}

	if a.cfg.ValSplit == a.cfg.TestSplit {
		all, err := ds.Split(a.cfg.ValSplit, 0)
		if err != nil {
			return nil, nil, err
		}
		shuffled := dataset.Sample(all, len(all), a.cfg.Seed)
		n := min(a.cfg.ValSize, len(shuffled))
		if a.cfg.ValSize <= 0 {
			n = len(shuffled) / 2
		}
		return shuffled[:n], dataset.Head(shuffled[n:], a.cfg.TestSize), nil
	}

	if val, err = ds.Split(a.cfg.ValSplit, a.cfg.ValSize); err != nil {
		return nil, nil, err
	}
	if test, err = ds.Split(a.cfg.TestSplit, a.cfg.TestSize); err != nil {
		return nil, nil, err
	}
	return val, test, nil
}

func (a *app) taskDescription() string {
	if a.cfg.TaskDescription != "" {
		return a.cfg.TaskDescription
	}
	return fmt.Sprintf("This is a %s task. The goal is to produce a correct answer.", a.cfg.Dataset)
}
