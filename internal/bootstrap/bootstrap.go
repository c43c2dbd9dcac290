// Package bootstrap wires configuration into a ready engine: store, metrics,
// notifier and seed data.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"case-distribution/internal/assignment"
	"case-distribution/internal/config"
	"case-distribution/internal/metrics"
	"case-distribution/internal/notify"
	"case-distribution/internal/store"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// App holds the long-lived components of a process.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Store    assignment.DataStore
	Engine   *assignment.Engine
	Registry *prometheus.Registry

	closers []func() error
}

// New opens the configured store, connects the notifier when a NATS URL is
// set, loads engine state and applies the seed file to an empty store.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{Config: cfg, Logger: logger, Registry: prometheus.NewRegistry()}

	app.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	ds, closeStore, err := store.Open(ctx, cfg.Store, logger.Named("store"))
	if err != nil {
		return nil, err
	}
	app.Store = ds
	app.closers = append(app.closers, closeStore)

	opts := []assignment.Option{
		assignment.WithLogger(logger.Named("engine")),
		assignment.WithMetrics(metrics.NewPrometheus(app.Registry, "")),
		assignment.WithWeightPolicy(assignment.WeightPolicy{
			CorrelatedSurcharge: cfg.Policy.CorrelatedSurcharge,
			TriagerFactor:       cfg.Policy.TriagerFactor,
		}),
		assignment.WithLeaveBuffer(cfg.Policy.LeaveBufferBusinessDays),
		assignment.WithLocation(cfg.GetLocation()),
		assignment.WithLockTimeout(cfg.GetLockTimeout()),
		assignment.WithMaxConflictRetries(cfg.Engine.MaxConflictRetries),
		assignment.WithNotifyTimeout(cfg.GetNotifyTimeout()),
	}

	if cfg.Notify.NATSURL != "" {
		nc, err := nats.Connect(cfg.Notify.NATSURL, nats.Name("case-distribution"))
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("failed to connect to nats: %w", err)
		}
		app.closers = append(app.closers, nc.Drain)

		n, err := notify.NewJetStream(ctx, nc, cfg.Notify.Stream, cfg.Notify.Subject, logger.Named("notify"))
		if err != nil {
			app.Close()
			return nil, err
		}
		opts = append(opts, assignment.WithNotifier(n))
	}

	app.Engine = assignment.NewEngine(ds, opts...)
	if err := app.Engine.Load(ctx); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to load engine state: %w", err)
	}

	if cfg.Store.SeedPath != "" {
		snap := app.Engine.Snapshot()
		if len(snap.Members) == 0 && len(snap.CaseTypes) == 0 {
			if err := app.Seed(ctx, cfg.Store.SeedPath); err != nil {
				app.Close()
				return nil, err
			}
		}
	}

	return app, nil
}

// Seed upserts the roster and catalog from the YAML file at path.
func (a *App) Seed(ctx context.Context, path string) error {
	seed, err := store.LoadSeed(path)
	if err != nil {
		return err
	}
	if err := seed.Apply(ctx, a.Engine); err != nil {
		return fmt.Errorf("failed to apply seed: %w", err)
	}
	a.Logger.Info("seed applied",
		zap.String("path", path),
		zap.Int("members", len(seed.Members)),
		zap.Int("case_types", len(seed.CaseTypes)))
	return nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
