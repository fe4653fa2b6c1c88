// Package reconcile periodically repairs denormalized counters and prunes expired previews.
package reconcile

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/underpines/pines/pkg/config"
	"github.com/underpines/pines/pkg/logging"
	"github.com/underpines/pines/pkg/telemetry"
)

// Counters recomputes counters from child rows. *db.CounterRepository implements it.
type Counters interface {
	Recount(ctx context.Context, batchSize int) (map[string]int64, error)
}

// Previews drops expired link previews. *db.PreviewRepository implements it.
type Previews interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// Reconciler runs recount passes on an interval
type Reconciler struct {
	counters Counters
	previews Previews
	cfg      config.ReconcilerConfig
	fixed    metric.Int64Counter
	logger   *zap.Logger
}

// New creates a reconciler. previews may be nil.
func New(counters Counters, previews Previews, cfg config.ReconcilerConfig) *Reconciler {
	r := &Reconciler{
		counters: counters,
		previews: previews,
		cfg:      cfg,
		logger:   logging.WithComponent("reconciler"),
	}
	fixed, err := telemetry.Meter().Int64Counter(
		"counter_drift_fixed_total",
		metric.WithDescription("Counter rows corrected by the reconciler"),
	)
	if err != nil {
		r.logger.Warn("Failed to create drift counter", zap.Error(err))
	} else {
		r.fixed = fixed
	}
	return r
}

// RunOnce performs one pass and returns the rows fixed per counter
func (r *Reconciler) RunOnce(ctx context.Context) (map[string]int64, error) {
	ctx, span := telemetry.StartSpan(ctx, "reconcile.RunOnce")
	defer span.End()

	start := time.Now()
	fixed, err := r.counters.Recount(ctx, r.cfg.BatchSize)
	if err != nil {
		return fixed, err
	}

	for name, n := range fixed {
		if n == 0 {
			continue
		}
		r.logger.Warn("Counter drift repaired", zap.String("counter", name), zap.Int64("rows", n))
		if r.fixed != nil {
			r.fixed.Add(ctx, n, metric.WithAttributes(attribute.String("counter", name)))
		}
	}

	if r.previews != nil {
		pruned, err := r.previews.DeleteExpired(ctx)
		if err != nil {
			r.logger.Error("Failed to prune link previews", zap.Error(err))
		} else if pruned > 0 {
			r.logger.Info("Pruned expired link previews", zap.Int64("rows", pruned))
		}
	}

	r.logger.Info("Reconcile pass complete", zap.Duration("took", time.Since(start)))
	return fixed, nil
}

// Run executes a pass immediately and then every interval until ctx is done.
// A failed pass is logged and retried at the next tick.
func (r *Reconciler) Run(ctx context.Context) error {
	interval := r.cfg.Interval
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	r.logger.Info("Starting reconciler", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error("Reconcile pass failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			r.logger.Info("Reconciler stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
