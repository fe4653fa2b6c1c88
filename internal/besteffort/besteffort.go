// Package besteffort runs side effects whose failure must never fail the primary action.
package besteffort

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/underpines/pines/pkg/logging"
	"github.com/underpines/pines/pkg/telemetry"
)

// Runner executes tasks inline, logging and counting failures instead of returning them
type Runner struct {
	logger   *zap.Logger
	failures metric.Int64Counter
}

// New creates a runner on the global meter
func New() *Runner {
	return NewWithMeter(telemetry.Meter())
}

// NewWithMeter creates a runner reporting to meter
func NewWithMeter(meter metric.Meter) *Runner {
	counter, err := meter.Int64Counter(
		"besteffort_failures_total",
		metric.WithDescription("Side effects that failed after their primary action succeeded"),
	)
	if err != nil {
		logging.GetLogger().Warn("Failed to create best-effort failure counter", zap.Error(err))
	}
	return &Runner{
		logger:   logging.WithComponent("besteffort"),
		failures: counter,
	}
}

// Run awaits fn. A returned error or a panic is logged under task and swallowed.
// It reports whether fn succeeded.
func (r *Runner) Run(ctx context.Context, task string, fn func(ctx context.Context) error) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.fail(ctx, task, fmt.Errorf("panic: %v", rec))
			ok = false
		}
	}()

	if err := fn(ctx); err != nil {
		r.fail(ctx, task, err)
		return false
	}
	return true
}

func (r *Runner) fail(ctx context.Context, task string, err error) {
	logging.FromContext(ctx).Warn("Best-effort task failed",
		zap.String("component", "besteffort"),
		zap.String("task", task),
		zap.Error(err),
	)
	if r.failures != nil {
		r.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("task", task)))
	}
}
