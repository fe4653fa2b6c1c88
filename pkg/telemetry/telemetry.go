// Package telemetry configures tracing and metrics for the API server and the reconciler.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/underpines/pines/pkg/config"
	"github.com/underpines/pines/pkg/logging"
)

const instrumentationName = "github.com/underpines/pines"

// Version is reported as service.version; set it with -ldflags at build time
var Version = "dev"

var tracer trace.Tracer

type shutdownFunc func(context.Context) error

// Init installs the Jaeger trace exporter and the Prometheus metric reader. The returned
// function flushes and stops both. Metrics are served by the API's /metrics route from the
// default Prometheus registry.
func Init(cfg *config.TelemetryConfig) (func(), error) {
	if !cfg.Enabled {
		logging.GetLogger().Info("Telemetry disabled")
		return func() {}, nil
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(Version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	var shutdowns []shutdownFunc
	if cfg.JaegerURL != "" {
		fn, err := initTracing(cfg, res)
		if err != nil {
			return nil, err
		}
		shutdowns = append(shutdowns, fn)
	}
	if cfg.PrometheusEnabled {
		fn, err := initMetrics(res)
		if err != nil {
			return nil, err
		}
		shutdowns = append(shutdowns, fn)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	tracer = otel.Tracer(instrumentationName)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		var errs []error
		for _, fn := range shutdowns {
			errs = append(errs, fn(ctx))
		}
		if err := errors.Join(errs...); err != nil {
			logging.GetLogger().Error("Error shutting down telemetry", zap.Error(err))
		}
	}, nil
}

func initTracing(cfg *config.TelemetryConfig, res *resource.Resource) (shutdownFunc, error) {
	exporter, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(cfg.JaegerURL)))
	if err != nil {
		return nil, fmt.Errorf("failed to create Jaeger exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	)
	otel.SetTracerProvider(tp)

	logging.GetLogger().Info("Jaeger exporter initialized",
		zap.String("url", cfg.JaegerURL),
		zap.Float64("sample_ratio", cfg.SampleRatio))
	return tp.Shutdown, nil
}

func initMetrics(res *resource.Resource) (shutdownFunc, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
	}

	mp := metric.NewMeterProvider(
		metric.WithReader(exporter),
		metric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	logging.GetLogger().Info("Prometheus exporter initialized")
	return mp.Shutdown, nil
}

// Tracer returns the global tracer
func Tracer() trace.Tracer {
	if tracer == nil {
		return noop.NewTracerProvider().Tracer(instrumentationName)
	}
	return tracer
}

// Meter returns a meter from the global provider. Before Init it is a no-op meter.
func Meter() otelmetric.Meter {
	return otel.Meter(instrumentationName)
}

// StartSpan starts a new span
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}
