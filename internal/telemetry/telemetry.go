package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"student-records/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const defaultExportInterval = 10 * time.Second

// Resource identifies this process on every exported metric.
type Resource struct {
	ServiceName string
	Version     string
	Environment string
}

// Provider owns the process meter provider. A Provider built with export
// disabled hands out the global meter, which is a no-op unless something
// else installed one.
type Provider struct {
	mp *metric.MeterProvider
}

// Start installs a meter provider pushing to the OTLP/gRPC collector in cfg.
// With cfg.Enabled false it returns a disabled Provider and no error.
func Start(ctx context.Context, cfg config.TelemetryConfig, res Resource, logger *slog.Logger) (*Provider, error) {
	if !cfg.Enabled {
		logger.Info("metrics export disabled")
		return &Provider{}, nil
	}

	exporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}

	interval := time.Duration(cfg.ExportIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = defaultExportInterval
	}

	p, err := newProvider(ctx, res, metric.NewPeriodicReader(exporter, metric.WithInterval(interval)))
	if err != nil {
		return nil, err
	}
	otel.SetMeterProvider(p.mp)

	logger.Info("metrics export enabled", "endpoint", cfg.OTLPEndpoint, "interval", interval)
	return p, nil
}

func newProvider(ctx context.Context, res Resource, reader metric.Reader) (*Provider, error) {
	r, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(res.ServiceName),
			semconv.ServiceVersion(res.Version),
			semconv.DeploymentEnvironment(res.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	return &Provider{
		mp: metric.NewMeterProvider(metric.WithResource(r), metric.WithReader(reader)),
	}, nil
}

// Meter returns a named meter from this provider, or the global one when
// export is disabled.
func (p *Provider) Meter(name string) otelmetric.Meter {
	if p == nil || p.mp == nil {
		return otel.Meter(name)
	}
	return p.mp.Meter(name)
}

// Shutdown flushes pending metrics. Disabled providers return nil.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.mp == nil {
		return nil
	}
	return p.mp.Shutdown(ctx)
}
