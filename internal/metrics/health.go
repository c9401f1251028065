package metrics

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// HealthMetrics tracks the outcome of readiness checks per dependency.
type HealthMetrics struct {
	dependencyUp           metric.Int64ObservableGauge
	dependencyResponseTime metric.Float64Histogram
	serviceInfo            metric.Int64ObservableGauge

	mu           sync.RWMutex
	dependencies map[string]string
}

// Dependency states reported by DependencyStatus.
const (
	DependencyUnknown = "unknown"
	DependencyUp      = "up"
	DependencyDown    = "down"
)

func NewHealthMetrics(meter metric.Meter) (*HealthMetrics, error) {
	hm := &HealthMetrics{
		dependencies: make(map[string]string),
	}

	var err error

	// 1 = up, 0 = down
	hm.dependencyUp, err = meter.Int64ObservableGauge(
		"dependency.up",
		metric.WithDescription("Dependency availability status (1=up, 0=down)"),
		metric.WithUnit("{status}"),
	)
	if err != nil {
		return nil, err
	}

	hm.dependencyResponseTime, err = meter.Float64Histogram(
		"dependency.response_time",
		metric.WithDescription("Dependency health check response time"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5),
	)
	if err != nil {
		return nil, err
	}

	hm.serviceInfo, err = meter.Int64ObservableGauge(
		"service.info",
		metric.WithDescription("Service metadata information"),
		metric.WithUnit("{info}"),
	)
	if err != nil {
		return nil, err
	}

	return hm, nil
}

// Register starts observing service metadata and the given dependencies.
// Dependencies are unknown, and observed as down, until their first check.
func (hm *HealthMetrics) Register(meter metric.Meter, serviceName, version, env string, dependencies ...string) error {
	hm.mu.Lock()
	for _, dep := range dependencies {
		hm.dependencies[dep] = DependencyUnknown
	}
	hm.mu.Unlock()

	info := metric.WithAttributes(
		attribute.String("service_name", serviceName),
		attribute.String("version", version),
		attribute.String("environment", env),
	)

	_, err := meter.RegisterCallback(
		func(ctx context.Context, observer metric.Observer) error {
			observer.ObserveInt64(hm.serviceInfo, 1, info)

			hm.mu.RLock()
			defer hm.mu.RUnlock()
			for name, state := range hm.dependencies {
				value := int64(0)
				if state == DependencyUp {
					value = 1
				}
				observer.ObserveInt64(hm.dependencyUp, value, metric.WithAttributes(attribute.String("dependency", name)))
			}
			return nil
		},
		hm.serviceInfo,
		hm.dependencyUp,
	)
	return err
}

func (hm *HealthMetrics) RecordDependencyCheck(ctx context.Context, dependency string, duration time.Duration, err error) {
	if hm == nil {
		return
	}
	if hm.dependencyResponseTime != nil {
		hm.dependencyResponseTime.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("dependency", dependency)))
	}

	hm.mu.Lock()
	if hm.dependencies == nil {
		hm.dependencies = make(map[string]string)
	}
	hm.dependencies[dependency] = DependencyUp
	if err != nil {
		hm.dependencies[dependency] = DependencyDown
	}
	hm.mu.Unlock()
}

// DependencyStatus reports the outcome of the last check of dependency.
func (hm *HealthMetrics) DependencyStatus(dependency string) string {
	if hm == nil {
		return DependencyUnknown
	}
	hm.mu.RLock()
	defer hm.mu.RUnlock()
	if state, ok := hm.dependencies[dependency]; ok {
		return state
	}
	return DependencyUnknown
}
