package metrics

import (
	"context"
	"database/sql"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Outcomes of a student store call. Misses and username conflicts are
// answers, so they are kept apart from genuine failures.
const (
	OutcomeOK       = "ok"
	OutcomeNotFound = "not_found"
	OutcomeConflict = "conflict"
	OutcomeError    = "error"
)

// StoreMetrics times student repository calls and observes the connection pool.
type StoreMetrics struct {
	callDuration metric.Float64Histogram
	callFailures metric.Int64Counter
	pool         metric.Int64ObservableGauge
}

func NewStoreMetrics(meter metric.Meter) (*StoreMetrics, error) {
	sm := &StoreMetrics{}

	var err error

	sm.callDuration, err = meter.Float64Histogram(
		"student_records.store.call.duration",
		metric.WithDescription("Duration of student store calls by operation and outcome"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5),
	)
	if err != nil {
		return nil, err
	}

	sm.callFailures, err = meter.Int64Counter(
		"student_records.store.call.failures",
		metric.WithDescription("Student store calls that ended in a database error"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	sm.pool, err = meter.Int64ObservableGauge(
		"student_records.store.pool.connections",
		metric.WithDescription("Database pool connections by state (open, idle, in_use, max_open)"),
		metric.WithUnit("{connection}"),
	)
	if err != nil {
		return nil, err
	}

	return sm, nil
}

// RecordCall records one repository call, e.g. ("get_by_username", d, OutcomeNotFound).
func (sm *StoreMetrics) RecordCall(ctx context.Context, operation string, d time.Duration, outcome string) {
	if sm == nil || sm.callDuration == nil {
		return
	}

	sm.callDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	))
	if outcome == OutcomeError {
		sm.callFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", operation)))
	}
}

// ObservePool reports stats() on every collection. *sql.DB.Stats fits.
func (sm *StoreMetrics) ObservePool(meter metric.Meter, stats func() sql.DBStats) error {
	_, err := meter.RegisterCallback(
		func(ctx context.Context, observer metric.Observer) error {
			s := stats()
			for state, n := range map[string]int{
				"open":     s.OpenConnections,
				"idle":     s.Idle,
				"in_use":   s.InUse,
				"max_open": s.MaxOpenConnections,
			} {
				observer.ObserveInt64(sm.pool, int64(n), metric.WithAttributes(attribute.String("state", state)))
			}
			return nil
		},
		sm.pool,
	)
	return err
}
