package metrics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// EventMetrics counts student lifecycle events handed to a broker.
type EventMetrics struct {
	published       metric.Int64Counter
	publishDuration metric.Float64Histogram
}

func NewEventMetrics(meter metric.Meter) (*EventMetrics, error) {
	em := &EventMetrics{}

	var err error

	em.published, err = meter.Int64Counter(
		"student_records.events.published",
		metric.WithDescription("Student events handed to the broker by driver and outcome"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	em.publishDuration, err = meter.Float64Histogram(
		"student_records.events.publish.duration",
		metric.WithDescription("Time spent handing a student event to the broker"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1),
	)
	if err != nil {
		return nil, err
	}

	return em, nil
}

// RecordPublish records one publish attempt on driver ("nats" or "kafka").
// Failures carry the Go type of the error, never its text.
func (em *EventMetrics) RecordPublish(ctx context.Context, driver string, d time.Duration, err error) {
	if em == nil || em.published == nil {
		return
	}

	attrs := []attribute.KeyValue{attribute.String("driver", driver)}
	em.publishDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attrs...))

	if err == nil {
		attrs = append(attrs, attribute.String("outcome", OutcomeOK))
	} else {
		attrs = append(attrs,
			attribute.String("outcome", OutcomeError),
			attribute.String("error.type", errorType(err)),
		)
	}
	em.published.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// errorType names the innermost wrapped error type, e.g. "*errors.errorString".
func errorType(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return fmt.Sprintf("%T", err)
		}
		err = next
	}
}
