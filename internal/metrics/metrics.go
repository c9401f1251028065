package metrics

import (
	"context"

	"go.opentelemetry.io/otel/metric"
)

// Metrics groups the service's domain counters with the store, event and
// health instruments.
type Metrics struct {
	Store  *StoreMetrics
	Events *EventMetrics
	Health *HealthMetrics

	studentsRegistered metric.Int64Counter
	loginsSucceeded    metric.Int64Counter
	loginsFailed       metric.Int64Counter
	studentsListViewed metric.Int64Counter
	studentsUpdated    metric.Int64Counter
	studentsDeleted    metric.Int64Counter
}

func New(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error

	m.Store, err = NewStoreMetrics(meter)
	if err != nil {
		return nil, err
	}

	m.Events, err = NewEventMetrics(meter)
	if err != nil {
		return nil, err
	}

	m.Health, err = NewHealthMetrics(meter)
	if err != nil {
		return nil, err
	}

	counters := []struct {
		dst         *metric.Int64Counter
		name        string
		description string
		unit        string
	}{
		{&m.studentsRegistered, "student_records.students.registered", "Total number of students registered", "{student}"},
		{&m.loginsSucceeded, "student_records.logins.succeeded", "Total number of successful logins", "{login}"},
		{&m.loginsFailed, "student_records.logins.failed", "Total number of rejected logins", "{login}"},
		{&m.studentsListViewed, "student_records.students.list_viewed", "Total number of times students list was viewed", "{view}"},
		{&m.studentsUpdated, "student_records.students.updated", "Total number of student updates", "{student}"},
		{&m.studentsDeleted, "student_records.students.deleted", "Total number of students deleted", "{student}"},
	}

	for _, c := range counters {
		*c.dst, err = meter.Int64Counter(
			c.name,
			metric.WithDescription(c.description),
			metric.WithUnit(c.unit),
		)
		if err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *Metrics) RecordStudentRegistration(ctx context.Context) {
	if m != nil && m.studentsRegistered != nil {
		m.studentsRegistered.Add(ctx, 1)
	}
}

func (m *Metrics) RecordLogin(ctx context.Context, success bool) {
	if m == nil {
		return
	}
	if success && m.loginsSucceeded != nil {
		m.loginsSucceeded.Add(ctx, 1)
	}
	if !success && m.loginsFailed != nil {
		m.loginsFailed.Add(ctx, 1)
	}
}

func (m *Metrics) RecordStudentsListViewed(ctx context.Context) {
	if m != nil && m.studentsListViewed != nil {
		m.studentsListViewed.Add(ctx, 1)
	}
}

func (m *Metrics) RecordStudentUpdated(ctx context.Context) {
	if m != nil && m.studentsUpdated != nil {
		m.studentsUpdated.Add(ctx, 1)
	}
}

func (m *Metrics) RecordStudentDeleted(ctx context.Context) {
	if m != nil && m.studentsDeleted != nil {
		m.studentsDeleted.Add(ctx, 1)
	}
}

// NewMock creates a no-op Metrics instance for testing
// The returned Metrics will safely ignore all Record* calls
func NewMock() *Metrics {
	return &Metrics{
		Store:  &StoreMetrics{},
		Events: &EventMetrics{},
		Health: &HealthMetrics{},
	}
}
