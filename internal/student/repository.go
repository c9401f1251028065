package student

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"student-records/internal/metrics"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
)

type Repository interface {
	Create(ctx context.Context, student *Student) (*Student, error)
	GetAll(ctx context.Context) ([]Student, error)
	GetByID(ctx context.Context, id int) (*Student, error)
	GetByUsername(ctx context.Context, username string) (*Student, error)
	Update(ctx context.Context, id int, changes []Change) (*Student, error)
	Delete(ctx context.Context, id int) error
}

type repository struct {
	db      *bun.DB
	metrics *metrics.Metrics
}

func NewRepository(db *bun.DB, m *metrics.Metrics) Repository {
	return &repository{
		db:      db,
		metrics: m,
	}
}

func (r *repository) Create(ctx context.Context, student *Student) (*Student, error) {
	start := time.Now()
	_, err := r.db.NewInsert().Model(student).Returning("*").Exec(ctx)

	r.record(ctx, "create", start, err)

	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrUsernameTaken
		}
		return nil, err
	}
	return student, nil
}

// GetAll never reads the password column.
func (r *repository) GetAll(ctx context.Context) ([]Student, error) {
	start := time.Now()
	students := make([]Student, 0)
	err := r.db.NewSelect().
		Model(&students).
		ExcludeColumn("password").
		Order("id ASC").
		Scan(ctx)

	r.record(ctx, "list", start, err)

	return students, err
}

func (r *repository) GetByID(ctx context.Context, id int) (*Student, error) {
	start := time.Now()
	student := new(Student)
	err := r.db.NewSelect().Model(student).Where("id = ?", id).Scan(ctx)

	r.record(ctx, "get_by_id", start, err)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStudentNotFound
		}
		return nil, err
	}
	return student, nil
}

func (r *repository) GetByUsername(ctx context.Context, username string) (*Student, error) {
	start := time.Now()
	student := new(Student)
	err := r.db.NewSelect().
		Model(student).
		Where("username = ?", username).
		Scan(ctx)

	r.record(ctx, "get_by_username", start, err)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStudentNotFound
		}
		return nil, err
	}
	return student, nil
}

// Update applies changes to the row with the given id and returns the
// stored result. An empty change set only bumps updated_at.
func (r *repository) Update(ctx context.Context, id int, changes []Change) (*Student, error) {
	start := time.Now()
	student := new(Student)

	q := r.db.NewUpdate().
		Model(student).
		Where("id = ?", id).
		Set("updated_at = current_timestamp").
		Returning("*")
	for _, c := range changes {
		q = q.Set("? = ?", bun.Ident(c.Column), c.Value)
	}

	err := q.Scan(ctx)

	r.record(ctx, "update", start, err)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStudentNotFound
		}
		if isUniqueViolation(err) {
			return nil, ErrUsernameTaken
		}
		return nil, err
	}
	return student, nil
}

func (r *repository) Delete(ctx context.Context, id int) error {
	start := time.Now()
	student := &Student{ID: id}
	result, err := r.db.NewDelete().Model(student).WherePK().Exec(ctx)
	if err == nil {
		var rowsAffected int64
		if rowsAffected, err = result.RowsAffected(); err == nil && rowsAffected == 0 {
			err = ErrStudentNotFound
		}
	}

	r.record(ctx, "delete", start, err)

	return err
}

func (r *repository) record(ctx context.Context, operation string, start time.Time, err error) {
	if r.metrics == nil {
		return
	}
	r.metrics.Store.RecordCall(ctx, operation, time.Since(start), outcomeOf(err))
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, sql.ErrNoRows), errors.Is(err, ErrStudentNotFound):
		return metrics.OutcomeNotFound
	case isUniqueViolation(err):
		return metrics.OutcomeConflict
	default:
		return metrics.OutcomeError
	}
}

// isUniqueViolation reports a PostgreSQL unique_violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C') == "23505"
	}
	return false
}
