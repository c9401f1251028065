package student

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"student-records/internal/auth"
	"student-records/internal/metrics"

	"github.com/go-playground/validator/v10"
)

type Service interface {
	Register(ctx context.Context, req RegisterRequest) (*Student, error)
	Login(ctx context.Context, req LoginRequest) (string, error)
	ListStudents(ctx context.Context) ([]Student, error)
	UpdateStudent(ctx context.Context, id int, req UpdateRequest) (*Student, error)
	DeleteStudent(ctx context.Context, id int) error
}

type service struct {
	repo      Repository
	hasher    auth.PasswordHasher
	tokens    auth.TokenIssuer
	publisher Publisher
	validate  *validator.Validate
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// NewService wires the student workflows. publisher may be nil.
func NewService(repo Repository, hasher auth.PasswordHasher, tokens auth.TokenIssuer, publisher Publisher, m *metrics.Metrics, logger *slog.Logger) Service {
	return &service{
		repo:      repo,
		hasher:    hasher,
		tokens:    tokens,
		publisher: publisher,
		validate:  NewValidator(),
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *service) Register(ctx context.Context, req RegisterRequest) (*Student, error) {
	if err := ValidateNameAndPhone(req.Username, req.Phone); err != nil {
		return nil, err
	}
	if err := ValidateDob(req.Dob); err != nil {
		return nil, err
	}
	if err := ValidateClass(req.StudentClass); err != nil {
		return nil, err
	}
	if err := validateStruct(s.validate, req); err != nil {
		return nil, err
	}

	existing, err := s.repo.GetByUsername(ctx, req.Username)
	if err != nil && !errors.Is(err, ErrStudentNotFound) {
		return nil, fmt.Errorf("failed to look up username: %w", err)
	}
	if existing != nil {
		return nil, ErrUsernameTaken
	}

	hashed, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	// Already validated above.
	dob, _ := ParseDob(req.Dob)

	created, err := s.repo.Create(ctx, &Student{
		Username:     req.Username,
		Password:     hashed,
		ProfilePhoto: req.ProfilePhoto,
		Phone:        req.Phone,
		Dob:          dob,
		StudentClass: req.StudentClass,
		Name:         req.Name,
	})
	if err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create student: %w", err)
	}

	s.metrics.RecordStudentRegistration(ctx)
	s.publish(ctx, EventRegistered, created.ID, created.Username)

	return created, nil
}

func (s *service) Login(ctx context.Context, req LoginRequest) (string, error) {
	if req.Username == "" || req.Password == "" {
		s.metrics.RecordLogin(ctx, false)
		return "", ErrInvalidCredentials
	}

	stud, err := s.repo.GetByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, ErrStudentNotFound) {
			s.metrics.RecordLogin(ctx, false)
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("failed to look up username: %w", err)
	}

	if err := s.hasher.Compare(stud.Password, req.Password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			s.metrics.RecordLogin(ctx, false)
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("failed to verify password: %w", err)
	}

	token, err := s.tokens.Issue(stud.ID, stud.Username)
	if err != nil {
		return "", err
	}

	s.metrics.RecordLogin(ctx, true)
	return token, nil
}

func (s *service) ListStudents(ctx context.Context) ([]Student, error) {
	students, err := s.repo.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list students: %w", err)
	}

	s.metrics.RecordStudentsListViewed(ctx)
	return students, nil
}

func (s *service) UpdateStudent(ctx context.Context, id int, req UpdateRequest) (*Student, error) {
	req = req.withoutBlankFields()
	if err := validateStruct(s.validate, req); err != nil {
		return nil, err
	}
	if id <= 0 {
		return nil, ErrStudentNotFound
	}

	changes, err := s.buildChanges(req)
	if err != nil {
		return nil, err
	}

	if len(changes) == 0 {
		return s.repo.GetByID(ctx, id)
	}

	updated, err := s.repo.Update(ctx, id, changes)
	if err != nil {
		if errors.Is(err, ErrStudentNotFound) || errors.Is(err, ErrUsernameTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update student: %w", err)
	}

	s.metrics.RecordStudentUpdated(ctx)
	s.publish(ctx, EventUpdated, updated.ID, updated.Username)

	return updated, nil
}

// buildChanges turns the present fields of req into column assignments,
// hashing the password if one was supplied.
func (s *service) buildChanges(req UpdateRequest) ([]Change, error) {
	var changes []Change

	add := func(column string, value *string) {
		if present(value) {
			changes = append(changes, Change{Column: column, Value: *value})
		}
	}

	add("username", req.Username)
	if present(req.Password) {
		hashed, err := s.hasher.Hash(*req.Password)
		if err != nil {
			return nil, err
		}
		changes = append(changes, Change{Column: "password", Value: hashed})
	}
	add("profile_photo", req.ProfilePhoto)
	add("phone", req.Phone)
	if present(req.Dob) {
		dob, err := ParseDob(*req.Dob)
		if err != nil {
			return nil, newValidationError("dob", msgInvalidDob)
		}
		changes = append(changes, Change{Column: "dob", Value: dob})
	}
	add("student_class", req.StudentClass)
	add("name", req.Name)

	return changes, nil
}

func (s *service) DeleteStudent(ctx context.Context, id int) error {
	if id <= 0 {
		return ErrStudentNotFound
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrStudentNotFound) {
			return err
		}
		return fmt.Errorf("failed to delete student: %w", err)
	}

	s.metrics.RecordStudentDeleted(ctx)
	s.publish(ctx, EventDeleted, id, "")

	return nil
}

func present(v *string) bool {
	return v != nil && strings.TrimSpace(*v) != ""
}

// withoutBlankFields clears empty and whitespace-only fields so that they
// neither fail validation nor overwrite the stored value.
func (r UpdateRequest) withoutBlankFields() UpdateRequest {
	for _, field := range []**string{&r.Username, &r.Password, &r.ProfilePhoto, &r.Phone, &r.Dob, &r.StudentClass, &r.Name} {
		if !present(*field) {
			*field = nil
		}
	}
	return r
}
