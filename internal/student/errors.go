package student

import "errors"

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrStudentNotFound    = errors.New("user not found")
	ErrUsernameTaken      = errors.New("user with this username already exists")
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// ValidationError describes client-fixable input. It matches ErrInvalidInput.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

func newValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}
