package student

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var phonePattern = regexp.MustCompile(`^\d{10}$`)

var dobLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	time.RFC3339Nano,
	"2006/01/02",
}

const (
	msgInvalidUsername = "Invalid username. It should be a non-empty string."
	msgInvalidPhone    = "Invalid phone number. It should be a 10-digit number."
	msgInvalidDob      = "Invalid date of birth. Please provide a valid date."
	msgInvalidClass    = "Invalid class. It should be a non-empty string."
	msgInvalidPassword = "Invalid password. It should be at least 6 characters long."
	msgInvalidName     = "Invalid name. It should be a non-empty string."
)

var fieldMessages = map[string]string{
	"username":     msgInvalidUsername,
	"password":     msgInvalidPassword,
	"phone":        msgInvalidPhone,
	"dob":          msgInvalidDob,
	"studentClass": msgInvalidClass,
	"name":         msgInvalidName,
}

// ValidateNameAndPhone checks that username is non-blank and phone is ten digits.
func ValidateNameAndPhone(username, phone string) error {
	if strings.TrimSpace(username) == "" {
		return newValidationError("username", msgInvalidUsername)
	}
	if !phonePattern.MatchString(phone) {
		return newValidationError("phone", msgInvalidPhone)
	}
	return nil
}

// ValidateDob checks that dob parses as a calendar date in one of the
// layouts ParseDob accepts.
func ValidateDob(dob string) error {
	if _, err := ParseDob(dob); err != nil {
		return newValidationError("dob", msgInvalidDob)
	}
	return nil
}

// ValidateClass checks that studentClass is non-blank.
func ValidateClass(studentClass string) error {
	if strings.TrimSpace(studentClass) == "" {
		return newValidationError("studentClass", msgInvalidClass)
	}
	return nil
}

// ParseDob parses a date of birth in any accepted layout and truncates it
// to the calendar day in UTC.
func ParseDob(dob string) (time.Time, error) {
	dob = strings.TrimSpace(dob)
	for _, layout := range dobLayouts {
		t, err := time.Parse(layout, dob)
		if err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, errors.New("unrecognized date")
}

// NewValidator returns a validator that knows the phone10, calendardate and
// notblank tags and reports fields by their JSON names.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	v.RegisterValidation("phone10", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
	v.RegisterValidation("calendardate", func(fl validator.FieldLevel) bool {
		_, err := ParseDob(fl.Field().String())
		return err == nil
	})
	v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})

	return v
}

// validateStruct runs v over req and converts the first failure into a
// ValidationError with the field's message.
func validateStruct(v *validator.Validate, req interface{}) error {
	err := v.Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return newValidationError("", err.Error())
	}

	field := fieldErrs[0].Field()
	if msg, ok := fieldMessages[field]; ok {
		return newValidationError(field, msg)
	}
	return newValidationError(field, fieldErrs[0].Error())
}
