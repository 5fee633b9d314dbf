// Package validation provides struct validation on a shared
// go-playground/validator instance. Failures wrap model.ErrValidation so the
// API layer maps them to 4xx responses.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/graaaaa/playpulse/internal/model"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validator returns the shared validator, creating it on first use.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())

		// Report JSON/koanf field names instead of Go field names.
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			for _, tag := range []string{"json", "koanf"} {
				name, _, _ := strings.Cut(f.Tag.Get(tag), ",")
				if name == "-" {
					return ""
				}
				if name != "" {
					return name
				}
			}
			return f.Name
		})

		_ = v.RegisterValidation("timezone", func(fl validator.FieldLevel) bool {
			tz := fl.Field().String()
			if tz == "" {
				return true
			}
			_, err := time.LoadLocation(tz)
			return err == nil
		})

		validate = v
	})
	return validate
}

// FieldError describes one failed field.
type FieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

// Error is returned by ValidateStruct. It unwraps to model.ErrValidation.
type Error struct {
	Fields []FieldError
}

// Error joins every field message.
func (e *Error) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Message)
	}
	return strings.Join(msgs, "; ")
}

// Unwrap makes errors.Is(err, model.ErrValidation) hold.
func (e *Error) Unwrap() error {
	return model.ErrValidation
}

// ValidateStruct validates s against its `validate` tags.
func ValidateStruct(s any) error {
	err := Validator().Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", model.ErrValidation, err)
	}

	out := &Error{Fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Message: message(fe),
		})
	}
	return out
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be %s or more", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param())
	case "timezone":
		return fmt.Sprintf("%s is not a known time zone", fe.Field())
	case "required_if":
		return fmt.Sprintf("%s is required when %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}
