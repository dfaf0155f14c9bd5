// Package validation checks request parameters and configuration values
// with go-playground/validator and reports failures as validation AppErrors.
package validation

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"

	"places-cache/internal/common/errors"
)

var placeIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,512}$`)

// FieldError is a single failed rule
type FieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message"`
}

// Validator wraps a configured validator.Validate. It is safe for concurrent use.
type Validator struct {
	validate *validator.Validate
}

// New creates a validator with the place_id and cron_schedule rules registered
func New() *Validator {
	v := validator.New()

	// Report fields by their query/json name
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, tag := range []string{"query", "json"} {
			name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
			if name != "" && name != "-" {
				return name
			}
		}
		return fld.Name
	})

	registerPlacesValidators(v)

	return &Validator{validate: v}
}

var defaultValidator = New()

// Default returns the shared validator
func Default() *Validator {
	return defaultValidator
}

// Struct validates s using its validate tags
func (v *Validator) Struct(s interface{}) error {
	if err := v.validate.Struct(s); err != nil {
		return formatErrors(extractErrors(err, ""))
	}
	return nil
}

// Var validates a single value; name is used in the error message
func (v *Validator) Var(value interface{}, tag, name string) error {
	if err := v.validate.Var(value, tag); err != nil {
		return formatErrors(extractErrors(err, name))
	}
	return nil
}

// Errors returns the individual rule failures of a Struct call, or nil
func (v *Validator) Errors(s interface{}) []FieldError {
	if err := v.validate.Struct(s); err != nil {
		return extractErrors(err, "")
	}
	return nil
}

func formatErrors(fieldErrors []FieldError) error {
	if len(fieldErrors) == 1 {
		return errors.ValidationError(fieldErrors[0].Message).
			WithContext("field", fieldErrors[0].Field)
	}

	messages := make([]string, len(fieldErrors))
	for i, e := range fieldErrors {
		messages[i] = e.Message
	}
	return errors.ValidationError(fmt.Sprintf("validation failed: %s", strings.Join(messages, "; ")))
}

func extractErrors(err error, name string) []FieldError {
	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []FieldError{{Field: name, Tag: "error", Message: err.Error()}}
	}

	result := make([]FieldError, 0, len(validationErrs))
	for _, fe := range validationErrs {
		field := fe.Field()
		if name != "" {
			field = name
		}
		result = append(result, FieldError{
			Field:   field,
			Tag:     fe.Tag(),
			Param:   fe.Param(),
			Message: fieldMessage(field, fe),
		})
	}
	return result
}

func fieldMessage(field string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "url", "http_url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.Join(strings.Fields(fe.Param()), ", "))
	case "place_id":
		return fmt.Sprintf("%s must be a Google place ID", field)
	case "cron_schedule":
		return fmt.Sprintf("%s must be a cron expression or descriptor such as @daily", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, fe.Tag())
	}
}

func registerPlacesValidators(v *validator.Validate) {
	v.RegisterValidation("place_id", func(fl validator.FieldLevel) bool {
		return placeIDPattern.MatchString(fl.Field().String())
	})

	// Same parser cron.New uses, so anything accepted here schedules
	v.RegisterValidation("cron_schedule", func(fl validator.FieldLevel) bool {
		_, err := cron.ParseStandard(fl.Field().String())
		return err == nil
	})
}
