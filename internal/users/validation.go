package users

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/users-service/internal/shared"
)

// Validator checks request DTOs and reports the first violation as InvalidField.
type Validator struct {
	validate *validator.Validate
}

// NewValidator builds a Validator that names fields by their JSON/query key.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{validate: v}
}

// Struct validates s, returning nil or a *shared.Error of kind InvalidField.
func (v *Validator) Struct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return shared.Internal(err)
	}
	fe := fieldErrs[0]
	return shared.InvalidField(fe.Field(), explain(fe))
}

var (
	limitExplanation  = fmt.Sprintf("1 <= limit <= %d", MaxLimit)
	offsetExplanation = "0 <= offset"
)

func explain(fe validator.FieldError) string {
	switch fe.Field() {
	case "limit":
		return limitExplanation
	case "offset":
		return offsetExplanation
	}
	switch fe.Tag() {
	case "required":
		return "not none"
	case "min":
		if fe.Param() == "1" {
			return "not empty"
		}
		return fmt.Sprintf("at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("at most %s characters", fe.Param())
	default:
		return fmt.Sprintf("valid (%s)", fe.Tag())
	}
}

// trimmed returns a trimmed copy of s, preserving nil.
func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	return &t
}
