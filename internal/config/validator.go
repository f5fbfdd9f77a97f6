package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator checks loaded configuration against its struct tags.
type Validator struct {
	validate *validator.Validate
}

// NewValidator reports failures by environment variable name.
func NewValidator() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("env")
	})
	return &Validator{validate: v}
}

func (v *Validator) Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("configuration is nil")
	}
	err := v.validate.Struct(cfg)
	if err == nil {
		return nil
	}
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return fmt.Errorf("validation error: %w", err)
	}
	messages := make([]string, 0, len(validationErrs))
	for _, e := range validationErrs {
		messages = append(messages, formatValidationError(e))
	}
	return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(messages, "\n  - "))
}

func formatValidationError(e validator.FieldError) string {
	switch e.Tag() {
	case "required", "required_if":
		return fmt.Sprintf("%s is required", e.Field())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s (got: %v)", e.Field(), e.Param(), e.Value())
	case "gte":
		return fmt.Sprintf("%s must be at least %s (got: %v)", e.Field(), e.Param(), e.Value())
	case "lte":
		return fmt.Sprintf("%s must be at most %s (got: %v)", e.Field(), e.Param(), e.Value())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s] (got: %v)", e.Field(), e.Param(), e.Value())
	case "url":
		return fmt.Sprintf("%s must be a valid URL (got: %v)", e.Field(), e.Value())
	default:
		return fmt.Sprintf("%s failed validation '%s' (got: %v)", e.Field(), e.Tag(), e.Value())
	}
}

