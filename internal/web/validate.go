package web

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/Orion-Gemini/ORION-WEBCAM/internal/relay"
)

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	// Registration only fails for an empty tag or nil func.
	_ = v.RegisterValidation("supported_mime", func(fl validator.FieldLevel) bool {
		return relay.IsSupportedMIME(fl.Field().String())
	})
	return v
}

// describe turns validation errors into one user-facing line.
func describe(err error) string {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err.Error()
	}
	messages := make([]string, 0, len(validationErrs))
	for _, e := range validationErrs {
		switch e.Tag() {
		case "required_with":
			messages = append(messages, fmt.Sprintf("поле %s обязательно вместе с file_data", e.Field()))
		case "base64":
			messages = append(messages, fmt.Sprintf("поле %s должно быть в base64", e.Field()))
		case "supported_mime":
			messages = append(messages, fmt.Sprintf("неподдерживаемый тип файла: %v", e.Value()))
		default:
			messages = append(messages, fmt.Sprintf("поле %s не прошло проверку %s", e.Field(), e.Tag()))
		}
	}
	return strings.Join(messages, "; ")
}
