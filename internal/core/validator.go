package core

import (
	"errors"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"marketingapi/internal/types"
)

// Validator wraps go-playground/validator with the project's custom tags and
// reports failures as validation AppErrors keyed by JSON field name.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a Validator and registers custom tags:
//
//	notblank - string is non-empty after trimming whitespace
func NewValidator(logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})

	if err := v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	}); err != nil {
		logger.Error("failed to register validation tag", "tag", "notblank", "error", err)
	}

	return &Validator{validate: v, logger: logger}
}

// ValidateStruct checks s against its validate tags. The first failing field
// picks the error code: a missing value is validation_missing_required_field,
// a bad email is validation_invalid_email, and anything else is
// validation_invalid_field. Details map every failing field to its tag.
func (v *Validator) ValidateStruct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return types.NewAppError(types.ErrCodeValidationInvalidPayload, "Invalid payload.", err)
	}

	details := make(map[string]any, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[fe.Field()] = fe.Tag()
	}

	first := fieldErrs[0]
	switch first.Tag() {
	case "required", "notblank":
		return types.NewAppErrorWithDetails(types.ErrCodeValidationMissingField,
			first.Field()+" is required.", err, details)
	case "email":
		return types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidEmail,
			"A valid email address is required.", err, details)
	default:
		return types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidField,
			first.Field()+" is invalid.", err, details)
	}
}
