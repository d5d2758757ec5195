// Package validation wraps go-playground/validator with the domain's custom
// tags and converts failures into apperror validation errors.
package validation

import (
	"errors"
	"fmt"
	"strings"

	"ServerMonitorAPI/internal/apperror"
	"ServerMonitorAPI/internal/models"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()

	_ = validate.RegisterValidation("metric_type", func(fl validator.FieldLevel) bool {
		_, ok := models.ParseMetricType(fl.Field().String())
		return ok
	})
	_ = validate.RegisterValidation("channel", func(fl validator.FieldLevel) bool {
		_, err := models.ParseChannel(fl.Field().String())
		return err == nil
	})
}

// Struct validates v and returns a KindValidation error listing every
// offending field.
func Struct(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperror.Wrap(err, apperror.KindValidation, "validation failed")
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, describe(fe))
	}
	return apperror.Validation("validation failed: %s", strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param())
	case "metric_type":
		return fmt.Sprintf("%s %q is not a known metric type", fe.Field(), fe.Value())
	case "channel":
		return fmt.Sprintf("%s %q is not a supported channel", fe.Field(), fe.Value())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
}
