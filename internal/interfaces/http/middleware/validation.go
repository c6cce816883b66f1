package middleware

import (
	"errors"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/subgov/backend/internal/domain/billing"
	"github.com/subgov/backend/internal/domain/coupon"
	"github.com/subgov/backend/internal/interfaces/http/dto"
)

// SetupValidator reports fields by their JSON or form names and registers the
// domain enum tags used in request structs
func SetupValidator() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("gin validator engine is not go-playground/validator")
	}
	RegisterValidations(v)
	return nil
}

// RegisterValidations installs the tag name func and custom tags on v
func RegisterValidations(v *validator.Validate) {
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			name = strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
		}
		return name
	})
	_ = v.RegisterValidation("metric_type", func(fl validator.FieldLevel) bool {
		return billing.MetricType(fl.Field().String()).IsValid()
	})
	_ = v.RegisterValidation("billing_period", func(fl validator.FieldLevel) bool {
		return billing.BillingPeriod(fl.Field().String()).IsValid()
	})
	_ = v.RegisterValidation("discount_type", func(fl validator.FieldLevel) bool {
		return coupon.DiscountType(fl.Field().String()).IsValid()
	})
}

// ValidationDetails flattens validator errors into per-field messages. Other
// errors yield nil.
func ValidationDetails(err error) []dto.ValidationDetail {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	details := make([]dto.ValidationDetail, 0, len(verrs))
	for _, e := range verrs {
		details = append(details, dto.ValidationDetail{
			Field:   e.Field(),
			Message: validationMessage(e),
		})
	}
	return details
}

func validationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "This field is required"
	case "email":
		return "Invalid email format"
	case "min":
		if e.Kind() == reflect.String {
			return "Must be at least " + e.Param() + " characters"
		}
		return "Must be at least " + e.Param()
	case "max":
		if e.Kind() == reflect.String {
			return "Must be at most " + e.Param() + " characters"
		}
		return "Must be at most " + e.Param()
	case "uuid":
		return "Invalid UUID format"
	case "oneof":
		return "Must be one of: " + e.Param()
	case "gte":
		return "Must be greater than or equal to " + e.Param()
	case "lte":
		return "Must be less than or equal to " + e.Param()
	case "gt":
		return "Must be greater than " + e.Param()
	case "alphanum":
		return "Must be alphanumeric"
	case "metric_type":
		return "Must be one of: " + joinEnum(billing.AllMetricTypes())
	case "billing_period":
		return "Must be one of: " + joinEnum(billing.AllBillingPeriods())
	case "discount_type":
		return "Must be one of: " + joinEnum(coupon.AllDiscountTypes())
	default:
		return "Invalid value"
	}
}

func joinEnum[T ~string](values []T) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = string(v)
	}
	return strings.Join(parts, " ")
}
