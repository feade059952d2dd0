package request

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/edvin/deliverability/internal/model"
)

var validate = validator.New()

func init() {
	validate.RegisterValidation("suppression_type", func(fl validator.FieldLevel) bool {
		return model.ValidSuppressionType(fl.Field().String())
	})
	validate.RegisterValidation("bounce_type", func(fl validator.FieldLevel) bool {
		return model.ValidBounceType(fl.Field().String())
	})
	validate.RegisterValidation("limit_type", func(fl validator.FieldLevel) bool {
		return model.ValidLimitType(fl.Field().String())
	})
	validate.RegisterValidation("complaint_source", func(fl validator.FieldLevel) bool {
		return model.ValidComplaintSource(fl.Field().String())
	})
}

func Decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("validation error: %w", err)
	}
	return nil
}

func RequireID(s string) (string, error) {
	if s == "" {
		return "", fmt.Errorf("missing required ID")
	}
	return s, nil
}
