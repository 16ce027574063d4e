package service

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// validateInput checks the struct tags of an input type and reports the
// first failing field as ErrInvalidInput.
func validateInput(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field := strings.ToLower(fe.Field())
		if fe.Param() != "" {
			return ErrInvalidInput.With("%s failed %s=%s", field, fe.Tag(), fe.Param())
		}
		return ErrInvalidInput.With("%s failed %s", field, fe.Tag())
	}
	return ErrInvalidInput.With("%v", err)
}
