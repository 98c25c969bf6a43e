package service

import (
	"errors"
	"reflect"
	"strings"

	"dlass/internal/model"

	"github.com/go-playground/validator/v10"
)

// newValidator создает валидатор, сообщающий имена полей по json тегам
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	return v
}

// validateStruct переводит ошибки валидатора в ValidationError по первому полю
func validateStruct(v *validator.Validate, req interface{}) error {
	err := v.Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return model.NewValidationError("", err.Error())
	}

	fe := fieldErrs[0]
	switch fe.Tag() {
	case "required":
		return model.NewValidationError(fe.Field(), "is required")
	case "max":
		return model.NewValidationError(fe.Field(), "must be at most "+fe.Param()+" characters")
	default:
		return model.NewValidationError(fe.Field(), "failed on '"+fe.Tag()+"'")
	}
}
