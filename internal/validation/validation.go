// Package validation содержит функции валидации входных данных.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/mmeshcher/carrental-system/internal/model"
)

var telephoneRegex = regexp.MustCompile(`^\d{3}-\d{7}$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("telephone", func(fl validator.FieldLevel) bool {
		return IsValidTelephone(fl.Field().String())
	}); err != nil {
		panic(fmt.Sprintf("register telephone validator: %v", err))
	}
	return v
}

// IsValidTelephone проверяет номер телефона в формате XXX-XXXXXXX.
func IsValidTelephone(number string) bool {
	return telephoneRegex.MatchString(number)
}

// Struct проверяет структуру по тегам validate и возвращает ошибку вида model.ErrInvalidInput.
func Struct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fmt.Sprintf("%s failed on %q", fe.Field(), fe.Tag()))
		}
		return fmt.Errorf("%w: %s", model.ErrInvalidInput, strings.Join(msgs, "; "))
	}

	return fmt.Errorf("%w: %v", model.ErrInvalidInput, err)
}
