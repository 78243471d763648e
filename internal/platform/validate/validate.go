// Package validate checks request payloads with struct tags.
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/cesfam/portal/internal/platform/scheduling"
)

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	_ = validate.RegisterValidation("clock", validateClock)
	_ = validate.RegisterValidation("date", validateDate)
	_ = validate.RegisterValidation("rut", validateRUT)
	_ = validate.RegisterValidation("cie10", validateCIE10)
}

// Struct validates s and flattens failures into one readable error.
func Struct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "clock":
		return fmt.Sprintf("%s must be HH:MM", field)
	case "date":
		return fmt.Sprintf("%s must be YYYY-MM-DD", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "uuid":
		return fmt.Sprintf("%s must be a UUID", field)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "rut":
		return fmt.Sprintf("%s is not a valid RUT", field)
	case "cie10":
		return fmt.Sprintf("%s is not a CIE-10 code", field)
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}

func validateClock(fl validator.FieldLevel) bool {
	_, err := scheduling.ParseClock(fl.Field().String())
	return err == nil
}

func validateDate(fl validator.FieldLevel) bool {
	_, err := scheduling.ParseDate(fl.Field().String())
	return err == nil
}

// CIE-10 codes: a letter, two digits and an optional subcategory ("J45",
// "E11.9", "S72.001").
var cie10 = regexp.MustCompile(`^[A-Z][0-9]{2}(\.[0-9A-Z]{1,4})?$`)

func validateCIE10(fl validator.FieldLevel) bool {
	return cie10.MatchString(strings.ToUpper(fl.Field().String()))
}

// validateRUT checks a Chilean RUT ("12.345.678-5" or "12345678-5") with its
// modulo-11 check digit.
func validateRUT(fl validator.FieldLevel) bool {
	return ValidRUT(fl.Field().String())
}

func ValidRUT(s string) bool {
	s = strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), ".", ""))
	body, dv, ok := strings.Cut(s, "-")
	if !ok || len(body) < 1 || len(body) > 8 || len(dv) != 1 {
		return false
	}
	sum, mul := 0, 2
	for i := len(body) - 1; i >= 0; i-- {
		d := body[i]
		if d < '0' || d > '9' {
			return false
		}
		sum += int(d-'0') * mul
		mul++
		if mul > 7 {
			mul = 2
		}
	}
	var want byte
	switch r := 11 - sum%11; r {
	case 11:
		want = '0'
	case 10:
		want = 'K'
	default:
		want = byte('0' + r)
	}
	return dv[0] == want
}
