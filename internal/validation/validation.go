// Package validation checks request bodies before they reach the service
// logic, and normalizes the fields that have a canonical form.
//
// Struct rules live as `validate:"..."` tags on the model types and are
// enforced by go-playground/validator. Phone numbers get a custom "phone"
// rule backed by nyaruka/phonenumbers and are stored in E.164.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/nyaruka/phonenumbers"

	"github.com/sakif/todo-auth/internal/apperror"
)

// DefaultRegion is used to parse phone numbers written without a "+country" prefix.
const DefaultRegion = "US"

// Validator wraps a configured *validator.Validate.
type Validator struct {
	validate *validator.Validate
	region   string
}

// New creates a Validator. region is an ISO 3166-1 alpha-2 code; empty means DefaultRegion.
func New(region string) (*Validator, error) {
	if region == "" {
		region = DefaultRegion
	}
	region = strings.ToUpper(region)

	v := &Validator{
		validate: validator.New(validator.WithRequiredStructEnabled()),
		region:   region,
	}

	// Report json field names ("password_confirm") rather than Go names.
	v.validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	if err := v.validate.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		_, err := v.NormalizePhone(fl.Field().String())
		return err == nil
	}); err != nil {
		return nil, fmt.Errorf("validation: registering phone rule: %w", err)
	}

	return v, nil
}

// Struct validates s and returns the first violation as an
// apperror.ValidationFailed naming the offending field.
func (v *Validator) Struct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return apperror.ValidationFailed(fe.Field(), message(fe))
	}
	return fmt.Errorf("validation: %w", err)
}

// NormalizePhone parses raw and returns it in E.164 ("+16502530000").
func (v *Validator) NormalizePhone(raw string) (string, error) {
	num, err := phonenumbers.Parse(raw, v.region)
	if err != nil {
		return "", fmt.Errorf("validation: parsing phone number: %w", err)
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", fmt.Errorf("validation: %q is not a valid phone number", raw)
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// NormalizeEmail trims and lower-cases an address. Both registration and
// lookup go through it so "A@B.com" and "a@b.com" are the same account.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", fe.Field())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", fe.Field())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "phone":
		return fmt.Sprintf("%s must be a valid phone number", fe.Field())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}
