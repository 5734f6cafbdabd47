// Package validation wraps go-playground/validator with the custom tags used
// by operation inputs and maps failures onto *apperr.ValidationError.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"devmemory-be/internal/apperr"

	"github.com/go-playground/validator/v10"
)

const (
	DisplayNameMaxLength = 120
	displayNamePunct     = "_-.:#()/'"
)

var (
	once     sync.Once
	instance *validator.Validate
)

// Get returns the shared validator. Field names in errors are the json tag
// names.
func Get() *validator.Validate {
	once.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
		_ = v.RegisterValidation("displayname", func(fl validator.FieldLevel) bool {
			return ValidDisplayName(fl.Field().String())
		})
		instance = v
	})
	return instance
}

// ValidDisplayName reports whether name is 1..120 runes of letters, digits,
// spaces and the punctuation set _-.:#()/'.
func ValidDisplayName(name string) bool {
	if strings.TrimSpace(name) == "" || utf8.RuneCountInString(name) > DisplayNameMaxLength {
		return false
	}
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || strings.ContainsRune(displayNamePunct, r) {
			continue
		}
		return false
	}
	return true
}

// DisplayName validates a session display name outside of a struct.
func DisplayName(name string) error {
	if !ValidDisplayName(name) {
		return apperr.ValidationField("name", fmt.Sprintf(
			"must be 1-%d characters of letters, digits, spaces or %s", DisplayNameMaxLength, displayNamePunct))
	}
	return nil
}

// Struct validates s and converts field errors into a ValidationError.
func Struct(s interface{}) error {
	err := Get().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperr.Validation("%v", err)
	}

	fields := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields[fieldPath(fe)] = describe(fe)
	}
	return &apperr.ValidationError{Message: "invalid input", Fields: fields}
}

// fieldPath drops the root struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_without":
		return "is required"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	case "uuid", "uuid4":
		return "must be a uuid"
	case "displayname":
		return fmt.Sprintf("must be 1-%d characters of letters, digits, spaces or %s", DisplayNameMaxLength, displayNamePunct)
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	case "lte":
		return "must be less than or equal to " + fe.Param()
	default:
		return "failed " + fe.Tag() + " check"
	}
}
