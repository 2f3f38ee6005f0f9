// Package validation checks configuration structs against their validate tags.
package validation

import (
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/mohit-ambani/auditflow-sub000/pkg/errors"
)

var (
	once     sync.Once
	instance *validator.Validate
)

func get() *validator.Validate {
	once.Do(func() {
		instance = validator.New(validator.WithRequiredStructEnabled())
	})
	return instance
}

// Struct validates v and converts failures into a configuration error that
// names every offending field and the rule it broke.
func Struct(setting string, v interface{}) error {
	err := get().Struct(v)
	if err == nil {
		return nil
	}

	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return apperrors.ConfigurationError(apperrors.CodeInvalidConfig, setting, v, err)
	}

	failures := FieldErrors(fieldErrs)
	keys := make([]string, 0, len(failures))
	for field, tag := range failures {
		keys = append(keys, field+"="+tag)
	}
	sort.Strings(keys)

	return apperrors.ConfigurationError(apperrors.CodeInvalidConfig, setting, strings.Join(keys, ", "), err)
}

// FieldErrors maps each failing field to the tag it violated
func FieldErrors(errs validator.ValidationErrors) map[string]string {
	out := make(map[string]string, len(errs))
	for _, fe := range errs {
		out[fe.Field()] = fe.Tag()
	}
	return out
}
