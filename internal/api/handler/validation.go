package handler

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/railtrace/railtrace/internal/api/models"
)

// fieldErrors converts validator errors to query parameter errors. params maps struct
// field names to the query parameter they were read from.
func fieldErrors(err error, params map[string]string) []models.FieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []models.FieldError{{Message: err.Error()}}
	}

	result := make([]models.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.StructField()
		if name, ok := params[field]; ok {
			field = name
		} else if i := strings.IndexByte(field, '['); i > 0 {
			// dive errors are reported as Countries[0]
			if name, ok := params[field[:i]]; ok {
				field = name + field[i:]
			}
		}
		result = append(result, models.FieldError{
			Field:   field,
			Message: message(fe),
			Code:    strings.ToUpper(fe.Tag()),
		})
	}
	return result
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s %s", fe.Param(), unit(fe))
	case "min":
		return fmt.Sprintf("must be at least %s %s", fe.Param(), unit(fe))
	case "alpha":
		return "must contain letters only"
	}
	return "is invalid"
}

func unit(fe validator.FieldError) string {
	if fe.Kind() == reflect.Slice {
		return "items"
	}
	return "characters"
}
