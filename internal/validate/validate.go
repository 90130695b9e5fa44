// Package validate wraps go-playground/validator for request DTOs. Struct
// tags cover shape-level rules (required fields, quantity bounds); monetary
// checks on decimal fields stay in the service layer.
package validate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Struct validates tagged fields and flattens violations into a single
// error suitable for a 400 response.
func Struct(data any) error {
	err := validate.Struct(data)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s violates %q", fe.StructNamespace(), fe.Tag()))
	}
	return fmt.Errorf("validation failed: %s", strings.Join(parts, "; "))
}
