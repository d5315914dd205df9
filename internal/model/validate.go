package model

import (
	"fmt"
	"strings"
)

// ValidationError holds a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation failure on a named field.
type FieldError struct {
	Field   string
	Message string
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// ValidateProduct checks a single Product for constraint violations.
func ValidateProduct(p *Product) error {
	var ve ValidationError

	if strings.TrimSpace(p.SKU) == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "sku", Message: "is required"})
	} else if p.SKU != strings.TrimSpace(p.SKU) {
		ve.Errors = append(ve.Errors, FieldError{Field: "sku", Message: "must not have surrounding whitespace"})
	}

	if strings.TrimSpace(p.Name) == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "name", Message: "is required"})
	}

	if p.Price.IsNegative() {
		ve.Errors = append(ve.Errors, FieldError{
			Field:   "price",
			Message: fmt.Sprintf("must not be negative, got %s", p.Price.String()),
		})
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}

// ValidateProducts checks every product and rejects duplicate SKUs. Field
// names are prefixed with the product index, e.g. "products[3].sku".
func ValidateProducts(products []Product) error {
	var ve ValidationError
	seen := make(map[string]int, len(products))

	for i := range products {
		p := &products[i]
		if err := ValidateProduct(p); err != nil {
			for _, fe := range err.(*ValidationError).Errors {
				ve.Errors = append(ve.Errors, FieldError{
					Field:   fmt.Sprintf("products[%d].%s", i, fe.Field),
					Message: fe.Message,
				})
			}
			continue
		}
		if first, dup := seen[p.SKU]; dup {
			ve.Errors = append(ve.Errors, FieldError{
				Field:   fmt.Sprintf("products[%d].sku", i),
				Message: fmt.Sprintf("duplicate of products[%d] (%q)", first, p.SKU),
			})
			continue
		}
		seen[p.SKU] = i
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}
