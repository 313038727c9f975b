// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sanitize

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/taibuivan/aegis/internal/platform/apperr"
)

// # Errors

var (
	// ErrMaliciousInput is returned when a value matches the injection battery.
	ErrMaliciousInput = errors.New("sanitize: malicious input")

	// ErrTooLong is returned when a value exceeds its field's maximum length.
	ErrTooLong = errors.New("sanitize: value too long")

	// ErrInvalidIdentifier is returned for unsafe table or column names.
	ErrInvalidIdentifier = errors.New("sanitize: invalid identifier")

	// ErrOutOfRange is returned for pagination values outside their bounds.
	ErrOutOfRange = errors.New("sanitize: value out of range")

	// ErrUnsupportedOperator is returned for filter operators outside the whitelist.
	ErrUnsupportedOperator = errors.New("sanitize: unsupported operator")
)

// FieldError ties a sanitization failure to the field it came from.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	if e.Field == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s (field %q)", e.Err.Error(), e.Field)
}

func (e *FieldError) Unwrap() error { return e.Err }

func fieldError(field string, err error) error {
	return &FieldError{Field: field, Err: err}
}

// AppError maps a sanitization error onto the API error taxonomy.
// Errors outside this package are returned as INTERNAL_ERROR.
func AppError(err error) *apperr.AppError {
	if err == nil {
		return nil
	}

	field := ""
	var fieldErr *FieldError
	if errors.As(err, &fieldErr) {
		field = fieldErr.Field
	}

	switch {
	case errors.Is(err, ErrMaliciousInput):
		return apperr.MaliciousInput(field)
	case errors.Is(err, ErrTooLong):
		return apperr.ValidationError("Validation failed", apperr.FieldError{Field: field, Message: "Value is too long"})
	case errors.Is(err, ErrInvalidIdentifier), errors.Is(err, ErrUnsupportedOperator):
		return apperr.ValidationError("Validation failed", apperr.FieldError{Field: field, Message: "Unsupported field or operator"})
	case errors.Is(err, ErrOutOfRange):
		return apperr.ValidationError("Validation failed", apperr.FieldError{Field: field, Message: "Value out of range"})
	default:
		return apperr.Internal(err)
	}
}

// # Field Limits

// Field names with dedicated length limits.
const (
	FieldEmail       = "email"
	FieldUsername    = "username"
	FieldName        = "name"
	FieldPassword    = "password"
	FieldTitle       = "title"
	FieldSearch      = "search"
	FieldURL         = "url"
	FieldPhone       = "phone"
	FieldDescription = "description"
	FieldText        = "text"
	FieldComment     = "comment"
)

// DefaultMaxLength applies to fields without a dedicated limit.
const DefaultMaxLength = 1000

var fieldLimits = map[string]int{
	FieldEmail:       254,
	FieldUsername:    50,
	FieldName:        100,
	FieldPassword:    128,
	FieldTitle:       200,
	FieldSearch:      200,
	FieldURL:         2048,
	FieldPhone:       20,
	FieldDescription: 2000,
	FieldText:        2000,
	FieldComment:     2000,
}

// MaxLength returns the character limit for field.
func MaxLength(field string) int {
	if limit, ok := fieldLimits[strings.ToLower(field)]; ok {
		return limit
	}
	return DefaultMaxLength
}

// # String Cleaning

var (
	commentSequences = strings.NewReplacer("--", "", "/*", "", "*/", "")
	quoteEscaper     = strings.NewReplacer(`'`, `''`, `"`, `\"`)
)

// String sanitizes a single field value.
//
// Steps, in order: NFKC normalization, injection detection (hard rejection),
// length check against the field limit, comment stripping, quote escaping
// and whitespace trimming.
func String(value, field string) (string, error) {
	normalized := Normalize(value)

	if detected, _ := DetectInjection(normalized); detected {
		return "", fieldError(field, ErrMaliciousInput)
	}

	if utf8.RuneCountInString(normalized) > MaxLength(field) {
		return "", fieldError(field, ErrTooLong)
	}

	cleaned := commentSequences.Replace(normalized)
	cleaned = quoteEscaper.Replace(cleaned)
	return strings.TrimSpace(cleaned), nil
}

// Fields sanitizes every value of a field map, failing on the first error.
func Fields(values map[string]string) (map[string]string, error) {
	cleaned := make(map[string]string, len(values))
	for field, value := range values {
		result, err := String(value, field)
		if err != nil {
			return nil, err
		}
		cleaned[field] = result
	}
	return cleaned, nil
}

// # Identifiers

// MaxIdentifierLength matches the PostgreSQL NAMEDATALEN limit.
const MaxIdentifierLength = 63

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Identifier validates a table or column name for direct interpolation.
func Identifier(name string) (string, error) {
	if len(name) == 0 || len(name) > MaxIdentifierLength || !identifierPattern.MatchString(name) {
		return "", fieldError("identifier", ErrInvalidIdentifier)
	}
	return name, nil
}
