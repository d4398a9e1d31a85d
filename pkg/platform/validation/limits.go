package validation

import (
	"fmt"

	dErrors "fishtank/pkg/domain-errors"
)

// HTTP body limits
const (
	// MaxBodySize is the default request body cap (64 KB).
	MaxBodySize = 64 * 1024
)

// Submission limits
const (
	// MaxFieldValues bounds the number of entries in a submitted values map.
	MaxFieldValues = 32

	// MaxFieldKeyLength bounds a single field key.
	MaxFieldKeyLength = 64

	// MaxFieldValueLength bounds a single field value. Textareas are the longest.
	MaxFieldValueLength = 5000

	// MaxTicketLength bounds the signed form ticket.
	MaxTicketLength = 1024
)

// CheckMapCount validates that a map does not exceed the maximum count.
func CheckMapCount(fieldName string, count, max int) error {
	if count > max {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("too many %s: max %d allowed", fieldName, max))
	}
	return nil
}

// CheckStringLength validates that a string does not exceed the maximum length.
func CheckStringLength(fieldName, value string, max int) error {
	if len(value) > max {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s exceeds max length of %d", fieldName, max))
	}
	return nil
}

// CheckValues applies key and value length limits to a submitted values map.
func CheckValues(values map[string]string) error {
	if err := CheckMapCount("values", len(values), MaxFieldValues); err != nil {
		return err
	}
	for k, v := range values {
		if err := CheckStringLength("field key", k, MaxFieldKeyLength); err != nil {
			return err
		}
		if err := CheckStringLength(k, v, MaxFieldValueLength); err != nil {
			return err
		}
	}
	return nil
}
