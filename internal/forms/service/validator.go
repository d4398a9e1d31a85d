package service

import (
	"strings"

	"fishtank/internal/forms/models"
)

// ValidateRequired returns the labels of required fields that are absent or
// blank, in schema order. Optional fields and unknown keys are ignored.
func ValidateRequired(fields []models.FieldDefinition, values models.Values) []string {
	var missing []string
	for _, f := range fields {
		if !f.Required {
			continue
		}
		if strings.TrimSpace(values[f.Key]) == "" {
			missing = append(missing, f.Label)
		}
	}
	return missing
}

// MissingMessage composes the notice for a failed validation.
func MissingMessage(labels []string) string {
	return "Please fill: " + strings.Join(labels, ", ")
}
