package config

import (
	"fmt"
	"strings"
)

// ConfigurationError describes a problem with the configuration file or a
// single configuration field.
type ConfigurationError struct {
	FilePath  string `json:"filePath,omitempty"`
	Field     string `json:"field,omitempty"`
	ErrorType string `json:"errorType"` // io, parse or validation
	Message   string `json:"message"`
	Details   string `json:"details,omitempty"`
}

// Error implements the error interface
func (ce ConfigurationError) Error() string {
	var b strings.Builder
	if ce.FilePath != "" {
		b.WriteString(ce.FilePath)
		b.WriteString(": ")
	}
	if ce.Field != "" {
		fmt.Fprintf(&b, "field '%s': ", ce.Field)
	}
	b.WriteString(ce.Message)
	if ce.Details != "" {
		b.WriteString(" (")
		b.WriteString(ce.Details)
		b.WriteString(")")
	}
	return b.String()
}

// NewConfigurationError creates a file level configuration error.
func NewConfigurationError(filePath, errorType, message, details string) ConfigurationError {
	return ConfigurationError{
		FilePath:  filePath,
		ErrorType: errorType,
		Message:   message,
		Details:   details,
	}
}

// ConfigurationErrorCollection holds multiple configuration errors
type ConfigurationErrorCollection struct {
	Errors []ConfigurationError `json:"errors"`
}

// Error implements the error interface for the collection
func (cec ConfigurationErrorCollection) Error() string {
	if len(cec.Errors) == 0 {
		return "no configuration errors"
	}
	if len(cec.Errors) == 1 {
		return cec.Errors[0].Error()
	}

	messages := make([]string, 0, len(cec.Errors))
	for _, err := range cec.Errors {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("%d configuration errors: %s", len(cec.Errors), strings.Join(messages, "; "))
}

// HasErrors returns true if there are any errors in the collection
func (cec *ConfigurationErrorCollection) HasErrors() bool {
	return len(cec.Errors) > 0
}

// AddFieldError records a validation problem with a single field.
func (cec *ConfigurationErrorCollection) AddFieldError(field, message string) {
	cec.Errors = append(cec.Errors, ConfigurationError{
		Field:     field,
		ErrorType: "validation",
		Message:   message,
	})
}
