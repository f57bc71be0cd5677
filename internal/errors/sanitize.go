// Package errors turns internal errors into messages safe to show HTTP clients.
package errors

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	// Absolute file paths (Linux and Windows)
	filePathPattern = regexp.MustCompile(`(/[a-zA-Z0-9_\-./]+)|([A-Z]:\\[a-zA-Z0-9_\-\\ ./]+)`)

	// Connection and credential details that never belong in a response.
	internalErrorPattern = regexp.MustCompile(`(?i)(clickhouse|kafka|redis|s3:|dial tcp|connection refused|password=|secret=|token=|api[_-]?key=)`)
)

// GenericMessage replaces internal error details in production.
const GenericMessage = "internal server error"

var productionMode = false

// SetProductionMode sets the production mode flag.
// Should be called during application initialization.
func SetProductionMode(production bool) {
	productionMode = production
}

// IsProduction returns true if running in production mode.
func IsProduction() bool {
	return productionMode
}

// SanitizeString strips absolute paths down to their base name and hides
// backend details. Outside production mode s is returned unchanged.
func SanitizeString(s string) string {
	if !productionMode {
		return s
	}

	s = filePathPattern.ReplaceAllStringFunc(s, func(match string) string {
		return filepath.Base(match)
	})

	if internalErrorPattern.MatchString(s) {
		return GenericMessage
	}
	if strings.Contains(s, "goroutine") || strings.Count(s, "\n") > 3 {
		return GenericMessage
	}
	return s
}

// SanitizeError returns err with a sanitized message.
func SanitizeError(err error) error {
	if err == nil {
		return nil
	}
	if !productionMode {
		return err
	}
	return errors.New(SanitizeString(err.Error()))
}

// WrapSanitized wraps an error with additional context and sanitizes the result.
func WrapSanitized(err error, message string) error {
	if err == nil {
		return nil
	}
	return SanitizeError(fmt.Errorf("%s: %w", message, err))
}

// PublicMessage returns the message to show a client for err. Errors
// matching one of userErrors describe bad input and keep their text, with
// paths stripped. In production anything else becomes GenericMessage.
func PublicMessage(err error, userErrors ...error) string {
	if err == nil {
		return ""
	}

	for _, target := range userErrors {
		if errors.Is(err, target) {
			if !productionMode {
				return err.Error()
			}
			return filePathPattern.ReplaceAllStringFunc(err.Error(), func(match string) string {
				return filepath.Base(match)
			})
		}
	}

	if !productionMode {
		return err.Error()
	}
	return GenericMessage
}
