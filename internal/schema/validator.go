package schema

import (
	"fmt"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
)

// actionPattern defines the valid format for action strings.
// Actions are lowercase identifiers, optionally dotted: "login", "role_change", "s3.get_object".
var actionPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*(\.[a-z][a-z0-9_]*)*$`)

// Validator checks events produced by the ingestion layer before they reach the detectors.
type Validator struct {
	validate  *validator.Validate
	maxFuture time.Duration
	now       func() time.Time
}

// ValidatorConfig holds configuration for the validator.
type ValidatorConfig struct {
	// MaxFuture bounds how far past the current time an event may be stamped.
	// Zero disables the check.
	MaxFuture time.Duration
}

// DefaultValidatorConfig returns the default validator configuration.
func DefaultValidatorConfig() ValidatorConfig {
	return ValidatorConfig{
		MaxFuture: 5 * time.Minute,
	}
}

// NewValidator creates a new Validator with default configuration.
func NewValidator() *Validator {
	return NewValidatorWithConfig(DefaultValidatorConfig())
}

// NewValidatorWithConfig creates a new Validator with the specified configuration.
func NewValidatorWithConfig(cfg ValidatorConfig) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterValidation("action_format", func(fl validator.FieldLevel) bool {
		return actionPattern.MatchString(fl.Field().String())
	})

	return &Validator{
		validate:  v,
		maxFuture: cfg.MaxFuture,
		now:       time.Now,
	}
}

// Validate validates an event. Returns an error describing the first problem found.
func (v *Validator) Validate(event *Event) error {
	if err := v.validate.Struct(event); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	if !ValidateAction(string(event.Action)) {
		return fmt.Errorf("invalid action format: %q", event.Action)
	}

	if event.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}

	if v.maxFuture > 0 && event.Timestamp.After(v.now().UTC().Add(v.maxFuture)) {
		return fmt.Errorf("timestamp in future: %v (max future: %v)", event.Timestamp, v.maxFuture)
	}

	return nil
}

// ValidateAction checks if an action string matches the required format.
func ValidateAction(action string) bool {
	return actionPattern.MatchString(action)
}
