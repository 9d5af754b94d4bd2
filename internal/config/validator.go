package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "capture.poll_interval_ms")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Limits enforced by Validate.
const (
	maxPollIntervalMs = 60_000
	maxStopTimeoutMs  = 10 * 60_000
	maxKeep           = 100
	maxLogSizeMB      = 1000
)

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError
	errors = append(errors, c.validateCapture()...)
	errors = append(errors, c.validateLogging()...)
	return errors
}

func (c *Config) validateCapture() []ValidationError {
	var errors []ValidationError

	if strings.TrimSpace(c.Capture.Output) == "" {
		errors = append(errors, ValidationError{
			Field:   "capture.output",
			Value:   c.Capture.Output,
			Message: "must not be empty",
		})
	}

	if !slices.Contains(ValidEchoModes(), c.Capture.Echo) {
		errors = append(errors, ValidationError{
			Field:   "capture.echo",
			Value:   c.Capture.Echo,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidEchoModes(), ", ")),
		})
	}

	if c.Capture.PollIntervalMs <= 0 || c.Capture.PollIntervalMs > maxPollIntervalMs {
		errors = append(errors, ValidationError{
			Field:   "capture.poll_interval_ms",
			Value:   c.Capture.PollIntervalMs,
			Message: fmt.Sprintf("must be between 1 and %d", maxPollIntervalMs),
		})
	}

	if c.Capture.StopTimeoutMs < 0 || c.Capture.StopTimeoutMs > maxStopTimeoutMs {
		errors = append(errors, ValidationError{
			Field:   "capture.stop_timeout_ms",
			Value:   c.Capture.StopTimeoutMs,
			Message: fmt.Sprintf("must be between 0 and %d", maxStopTimeoutMs),
		})
	}

	if c.Capture.Keep < 0 || c.Capture.Keep > maxKeep {
		errors = append(errors, ValidationError{
			Field:   "capture.keep",
			Value:   c.Capture.Keep,
			Message: fmt.Sprintf("must be between 0 and %d", maxKeep),
		})
	}

	return errors
}

func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	if c.Logging.MaxSizeMB <= 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be positive",
		})
	} else if c.Logging.MaxSizeMB > maxLogSizeMB {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("exceeds maximum of %dMB", maxLogSizeMB),
		})
	}

	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}
