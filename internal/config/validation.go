package config

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidConfig is matched by errors.Is for any validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Is reports ErrInvalidConfig so callers can test with errors.Is without
// unpacking the field list.
func (e ValidationErrors) Is(target error) bool {
	return target == ErrInvalidConfig
}

// ValidateConfig performs validation of every section.
func ValidateConfig(c *Config) error {
	var errs ValidationErrors

	errs = append(errs, validateSimulation(&c.Simulation)...)
	errs = append(errs, validateSweep(&c.Sweep)...)
	errs = append(errs, validateLogging(&c.Logging)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateSimulation(s *SimulationConfig) ValidationErrors {
	var errs ValidationErrors

	if s.WarmupSteps < 0 {
		errs = append(errs, ValidationError{
			Field:   "simulation.warmup_steps",
			Message: fmt.Sprintf("must be >= 0, got %d", s.WarmupSteps),
		})
	}
	if s.TestSteps < 1 {
		errs = append(errs, ValidationError{
			Field:   "simulation.test_steps",
			Message: fmt.Sprintf("must be >= 1, got %d", s.TestSteps),
		})
	}
	if s.ConfirmationThreshold < 1 {
		errs = append(errs, ValidationError{
			Field:   "simulation.confirmation_threshold",
			Message: fmt.Sprintf("must be >= 1, got %d", s.ConfirmationThreshold),
		})
	}
	if s.DegradeThreshold <= 0 || s.DegradeThreshold > 1 {
		errs = append(errs, ValidationError{
			Field:   "simulation.degrade_threshold",
			Message: fmt.Sprintf("must be in (0, 1], got %g", s.DegradeThreshold),
		})
	}
	if s.Service == "" {
		errs = append(errs, ValidationError{
			Field:   "simulation.service",
			Message: "service name cannot be empty",
		})
	}

	return errs
}

func validateSweep(s *SweepConfig) ValidationErrors {
	var errs ValidationErrors

	if s.Model == "" {
		errs = append(errs, ValidationError{
			Field:   "sweep.model",
			Message: "model name cannot be empty",
		})
	}
	if s.ThresholdMin < 1 {
		errs = append(errs, ValidationError{
			Field:   "sweep.threshold_min",
			Message: fmt.Sprintf("must be >= 1, got %d", s.ThresholdMin),
		})
	}
	if s.ThresholdMax < s.ThresholdMin {
		errs = append(errs, ValidationError{
			Field:   "sweep.threshold_max",
			Message: fmt.Sprintf("must be >= threshold_min (%d), got %d", s.ThresholdMin, s.ThresholdMax),
		})
	}
	if s.NumSeeds < 1 {
		errs = append(errs, ValidationError{
			Field:   "sweep.num_seeds",
			Message: fmt.Sprintf("must be >= 1, got %d", s.NumSeeds),
		})
	}
	if s.Workers < 0 {
		errs = append(errs, ValidationError{
			Field:   "sweep.workers",
			Message: fmt.Sprintf("must be >= 0, got %d", s.Workers),
		})
	}

	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch l.Level {
	case "debug", "info", "warn", "error":
		// Valid levels
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level: %s (valid: debug, info, warn, error)", l.Level),
		})
	}

	switch l.Format {
	case "text", "json":
		// Valid formats
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format: %s (valid: text, json)", l.Format),
		})
	}

	switch l.Output {
	case "stdout", "stderr", "file":
		if l.Output == "file" && l.FilePath == "" {
			errs = append(errs, ValidationError{
				Field:   "logging.file_path",
				Message: "file path is required when output is 'file'",
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("invalid output: %s (valid: stdout, stderr, file)", l.Output),
		})
	}

	return errs
}
