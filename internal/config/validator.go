package config

import (
	"fmt"
	"net"
	"strings"
	"text/template"

	"github.com/gobwas/glob"

	"github.com/Iron-Ham/hotswap/internal/logging"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "watch.interval_ms")
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
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	levels := logging.ValidLevels()
	for i, l := range levels {
		levels[i] = strings.ToLower(l)
	}
	return levels
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateWatch()...)
	errors = append(errors, c.validateBuild()...)
	errors = append(errors, c.validateLibrary()...)
	errors = append(errors, c.validateLogging()...)
	errors = append(errors, c.validateMetrics()...)

	return errors
}

// ValidateForRun adds the checks that only matter when the engine starts.
func (c *Config) ValidateForRun() []ValidationError {
	errors := c.Validate()
	if strings.TrimSpace(c.Library.Path) == "" {
		errors = append(errors, ValidationError{
			Field:   "library.path",
			Value:   c.Library.Path,
			Message: "is required",
		})
	}
	return errors
}

func (c *Config) validateWatch() []ValidationError {
	var errors []ValidationError

	if c.Watch.Root == "" {
		errors = append(errors, ValidationError{
			Field:   "watch.root",
			Value:   c.Watch.Root,
			Message: "must not be empty",
		})
	}
	if c.Watch.IntervalMs < 10 || c.Watch.IntervalMs > 60_000 {
		errors = append(errors, ValidationError{
			Field:   "watch.interval_ms",
			Value:   c.Watch.IntervalMs,
			Message: "must be between 10 and 60000",
		})
	}
	if c.Watch.SizeThresholdBytes <= 0 {
		errors = append(errors, ValidationError{
			Field:   "watch.size_threshold_bytes",
			Value:   c.Watch.SizeThresholdBytes,
			Message: "must be positive",
		})
	}
	if c.Watch.HashWorkers < 1 || c.Watch.HashWorkers > 256 {
		errors = append(errors, ValidationError{
			Field:   "watch.hash_workers",
			Value:   c.Watch.HashWorkers,
			Message: "must be between 1 and 256",
		})
	}
	for i, pattern := range c.Watch.Ignore {
		if _, err := glob.Compile(pattern, '/'); err != nil {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("watch.ignore[%d]", i),
				Value:   pattern,
				Message: fmt.Sprintf("invalid glob: %v", err),
			})
		}
	}

	return errors
}

func (c *Config) validateBuild() []ValidationError {
	var errors []ValidationError

	if len(c.Build.Command) == 0 || strings.TrimSpace(c.Build.Command[0]) == "" {
		errors = append(errors, ValidationError{
			Field:   "build.command",
			Value:   c.Build.Command,
			Message: "must name a program",
		})
		return errors
	}
	for i, arg := range c.Build.Command {
		if _, err := template.New("arg").Option("missingkey=error").Parse(arg); err != nil {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("build.command[%d]", i),
				Value:   arg,
				Message: fmt.Sprintf("invalid template: %v", err),
			})
		}
	}

	return errors
}

func (c *Config) validateLibrary() []ValidationError {
	var errors []ValidationError

	if c.Library.RemoveRetries < 0 {
		errors = append(errors, ValidationError{
			Field:   "library.remove_retries",
			Value:   c.Library.RemoveRetries,
			Message: "must be non-negative",
		})
	}

	return errors
}

func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && logging.ParseLevel(c.Logging.Level) != strings.ToUpper(c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}
	if c.Logging.MaxSizeMB < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be non-negative",
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

func (c *Config) validateMetrics() []ValidationError {
	var errors []ValidationError

	if !c.Metrics.Enabled {
		return errors
	}
	if _, _, err := net.SplitHostPort(c.Metrics.Addr); err != nil {
		errors = append(errors, ValidationError{
			Field:   "metrics.addr",
			Value:   c.Metrics.Addr,
			Message: "must be host:port",
		})
	}

	return errors
}
