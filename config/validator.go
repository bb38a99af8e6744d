package config

import (
	"fmt"
	"net"
	"regexp"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "pool.workers")
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

// Prometheus metric name prefix rules
var namespaceRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidLogFormats returns the list of valid log formats
func ValidLogFormats() []string {
	return []string{"text", "json"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError

	errs = append(errs, c.validatePool()...)
	errs = append(errs, c.validateLogging()...)
	errs = append(errs, c.validateMetrics()...)

	return errs
}

func (c *Config) validatePool() []ValidationError {
	var errs []ValidationError

	if strings.TrimSpace(c.Pool.ID) == "" {
		errs = append(errs, ValidationError{
			Field:   "pool.id",
			Value:   c.Pool.ID,
			Message: "must not be empty",
		})
	}
	if c.Pool.Workers == 0 || c.Pool.Workers < -1 {
		errs = append(errs, ValidationError{
			Field:   "pool.workers",
			Value:   c.Pool.Workers,
			Message: "must be positive, or -1 for one worker per CPU",
		})
	}
	if c.Pool.OrphanQueueCapacity < 1 {
		errs = append(errs, ValidationError{
			Field:   "pool.orphan_queue_capacity",
			Value:   c.Pool.OrphanQueueCapacity,
			Message: "must be at least 1",
		})
	}
	if c.Pool.ChildQueueCapacity < 1 {
		errs = append(errs, ValidationError{
			Field:   "pool.child_queue_capacity",
			Value:   c.Pool.ChildQueueCapacity,
			Message: "must be at least 1",
		})
	}
	if c.Pool.HistoryCapacity < 1 {
		errs = append(errs, ValidationError{
			Field:   "pool.history_capacity",
			Value:   c.Pool.HistoryCapacity,
			Message: "must be at least 1",
		})
	}

	return errs
}

func (c *Config) validateLogging() []ValidationError {
	var errs []ValidationError

	if !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of %v", ValidLogLevels()),
		})
	}
	if !slices.Contains(ValidLogFormats(), c.Logging.Format) {
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Value:   c.Logging.Format,
			Message: fmt.Sprintf("must be one of %v", ValidLogFormats()),
		})
	}

	return errs
}

func (c *Config) validateMetrics() []ValidationError {
	var errs []ValidationError

	if !namespaceRegex.MatchString(c.Metrics.Namespace) {
		errs = append(errs, ValidationError{
			Field:   "metrics.namespace",
			Value:   c.Metrics.Namespace,
			Message: "must be a valid Prometheus metric name prefix",
		})
	}
	if c.Metrics.PollInterval <= 0 {
		errs = append(errs, ValidationError{
			Field:   "metrics.poll_interval",
			Value:   c.Metrics.PollInterval,
			Message: "must be positive",
		})
	}
	if c.Metrics.Enabled {
		if _, _, err := net.SplitHostPort(c.Metrics.Addr); err != nil {
			errs = append(errs, ValidationError{
				Field:   "metrics.addr",
				Value:   c.Metrics.Addr,
				Message: "must be host:port",
			})
		}
	}

	return errs
}
