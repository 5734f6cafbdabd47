// Package apperr defines the error taxonomy shared by services, the operation
// registry and the HTTP bridge. Callers match with errors.Is against the
// sentinels; the structured types carry the extra payload a caller needs.
package apperr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	ErrValidation           = errors.New("validation failed")
	ErrNotFound             = errors.New("not found")
	ErrConfirmationRequired = errors.New("confirmation required")
	ErrSchemaViolation      = errors.New("schema violation")
	ErrTimeoutRace          = errors.New("session state changed concurrently")
	ErrProvider             = errors.New("embedding provider failed")
	ErrNoDefaultProject     = errors.New("no default project available")
)

// ValidationError reports malformed or oversized input. Fields maps the
// offending input field to a short reason.
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("%s: %s", ErrValidation, e.Message)
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+" "+e.Fields[k])
	}
	return fmt.Sprintf("%s: %s (%s)", ErrValidation, e.Message, strings.Join(parts, "; "))
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func Validation(format string, args ...interface{}) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

func ValidationField(field, reason string) error {
	return &ValidationError{Message: "invalid input", Fields: map[string]string{field: reason}}
}

func NotFound(kind string, id interface{}) error {
	return fmt.Errorf("%s %v: %w", kind, id, ErrNotFound)
}

func SchemaViolation(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrSchemaViolation)
}

func TimeoutRace(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrTimeoutRace)
}

func NoDefaultProject() error {
	return fmt.Errorf("start a session with an explicit project_id or create a project first: %w", ErrNoDefaultProject)
}

// ConfirmationRequiredError is returned by two-step destructive operations
// when the caller did not pass confirm=true. Nothing has been mutated.
type ConfirmationRequiredError struct {
	Action  string
	Warning string
	Details map[string]interface{}
}

func (e *ConfirmationRequiredError) Error() string {
	return fmt.Sprintf("%s: %s (repeat with confirm=true)", e.Action, e.Warning)
}

func (e *ConfirmationRequiredError) Is(target error) bool { return target == ErrConfirmationRequired }

// ProviderError wraps a failed or timed out embedding call.
type ProviderError struct {
	Provider   string
	Cause      error
	RetryAfter time.Duration
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s (%s): %v", ErrProvider, e.Provider, e.Cause)
}

func (e *ProviderError) Is(target error) bool { return target == ErrProvider }

func (e *ProviderError) Unwrap() error { return e.Cause }

func Provider(provider string, cause error) error {
	return &ProviderError{Provider: provider, Cause: cause, RetryAfter: 5 * time.Second}
}

// Code returns the stable machine-readable code for err.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "VALIDATION_ERROR"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrConfirmationRequired):
		return "CONFIRMATION_REQUIRED"
	case errors.Is(err, ErrSchemaViolation):
		return "SCHEMA_VIOLATION"
	case errors.Is(err, ErrTimeoutRace):
		return "TIMEOUT_RACE"
	case errors.Is(err, ErrProvider):
		return "PROVIDER_ERROR"
	case errors.Is(err, ErrNoDefaultProject):
		return "NO_DEFAULT_PROJECT"
	default:
		return "INTERNAL_ERROR"
	}
}
