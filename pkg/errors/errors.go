// Package errors provides the error taxonomy shared by the Flight Control
// MCP bridge: authentication, API, console, validation and configuration
// failures, each carrying enough structured context for callers to present
// a clear diagnosis without string matching.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error categories, matchable via errors.Is.
var (
	ErrAuthentication = errors.New("authentication failed")
	ErrAPI            = errors.New("api request failed")
	ErrConsole        = errors.New("console command failed")
	ErrValidation     = errors.New("invalid input")
	ErrConfiguration  = errors.New("configuration error")
)

// Console stages, recorded on ConsoleError so callers can tell a login
// failure from an execute failure.
const (
	ConsoleStageLogin   = "login"
	ConsoleStageExecute = "execute"
)

// AuthenticationError reports a failed token refresh or a 401 from the API.
type AuthenticationError struct {
	Message string
	Err     error
}

func (e *AuthenticationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

func (e *AuthenticationError) Is(target error) bool {
	return errors.Is(target, ErrAuthentication)
}

// NewAuthenticationError creates a new authentication error
func NewAuthenticationError(message string, err error) *AuthenticationError {
	return &AuthenticationError{Message: message, Err: err}
}

// IsAuthentication checks if an error is authentication-related
func IsAuthentication(err error) bool {
	return errors.Is(err, ErrAuthentication)
}

// APIError reports a non-auth failure while querying the resource API:
// an HTTP error status, a transport failure, or an unparseable response.
// StatusCode is zero when no HTTP response was received.
type APIError struct {
	Message    string
	StatusCode int
	Body       string
	Err        error
}

func (e *APIError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Body != "":
		return fmt.Sprintf("%s (status %d): %s", e.Message, e.StatusCode, e.Body)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s (status %d)", e.Message, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	default:
		return e.Message
	}
}

func (e *APIError) Unwrap() error {
	return e.Err
}

func (e *APIError) Is(target error) bool {
	return errors.Is(target, ErrAPI)
}

// NewAPIError creates a new API error carrying the HTTP status and raw body
func NewAPIError(message string, statusCode int, body string) *APIError {
	return &APIError{Message: message, StatusCode: statusCode, Body: body}
}

// NewAPIErrorWithCause creates a new API error wrapping an underlying cause
func NewAPIErrorWithCause(message string, err error) *APIError {
	return &APIError{Message: message, Err: err}
}

// IsAPI checks if an error is an API failure
func IsAPI(err error) bool {
	return errors.Is(err, ErrAPI)
}

// IsAPIStatus checks if an error is an API failure with a specific HTTP status
func IsAPIStatus(err error, statusCode int) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == statusCode
	}
	return false
}

// IsNotFound checks if an error represents a "not found" condition
func IsNotFound(err error) bool {
	return IsAPIStatus(err, http.StatusNotFound)
}

// IsAccessDenied checks if an error represents a "forbidden" condition
func IsAccessDenied(err error) bool {
	return IsAPIStatus(err, http.StatusForbidden)
}

// ConsoleError reports a failed console-bridge step: the external executable
// exited nonzero or could not be launched at all.
type ConsoleError struct {
	Stage   string
	Device  string
	Stderr  string
	Message string
	Err     error
}

func (e *ConsoleError) Error() string {
	msg := e.Message
	if e.Device != "" {
		msg = fmt.Sprintf("%s on device %q", msg, e.Device)
	}
	if e.Stderr != "" {
		return fmt.Sprintf("%s: %s", msg, e.Stderr)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ConsoleError) Unwrap() error {
	return e.Err
}

func (e *ConsoleError) Is(target error) bool {
	return errors.Is(target, ErrConsole)
}

// NewConsoleError creates a new console error for a step that exited nonzero
func NewConsoleError(stage, device, stderr, message string) *ConsoleError {
	return &ConsoleError{Stage: stage, Device: device, Stderr: stderr, Message: message}
}

// NewConsoleErrorWithCause creates a new console error wrapping a launch failure
func NewConsoleErrorWithCause(stage, device, message string, err error) *ConsoleError {
	return &ConsoleError{Stage: stage, Device: device, Message: message, Err: err}
}

// IsConsole checks if an error is a console failure
func IsConsole(err error) bool {
	return errors.Is(err, ErrConsole)
}

// ValidationError reports input rejected before any I/O was attempted.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error in field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return errors.Is(target, ErrValidation)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// IsValidation checks if an error is validation-related
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// ConfigurationError reports missing or unusable configuration detected at
// construction time, before any operation runs.
type ConfigurationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ConfigurationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("configuration error in field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

func (e *ConfigurationError) Is(target error) bool {
	return errors.Is(target, ErrConfiguration)
}

// NewConfigurationError creates a new configuration error
func NewConfigurationError(field, message string) *ConfigurationError {
	return &ConfigurationError{Field: field, Message: message}
}

// IsConfiguration checks if an error is configuration-related
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}
