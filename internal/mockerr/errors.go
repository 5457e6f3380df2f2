package mockerr

import (
	"errors"
	"fmt"
)

// Code identifies the category of a mock server error. The set is fixed;
// callers switch on it to decide whether a failure is fatal or diagnostic.
type Code string

const (
	// CodeCliNotFound indicates the mockforge executable could not be located.
	CodeCliNotFound Code = "cli_not_found"
	// CodeSpawnFailed indicates the OS failed to spawn the process.
	CodeSpawnFailed Code = "spawn_failed"
	// CodePortDetectionFailed indicates no port announcement was parsed from
	// the process output before the startup deadline.
	CodePortDetectionFailed Code = "port_detection_failed"
	// CodeHealthCheckTimeout indicates the HTTP port was discovered but the
	// health endpoint never answered before the startup deadline.
	CodeHealthCheckTimeout Code = "health_check_timeout"
	// CodeAdminAPIError indicates an admin interface call failed in a context
	// where the failure must be visible to the caller.
	CodeAdminAPIError Code = "admin_api_error"
	// CodeInvalidConfig indicates the caller supplied an inconsistent
	// configuration; reported before any process is spawned.
	CodeInvalidConfig Code = "invalid_config"
	// CodeStubNotFound indicates a stub lookup by identity found no match.
	CodeStubNotFound Code = "stub_not_found"
	// CodeNetworkError indicates a generic transport failure.
	CodeNetworkError Code = "network_error"
)

// Error is the structured error type shared by all harness components.
// Values are immutable once constructed.
type Error struct {
	// Code categorizes the failure.
	Code Code

	// Message is a human-readable description.
	Message string

	// Cause is the underlying error, if any.
	Cause error

	// Details carries structured context (attempted port, elapsed timeout,
	// captured stderr) for diagnostics.
	Details map[string]interface{}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/errors.As chains.
func (e *Error) Unwrap() error {
	return e.Cause
}

// HasCode reports whether err is or wraps an Error with the given code.
func HasCode(err error, code Code) bool {
	var me *Error
	if errors.As(err, &me) {
		return me.Code == code
	}
	return false
}

// CodeOf returns the code of err if it is or wraps an Error, or "" otherwise.
func CodeOf(err error) Code {
	var me *Error
	if errors.As(err, &me) {
		return me.Code
	}
	return ""
}

// New creates an Error with the given code and formatted message.
func New(code Code, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates an Error with the given code, cause, and formatted message.
func Wrap(code Code, cause error, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// WithDetail returns a copy of e with the given detail attached.
// The receiver is not modified.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	details := make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Cause:   e.Cause,
		Details: details,
	}
}

// CliNotFound creates an error for a missing mockforge executable.
func CliNotFound(binary string, cause error) *Error {
	return Wrap(CodeCliNotFound, cause, "mockforge executable %q not found in PATH", binary)
}

// SpawnFailed creates an error for an OS-level spawn failure.
func SpawnFailed(cause error) *Error {
	return Wrap(CodeSpawnFailed, cause, "failed to start mockforge process")
}

// PortDetectionFailed creates an error for a missed port announcement.
func PortDetectionFailed(timeoutMs int64) *Error {
	e := New(CodePortDetectionFailed, "no port announcement parsed from server output within %dms", timeoutMs)
	return e.WithDetail("timeout_ms", timeoutMs)
}

// HealthCheckTimeout creates an error for a server that announced a port but
// never answered the health check.
func HealthCheckTimeout(timeoutMs int64, port int) *Error {
	e := New(CodeHealthCheckTimeout, "server on port %d did not become healthy within %dms", port, timeoutMs)
	return e.WithDetail("timeout_ms", timeoutMs).WithDetail("port", port)
}

// InvalidConfig creates an error for an inconsistent launch configuration.
func InvalidConfig(format string, args ...interface{}) *Error {
	return New(CodeInvalidConfig, format, args...)
}

// AdminAPIError creates an error for a failed admin interface call whose
// failure must be surfaced.
func AdminAPIError(cause error, format string, args ...interface{}) *Error {
	return Wrap(CodeAdminAPIError, cause, format, args...)
}

// StubNotFound creates an error for a stub lookup that found no match.
func StubNotFound(id string) *Error {
	return New(CodeStubNotFound, "stub %q not found", id)
}

// NetworkError creates an error for a generic transport failure.
func NetworkError(cause error, format string, args ...interface{}) *Error {
	return Wrap(CodeNetworkError, cause, format, args...)
}
