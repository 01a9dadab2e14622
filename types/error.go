package types

import (
	"errors"
	"fmt"
)

// ErrorCode identifies the kind of a reconciliation failure.
type ErrorCode string

// Reconciliation error codes
const (
	ErrCodeProjectNotManaged ErrorCode = "PROJECT_NOT_MANAGED"
	ErrCodeMalformedManifest ErrorCode = "MALFORMED_MANIFEST"
	ErrCodeUnresolvableClass ErrorCode = "UNRESOLVABLE_CLASS"
	ErrCodeInstantiation     ErrorCode = "INSTANTIATION_FAILED"
	ErrCodeLifecycle         ErrorCode = "LIFECYCLE_FAILED"
)

// Sentinels usable with errors.Is. Any *Error with the same code matches.
var (
	ErrProjectNotManaged = NewError(ErrCodeProjectNotManaged, "project is not managed by a package manager")
	ErrMalformedManifest = NewError(ErrCodeMalformedManifest, "malformed plugin manifest")
	ErrUnresolvableClass = NewError(ErrCodeUnresolvableClass, "plugin class cannot be resolved")
	ErrInstantiation     = NewError(ErrCodeInstantiation, "plugin class failed to instantiate")
	ErrLifecycle         = NewError(ErrCodeLifecycle, "lifecycle actions failed")
)

// Error represents a structured error with code, message, and subject.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	// Subject names the offending identifier, class name or path.
	Subject string `json:"subject,omitempty"`
	Cause   error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Subject != "" {
		msg += ": " + e.Subject
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithSubject sets the offending subject.
func (e *Error) WithSubject(subject string) *Error {
	e.Subject = subject
	return e
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// AsError extracts a *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// IsErrorCode reports whether err carries the given code anywhere in its chain.
func IsErrorCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}

// =============================================================================
// Constructors
// =============================================================================

// NewProjectNotManagedError reports a missing package-manager root or map.
func NewProjectNotManagedError(root string, cause error) *Error {
	return NewError(ErrCodeProjectNotManaged, "project is not managed by a package manager").
		WithSubject(root).WithCause(cause)
}

// NewMalformedManifestError reports a manifest that failed the structural parse.
func NewMalformedManifestError(path string, cause error) *Error {
	return NewError(ErrCodeMalformedManifest, "malformed plugin manifest").
		WithSubject(path).WithCause(cause)
}

// NewUnresolvableClassError reports a plugin class unknown to the registry.
func NewUnresolvableClassError(className string) *Error {
	return NewError(ErrCodeUnresolvableClass, "plugin class cannot be resolved").
		WithSubject(className)
}

// NewInstantiationError reports a factory failure for className.
func NewInstantiationError(className string, cause error) *Error {
	return NewError(ErrCodeInstantiation, "plugin class failed to instantiate").
		WithSubject(className).WithCause(cause)
}

// NewLifecycleError reports a failed install or uninstall batch.
func NewLifecycleError(phase string, cause error) *Error {
	return NewError(ErrCodeLifecycle, "lifecycle actions failed").
		WithSubject(phase).WithCause(cause)
}
