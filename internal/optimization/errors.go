package optimization

import (
	"errors"
	"fmt"
)

// Sentinel errors for the optimization core. Errors returned by this module
// wrap one of these so callers can match with errors.Is.
var (
	// ErrDimensionMismatch reports a shape disagreement between X, Y,
	// contexts and the configuration space.
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrMissingResourceSize reports a cost-bearing hyperparameter whose
	// resource is absent from the size table.
	ErrMissingResourceSize = errors.New("missing resource size")
	// ErrInvalidConfiguration reports a value outside its declared domain.
	ErrInvalidConfiguration = errors.New("invalid configuration")
	// ErrTrialTimeout reports an objective evaluation that exceeded the
	// per-trial time limit.
	ErrTrialTimeout = errors.New("trial timeout")
	// ErrObjectiveFunction reports an objective evaluation that failed or
	// panicked.
	ErrObjectiveFunction = errors.New("objective function error")
	// ErrUnknownSurrogate reports a surrogate tag with no registered factory.
	ErrUnknownSurrogate = errors.New("unknown surrogate type")
	// ErrNotTrained reports a prediction request on an unfitted model.
	ErrNotTrained = errors.New("model not trained")
	// ErrAlreadyRunning reports a Run call while another Run is in progress.
	ErrAlreadyRunning = errors.New("optimizer already running")
)

// Error represents an optimization error with context
// that can be wrapped with additional information.
type Error struct {
	// Message describes the error that occurred.
	Message string
	// Op is the operation that caused the error.
	Op string
	// Component is the component where the error occurred.
	Component string
	// Err is the underlying error that triggered this one, if any.
	Err error
}

// Error returns the string representation of the error.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var prefix string
	if e.Component != "" && e.Op != "" {
		prefix = fmt.Sprintf("%s: %s", e.Component, e.Op)
	} else if e.Component != "" {
		prefix = e.Component
	} else if e.Op != "" {
		prefix = e.Op
	}

	if e.Err != nil {
		if prefix != "" {
			return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}

	if prefix != "" {
		return fmt.Sprintf("%s: %s", prefix, e.Message)
	}
	return e.Message
}

// Unwrap returns the underlying error, if any.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// WithOperation adds operation context to the error.
func (e *Error) WithOperation(op string) *Error {
	e.Op = op
	return e
}

// WithComponent adds component context to the error.
func (e *Error) WithComponent(component string) *Error {
	e.Component = component
	return e
}

// NewErrorf creates a new optimization error with formatted message.
func NewErrorf(format string, args ...interface{}) *Error {
	return &Error{
		Message: fmt.Sprintf(format, args...),
	}
}

// WrapError wraps an existing error with additional context.
// If err is nil, WrapError returns nil.
func WrapError(err error, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Message: message,
		Err:     err,
	}
}

// WrapErrorf wraps an existing error with additional formatted context.
// If err is nil, WrapErrorf returns nil.
func WrapErrorf(err error, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// DimensionMismatchf returns an ErrDimensionMismatch with a formatted detail.
func DimensionMismatchf(format string, args ...interface{}) *Error {
	return WrapErrorf(ErrDimensionMismatch, format, args...)
}

// InvalidConfigurationf returns an ErrInvalidConfiguration with a formatted detail.
func InvalidConfigurationf(format string, args ...interface{}) *Error {
	return WrapErrorf(ErrInvalidConfiguration, format, args...)
}

// IsOptimizationError checks if an error is of type Error.
// If the error is an optimization error, it returns the error and true.
// Otherwise, it returns nil and false.
func IsOptimizationError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
