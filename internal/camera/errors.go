package camera

import (
	"errors"
	"fmt"
)

// Code classifies a camera error.
type Code string

// Error codes
const (
	CodeDeviceNotFound       Code = "DEVICE_NOT_FOUND"
	CodeDeviceBusy           Code = "DEVICE_BUSY"
	CodeInvalidState         Code = "INVALID_STATE"
	CodeUnsupportedParameter Code = "UNSUPPORTED_PARAMETER"
	CodeInputInUse           Code = "INPUT_IN_USE"
	CodeNotAttached          Code = "NOT_ATTACHED"
	CodeInvalidConfiguration Code = "INVALID_CONFIGURATION"
	CodePipelineStartFailed  Code = "PIPELINE_START_FAILED"
	CodeUnknown              Code = "UNKNOWN"
)

// Error represents a camera domain error. Op names the operation that failed.
type Error struct {
	Code    Code
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := string(e.Code)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a camera error with the same code, so
// errors.Is(err, ErrDeviceBusy) works on any busy error.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code && t.Op == "" && t.Message == ""
}

// Sentinels for errors.Is.
var (
	ErrDeviceNotFound       = &Error{Code: CodeDeviceNotFound}
	ErrDeviceBusy           = &Error{Code: CodeDeviceBusy}
	ErrInvalidState         = &Error{Code: CodeInvalidState}
	ErrUnsupportedParameter = &Error{Code: CodeUnsupportedParameter}
	ErrInputInUse           = &Error{Code: CodeInputInUse}
	ErrNotAttached          = &Error{Code: CodeNotAttached}
	ErrInvalidConfiguration = &Error{Code: CodeInvalidConfiguration}
	ErrPipelineStartFailed  = &Error{Code: CodePipelineStartFailed}
	ErrUnknown              = &Error{Code: CodeUnknown}
)

func newError(code Code, op, format string, args ...any) *Error {
	return &Error{Code: code, Op: op, Message: fmt.Sprintf(format, args...)}
}

func wrapError(code Code, op string, cause error) *Error {
	return &Error{Code: code, Op: op, Cause: cause}
}

// CodeOf extracts the code of the first camera error in err's chain.
// Errors from outside the package report CodeUnknown.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}
