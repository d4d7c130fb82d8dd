package pipelines

import (
	"errors"
	"fmt"
)

// PipelineError represents a domain-specific error.
type PipelineError struct {
	Code    string
	Message string
	Cause   error
}

func (e *PipelineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// Error codes.
const (
	ErrCodePipelineNotFound = "PIPELINE_NOT_FOUND"
	ErrCodePipelineExists   = "PIPELINE_EXISTS"
	ErrCodeInvalidParams    = "INVALID_PARAMS"
	ErrCodeCameraError      = "CAMERA_ERROR"
	ErrCodeStoreError       = "STORE_ERROR"
)

// NewPipelineError creates a new pipeline error.
func NewPipelineError(code, message string, cause error) *PipelineError {
	return &PipelineError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// CodeOf returns the pipeline error code of err, or "" if err is not a PipelineError.
func CodeOf(err error) string {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

func cameraError(message string, err error) *PipelineError {
	return NewPipelineError(ErrCodeCameraError, message, err)
}

func invalidParams(format string, args ...any) *PipelineError {
	return NewPipelineError(ErrCodeInvalidParams, fmt.Sprintf(format, args...), nil)
}
