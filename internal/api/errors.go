package api

import (
	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/camcore/internal/camera"
	"github.com/smazurov/camcore/internal/pipelines"
)

// mapPipelineError converts pipeline errors to HTTP errors.
func (s *Server) mapPipelineError(err error) error {
	switch pipelines.CodeOf(err) {
	case pipelines.ErrCodePipelineNotFound:
		return huma.Error404NotFound(err.Error())
	case pipelines.ErrCodePipelineExists:
		return huma.Error409Conflict(err.Error())
	case pipelines.ErrCodeInvalidParams:
		return huma.Error422UnprocessableEntity(err.Error())
	case pipelines.ErrCodeCameraError:
		return mapCameraError(err)
	default:
		s.logger.Error("Pipeline operation failed", "error", err)
		return huma.Error500InternalServerError("internal error", err)
	}
}

// mapCameraError converts camera error codes to HTTP errors.
func mapCameraError(err error) error {
	switch camera.CodeOf(err) {
	case camera.CodeDeviceNotFound:
		return huma.Error404NotFound(err.Error())
	case camera.CodeDeviceBusy, camera.CodeInputInUse, camera.CodeInvalidState, camera.CodeNotAttached:
		return huma.Error409Conflict(err.Error())
	case camera.CodeUnsupportedParameter, camera.CodeInvalidConfiguration:
		return huma.Error422UnprocessableEntity(err.Error())
	default:
		return huma.Error500InternalServerError(err.Error())
	}
}
