package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/camcore/internal/api/models"
)

// PipelinePathInput is the pipeline path parameter.
type PipelinePathInput struct {
	PipelineID string `path:"pipeline_id" example:"front-door" doc:"Pipeline identifier"`
}

func (s *Server) registerPipelineRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-pipelines",
		Method:      http.MethodGet,
		Path:        "/api/pipelines",
		Summary:     "List Pipelines",
		Description: "List configured pipelines with their session state",
		Tags:        []string{"pipelines"},
		Errors:      []int{401, 500},
		Security:    withAuth(),
	}, func(ctx context.Context, input *struct{}) (*models.PipelineListResponse, error) {
		list, err := s.pipelines.List(ctx)
		if err != nil {
			return nil, s.mapPipelineError(err)
		}
		data := make([]models.PipelineData, 0, len(list))
		for _, p := range list {
			data = append(data, pipelineData(p))
		}
		return &models.PipelineListResponse{
			Body: models.PipelineListData{Pipelines: data, Count: len(data)},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "create-pipeline",
		Method:        http.MethodPost,
		Path:          "/api/pipelines",
		Summary:       "Create Pipeline",
		Description:   "Open a device, attach the requested outputs and commit the session configuration",
		Tags:          []string{"pipelines"},
		DefaultStatus: http.StatusCreated,
		Errors:        []int{400, 401, 404, 409, 422, 500},
		Security:      withAuth(),
	}, func(ctx context.Context, input *models.PipelineRequest) (*models.PipelineResponse, error) {
		patch, err := controlsPatch(input.Body.Controls)
		if err != nil {
			return nil, err
		}

		p, err := s.pipelines.Create(ctx, pipelineSpec(input.Body))
		if err != nil {
			return nil, s.mapPipelineError(err)
		}
		if !patch.Empty() {
			updated, err := s.pipelines.UpdateControls(ctx, p.ID, patch)
			if err != nil {
				if delErr := s.pipelines.Delete(ctx, p.ID); delErr != nil {
					s.logger.Warn("Failed to roll back pipeline", "pipeline_id", p.ID, "error", delErr)
				}
				return nil, s.mapPipelineError(err)
			}
			p = updated
		}
		return &models.PipelineResponse{Body: pipelineData(*p)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-pipeline",
		Method:      http.MethodGet,
		Path:        "/api/pipelines/{pipeline_id}",
		Summary:     "Get Pipeline",
		Tags:        []string{"pipelines"},
		Errors:      []int{401, 404},
		Security:    withAuth(),
	}, func(ctx context.Context, input *PipelinePathInput) (*models.PipelineResponse, error) {
		p, err := s.pipelines.Get(ctx, input.PipelineID)
		if err != nil {
			return nil, s.mapPipelineError(err)
		}
		return &models.PipelineResponse{Body: pipelineData(*p)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "delete-pipeline",
		Method:        http.MethodDelete,
		Path:          "/api/pipelines/{pipeline_id}",
		Summary:       "Delete Pipeline",
		Description:   "Stop the pipeline, release its device and remove it from the configuration",
		Tags:          []string{"pipelines"},
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{401, 404, 500},
		Security:      withAuth(),
	}, func(ctx context.Context, input *PipelinePathInput) (*struct{}, error) {
		if err := s.pipelines.Delete(ctx, input.PipelineID); err != nil {
			return nil, s.mapPipelineError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "start-pipeline",
		Method:      http.MethodPost,
		Path:        "/api/pipelines/{pipeline_id}/start",
		Summary:     "Start Pipeline",
		Tags:        []string{"pipelines"},
		Errors:      []int{401, 404, 409, 422, 500},
		Security:    withAuth(),
	}, func(ctx context.Context, input *PipelinePathInput) (*models.PipelineResponse, error) {
		p, err := s.pipelines.Start(ctx, input.PipelineID)
		if err != nil {
			return nil, s.mapPipelineError(err)
		}
		return &models.PipelineResponse{Body: pipelineData(*p)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "stop-pipeline",
		Method:      http.MethodPost,
		Path:        "/api/pipelines/{pipeline_id}/stop",
		Summary:     "Stop Pipeline",
		Tags:        []string{"pipelines"},
		Errors:      []int{401, 404, 409, 500},
		Security:    withAuth(),
	}, func(ctx context.Context, input *PipelinePathInput) (*models.PipelineResponse, error) {
		p, err := s.pipelines.Stop(ctx, input.PipelineID)
		if err != nil {
			return nil, s.mapPipelineError(err)
		}
		return &models.PipelineResponse{Body: pipelineData(*p)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "capture-photo",
		Method:      http.MethodPost,
		Path:        "/api/pipelines/{pipeline_id}/capture",
		Summary:     "Capture Photo",
		Description: "Take a photo on a running pipeline that has a photo output",
		Tags:        []string{"pipelines"},
		Errors:      []int{400, 401, 404, 409, 422, 500},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.CaptureRequest) (*models.CaptureResponse, error) {
		settings, err := photoSettings(input.Body)
		if err != nil {
			return nil, err
		}
		result, err := s.pipelines.Capture(ctx, input.PipelineID, settings)
		if err != nil {
			return nil, s.mapPipelineError(err)
		}
		return &models.CaptureResponse{
			Body: models.CaptureData{
				CaptureID:   result.CaptureID,
				Frames:      result.Frames,
				ShutterTime: result.ShutterTime,
				Path:        result.Path,
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "update-pipeline-controls",
		Method:      http.MethodPatch,
		Path:        "/api/pipelines/{pipeline_id}/controls",
		Summary:     "Update Controls",
		Description: "Apply a partial control update atomically; either every field applies or none does",
		Tags:        []string{"pipelines"},
		Errors:      []int{400, 401, 404, 409, 422, 500},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.ControlsRequest) (*models.PipelineResponse, error) {
		patch, err := controlsPatch(&input.Body)
		if err != nil {
			return nil, err
		}
		if patch.Empty() {
			return nil, huma.Error400BadRequest("no controls to update")
		}
		p, err := s.pipelines.UpdateControls(ctx, input.PipelineID, patch)
		if err != nil {
			return nil, s.mapPipelineError(err)
		}
		return &models.PipelineResponse{Body: pipelineData(*p)}, nil
	})
}
