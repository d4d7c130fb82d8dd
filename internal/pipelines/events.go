package pipelines

import "github.com/smazurov/camcore/internal/camera"

// PipelineStateChanged is published whenever a pipeline is created, started,
// stopped, loses its device or is deleted.
type PipelineStateChanged struct {
	PipelineID string              `json:"pipeline_id"`
	State      camera.SessionState `json:"state"`
	Available  bool                `json:"available"`
	Error      string              `json:"error,omitempty"`
	Deleted    bool                `json:"deleted,omitempty"`
}

// Kind implements events.Payload.
func (PipelineStateChanged) Kind() string { return "pipeline_state" }
