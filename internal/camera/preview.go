package camera

import "context"

// PreviewOutput streams frames to a display surface while its session runs.
type PreviewOutput struct {
	*output
}

// NewPreviewOutput creates a preview output rendering to surfaceID.
func (r *Registry) NewPreviewOutput(surfaceID string, opts ...OutputOption) *PreviewOutput {
	return &PreviewOutput{output: newOutput(r, KindPreview, surfaceID, opts)}
}

// Release releases the output. An attached session skips it from then on.
func (p *PreviewOutput) Release(_ context.Context) error {
	return p.release()
}

func (p *PreviewOutput) pipelineStart(ctx context.Context) error { return p.startStream(ctx) }
func (p *PreviewOutput) pipelineStop(ctx context.Context) error  { return p.stopStream(ctx) }
