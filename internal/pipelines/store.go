package pipelines

// Store persists pipeline specs.
type Store interface {
	// Load loads the specs from storage
	Load() error

	// Save saves the specs to storage
	Save() error

	// AddPipeline adds a new pipeline spec
	AddPipeline(spec PipelineSpec) error

	// UpdatePipeline replaces an existing pipeline spec
	UpdatePipeline(id string, spec PipelineSpec) error

	// RemovePipeline removes a pipeline spec
	RemovePipeline(id string) error

	// GetPipeline retrieves a pipeline spec by ID
	GetPipeline(id string) (PipelineSpec, bool)

	// GetAllPipelines returns all pipeline specs
	GetAllPipelines() map[string]PipelineSpec
}
