package camera

import (
	"context"
	"slices"
	"sync"
)

// MetadataOutput runs object detection on the pipeline and publishes
// MetadataObjectsAvailable once per analysed frame while started.
type MetadataOutput struct {
	*output

	op        sync.Mutex
	detecting bool
}

// NewMetadataOutput creates a metadata output detecting types. With no
// types, every type the input supports is detected.
func (r *Registry) NewMetadataOutput(types ...MetadataObjectType) *MetadataOutput {
	m := &MetadataOutput{output: newOutput(r, KindMetadata, "", nil)}
	m.metadataTypes = slices.Clone(types)
	return m
}

// SupportedObjectTypes returns the object types the attached input can detect.
func (m *MetadataOutput) SupportedObjectTypes() ([]MetadataObjectType, error) {
	in, err := m.boundInput("supported metadata types")
	if err != nil {
		return nil, err
	}
	cs, err := in.capabilities("supported metadata types")
	if err != nil {
		return nil, err
	}
	return slices.Clone(cs.caps.MetadataTypes), nil
}

// CapturingObjectTypes returns the object types being detected.
func (m *MetadataOutput) CapturingObjectTypes() []MetadataObjectType {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.metadataTypes)
}

// SetCapturingObjectTypes filters detection to types.
func (m *MetadataOutput) SetCapturingObjectTypes(ctx context.Context, types []MetadataObjectType) error {
	const op = "set metadata types"
	m.op.Lock()
	defer m.op.Unlock()
	if in, err := m.boundInput(op); err == nil {
		cs, err := in.capabilities(op)
		if err != nil {
			return err
		}
		for _, t := range types {
			if !cs.metadata.has(t) {
				return newError(CodeUnsupportedParameter, op, "metadata object type %s not supported", t)
			}
		}
	}

	m.mu.Lock()
	if m.released {
		m.mu.Unlock()
		return newError(CodeInvalidState, op, "metadata output released")
	}
	m.metadataTypes = slices.Clone(types)
	stream := m.stream
	m.mu.Unlock()

	if stream != nil {
		if err := stream.SetMetadataTypes(ctx, types); err != nil {
			return m.streamError(op, CodeUnknown, err)
		}
	}
	return nil
}

// Start begins detection. The owning session must be running.
func (m *MetadataOutput) Start(ctx context.Context) error {
	m.op.Lock()
	defer m.op.Unlock()
	stream, err := m.liveStream("start metadata")
	if err != nil {
		return err
	}
	if m.detecting {
		return newError(CodeInvalidState, "start metadata", "already started")
	}
	if err := stream.Start(ctx); err != nil {
		return m.streamError("start metadata", CodePipelineStartFailed, err)
	}
	m.detecting = true
	return nil
}

// Stop ends detection.
func (m *MetadataOutput) Stop(ctx context.Context) error {
	m.op.Lock()
	defer m.op.Unlock()
	stream, err := m.liveStream("stop metadata")
	if err != nil {
		return err
	}
	if !m.detecting {
		return newError(CodeInvalidState, "stop metadata", "not started")
	}
	m.detecting = false
	if err := stream.Stop(ctx); err != nil {
		return m.streamError("stop metadata", CodeUnknown, err)
	}
	return nil
}

// Release releases the output, ending detection.
func (m *MetadataOutput) Release(_ context.Context) error {
	m.op.Lock()
	defer m.op.Unlock()
	if err := m.release(); err != nil {
		return err
	}
	m.detecting = false
	return nil
}

func (m *MetadataOutput) pipelineStart(_ context.Context) error {
	if m.setActive(true) == nil {
		m.setActive(false)
		return newError(CodeInvalidState, "start metadata", "no stream")
	}
	return nil
}

func (m *MetadataOutput) pipelineStop(ctx context.Context) error {
	m.op.Lock()
	defer m.op.Unlock()
	stream := m.setActive(false)
	if !m.detecting || stream == nil {
		return nil
	}
	m.detecting = false
	return stream.Stop(ctx)
}
