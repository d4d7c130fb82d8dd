package camera

import (
	"context"
	"slices"
	"sync"
)

// VideoOutput records frames while started. Recording requires the owning
// session to be running.
type VideoOutput struct {
	*output

	// op serialises Start, Stop, Pause and Resume.
	op        sync.Mutex
	recording bool
	paused    bool
}

// NewVideoOutput creates a video output recording to surfaceID.
func (r *Registry) NewVideoOutput(surfaceID string, opts ...OutputOption) *VideoOutput {
	return &VideoOutput{output: newOutput(r, KindVideo, surfaceID, opts)}
}

// Recording reports whether the output is started, and whether it is paused.
func (v *VideoOutput) Recording() (recording, paused bool) {
	v.op.Lock()
	defer v.op.Unlock()
	return v.recording, v.paused
}

// Start begins recording. The owning session must be running.
func (v *VideoOutput) Start(ctx context.Context) error {
	v.op.Lock()
	defer v.op.Unlock()
	stream, err := v.liveStream("start video")
	if err != nil {
		return err
	}
	if v.recording {
		return newError(CodeInvalidState, "start video", "already recording")
	}
	if err := stream.Start(ctx); err != nil {
		return v.streamError("start video", CodePipelineStartFailed, err)
	}
	v.recording, v.paused = true, false
	v.logger.Info("Recording started", "surface_id", v.surfaceID)
	return nil
}

// Stop ends recording.
func (v *VideoOutput) Stop(ctx context.Context) error {
	v.op.Lock()
	defer v.op.Unlock()
	stream, err := v.liveStream("stop video")
	if err != nil {
		return err
	}
	if !v.recording {
		return newError(CodeInvalidState, "stop video", "not recording")
	}
	v.recording, v.paused = false, false
	if err := stream.Stop(ctx); err != nil {
		return v.streamError("stop video", CodeUnknown, err)
	}
	v.logger.Info("Recording stopped", "surface_id", v.surfaceID)
	return nil
}

// Pause suspends a started recording.
func (v *VideoOutput) Pause(ctx context.Context) error {
	v.op.Lock()
	defer v.op.Unlock()
	stream, err := v.liveStream("pause video")
	if err != nil {
		return err
	}
	if !v.recording || v.paused {
		return newError(CodeInvalidState, "pause video", "not recording")
	}
	if err := stream.Pause(ctx); err != nil {
		return v.streamError("pause video", CodeUnknown, err)
	}
	v.paused = true
	return nil
}

// Resume continues a paused recording.
func (v *VideoOutput) Resume(ctx context.Context) error {
	v.op.Lock()
	defer v.op.Unlock()
	stream, err := v.liveStream("resume video")
	if err != nil {
		return err
	}
	if !v.recording || !v.paused {
		return newError(CodeInvalidState, "resume video", "not paused")
	}
	if err := stream.Resume(ctx); err != nil {
		return v.streamError("resume video", CodeUnknown, err)
	}
	v.paused = false
	return nil
}

// SupportedStabilizationModes returns the modes the attached input offers.
func (v *VideoOutput) SupportedStabilizationModes() ([]StabilizationMode, error) {
	in, err := v.boundInput("supported stabilization modes")
	if err != nil {
		return nil, err
	}
	cs, err := in.capabilities("supported stabilization modes")
	if err != nil {
		return nil, err
	}
	return slices.Clone(cs.caps.StabilizationModes), nil
}

// SetStabilizationMode selects a stabilization mode. It takes effect on
// the next CommitConfig of the owning session.
func (v *VideoOutput) SetStabilizationMode(_ context.Context, m StabilizationMode) error {
	in, err := v.boundInput("set stabilization mode")
	if err != nil {
		return err
	}
	cs, err := in.capabilities("set stabilization mode")
	if err != nil {
		return err
	}
	if m != StabilizationOff && !cs.stabilization.has(m) {
		return newError(CodeUnsupportedParameter, "set stabilization mode", "stabilization %s not supported", m)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.released {
		return newError(CodeInvalidState, "set stabilization mode", "video output released")
	}
	v.stabilization = m
	return nil
}

// StabilizationMode returns the selected stabilization mode.
func (v *VideoOutput) StabilizationMode() StabilizationMode {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stabilization
}

// Release releases the output, stopping any recording.
func (v *VideoOutput) Release(_ context.Context) error {
	v.op.Lock()
	defer v.op.Unlock()
	if err := v.release(); err != nil {
		return err
	}
	v.recording, v.paused = false, false
	return nil
}

func (v *VideoOutput) pipelineStart(_ context.Context) error {
	if v.setActive(true) == nil {
		v.setActive(false)
		return newError(CodeInvalidState, "start video", "no stream")
	}
	return nil
}

func (v *VideoOutput) pipelineStop(ctx context.Context) error {
	v.op.Lock()
	defer v.op.Unlock()
	stream := v.setActive(false)
	if !v.recording || stream == nil {
		return nil
	}
	v.recording, v.paused = false, false
	return stream.Stop(ctx)
}
