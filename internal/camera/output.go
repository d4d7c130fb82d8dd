package camera

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smazurov/camcore/internal/events"
)

// Output is a destination for pipeline frames. The set of variants is
// closed: PreviewOutput, PhotoOutput, VideoOutput and MetadataOutput.
type Output interface {
	ID() string
	Kind() OutputKind
	SurfaceID() string
	Released() bool
	Release(ctx context.Context) error
	Subscribe(handler func(Notification)) func()

	base() *output
	// pipelineStart and pipelineStop run when the owning session starts and stops.
	pipelineStart(ctx context.Context) error
	pipelineStop(ctx context.Context) error
}

// OutputOption configures an image output.
type OutputOption func(*output)

// WithFormat requests a stream format. The first supported format is used otherwise.
func WithFormat(f Format) OutputOption {
	return func(o *output) { o.format = f }
}

// WithSize requests a frame size. The first supported size is used otherwise.
func WithSize(s Size) OutputOption {
	return func(o *output) { o.size = s }
}

// output holds the state shared by every variant.
type output struct {
	id        uuid.UUID
	kind      OutputKind
	surfaceID string
	reg       *Registry
	emitter   *events.Emitter
	logger    *slog.Logger

	mu       sync.Mutex
	released bool
	session  *Session
	format   Format
	size     Size
	stream   Stream
	// stabilization and metadataTypes only apply to video and metadata outputs.
	stabilization StabilizationMode
	metadataTypes []MetadataObjectType
	// active is set while the owning session is running.
	active bool
}

func newOutput(r *Registry, kind OutputKind, surfaceID string, opts []OutputOption) *output {
	id := uuid.New()
	o := &output{
		id:        id,
		kind:      kind,
		surfaceID: surfaceID,
		reg:       r,
		emitter:   r.bus.NewEmitter(kind.String() + "/" + id.String()),
		logger:    r.logger.With("output_id", id.String(), "kind", kind.String()),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *output) ID() string        { return o.id.String() }
func (o *output) Kind() OutputKind  { return o.kind }
func (o *output) SurfaceID() string { return o.surfaceID }
func (o *output) base() *output     { return o }

func (o *output) Subscribe(handler func(Notification)) func() {
	return o.emitter.Subscribe(handler)
}

func (o *output) Released() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.released
}

// release marks the output released and closes its stream. The owning
// session notices on its next operation.
func (o *output) release() error {
	o.mu.Lock()
	if o.released {
		o.mu.Unlock()
		return newError(CodeInvalidState, "release output", "%s output already released", o.kind)
	}
	o.released = true
	o.active = false
	stream := o.stream
	o.stream = nil
	o.mu.Unlock()

	if stream != nil {
		if err := stream.Close(); err != nil {
			o.logger.Warn("Failed to close stream", "error", err)
		}
	}
	o.logger.Debug("Output released")
	return nil
}

func (o *output) bind(s *Session) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.released {
		return newError(CodeInvalidState, "add output", "%s output released", o.kind)
	}
	if o.session != nil {
		return newError(CodeInvalidState, "add output", "%s output already attached to session %s", o.kind, o.session.ID())
	}
	o.session = s
	return nil
}

func (o *output) unbind(s *Session) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == s {
		o.session = nil
	}
}

func (o *output) boundSession() *Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session
}

// boundInput returns the input of the session this output is attached to.
func (o *output) boundInput(op string) (*Input, error) {
	s := o.boundSession()
	if s == nil {
		return nil, newError(CodeNotAttached, op, "%s output is not attached to a session", o.kind)
	}
	in := s.Input()
	if in == nil || in.Released() {
		return nil, newError(CodeNotAttached, op, "session %s has no input", s.ID())
	}
	return in, nil
}

func (o *output) streamConfig() StreamConfig {
	o.mu.Lock()
	defer o.mu.Unlock()
	return StreamConfig{
		Kind:          o.kind,
		Format:        o.format,
		Size:          o.size,
		SurfaceID:     o.surfaceID,
		Stabilization: o.stabilization,
		MetadataTypes: slices.Clone(o.metadataTypes),
	}
}

func (o *output) attachStream(s Stream, cfg StreamConfig) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.released {
		return false
	}
	o.stream = s
	o.format = cfg.Format
	o.size = cfg.Size
	o.metadataTypes = cfg.MetadataTypes
	return true
}

func (o *output) detachStream() {
	o.mu.Lock()
	stream := o.stream
	o.stream = nil
	o.active = false
	o.mu.Unlock()
	if stream != nil {
		if err := stream.Close(); err != nil {
			o.logger.Warn("Failed to close stream", "error", err)
		}
	}
}

// activeStream returns the stream if the output is live and running.
func (o *output) activeStream(op string) (Stream, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.released {
		return nil, newError(CodeInvalidState, op, "%s output released", o.kind)
	}
	if o.stream == nil || !o.active {
		return nil, newError(CodeInvalidState, op, "%s output is not part of a running session", o.kind)
	}
	return o.stream, nil
}

// liveStream is activeStream for operations that drive the hardware, which
// also need the session's input to be open.
func (o *output) liveStream(op string) (Stream, error) {
	stream, err := o.activeStream(op)
	if err != nil {
		return nil, err
	}
	if _, err := o.boundInput(op); err != nil {
		return nil, err
	}
	return stream, nil
}

// streamError classifies a failed stream call. Failures caused by the output
// or its input being released meanwhile are reported as such; anything else
// gets code.
func (o *output) streamError(op string, code Code, err error) error {
	if o.Released() {
		return newError(CodeInvalidState, op, "%s output released", o.kind)
	}
	if _, inErr := o.boundInput(op); inErr != nil {
		return inErr
	}
	return wrapError(code, op, err)
}

// setActive marks the pipeline live and returns the stream.
func (o *output) setActive(active bool) Stream {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.active = active
	return o.stream
}

// startStream activates the pipeline and starts frame production.
func (o *output) startStream(ctx context.Context) error {
	stream := o.setActive(true)
	if stream == nil {
		o.setActive(false)
		return newError(CodeInvalidState, "start "+o.kind.String(), "no stream")
	}
	if err := stream.Start(ctx); err != nil {
		o.setActive(false)
		return err
	}
	return nil
}

func (o *output) stopStream(ctx context.Context) error {
	if stream := o.setActive(false); stream != nil {
		return stream.Stop(ctx)
	}
	return nil
}

func (o *output) fault(err error) {
	f := newFault(o.ID(), err)
	o.logger.Warn("Stream fault", "code", f.Code, "error", err)
	o.emitter.Emit(f)
	if s := o.boundSession(); s != nil {
		s.emitter.Emit(f)
	}
}

// streamEvents adapts stream callbacks to output events.
type streamEvents struct{ o *output }

func (l streamEvents) FrameStarted()         { l.o.emitter.Emit(FrameStarted{}) }
func (l streamEvents) FrameEnded(frames int) { l.o.emitter.Emit(FrameEnded{Frames: frames}) }
func (l streamEvents) CaptureStarted(id int32) {
	l.o.emitter.Emit(CaptureStarted{CaptureID: id})
}

func (l streamEvents) FrameShutter(id int32, at time.Time) {
	l.o.emitter.Emit(FrameShutter{CaptureID: id, Timestamp: at})
}

func (l streamEvents) CaptureEnded(id int32, frames int) {
	l.o.emitter.Emit(CaptureEnded{CaptureID: id, Frames: frames})
}

func (l streamEvents) MetadataObjects(objects []MetadataObject) {
	l.o.emitter.Emit(MetadataObjectsAvailable{Objects: objects})
}

func (l streamEvents) Fault(err error) { l.o.fault(err) }
