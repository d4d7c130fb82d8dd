package camera

import (
	"context"
	"errors"
	"sync"
)

// PhotoOutput captures still images. Concurrent captures are queued and run
// one at a time in call order.
type PhotoOutput struct {
	*output

	qmu     sync.Mutex
	pending []*captureRequest
	wake    chan struct{}

	closing context.Context
	cancel  context.CancelFunc
}

type captureRequest struct {
	ctx      context.Context
	id       int32
	settings PhotoSettings
	done     chan captureOutcome
}

type captureOutcome struct {
	result CaptureResult
	err    error
}

// NewPhotoOutput creates a photo output writing to surfaceID.
func (r *Registry) NewPhotoOutput(surfaceID string, opts ...OutputOption) *PhotoOutput {
	closing, cancel := context.WithCancel(context.Background())
	p := &PhotoOutput{
		output:  newOutput(r, KindPhoto, surfaceID, opts),
		wake:    make(chan struct{}, 1),
		closing: closing,
		cancel:  cancel,
	}
	go p.run()
	return p
}

// IsMirrorSupported reports whether the attached input can mirror photos.
func (p *PhotoOutput) IsMirrorSupported() (bool, error) {
	in, err := p.boundInput("mirror supported")
	if err != nil {
		return false, err
	}
	cs, err := in.capabilities("mirror supported")
	if err != nil {
		return false, err
	}
	return cs.caps.Mirror, nil
}

// Capture takes one photo and blocks until its CaptureEnded event has been
// published. A nil settings uses the defaults.
func (p *PhotoOutput) Capture(ctx context.Context, settings *PhotoSettings) (CaptureResult, error) {
	var s PhotoSettings
	if settings != nil {
		s = *settings
	}
	if err := p.validate(s); err != nil {
		return CaptureResult{}, err
	}
	if _, err := p.liveStream("capture"); err != nil {
		return CaptureResult{}, err
	}

	req := &captureRequest{ctx: ctx, settings: s, done: make(chan captureOutcome, 1)}
	p.qmu.Lock()
	if p.closing.Err() != nil {
		p.qmu.Unlock()
		return CaptureResult{}, newError(CodeInvalidState, "capture", "photo output released")
	}
	req.id = p.reg.nextCaptureID()
	p.pending = append(p.pending, req)
	p.qmu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}

	select {
	case out := <-req.done:
		return out.result, out.err
	case <-ctx.Done():
		return CaptureResult{}, ctx.Err()
	}
}

func (p *PhotoOutput) validate(s PhotoSettings) error {
	if !s.Rotation.Valid() {
		return newError(CodeUnsupportedParameter, "capture", "rotation %d is not a right angle", s.Rotation)
	}
	if s.Quality < QualityHigh || s.Quality > QualityLow {
		return newError(CodeUnsupportedParameter, "capture", "unknown quality %d", s.Quality)
	}
	if s.Location != nil {
		if s.Location.Latitude < -90 || s.Location.Latitude > 90 || s.Location.Longitude < -180 || s.Location.Longitude > 180 {
			return newError(CodeUnsupportedParameter, "capture", "location %+v out of range", *s.Location)
		}
	}
	if s.Mirror {
		ok, err := p.IsMirrorSupported()
		if err != nil {
			return err
		}
		if !ok {
			return newError(CodeUnsupportedParameter, "capture", "mirror not supported")
		}
	}
	return nil
}

func (p *PhotoOutput) next() *captureRequest {
	p.qmu.Lock()
	defer p.qmu.Unlock()
	if len(p.pending) == 0 {
		return nil
	}
	req := p.pending[0]
	p.pending = p.pending[1:]
	return req
}

func (p *PhotoOutput) run() {
	for {
		req := p.next()
		if req == nil {
			select {
			case <-p.wake:
				continue
			case <-p.closing.Done():
				p.failPending()
				return
			}
		}
		result, err := p.capture(req)
		req.done <- captureOutcome{result: result, err: err}
	}
}

func (p *PhotoOutput) capture(req *captureRequest) (CaptureResult, error) {
	if err := req.ctx.Err(); err != nil {
		return CaptureResult{}, err
	}
	stream, err := p.liveStream("capture")
	if err != nil {
		return CaptureResult{}, err
	}

	ctx, cancel := context.WithCancel(req.ctx)
	defer cancel()
	stop := context.AfterFunc(p.closing, cancel)
	defer stop()

	result, err := stream.Capture(ctx, req.id, req.settings)
	if err != nil {
		if p.closing.Err() != nil {
			return CaptureResult{}, newError(CodeInvalidState, "capture", "photo output released during capture %d", req.id)
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return CaptureResult{}, err
		}
		return CaptureResult{}, p.streamError("capture", CodeUnknown, err)
	}
	result.CaptureID = req.id
	return result, nil
}

func (p *PhotoOutput) failPending() {
	p.qmu.Lock()
	pending := p.pending
	p.pending = nil
	p.qmu.Unlock()
	for _, req := range pending {
		req.done <- captureOutcome{err: newError(CodeInvalidState, "capture", "photo output released before capture %d", req.id)}
	}
}

// Release releases the output. Pending and in-flight captures fail with InvalidState.
func (p *PhotoOutput) Release(_ context.Context) error {
	p.qmu.Lock()
	p.cancel()
	p.qmu.Unlock()
	return p.release()
}

func (p *PhotoOutput) pipelineStart(ctx context.Context) error { return p.startStream(ctx) }
func (p *PhotoOutput) pipelineStop(ctx context.Context) error  { return p.stopStream(ctx) }
