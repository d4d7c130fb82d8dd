package sim

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/smazurov/camcore/internal/camera"
)

var errNotStarted = errors.New("sim: stream not started")

// stream produces frames for one output.
type stream struct {
	hw       *hardware
	cfg      camera.StreamConfig
	listener camera.StreamListener

	// emitMu keeps listener callbacks sequential.
	emitMu sync.Mutex
	// captureMu serialises captures.
	captureMu sync.Mutex

	mu      sync.Mutex
	closed  bool
	running bool
	paused  bool
	types   []camera.MetadataObjectType
	frames  int
	cancel  context.CancelFunc
	done    chan struct{}
}

func newStream(hw *hardware, cfg camera.StreamConfig, listener camera.StreamListener) *stream {
	return &stream{
		hw:       hw,
		cfg:      cfg,
		listener: listener,
		types:    slices.Clone(cfg.MetadataTypes),
	}
}

func (s *stream) Start(_ context.Context) error {
	if err := s.hw.d.startFailure(s.cfg.Kind); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	if s.running {
		return nil
	}
	s.running, s.paused = true, false
	if s.cfg.Kind == camera.KindPhoto {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.produce(ctx, s.done)
	return nil
}

func (s *stream) Stop(_ context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running, s.paused = false, false
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	return nil
}

func (s *stream) Pause(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return errNotStarted
	}
	s.paused = true
	return nil
}

func (s *stream) Resume(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return errNotStarted
	}
	s.paused = false
	return nil
}

func (s *stream) SetMetadataTypes(_ context.Context, types []camera.MetadataObjectType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	s.types = slices.Clone(types)
	return nil
}

func (s *stream) Close() error {
	_ = s.Stop(context.Background())
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.hw.forget(s)
	return nil
}

func (s *stream) emit(fn func(camera.StreamListener)) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	fn(s.listener)
}

func (s *stream) fault(err error) {
	s.emit(func(l camera.StreamListener) { l.Fault(err) })
}

// produce emits one frame, or one metadata result, per frame interval.
func (s *stream) produce(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.hw.d.timing.FrameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.mu.Lock()
			paused := s.paused
			types := s.types
			if !paused {
				s.frames++
			}
			frames := s.frames
			s.mu.Unlock()
			if paused {
				continue
			}

			switch s.cfg.Kind {
			case camera.KindMetadata:
				objects := detect(types, frames, now)
				s.emit(func(l camera.StreamListener) { l.MetadataObjects(objects) })
			default:
				s.emit(func(l camera.StreamListener) { l.FrameStarted() })
				s.emit(func(l camera.StreamListener) { l.FrameEnded(frames) })
			}
		}
	}
}

// detect fabricates a face drifting slowly across the frame.
func detect(types []camera.MetadataObjectType, frame int, at time.Time) []camera.MetadataObject {
	if !slices.Contains(types, camera.MetadataFace) {
		return []camera.MetadataObject{}
	}
	x := float64(frame%50) / 100
	return []camera.MetadataObject{{
		Type:        camera.MetadataFace,
		Timestamp:   at,
		BoundingBox: camera.Rect{X: x, Y: 0.3, Width: 0.2, Height: 0.25},
	}}
}

func (s *stream) Capture(ctx context.Context, id int32, _ camera.PhotoSettings) (camera.CaptureResult, error) {
	if s.cfg.Kind != camera.KindPhoto {
		return camera.CaptureResult{}, fmt.Errorf("sim: capture on %s stream", s.cfg.Kind)
	}
	s.captureMu.Lock()
	defer s.captureMu.Unlock()

	s.mu.Lock()
	running, closed := s.running, s.closed
	s.mu.Unlock()
	if closed {
		return camera.CaptureResult{}, errClosed
	}
	if !running {
		return camera.CaptureResult{}, errNotStarted
	}

	delay := s.hw.d.timing.ShutterDelay
	s.emit(func(l camera.StreamListener) { l.CaptureStarted(id) })
	if !sleep(ctx, delay) {
		return camera.CaptureResult{}, ctx.Err()
	}
	shutter := time.Now()
	s.emit(func(l camera.StreamListener) { l.FrameShutter(id, shutter) })
	if !sleep(ctx, delay) {
		return camera.CaptureResult{}, ctx.Err()
	}
	s.emit(func(l camera.StreamListener) { l.CaptureEnded(id, 1) })
	return camera.CaptureResult{CaptureID: id, Frames: 1, ShutterTime: shutter}, nil
}
