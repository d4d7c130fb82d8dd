//go:build linux

package v4l2

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/smazurov/camcore/internal/camera"
)

// stream is one consumer of the device capture loop.
type stream struct {
	hw       *hardware
	cfg      camera.StreamConfig
	listener camera.StreamListener

	// emitMu keeps listener callbacks sequential.
	emitMu sync.Mutex
	// captureMu serializes photo captures.
	captureMu sync.Mutex

	mu      sync.Mutex
	closed  bool
	running bool
	paused  bool
	file    *os.File
	waiters []chan []byte

	frames chan []byte
	quit   chan struct{}
	done   chan struct{}
	count  int
}

func newStream(hw *hardware, cfg camera.StreamConfig, listener camera.StreamListener) *stream {
	s := &stream{
		hw:       hw,
		cfg:      cfg,
		listener: listener,
		frames:   make(chan []byte, 2),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go s.deliver()
	return s
}

func (s *stream) emit(fn func(camera.StreamListener)) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	fn(s.listener)
}

// offer hands a frame to the stream without blocking the capture loop.
func (s *stream) offer(frame []byte) {
	s.mu.Lock()
	if s.closed || !s.running {
		s.mu.Unlock()
		return
	}
	for _, w := range s.waiters {
		w <- frame
	}
	s.waiters = nil
	continuous := s.cfg.Kind != camera.KindPhoto
	s.mu.Unlock()

	if !continuous {
		return
	}
	select {
	case s.frames <- frame:
	default:
		// consumer behind, drop
	}
}

func (s *stream) deliver() {
	defer close(s.done)
	for {
		select {
		case <-s.quit:
			return
		case frame := <-s.frames:
			s.handleFrame(frame)
		}
	}
}

func (s *stream) handleFrame(frame []byte) {
	s.mu.Lock()
	if !s.running || s.paused {
		s.mu.Unlock()
		return
	}
	file := s.file
	s.count++
	n := s.count
	s.mu.Unlock()

	s.emit(func(l camera.StreamListener) { l.FrameStarted() })
	if file != nil {
		if _, err := file.Write(frame); err != nil {
			s.emit(func(l camera.StreamListener) {
				l.Fault(&camera.Error{Code: camera.CodeUnknown, Op: "v4l2 record", Message: file.Name(), Cause: err})
			})
		}
	}
	s.emit(func(l camera.StreamListener) { l.FrameEnded(n) })
}

func (s *stream) Start(_ context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errClosed
	}
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if err := s.hw.ensureStreaming(); err != nil {
		return err
	}

	var file *os.File
	if s.cfg.Kind == camera.KindVideo && s.cfg.SurfaceID != "" {
		f, err := os.OpenFile(s.cfg.SurfaceID, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open recording file: %w", err)
		}
		file = f
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		if file != nil {
			_ = file.Close()
		}
		return errClosed
	}
	s.running = true
	s.paused = false
	s.file = file
	return nil
}

func (s *stream) Stop(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked()
}

func (s *stream) stopLocked() error {
	s.running = false
	s.paused = false
	for _, w := range s.waiters {
		close(w)
	}
	s.waiters = nil
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func (s *stream) Pause(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return errNotStreaming
	}
	s.paused = true
	return nil
}

func (s *stream) Resume(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return errNotStreaming
	}
	s.paused = false
	return nil
}

func (s *stream) SetMetadataTypes(_ context.Context, _ []camera.MetadataObjectType) error {
	return errNoMetadataHAL
}

// Capture waits for the next frame, encodes it as JPEG and writes it to the
// surface path. A "{id}" in the path is replaced by the capture id.
func (s *stream) Capture(ctx context.Context, id int32, settings camera.PhotoSettings) (camera.CaptureResult, error) {
	s.captureMu.Lock()
	defer s.captureMu.Unlock()

	waiter := make(chan []byte, 1)
	s.mu.Lock()
	if s.closed || !s.running {
		s.mu.Unlock()
		return camera.CaptureResult{}, errNotStreaming
	}
	s.waiters = append(s.waiters, waiter)
	s.mu.Unlock()

	s.emit(func(l camera.StreamListener) { l.CaptureStarted(id) })

	var frame []byte
	select {
	case <-ctx.Done():
		s.dropWaiter(waiter)
		return camera.CaptureResult{}, ctx.Err()
	case f, ok := <-waiter:
		if !ok {
			return camera.CaptureResult{}, errNotStreaming
		}
		frame = f
	}

	shutter := time.Now()
	s.emit(func(l camera.StreamListener) { l.FrameShutter(id, shutter) })

	data, err := encodeJPEG(frame, s.hw.pix, settings)
	if err != nil {
		return camera.CaptureResult{}, err
	}

	path := photoPath(s.cfg.SurfaceID, id)
	if path != "" {
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return camera.CaptureResult{}, fmt.Errorf("write photo: %w", err)
		}
	}

	s.emit(func(l camera.StreamListener) { l.CaptureEnded(id, 1) })
	return camera.CaptureResult{CaptureID: id, Frames: 1, ShutterTime: shutter, Path: path}, nil
}

func (s *stream) dropWaiter(w chan []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, cur := range s.waiters {
		if cur == w {
			s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
			return
		}
	}
}

func (s *stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	err := s.stopLocked()
	s.mu.Unlock()

	close(s.quit)
	<-s.done
	s.hw.forget(s)
	return err
}
