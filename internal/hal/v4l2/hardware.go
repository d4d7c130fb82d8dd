//go:build linux

package v4l2

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/smazurov/camcore/internal/camera"
	"github.com/vladimirvivien/go4vl/device"
	vl "github.com/vladimirvivien/go4vl/v4l2"
)

var (
	errClosed        = errors.New("v4l2: device closed")
	errStreamEnded   = errors.New("v4l2: capture stream ended")
	errNotStreaming  = errors.New("v4l2: stream not started")
	errNoMetadataHAL = &camera.Error{Code: camera.CodeUnsupportedParameter, Op: "v4l2 stream", Message: "metadata streams are not supported"}
)

// hardware is an opened capture node. A single capture loop feeds every
// started stream.
type hardware struct {
	d        *Driver
	node     node
	dev      *device.Device
	pix      vl.PixFormat
	fps      uint32
	caps     camera.Capabilities
	listener camera.DeviceListener

	mu       sync.Mutex
	closed   bool
	controls camera.Controls
	streams  map[*stream]struct{}
	cancel   context.CancelFunc
	done     chan struct{}
}

func newHardware(d *Driver, n node, dev *device.Device, pix vl.PixFormat, fps uint32, listener camera.DeviceListener) *hardware {
	return &hardware{
		d:        d,
		node:     n,
		dev:      dev,
		pix:      pix,
		fps:      fps,
		caps:     capabilitiesOf(pix, fps),
		listener: listener,
		streams:  make(map[*stream]struct{}),
	}
}

// nativeFormat maps the negotiated pixel format onto a camera format.
func nativeFormat(pix vl.PixFormat) camera.Format {
	if pix.PixelFormat == vl.PixelFmtYUYV {
		return camera.FormatYUYV422
	}
	return camera.FormatJPEG
}

func capabilitiesOf(pix vl.PixFormat, fps uint32) camera.Capabilities {
	native := nativeFormat(pix)
	size := camera.Size{Width: int(pix.Width), Height: int(pix.Height)}
	sizes := []camera.FormatSizes{{Format: native, Sizes: []camera.Size{size}}}
	if native != camera.FormatJPEG {
		sizes = append(sizes, camera.FormatSizes{Format: camera.FormatJPEG, Sizes: []camera.Size{size}})
	}
	rate := float64(fps)
	return camera.Capabilities{
		PreviewFormats:     []camera.Format{native},
		PhotoFormats:       []camera.Format{camera.FormatJPEG},
		VideoFormats:       []camera.Format{native},
		Sizes:              sizes,
		FlashModes:         []camera.FlashMode{camera.FlashClose},
		ExposureModes:      []camera.ExposureMode{camera.ExposureContinuousAuto},
		FocusModes:         []camera.FocusMode{camera.FocusManual},
		StabilizationModes: []camera.StabilizationMode{camera.StabilizationOff},
		ZoomRatio:          camera.Range{Min: 1, Max: 1},
		FrameRate:          camera.Range{Min: rate, Max: rate},
		ExposureBias:       camera.Range{},
		MaxStreams:         3,
	}
}

func (hw *hardware) Capabilities() camera.Capabilities {
	return hw.caps
}

// ApplyControls records the controls without writing them to the device.
// The advertised capabilities admit only the state the node already runs
// with (zoom 1, zero exposure bias, continuous auto exposure, manual focus),
// so a validated update never needs a VIDIOC_S_CTRL. Capture points are
// stored and reported back but do not steer metering or focus.
func (hw *hardware) ApplyControls(_ context.Context, c camera.Controls) error {
	hw.mu.Lock()
	defer hw.mu.Unlock()
	if hw.closed {
		return errClosed
	}
	hw.controls = c
	return nil
}

func (hw *hardware) OpenStream(_ context.Context, cfg camera.StreamConfig, listener camera.StreamListener) (camera.Stream, error) {
	if cfg.Kind == camera.KindMetadata {
		return nil, errNoMetadataHAL
	}
	hw.mu.Lock()
	defer hw.mu.Unlock()
	if hw.closed {
		return nil, errClosed
	}
	s := newStream(hw, cfg, listener)
	hw.streams[s] = struct{}{}
	return s, nil
}

// ensureStreaming starts the capture loop on first use.
func (hw *hardware) ensureStreaming() error {
	hw.mu.Lock()
	defer hw.mu.Unlock()
	if hw.closed {
		return errClosed
	}
	if hw.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := hw.dev.Start(ctx); err != nil {
		cancel()
		return fmt.Errorf("start capture on %s: %w", hw.node.path, err)
	}
	hw.cancel = cancel
	hw.done = make(chan struct{})
	go hw.pump(ctx, hw.done)
	hw.d.logger.Debug("Capture loop started", "device_id", hw.node.device.ID)
	return nil
}

func (hw *hardware) pump(ctx context.Context, done chan struct{}) {
	defer close(done)
	out := hw.dev.GetOutput()
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-out:
			if !ok {
				if ctx.Err() == nil {
					hw.listener.Fault(&camera.Error{Code: camera.CodeUnknown, Op: "v4l2 capture", Message: hw.node.path, Cause: errStreamEnded})
				}
				return
			}
			hw.fanout(frame)
		}
	}
}

func (hw *hardware) fanout(frame []byte) {
	hw.mu.Lock()
	targets := make([]*stream, 0, len(hw.streams))
	for s := range hw.streams {
		targets = append(targets, s)
	}
	hw.mu.Unlock()

	// Buffers are reused by the capture loop.
	buf := make([]byte, len(frame))
	copy(buf, frame)
	for _, s := range targets {
		s.offer(buf)
	}
}

func (hw *hardware) forget(s *stream) {
	hw.mu.Lock()
	delete(hw.streams, s)
	hw.mu.Unlock()
}

// Close stops the capture loop, closes all streams and the device.
func (hw *hardware) Close() error {
	hw.mu.Lock()
	if hw.closed {
		hw.mu.Unlock()
		return nil
	}
	hw.closed = true
	cancel, done := hw.cancel, hw.done
	streams := make([]*stream, 0, len(hw.streams))
	for s := range hw.streams {
		streams = append(streams, s)
	}
	hw.mu.Unlock()

	for _, s := range streams {
		_ = s.Close()
	}

	var errs []error
	if cancel != nil {
		cancel()
		<-done
		if err := hw.dev.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := hw.dev.Close(); err != nil {
		errs = append(errs, err)
	}
	hw.d.closed(hw.node.device.ID)
	hw.d.logger.Info("V4L2 device closed", "device_id", hw.node.device.ID)
	return errors.Join(errs...)
}
