package sim

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/smazurov/camcore/internal/camera"
)

var errClosed = errors.New("sim: device closed")

// hardware is an opened simulated camera.
type hardware struct {
	d        *Driver
	profile  Profile
	listener camera.DeviceListener

	// emitMu keeps listener callbacks sequential.
	emitMu sync.Mutex

	mu           sync.Mutex
	closed       bool
	controls     camera.Controls
	streams      map[*stream]struct{}
	stopFocus    context.CancelFunc
	stopExposure context.CancelFunc
	loops        sync.WaitGroup
}

func newHardware(d *Driver, p Profile, listener camera.DeviceListener) *hardware {
	hw := &hardware{
		d:        d,
		profile:  p,
		listener: listener,
		streams:  make(map[*stream]struct{}),
	}
	var c camera.Controls
	if modes := p.Capabilities.FocusModes; len(modes) > 0 {
		c.FocusMode = modes[0]
	}
	if modes := p.Capabilities.ExposureModes; len(modes) > 0 {
		c.ExposureMode = modes[0]
	}
	hw.mu.Lock()
	hw.controls = c
	hw.restartFocusLocked(c.FocusMode)
	hw.restartExposureLocked(c.ExposureMode)
	hw.mu.Unlock()
	return hw
}

func (hw *hardware) emit(fn func(camera.DeviceListener)) {
	hw.emitMu.Lock()
	defer hw.emitMu.Unlock()
	fn(hw.listener)
}

func (hw *hardware) Capabilities() camera.Capabilities {
	return hw.profile.Capabilities
}

func (hw *hardware) ApplyControls(ctx context.Context, c camera.Controls) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	hw.mu.Lock()
	defer hw.mu.Unlock()
	if hw.closed {
		return errClosed
	}
	prev := hw.controls
	hw.controls = c
	if c.FocusMode != prev.FocusMode {
		hw.restartFocusLocked(c.FocusMode)
	}
	if c.ExposureMode != prev.ExposureMode {
		hw.restartExposureLocked(c.ExposureMode)
	}
	return nil
}

// restartFocusLocked replaces the auto-focus loop for mode.
func (hw *hardware) restartFocusLocked(mode camera.FocusMode) {
	if hw.stopFocus != nil {
		hw.stopFocus()
		hw.stopFocus = nil
	}
	if mode != camera.FocusContinuousAuto && mode != camera.FocusAuto {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	hw.stopFocus = cancel
	hw.loops.Add(1)
	go func() {
		defer hw.loops.Done()
		hw.focusLoop(ctx, mode == camera.FocusContinuousAuto)
	}()
}

func (hw *hardware) restartExposureLocked(mode camera.ExposureMode) {
	if hw.stopExposure != nil {
		hw.stopExposure()
		hw.stopExposure = nil
	}
	if mode != camera.ExposureContinuousAuto {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	hw.stopExposure = cancel
	hw.loops.Add(1)
	go func() {
		defer hw.loops.Done()
		hw.exposureLoop(ctx)
	}()
}

// focusLoop scans and settles. In continuous mode it rescans every few
// convergence periods, alternating between a focused and an unfocused result
// now and then like a real scene change would.
func (hw *hardware) focusLoop(ctx context.Context, continuous bool) {
	delay := hw.d.timing.ConvergeDelay
	for cycle := 0; ; cycle++ {
		hw.emitUnlessDone(ctx, func(l camera.DeviceListener) { l.FocusStateChanged(camera.FocusScan) })
		if !sleep(ctx, delay) {
			return
		}
		result := camera.FocusFocused
		if cycle%4 == 3 {
			result = camera.FocusUnfocused
		}
		hw.emitUnlessDone(ctx, func(l camera.DeviceListener) { l.FocusStateChanged(result) })
		if !continuous || !sleep(ctx, 3*delay) {
			return
		}
	}
}

func (hw *hardware) exposureLoop(ctx context.Context) {
	delay := hw.d.timing.ConvergeDelay
	for {
		hw.emitUnlessDone(ctx, func(l camera.DeviceListener) { l.ExposureStateChanged(camera.ExposureScan) })
		if !sleep(ctx, delay) {
			return
		}
		hw.emitUnlessDone(ctx, func(l camera.DeviceListener) { l.ExposureStateChanged(camera.ExposureConverged) })
		if !sleep(ctx, 5*delay) {
			return
		}
	}
}

func (hw *hardware) emitUnlessDone(ctx context.Context, fn func(camera.DeviceListener)) {
	hw.emitMu.Lock()
	defer hw.emitMu.Unlock()
	if ctx.Err() != nil {
		return
	}
	fn(hw.listener)
}

func (hw *hardware) OpenStream(ctx context.Context, cfg camera.StreamConfig, listener camera.StreamListener) (camera.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
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

func (hw *hardware) streamsOf(kind camera.OutputKind) []*stream {
	hw.mu.Lock()
	defer hw.mu.Unlock()
	var out []*stream
	for s := range hw.streams {
		if s.cfg.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}

func (hw *hardware) forget(s *stream) {
	hw.mu.Lock()
	defer hw.mu.Unlock()
	delete(hw.streams, s)
}

func (hw *hardware) Close() error {
	hw.mu.Lock()
	if hw.closed {
		hw.mu.Unlock()
		return nil
	}
	hw.closed = true
	if hw.stopFocus != nil {
		hw.stopFocus()
	}
	if hw.stopExposure != nil {
		hw.stopExposure()
	}
	streams := make([]*stream, 0, len(hw.streams))
	for s := range hw.streams {
		streams = append(streams, s)
	}
	hw.mu.Unlock()

	for _, s := range streams {
		_ = s.Close()
	}
	hw.loops.Wait()
	hw.d.closed(hw)
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
