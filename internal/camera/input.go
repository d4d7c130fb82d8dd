package camera

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/smazurov/camcore/internal/events"
)

// Input is an exclusive handle on an opened device.
type Input struct {
	id      uuid.UUID
	device  Device
	reg     *Registry
	emitter *events.Emitter
	logger  *slog.Logger

	hw   Hardware
	caps *capabilitySet

	// ctl serialises control writes so each one reaches the hardware whole.
	ctl sync.Mutex

	mu       sync.RWMutex
	controls Controls
	released bool
	session  *Session
}

func newInput(r *Registry, d Device) *Input {
	id := uuid.New()
	return &Input{
		id:      id,
		device:  d,
		reg:     r,
		emitter: r.bus.NewEmitter("input/" + id.String()),
		logger:  r.logger.With("input_id", id.String(), "device_id", d.ID),
	}
}

func (in *Input) attach(hw Hardware) {
	caps := newCapabilitySet(hw.Capabilities())
	in.mu.Lock()
	in.hw = hw
	in.caps = caps
	in.controls = caps.defaultControls()
	in.mu.Unlock()
}

// ID returns the handle id.
func (in *Input) ID() string { return in.id.String() }

// Device returns the device this handle owns.
func (in *Input) Device() Device { return in.device }

// Subscribe registers handler for this input's notifications.
func (in *Input) Subscribe(handler func(Notification)) func() {
	return in.emitter.Subscribe(handler)
}

// Released reports whether Release has been called.
func (in *Input) Released() bool {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.released
}

func (in *Input) capabilities(op string) (*capabilitySet, error) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	if in.released {
		return nil, newError(CodeInvalidState, op, "input released")
	}
	return in.caps, nil
}

// Capabilities returns the capability set captured when the device was opened.
func (in *Input) Capabilities() (Capabilities, error) {
	cs, err := in.capabilities("capabilities")
	if err != nil {
		return Capabilities{}, err
	}
	return cs.snapshot(), nil
}

// SupportedSizes returns the frame sizes available for f.
func (in *Input) SupportedSizes(f Format) ([]Size, error) {
	cs, err := in.capabilities("supported sizes")
	if err != nil {
		return nil, err
	}
	return slices.Clone(cs.caps.SizesFor(f)), nil
}

// SupportedPreviewFormats returns the formats a preview output may use.
func (in *Input) SupportedPreviewFormats() ([]Format, error) {
	return in.formats(KindPreview)
}

// SupportedPhotoFormats returns the formats a photo output may use.
func (in *Input) SupportedPhotoFormats() ([]Format, error) {
	return in.formats(KindPhoto)
}

// SupportedVideoFormats returns the formats a video output may use.
func (in *Input) SupportedVideoFormats() ([]Format, error) {
	return in.formats(KindVideo)
}

func (in *Input) formats(kind OutputKind) ([]Format, error) {
	cs, err := in.capabilities("supported formats")
	if err != nil {
		return nil, err
	}
	return slices.Clone(cs.caps.FormatsFor(kind)), nil
}

// SupportedFlashModes returns the flash modes the device accepts.
func (in *Input) SupportedFlashModes() ([]FlashMode, error) {
	cs, err := in.capabilities("supported flash modes")
	if err != nil {
		return nil, err
	}
	return slices.Clone(cs.caps.FlashModes), nil
}

// SupportedExposureModes returns the exposure modes the device accepts.
func (in *Input) SupportedExposureModes() ([]ExposureMode, error) {
	cs, err := in.capabilities("supported exposure modes")
	if err != nil {
		return nil, err
	}
	return slices.Clone(cs.caps.ExposureModes), nil
}

// SupportedFocusModes returns the focus modes the device accepts.
func (in *Input) SupportedFocusModes() ([]FocusMode, error) {
	cs, err := in.capabilities("supported focus modes")
	if err != nil {
		return nil, err
	}
	return slices.Clone(cs.caps.FocusModes), nil
}

// ZoomRatioRange returns the inclusive range accepted by SetZoomRatio.
func (in *Input) ZoomRatioRange() (Range, error) {
	cs, err := in.capabilities("zoom ratio range")
	if err != nil {
		return Range{}, err
	}
	return cs.caps.ZoomRatio, nil
}

// FrameRateRange returns the inclusive range accepted by the frame rate setters.
func (in *Input) FrameRateRange() (Range, error) {
	cs, err := in.capabilities("frame rate range")
	if err != nil {
		return Range{}, err
	}
	return cs.caps.FrameRate, nil
}

// ExposureBiasRange returns the inclusive range accepted by SetExposureBias.
func (in *Input) ExposureBiasRange() (Range, error) {
	cs, err := in.capabilities("exposure bias range")
	if err != nil {
		return Range{}, err
	}
	return cs.caps.ExposureBias, nil
}

// IsFlashModeSupported reports whether m is one of SupportedFlashModes.
func (in *Input) IsFlashModeSupported(m FlashMode) (bool, error) {
	cs, err := in.capabilities("flash mode supported")
	if err != nil {
		return false, err
	}
	return cs.flash.has(m), nil
}

// IsExposureModeSupported reports whether m is one of SupportedExposureModes.
func (in *Input) IsExposureModeSupported(m ExposureMode) (bool, error) {
	cs, err := in.capabilities("exposure mode supported")
	if err != nil {
		return false, err
	}
	return cs.exposure.has(m), nil
}

// IsFocusModeSupported reports whether m is one of SupportedFocusModes.
func (in *Input) IsFocusModeSupported(m FocusMode) (bool, error) {
	cs, err := in.capabilities("focus mode supported")
	if err != nil {
		return false, err
	}
	return cs.focus.has(m), nil
}

// Controls returns the current control state.
func (in *Input) Controls() (Controls, error) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	if in.released {
		return Controls{}, newError(CodeInvalidState, "controls", "input released")
	}
	return in.controls, nil
}

// FlashMode returns the current flash mode.
func (in *Input) FlashMode() (FlashMode, error) {
	c, err := in.Controls()
	return c.FlashMode, err
}

// ExposureMode returns the current exposure mode.
func (in *Input) ExposureMode() (ExposureMode, error) {
	c, err := in.Controls()
	return c.ExposureMode, err
}

// ExposureBias returns the current exposure compensation in EV.
func (in *Input) ExposureBias() (float64, error) {
	c, err := in.Controls()
	return c.ExposureBias, err
}

// ExposurePoint returns the normalised metering point.
func (in *Input) ExposurePoint() (Point, error) {
	c, err := in.Controls()
	return c.ExposurePoint, err
}

// FocusMode returns the current focus mode.
func (in *Input) FocusMode() (FocusMode, error) {
	c, err := in.Controls()
	return c.FocusMode, err
}

// FocusPoint returns the normalised focus point.
func (in *Input) FocusPoint() (Point, error) {
	c, err := in.Controls()
	return c.FocusPoint, err
}

// ZoomRatio returns the current zoom ratio.
func (in *Input) ZoomRatio() (float64, error) {
	c, err := in.Controls()
	return c.ZoomRatio, err
}

// FrameRate returns the configured frame rate bounds.
func (in *Input) FrameRate() (minFPS, maxFPS float64, err error) {
	c, err := in.Controls()
	return c.MinFrameRate, c.MaxFrameRate, err
}

// SetFlashMode selects a flash mode. Modes outside SupportedFlashModes
// fail with UnsupportedParameter and leave the current mode in place.
func (in *Input) SetFlashMode(ctx context.Context, m FlashMode) error {
	return in.set(ctx, "set flash mode", func(u *ControlUpdate) { u.SetFlashMode(m) })
}

// SetExposureMode selects an exposure mode.
func (in *Input) SetExposureMode(ctx context.Context, m ExposureMode) error {
	return in.set(ctx, "set exposure mode", func(u *ControlUpdate) { u.SetExposureMode(m) })
}

// SetExposureBias sets the exposure compensation; it must lie within
// ExposureBiasRange.
func (in *Input) SetExposureBias(ctx context.Context, v float64) error {
	return in.set(ctx, "set exposure bias", func(u *ControlUpdate) { u.SetExposureBias(v) })
}

// SetExposurePoint sets the metering point in normalised coordinates.
func (in *Input) SetExposurePoint(ctx context.Context, p Point) error {
	return in.set(ctx, "set exposure point", func(u *ControlUpdate) { u.SetExposurePoint(p) })
}

// SetFocusMode selects a focus mode.
func (in *Input) SetFocusMode(ctx context.Context, m FocusMode) error {
	return in.set(ctx, "set focus mode", func(u *ControlUpdate) { u.SetFocusMode(m) })
}

// SetFocusPoint sets the focus point in normalised coordinates.
func (in *Input) SetFocusPoint(ctx context.Context, p Point) error {
	return in.set(ctx, "set focus point", func(u *ControlUpdate) { u.SetFocusPoint(p) })
}

// SetZoomRatio sets the zoom ratio. Values outside ZoomRatioRange are
// rejected, not clamped.
func (in *Input) SetZoomRatio(ctx context.Context, r float64) error {
	return in.set(ctx, "set zoom ratio", func(u *ControlUpdate) { u.SetZoomRatio(r) })
}

// SetMinFrameRate sets the lower frame rate bound.
func (in *Input) SetMinFrameRate(ctx context.Context, fps float64) error {
	return in.set(ctx, "set min frame rate", func(u *ControlUpdate) { u.SetMinFrameRate(fps) })
}

// SetMaxFrameRate sets the upper frame rate bound.
func (in *Input) SetMaxFrameRate(ctx context.Context, fps float64) error {
	return in.set(ctx, "set max frame rate", func(u *ControlUpdate) { u.SetMaxFrameRate(fps) })
}

func (in *Input) set(ctx context.Context, op string, fn func(*ControlUpdate)) error {
	return in.apply(ctx, op, func(u *ControlUpdate, _ Controls) error {
		fn(u)
		return nil
	})
}

// Update applies several control changes as one all-or-nothing step.
// Nothing is applied if fn returns an error or any change is unsupported.
func (in *Input) Update(ctx context.Context, fn func(*ControlUpdate) error) error {
	return in.apply(ctx, "update controls", func(u *ControlUpdate, _ Controls) error {
		return fn(u)
	})
}

// ApplyControls replaces the control state with c. Only fields that differ
// from the current state are validated.
func (in *Input) ApplyControls(ctx context.Context, c Controls) error {
	return in.apply(ctx, "apply controls", func(u *ControlUpdate, prev Controls) error {
		u.setAll(prev, c)
		return nil
	})
}

func (in *Input) apply(ctx context.Context, op string, fn func(*ControlUpdate, Controls) error) error {
	in.ctl.Lock()
	defer in.ctl.Unlock()

	in.mu.RLock()
	released, cur, cs, hw := in.released, in.controls, in.caps, in.hw
	in.mu.RUnlock()
	if released {
		return newError(CodeInvalidState, op, "input released")
	}

	u := &ControlUpdate{next: cur}
	if err := fn(u, cur); err != nil {
		return &Error{Code: CodeOf(err), Op: op, Cause: err}
	}
	if err := cs.validate(u); err != nil {
		return &Error{Code: CodeUnsupportedParameter, Op: op, Message: err.Error()}
	}
	if u.touched == 0 {
		return nil
	}
	if err := hw.ApplyControls(ctx, u.next); err != nil {
		// Release may have closed the hardware under us
		if in.Released() {
			return newError(CodeInvalidState, op, "input released during update")
		}
		return wrapError(CodeUnknown, op, err)
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	if in.released {
		return newError(CodeInvalidState, op, "input released during update")
	}
	in.controls = u.next
	in.logger.Debug("Controls applied", "op", op, "controls", u.next)
	return nil
}

// Release closes the device and gives up ownership. A second call fails.
func (in *Input) Release(_ context.Context) error {
	in.mu.Lock()
	if in.released {
		in.mu.Unlock()
		return newError(CodeInvalidState, "release input", "input already released")
	}
	in.released = true
	hw := in.hw
	in.mu.Unlock()

	var err error
	if hw != nil {
		err = hw.Close()
	}
	in.reg.release(in)
	if err != nil {
		in.logger.Warn("Failed to close device", "error", err)
	}
	return nil
}

// bindSession attaches the input to s.
func (in *Input) bindSession(s *Session) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.released {
		return newError(CodeInvalidState, "add input", "input released")
	}
	if in.session != nil {
		return newError(CodeInputInUse, "add input", "input %s already attached to session %s", in.ID(), in.session.ID())
	}
	in.session = s
	return nil
}

func (in *Input) unbindSession(s *Session) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.session == s {
		in.session = nil
	}
}

func (in *Input) boundSession() *Session {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.session
}

func (in *Input) hardware() (Hardware, *capabilitySet, error) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	if in.released {
		return nil, nil, newError(CodeNotAttached, "", "input %s released", in.ID())
	}
	return in.hw, in.caps, nil
}

// fault publishes an asynchronous error on the input and its session.
func (in *Input) fault(err error) {
	f := newFault(in.ID(), err)
	in.logger.Warn("Device fault", "code", f.Code, "error", err)
	in.emitter.Emit(f)
	if s := in.boundSession(); s != nil {
		s.emitter.Emit(f)
	}
}

// inputListener adapts hardware callbacks to input events.
type inputListener struct{ in *Input }

func (l inputListener) FocusStateChanged(state FocusState) {
	l.in.emitter.Emit(FocusStateChanged{State: state})
}

func (l inputListener) ExposureStateChanged(state ExposureState) {
	l.in.emitter.Emit(ExposureStateChanged{State: state})
}

func (l inputListener) Fault(err error) {
	l.in.fault(err)
}
