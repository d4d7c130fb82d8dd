package camera

import "fmt"

// Controls is the full control state of an input. It doubles as the
// serialised settings format for presets.
type Controls struct {
	FlashMode     FlashMode    `json:"flash_mode" toml:"flash_mode"`
	ExposureMode  ExposureMode `json:"exposure_mode" toml:"exposure_mode"`
	ExposureBias  float64      `json:"exposure_bias" toml:"exposure_bias"`
	ExposurePoint Point        `json:"exposure_point" toml:"exposure_point"`
	FocusMode     FocusMode    `json:"focus_mode" toml:"focus_mode"`
	FocusPoint    Point        `json:"focus_point" toml:"focus_point"`
	ZoomRatio     float64      `json:"zoom_ratio" toml:"zoom_ratio"`
	MinFrameRate  float64      `json:"min_frame_rate" toml:"min_frame_rate"`
	MaxFrameRate  float64      `json:"max_frame_rate" toml:"max_frame_rate"`
}

type controlField uint16

const (
	fieldFlash controlField = 1 << iota
	fieldExposureMode
	fieldExposureBias
	fieldExposurePoint
	fieldFocusMode
	fieldFocusPoint
	fieldZoom
	fieldMinFrameRate
	fieldMaxFrameRate
)

// ControlUpdate collects control changes applied together by Input.Update.
type ControlUpdate struct {
	next    Controls
	touched controlField
}

// Current returns the control state including changes made so far.
func (u *ControlUpdate) Current() Controls { return u.next }

func (u *ControlUpdate) SetFlashMode(m FlashMode) {
	u.next.FlashMode = m
	u.touched |= fieldFlash
}

func (u *ControlUpdate) SetExposureMode(m ExposureMode) {
	u.next.ExposureMode = m
	u.touched |= fieldExposureMode
}

func (u *ControlUpdate) SetExposureBias(v float64) {
	u.next.ExposureBias = v
	u.touched |= fieldExposureBias
}

func (u *ControlUpdate) SetExposurePoint(p Point) {
	u.next.ExposurePoint = p
	u.touched |= fieldExposurePoint
}

func (u *ControlUpdate) SetFocusMode(m FocusMode) {
	u.next.FocusMode = m
	u.touched |= fieldFocusMode
}

func (u *ControlUpdate) SetFocusPoint(p Point) {
	u.next.FocusPoint = p
	u.touched |= fieldFocusPoint
}

func (u *ControlUpdate) SetZoomRatio(r float64) {
	u.next.ZoomRatio = r
	u.touched |= fieldZoom
}

func (u *ControlUpdate) SetMinFrameRate(fps float64) {
	u.next.MinFrameRate = fps
	u.touched |= fieldMinFrameRate
}

func (u *ControlUpdate) SetMaxFrameRate(fps float64) {
	u.next.MaxFrameRate = fps
	u.touched |= fieldMaxFrameRate
}

// setAll marks every field that differs from prev as touched.
func (u *ControlUpdate) setAll(prev, c Controls) {
	u.next = c
	if c.FlashMode != prev.FlashMode {
		u.touched |= fieldFlash
	}
	if c.ExposureMode != prev.ExposureMode {
		u.touched |= fieldExposureMode
	}
	if c.ExposureBias != prev.ExposureBias {
		u.touched |= fieldExposureBias
	}
	if c.ExposurePoint != prev.ExposurePoint {
		u.touched |= fieldExposurePoint
	}
	if c.FocusMode != prev.FocusMode {
		u.touched |= fieldFocusMode
	}
	if c.FocusPoint != prev.FocusPoint {
		u.touched |= fieldFocusPoint
	}
	if c.ZoomRatio != prev.ZoomRatio {
		u.touched |= fieldZoom
	}
	if c.MinFrameRate != prev.MinFrameRate {
		u.touched |= fieldMinFrameRate
	}
	if c.MaxFrameRate != prev.MaxFrameRate {
		u.touched |= fieldMaxFrameRate
	}
}

// validate checks every touched field against the capability set.
func (cs *capabilitySet) validate(u *ControlUpdate) error {
	c, t := u.next, u.touched
	switch {
	case t&fieldFlash != 0 && !cs.flash.has(c.FlashMode):
		return fmt.Errorf("flash mode %s not supported", c.FlashMode)
	case t&fieldExposureMode != 0 && !cs.exposure.has(c.ExposureMode):
		return fmt.Errorf("exposure mode %s not supported", c.ExposureMode)
	case t&fieldExposureBias != 0 && !cs.caps.ExposureBias.Contains(c.ExposureBias):
		return fmt.Errorf("exposure bias %g outside [%g, %g]", c.ExposureBias, cs.caps.ExposureBias.Min, cs.caps.ExposureBias.Max)
	case t&fieldExposurePoint != 0 && !c.ExposurePoint.Valid():
		return fmt.Errorf("exposure point %+v outside the frame", c.ExposurePoint)
	case t&fieldFocusMode != 0 && !cs.focus.has(c.FocusMode):
		return fmt.Errorf("focus mode %s not supported", c.FocusMode)
	case t&fieldFocusPoint != 0 && !c.FocusPoint.Valid():
		return fmt.Errorf("focus point %+v outside the frame", c.FocusPoint)
	case t&fieldZoom != 0 && !cs.caps.ZoomRatio.Contains(c.ZoomRatio):
		return fmt.Errorf("zoom ratio %g outside [%g, %g]", c.ZoomRatio, cs.caps.ZoomRatio.Min, cs.caps.ZoomRatio.Max)
	case t&fieldMinFrameRate != 0 && !cs.caps.FrameRate.Contains(c.MinFrameRate):
		return fmt.Errorf("min frame rate %g outside [%g, %g]", c.MinFrameRate, cs.caps.FrameRate.Min, cs.caps.FrameRate.Max)
	case t&fieldMaxFrameRate != 0 && !cs.caps.FrameRate.Contains(c.MaxFrameRate):
		return fmt.Errorf("max frame rate %g outside [%g, %g]", c.MaxFrameRate, cs.caps.FrameRate.Min, cs.caps.FrameRate.Max)
	case t&(fieldMinFrameRate|fieldMaxFrameRate) != 0 && c.MinFrameRate > c.MaxFrameRate:
		return fmt.Errorf("min frame rate %g above max %g", c.MinFrameRate, c.MaxFrameRate)
	}
	return nil
}
