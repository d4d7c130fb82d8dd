package pipelines

import "github.com/smazurov/camcore/internal/camera"

// ControlsPatch is a partial control update. Nil fields are left unchanged.
type ControlsPatch struct {
	FlashMode     *camera.FlashMode    `json:"flash_mode,omitempty" toml:"flash_mode,omitempty"`
	ExposureMode  *camera.ExposureMode `json:"exposure_mode,omitempty" toml:"exposure_mode,omitempty"`
	ExposureBias  *float64             `json:"exposure_bias,omitempty" toml:"exposure_bias,omitempty"`
	ExposurePoint *camera.Point        `json:"exposure_point,omitempty" toml:"exposure_point,omitempty"`
	FocusMode     *camera.FocusMode    `json:"focus_mode,omitempty" toml:"focus_mode,omitempty"`
	FocusPoint    *camera.Point        `json:"focus_point,omitempty" toml:"focus_point,omitempty"`
	ZoomRatio     *float64             `json:"zoom_ratio,omitempty" toml:"zoom_ratio,omitempty"`
	MinFrameRate  *float64             `json:"min_frame_rate,omitempty" toml:"min_frame_rate,omitempty"`
	MaxFrameRate  *float64             `json:"max_frame_rate,omitempty" toml:"max_frame_rate,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p ControlsPatch) Empty() bool {
	return p == ControlsPatch{}
}

func (p ControlsPatch) apply(u *camera.ControlUpdate) {
	if p.FlashMode != nil {
		u.SetFlashMode(*p.FlashMode)
	}
	if p.ExposureMode != nil {
		u.SetExposureMode(*p.ExposureMode)
	}
	if p.ExposureBias != nil {
		u.SetExposureBias(*p.ExposureBias)
	}
	if p.ExposurePoint != nil {
		u.SetExposurePoint(*p.ExposurePoint)
	}
	if p.FocusMode != nil {
		u.SetFocusMode(*p.FocusMode)
	}
	if p.FocusPoint != nil {
		u.SetFocusPoint(*p.FocusPoint)
	}
	if p.ZoomRatio != nil {
		u.SetZoomRatio(*p.ZoomRatio)
	}
	if p.MinFrameRate != nil {
		u.SetMinFrameRate(*p.MinFrameRate)
	}
	if p.MaxFrameRate != nil {
		u.SetMaxFrameRate(*p.MaxFrameRate)
	}
}
