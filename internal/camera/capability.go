package camera

import (
	"fmt"
	"slices"
)

// FormatSizes lists the frame sizes a device produces for one format.
type FormatSizes struct {
	Format Format `json:"format" toml:"format"`
	Sizes  []Size `json:"sizes" toml:"sizes"`
}

// Capabilities is the static capability set of a device.
type Capabilities struct {
	PreviewFormats     []Format             `json:"preview_formats" toml:"preview_formats"`
	PhotoFormats       []Format             `json:"photo_formats" toml:"photo_formats"`
	VideoFormats       []Format             `json:"video_formats" toml:"video_formats"`
	Sizes              []FormatSizes        `json:"sizes" toml:"sizes"`
	FlashModes         []FlashMode          `json:"flash_modes" toml:"flash_modes"`
	ExposureModes      []ExposureMode       `json:"exposure_modes" toml:"exposure_modes"`
	FocusModes         []FocusMode          `json:"focus_modes" toml:"focus_modes"`
	StabilizationModes []StabilizationMode  `json:"stabilization_modes" toml:"stabilization_modes"`
	MetadataTypes      []MetadataObjectType `json:"metadata_types" toml:"metadata_types"`
	ZoomRatio          Range                `json:"zoom_ratio" toml:"zoom_ratio"`
	FrameRate          Range                `json:"frame_rate" toml:"frame_rate"`
	ExposureBias       Range                `json:"exposure_bias" toml:"exposure_bias"`
	Mirror             bool                 `json:"mirror" toml:"mirror"`
	// MaxStreams caps concurrent preview, photo and video streams. Zero means no cap.
	MaxStreams int `json:"max_streams" toml:"max_streams"`
}

// SizesFor returns the sizes listed for f.
func (c Capabilities) SizesFor(f Format) []Size {
	for _, fs := range c.Sizes {
		if fs.Format == f {
			return fs.Sizes
		}
	}
	return nil
}

// FormatsFor returns the formats a stream of the given kind may use.
func (c Capabilities) FormatsFor(kind OutputKind) []Format {
	switch kind {
	case KindPreview:
		return c.PreviewFormats
	case KindPhoto:
		return c.PhotoFormats
	case KindVideo:
		return c.VideoFormats
	}
	return nil
}

func (c Capabilities) clone() Capabilities {
	out := c
	out.PreviewFormats = slices.Clone(c.PreviewFormats)
	out.PhotoFormats = slices.Clone(c.PhotoFormats)
	out.VideoFormats = slices.Clone(c.VideoFormats)
	out.Sizes = make([]FormatSizes, len(c.Sizes))
	for i, fs := range c.Sizes {
		out.Sizes[i] = FormatSizes{Format: fs.Format, Sizes: slices.Clone(fs.Sizes)}
	}
	out.FlashModes = slices.Clone(c.FlashModes)
	out.ExposureModes = slices.Clone(c.ExposureModes)
	out.FocusModes = slices.Clone(c.FocusModes)
	out.StabilizationModes = slices.Clone(c.StabilizationModes)
	out.MetadataTypes = slices.Clone(c.MetadataTypes)
	return out
}

type set[T comparable] map[T]struct{}

func newSet[T comparable](items []T) set[T] {
	s := make(set[T], len(items))
	for _, it := range items {
		s[it] = struct{}{}
	}
	return s
}

func (s set[T]) has(v T) bool {
	_, ok := s[v]
	return ok
}

// capabilitySet is an immutable snapshot taken when an input is opened.
// Lookups never touch the driver again.
type capabilitySet struct {
	caps          Capabilities
	formats       map[OutputKind]set[Format]
	sizes         map[Format]set[Size]
	flash         set[FlashMode]
	exposure      set[ExposureMode]
	focus         set[FocusMode]
	stabilization set[StabilizationMode]
	metadata      set[MetadataObjectType]
}

func newCapabilitySet(c Capabilities) *capabilitySet {
	c = c.clone()
	cs := &capabilitySet{
		caps: c,
		formats: map[OutputKind]set[Format]{
			KindPreview: newSet(c.PreviewFormats),
			KindPhoto:   newSet(c.PhotoFormats),
			KindVideo:   newSet(c.VideoFormats),
		},
		sizes:         make(map[Format]set[Size], len(c.Sizes)),
		flash:         newSet(c.FlashModes),
		exposure:      newSet(c.ExposureModes),
		focus:         newSet(c.FocusModes),
		stabilization: newSet(c.StabilizationModes),
		metadata:      newSet(c.MetadataTypes),
	}
	for _, fs := range c.Sizes {
		cs.sizes[fs.Format] = newSet(fs.Sizes)
	}
	return cs
}

// snapshot returns a copy callers may keep or modify.
func (cs *capabilitySet) snapshot() Capabilities {
	return cs.caps.clone()
}

// defaultControls picks the initial control state for a freshly opened device.
func (cs *capabilitySet) defaultControls() Controls {
	c := Controls{
		ExposurePoint: Point{X: 0.5, Y: 0.5},
		FocusPoint:    Point{X: 0.5, Y: 0.5},
		ZoomRatio:     1,
		MinFrameRate:  cs.caps.FrameRate.Min,
		MaxFrameRate:  cs.caps.FrameRate.Max,
	}
	if len(cs.caps.FlashModes) > 0 {
		c.FlashMode = cs.caps.FlashModes[0]
	}
	if len(cs.caps.ExposureModes) > 0 {
		c.ExposureMode = cs.caps.ExposureModes[0]
	}
	if len(cs.caps.FocusModes) > 0 {
		c.FocusMode = cs.caps.FocusModes[0]
	}
	if !cs.caps.ZoomRatio.Contains(c.ZoomRatio) {
		c.ZoomRatio = cs.caps.ZoomRatio.Min
	}
	if !cs.caps.ExposureBias.Contains(0) {
		c.ExposureBias = cs.caps.ExposureBias.Min
	}
	return c
}

// resolveStream fills in a default format and size for cfg where unset.
func (cs *capabilitySet) resolveStream(cfg StreamConfig) StreamConfig {
	if cfg.Kind == KindMetadata {
		if len(cfg.MetadataTypes) == 0 {
			cfg.MetadataTypes = slices.Clone(cs.caps.MetadataTypes)
		}
		return cfg
	}
	if cfg.Format == 0 {
		if fs := cs.caps.FormatsFor(cfg.Kind); len(fs) > 0 {
			cfg.Format = fs[0]
		}
	}
	if cfg.Size.IsZero() {
		if sizes := cs.caps.SizesFor(cfg.Format); len(sizes) > 0 {
			cfg.Size = sizes[0]
		}
	}
	return cfg
}

// validateStreams checks that the device can produce every stream at once.
func (cs *capabilitySet) validateStreams(cfgs []StreamConfig) error {
	image := 0
	for _, cfg := range cfgs {
		if cfg.Kind == KindMetadata {
			for _, t := range cfg.MetadataTypes {
				if !cs.metadata.has(t) {
					return fmt.Errorf("metadata object type %s not supported", t)
				}
			}
			continue
		}
		image++
		if !cs.formats[cfg.Kind].has(cfg.Format) {
			return fmt.Errorf("%s stream: format %s not supported", cfg.Kind, cfg.Format)
		}
		if !cs.sizes[cfg.Format].has(cfg.Size) {
			return fmt.Errorf("%s stream: size %s not supported for %s", cfg.Kind, cfg.Size, cfg.Format)
		}
		if cfg.Kind == KindVideo && !cs.stabilization.has(cfg.Stabilization) && cfg.Stabilization != StabilizationOff {
			return fmt.Errorf("video stream: stabilization %s not supported", cfg.Stabilization)
		}
	}
	if limit := cs.caps.MaxStreams; limit > 0 && image > limit {
		return fmt.Errorf("%d image streams requested, device supports %d", image, limit)
	}
	return nil
}
