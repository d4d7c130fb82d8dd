package camera

import (
	"fmt"
	"time"
)

// Position is where a camera faces relative to the host.
type Position int

// Camera positions.
const (
	PositionUnspecified Position = iota
	PositionBack
	PositionFront
)

var positionNames = []string{"unspecified", "back", "front"}

func (p Position) String() string               { return enumString(positionNames, int(p)) }
func (p Position) MarshalText() ([]byte, error) { return []byte(p.String()), nil }
func (p *Position) UnmarshalText(b []byte) error {
	return unmarshalEnum(p, positionNames, "position", b)
}

// DeviceType is the lens class of a camera.
type DeviceType int

// Device types.
const (
	TypeUnspecified DeviceType = iota
	TypeWideAngle
	TypeUltraWide
	TypeTelephoto
	TypeTrueDepth
)

var deviceTypeNames = []string{"unspecified", "wide_angle", "ultra_wide", "telephoto", "true_depth"}

func (t DeviceType) String() string               { return enumString(deviceTypeNames, int(t)) }
func (t DeviceType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }
func (t *DeviceType) UnmarshalText(b []byte) error {
	return unmarshalEnum(t, deviceTypeNames, "device type", b)
}

// ConnectionType is how a camera is attached to the host.
type ConnectionType int

// Connection types.
const (
	ConnectionBuiltIn ConnectionType = iota
	ConnectionUSB
	ConnectionRemote
)

var connectionNames = []string{"built_in", "usb", "remote"}

func (c ConnectionType) String() string               { return enumString(connectionNames, int(c)) }
func (c ConnectionType) MarshalText() ([]byte, error) { return []byte(c.String()), nil }
func (c *ConnectionType) UnmarshalText(b []byte) error {
	return unmarshalEnum(c, connectionNames, "connection type", b)
}

// Device describes a physical camera. Devices are immutable.
type Device struct {
	ID         string         `json:"id" toml:"id"`
	Name       string         `json:"name" toml:"name"`
	Position   Position       `json:"position" toml:"position"`
	Type       DeviceType     `json:"type" toml:"type"`
	Connection ConnectionType `json:"connection" toml:"connection"`
}

// DeviceStatus is a device availability transition.
type DeviceStatus int

// Device statuses.
const (
	StatusAppear DeviceStatus = iota
	StatusDisappear
	StatusAvailable
	StatusUnavailable
)

var statusNames = []string{"appear", "disappear", "available", "unavailable"}

func (s DeviceStatus) String() string               { return enumString(statusNames, int(s)) }
func (s DeviceStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }
func (s *DeviceStatus) UnmarshalText(b []byte) error {
	return unmarshalEnum(s, statusNames, "device status", b)
}

// FlashMode controls the flash unit.
type FlashMode int

// Flash modes.
const (
	FlashClose FlashMode = iota
	FlashOpen
	FlashAuto
	FlashAlwaysOpen
)

var flashNames = []string{"close", "open", "auto", "always_open"}

func (m FlashMode) String() string               { return enumString(flashNames, int(m)) }
func (m FlashMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }
func (m *FlashMode) UnmarshalText(b []byte) error {
	return unmarshalEnum(m, flashNames, "flash mode", b)
}

// ExposureMode selects the auto-exposure behaviour.
type ExposureMode int

// Exposure modes.
const (
	ExposureManual ExposureMode = iota
	ExposureContinuousAuto
	ExposureLocked
)

var exposureNames = []string{"manual", "continuous_auto", "locked"}

func (m ExposureMode) String() string               { return enumString(exposureNames, int(m)) }
func (m ExposureMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }
func (m *ExposureMode) UnmarshalText(b []byte) error {
	return unmarshalEnum(m, exposureNames, "exposure mode", b)
}

// FocusMode selects the auto-focus behaviour.
type FocusMode int

// Focus modes.
const (
	FocusManual FocusMode = iota
	FocusContinuousAuto
	FocusAuto
	FocusLocked
)

var focusNames = []string{"manual", "continuous_auto", "auto", "locked"}

func (m FocusMode) String() string               { return enumString(focusNames, int(m)) }
func (m FocusMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }
func (m *FocusMode) UnmarshalText(b []byte) error {
	return unmarshalEnum(m, focusNames, "focus mode", b)
}

// FocusState is reported by the auto-focus loop.
type FocusState int

// Focus states.
const (
	FocusScan FocusState = iota
	FocusFocused
	FocusUnfocused
)

var focusStateNames = []string{"scan", "focused", "unfocused"}

func (s FocusState) String() string               { return enumString(focusStateNames, int(s)) }
func (s FocusState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// ExposureState is reported by the auto-exposure loop.
type ExposureState int

// Exposure states.
const (
	ExposureScan ExposureState = iota
	ExposureConverged
)

var exposureStateNames = []string{"scan", "converged"}

func (s ExposureState) String() string               { return enumString(exposureStateNames, int(s)) }
func (s ExposureState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// StabilizationMode is a video stabilization setting.
type StabilizationMode int

// Stabilization modes.
const (
	StabilizationOff StabilizationMode = iota
	StabilizationStandard
	StabilizationMovie
	StabilizationAuto
)

var stabilizationNames = []string{"off", "standard", "movie", "auto"}

func (m StabilizationMode) String() string               { return enumString(stabilizationNames, int(m)) }
func (m StabilizationMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }
func (m *StabilizationMode) UnmarshalText(b []byte) error {
	return unmarshalEnum(m, stabilizationNames, "stabilization mode", b)
}

// MetadataObjectType is a class of object a metadata output can detect.
type MetadataObjectType int

// Metadata object types.
const (
	MetadataFace MetadataObjectType = iota
)

var metadataTypeNames = []string{"face"}

func (t MetadataObjectType) String() string               { return enumString(metadataTypeNames, int(t)) }
func (t MetadataObjectType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }
func (t *MetadataObjectType) UnmarshalText(b []byte) error {
	return unmarshalEnum(t, metadataTypeNames, "metadata object type", b)
}

// Rotation is a photo rotation in degrees.
type Rotation int

// Photo rotations.
const (
	Rotation0   Rotation = 0
	Rotation90  Rotation = 90
	Rotation180 Rotation = 180
	Rotation270 Rotation = 270
)

// Valid reports whether r is one of the four right angles.
func (r Rotation) Valid() bool {
	switch r {
	case Rotation0, Rotation90, Rotation180, Rotation270:
		return true
	}
	return false
}

// Quality is the photo encoding quality level.
type Quality int

// Quality levels.
const (
	QualityHigh Quality = iota
	QualityMedium
	QualityLow
)

var qualityNames = []string{"high", "medium", "low"}

func (q Quality) String() string                { return enumString(qualityNames, int(q)) }
func (q Quality) MarshalText() ([]byte, error)  { return []byte(q.String()), nil }
func (q *Quality) UnmarshalText(b []byte) error { return unmarshalEnum(q, qualityNames, "quality", b) }

// Format is a stream pixel or container format.
type Format int

// Formats. Values match the platform format codes.
const (
	FormatRGBA8888 Format = 3
	FormatYUV420SP Format = 1003
	FormatYUYV422  Format = 1004
	FormatJPEG     Format = 2000
)

var formatNames = map[Format]string{
	FormatRGBA8888: "rgba_8888",
	FormatYUV420SP: "yuv_420_sp",
	FormatYUYV422:  "yuyv_422",
	FormatJPEG:     "jpeg",
}

func (f Format) String() string {
	if n, ok := formatNames[f]; ok {
		return n
	}
	return fmt.Sprintf("format(%d)", int(f))
}

// MarshalText implements encoding.TextMarshaler.
func (f Format) MarshalText() ([]byte, error) { return []byte(f.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Format) UnmarshalText(b []byte) error {
	for k, n := range formatNames {
		if n == string(b) {
			*f = k
			return nil
		}
	}
	return fmt.Errorf("invalid format %q", string(b))
}

// Size is a frame size in pixels.
type Size struct {
	Width  int `json:"width" toml:"width"`
	Height int `json:"height" toml:"height"`
}

func (s Size) String() string { return fmt.Sprintf("%dx%d", s.Width, s.Height) }

// IsZero reports whether s is unset.
func (s Size) IsZero() bool { return s.Width == 0 && s.Height == 0 }

// Point is a normalised coordinate in [0,1]x[0,1], origin top-left.
type Point struct {
	X float64 `json:"x" toml:"x"`
	Y float64 `json:"y" toml:"y"`
}

// Valid reports whether p lies inside the unit square.
func (p Point) Valid() bool {
	return p.X >= 0 && p.X <= 1 && p.Y >= 0 && p.Y <= 1
}

// Rect is a normalised bounding box.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Location is the geolocation attached to a photo.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude,omitempty"`
}

// Range is an inclusive numeric interval.
type Range struct {
	Min float64 `json:"min" toml:"min"`
	Max float64 `json:"max" toml:"max"`
}

// Contains reports whether v lies within r.
func (r Range) Contains(v float64) bool { return v >= r.Min && v <= r.Max }

// MetadataObject is a detected object in one analysed frame.
type MetadataObject struct {
	Type        MetadataObjectType `json:"type"`
	Timestamp   time.Time          `json:"timestamp"`
	BoundingBox Rect               `json:"bounding_box"`
}

// OutputKind identifies an output variant.
type OutputKind int

// Output kinds.
const (
	KindPreview OutputKind = iota
	KindPhoto
	KindVideo
	KindMetadata
)

var outputKindNames = []string{"preview", "photo", "video", "metadata"}

func (k OutputKind) String() string               { return enumString(outputKindNames, int(k)) }
func (k OutputKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }
func (k *OutputKind) UnmarshalText(b []byte) error {
	return unmarshalEnum(k, outputKindNames, "output kind", b)
}

// SessionState is a capture session lifecycle phase.
type SessionState int

// Session states.
const (
	StateIdle SessionState = iota
	StateConfiguring
	StateConfigured
	StateRunning
	StateReleased
)

var sessionStateNames = []string{"idle", "configuring", "configured", "running", "released"}

func (s SessionState) String() string               { return enumString(sessionStateNames, int(s)) }
func (s SessionState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func unmarshalEnum[T ~int](dst *T, names []string, what string, b []byte) error {
	v, err := parseEnum[T](names, what, b)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}
