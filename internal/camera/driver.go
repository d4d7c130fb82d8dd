package camera

import (
	"context"
	"time"
)

// Driver enumerates and opens camera hardware.
type Driver interface {
	Devices(ctx context.Context) ([]Device, error)
	Open(ctx context.Context, id string, listener DeviceListener) (Hardware, error)
}

// HotplugDriver is implemented by drivers that report devices coming and going.
type HotplugDriver interface {
	Driver
	// Watch sends presence changes until ctx is done.
	Watch(ctx context.Context, changes chan<- DeviceChange) error
}

// DeviceChange reports a device appearing or disappearing.
type DeviceChange struct {
	Device  Device
	Present bool
}

// DeviceListener receives asynchronous notifications from an opened device.
// Calls for one device are made sequentially.
type DeviceListener interface {
	FocusStateChanged(state FocusState)
	ExposureStateChanged(state ExposureState)
	Fault(err error)
}

// Hardware is an opened device.
type Hardware interface {
	Capabilities() Capabilities
	ApplyControls(ctx context.Context, c Controls) error
	OpenStream(ctx context.Context, cfg StreamConfig, listener StreamListener) (Stream, error)
	// Close releases the device. Streams opened on it become unusable.
	Close() error
}

// StreamConfig describes one stream the device should produce.
type StreamConfig struct {
	Kind          OutputKind
	Format        Format
	Size          Size
	SurfaceID     string
	Stabilization StabilizationMode
	MetadataTypes []MetadataObjectType
}

// Stream is one hardware pipeline feeding an output.
// Close must be safe to call more than once.
type Stream interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	// Capture takes a photo and returns once the capture has ended.
	Capture(ctx context.Context, id int32, settings PhotoSettings) (CaptureResult, error)
	SetMetadataTypes(ctx context.Context, types []MetadataObjectType) error
	Close() error
}

// StreamListener receives per-stream notifications from the producer.
// Calls for one stream are made sequentially.
type StreamListener interface {
	FrameStarted()
	FrameEnded(frames int)
	CaptureStarted(id int32)
	FrameShutter(id int32, at time.Time)
	CaptureEnded(id int32, frames int)
	MetadataObjects(objects []MetadataObject)
	Fault(err error)
}

// PhotoSettings are the per-capture options of a photo.
type PhotoSettings struct {
	Quality  Quality   `json:"quality"`
	Rotation Rotation  `json:"rotation"`
	Location *Location `json:"location,omitempty"`
	Mirror   bool      `json:"mirror"`
}

// CaptureResult describes a finished photo capture.
type CaptureResult struct {
	CaptureID   int32     `json:"capture_id"`
	Frames      int       `json:"frames"`
	ShutterTime time.Time `json:"shutter_time"`
	// Path is where the driver stored the image, if it writes one.
	Path string `json:"path,omitempty"`
}
