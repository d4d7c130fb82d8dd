package camera

import (
	"time"

	"github.com/smazurov/camcore/internal/events"
)

// Notification is the envelope every camera event is delivered in.
type Notification = events.Envelope

// Event is the closed set of payloads published by camera objects.
type Event interface {
	events.Payload
	cameraEvent()
}

// DeviceStatusChanged is published by the registry on every availability transition.
type DeviceStatusChanged struct {
	Device Device       `json:"device"`
	Status DeviceStatus `json:"status"`
}

// FocusStateChanged reports auto-focus progress on an input.
type FocusStateChanged struct {
	State FocusState `json:"state"`
}

// ExposureStateChanged reports auto-exposure progress on an input.
type ExposureStateChanged struct {
	State ExposureState `json:"state"`
}

// FrameStarted is published when a preview or video frame begins.
type FrameStarted struct{}

// FrameEnded is published when a preview or video frame completes.
type FrameEnded struct {
	Frames int `json:"frames"`
}

// CaptureStarted opens a photo capture.
type CaptureStarted struct {
	CaptureID int32 `json:"capture_id"`
}

// FrameShutter is published when the sensor exposes a photo.
type FrameShutter struct {
	CaptureID int32     `json:"capture_id"`
	Timestamp time.Time `json:"timestamp"`
}

// CaptureEnded closes a photo capture.
type CaptureEnded struct {
	CaptureID int32 `json:"capture_id"`
	Frames    int   `json:"frames"`
}

// MetadataObjectsAvailable carries the objects detected in one analysed frame.
type MetadataObjectsAvailable struct {
	Objects []MetadataObject `json:"objects"`
}

// SessionStateChanged is published on every session transition.
type SessionStateChanged struct {
	From SessionState `json:"from"`
	To   SessionState `json:"to"`
}

// Fault reports an asynchronous hardware error. It never changes state.
type Fault struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	// Source is the id of the object the fault originated on.
	Source string `json:"source,omitempty"`
	Err    error  `json:"-"`
}

func newFault(source string, err error) Fault {
	return Fault{Code: CodeOf(err), Message: err.Error(), Source: source, Err: err}
}

func (DeviceStatusChanged) Kind() string      { return "device_status" }
func (FocusStateChanged) Kind() string        { return "focus_state" }
func (ExposureStateChanged) Kind() string     { return "exposure_state" }
func (FrameStarted) Kind() string             { return "frame_start" }
func (FrameEnded) Kind() string               { return "frame_end" }
func (CaptureStarted) Kind() string           { return "capture_start" }
func (FrameShutter) Kind() string             { return "frame_shutter" }
func (CaptureEnded) Kind() string             { return "capture_end" }
func (MetadataObjectsAvailable) Kind() string { return "metadata_objects_available" }
func (SessionStateChanged) Kind() string      { return "session_state" }
func (Fault) Kind() string                    { return "error" }

func (DeviceStatusChanged) cameraEvent()      {}
func (FocusStateChanged) cameraEvent()        {}
func (ExposureStateChanged) cameraEvent()     {}
func (FrameStarted) cameraEvent()             {}
func (FrameEnded) cameraEvent()               {}
func (CaptureStarted) cameraEvent()           {}
func (FrameShutter) cameraEvent()             {}
func (CaptureEnded) cameraEvent()             {}
func (MetadataObjectsAvailable) cameraEvent() {}
func (SessionStateChanged) cameraEvent()      {}
func (Fault) cameraEvent()                    {}

// Subscriber is implemented by every object that publishes events.
type Subscriber interface {
	Subscribe(handler func(Notification)) (unsubscribe func())
}

// On subscribes fn to events of type T published by s.
//
//	unsub := camera.On(photo, func(e camera.CaptureEnded) { ... })
func On[T Event](s Subscriber, fn func(T)) func() {
	return s.Subscribe(func(n Notification) {
		if e, ok := n.Payload.(T); ok {
			fn(e)
		}
	})
}
