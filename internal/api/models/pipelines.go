package models

import "time"

// OutputData describes one output in a pipeline request.
type OutputData struct {
	Kind          string   `json:"kind" enum:"preview,photo,video,metadata" example:"photo" doc:"Output kind"`
	Surface       string   `json:"surface,omitempty" example:"/var/lib/camcore/photo-{id}.jpg" doc:"Consumer target; file path for photo and video outputs on V4L2"`
	Format        string   `json:"format,omitempty" example:"jpeg" doc:"Pixel format, defaults to the first supported one"`
	Resolution    string   `json:"resolution,omitempty" pattern:"^[0-9]+x[0-9]+$" example:"1920x1080" doc:"Frame size in WIDTHxHEIGHT form"`
	Stabilization string   `json:"stabilization,omitempty" enum:"off,standard,movie,auto" doc:"Video stabilization mode"`
	ObjectTypes   []string `json:"object_types,omitempty" doc:"Metadata object types, empty means all supported"`
}

// PointData is a normalised coordinate.
type PointData struct {
	X float64 `json:"x" minimum:"0" maximum:"1" example:"0.5"`
	Y float64 `json:"y" minimum:"0" maximum:"1" example:"0.5"`
}

// ControlsData is a partial control update. Omitted fields are unchanged.
type ControlsData struct {
	FlashMode     *string    `json:"flash_mode,omitempty" enum:"close,open,auto,always_open" doc:"Flash mode"`
	ExposureMode  *string    `json:"exposure_mode,omitempty" enum:"manual,continuous_auto,locked" doc:"Exposure mode"`
	ExposureBias  *float64   `json:"exposure_bias,omitempty" example:"0.5" doc:"Exposure compensation in EV"`
	ExposurePoint *PointData `json:"exposure_point,omitempty" doc:"Exposure point of interest"`
	FocusMode     *string    `json:"focus_mode,omitempty" enum:"manual,continuous_auto,auto,locked" doc:"Focus mode"`
	FocusPoint    *PointData `json:"focus_point,omitempty" doc:"Focus point of interest"`
	ZoomRatio     *float64   `json:"zoom_ratio,omitempty" example:"2.0" doc:"Zoom ratio"`
	MinFrameRate  *float64   `json:"min_frame_rate,omitempty" example:"15" doc:"Minimum frame rate"`
	MaxFrameRate  *float64   `json:"max_frame_rate,omitempty" example:"30" doc:"Maximum frame rate"`
}

type PipelineRequestData struct {
	ID        string        `json:"id" pattern:"^[a-zA-Z0-9_-]+$" minLength:"1" maxLength:"50" example:"front-door" doc:"User-defined pipeline identifier"`
	Name      string        `json:"name,omitempty" example:"Front door" doc:"Display name, defaults to the id"`
	Device    string        `json:"device" minLength:"1" example:"sim-back-0" doc:"Stable device identifier"`
	Outputs   []OutputData  `json:"outputs" minItems:"1" doc:"Outputs fed by the pipeline"`
	Controls  *ControlsData `json:"controls,omitempty" doc:"Controls applied after creation"`
	AutoStart bool          `json:"auto_start,omitempty" doc:"Start now and whenever the service loads the pipeline"`
}

type PipelineRequest struct {
	Body PipelineRequestData
}

// ControlsValues is the full control state of a pipeline.
type ControlsValues struct {
	FlashMode     string    `json:"flash_mode" example:"auto"`
	ExposureMode  string    `json:"exposure_mode" example:"continuous_auto"`
	ExposureBias  float64   `json:"exposure_bias"`
	ExposurePoint PointData `json:"exposure_point"`
	FocusMode     string    `json:"focus_mode" example:"continuous_auto"`
	FocusPoint    PointData `json:"focus_point"`
	ZoomRatio     float64   `json:"zoom_ratio" example:"1"`
	MinFrameRate  float64   `json:"min_frame_rate" example:"15"`
	MaxFrameRate  float64   `json:"max_frame_rate" example:"30"`
}

type OutputStatusData struct {
	ID      string `json:"id,omitempty" doc:"Output identifier while the pipeline holds its device"`
	Kind    string `json:"kind" example:"preview"`
	Surface string `json:"surface,omitempty"`
}

type PipelineData struct {
	ID        string             `json:"id" example:"front-door"`
	Name      string             `json:"name" example:"Front door"`
	Device    string             `json:"device" example:"sim-back-0"`
	State     string             `json:"state" example:"running" doc:"Session state: idle, configured, running or released"`
	Available bool               `json:"available" doc:"Whether the pipeline currently holds its device"`
	Recording bool               `json:"recording" doc:"Whether a video output is recording"`
	Outputs   []OutputStatusData `json:"outputs"`
	Controls  *ControlsValues    `json:"controls,omitempty"`
	AutoStart bool               `json:"auto_start"`
	LastError string             `json:"last_error,omitempty" doc:"Last setup or device error"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

type PipelineResponse struct {
	Body PipelineData
}

type PipelineListData struct {
	Pipelines []PipelineData `json:"pipelines" doc:"Configured pipelines"`
	Count     int            `json:"count" example:"1" doc:"Number of pipelines"`
}

type PipelineListResponse struct {
	Body PipelineListData
}

// LocationData is attached to captured photos.
type LocationData struct {
	Latitude  float64 `json:"latitude" minimum:"-90" maximum:"90"`
	Longitude float64 `json:"longitude" minimum:"-180" maximum:"180"`
	Altitude  float64 `json:"altitude,omitempty"`
}

type CaptureRequestData struct {
	Quality  string        `json:"quality,omitempty" enum:"high,medium,low" default:"high" doc:"Encoding quality"`
	Rotation int           `json:"rotation,omitempty" enum:"0,90,180,270" doc:"Clockwise rotation in degrees"`
	Mirror   bool          `json:"mirror,omitempty" doc:"Mirror horizontally"`
	Location *LocationData `json:"location,omitempty" doc:"Geolocation attached to the photo"`
}

type CaptureRequest struct {
	PipelineID string `path:"pipeline_id" example:"front-door" doc:"Pipeline identifier"`
	Body       *CaptureRequestData
}

type CaptureData struct {
	CaptureID   int32     `json:"capture_id" example:"7" doc:"Capture identifier, increasing per process"`
	Frames      int       `json:"frames" example:"1"`
	ShutterTime time.Time `json:"shutter_time" doc:"When the sensor exposed the photo"`
	Path        string    `json:"path,omitempty" doc:"Where the backend stored the image"`
}

type CaptureResponse struct {
	Body CaptureData
}

type ControlsRequest struct {
	PipelineID string `path:"pipeline_id" example:"front-door" doc:"Pipeline identifier"`
	Body       ControlsData
}
