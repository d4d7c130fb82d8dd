package models

// DeviceData describes one camera known to the registry.
type DeviceData struct {
	ID         string `json:"id" example:"usb-046d_C920_ABC123-video-index0" doc:"Stable device identifier"`
	Name       string `json:"name" example:"HD Pro Webcam C920" doc:"Human-readable device name"`
	Position   string `json:"position" example:"back" doc:"Where the camera faces"`
	Type       string `json:"type" example:"wide_angle" doc:"Lens class"`
	Connection string `json:"connection" example:"usb" doc:"How the camera is attached"`
	Available  bool   `json:"available" doc:"False while a pipeline or client holds the device open"`
}

type DeviceListData struct {
	Devices []DeviceData `json:"devices" doc:"Known camera devices"`
	Count   int          `json:"count" example:"2" doc:"Number of devices"`
}

type DeviceListResponse struct {
	Body DeviceListData
}

type DeviceResponse struct {
	Body DeviceData
}
