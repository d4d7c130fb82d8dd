package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/camcore/internal/api/models"
	"github.com/smazurov/camcore/internal/camera"
)

// DevicePathInput is the device path parameter.
type DevicePathInput struct {
	DeviceID string `path:"device_id" example:"sim-back-0" doc:"Stable device identifier"`
}

func (s *Server) registerDeviceRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-devices",
		Method:      http.MethodGet,
		Path:        "/api/devices",
		Summary:     "List Devices",
		Description: "List the cameras currently known to the registry",
		Tags:        []string{"devices"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(ctx context.Context, input *struct{}) (*models.DeviceListResponse, error) {
		devices := s.registry.Devices()
		data := make([]models.DeviceData, 0, len(devices))
		for _, d := range devices {
			data = append(data, s.deviceData(d))
		}
		return &models.DeviceListResponse{
			Body: models.DeviceListData{Devices: data, Count: len(data)},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-device",
		Method:      http.MethodGet,
		Path:        "/api/devices/{device_id}",
		Summary:     "Get Device",
		Description: "Get one camera and whether it is free to open",
		Tags:        []string{"devices"},
		Errors:      []int{401, 404},
		Security:    withAuth(),
	}, func(ctx context.Context, input *DevicePathInput) (*models.DeviceResponse, error) {
		d, err := s.registry.Device(input.DeviceID)
		if err != nil {
			return nil, mapCameraError(err)
		}
		return &models.DeviceResponse{Body: s.deviceData(d)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "refresh-devices",
		Method:      http.MethodPost,
		Path:        "/api/devices/refresh",
		Summary:     "Refresh Devices",
		Description: "Re-enumerate cameras from the driver",
		Tags:        []string{"devices"},
		Errors:      []int{401, 500},
		Security:    withAuth(),
	}, func(ctx context.Context, input *struct{}) (*models.DeviceListResponse, error) {
		if err := s.registry.Refresh(ctx); err != nil {
			s.logger.Error("Device refresh failed", "error", err)
			return nil, huma.Error500InternalServerError("device enumeration failed", err)
		}
		devices := s.registry.Devices()
		data := make([]models.DeviceData, 0, len(devices))
		for _, d := range devices {
			data = append(data, s.deviceData(d))
		}
		return &models.DeviceListResponse{
			Body: models.DeviceListData{Devices: data, Count: len(data)},
		}, nil
	})
}

func (s *Server) deviceData(d camera.Device) models.DeviceData {
	// A device that vanished between listing and lookup reports unavailable.
	available, _ := s.registry.Available(d.ID)
	return models.DeviceData{
		ID:         d.ID,
		Name:       d.Name,
		Position:   d.Position.String(),
		Type:       d.Type.String(),
		Connection: d.Connection.String(),
		Available:  available,
	}
}
