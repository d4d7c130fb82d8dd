package api

import (
	"encoding"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/camcore/internal/api/models"
	"github.com/smazurov/camcore/internal/camera"
	"github.com/smazurov/camcore/internal/pipelines"
)

func parseText[T any, PT interface {
	*T
	encoding.TextUnmarshaler
}](s *string) (*T, error) {
	if s == nil {
		return nil, nil
	}
	var v T
	if err := PT(&v).UnmarshalText([]byte(*s)); err != nil {
		return nil, huma.Error422UnprocessableEntity(err.Error())
	}
	return &v, nil
}

func pointFrom(p *models.PointData) *camera.Point {
	if p == nil {
		return nil
	}
	return &camera.Point{X: p.X, Y: p.Y}
}

func controlsPatch(c *models.ControlsData) (pipelines.ControlsPatch, error) {
	var patch pipelines.ControlsPatch
	if c == nil {
		return patch, nil
	}
	var err error
	if patch.FlashMode, err = parseText[camera.FlashMode](c.FlashMode); err != nil {
		return patch, err
	}
	if patch.ExposureMode, err = parseText[camera.ExposureMode](c.ExposureMode); err != nil {
		return patch, err
	}
	if patch.FocusMode, err = parseText[camera.FocusMode](c.FocusMode); err != nil {
		return patch, err
	}
	patch.ExposureBias = c.ExposureBias
	patch.ExposurePoint = pointFrom(c.ExposurePoint)
	patch.FocusPoint = pointFrom(c.FocusPoint)
	patch.ZoomRatio = c.ZoomRatio
	patch.MinFrameRate = c.MinFrameRate
	patch.MaxFrameRate = c.MaxFrameRate
	return patch, nil
}

func photoSettings(body *models.CaptureRequestData) (camera.PhotoSettings, error) {
	settings := camera.PhotoSettings{Quality: camera.QualityHigh, Rotation: camera.Rotation0}
	if body == nil {
		return settings, nil
	}
	if body.Quality != "" {
		q, err := parseText[camera.Quality](&body.Quality)
		if err != nil {
			return settings, err
		}
		settings.Quality = *q
	}
	settings.Rotation = camera.Rotation(body.Rotation)
	if !settings.Rotation.Valid() {
		return settings, huma.Error422UnprocessableEntity("rotation must be 0, 90, 180 or 270")
	}
	settings.Mirror = body.Mirror
	if body.Location != nil {
		settings.Location = &camera.Location{
			Latitude:  body.Location.Latitude,
			Longitude: body.Location.Longitude,
			Altitude:  body.Location.Altitude,
		}
	}
	return settings, nil
}

func pipelineSpec(body models.PipelineRequestData) pipelines.PipelineSpec {
	outputs := make([]pipelines.OutputSpec, 0, len(body.Outputs))
	for _, o := range body.Outputs {
		outputs = append(outputs, pipelines.OutputSpec{
			Kind:          o.Kind,
			Surface:       o.Surface,
			Format:        o.Format,
			Resolution:    o.Resolution,
			Stabilization: o.Stabilization,
			ObjectTypes:   o.ObjectTypes,
		})
	}
	return pipelines.PipelineSpec{
		ID:        body.ID,
		Name:      body.Name,
		Device:    body.Device,
		Outputs:   outputs,
		AutoStart: body.AutoStart,
	}
}

func pipelineData(p pipelines.Pipeline) models.PipelineData {
	outputs := make([]models.OutputStatusData, 0, len(p.Outputs))
	for _, o := range p.Outputs {
		outputs = append(outputs, models.OutputStatusData{
			ID:      o.ID,
			Kind:    o.Kind.String(),
			Surface: o.Surface,
		})
	}
	data := models.PipelineData{
		ID:        p.ID,
		Name:      p.Name,
		Device:    p.Device,
		State:     p.State.String(),
		Available: p.Available,
		Recording: p.Recording,
		Outputs:   outputs,
		AutoStart: p.AutoStart,
		LastError: p.LastError,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
	if c := p.Controls; c != nil {
		data.Controls = &models.ControlsValues{
			FlashMode:     c.FlashMode.String(),
			ExposureMode:  c.ExposureMode.String(),
			ExposureBias:  c.ExposureBias,
			ExposurePoint: models.PointData{X: c.ExposurePoint.X, Y: c.ExposurePoint.Y},
			FocusMode:     c.FocusMode.String(),
			FocusPoint:    models.PointData{X: c.FocusPoint.X, Y: c.FocusPoint.Y},
			ZoomRatio:     c.ZoomRatio,
			MinFrameRate:  c.MinFrameRate,
			MaxFrameRate:  c.MaxFrameRate,
		}
	}
	return data
}
