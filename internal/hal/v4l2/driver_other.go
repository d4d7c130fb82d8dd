//go:build !linux

package v4l2

import (
	"context"
	"errors"
	"log/slog"

	"github.com/smazurov/camcore/internal/camera"
)

// ErrUnsupported is returned on platforms without V4L2.
var ErrUnsupported = errors.New("v4l2: not supported on this platform")

// Format is the pixel format and size requested from every device.
type Format struct {
	Width       uint32 `toml:"width"`
	Height      uint32 `toml:"height"`
	FPS         uint32 `toml:"fps"`
	PixelFormat string `toml:"pixel_format"`
}

// DefaultFormat is 720p MJPEG at 30 fps.
var DefaultFormat = Format{Width: 1280, Height: 720, FPS: 30, PixelFormat: "mjpeg"}

// Driver is a stub that fails every call.
type Driver struct{}

// Option configures a Driver.
type Option func(*Driver)

// WithFormat is accepted for API parity.
func WithFormat(Format) Option { return func(*Driver) {} }

// WithLogger is accepted for API parity.
func WithLogger(*slog.Logger) Option { return func(*Driver) {} }

// New always fails with ErrUnsupported.
func New(...Option) (*Driver, error) {
	return nil, ErrUnsupported
}

func (d *Driver) Devices(context.Context) ([]camera.Device, error) {
	return nil, ErrUnsupported
}

func (d *Driver) Open(context.Context, string, camera.DeviceListener) (camera.Hardware, error) {
	return nil, ErrUnsupported
}

func (d *Driver) Watch(context.Context, chan<- camera.DeviceChange) error {
	return ErrUnsupported
}
