//go:build linux

package v4l2

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/smazurov/camcore/internal/camera"
	"github.com/smazurov/camcore/internal/logging"
	"github.com/vladimirvivien/go4vl/device"
	vl "github.com/vladimirvivien/go4vl/v4l2"
)

const (
	defaultSysRoot = "/sys/class/video4linux"
	defaultByIDDir = "/dev/v4l/by-id"
)

// Format is the pixel format and size requested from every device.
type Format struct {
	Width       uint32 `toml:"width"`
	Height      uint32 `toml:"height"`
	FPS         uint32 `toml:"fps"`
	PixelFormat string `toml:"pixel_format"` // mjpeg or yuyv
}

// DefaultFormat is 720p MJPEG at 30 fps.
var DefaultFormat = Format{Width: 1280, Height: 720, FPS: 30, PixelFormat: "mjpeg"}

func (f Format) fourcc() (vl.FourCCType, error) {
	switch f.PixelFormat {
	case "", "mjpeg":
		return vl.PixelFmtMJPEG, nil
	case "yuyv":
		return vl.PixelFmtYUYV, nil
	default:
		return 0, fmt.Errorf("unsupported pixel format %q", f.PixelFormat)
	}
}

// Driver exposes V4L2 capture nodes. It implements camera.HotplugDriver.
type Driver struct {
	format  Format
	sysRoot string
	byIDDir string
	logger  *slog.Logger

	mu    sync.Mutex
	known map[string]node // by kernel name, for remove events
	open  map[string]*hardware
}

// Option configures a Driver.
type Option func(*Driver)

// WithFormat overrides DefaultFormat.
func WithFormat(f Format) Option {
	return func(d *Driver) { d.format = f }
}

// WithLogger overrides the driver logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Driver) { d.logger = logger }
}

// withRoots points enumeration at a fake sysfs tree.
func withRoots(sysRoot, byIDDir string) Option {
	return func(d *Driver) {
		d.sysRoot = sysRoot
		d.byIDDir = byIDDir
	}
}

// New creates a V4L2 driver.
func New(opts ...Option) (*Driver, error) {
	d := &Driver{
		format:  DefaultFormat,
		sysRoot: defaultSysRoot,
		byIDDir: defaultByIDDir,
		known:   make(map[string]node),
		open:    make(map[string]*hardware),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = logging.GetLogger("hal")
	}
	if _, err := d.format.fourcc(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Driver) scan() ([]node, error) {
	nodes, err := scanNodes(d.sysRoot, d.byIDDir)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	for _, n := range nodes {
		d.known[n.kname] = n
	}
	d.mu.Unlock()
	return nodes, nil
}

// Devices implements camera.Driver.
func (d *Driver) Devices(_ context.Context) ([]camera.Device, error) {
	nodes, err := d.scan()
	if err != nil {
		return nil, err
	}
	out := make([]camera.Device, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.device)
	}
	return out, nil
}

// Open implements camera.Driver.
func (d *Driver) Open(_ context.Context, id string, listener camera.DeviceListener) (camera.Hardware, error) {
	nodes, err := d.scan()
	if err != nil {
		return nil, err
	}
	var target *node
	for i := range nodes {
		if nodes[i].device.ID == id {
			target = &nodes[i]
			break
		}
	}
	if target == nil {
		return nil, &camera.Error{Code: camera.CodeDeviceNotFound, Op: "v4l2 open", Message: id}
	}

	d.mu.Lock()
	if d.open[id] != nil {
		d.mu.Unlock()
		return nil, &camera.Error{Code: camera.CodeDeviceBusy, Op: "v4l2 open", Message: id}
	}
	d.open[id] = nil
	d.mu.Unlock()

	hw, err := d.openNode(*target, listener)

	d.mu.Lock()
	defer d.mu.Unlock()
	if err != nil {
		delete(d.open, id)
		return nil, err
	}
	d.open[id] = hw
	return hw, nil
}

func (d *Driver) openNode(n node, listener camera.DeviceListener) (*hardware, error) {
	fourcc, _ := d.format.fourcc()
	dev, err := device.Open(n.path,
		device.WithPixFormat(vl.PixFormat{
			Width:       d.format.Width,
			Height:      d.format.Height,
			PixelFormat: fourcc,
			Field:       vl.FieldNone,
		}),
		device.WithFPS(d.format.FPS),
	)
	if err != nil {
		return nil, &camera.Error{Code: camera.CodeDeviceBusy, Op: "v4l2 open", Message: n.path, Cause: err}
	}

	pix, err := dev.GetPixFormat()
	if err != nil {
		_ = dev.Close()
		return nil, fmt.Errorf("query pixel format of %s: %w", n.path, err)
	}
	fps := d.format.FPS
	if rate, err := dev.GetFrameRate(); err == nil && rate > 0 {
		fps = rate
	}

	d.logger.Info("V4L2 device opened", "device_id", n.device.ID, "path", n.path,
		"width", pix.Width, "height", pix.Height, "fps", fps)
	return newHardware(d, n, dev, pix, fps, listener), nil
}

func (d *Driver) closed(id string) {
	d.mu.Lock()
	delete(d.open, id)
	d.mu.Unlock()
}

// Watch implements camera.HotplugDriver using kernel uevents.
func (d *Driver) Watch(ctx context.Context, changes chan<- camera.DeviceChange) error {
	mon, err := newMonitor()
	if err != nil {
		return err
	}
	defer mon.Close()

	for {
		ev, err := mon.next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if ev.Subsystem != subsystemVideo4Linux {
			continue
		}
		change, ok := d.resolve(ev)
		if !ok {
			continue
		}
		select {
		case changes <- change:
		case <-ctx.Done():
			return nil
		}
	}
}

// resolve maps a uevent to a device change using the last scan for removals.
func (d *Driver) resolve(ev *UEvent) (camera.DeviceChange, bool) {
	kname := ev.DevName
	if kname == "" {
		return camera.DeviceChange{}, false
	}

	switch ev.Action {
	case actionAdd:
		nodes, err := d.scan()
		if err != nil {
			d.logger.Warn("Rescan after hotplug failed", "error", err)
			return camera.DeviceChange{}, false
		}
		for _, n := range nodes {
			if n.kname == kname {
				return camera.DeviceChange{Device: n.device, Present: true}, true
			}
		}
	case actionRemove:
		d.mu.Lock()
		n, ok := d.known[kname]
		delete(d.known, kname)
		d.mu.Unlock()
		if ok {
			return camera.DeviceChange{Device: n.device, Present: false}, true
		}
	}
	return camera.DeviceChange{}, false
}
