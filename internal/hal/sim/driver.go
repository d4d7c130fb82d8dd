package sim

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/smazurov/camcore/internal/camera"
	"github.com/smazurov/camcore/internal/logging"
)

// Timing controls how fast the simulated hardware runs.
type Timing struct {
	FrameInterval time.Duration
	ConvergeDelay time.Duration
	ShutterDelay  time.Duration
}

// DefaultTiming is roughly a 30 fps camera.
var DefaultTiming = Timing{
	FrameInterval: 33 * time.Millisecond,
	ConvergeDelay: 200 * time.Millisecond,
	ShutterDelay:  50 * time.Millisecond,
}

// Driver simulates a set of cameras. It implements camera.HotplugDriver.
type Driver struct {
	timing Timing
	logger *slog.Logger

	mu        sync.Mutex
	profiles  map[string]Profile
	order     []string
	open      map[string]*hardware
	failStart map[camera.OutputKind]error
	watchers  map[chan<- camera.DeviceChange]struct{}
}

// Option configures a Driver.
type Option func(*Driver)

// WithTiming overrides DefaultTiming.
func WithTiming(t Timing) Option {
	return func(d *Driver) { d.timing = t }
}

// WithLogger overrides the driver logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Driver) { d.logger = logger }
}

// New creates a driver exposing profiles.
func New(profiles []Profile, opts ...Option) *Driver {
	d := &Driver{
		timing:    DefaultTiming,
		profiles:  make(map[string]Profile),
		open:      make(map[string]*hardware),
		failStart: make(map[camera.OutputKind]error),
		watchers:  make(map[chan<- camera.DeviceChange]struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = logging.GetLogger("hal")
	}
	for _, p := range profiles {
		if _, dup := d.profiles[p.Device.ID]; dup {
			continue
		}
		d.profiles[p.Device.ID] = p
		d.order = append(d.order, p.Device.ID)
	}
	return d
}

// Devices implements camera.Driver.
func (d *Driver) Devices(_ context.Context) ([]camera.Device, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]camera.Device, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.profiles[id].Device)
	}
	return out, nil
}

// Open implements camera.Driver.
func (d *Driver) Open(_ context.Context, id string, listener camera.DeviceListener) (camera.Hardware, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.profiles[id]
	if !ok {
		return nil, &camera.Error{Code: camera.CodeDeviceNotFound, Op: "sim open", Message: id}
	}
	if d.open[id] != nil {
		return nil, &camera.Error{Code: camera.CodeDeviceBusy, Op: "sim open", Message: id}
	}
	hw := newHardware(d, p, listener)
	d.open[id] = hw
	d.logger.Debug("Simulated device opened", "device_id", id)
	return hw, nil
}

// Watch implements camera.HotplugDriver.
func (d *Driver) Watch(ctx context.Context, changes chan<- camera.DeviceChange) error {
	d.mu.Lock()
	d.watchers[changes] = struct{}{}
	d.mu.Unlock()

	<-ctx.Done()

	d.mu.Lock()
	delete(d.watchers, changes)
	d.mu.Unlock()
	return nil
}

// Watching reports whether any Watch call is active.
func (d *Driver) Watching() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.watchers) > 0
}

func (d *Driver) notify(changes []camera.DeviceChange) {
	d.mu.Lock()
	watchers := make([]chan<- camera.DeviceChange, 0, len(d.watchers))
	for w := range d.watchers {
		watchers = append(watchers, w)
	}
	d.mu.Unlock()

	for _, ch := range changes {
		for _, w := range watchers {
			select {
			case w <- ch:
			case <-time.After(time.Second):
				d.logger.Warn("Hotplug watcher not draining, change dropped", "device_id", ch.Device.ID)
			}
		}
	}
}

// Plug adds a camera and reports it to watchers.
func (d *Driver) Plug(p Profile) {
	d.mu.Lock()
	if _, ok := d.profiles[p.Device.ID]; ok {
		d.mu.Unlock()
		return
	}
	d.profiles[p.Device.ID] = p
	d.order = append(d.order, p.Device.ID)
	d.mu.Unlock()
	d.notify([]camera.DeviceChange{{Device: p.Device, Present: true}})
}

// Unplug removes a camera and reports it to watchers. An open device keeps
// running until it is closed.
func (d *Driver) Unplug(id string) {
	d.mu.Lock()
	p, ok := d.profiles[id]
	if !ok {
		d.mu.Unlock()
		return
	}
	delete(d.profiles, id)
	d.order = slices.DeleteFunc(d.order, func(s string) bool { return s == id })
	d.mu.Unlock()
	d.notify([]camera.DeviceChange{{Device: p.Device, Present: false}})
}

// SetProfiles replaces the camera set, reporting removed cameras first and
// then added ones. Cameras whose id is unchanged keep their old profile
// until they are unplugged.
func (d *Driver) SetProfiles(profiles []Profile) {
	next := make(map[string]Profile, len(profiles))
	for _, p := range profiles {
		next[p.Device.ID] = p
	}

	d.mu.Lock()
	var removed, added []string
	for _, id := range d.order {
		if _, keep := next[id]; !keep {
			removed = append(removed, id)
		}
	}
	for _, p := range profiles {
		if _, known := d.profiles[p.Device.ID]; !known {
			added = append(added, p.Device.ID)
		}
	}
	d.mu.Unlock()

	for _, id := range removed {
		d.Unplug(id)
	}
	for _, id := range added {
		d.Plug(next[id])
	}
	d.logger.Info("Simulated profiles updated", "added", len(added), "removed", len(removed))
}

// FailStreamStart makes Start fail with err on every stream of kind.
// A nil err clears the failure.
func (d *Driver) FailStreamStart(kind camera.OutputKind, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.failStart, kind)
		return
	}
	d.failStart[kind] = err
}

func (d *Driver) startFailure(kind camera.OutputKind) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.failStart[kind]
}

// InjectFault delivers err to the listener of the open device id.
func (d *Driver) InjectFault(id string, err error) error {
	d.mu.Lock()
	hw := d.open[id]
	d.mu.Unlock()
	if hw == nil {
		return fmt.Errorf("device %s is not open", id)
	}
	hw.emit(func(l camera.DeviceListener) { l.Fault(err) })
	return nil
}

// InjectStreamFault delivers err to every open stream of kind on device id.
func (d *Driver) InjectStreamFault(id string, kind camera.OutputKind, err error) error {
	d.mu.Lock()
	hw := d.open[id]
	d.mu.Unlock()
	if hw == nil {
		return fmt.Errorf("device %s is not open", id)
	}
	for _, s := range hw.streamsOf(kind) {
		s.fault(err)
	}
	return nil
}

func (d *Driver) closed(hw *hardware) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.open[hw.profile.Device.ID] == hw {
		delete(d.open, hw.profile.Device.ID)
	}
}
