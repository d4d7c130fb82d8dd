package camera

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/smazurov/camcore/internal/events"
	"github.com/smazurov/camcore/internal/logging"
)

// Registry tracks the devices a driver exposes and which of them are open.
// A device is owned by at most one Input at a time.
type Registry struct {
	driver Driver
	bus    *events.Bus
	status *events.Emitter
	logger *slog.Logger

	captureSeq atomic.Int32

	mu      sync.Mutex
	devices map[string]Device
	order   []string
	owners  map[string]*Input
}

// Option configures a Registry.
type Option func(*Registry)

// WithBus publishes every camera event on bus.
func WithBus(bus *events.Bus) Option {
	return func(r *Registry) { r.bus = bus }
}

// WithLogger overrides the registry logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// NewRegistry creates a registry backed by driver. Call Refresh to enumerate.
func NewRegistry(driver Driver, opts ...Option) *Registry {
	r := &Registry{
		driver:  driver,
		devices: make(map[string]Device),
		owners:  make(map[string]*Input),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.bus == nil {
		r.bus = events.New()
	}
	if r.logger == nil {
		r.logger = logging.GetLogger("camera")
	}
	r.status = r.bus.NewEmitter("devices")
	return r
}

// Bus returns the event bus objects created by this registry publish on.
func (r *Registry) Bus() *events.Bus { return r.bus }

// Refresh enumerates the driver and reconciles the device list.
func (r *Registry) Refresh(ctx context.Context) error {
	devices, err := r.driver.Devices(ctx)
	if err != nil {
		return wrapError(CodeUnknown, "refresh", err)
	}

	present := make(map[string]bool, len(devices))
	for _, d := range devices {
		present[d.ID] = true
		r.appear(d)
	}

	r.mu.Lock()
	var gone []string
	for _, id := range r.order {
		if !present[id] {
			gone = append(gone, id)
		}
	}
	r.mu.Unlock()

	for _, id := range gone {
		r.disappear(id)
	}
	return nil
}

// Watch applies hotplug changes until ctx is done. It returns immediately
// if the driver cannot report hotplug.
func (r *Registry) Watch(ctx context.Context) error {
	hp, ok := r.driver.(HotplugDriver)
	if !ok {
		r.logger.Debug("Driver does not support hotplug")
		return nil
	}

	changes := make(chan DeviceChange, 16)
	errCh := make(chan error, 1)
	go func() {
		errCh <- hp.Watch(ctx, changes)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		case ch := <-changes:
			if ch.Present {
				r.appear(ch.Device)
			} else {
				r.disappear(ch.Device.ID)
			}
		}
	}
}

func (r *Registry) appear(d Device) {
	r.mu.Lock()
	if _, known := r.devices[d.ID]; known {
		r.mu.Unlock()
		return
	}
	r.devices[d.ID] = d
	r.order = append(r.order, d.ID)
	r.publishLocked(d, StatusAppear)
	r.mu.Unlock()

	r.logger.Info("Device appeared", "device_id", d.ID, "name", d.Name, "position", d.Position)
}

func (r *Registry) disappear(id string) {
	r.mu.Lock()
	d, known := r.devices[id]
	if !known {
		r.mu.Unlock()
		return
	}
	delete(r.devices, id)
	r.order = slices.DeleteFunc(r.order, func(s string) bool { return s == id })
	owner := r.owners[id]
	r.publishLocked(d, StatusDisappear)
	r.mu.Unlock()

	r.logger.Info("Device disappeared", "device_id", id)
	if owner != nil {
		owner.fault(newError(CodeDeviceNotFound, "hotplug", "device %s disconnected", id))
	}
}

// publishLocked emits a status change. Holding r.mu keeps transitions for a
// device in the order they were applied.
func (r *Registry) publishLocked(d Device, s DeviceStatus) {
	r.status.Emit(DeviceStatusChanged{Device: d, Status: s})
}

// Devices returns the known devices in enumeration order.
func (r *Registry) Devices() []Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Device, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.devices[id])
	}
	return out
}

// Device looks up a device by id.
func (r *Registry) Device(id string) (Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[id]
	if !ok {
		return Device{}, newError(CodeDeviceNotFound, "device", "no device %q", id)
	}
	return d, nil
}

// Available reports whether the device exists and has no open input.
func (r *Registry) Available(id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.devices[id]; !ok {
		return false, newError(CodeDeviceNotFound, "available", "no device %q", id)
	}
	return r.owners[id] == nil, nil
}

// Subscribe registers handler for device status notifications.
func (r *Registry) Subscribe(handler func(Notification)) func() {
	return r.status.Subscribe(handler)
}

// SubscribeStatus registers fn for every device status transition, in order.
func (r *Registry) SubscribeStatus(fn func(DeviceStatusChanged)) func() {
	return On(r, fn)
}

// Open opens the device with the given id exclusively.
func (r *Registry) Open(ctx context.Context, id string) (*Input, error) {
	r.mu.Lock()
	d, ok := r.devices[id]
	if !ok {
		r.mu.Unlock()
		return nil, newError(CodeDeviceNotFound, "open", "no device %q", id)
	}
	if owner := r.owners[id]; owner != nil {
		r.mu.Unlock()
		return nil, newError(CodeDeviceBusy, "open", "device %q is owned by input %s", id, owner.ID())
	}
	in := newInput(r, d)
	r.owners[id] = in
	r.mu.Unlock()

	hw, err := r.driver.Open(ctx, id, inputListener{in})
	if err != nil {
		r.mu.Lock()
		delete(r.owners, id)
		r.mu.Unlock()
		if CodeOf(err) == CodeDeviceNotFound || CodeOf(err) == CodeDeviceBusy {
			return nil, err
		}
		return nil, wrapError(CodeUnknown, "open", err)
	}
	in.attach(hw)

	r.mu.Lock()
	r.publishLocked(d, StatusUnavailable)
	r.mu.Unlock()

	r.logger.Info("Device opened", "device_id", id, "input_id", in.ID())
	return in, nil
}

// OpenByPosition opens the first device, in enumeration order, matching pos and typ.
func (r *Registry) OpenByPosition(ctx context.Context, pos Position, typ DeviceType) (*Input, error) {
	r.mu.Lock()
	var match string
	for _, id := range r.order {
		d := r.devices[id]
		if d.Position == pos && d.Type == typ {
			match = id
			break
		}
	}
	r.mu.Unlock()

	if match == "" {
		return nil, newError(CodeDeviceNotFound, "open", "no %s %s device", pos, typ)
	}
	return r.Open(ctx, match)
}

// release drops ownership of in's device.
func (r *Registry) release(in *Input) {
	id := in.device.ID
	r.mu.Lock()
	if r.owners[id] != in {
		r.mu.Unlock()
		return
	}
	delete(r.owners, id)
	if d, present := r.devices[id]; present {
		r.publishLocked(d, StatusAvailable)
	}
	r.mu.Unlock()

	r.logger.Info("Device released", "device_id", id, "input_id", in.ID())
}

func (r *Registry) nextCaptureID() int32 {
	return r.captureSeq.Add(1)
}
