package camera_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smazurov/camcore/internal/camera"
	"github.com/smazurov/camcore/internal/hal/sim"
)

func TestRegistry_DevicesInEnumerationOrder(t *testing.T) {
	reg, _ := newTestRegistry(t)

	devices := reg.Devices()
	require.Len(t, devices, 2)
	assert.Equal(t, backID, devices[0].ID)
	assert.Equal(t, frontID, devices[1].ID)

	d, err := reg.Device(frontID)
	require.NoError(t, err)
	assert.Equal(t, camera.PositionFront, d.Position)

	_, err = reg.Device("missing")
	requireCode(t, err, camera.CodeDeviceNotFound)
	assert.True(t, errors.Is(err, camera.ErrDeviceNotFound))
}

func TestRegistry_OpenIsExclusive(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	in, err := reg.Open(ctx, backID)
	require.NoError(t, err)

	_, err = reg.Open(ctx, backID)
	requireCode(t, err, camera.CodeDeviceBusy)

	available, err := reg.Available(backID)
	require.NoError(t, err)
	assert.False(t, available)

	require.NoError(t, in.Release(ctx))

	again, err := reg.Open(ctx, backID)
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

func TestRegistry_OpenUnknownDevice(t *testing.T) {
	reg, _ := newTestRegistry(t)
	_, err := reg.Open(context.Background(), "nope")
	requireCode(t, err, camera.CodeDeviceNotFound)
}

func TestRegistry_OpenByPosition(t *testing.T) {
	reg, drv := newTestRegistry(t)
	ctx := context.Background()

	extra := sim.DefaultProfiles()[1]
	extra.Device.ID = "sim-front-1"
	drv.Plug(extra)
	require.NoError(t, reg.Refresh(ctx))

	in := openInput(t, reg, frontID)
	require.NoError(t, in.Release(ctx))

	// First match in enumeration order wins.
	in, err := reg.OpenByPosition(ctx, camera.PositionFront, camera.TypeWideAngle)
	require.NoError(t, err)
	assert.Equal(t, frontID, in.Device().ID)
	require.NoError(t, in.Release(ctx))

	_, err = reg.OpenByPosition(ctx, camera.PositionBack, camera.TypeTelephoto)
	requireCode(t, err, camera.CodeDeviceNotFound)
}

func TestRegistry_StatusEventsInOrder(t *testing.T) {
	drv := sim.New(sim.DefaultProfiles(), sim.WithTiming(fastTiming), sim.WithLogger(discardLogger()))
	reg := camera.NewRegistry(drv, camera.WithLogger(discardLogger()))
	ctx := context.Background()

	var got []camera.DeviceStatusChanged
	done := make(chan struct{}, 16)
	unsub := reg.SubscribeStatus(func(e camera.DeviceStatusChanged) {
		got = append(got, e)
		done <- struct{}{}
	})
	defer unsub()

	require.NoError(t, reg.Refresh(ctx))
	in, err := reg.Open(ctx, backID)
	require.NoError(t, err)
	require.NoError(t, in.Release(ctx))

	for range 4 {
		<-done
	}
	require.Len(t, got, 4)
	assert.Equal(t, camera.StatusAppear, got[0].Status)
	assert.Equal(t, camera.StatusAppear, got[1].Status)
	assert.Equal(t, backID, got[2].Device.ID)
	assert.Equal(t, camera.StatusUnavailable, got[2].Status)
	assert.Equal(t, camera.StatusAvailable, got[3].Status)
}

func TestRegistry_WatchAppliesHotplug(t *testing.T) {
	reg, drv := newTestRegistry(t)
	rec := record(t, reg)

	ctx, cancel := context.WithCancel(context.Background())
	watchDone := make(chan error, 1)
	go func() { watchDone <- reg.Watch(ctx) }()

	eventually(t, drv.Watching, "watch should register with the driver")

	drv.Plug(sim.Profile{Device: camera.Device{ID: "usb-0", Connection: camera.ConnectionUSB}})
	eventually(t, func() bool {
		_, err := reg.Device("usb-0")
		return err == nil
	}, "plugged device should appear")

	drv.Unplug("usb-0")
	eventually(t, func() bool {
		_, err := reg.Device("usb-0")
		return camera.CodeOf(err) == camera.CodeDeviceNotFound
	}, "unplugged device should disappear")

	eventually(t, func() bool {
		statuses := eventsOf[camera.DeviceStatusChanged](rec)
		return len(statuses) >= 2 && statuses[len(statuses)-1].Status == camera.StatusDisappear
	}, "disappear event")

	cancel()
	require.NoError(t, <-watchDone)
}

func TestRegistry_RefreshDropsVanishedDevices(t *testing.T) {
	reg, drv := newTestRegistry(t)
	in := openInput(t, reg, frontID)
	rec := record(t, in)

	drv.SetProfiles(sim.DefaultProfiles()[:1])
	require.NoError(t, reg.Refresh(context.Background()))

	assert.Len(t, reg.Devices(), 1)
	eventually(t, func() bool {
		faults := eventsOf[camera.Fault](rec)
		return len(faults) == 1 && faults[0].Code == camera.CodeDeviceNotFound
	}, "open input should get a fault")
}
