package camera_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smazurov/camcore/internal/camera"
	"github.com/smazurov/camcore/internal/hal/sim"
)

// stallingDriver wraps a driver so that control writes block until the
// device is closed, then fail the way a closed device does.
type stallingDriver struct {
	camera.Driver
	entered chan struct{}
	closed  chan struct{}
	once    sync.Once
}

func (d *stallingDriver) Open(ctx context.Context, id string, l camera.DeviceListener) (camera.Hardware, error) {
	hw, err := d.Driver.Open(ctx, id, l)
	if err != nil {
		return nil, err
	}
	return &stallingHardware{Hardware: hw, d: d}, nil
}

type stallingHardware struct {
	camera.Hardware
	d *stallingDriver
}

func (h *stallingHardware) ApplyControls(_ context.Context, _ camera.Controls) error {
	h.d.entered <- struct{}{}
	<-h.d.closed
	return errors.New("device closed")
}

func (h *stallingHardware) Close() error {
	h.d.once.Do(func() { close(h.d.closed) })
	return h.Hardware.Close()
}

func TestInput_CapabilityQueries(t *testing.T) {
	reg, _ := newTestRegistry(t)
	in := openInput(t, reg, backID)

	formats, err := in.SupportedPhotoFormats()
	require.NoError(t, err)
	assert.Equal(t, []camera.Format{camera.FormatJPEG}, formats)

	sizes, err := in.SupportedSizes(camera.FormatJPEG)
	require.NoError(t, err)
	assert.Contains(t, sizes, camera.Size{Width: 4000, Height: 3000})

	ok, err := in.IsFocusModeSupported(camera.FocusLocked)
	require.NoError(t, err)
	assert.True(t, ok)

	zoom, err := in.ZoomRatioRange()
	require.NoError(t, err)
	assert.Equal(t, camera.Range{Min: 1, Max: 10}, zoom)

	// Snapshots are copies.
	caps, err := in.Capabilities()
	require.NoError(t, err)
	caps.FlashModes[0] = camera.FlashAlwaysOpen
	modes, err := in.SupportedFlashModes()
	require.NoError(t, err)
	assert.Equal(t, camera.FlashClose, modes[0])
}

func TestInput_UnsupportedFlashModeLeavesStateUnchanged(t *testing.T) {
	reg, _ := newTestRegistry(t)
	in := openInput(t, reg, frontID)
	ctx := context.Background()

	supported, err := in.IsFlashModeSupported(camera.FlashOpen)
	require.NoError(t, err)
	require.False(t, supported)

	before, err := in.FlashMode()
	require.NoError(t, err)

	err = in.SetFlashMode(ctx, camera.FlashOpen)
	requireCode(t, err, camera.CodeUnsupportedParameter)
	assert.True(t, errors.Is(err, camera.ErrUnsupportedParameter))

	after, err := in.FlashMode()
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestInput_ZoomRatio(t *testing.T) {
	reg, _ := newTestRegistry(t)
	in := openInput(t, reg, backID)
	ctx := context.Background()

	tests := []struct {
		name  string
		ratio float64
		ok    bool
	}{
		{"min", 1, true},
		{"inside", 2.5, true},
		{"max", 10, true},
		{"below", 0.5, false},
		{"above", 10.01, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prev, err := in.ZoomRatio()
			require.NoError(t, err)

			err = in.SetZoomRatio(ctx, tt.ratio)
			got, getErr := in.ZoomRatio()
			require.NoError(t, getErr)

			if tt.ok {
				require.NoError(t, err)
				assert.Equal(t, tt.ratio, got)
			} else {
				requireCode(t, err, camera.CodeUnsupportedParameter)
				assert.Equal(t, prev, got)
			}
		})
	}
}

func TestInput_Setters(t *testing.T) {
	reg, _ := newTestRegistry(t)
	in := openInput(t, reg, backID)
	ctx := context.Background()

	require.NoError(t, in.SetExposureMode(ctx, camera.ExposureManual))
	require.NoError(t, in.SetExposureBias(ctx, -1.5))
	require.NoError(t, in.SetExposurePoint(ctx, camera.Point{X: 0.1, Y: 0.9}))
	require.NoError(t, in.SetFocusMode(ctx, camera.FocusManual))
	require.NoError(t, in.SetFocusPoint(ctx, camera.Point{X: 0.2, Y: 0.2}))
	require.NoError(t, in.SetMinFrameRate(ctx, 24))
	require.NoError(t, in.SetMaxFrameRate(ctx, 30))

	c, err := in.Controls()
	require.NoError(t, err)
	assert.Equal(t, camera.ExposureManual, c.ExposureMode)
	assert.Equal(t, -1.5, c.ExposureBias)
	assert.Equal(t, camera.Point{X: 0.1, Y: 0.9}, c.ExposurePoint)
	assert.Equal(t, camera.FocusManual, c.FocusMode)
	assert.Equal(t, 24.0, c.MinFrameRate)
	assert.Equal(t, 30.0, c.MaxFrameRate)

	requireCode(t, in.SetExposureBias(ctx, 9), camera.CodeUnsupportedParameter)
	requireCode(t, in.SetFocusPoint(ctx, camera.Point{X: 1.5}), camera.CodeUnsupportedParameter)
	requireCode(t, in.SetMinFrameRate(ctx, 40), camera.CodeUnsupportedParameter)
	requireCode(t, in.SetMaxFrameRate(ctx, 120), camera.CodeUnsupportedParameter)
}

func TestInput_UpdateIsAllOrNothing(t *testing.T) {
	reg, _ := newTestRegistry(t)
	in := openInput(t, reg, backID)
	ctx := context.Background()

	before, err := in.Controls()
	require.NoError(t, err)

	err = in.Update(ctx, func(u *camera.ControlUpdate) error {
		u.SetZoomRatio(4)
		u.SetFlashMode(camera.FlashAuto)
		u.SetExposureBias(100)
		return nil
	})
	requireCode(t, err, camera.CodeUnsupportedParameter)

	after, err := in.Controls()
	require.NoError(t, err)
	assert.Equal(t, before, after)

	require.NoError(t, in.Update(ctx, func(u *camera.ControlUpdate) error {
		u.SetZoomRatio(4)
		u.SetFlashMode(camera.FlashAuto)
		return nil
	}))
	after, err = in.Controls()
	require.NoError(t, err)
	assert.Equal(t, 4.0, after.ZoomRatio)
	assert.Equal(t, camera.FlashAuto, after.FlashMode)

	callerErr := errors.New("changed my mind")
	err = in.Update(ctx, func(u *camera.ControlUpdate) error {
		u.SetZoomRatio(2)
		return callerErr
	})
	require.ErrorIs(t, err, callerErr)
	zoom, err := in.ZoomRatio()
	require.NoError(t, err)
	assert.Equal(t, 4.0, zoom)
}

func TestInput_ApplyControlsRoundTrip(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	in := openInput(t, reg, backID)
	require.NoError(t, in.SetZoomRatio(ctx, 3))
	require.NoError(t, in.SetFlashMode(ctx, camera.FlashAlwaysOpen))
	saved, err := in.Controls()
	require.NoError(t, err)
	require.NoError(t, in.Release(ctx))

	in = openInput(t, reg, backID)
	require.NoError(t, in.ApplyControls(ctx, saved))
	got, err := in.Controls()
	require.NoError(t, err)
	assert.Equal(t, saved, got)
}

func TestInput_ReleaseTwice(t *testing.T) {
	reg, _ := newTestRegistry(t)
	in := openInput(t, reg, backID)
	ctx := context.Background()

	require.NoError(t, in.Release(ctx))
	requireCode(t, in.Release(ctx), camera.CodeInvalidState)

	_, err := in.SupportedFlashModes()
	requireCode(t, err, camera.CodeInvalidState)
	requireCode(t, in.SetZoomRatio(ctx, 2), camera.CodeInvalidState)
}

func TestInput_ContinuousAutoFocusEvents(t *testing.T) {
	reg, _ := newTestRegistry(t)
	in := openInput(t, reg, backID)
	rec := record(t, in)

	eventually(t, func() bool {
		return len(eventsOf[camera.FocusStateChanged](rec)) >= 4
	}, "continuous auto focus should keep scanning")

	states := eventsOf[camera.FocusStateChanged](rec)
	assert.Equal(t, camera.FocusScan, states[0].State)
	assert.NotEqual(t, camera.FocusScan, states[1].State)

	eventually(t, func() bool {
		exp := eventsOf[camera.ExposureStateChanged](rec)
		return len(exp) >= 2 && exp[1].State == camera.ExposureConverged
	}, "auto exposure should converge")

	var last uint64
	for _, n := range rec.all() {
		assert.Greater(t, n.Seq, last)
		last = n.Seq
	}
}

func TestInput_FaultDoesNotReleaseHandle(t *testing.T) {
	reg, drv := newTestRegistry(t)
	in := openInput(t, reg, backID)
	rec := record(t, in)

	require.NoError(t, drv.InjectFault(backID, errors.New("sensor overheated")))

	eventually(t, func() bool { return len(eventsOf[camera.Fault](rec)) == 1 }, "fault event")
	f := eventsOf[camera.Fault](rec)[0]
	assert.Equal(t, camera.CodeUnknown, f.Code)
	assert.False(t, in.Released())
	require.NoError(t, in.SetZoomRatio(context.Background(), 2))
}

func TestInput_ReleaseDuringSetter(t *testing.T) {
	drv := &stallingDriver{
		Driver:  sim.New(sim.DefaultProfiles(), sim.WithTiming(fastTiming), sim.WithLogger(discardLogger())),
		entered: make(chan struct{}, 1),
		closed:  make(chan struct{}),
	}
	reg := camera.NewRegistry(drv, camera.WithLogger(discardLogger()))
	ctx := context.Background()
	require.NoError(t, reg.Refresh(ctx))
	in := openInput(t, reg, backID)

	errc := make(chan error, 1)
	go func() { errc <- in.SetZoomRatio(ctx, 2) }()

	select {
	case <-drv.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("setter never reached the hardware")
	}
	require.NoError(t, in.Release(ctx))

	select {
	case err := <-errc:
		requireCode(t, err, camera.CodeInvalidState)
	case <-time.After(2 * time.Second):
		t.Fatal("setter did not return after release")
	}
	available, err := reg.Available(backID)
	require.NoError(t, err)
	assert.True(t, available)
}
