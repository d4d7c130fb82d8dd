package pipelines_test

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smazurov/camcore/internal/camera"
	"github.com/smazurov/camcore/internal/hal/sim"
	"github.com/smazurov/camcore/internal/pipelines"
	"github.com/smazurov/camcore/internal/pipelines/store"
)

const (
	backID  = "sim-back-0"
	frontID = "sim-front-0"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	reg     *camera.Registry
	drv     *sim.Driver
	store   pipelines.Store
	path    string
	service *pipelines.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	drv := sim.New(sim.DefaultProfiles(), sim.WithTiming(sim.Timing{
		FrameInterval: 5 * time.Millisecond,
		ConvergeDelay: 10 * time.Millisecond,
		ShutterDelay:  5 * time.Millisecond,
	}), sim.WithLogger(discardLogger()))
	reg := camera.NewRegistry(drv, camera.WithLogger(discardLogger()))
	require.NoError(t, reg.Refresh(context.Background()))

	path := filepath.Join(t.TempDir(), "pipelines.toml")
	st := store.NewTOML(path)
	svc := pipelines.NewService(reg, st, pipelines.WithLogger(discardLogger()))
	t.Cleanup(func() { _ = svc.Close(context.Background()) })
	return &fixture{reg: reg, drv: drv, store: st, path: path, service: svc}
}

func backSpec(id string) pipelines.PipelineSpec {
	return pipelines.PipelineSpec{
		ID:     id,
		Device: backID,
		Outputs: []pipelines.OutputSpec{
			{Kind: "preview", Surface: "preview"},
			{Kind: "photo", Surface: "photos/{id}.jpg", Format: "jpeg", Resolution: "1920x1080"},
		},
	}
}

func requirePipelineCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, code, pipelines.CodeOf(err), "error: %v", err)
}

func TestCreatePipeline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.service.Create(ctx, backSpec("garden"))
	require.NoError(t, err)
	assert.Equal(t, "garden", p.Name, "name defaults to id")
	assert.Equal(t, camera.StateConfigured, p.State)
	assert.True(t, p.Available)
	require.Len(t, p.Outputs, 2)
	assert.Equal(t, camera.KindPhoto, p.Outputs[1].Kind)
	require.NotNil(t, p.Controls, "device defaults are recorded")

	_, ok := f.store.GetPipeline("garden")
	assert.True(t, ok)

	available, err := f.reg.Available(backID)
	require.NoError(t, err)
	assert.False(t, available, "pipeline holds the device")
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		spec pipelines.PipelineSpec
	}{
		{"empty id", pipelines.PipelineSpec{Device: backID, Outputs: []pipelines.OutputSpec{{Kind: "preview"}}}},
		{"bad id", pipelines.PipelineSpec{ID: "a/b", Device: backID, Outputs: []pipelines.OutputSpec{{Kind: "preview"}}}},
		{"no device", pipelines.PipelineSpec{ID: "x", Outputs: []pipelines.OutputSpec{{Kind: "preview"}}}},
		{"no outputs", pipelines.PipelineSpec{ID: "x", Device: backID}},
		{"bad kind", pipelines.PipelineSpec{ID: "x", Device: backID, Outputs: []pipelines.OutputSpec{{Kind: "hologram"}}}},
		{"bad resolution", pipelines.PipelineSpec{ID: "x", Device: backID, Outputs: []pipelines.OutputSpec{{Kind: "preview", Resolution: "big"}}}},
		{"two photos", pipelines.PipelineSpec{ID: "x", Device: backID, Outputs: []pipelines.OutputSpec{{Kind: "photo"}, {Kind: "photo"}}}},
		{"stabilized preview", pipelines.PipelineSpec{ID: "x", Device: backID, Outputs: []pipelines.OutputSpec{{Kind: "preview", Stabilization: "standard"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.Create(ctx, tt.spec)
			requirePipelineCode(t, err, pipelines.ErrCodeInvalidParams)
		})
	}
}

func TestCreateDuplicate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Create(ctx, backSpec("dup"))
	require.NoError(t, err)

	spec := backSpec("dup")
	spec.Device = frontID
	_, err = f.service.Create(ctx, spec)
	requirePipelineCode(t, err, pipelines.ErrCodePipelineExists)
}

func TestCreateUnsupportedConfiguration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	spec := backSpec("front")
	spec.Device = frontID // front camera has no 1920x1080 photo size
	_, err := f.service.Create(ctx, spec)
	requirePipelineCode(t, err, pipelines.ErrCodeCameraError)
	assert.Equal(t, camera.CodeInvalidConfiguration, camera.CodeOf(err))

	_, err = f.service.Get(ctx, "front")
	requirePipelineCode(t, err, pipelines.ErrCodePipelineNotFound)

	available, err := f.reg.Available(frontID)
	require.NoError(t, err)
	assert.True(t, available, "failed create releases the device")
}

func TestCreateBusyDevice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Create(ctx, backSpec("first"))
	require.NoError(t, err)

	_, err = f.service.Create(ctx, backSpec("second"))
	requirePipelineCode(t, err, pipelines.ErrCodeCameraError)
	assert.Equal(t, camera.CodeDeviceBusy, camera.CodeOf(err))
}

func TestStartCaptureStop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Create(ctx, backSpec("cam"))
	require.NoError(t, err)

	_, err = f.service.Capture(ctx, "cam", camera.PhotoSettings{})
	requirePipelineCode(t, err, pipelines.ErrCodeCameraError)
	assert.Equal(t, camera.CodeInvalidState, camera.CodeOf(err), "capture needs a running pipeline")

	p, err := f.service.Start(ctx, "cam")
	require.NoError(t, err)
	assert.Equal(t, camera.StateRunning, p.State)

	_, err = f.service.Start(ctx, "cam")
	require.NoError(t, err, "start is idempotent")

	first, err := f.service.Capture(ctx, "cam", camera.PhotoSettings{Rotation: camera.Rotation90})
	require.NoError(t, err)
	second, err := f.service.Capture(ctx, "cam", camera.PhotoSettings{})
	require.NoError(t, err)
	assert.Greater(t, second.CaptureID, first.CaptureID)

	p, err = f.service.Stop(ctx, "cam")
	require.NoError(t, err)
	assert.Equal(t, camera.StateConfigured, p.State)

	_, err = f.service.Stop(ctx, "cam")
	requirePipelineCode(t, err, pipelines.ErrCodeCameraError)
	assert.Equal(t, camera.CodeInvalidState, camera.CodeOf(err))
}

func TestCaptureWithoutPhotoOutput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	spec := backSpec("preview-only")
	spec.Outputs = spec.Outputs[:1]
	_, err := f.service.Create(ctx, spec)
	require.NoError(t, err)

	_, err = f.service.Capture(ctx, "preview-only", camera.PhotoSettings{})
	requirePipelineCode(t, err, pipelines.ErrCodeInvalidParams)
}

func TestVideoPipelineRecords(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	spec := pipelines.PipelineSpec{
		ID:     "recorder",
		Device: backID,
		Outputs: []pipelines.OutputSpec{
			{Kind: "video", Surface: "clip.mp4", Stabilization: "standard"},
			{Kind: "metadata", ObjectTypes: []string{"face"}},
		},
	}
	_, err := f.service.Create(ctx, spec)
	require.NoError(t, err)

	p, err := f.service.Start(ctx, "recorder")
	require.NoError(t, err)
	assert.True(t, p.Recording)

	p, err = f.service.Stop(ctx, "recorder")
	require.NoError(t, err)
	assert.False(t, p.Recording)
}

func TestUpdateControls(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Create(ctx, backSpec("ctl"))
	require.NoError(t, err)

	zoom := 3.0
	flash := camera.FlashAuto
	p, err := f.service.UpdateControls(ctx, "ctl", pipelines.ControlsPatch{ZoomRatio: &zoom, FlashMode: &flash})
	require.NoError(t, err)
	require.NotNil(t, p.Controls)
	assert.Equal(t, 3.0, p.Controls.ZoomRatio)
	assert.Equal(t, camera.FlashAuto, p.Controls.FlashMode)

	stored, _ := f.store.GetPipeline("ctl")
	require.NotNil(t, stored.Controls)
	assert.Equal(t, 3.0, stored.Controls.ZoomRatio)

	// all-or-nothing: a bad field leaves the good one unapplied
	zoom = 2
	tooFar := 120.0
	_, err = f.service.UpdateControls(ctx, "ctl", pipelines.ControlsPatch{ZoomRatio: &zoom, MaxFrameRate: &tooFar})
	requirePipelineCode(t, err, pipelines.ErrCodeCameraError)
	assert.Equal(t, camera.CodeUnsupportedParameter, camera.CodeOf(err))

	p, err = f.service.Get(ctx, "ctl")
	require.NoError(t, err)
	assert.Equal(t, 3.0, p.Controls.ZoomRatio)
}

func TestDeletePipeline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Create(ctx, backSpec("gone"))
	require.NoError(t, err)
	_, err = f.service.Start(ctx, "gone")
	require.NoError(t, err)

	require.NoError(t, f.service.Delete(ctx, "gone"))

	_, err = f.service.Get(ctx, "gone")
	requirePipelineCode(t, err, pipelines.ErrCodePipelineNotFound)
	_, ok := f.store.GetPipeline("gone")
	assert.False(t, ok)

	available, err := f.reg.Available(backID)
	require.NoError(t, err)
	assert.True(t, available)

	requirePipelineCode(t, f.service.Delete(ctx, "gone"), pipelines.ErrCodePipelineNotFound)
}

func TestListOrdered(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b := backSpec("b")
	_, err := f.service.Create(ctx, b)
	require.NoError(t, err)
	a := pipelines.PipelineSpec{ID: "a", Device: frontID, Outputs: []pipelines.OutputSpec{{Kind: "preview"}}}
	_, err = f.service.Create(ctx, a)
	require.NoError(t, err)

	list, err := f.service.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, "b", list[1].ID)
}

func TestLoadFromStore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	auto := backSpec("auto")
	auto.AutoStart = true
	require.NoError(t, f.store.AddPipeline(auto))
	require.NoError(t, f.store.AddPipeline(pipelines.PipelineSpec{
		ID: "absent", Device: "sim-side-9", Outputs: []pipelines.OutputSpec{{Kind: "preview"}},
	}))
	require.NoError(t, f.store.AddPipeline(pipelines.PipelineSpec{ID: "broken", Device: backID}))

	svc := pipelines.NewService(f.reg, store.NewTOML(f.path), pipelines.WithLogger(discardLogger()))
	t.Cleanup(func() { _ = svc.Close(context.Background()) })
	require.NoError(t, svc.LoadFromStore(ctx))

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2, "invalid specs are skipped")

	assert.Equal(t, "absent", list[0].ID)
	assert.False(t, list[0].Available)
	assert.NotEmpty(t, list[0].LastError)

	assert.Equal(t, "auto", list[1].ID)
	assert.Equal(t, camera.StateRunning, list[1].State)

	_, err = svc.Start(ctx, "absent")
	requirePipelineCode(t, err, pipelines.ErrCodeCameraError)
	assert.Equal(t, camera.CodeDeviceNotFound, camera.CodeOf(err))
}

func TestDeviceLossAndReturn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	spec := backSpec("hotplug")
	spec.AutoStart = true
	p, err := f.service.Create(ctx, spec)
	require.NoError(t, err)
	require.Equal(t, camera.StateRunning, p.State)

	profile := sim.DefaultProfiles()[0]
	f.drv.Unplug(backID)
	require.NoError(t, f.reg.Refresh(ctx))

	require.Eventually(t, func() bool {
		p, err := f.service.Get(ctx, "hotplug")
		return err == nil && !p.Available && p.LastError != ""
	}, 2*time.Second, 10*time.Millisecond)

	f.drv.Plug(profile)
	require.NoError(t, f.reg.Refresh(ctx))

	require.Eventually(t, func() bool {
		p, err := f.service.Get(ctx, "hotplug")
		return err == nil && p.State == camera.StateRunning
	}, 2*time.Second, 10*time.Millisecond)
}

func TestUnknownPipeline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Start(ctx, "nope")
	requirePipelineCode(t, err, pipelines.ErrCodePipelineNotFound)
	_, err = f.service.Stop(ctx, "nope")
	requirePipelineCode(t, err, pipelines.ErrCodePipelineNotFound)
	_, err = f.service.Capture(ctx, "nope", camera.PhotoSettings{})
	requirePipelineCode(t, err, pipelines.ErrCodePipelineNotFound)
	_, err = f.service.UpdateControls(ctx, "nope", pipelines.ControlsPatch{})
	requirePipelineCode(t, err, pipelines.ErrCodePipelineNotFound)
}
