package sim

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smazurov/camcore/internal/camera"
)

var fastTiming = Timing{
	FrameInterval: 2 * time.Millisecond,
	ConvergeDelay: 2 * time.Millisecond,
	ShutterDelay:  2 * time.Millisecond,
}

func newTestDriver(profiles ...Profile) *Driver {
	if len(profiles) == 0 {
		profiles = DefaultProfiles()
	}
	return New(profiles,
		WithTiming(fastTiming),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
}

// recorder implements both listener interfaces.
type recorder struct {
	mu       sync.Mutex
	focus    []camera.FocusState
	exposure []camera.ExposureState
	frames   int
	captures []string
	objects  int
	faults   []error
}

func (r *recorder) FocusStateChanged(s camera.FocusState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.focus = append(r.focus, s)
}

func (r *recorder) ExposureStateChanged(s camera.ExposureState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exposure = append(r.exposure, s)
}

func (r *recorder) Fault(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.faults = append(r.faults, err)
}

func (r *recorder) FrameStarted() {}

func (r *recorder) FrameEnded(frames int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = frames
}

func (r *recorder) CaptureStarted(int32)          { r.capture("start") }
func (r *recorder) FrameShutter(int32, time.Time) { r.capture("shutter") }
func (r *recorder) CaptureEnded(int32, int)       { r.capture("end") }
func (r *recorder) MetadataObjects(objects []camera.MetadataObject) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.objects += len(objects)
}

func (r *recorder) capture(step string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.captures = append(r.captures, step)
}

func (r *recorder) snapshot() recorder {
	r.mu.Lock()
	defer r.mu.Unlock()
	return recorder{
		focus:    append([]camera.FocusState(nil), r.focus...),
		exposure: append([]camera.ExposureState(nil), r.exposure...),
		frames:   r.frames,
		captures: append([]string(nil), r.captures...),
		objects:  r.objects,
		faults:   append([]error(nil), r.faults...),
	}
}

func TestDevicesInProfileOrder(t *testing.T) {
	d := newTestDriver()
	devices, err := d.Devices(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, "sim-back-0", devices[0].ID)
	assert.Equal(t, "sim-front-0", devices[1].ID)
}

func TestOpenErrors(t *testing.T) {
	d := newTestDriver()
	ctx := context.Background()

	_, err := d.Open(ctx, "missing", &recorder{})
	assert.Equal(t, camera.CodeDeviceNotFound, camera.CodeOf(err))

	hw, err := d.Open(ctx, "sim-back-0", &recorder{})
	require.NoError(t, err)
	_, err = d.Open(ctx, "sim-back-0", &recorder{})
	assert.Equal(t, camera.CodeDeviceBusy, camera.CodeOf(err))

	require.NoError(t, hw.Close())
	hw, err = d.Open(ctx, "sim-back-0", &recorder{})
	require.NoError(t, err, "closing frees the device")
	require.NoError(t, hw.Close())
}

func TestAutoFocusAndExposureLoops(t *testing.T) {
	d := newTestDriver()
	rec := &recorder{}
	hw, err := d.Open(context.Background(), "sim-back-0", rec)
	require.NoError(t, err)
	defer hw.Close()

	require.Eventually(t, func() bool {
		s := rec.snapshot()
		return len(s.focus) >= 2 && len(s.exposure) >= 2
	}, time.Second, 5*time.Millisecond)

	s := rec.snapshot()
	assert.Equal(t, camera.FocusScan, s.focus[0])
	assert.Equal(t, camera.ExposureScan, s.exposure[0])
	assert.Equal(t, camera.ExposureConverged, s.exposure[1])
}

func TestManualFocusStopsLoop(t *testing.T) {
	d := newTestDriver()
	rec := &recorder{}
	hw, err := d.Open(context.Background(), "sim-back-0", rec)
	require.NoError(t, err)
	defer hw.Close()

	require.NoError(t, hw.ApplyControls(context.Background(), camera.Controls{
		FocusMode:    camera.FocusManual,
		ExposureMode: camera.ExposureManual,
	}))
	time.Sleep(10 * time.Millisecond)
	before := rec.snapshot()
	time.Sleep(30 * time.Millisecond)
	after := rec.snapshot()
	assert.Equal(t, len(before.focus), len(after.focus))
	assert.Equal(t, len(before.exposure), len(after.exposure))
}

func TestPreviewStreamFramesAndPause(t *testing.T) {
	d := newTestDriver()
	hw, err := d.Open(context.Background(), "sim-back-0", &recorder{})
	require.NoError(t, err)
	defer hw.Close()

	rec := &recorder{}
	s, err := hw.OpenStream(context.Background(), camera.StreamConfig{Kind: camera.KindPreview}, rec)
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))

	require.Eventually(t, func() bool { return rec.snapshot().frames >= 3 }, time.Second, time.Millisecond)

	require.NoError(t, s.Pause(context.Background()))
	time.Sleep(5 * time.Millisecond)
	paused := rec.snapshot().frames
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, paused, rec.snapshot().frames, "no frames while paused")

	require.NoError(t, s.Resume(context.Background()))
	require.Eventually(t, func() bool { return rec.snapshot().frames > paused }, time.Second, time.Millisecond)

	require.NoError(t, s.Stop(context.Background()))
	assert.ErrorIs(t, s.Pause(context.Background()), errNotStarted)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}

func TestPhotoCapture(t *testing.T) {
	d := newTestDriver()
	hw, err := d.Open(context.Background(), "sim-back-0", &recorder{})
	require.NoError(t, err)
	defer hw.Close()

	rec := &recorder{}
	s, err := hw.OpenStream(context.Background(), camera.StreamConfig{Kind: camera.KindPhoto}, rec)
	require.NoError(t, err)

	_, err = s.Capture(context.Background(), 1, camera.PhotoSettings{})
	assert.ErrorIs(t, err, errNotStarted)

	require.NoError(t, s.Start(context.Background()))
	result, err := s.Capture(context.Background(), 7, camera.PhotoSettings{})
	require.NoError(t, err)
	assert.Equal(t, int32(7), result.CaptureID)
	assert.Equal(t, 1, result.Frames)
	assert.False(t, result.ShutterTime.IsZero())
	assert.Equal(t, []string{"start", "shutter", "end"}, rec.snapshot().captures)
}

func TestCaptureOnPreviewStreamFails(t *testing.T) {
	d := newTestDriver()
	hw, err := d.Open(context.Background(), "sim-back-0", &recorder{})
	require.NoError(t, err)
	defer hw.Close()

	s, err := hw.OpenStream(context.Background(), camera.StreamConfig{Kind: camera.KindPreview}, &recorder{})
	require.NoError(t, err)
	_, err = s.Capture(context.Background(), 1, camera.PhotoSettings{})
	assert.ErrorContains(t, err, "capture on preview stream")
}

func TestMetadataStreamDetectsFaces(t *testing.T) {
	d := newTestDriver()
	hw, err := d.Open(context.Background(), "sim-back-0", &recorder{})
	require.NoError(t, err)
	defer hw.Close()

	rec := &recorder{}
	s, err := hw.OpenStream(context.Background(), camera.StreamConfig{Kind: camera.KindMetadata}, rec)
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, rec.snapshot().objects, "no types requested")

	require.NoError(t, s.SetMetadataTypes(context.Background(), []camera.MetadataObjectType{camera.MetadataFace}))
	require.Eventually(t, func() bool { return rec.snapshot().objects > 0 }, time.Second, time.Millisecond)
	require.NoError(t, s.Close())
}

func TestFailStreamStartAndFaultInjection(t *testing.T) {
	d := newTestDriver()
	devRec := &recorder{}
	hw, err := d.Open(context.Background(), "sim-back-0", devRec)
	require.NoError(t, err)
	defer hw.Close()

	boom := errors.New("boom")
	d.FailStreamStart(camera.KindVideo, boom)
	video, err := hw.OpenStream(context.Background(), camera.StreamConfig{Kind: camera.KindVideo}, &recorder{})
	require.NoError(t, err)
	assert.ErrorIs(t, video.Start(context.Background()), boom)
	d.FailStreamStart(camera.KindVideo, nil)
	require.NoError(t, video.Start(context.Background()))

	streamRec := &recorder{}
	_, err = hw.OpenStream(context.Background(), camera.StreamConfig{Kind: camera.KindPreview}, streamRec)
	require.NoError(t, err)
	require.NoError(t, d.InjectStreamFault("sim-back-0", camera.KindPreview, boom))
	require.NoError(t, d.InjectFault("sim-back-0", boom))

	assert.Equal(t, []error{boom}, streamRec.snapshot().faults)
	assert.Equal(t, []error{boom}, devRec.snapshot().faults)
	assert.Error(t, d.InjectFault("sim-front-0", boom), "front camera is not open")
}

func TestClosedHardwareRejectsCalls(t *testing.T) {
	d := newTestDriver()
	hw, err := d.Open(context.Background(), "sim-back-0", &recorder{})
	require.NoError(t, err)
	s, err := hw.OpenStream(context.Background(), camera.StreamConfig{Kind: camera.KindPreview}, &recorder{})
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))

	require.NoError(t, hw.Close())
	require.NoError(t, hw.Close())
	assert.ErrorIs(t, hw.ApplyControls(context.Background(), camera.Controls{}), errClosed)
	_, err = hw.OpenStream(context.Background(), camera.StreamConfig{Kind: camera.KindPreview}, &recorder{})
	assert.ErrorIs(t, err, errClosed)
	assert.ErrorIs(t, s.Start(context.Background()), errClosed)
}

func TestHotplugWatch(t *testing.T) {
	d := newTestDriver()
	ctx, cancel := context.WithCancel(context.Background())
	changes := make(chan camera.DeviceChange, 8)
	done := make(chan error, 1)
	go func() { done <- d.Watch(ctx, changes) }()
	require.Eventually(t, d.Watching, time.Second, time.Millisecond)

	extra := DefaultProfiles()[0]
	extra.Device.ID = "sim-usb-1"
	d.Plug(extra)
	d.Plug(extra)
	d.Unplug("sim-front-0")
	d.Unplug("missing")

	got := []camera.DeviceChange{<-changes, <-changes}
	assert.Equal(t, "sim-usb-1", got[0].Device.ID)
	assert.True(t, got[0].Present)
	assert.Equal(t, "sim-front-0", got[1].Device.ID)
	assert.False(t, got[1].Present)
	assert.Empty(t, changes, "duplicate plug and unknown unplug are ignored")

	devices, err := d.Devices(context.Background())
	require.NoError(t, err)
	assert.Len(t, devices, 2)

	cancel()
	require.NoError(t, <-done)
	assert.False(t, d.Watching())
}

func TestSetProfilesReportsRemovedThenAdded(t *testing.T) {
	d := newTestDriver()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changes := make(chan camera.DeviceChange, 8)
	go d.Watch(ctx, changes)
	require.Eventually(t, d.Watching, time.Second, time.Millisecond)

	next := DefaultProfiles()[:1]
	added := DefaultProfiles()[1]
	added.Device.ID = "sim-front-1"
	next = append(next, added)
	d.SetProfiles(next)

	first, second := <-changes, <-changes
	assert.Equal(t, camera.DeviceChange{Device: DefaultProfiles()[1].Device, Present: false}, first)
	assert.Equal(t, "sim-front-1", second.Device.ID)
	assert.True(t, second.Present)
}

func TestProfilesRoundTripAndValidation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cameras.toml")
	require.NoError(t, SaveProfiles(path, DefaultProfiles()))

	loaded, err := LoadProfiles(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultProfiles(), loaded)

	dup := filepath.Join(dir, "dup.toml")
	require.NoError(t, os.WriteFile(dup, []byte("[[camera]]\n[camera.device]\nid = \"a\"\n[[camera]]\n[camera.device]\nid = \"a\"\n"), 0o644))
	_, err = LoadProfiles(dup)
	assert.ErrorContains(t, err, "duplicate camera id")

	_, err = LoadProfiles(filepath.Join(dir, "missing.toml"))
	assert.Error(t, err)
}
