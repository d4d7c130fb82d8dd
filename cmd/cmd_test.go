package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smazurov/camcore/internal/camera"
	"github.com/smazurov/camcore/internal/hal/sim"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newSimRegistry(t *testing.T) *camera.Registry {
	t.Helper()
	drv := sim.New(sim.DefaultProfiles(),
		sim.WithLogger(discardLogger()),
		sim.WithTiming(sim.Timing{
			FrameInterval: 5 * time.Millisecond,
			ConvergeDelay: 5 * time.Millisecond,
			ShutterDelay:  5 * time.Millisecond,
		}),
	)
	reg := camera.NewRegistry(drv, camera.WithLogger(discardLogger()))
	require.NoError(t, reg.Refresh(context.Background()))
	return reg
}

func simBackend() Backend { return Backend{Name: BackendSim} }

func TestBackendOpen(t *testing.T) {
	drv, simDrv, err := Backend{Name: BackendSim}.Open(discardLogger())
	require.NoError(t, err)
	assert.NotNil(t, drv)
	assert.NotNil(t, simDrv)

	_, _, err = Backend{Name: "gstreamer"}.Open(discardLogger())
	assert.ErrorContains(t, err, "unknown backend")
}

func TestLoadProfilesFallback(t *testing.T) {
	dir := t.TempDir()

	profiles, err := LoadProfiles(filepath.Join(dir, "missing.toml"), discardLogger())
	require.NoError(t, err)
	assert.Len(t, profiles, len(sim.DefaultProfiles()))

	path := filepath.Join(dir, "profiles.toml")
	require.NoError(t, sim.SaveProfiles(path, sim.DefaultProfiles()[:1]))
	profiles, err = LoadProfiles(path, discardLogger())
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Equal(t, "sim-back-0", profiles[0].Device.ID)
}

func TestDevicesCommandJSON(t *testing.T) {
	cmd := CreateDevicesCmd(simBackend)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--json", "--capabilities"})
	require.NoError(t, cmd.Execute())

	var infos []deviceInfo
	require.NoError(t, json.Unmarshal(out.Bytes(), &infos))
	require.Len(t, infos, 2)
	assert.Equal(t, "sim-back-0", infos[0].ID)
	assert.True(t, infos[0].Available)
	require.NotNil(t, infos[1].Capabilities)
	assert.Equal(t, 2, infos[1].Capabilities.MaxStreams)
}

func TestDevicesCommandTable(t *testing.T) {
	cmd := CreateDevicesCmd(simBackend)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), "AVAILABLE")
	assert.Contains(t, out.String(), "sim-front-0")
}

func TestSnapshotReleasesEverything(t *testing.T) {
	reg := newSimRegistry(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := snapshot(ctx, reg, "sim-back-0", "out.jpg", "", camera.PhotoSettings{}, discardLogger())
	require.NoError(t, err)
	assert.Positive(t, result.CaptureID)

	available, err := reg.Available("sim-back-0")
	require.NoError(t, err)
	assert.True(t, available, "device should be released after the snapshot")
}

func TestSnapshotAppliesPreset(t *testing.T) {
	reg := newSimRegistry(t)
	preset := filepath.Join(t.TempDir(), "preset.toml")
	require.NoError(t, os.WriteFile(preset, []byte("zoom_ratio = 3.0\nflash_mode = \"auto\"\n"), 0o644))

	in, err := reg.Open(context.Background(), "sim-back-0")
	require.NoError(t, err)
	controls, err := loadPreset(preset, in)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, controls.ZoomRatio, 1e-9)
	assert.Equal(t, camera.FlashAuto, controls.FlashMode)

	current, err := in.Controls()
	require.NoError(t, err)
	assert.Equal(t, current.FocusMode, controls.FocusMode, "fields missing from the preset keep their values")
	require.NoError(t, in.Release(context.Background()))

	_, err = snapshot(context.Background(), reg, "sim-back-0", "out.jpg", preset, camera.PhotoSettings{}, discardLogger())
	require.NoError(t, err)
}

func TestSnapshotRejectsInvalidPreset(t *testing.T) {
	reg := newSimRegistry(t)
	preset := filepath.Join(t.TempDir(), "preset.toml")
	// front camera zoom tops out at 2
	require.NoError(t, os.WriteFile(preset, []byte("zoom_ratio = 8.0\n"), 0o644))

	_, err := snapshot(context.Background(), reg, "sim-front-0", "out.jpg", preset, camera.PhotoSettings{}, discardLogger())
	require.Error(t, err)
	assert.Equal(t, camera.CodeUnsupportedParameter, camera.CodeOf(err))

	available, err := reg.Available("sim-front-0")
	require.NoError(t, err)
	assert.True(t, available)
}

func TestSnapshotUnknownDevice(t *testing.T) {
	reg := newSimRegistry(t)
	_, err := snapshot(context.Background(), reg, "nope", "out.jpg", "", camera.PhotoSettings{}, discardLogger())
	assert.Equal(t, camera.CodeDeviceNotFound, camera.CodeOf(err))
}
