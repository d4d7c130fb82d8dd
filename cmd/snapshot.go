package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/smazurov/camcore/internal/camera"
	"github.com/smazurov/camcore/internal/logging"
	"github.com/spf13/cobra"
)

// CreateSnapshotCmd creates the snapshot command.
func CreateSnapshotCmd(backend func() Backend) *cobra.Command {
	var controlsFile string
	var quality string
	var rotation int
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "snapshot [device-id] [output.jpg]",
		Short: "Capture a single photo",
		Long: `Opens the device, runs a preview and photo session, captures one photo to the output path ` +
			`and tears everything down again. A controls preset (TOML) can be applied before the session starts.`,
		Args: cobra.ExactArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			logger := logging.GetLogger("main").With("device_id", args[0])

			settings := camera.PhotoSettings{Rotation: camera.Rotation(rotation)}
			if err := settings.Quality.UnmarshalText([]byte(quality)); err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(c.Context(), timeout)
			defer cancel()

			b := backend()
			drv, _, err := b.Open(logging.GetLogger("hal"))
			if err != nil {
				return err
			}
			reg := camera.NewRegistry(drv, camera.WithLogger(logging.GetLogger("devices")))
			if err := reg.Refresh(ctx); err != nil {
				return err
			}

			result, err := snapshot(ctx, reg, args[0], args[1], controlsFile, settings, logger)
			if err != nil {
				return err
			}
			if result.Path == "" {
				fmt.Fprintf(c.OutOrStdout(), "capture %d done at %s (backend %s stores no image)\n",
					result.CaptureID, result.ShutterTime.Format(time.RFC3339Nano), b.Name)
				return nil
			}
			fmt.Fprintf(c.OutOrStdout(), "capture %d written to %s\n", result.CaptureID, result.Path)
			return nil
		},
	}

	cmd.Flags().StringVar(&controlsFile, "controls", "", "Controls preset (TOML) applied before capturing")
	cmd.Flags().StringVar(&quality, "quality", "high", "Photo quality (high, medium, low)")
	cmd.Flags().IntVar(&rotation, "rotation", 0, "Photo rotation in degrees (0, 90, 180, 270)")
	cmd.Flags().DurationVar(&timeout, "timeout", 15*time.Second, "Overall timeout")

	return cmd
}

// snapshot runs one capture and releases everything it created in reverse
// order, even on failure.
func snapshot(
	ctx context.Context,
	reg *camera.Registry,
	deviceID, outPath, controlsFile string,
	settings camera.PhotoSettings,
	logger *slog.Logger,
) (result camera.CaptureResult, err error) {
	var cleanup []func() error
	defer func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			if cerr := cleanup[i](); cerr != nil {
				logger.Warn("Teardown step failed", "error", cerr)
				err = errors.Join(err, cerr)
			}
		}
	}()
	// teardown must run even when ctx has expired
	teardownCtx := context.WithoutCancel(ctx)

	in, err := reg.Open(ctx, deviceID)
	if err != nil {
		return result, err
	}
	cleanup = append(cleanup, func() error { return in.Release(teardownCtx) })

	if controlsFile != "" {
		controls, err := loadPreset(controlsFile, in)
		if err != nil {
			return result, err
		}
		if err := in.ApplyControls(ctx, controls); err != nil {
			return result, fmt.Errorf("failed to apply %s: %w", controlsFile, err)
		}
		logger.Info("Applied controls preset", "path", controlsFile)
	}

	preview := reg.NewPreviewOutput("snapshot-preview")
	photo := reg.NewPhotoOutput(outPath)
	cleanup = append(cleanup,
		func() error { return preview.Release(teardownCtx) },
		func() error { return photo.Release(teardownCtx) },
	)

	session := reg.NewSession()
	cleanup = append(cleanup, func() error { return session.Release(teardownCtx) })

	steps := []func(context.Context) error{
		session.BeginConfig,
		func(ctx context.Context) error { return session.AddInput(ctx, in) },
		func(ctx context.Context) error { return session.AddOutput(ctx, preview) },
		func(ctx context.Context) error { return session.AddOutput(ctx, photo) },
		session.CommitConfig,
		session.Start,
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			return result, err
		}
	}
	cleanup = append(cleanup, func() error { return session.Stop(teardownCtx) })

	logger.Info("Session running, capturing", "output", outPath)
	return photo.Capture(ctx, &settings)
}

// loadPreset overlays a TOML controls file on the input's current controls,
// so a preset only needs the fields it changes.
func loadPreset(path string, in *camera.Input) (camera.Controls, error) {
	controls, err := in.Controls()
	if err != nil {
		return camera.Controls{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return camera.Controls{}, fmt.Errorf("failed to read controls preset: %w", err)
	}
	if err := toml.Unmarshal(data, &controls); err != nil {
		return camera.Controls{}, fmt.Errorf("failed to parse controls preset %s: %w", path, err)
	}
	return controls, nil
}
