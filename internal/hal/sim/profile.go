package sim

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/smazurov/camcore/internal/camera"
)

// Profile describes one simulated camera.
type Profile struct {
	Device       camera.Device       `toml:"device"`
	Capabilities camera.Capabilities `toml:"capabilities"`
}

// ProfileFile is the on-disk layout of a profiles file.
type ProfileFile struct {
	Cameras []Profile `toml:"camera"`
}

// LoadProfiles reads simulated cameras from a TOML file.
func LoadProfiles(path string) ([]Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profiles: %w", err)
	}
	var file ProfileFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse profiles %s: %w", path, err)
	}
	seen := make(map[string]bool, len(file.Cameras))
	for i, p := range file.Cameras {
		if p.Device.ID == "" {
			return nil, fmt.Errorf("camera %d in %s has no id", i, path)
		}
		if seen[p.Device.ID] {
			return nil, fmt.Errorf("duplicate camera id %q in %s", p.Device.ID, path)
		}
		seen[p.Device.ID] = true
	}
	return file.Cameras, nil
}

// SaveProfiles writes profiles to path.
func SaveProfiles(path string, profiles []Profile) error {
	data, err := toml.Marshal(ProfileFile{Cameras: profiles})
	if err != nil {
		return fmt.Errorf("failed to marshal profiles: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write profiles: %w", err)
	}
	return nil
}

// DefaultProfiles returns a back and a front wide-angle camera.
func DefaultProfiles() []Profile {
	return []Profile{
		{
			Device: camera.Device{
				ID:       "sim-back-0",
				Name:     "Simulated back camera",
				Position: camera.PositionBack,
				Type:     camera.TypeWideAngle,
			},
			Capabilities: camera.Capabilities{
				PreviewFormats: []camera.Format{camera.FormatYUV420SP, camera.FormatRGBA8888},
				PhotoFormats:   []camera.Format{camera.FormatJPEG},
				VideoFormats:   []camera.Format{camera.FormatYUV420SP},
				Sizes: []camera.FormatSizes{
					{Format: camera.FormatYUV420SP, Sizes: []camera.Size{{Width: 1920, Height: 1080}, {Width: 1280, Height: 720}}},
					{Format: camera.FormatRGBA8888, Sizes: []camera.Size{{Width: 1280, Height: 720}}},
					{Format: camera.FormatJPEG, Sizes: []camera.Size{{Width: 4000, Height: 3000}, {Width: 1920, Height: 1080}}},
				},
				FlashModes:         []camera.FlashMode{camera.FlashClose, camera.FlashOpen, camera.FlashAuto, camera.FlashAlwaysOpen},
				ExposureModes:      []camera.ExposureMode{camera.ExposureContinuousAuto, camera.ExposureManual, camera.ExposureLocked},
				FocusModes:         []camera.FocusMode{camera.FocusContinuousAuto, camera.FocusAuto, camera.FocusManual, camera.FocusLocked},
				StabilizationModes: []camera.StabilizationMode{camera.StabilizationOff, camera.StabilizationStandard, camera.StabilizationAuto},
				MetadataTypes:      []camera.MetadataObjectType{camera.MetadataFace},
				ZoomRatio:          camera.Range{Min: 1, Max: 10},
				FrameRate:          camera.Range{Min: 15, Max: 60},
				ExposureBias:       camera.Range{Min: -4, Max: 4},
				Mirror:             false,
				MaxStreams:         3,
			},
		},
		{
			Device: camera.Device{
				ID:       "sim-front-0",
				Name:     "Simulated front camera",
				Position: camera.PositionFront,
				Type:     camera.TypeWideAngle,
			},
			Capabilities: camera.Capabilities{
				PreviewFormats: []camera.Format{camera.FormatYUV420SP},
				PhotoFormats:   []camera.Format{camera.FormatJPEG},
				VideoFormats:   []camera.Format{camera.FormatYUV420SP},
				Sizes: []camera.FormatSizes{
					{Format: camera.FormatYUV420SP, Sizes: []camera.Size{{Width: 1280, Height: 720}}},
					{Format: camera.FormatJPEG, Sizes: []camera.Size{{Width: 2592, Height: 1944}}},
				},
				FlashModes:         []camera.FlashMode{camera.FlashClose},
				ExposureModes:      []camera.ExposureMode{camera.ExposureContinuousAuto},
				FocusModes:         []camera.FocusMode{camera.FocusManual},
				StabilizationModes: []camera.StabilizationMode{camera.StabilizationOff},
				MetadataTypes:      []camera.MetadataObjectType{camera.MetadataFace},
				ZoomRatio:          camera.Range{Min: 1, Max: 2},
				FrameRate:          camera.Range{Min: 15, Max: 30},
				ExposureBias:       camera.Range{Min: -2, Max: 2},
				Mirror:             true,
				MaxStreams:         2,
			},
		},
	}
}
