package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/smazurov/camcore/internal/camera"
	"github.com/smazurov/camcore/internal/hal/sim"
	"github.com/smazurov/camcore/internal/hal/v4l2"
)

// Backend names accepted by --backend.
const (
	BackendSim  = "sim"
	BackendV4L2 = "v4l2"
)

// Backend selects and configures the camera driver.
type Backend struct {
	Name string
	// Profiles is the sim profiles file. The built-in cameras are used when
	// it is empty or missing.
	Profiles string
	Format   v4l2.Format
}

// Open builds the configured driver. sim is non-nil only for the sim backend
// so callers can hot-reload its profiles.
func (b Backend) Open(logger *slog.Logger) (drv camera.Driver, simDrv *sim.Driver, err error) {
	switch b.Name {
	case "", BackendSim:
		profiles, err := LoadProfiles(b.Profiles, logger)
		if err != nil {
			return nil, nil, err
		}
		d := sim.New(profiles, sim.WithLogger(logger))
		return d, d, nil
	case BackendV4L2:
		d, err := v4l2.New(v4l2.WithFormat(b.Format), v4l2.WithLogger(logger))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open v4l2 backend: %w", err)
		}
		return d, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend %q (want %s or %s)", b.Name, BackendSim, BackendV4L2)
	}
}

// LoadProfiles reads sim profiles from path, falling back to
// sim.DefaultProfiles when path is empty or does not exist.
func LoadProfiles(path string, logger *slog.Logger) ([]sim.Profile, error) {
	if path == "" {
		return sim.DefaultProfiles(), nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		logger.Info("Profiles file not found, using built-in cameras", "path", path)
		return sim.DefaultProfiles(), nil
	}
	return sim.LoadProfiles(path)
}
