package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/smazurov/camcore/internal/camera"
	"github.com/smazurov/camcore/internal/logging"
	"github.com/spf13/cobra"
)

// deviceInfo is one row of the devices listing.
type deviceInfo struct {
	camera.Device
	Available    bool                 `json:"available"`
	Capabilities *camera.Capabilities `json:"capabilities,omitempty"`
}

// CreateDevicesCmd creates the devices command. backend is resolved when
// the command runs, after the root options are parsed.
func CreateDevicesCmd(backend func() Backend) *cobra.Command {
	var asJSON bool
	var withCaps bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List camera devices",
		Long: `Enumerates the cameras exposed by the configured backend. ` +
			`With --capabilities each available device is opened briefly to read what it supports.`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			// keep the listing readable
			logging.Initialize(logging.Config{Level: "warn", Format: "text"})
			logger := logging.GetLogger("devices")

			ctx, cancel := context.WithTimeout(c.Context(), timeout)
			defer cancel()

			drv, _, err := backend().Open(logging.GetLogger("hal"))
			if err != nil {
				return err
			}
			reg := camera.NewRegistry(drv, camera.WithLogger(logger))
			if err := reg.Refresh(ctx); err != nil {
				return err
			}

			infos, err := describeDevices(ctx, reg, withCaps)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(c.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(infos)
			}
			return printDevices(c.OutOrStdout(), infos)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	cmd.Flags().BoolVar(&withCaps, "capabilities", false, "Open each available device and include its capabilities")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Overall timeout")

	return cmd
}

func describeDevices(ctx context.Context, reg *camera.Registry, withCaps bool) ([]deviceInfo, error) {
	devices := reg.Devices()
	infos := make([]deviceInfo, 0, len(devices))
	for _, d := range devices {
		available, err := reg.Available(d.ID)
		if err != nil {
			return nil, err
		}
		info := deviceInfo{Device: d, Available: available}
		if withCaps && available {
			caps, err := readCapabilities(ctx, reg, d.ID)
			if err != nil {
				return nil, fmt.Errorf("device %s: %w", d.ID, err)
			}
			info.Capabilities = &caps
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func readCapabilities(ctx context.Context, reg *camera.Registry, id string) (camera.Capabilities, error) {
	in, err := reg.Open(ctx, id)
	if err != nil {
		return camera.Capabilities{}, err
	}
	defer func() { _ = in.Release(ctx) }()
	return in.Capabilities()
}

func printDevices(w io.Writer, infos []deviceInfo) error {
	if len(infos) == 0 {
		_, err := fmt.Fprintln(w, "No cameras found")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPOSITION\tTYPE\tCONNECTION\tAVAILABLE")
	for _, info := range infos {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%t\n",
			info.ID, info.Name, info.Position, info.Type, info.Connection, info.Available)
		if c := info.Capabilities; c != nil {
			fmt.Fprintf(tw, "\tzoom %.1f-%.1f, fps %.0f-%.0f, streams %d\t\t\t\t\n",
				c.ZoomRatio.Min, c.ZoomRatio.Max, c.FrameRate.Min, c.FrameRate.Max, c.MaxStreams)
			for _, fs := range c.Sizes {
				fmt.Fprintf(tw, "\t%s %v\t\t\t\t\n", fs.Format, fs.Sizes)
			}
		}
	}
	return tw.Flush()
}
