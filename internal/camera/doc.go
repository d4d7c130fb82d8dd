// Package camera provides the capture-session coordination core.
//
// The package offers four kinds of objects, all created from a Registry:
//
// Registry enumerates devices from a Driver:
//   - Device lookup and availability tracking (APPEAR, DISAPPEAR, AVAILABLE, UNAVAILABLE)
//   - Exclusive Open by id or by position and type
//   - Hotplug reconciliation via Watch
//
// Input is an exclusive handle on one device:
//   - Capability queries answered from a snapshot taken at open
//   - Validated control setters and batched Update
//   - Focus and exposure state events from the hardware loop
//
// Outputs are PreviewOutput, PhotoOutput, VideoOutput and MetadataOutput.
//
// Session moves through Idle, Configuring, Configured and Running, and
// ends Released. Configuration calls are applied one at a time in the order
// they were submitted.
//
// Example usage:
//
//	reg := camera.NewRegistry(driver)
//	_ = reg.Refresh(ctx)
//	in, _ := reg.OpenByPosition(ctx, camera.PositionBack, camera.TypeWideAngle)
//	preview := reg.NewPreviewOutput("surface-1")
//	photo := reg.NewPhotoOutput("/tmp/photo.jpg")
//
//	s := reg.NewSession()
//	_ = s.BeginConfig(ctx)
//	_ = s.AddInput(ctx, in)
//	_ = s.AddOutput(ctx, preview)
//	_ = s.AddOutput(ctx, photo)
//	_ = s.CommitConfig(ctx)
//	_ = s.Start(ctx)
//	res, _ := photo.Capture(ctx, &camera.PhotoSettings{Quality: camera.QualityHigh})
//
// Every object publishes its events on the registry's bus; use Subscribe
// or the typed On helper to observe them.
package camera
