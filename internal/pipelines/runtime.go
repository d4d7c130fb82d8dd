package pipelines

import (
	"context"
	"errors"
	"fmt"

	"github.com/smazurov/camcore/internal/camera"
)

// runtime is the live camera objects backing a pipeline.
type runtime struct {
	input    *camera.Input
	session  *camera.Session
	outputs  []camera.Output
	photo    *camera.PhotoOutput
	video    *camera.VideoOutput
	metadata *camera.MetadataOutput
}

// build opens the device, attaches every output and commits the session.
// Everything acquired is released again on failure.
func build(ctx context.Context, reg *camera.Registry, spec PipelineSpec, plans []outputPlan) (*runtime, error) {
	in, err := reg.Open(ctx, spec.Device)
	if err != nil {
		return nil, err
	}
	rt := &runtime{input: in}

	if err := rt.configure(ctx, reg, spec, plans); err != nil {
		if releaseErr := rt.release(ctx); releaseErr != nil {
			err = errors.Join(err, releaseErr)
		}
		return nil, err
	}
	return rt, nil
}

func (rt *runtime) configure(ctx context.Context, reg *camera.Registry, spec PipelineSpec, plans []outputPlan) error {
	if spec.Controls != nil {
		if err := rt.input.ApplyControls(ctx, *spec.Controls); err != nil {
			return err
		}
	}

	rt.session = reg.NewSession()
	if err := rt.session.BeginConfig(ctx); err != nil {
		return err
	}
	if err := rt.session.AddInput(ctx, rt.input); err != nil {
		return err
	}

	for i, p := range plans {
		out := rt.newOutput(reg, p)
		if err := rt.session.AddOutput(ctx, out); err != nil {
			return fmt.Errorf("output %d: %w", i, err)
		}
		if p.kind == camera.KindVideo && p.stabilization != camera.StabilizationOff {
			if err := rt.video.SetStabilizationMode(ctx, p.stabilization); err != nil {
				return fmt.Errorf("output %d: %w", i, err)
			}
		}
	}

	return rt.session.CommitConfig(ctx)
}

func (rt *runtime) newOutput(reg *camera.Registry, p outputPlan) camera.Output {
	var opts []camera.OutputOption
	if p.hasFormat {
		opts = append(opts, camera.WithFormat(p.format))
	}
	if !p.size.IsZero() {
		opts = append(opts, camera.WithSize(p.size))
	}

	var out camera.Output
	switch p.kind {
	case camera.KindPhoto:
		rt.photo = reg.NewPhotoOutput(p.surface, opts...)
		out = rt.photo
	case camera.KindVideo:
		rt.video = reg.NewVideoOutput(p.surface, opts...)
		out = rt.video
	case camera.KindMetadata:
		rt.metadata = reg.NewMetadataOutput(p.types...)
		out = rt.metadata
	default:
		out = reg.NewPreviewOutput(p.surface, opts...)
	}
	rt.outputs = append(rt.outputs, out)
	return out
}

// start runs the session, then begins recording and detection.
func (rt *runtime) start(ctx context.Context) error {
	if err := rt.session.Start(ctx); err != nil {
		return err
	}
	var err error
	if rt.video != nil {
		err = rt.video.Start(ctx)
	}
	if err == nil && rt.metadata != nil {
		err = rt.metadata.Start(ctx)
	}
	if err != nil {
		_ = rt.session.Stop(ctx)
		return err
	}
	return nil
}

func (rt *runtime) stop(ctx context.Context) error {
	return rt.session.Stop(ctx)
}

func (rt *runtime) running() bool {
	return rt.session != nil && rt.session.State() == camera.StateRunning
}

// release stops the session if needed and releases every camera object.
func (rt *runtime) release(ctx context.Context) error {
	var errs []error
	if rt.session != nil {
		if rt.running() {
			errs = append(errs, rt.session.Stop(ctx))
		}
		if rt.session.State() != camera.StateReleased {
			errs = append(errs, rt.session.Release(ctx))
		}
	}
	for _, o := range rt.outputs {
		if !o.Released() {
			errs = append(errs, o.Release(ctx))
		}
	}
	if !rt.input.Released() {
		errs = append(errs, rt.input.Release(ctx))
	}
	return errors.Join(errs...)
}
