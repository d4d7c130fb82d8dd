package pipelines

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/smazurov/camcore/internal/camera"
)

// PipelineSpec is the persistent configuration of a pipeline.
type PipelineSpec struct {
	// ID is the unique identifier for this pipeline
	ID string `toml:"id" json:"id"`

	// Name is a human-readable name, defaults to the ID
	Name string `toml:"name" json:"name"`

	// Device is the stable camera device identifier
	Device string `toml:"device" json:"device"`

	// Outputs lists the destinations fed by the pipeline
	Outputs []OutputSpec `toml:"outputs" json:"outputs"`

	// Controls are applied to the input after it is opened
	Controls *camera.Controls `toml:"controls,omitempty" json:"controls,omitempty"`

	// AutoStart starts the pipeline when it is loaded from the store
	AutoStart bool `toml:"auto_start" json:"auto_start"`

	CreatedAt time.Time `toml:"created_at" json:"created_at"`
	UpdatedAt time.Time `toml:"updated_at" json:"updated_at"`
}

// OutputSpec describes one output of a pipeline. Enumerations are stored
// by name so the file stays readable.
type OutputSpec struct {
	// Kind is preview, photo, video or metadata
	Kind string `toml:"kind" json:"kind"`

	// Surface is the consumer target. For the V4L2 backend photo and video
	// surfaces are file paths; "{id}" in a photo path is the capture id.
	Surface string `toml:"surface,omitempty" json:"surface,omitempty"`

	// Format overrides the first supported format, e.g. "jpeg"
	Format string `toml:"format,omitempty" json:"format,omitempty"`

	// Resolution overrides the first supported size, in WIDTHxHEIGHT form
	Resolution string `toml:"resolution,omitempty" json:"resolution,omitempty"`

	// Stabilization applies to video outputs
	Stabilization string `toml:"stabilization,omitempty" json:"stabilization,omitempty"`

	// ObjectTypes applies to metadata outputs; empty means all supported
	ObjectTypes []string `toml:"object_types,omitempty" json:"object_types,omitempty"`
}

// outputPlan is an OutputSpec with its fields parsed.
type outputPlan struct {
	kind          camera.OutputKind
	surface       string
	format        camera.Format
	hasFormat     bool
	size          camera.Size
	stabilization camera.StabilizationMode
	types         []camera.MetadataObjectType
}

func (o OutputSpec) plan() (outputPlan, error) {
	var p outputPlan
	if err := p.kind.UnmarshalText([]byte(o.Kind)); err != nil {
		return p, err
	}
	p.surface = o.Surface
	if o.Format != "" {
		if err := p.format.UnmarshalText([]byte(o.Format)); err != nil {
			return p, err
		}
		p.hasFormat = true
	}
	if o.Resolution != "" {
		size, err := parseResolution(o.Resolution)
		if err != nil {
			return p, err
		}
		p.size = size
	}
	if o.Stabilization != "" {
		if p.kind != camera.KindVideo {
			return p, fmt.Errorf("stabilization only applies to video outputs")
		}
		if err := p.stabilization.UnmarshalText([]byte(o.Stabilization)); err != nil {
			return p, err
		}
	}
	if len(o.ObjectTypes) > 0 && p.kind != camera.KindMetadata {
		return p, fmt.Errorf("object types only apply to metadata outputs")
	}
	for _, name := range o.ObjectTypes {
		var t camera.MetadataObjectType
		if err := t.UnmarshalText([]byte(name)); err != nil {
			return p, err
		}
		p.types = append(p.types, t)
	}
	return p, nil
}

// parseResolution parses "WIDTHxHEIGHT".
func parseResolution(s string) (camera.Size, error) {
	w, h, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return camera.Size{}, fmt.Errorf("invalid resolution %q (expected WIDTHxHEIGHT)", s)
	}
	width, err := strconv.Atoi(w)
	if err != nil || width <= 0 {
		return camera.Size{}, fmt.Errorf("invalid resolution width %q", w)
	}
	height, err := strconv.Atoi(h)
	if err != nil || height <= 0 {
		return camera.Size{}, fmt.Errorf("invalid resolution height %q", h)
	}
	return camera.Size{Width: width, Height: height}, nil
}

// validate checks the spec without touching hardware.
func (s PipelineSpec) validate() ([]outputPlan, error) {
	if s.ID == "" {
		return nil, invalidParams("pipeline id cannot be empty")
	}
	if strings.ContainsAny(s.ID, "/ \t") {
		return nil, invalidParams("pipeline id %q contains invalid characters", s.ID)
	}
	if s.Device == "" {
		return nil, invalidParams("device cannot be empty")
	}
	if len(s.Outputs) == 0 {
		return nil, invalidParams("pipeline %s has no outputs", s.ID)
	}

	plans := make([]outputPlan, 0, len(s.Outputs))
	var photos int
	for i, o := range s.Outputs {
		p, err := o.plan()
		if err != nil {
			return nil, NewPipelineError(ErrCodeInvalidParams, fmt.Sprintf("output %d", i), err)
		}
		if p.kind == camera.KindPhoto {
			photos++
		}
		plans = append(plans, p)
	}
	if photos > 1 {
		return nil, invalidParams("pipeline %s has more than one photo output", s.ID)
	}
	return plans, nil
}
