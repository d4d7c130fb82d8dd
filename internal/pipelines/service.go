package pipelines

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/smazurov/camcore/internal/camera"
	"github.com/smazurov/camcore/internal/events"
	"github.com/smazurov/camcore/internal/logging"
)

// Pipeline is a read-only view of a pipeline.
type Pipeline struct {
	ID        string              `json:"id"`
	Name      string              `json:"name"`
	Device    string              `json:"device"`
	State     camera.SessionState `json:"state"`
	Available bool                `json:"available"`
	Recording bool                `json:"recording"`
	Outputs   []OutputStatus      `json:"outputs"`
	Controls  *camera.Controls    `json:"controls,omitempty"`
	AutoStart bool                `json:"auto_start"`
	LastError string              `json:"last_error,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// OutputStatus describes one output of a pipeline.
type OutputStatus struct {
	ID      string            `json:"id,omitempty"`
	Kind    camera.OutputKind `json:"kind"`
	Surface string            `json:"surface,omitempty"`
}

// pipeline is the in-memory state of one pipeline. mu serializes
// lifecycle operations on it.
type pipeline struct {
	mu      sync.Mutex
	spec    PipelineSpec
	plans   []outputPlan
	rt      *runtime
	lastErr error
	emitter *events.Emitter
	// removed is set once the pipeline leaves the service map.
	removed bool
}

// Service manages named pipelines on top of a camera registry.
type Service struct {
	registry *camera.Registry
	store    Store
	logger   *slog.Logger

	pipelinesMutex sync.RWMutex
	pipelines      map[string]*pipeline

	unsubscribe func()
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger overrides the service logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

// NewService creates a pipeline service. It follows device presence reported
// by the registry until Close.
func NewService(reg *camera.Registry, store Store, opts ...ServiceOption) *Service {
	s := &Service{
		registry:  reg,
		store:     store,
		pipelines: make(map[string]*pipeline),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.GetLogger("pipelines")
	}
	s.unsubscribe = reg.SubscribeStatus(s.handleDeviceStatus)
	return s
}

func (s *Service) lookup(id string) (*pipeline, error) {
	s.pipelinesMutex.RLock()
	p, ok := s.pipelines[id]
	s.pipelinesMutex.RUnlock()
	if !ok {
		return nil, NewPipelineError(ErrCodePipelineNotFound, fmt.Sprintf("pipeline %s not found", id), nil)
	}
	return p, nil
}

// acquire returns the pipeline locked. The caller must unlock it.
func (s *Service) acquire(id string) (*pipeline, error) {
	p, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	if p.removed {
		p.mu.Unlock()
		return nil, NewPipelineError(ErrCodePipelineNotFound, fmt.Sprintf("pipeline %s not found", id), nil)
	}
	return p, nil
}

func (s *Service) newPipeline(spec PipelineSpec, plans []outputPlan) *pipeline {
	return &pipeline{
		spec:    spec,
		plans:   plans,
		emitter: s.registry.Bus().NewEmitter("pipeline/" + spec.ID),
	}
}

// Create validates spec, builds and commits its session, and persists it.
func (s *Service) Create(ctx context.Context, spec PipelineSpec) (*Pipeline, error) {
	plans, err := spec.validate()
	if err != nil {
		return nil, err
	}
	if spec.Name == "" {
		spec.Name = spec.ID
	}

	s.pipelinesMutex.Lock()
	if _, exists := s.pipelines[spec.ID]; exists {
		s.pipelinesMutex.Unlock()
		return nil, NewPipelineError(ErrCodePipelineExists, fmt.Sprintf("pipeline %s already exists", spec.ID), nil)
	}
	// Reserve the id while hardware is being set up.
	p := s.newPipeline(spec, plans)
	p.mu.Lock()
	s.pipelines[spec.ID] = p
	s.pipelinesMutex.Unlock()
	defer p.mu.Unlock()

	rt, err := build(ctx, s.registry, spec, plans)
	if err != nil {
		s.drop(p)
		return nil, cameraError(fmt.Sprintf("failed to set up pipeline %s", spec.ID), err)
	}
	p.rt = rt
	if spec.Controls == nil {
		if c, ctlErr := rt.input.Controls(); ctlErr == nil {
			p.spec.Controls = &c
		}
	}

	now := time.Now()
	p.spec.CreatedAt = now
	p.spec.UpdatedAt = now
	if err := s.store.AddPipeline(p.spec); err != nil {
		_ = rt.release(ctx)
		p.rt = nil
		s.drop(p)
		return nil, NewPipelineError(ErrCodeStoreError, "failed to save pipeline", err)
	}

	s.logger.Info("Pipeline created", "pipeline_id", spec.ID, "device_id", spec.Device, "outputs", len(plans))
	s.publish(p)

	if spec.AutoStart {
		if err := s.startLocked(ctx, p); err != nil {
			s.logger.Warn("Auto start failed", "pipeline_id", spec.ID, "error", err)
		}
	}
	view := p.view()
	return &view, nil
}

// drop removes p from the service. Callers hold p.mu.
func (s *Service) drop(p *pipeline) {
	p.removed = true
	s.pipelinesMutex.Lock()
	if s.pipelines[p.spec.ID] == p {
		delete(s.pipelines, p.spec.ID)
	}
	s.pipelinesMutex.Unlock()
}

// Get returns a pipeline by id.
func (s *Service) Get(_ context.Context, id string) (*Pipeline, error) {
	p, err := s.acquire(id)
	if err != nil {
		return nil, err
	}
	defer p.mu.Unlock()
	view := p.view()
	return &view, nil
}

// List returns all pipelines ordered by id.
func (s *Service) List(_ context.Context) ([]Pipeline, error) {
	s.pipelinesMutex.RLock()
	all := make([]*pipeline, 0, len(s.pipelines))
	for _, p := range s.pipelines {
		all = append(all, p)
	}
	s.pipelinesMutex.RUnlock()

	views := make([]Pipeline, 0, len(all))
	for _, p := range all {
		p.mu.Lock()
		views = append(views, p.view())
		p.mu.Unlock()
	}
	slices.SortFunc(views, func(a, b Pipeline) int { return strings.Compare(a.ID, b.ID) })
	return views, nil
}

// Start starts a pipeline, opening its device first if it is not held.
func (s *Service) Start(ctx context.Context, id string) (*Pipeline, error) {
	p, err := s.acquire(id)
	if err != nil {
		return nil, err
	}
	defer p.mu.Unlock()
	if err := s.startLocked(ctx, p); err != nil {
		return nil, err
	}
	view := p.view()
	return &view, nil
}

func (s *Service) startLocked(ctx context.Context, p *pipeline) error {
	if p.rt != nil && p.rt.running() {
		return nil
	}
	if err := s.ensureRuntime(ctx, p); err != nil {
		return err
	}
	if err := p.rt.start(ctx); err != nil {
		p.lastErr = err
		s.publish(p)
		return cameraError(fmt.Sprintf("failed to start pipeline %s", p.spec.ID), err)
	}
	p.lastErr = nil
	s.logger.Info("Pipeline started", "pipeline_id", p.spec.ID)
	s.publish(p)
	return nil
}

// ensureRuntime rebuilds the camera objects if the device was lost.
func (s *Service) ensureRuntime(ctx context.Context, p *pipeline) error {
	if p.rt != nil && !p.rt.input.Released() {
		return nil
	}
	if p.rt != nil {
		_ = p.rt.release(ctx)
		p.rt = nil
	}
	rt, err := build(ctx, s.registry, p.spec, p.plans)
	if err != nil {
		p.lastErr = err
		s.publish(p)
		return cameraError(fmt.Sprintf("failed to set up pipeline %s", p.spec.ID), err)
	}
	p.rt = rt
	return nil
}

// Stop stops a running pipeline. The device stays open.
func (s *Service) Stop(ctx context.Context, id string) (*Pipeline, error) {
	p, err := s.acquire(id)
	if err != nil {
		return nil, err
	}
	defer p.mu.Unlock()

	if p.rt == nil || !p.rt.running() {
		return nil, cameraError(fmt.Sprintf("pipeline %s is not running", id), camera.ErrInvalidState)
	}
	if err := p.rt.stop(ctx); err != nil {
		return nil, cameraError(fmt.Sprintf("failed to stop pipeline %s", id), err)
	}
	s.logger.Info("Pipeline stopped", "pipeline_id", id)
	s.publish(p)
	view := p.view()
	return &view, nil
}

// Capture takes a photo on a running pipeline with a photo output.
func (s *Service) Capture(ctx context.Context, id string, settings camera.PhotoSettings) (camera.CaptureResult, error) {
	p, err := s.acquire(id)
	if err != nil {
		return camera.CaptureResult{}, err
	}
	var photo *camera.PhotoOutput
	if p.rt != nil {
		photo = p.rt.photo
	}
	p.mu.Unlock()

	if photo == nil {
		if !p.hasPhoto() {
			return camera.CaptureResult{}, invalidParams("pipeline %s has no photo output", id)
		}
		return camera.CaptureResult{}, cameraError(fmt.Sprintf("pipeline %s has no device", id), camera.ErrNotAttached)
	}

	// Captures are queued by the output itself; the pipeline lock is not held.
	result, err := photo.Capture(ctx, &settings)
	if err != nil {
		return camera.CaptureResult{}, cameraError(fmt.Sprintf("capture on pipeline %s failed", id), err)
	}
	s.logger.Debug("Photo captured", "pipeline_id", id, "capture_id", result.CaptureID, "path", result.Path)
	return result, nil
}

// UpdateControls applies patch atomically and persists the resulting controls.
func (s *Service) UpdateControls(ctx context.Context, id string, patch ControlsPatch) (*Pipeline, error) {
	p, err := s.acquire(id)
	if err != nil {
		return nil, err
	}
	defer p.mu.Unlock()

	if p.rt == nil || p.rt.input.Released() {
		return nil, cameraError(fmt.Sprintf("pipeline %s has no device", id), camera.ErrNotAttached)
	}
	err = p.rt.input.Update(ctx, func(u *camera.ControlUpdate) error {
		patch.apply(u)
		return nil
	})
	if err != nil {
		return nil, cameraError(fmt.Sprintf("failed to update controls of pipeline %s", id), err)
	}

	c, err := p.rt.input.Controls()
	if err != nil {
		return nil, cameraError("failed to read controls", err)
	}
	p.spec.Controls = &c
	p.spec.UpdatedAt = time.Now()
	if err := s.store.UpdatePipeline(id, p.spec); err != nil {
		return nil, NewPipelineError(ErrCodeStoreError, "failed to save pipeline", err)
	}
	view := p.view()
	return &view, nil
}

// Delete stops and releases a pipeline and removes it from the store.
func (s *Service) Delete(ctx context.Context, id string) error {
	p, err := s.acquire(id)
	if err != nil {
		return err
	}
	defer p.mu.Unlock()

	if err := s.store.RemovePipeline(id); err != nil {
		return NewPipelineError(ErrCodeStoreError, "failed to delete pipeline from configuration", err)
	}
	s.drop(p)

	if p.rt != nil {
		if err := p.rt.release(ctx); err != nil {
			s.logger.Warn("Errors while releasing pipeline", "pipeline_id", id, "error", err)
		}
		p.rt = nil
	}
	p.emitter.Emit(PipelineStateChanged{PipelineID: id, State: camera.StateReleased, Deleted: true})
	s.logger.Info("Pipeline deleted", "pipeline_id", id)
	return nil
}

// LoadFromStore loads persisted pipelines. Pipelines whose device is not
// available are kept and set up on the next Start or when the device appears.
func (s *Service) LoadFromStore(ctx context.Context) error {
	if err := s.store.Load(); err != nil {
		return NewPipelineError(ErrCodeStoreError, "failed to load pipelines configuration", err)
	}

	specs := s.store.GetAllPipelines()
	ids := make([]string, 0, len(specs))
	for id := range specs {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	for _, id := range ids {
		spec := specs[id]
		plans, err := spec.validate()
		if err != nil {
			s.logger.Warn("Skipping invalid pipeline", "pipeline_id", id, "error", err)
			continue
		}
		if spec.Name == "" {
			spec.Name = spec.ID
		}

		s.pipelinesMutex.Lock()
		if _, exists := s.pipelines[id]; exists {
			s.pipelinesMutex.Unlock()
			continue
		}
		p := s.newPipeline(spec, plans)
		s.pipelines[id] = p
		s.pipelinesMutex.Unlock()

		p.mu.Lock()
		if err := s.ensureRuntime(ctx, p); err != nil {
			s.logger.Warn("Pipeline device unavailable", "pipeline_id", id, "device_id", spec.Device, "error", err)
		} else if spec.AutoStart {
			if err := s.startLocked(ctx, p); err != nil {
				s.logger.Warn("Auto start failed", "pipeline_id", id, "error", err)
			}
		}
		p.mu.Unlock()
	}

	s.pipelinesMutex.RLock()
	count := len(s.pipelines)
	s.pipelinesMutex.RUnlock()
	s.logger.Info("Loaded pipelines from configuration", "count", count)
	return nil
}

// Close releases every pipeline's camera objects. Specs stay in the store.
func (s *Service) Close(ctx context.Context) error {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.pipelinesMutex.RLock()
	all := make([]*pipeline, 0, len(s.pipelines))
	for _, p := range s.pipelines {
		all = append(all, p)
	}
	s.pipelinesMutex.RUnlock()

	for _, p := range all {
		p.mu.Lock()
		if p.rt != nil {
			if err := p.rt.release(ctx); err != nil {
				s.logger.Warn("Errors while releasing pipeline", "pipeline_id", p.spec.ID, "error", err)
			}
			p.rt = nil
		}
		p.mu.Unlock()
	}
	return nil
}

// handleDeviceStatus tears pipelines down when their device vanishes and
// restarts auto-start pipelines when it comes back.
func (s *Service) handleDeviceStatus(ev camera.DeviceStatusChanged) {
	if ev.Status != camera.StatusDisappear && ev.Status != camera.StatusAppear {
		return
	}

	s.pipelinesMutex.RLock()
	var affected []*pipeline
	for _, p := range s.pipelines {
		if p.spec.Device == ev.Device.ID {
			affected = append(affected, p)
		}
	}
	s.pipelinesMutex.RUnlock()

	ctx := context.Background()
	for _, p := range affected {
		p.mu.Lock()
		if p.removed {
			p.mu.Unlock()
			continue
		}
		switch ev.Status {
		case camera.StatusDisappear:
			if p.rt != nil {
				_ = p.rt.release(ctx)
				p.rt = nil
			}
			p.lastErr = camera.ErrDeviceNotFound
			s.logger.Warn("Pipeline lost its device", "pipeline_id", p.spec.ID, "device_id", ev.Device.ID)
			s.publish(p)
		case camera.StatusAppear:
			if p.spec.AutoStart {
				if err := s.startLocked(ctx, p); err != nil {
					s.logger.Warn("Restart after device appeared failed", "pipeline_id", p.spec.ID, "error", err)
				}
			}
		}
		p.mu.Unlock()
	}
}

func (p *pipeline) hasPhoto() bool {
	for _, plan := range p.plans {
		if plan.kind == camera.KindPhoto {
			return true
		}
	}
	return false
}

func (s *Service) publish(p *pipeline) {
	view := p.view()
	p.emitter.Emit(PipelineStateChanged{
		PipelineID: view.ID,
		State:      view.State,
		Available:  view.Available,
		Error:      view.LastError,
	})
}

// view builds the external representation. Callers hold p.mu.
func (p *pipeline) view() Pipeline {
	v := Pipeline{
		ID:        p.spec.ID,
		Name:      p.spec.Name,
		Device:    p.spec.Device,
		State:     camera.StateIdle,
		Controls:  p.spec.Controls,
		AutoStart: p.spec.AutoStart,
		CreatedAt: p.spec.CreatedAt,
		UpdatedAt: p.spec.UpdatedAt,
	}
	if p.lastErr != nil {
		v.LastError = p.lastErr.Error()
	}

	if p.rt == nil || p.rt.input.Released() {
		for _, plan := range p.plans {
			v.Outputs = append(v.Outputs, OutputStatus{Kind: plan.kind, Surface: plan.surface})
		}
		return v
	}

	v.Available = true
	v.State = p.rt.session.State()
	if p.rt.video != nil {
		v.Recording, _ = p.rt.video.Recording()
	}
	for _, o := range p.rt.outputs {
		v.Outputs = append(v.Outputs, OutputStatus{ID: o.ID(), Kind: o.Kind(), Surface: o.SurfaceID()})
	}
	return v
}
