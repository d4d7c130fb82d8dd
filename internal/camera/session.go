package camera

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/smazurov/camcore/internal/events"
)

// Session coordinates one input and its outputs through the
// Idle, Configuring, Configured, Running and Released states.
//
// Every operation is executed by a single worker goroutine in submission
// order; callers block until their operation has been applied.
type Session struct {
	id      uuid.UUID
	reg     *Registry
	emitter *events.Emitter
	logger  *slog.Logger

	ops    chan sessionOp
	closed chan struct{}

	// mu guards the fields below for readers. Only the worker writes them.
	mu      sync.RWMutex
	state   SessionState
	input   *Input
	outputs []Output
}

type sessionOp struct {
	ctx    context.Context
	name   string
	fn     func(ctx context.Context) error
	result chan error
}

// NewSession creates an idle capture session. Release it when done.
func (r *Registry) NewSession() *Session {
	id := uuid.New()
	s := &Session{
		id:      id,
		reg:     r,
		emitter: r.bus.NewEmitter("session/" + id.String()),
		logger:  r.logger.With("session_id", id.String()),
		ops:     make(chan sessionOp),
		closed:  make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Session) run() {
	for op := range s.ops {
		err := op.ctx.Err()
		if err == nil {
			err = op.fn(op.ctx)
		}
		if err != nil {
			s.logger.Debug("Session operation failed", "op", op.name, "error", err)
		}
		op.result <- err
		if s.State() == StateReleased {
			close(s.closed)
			return
		}
	}
}

// do submits fn to the worker and waits for it to complete.
func (s *Session) do(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	op := sessionOp{ctx: ctx, name: name, fn: fn, result: make(chan error, 1)}
	select {
	case s.ops <- op:
	case <-s.closed:
		return newError(CodeInvalidState, name, "session released")
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-op.result
}

// ID returns the session id.
func (s *Session) ID() string { return s.id.String() }

// Subscribe registers handler for this session's notifications.
func (s *Session) Subscribe(handler func(Notification)) func() {
	return s.emitter.Subscribe(handler)
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Input returns the attached input, or nil if there is none or it has been
// released.
func (s *Session) Input() *Input {
	in := s.attachedInput()
	if in == nil || in.Released() {
		return nil
	}
	return in
}

// attachedInput returns the input slot as is, released or not.
func (s *Session) attachedInput() *Input {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.input
}

// Outputs returns the attached outputs that have not been released.
func (s *Session) Outputs() []Output {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Output, 0, len(s.outputs))
	for _, o := range s.outputs {
		if !o.Released() {
			out = append(out, o)
		}
	}
	return out
}

func (s *Session) setState(to SessionState) {
	s.mu.Lock()
	from := s.state
	s.state = to
	s.mu.Unlock()
	if from != to {
		s.logger.Debug("Session state changed", "from", from, "to", to)
		s.emitter.Emit(SessionStateChanged{From: from, To: to})
	}
}

func (s *Session) requireState(op string, allowed ...SessionState) error {
	st := s.State()
	if !slices.Contains(allowed, st) {
		return newError(CodeInvalidState, op, "session is %s", st)
	}
	return nil
}

// pruneReleased drops outputs released out-of-band.
func (s *Session) pruneReleased() {
	s.mu.Lock()
	var gone []Output
	s.outputs = slices.DeleteFunc(s.outputs, func(o Output) bool {
		if o.Released() {
			gone = append(gone, o)
			return true
		}
		return false
	})
	s.mu.Unlock()
	for _, o := range gone {
		o.base().unbind(s)
	}
}

// BeginConfig enters the configuration phase. Reconfiguring a committed
// session closes its streams; they are reopened by CommitConfig.
func (s *Session) BeginConfig(ctx context.Context) error {
	return s.do(ctx, "begin config", func(_ context.Context) error {
		if err := s.requireState("begin config", StateIdle, StateConfigured); err != nil {
			return err
		}
		if s.State() == StateConfigured {
			s.closeStreams()
		}
		s.setState(StateConfiguring)
		return nil
	})
}

// AddInput attaches in. A session holds at most one input.
func (s *Session) AddInput(ctx context.Context, in *Input) error {
	return s.do(ctx, "add input", func(_ context.Context) error {
		if err := s.requireState("add input", StateConfiguring); err != nil {
			return err
		}
		if in.Released() {
			return newError(CodeInvalidState, "add input", "input %s released", in.ID())
		}
		if cur := s.attachedInput(); cur != nil {
			if cur == in {
				return newError(CodeInvalidConfiguration, "add input", "input %s already attached", in.ID())
			}
			if !cur.Released() {
				return newError(CodeInvalidConfiguration, "add input", "session already has input %s", cur.ID())
			}
			cur.unbindSession(s)
		}
		if err := in.bindSession(s); err != nil {
			return err
		}
		s.mu.Lock()
		s.input = in
		s.mu.Unlock()
		return nil
	})
}

// RemoveInput detaches in.
func (s *Session) RemoveInput(ctx context.Context, in *Input) error {
	return s.do(ctx, "remove input", func(_ context.Context) error {
		if err := s.requireState("remove input", StateConfiguring); err != nil {
			return err
		}
		if s.attachedInput() != in || in.Released() {
			return newError(CodeNotAttached, "remove input", "input %s is not attached", in.ID())
		}
		in.unbindSession(s)
		s.mu.Lock()
		s.input = nil
		s.mu.Unlock()
		return nil
	})
}

// AddOutput attaches o.
func (s *Session) AddOutput(ctx context.Context, o Output) error {
	return s.do(ctx, "add output", func(_ context.Context) error {
		if err := s.requireState("add output", StateConfiguring); err != nil {
			return err
		}
		if err := o.base().bind(s); err != nil {
			return err
		}
		s.mu.Lock()
		s.outputs = append(s.outputs, o)
		s.mu.Unlock()
		return nil
	})
}

// RemoveOutput detaches o.
func (s *Session) RemoveOutput(ctx context.Context, o Output) error {
	return s.do(ctx, "remove output", func(_ context.Context) error {
		if err := s.requireState("remove output", StateConfiguring); err != nil {
			return err
		}
		s.mu.Lock()
		i := slices.Index(s.outputs, o)
		if i < 0 || o.Released() {
			s.mu.Unlock()
			return newError(CodeNotAttached, "remove output", "%s output %s is not attached", o.Kind(), o.ID())
		}
		s.outputs = slices.Delete(s.outputs, i, i+1)
		s.mu.Unlock()
		o.base().unbind(s)
		return nil
	})
}

// CommitConfig validates the configuration against the input's
// capabilities and opens one hardware stream per output.
func (s *Session) CommitConfig(ctx context.Context) error {
	return s.do(ctx, "commit config", func(ctx context.Context) error {
		const op = "commit config"
		if err := s.requireState(op, StateConfiguring); err != nil {
			return err
		}
		in := s.attachedInput()
		if in == nil {
			return newError(CodeInvalidConfiguration, op, "no input attached")
		}
		hw, caps, err := in.hardware()
		if err != nil {
			return &Error{Code: CodeNotAttached, Op: op, Cause: err}
		}
		s.pruneReleased()
		outputs := s.Outputs()

		cfgs := make([]StreamConfig, len(outputs))
		for i, o := range outputs {
			cfgs[i] = caps.resolveStream(o.base().streamConfig())
		}
		if err := caps.validateStreams(cfgs); err != nil {
			return &Error{Code: CodeInvalidConfiguration, Op: op, Message: err.Error()}
		}

		var opened []*output
		for i, o := range outputs {
			b := o.base()
			stream, err := hw.OpenStream(ctx, cfgs[i], streamEvents{b})
			if err != nil {
				for _, ob := range opened {
					ob.detachStream()
				}
				return &Error{Code: CodeInvalidConfiguration, Op: op, Message: "open " + o.Kind().String() + " stream", Cause: err}
			}
			if !b.attachStream(stream, cfgs[i]) {
				_ = stream.Close()
				continue
			}
			opened = append(opened, b)
		}

		s.setState(StateConfigured)
		s.logger.Info("Configuration committed", "input_id", in.ID(), "outputs", len(opened))
		return nil
	})
}

// Start starts the pipeline. If any output fails to start, outputs already
// started are stopped again and the session stays Configured.
func (s *Session) Start(ctx context.Context) error {
	return s.do(ctx, "start", func(ctx context.Context) error {
		if err := s.requireState("start", StateConfigured); err != nil {
			return err
		}
		in := s.Input()
		if in == nil || in.Released() {
			return newError(CodeNotAttached, "start", "input released")
		}
		s.pruneReleased()
		outputs := s.Outputs()
		if len(outputs) == 0 {
			return newError(CodeInvalidConfiguration, "start", "no outputs attached")
		}

		for i, o := range outputs {
			if err := o.pipelineStart(ctx); err != nil {
				for _, started := range outputs[:i] {
					if stopErr := started.pipelineStop(ctx); stopErr != nil {
						s.logger.Warn("Rollback stop failed", "output_id", started.ID(), "error", stopErr)
					}
				}
				return &Error{Code: CodePipelineStartFailed, Op: "start", Message: o.Kind().String() + " output " + o.ID(), Cause: err}
			}
		}

		s.setState(StateRunning)
		s.logger.Info("Session started", "outputs", len(outputs))
		return nil
	})
}

// Stop stops the pipeline. Released outputs are skipped; failures of the
// others are reported as faults and the session still becomes Configured.
// If the input was released while running its streams are already closed,
// so their stop errors are dropped.
func (s *Session) Stop(ctx context.Context) error {
	return s.do(ctx, "stop", func(ctx context.Context) error {
		if err := s.requireState("stop", StateRunning); err != nil {
			return err
		}
		inputGone := s.Input() == nil
		var errs []error
		for _, o := range s.Outputs() {
			err := o.pipelineStop(ctx)
			switch {
			case err == nil:
			case inputGone:
				s.logger.Debug("Stop after input release", "output_id", o.ID(), "error", err)
			default:
				errs = append(errs, err)
			}
		}
		s.pruneReleased()
		if err := errors.Join(errs...); err != nil {
			s.logger.Warn("Errors while stopping session", "error", err)
			s.emitter.Emit(newFault(s.ID(), err))
		}
		s.setState(StateConfigured)
		s.logger.Info("Session stopped")
		return nil
	})
}

// Release ends the session and detaches, without releasing, its input and
// outputs. A running session must be stopped first.
func (s *Session) Release(ctx context.Context) error {
	return s.do(ctx, "release session", func(_ context.Context) error {
		if err := s.requireState("release session", StateIdle, StateConfiguring, StateConfigured); err != nil {
			return err
		}
		s.closeStreams()

		s.mu.Lock()
		in, outputs := s.input, s.outputs
		s.input, s.outputs = nil, nil
		s.mu.Unlock()

		if in != nil {
			in.unbindSession(s)
		}
		for _, o := range outputs {
			o.base().unbind(s)
		}
		s.setState(StateReleased)
		return nil
	})
}

func (s *Session) closeStreams() {
	s.mu.RLock()
	outputs := slices.Clone(s.outputs)
	s.mu.RUnlock()
	for _, o := range outputs {
		o.base().detachStream()
	}
}
