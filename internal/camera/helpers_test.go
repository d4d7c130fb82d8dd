package camera_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/smazurov/camcore/internal/camera"
	"github.com/smazurov/camcore/internal/hal/sim"
)

var fastTiming = sim.Timing{
	FrameInterval: 5 * time.Millisecond,
	ConvergeDelay: 10 * time.Millisecond,
	ShutterDelay:  5 * time.Millisecond,
}

const (
	backID  = "sim-back-0"
	frontID = "sim-front-0"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRegistry(t *testing.T) (*camera.Registry, *sim.Driver) {
	t.Helper()
	drv := sim.New(sim.DefaultProfiles(), sim.WithTiming(fastTiming), sim.WithLogger(discardLogger()))
	reg := camera.NewRegistry(drv, camera.WithLogger(discardLogger()))
	require.NoError(t, reg.Refresh(context.Background()))
	return reg, drv
}

func openInput(t *testing.T, reg *camera.Registry, id string) *camera.Input {
	t.Helper()
	in, err := reg.Open(context.Background(), id)
	require.NoError(t, err)
	t.Cleanup(func() {
		if !in.Released() {
			_ = in.Release(context.Background())
		}
	})
	return in
}

// configure builds a committed session with in and outputs.
func configure(t *testing.T, reg *camera.Registry, in *camera.Input, outputs ...camera.Output) *camera.Session {
	t.Helper()
	ctx := context.Background()
	s := reg.NewSession()
	require.NoError(t, s.BeginConfig(ctx))
	require.NoError(t, s.AddInput(ctx, in))
	for _, o := range outputs {
		require.NoError(t, s.AddOutput(ctx, o))
	}
	require.NoError(t, s.CommitConfig(ctx))
	t.Cleanup(func() {
		if s.State() == camera.StateRunning {
			_ = s.Stop(context.Background())
		}
		_ = s.Release(context.Background())
	})
	return s
}

func requireCode(t *testing.T, err error, code camera.Code) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, code, camera.CodeOf(err), "error: %v", err)
}

// recorder collects notifications from one subscriber.
type recorder struct {
	mu    sync.Mutex
	items []camera.Notification
}

func record(t *testing.T, s camera.Subscriber) *recorder {
	t.Helper()
	r := &recorder{}
	unsub := s.Subscribe(func(n camera.Notification) {
		r.mu.Lock()
		r.items = append(r.items, n)
		r.mu.Unlock()
	})
	t.Cleanup(unsub)
	return r
}

func (r *recorder) all() []camera.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]camera.Notification, len(r.items))
	copy(out, r.items)
	return out
}

func (r *recorder) kinds() []string {
	var out []string
	for _, n := range r.all() {
		out = append(out, n.Kind())
	}
	return out
}

func eventsOf[T camera.Event](r *recorder) []T {
	var out []T
	for _, n := range r.all() {
		if e, ok := n.Payload.(T); ok {
			out = append(out, e)
		}
	}
	return out
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond, msg)
}
