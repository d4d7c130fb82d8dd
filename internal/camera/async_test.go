package camera_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smazurov/camcore/internal/camera"
)

func TestAsync_OpenFuture(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	f := camera.Async(ctx, func(ctx context.Context) (*camera.Input, error) {
		return reg.Open(ctx, backID)
	})
	in, err := f.Await(ctx)
	require.NoError(t, err)
	defer in.Release(ctx)

	select {
	case <-f.Done():
	default:
		t.Fatal("Done should be closed after Await returns a result")
	}

	busy := camera.Async(ctx, func(ctx context.Context) (*camera.Input, error) {
		return reg.Open(ctx, backID)
	})
	_, err = busy.Await(ctx)
	requireCode(t, err, camera.CodeDeviceBusy)
}

func TestAsync_AwaitHonoursContext(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	f := camera.Async(context.Background(), func(context.Context) (int, error) {
		<-block
		return 1, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := f.Await(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWithCallback_CalledOnce(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()
	s := reg.NewSession()

	calls := make(chan error, 2)
	camera.WithCallback(ctx, camera.Do(s.BeginConfig), func(_ struct{}, err error) {
		calls <- err
	})
	require.NoError(t, <-calls)

	camera.WithCallback(ctx, camera.Do(s.Start), func(_ struct{}, err error) {
		calls <- err
	})
	requireCode(t, <-calls, camera.CodeInvalidState)
	assert.Empty(t, calls)
	require.NoError(t, s.Release(ctx))
}
