package camera

import (
	"context"
	"sync"
)

// Future is the promise-style completion of an asynchronous operation.
type Future[T any] struct {
	done  chan struct{}
	once  sync.Once
	value T
	err   error
}

// Async runs op in a new goroutine and returns a Future for its result.
//
//	f := camera.Async(ctx, func(ctx context.Context) (*camera.Input, error) {
//		return reg.Open(ctx, id)
//	})
//	in, err := f.Await(ctx)
func Async[T any](ctx context.Context, op func(context.Context) (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	go func() {
		v, err := op(ctx)
		f.resolve(v, err)
	}()
	return f
}

func (f *Future[T]) resolve(v T, err error) {
	f.once.Do(func() {
		f.value, f.err = v, err
		close(f.done)
	})
}

// Done is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Await waits for the result or for ctx to end, whichever is first.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// WithCallback runs op in a new goroutine and calls cb exactly once with
// its result.
func WithCallback[T any](ctx context.Context, op func(context.Context) (T, error), cb func(T, error)) {
	go func() {
		cb(op(ctx))
	}()
}

// Do adapts a value-less operation for Async and WithCallback.
func Do(op func(context.Context) error) func(context.Context) (struct{}, error) {
	return func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	}
}
