package whisper

import (
	"context"
	"sync"
)

// Future is the pending outcome of InferAsync.
type Future struct {
	done chan struct{}
	once sync.Once
	res  *Result
	err  error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// ResolvedFuture returns a Future that is already complete.
func ResolvedFuture(res *Result, err error) *Future {
	f := newFuture()
	f.resolve(res, err)
	return f
}

// Async runs fn in the background, or inline where the platform has no threads,
// and returns a Future for its outcome.
func Async(fn func() (*Result, error)) *Future {
	f := newFuture()
	defaultExecutor().Go(func() {
		f.resolve(fn())
	})
	return f
}

func (f *Future) resolve(res *Result, err error) {
	f.once.Do(func() {
		f.res, f.err = res, err
		close(f.done)
	})
}

// Done is closed once the outcome is available.
func (f *Future) Done() <-chan struct{} { return f.done }

// Ready reports whether Wait would return without blocking.
func (f *Future) Ready() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the outcome is available or ctx ends. A ctx expiry detaches
// the caller only; the inference keeps running and still resolves the Future.
func (f *Future) Wait(ctx context.Context) (*Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-f.done:
		return f.res, f.err
	case <-ctx.Done():
		select {
		case <-f.done:
			return f.res, f.err
		default:
			return nil, ctx.Err()
		}
	}
}

type executor interface {
	Go(fn func())
}

type inlineExecutor struct{}

func (inlineExecutor) Go(fn func()) { fn() }
