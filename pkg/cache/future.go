package cache

import (
	"context"
	"fmt"
	"sync"
)

// Future is the eventual result of a fetch. It settles exactly once.
type Future[V any] struct {
	done  chan struct{}
	once  sync.Once
	state State[V]
	err   error
}

func newFuture[V any]() *Future[V] {
	return &Future[V]{done: make(chan struct{})}
}

// Resolved returns a future already settled with state.
func Resolved[V any](state State[V]) *Future[V] {
	future := newFuture[V]()
	future.settle(state, nil)

	return future
}

// Rejected returns a future already settled with err.
func Rejected[V any](err error) *Future[V] {
	future := newFuture[V]()
	future.settle(Absent[V](), err)

	return future
}

// Done is closed once the future settles.
func (f *Future[V]) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the future settles or ctx ends.
//
// Cancelling ctx only stops this wait; the underlying fetch keeps running for
// other callers.
func (f *Future[V]) Await(ctx context.Context) (State[V], error) {
	select {
	case <-f.done:
		return f.state, f.err
	case <-ctx.Done():
		return Absent[V](), fmt.Errorf("await future: %w", ctx.Err())
	}
}

// Settled reports whether the future has settled.
func (f *Future[V]) Settled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

func (f *Future[V]) settle(state State[V], err error) {
	f.once.Do(func() {
		if err != nil {
			state = Absent[V]()
		}
		f.state = state
		f.err = err
		close(f.done)
	})
}
