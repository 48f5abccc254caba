package event

import (
	"context"
	"sync"

	"ex-chatflow/pkg/ring"
)

// Handler receives one notified value.
type Handler[V any] func(ctx context.Context, value V)

// Source is a single-topic publish/subscribe point.
//
// Notify delivers to a snapshot of the watchers registered when it starts.
// Watchers added by a handler first fire on the next Notify; watchers removed by a
// handler still fire for the rest of the current round. Handlers run outside the
// source lock and may call Notify or Watch re-entrantly.
type Source[V any] struct {
	mu       sync.Mutex
	watchers ring.Ring[Handler[V]]
}

// NewSource creates an empty source.
func NewSource[V any]() *Source[V] {
	return &Source[V]{}
}

// Watch registers handler and returns its unwatch function.
//
// Unwatch reports whether the source has no watchers left; calling it again is a
// no-op that reports the same.
func (s *Source[V]) Watch(handler Handler[V]) (unwatch func() bool) {
	s.mu.Lock()
	node := s.watchers.Push(handler)
	s.mu.Unlock()

	return func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()

		s.watchers.Remove(node)
		return s.watchers.Len() == 0
	}
}

// Notify delivers value to every watcher registered before this call began.
func (s *Source[V]) Notify(ctx context.Context, value V) {
	s.mu.Lock()
	snapshot := s.watchers.ToSlice()
	s.mu.Unlock()

	for _, handler := range snapshot {
		handler(ctx, value)
	}
}

// Len returns the number of registered watchers.
func (s *Source[V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.watchers.Len()
}
