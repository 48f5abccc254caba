package cache

import (
	"context"
	"fmt"
)

// AsyncMemo memoizes a fetch function as futures.
//
// Concurrent callers for the same key share one in-flight fetch. A future that
// fails or resolves absent evicts itself, but only while the cache still maps
// its key to that exact future, so a late completion never evicts a newer entry.
type AsyncMemo[K comparable, V any] struct {
	cache *Cache[K, *Future[V]]
	fetch FetchFunc[K, V]
}

// CachedWithAsync binds a strategy and returns a constructor that memoizes fetch.
func CachedWithAsync[K comparable, V any](strategy Strategy[K]) func(fetch FetchFunc[K, V]) *AsyncMemo[K, V] {
	return func(fetch FetchFunc[K, V]) *AsyncMemo[K, V] {
		return &AsyncMemo[K, V]{
			cache: New[K, *Future[V]](strategy),
			fetch: fetch,
		}
	}
}

// Fetch returns the cached future for key or starts a fetch and caches it.
//
// The fetch runs on its own goroutine with ctx values but without ctx
// cancellation, because its result is shared with every later caller.
func (m *AsyncMemo[K, V]) Fetch(ctx context.Context, key K) *Future[V] {
	future, loaded := m.cache.getOrAdd(key, newFuture[V])
	if loaded {
		return future
	}

	fetchCtx := context.WithoutCancel(ctx)
	go func() {
		var state State[V]
		err := safely(func() error {
			var fetchErr error
			state, fetchErr = m.fetch(fetchCtx, key)
			return fetchErr
		})
		if err != nil {
			err = fmt.Errorf("async memo fetch: %w", err)
		}
		m.settle(key, future, state, err)
	}()

	return future
}

// Update chains fn onto the cached future for key and caches the result.
//
// When key is not cached the returned future is already absent and fn is never
// called. fn is also skipped when the pending future fails or resolves absent.
// A failure or absent result from fn evicts the entry and settles the returned
// future with it.
func (m *AsyncMemo[K, V]) Update(key K, fn UpdateFunc[V]) *Future[V] {
	var previous, next *Future[V]
	m.cache.Update(key, func(current State[*Future[V]]) State[*Future[V]] {
		future, ok := current.Get()
		if !ok {
			return current
		}
		previous = future
		next = newFuture[V]()

		return Present(next)
	})
	if next == nil {
		return Resolved(Absent[V]())
	}

	go func() {
		state, err := previous.Await(context.Background())
		if err != nil {
			m.settle(key, next, Absent[V](), err)
			return
		}
		value, ok := state.Get()
		if !ok {
			m.settle(key, next, state, nil)
			return
		}

		var updated State[V]
		err = safely(func() error {
			var fnErr error
			updated, fnErr = fn(value)
			return fnErr
		})
		if err != nil {
			err = fmt.Errorf("async memo update: %w", err)
		}
		m.settle(key, next, updated, err)
	}()

	return next
}

// Prime caches an already-resolved value for key, replacing any pending fetch.
func (m *AsyncMemo[K, V]) Prime(key K, value V) {
	m.cache.Set(key, Resolved(Present(value)))
}

// Forget evicts key.
func (m *AsyncMemo[K, V]) Forget(key K) {
	m.cache.Del(key)
}

// Cached reports whether key currently maps to a future.
func (m *AsyncMemo[K, V]) Cached(key K) bool {
	return m.cache.Has(key)
}

// Len returns the number of cached futures.
func (m *AsyncMemo[K, V]) Len() int {
	return m.cache.Len()
}

// settle evicts a failed or absent future before publishing its result, so no
// waiter can observe the failure while the entry is still cached.
func (m *AsyncMemo[K, V]) settle(key K, future *Future[V], state State[V], err error) {
	if err != nil || state.IsAbsent() {
		m.cache.delIf(key, func(current *Future[V]) bool {
			return current == future
		})
	}
	future.settle(state, err)
}
