package cache

import (
	"context"
	"fmt"
)

// FetchFunc loads the value for key. Confirmed absence is reported as an absent
// State, not as an error.
type FetchFunc[K comparable, V any] func(ctx context.Context, key K) (State[V], error)

// UpdateFunc derives the next value from a present one. Returning an absent
// State or an error evicts the entry.
type UpdateFunc[V any] func(current V) (State[V], error)

// Memo memoizes a synchronous fetch function. Only present values are stored.
//
// Concurrent misses on the same key may fetch more than once; use AsyncMemo when
// callers must share one in-flight fetch.
type Memo[K comparable, V any] struct {
	cache *Cache[K, V]
	fetch FetchFunc[K, V]
}

// CachedWith binds a strategy and returns a constructor that memoizes fetch.
func CachedWith[K comparable, V any](strategy Strategy[K]) func(fetch FetchFunc[K, V]) *Memo[K, V] {
	return func(fetch FetchFunc[K, V]) *Memo[K, V] {
		return &Memo[K, V]{
			cache: New[K, V](strategy),
			fetch: fetch,
		}
	}
}

// Fetch returns the cached value or loads it.
func (m *Memo[K, V]) Fetch(ctx context.Context, key K) (State[V], error) {
	if value, ok := m.cache.Get(key); ok {
		return Present(value), nil
	}

	var state State[V]
	err := safely(func() error {
		var fetchErr error
		state, fetchErr = m.fetch(ctx, key)
		return fetchErr
	})
	if err != nil {
		return Absent[V](), fmt.Errorf("memo fetch: %w", err)
	}

	value, ok := state.Get()
	if !ok {
		return state, nil
	}
	m.cache.Set(key, value)

	return state, nil
}

// Update applies fn to the cached value of key.
//
// fn is not called when key is not cached. When fn fails or returns absent the
// entry is evicted and the failure is returned.
func (m *Memo[K, V]) Update(key K, fn UpdateFunc[V]) (State[V], error) {
	var updateErr error
	next := m.cache.Update(key, func(current State[V]) State[V] {
		value, ok := current.Get()
		if !ok {
			return current
		}

		var state State[V]
		updateErr = safely(func() error {
			var fnErr error
			state, fnErr = fn(value)
			return fnErr
		})
		if updateErr != nil {
			return Absent[V]()
		}

		return state
	})
	if updateErr != nil {
		return next, fmt.Errorf("memo update: %w", updateErr)
	}

	return next, nil
}

// Prime stores value for key without calling the fetch function.
func (m *Memo[K, V]) Prime(key K, value V) {
	m.cache.Set(key, value)
}

// Forget evicts key.
func (m *Memo[K, V]) Forget(key K) {
	m.cache.Del(key)
}

// Cached reports whether key currently holds a value.
func (m *Memo[K, V]) Cached(key K) bool {
	return m.cache.Has(key)
}

// Len returns the number of cached values.
func (m *Memo[K, V]) Len() int {
	return m.cache.Len()
}

// safely runs fn and converts a panic into an error.
func safely(fn func() error) (err error) {
	defer func() {
		recovered := recover()
		if recovered == nil {
			return
		}
		err = fmt.Errorf("panic recovered: %v", recovered)
	}()

	return fn()
}
