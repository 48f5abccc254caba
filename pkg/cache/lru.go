package cache

import "ex-chatflow/pkg/ring"

// LRU evicts the least recently used key once more than capacity keys are tracked.
type LRU[K comparable] struct {
	capacity int
	order    ring.Ring[K]
	index    map[K]*ring.Node[K]
}

// NewLRU creates an LRU strategy. Capacities below one are treated as one.
func NewLRU[K comparable](capacity int) *LRU[K] {
	if capacity < 1 {
		capacity = 1
	}

	return &LRU[K]{
		capacity: capacity,
		index:    make(map[K]*ring.Node[K]),
	}
}

// Capacity returns the configured maximum number of keys.
func (l *LRU[K]) Capacity() int {
	return l.capacity
}

// Len returns the number of tracked keys.
func (l *LRU[K]) Len() int {
	return l.order.Len()
}

// OnGet marks key as most recently used.
func (l *LRU[K]) OnGet(key K) {
	if node, ok := l.index[key]; ok {
		l.order.MoveToBack(node)
	}
}

// OnSet leaves recency unchanged.
func (l *LRU[K]) OnSet(K) {}

// OnAdd tracks key as most recently used.
func (l *LRU[K]) OnAdd(key K) {
	if node, ok := l.index[key]; ok {
		l.order.MoveToBack(node)
		return
	}
	l.index[key] = l.order.Push(key)
}

// OnDel stops tracking key.
func (l *LRU[K]) OnDel(key K) {
	node, ok := l.index[key]
	if !ok {
		return
	}
	l.order.Remove(node)
	delete(l.index, key)
}

// SuggestSwapOut names the least recently used key while over capacity.
func (l *LRU[K]) SuggestSwapOut() (K, bool) {
	if l.order.Len() <= l.capacity {
		var zero K
		return zero, false
	}

	return l.order.First()
}

// Keys returns tracked keys from least to most recently used.
func (l *LRU[K]) Keys() []K {
	return l.order.ToSlice()
}

var _ Strategy[string] = (*LRU[string])(nil)
