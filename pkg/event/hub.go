package event

import (
	"context"
	"sync"
)

// Hub is a trie of Sources keyed by path segments.
//
// Notify at a path delivers to watchers at the root, at every ancestor prefix and
// at the path itself, in that order. A watcher therefore observes every event
// notified at its own path or any path extending it, never events at shorter or
// sibling paths. Nodes are created on Watch and pruned once they hold no watchers
// and no children.
type Hub[V any] struct {
	mu   sync.Mutex
	root *hubNode[V]
}

type hubNode[V any] struct {
	source   *Source[V]
	children map[string]*hubNode[V]
}

// NewHub creates an empty hub.
func NewHub[V any]() *Hub[V] {
	return &Hub[V]{root: newHubNode[V]()}
}

func newHubNode[V any]() *hubNode[V] {
	return &hubNode[V]{
		source:   NewSource[V](),
		children: make(map[string]*hubNode[V]),
	}
}

// Notify delivers value along path from the root down.
func (h *Hub[V]) Notify(ctx context.Context, path []string, value V) {
	h.mu.Lock()
	sources := h.root.collect(path, nil)
	h.mu.Unlock()

	for _, source := range sources {
		source.Notify(ctx, value)
	}
}

// Watch registers handler at path, creating missing nodes.
//
// The returned function unregisters the handler and prunes nodes left empty. It
// is safe to call more than once.
func (h *Hub[V]) Watch(path []string, handler Handler[V]) (unwatch func()) {
	h.mu.Lock()
	release := h.root.watch(path, handler)
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			release()
		})
	}
}

// Len returns the number of watchers registered exactly at path.
func (h *Hub[V]) Len(path []string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	node := h.root
	for _, segment := range path {
		child, ok := node.children[segment]
		if !ok {
			return 0
		}
		node = child
	}

	return node.source.Len()
}

// collect appends the sources of this node and of the existing nodes along path.
func (n *hubNode[V]) collect(path []string, sources []*Source[V]) []*Source[V] {
	sources = append(sources, n.source)
	if len(path) == 0 {
		return sources
	}
	child, ok := n.children[path[0]]
	if !ok {
		return sources
	}

	return child.collect(path[1:], sources)
}

// watch registers handler at the node named by path and returns a release
// function reporting whether this node became empty. Callers hold the hub lock.
func (n *hubNode[V]) watch(path []string, handler Handler[V]) func() bool {
	if len(path) == 0 {
		unwatch := n.source.Watch(handler)
		return func() bool {
			unwatch()
			return n.empty()
		}
	}

	segment := path[0]
	child, ok := n.children[segment]
	if !ok {
		child = newHubNode[V]()
		n.children[segment] = child
	}
	releaseChild := child.watch(path[1:], handler)

	return func() bool {
		if releaseChild() && n.children[segment] == child {
			delete(n.children, segment)
		}
		return n.empty()
	}
}

func (n *hubNode[V]) empty() bool {
	return len(n.children) == 0 && n.source.Len() == 0
}
