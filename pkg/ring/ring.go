package ring

// Node is one element of a Ring.
//
// Nodes are handed out by Push and Unshift and stay valid as removal handles until
// they are removed. A node never exposes its neighbours.
type Node[T any] struct {
	// Value is the payload stored in this node.
	Value T

	prev *Node[T]
	next *Node[T]
	ring *Ring[T]
}

// Ring is a circular doubly-linked list with a hidden sentinel head.
//
// All operations are O(1) except ToSlice, ForEach and Clear. The zero value is an
// empty ring ready to use. Ring is not safe for concurrent use.
type Ring[T any] struct {
	head Node[T]
	size int
}

// New returns an empty ring.
func New[T any]() *Ring[T] {
	return new(Ring[T]).init()
}

func (r *Ring[T]) init() *Ring[T] {
	r.head.prev = &r.head
	r.head.next = &r.head
	r.size = 0

	return r
}

func (r *Ring[T]) lazyInit() {
	if r.head.next == nil {
		r.init()
	}
}

// Len returns the number of nodes in the ring.
func (r *Ring[T]) Len() int {
	return r.size
}

// Push appends value at the tail and returns its node.
func (r *Ring[T]) Push(value T) *Node[T] {
	r.lazyInit()
	return r.insertAfter(&Node[T]{Value: value}, r.head.prev)
}

// Unshift inserts value at the head and returns its node.
func (r *Ring[T]) Unshift(value T) *Node[T] {
	r.lazyInit()
	return r.insertAfter(&Node[T]{Value: value}, &r.head)
}

// Pop removes and returns the tail value.
func (r *Ring[T]) Pop() (T, bool) {
	if r.size == 0 {
		var zero T
		return zero, false
	}

	node := r.head.prev
	r.unlink(node)

	return node.Value, true
}

// Shift removes and returns the head value.
func (r *Ring[T]) Shift() (T, bool) {
	if r.size == 0 {
		var zero T
		return zero, false
	}

	node := r.head.next
	r.unlink(node)

	return node.Value, true
}

// First returns the head value without removing it.
func (r *Ring[T]) First() (T, bool) {
	if r.size == 0 {
		var zero T
		return zero, false
	}

	return r.head.next.Value, true
}

// Last returns the tail value without removing it.
func (r *Ring[T]) Last() (T, bool) {
	if r.size == 0 {
		var zero T
		return zero, false
	}

	return r.head.prev.Value, true
}

// Remove detaches node from the ring.
//
// It reports false when node is nil, already removed, or owned by another ring.
func (r *Ring[T]) Remove(node *Node[T]) bool {
	if node == nil || node.ring != r {
		return false
	}
	r.unlink(node)

	return true
}

// MoveToBack moves node to the tail. Nodes owned by another ring are ignored.
func (r *Ring[T]) MoveToBack(node *Node[T]) {
	if node == nil || node.ring != r || r.head.prev == node {
		return
	}

	node.prev.next = node.next
	node.next.prev = node.prev
	node.prev = r.head.prev
	node.next = &r.head
	r.head.prev.next = node
	r.head.prev = node
}

// ToSlice copies ring values head to tail into a new slice.
func (r *Ring[T]) ToSlice() []T {
	values := make([]T, 0, r.size)
	r.ForEach(func(value T) {
		values = append(values, value)
	})

	return values
}

// ForEach calls fn for every value from head to tail.
//
// fn must not mutate the ring; take a ToSlice snapshot when it needs to.
func (r *Ring[T]) ForEach(fn func(value T)) {
	if r.size == 0 {
		return
	}
	for node := r.head.next; node != &r.head; node = node.next {
		fn(node.Value)
	}
}

// Clear removes every node. Outstanding node handles become inert.
func (r *Ring[T]) Clear() {
	if r.size == 0 {
		return
	}
	for node := r.head.next; node != &r.head; {
		next := node.next
		node.prev = nil
		node.next = nil
		node.ring = nil
		node = next
	}
	r.init()
}

func (r *Ring[T]) insertAfter(node *Node[T], at *Node[T]) *Node[T] {
	node.prev = at
	node.next = at.next
	at.next.prev = node
	at.next = node
	node.ring = r
	r.size++

	return node
}

func (r *Ring[T]) unlink(node *Node[T]) {
	node.prev.next = node.next
	node.next.prev = node.prev
	node.prev = nil
	node.next = nil
	node.ring = nil
	r.size--
}
