package cache

import "sync"

// Cache is a generic key/value store governed by a Strategy.
//
// Every method holds the cache lock for its whole duration, including strategy
// hooks and Update callbacks, which makes each call atomic with respect to the
// others.
type Cache[K comparable, V any] struct {
	mu       sync.Mutex
	entries  map[K]V
	strategy Strategy[K]
}

// New creates a cache. A nil strategy behaves like empty Hooks.
func New[K comparable, V any](strategy Strategy[K]) *Cache[K, V] {
	if strategy == nil {
		strategy = Hooks[K]{}
	}

	return &Cache[K, V]{
		entries:  make(map[K]V),
		strategy: strategy,
	}
}

// Get returns the value for key. OnGet fires only on a hit.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.getLocked(key)
}

// Set stores value under key and applies at most one suggested eviction.
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.setLocked(key, value)
}

// Del removes key. OnDel fires even when key was not present.
func (c *Cache[K, V]) Del(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.delLocked(key)
}

// Has reports whether key is present without notifying the strategy.
func (c *Cache[K, V]) Has(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.entries[key]
	return ok
}

// Len returns the number of stored entries.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

// Update applies fn to the current state of key and writes the result back.
//
// A present result is stored with Set semantics, an absent one deletes the key.
// fn runs under the cache lock and must not use this cache.
func (c *Cache[K, V]) Update(key K, fn func(current State[V]) State[V]) State[V] {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := fn(StateOf(c.getLocked(key)))
	if value, ok := next.Get(); ok {
		c.setLocked(key, value)
	} else {
		c.delLocked(key)
	}

	return next
}

// getOrAdd returns the stored value for key, or inserts the one built by create.
// loaded reports whether the value was already present.
func (c *Cache[K, V]) getOrAdd(key K, create func() V) (value V, loaded bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if value, ok := c.getLocked(key); ok {
		return value, true
	}
	value = create()
	c.setLocked(key, value)

	return value, false
}

// delIf removes key only while match accepts its current value.
func (c *Cache[K, V]) delIf(key K, match func(current V) bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, ok := c.entries[key]
	if !ok || !match(current) {
		return false
	}
	c.delLocked(key)

	return true
}

func (c *Cache[K, V]) getLocked(key K) (V, bool) {
	value, ok := c.entries[key]
	if ok {
		c.strategy.OnGet(key)
	}

	return value, ok
}

func (c *Cache[K, V]) setLocked(key K, value V) {
	_, exists := c.entries[key]
	c.entries[key] = value
	if exists {
		c.strategy.OnSet(key)
	} else {
		c.strategy.OnAdd(key)
	}

	victim, ok := c.strategy.SuggestSwapOut()
	if !ok {
		return
	}
	if _, present := c.entries[victim]; present {
		c.delLocked(victim)
	}
}

func (c *Cache[K, V]) delLocked(key K) {
	delete(c.entries, key)
	c.strategy.OnDel(key)
}
