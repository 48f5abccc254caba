package cache

// Strategy is the eviction and instrumentation policy attached to one Cache.
//
// All methods are invoked while the owning cache holds its lock, so a strategy
// instance must belong to exactly one cache and must not call back into it.
type Strategy[K comparable] interface {
	// OnGet is called after a cache hit.
	OnGet(key K)
	// OnSet is called after an existing key is overwritten.
	OnSet(key K)
	// OnAdd is called after a new key is inserted.
	OnAdd(key K)
	// OnDel is called on every delete, whether or not the key was present.
	OnDel(key K)
	// SuggestSwapOut is called once per Set and names at most one victim.
	SuggestSwapOut() (K, bool)
}

// Hooks adapts optional callbacks into a Strategy. Nil callbacks are skipped and a
// nil SwapOut never suggests eviction.
type Hooks[K comparable] struct {
	Get     func(key K)
	Set     func(key K)
	Add     func(key K)
	Del     func(key K)
	SwapOut func() (K, bool)
}

// OnGet implements Strategy.
func (h Hooks[K]) OnGet(key K) {
	if h.Get != nil {
		h.Get(key)
	}
}

// OnSet implements Strategy.
func (h Hooks[K]) OnSet(key K) {
	if h.Set != nil {
		h.Set(key)
	}
}

// OnAdd implements Strategy.
func (h Hooks[K]) OnAdd(key K) {
	if h.Add != nil {
		h.Add(key)
	}
}

// OnDel implements Strategy.
func (h Hooks[K]) OnDel(key K) {
	if h.Del != nil {
		h.Del(key)
	}
}

// SuggestSwapOut implements Strategy.
func (h Hooks[K]) SuggestSwapOut() (K, bool) {
	if h.SwapOut == nil {
		var zero K
		return zero, false
	}

	return h.SwapOut()
}

var _ Strategy[string] = Hooks[string]{}
