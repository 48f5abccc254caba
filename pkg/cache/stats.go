package cache

import "sync/atomic"

// StatsSnapshot is a point-in-time copy of Stats counters.
type StatsSnapshot struct {
	Hits      uint64
	Adds      uint64
	Sets      uint64
	Dels      uint64
	Evictions uint64
}

// Stats counts strategy callbacks while delegating to an inner strategy.
//
// Counters are atomic so Snapshot can be read without the cache lock.
type Stats[K comparable] struct {
	inner Strategy[K]

	hits      atomic.Uint64
	adds      atomic.Uint64
	sets      atomic.Uint64
	dels      atomic.Uint64
	evictions atomic.Uint64
}

// NewStats wraps inner. A nil inner strategy never evicts.
func NewStats[K comparable](inner Strategy[K]) *Stats[K] {
	if inner == nil {
		inner = Hooks[K]{}
	}

	return &Stats[K]{inner: inner}
}

// OnGet implements Strategy.
func (s *Stats[K]) OnGet(key K) {
	s.hits.Add(1)
	s.inner.OnGet(key)
}

// OnSet implements Strategy.
func (s *Stats[K]) OnSet(key K) {
	s.sets.Add(1)
	s.inner.OnSet(key)
}

// OnAdd implements Strategy.
func (s *Stats[K]) OnAdd(key K) {
	s.adds.Add(1)
	s.inner.OnAdd(key)
}

// OnDel implements Strategy.
func (s *Stats[K]) OnDel(key K) {
	s.dels.Add(1)
	s.inner.OnDel(key)
}

// SuggestSwapOut implements Strategy and counts suggested victims.
func (s *Stats[K]) SuggestSwapOut() (K, bool) {
	victim, ok := s.inner.SuggestSwapOut()
	if ok {
		s.evictions.Add(1)
	}

	return victim, ok
}

// Snapshot returns current counter values.
func (s *Stats[K]) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Hits:      s.hits.Load(),
		Adds:      s.adds.Load(),
		Sets:      s.sets.Load(),
		Dels:      s.dels.Load(),
		Evictions: s.evictions.Load(),
	}
}

var _ Strategy[string] = (*Stats[string])(nil)
