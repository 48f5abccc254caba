package cache

// Unlimited never evicts; it only reports keys entering and leaving the cache.
type Unlimited[K comparable] struct {
	swapIn  func(key K)
	swapOut func(key K)
}

// NewUnlimited creates an Unlimited strategy. Both callbacks are optional.
func NewUnlimited[K comparable](swapIn func(key K), swapOut func(key K)) *Unlimited[K] {
	return &Unlimited[K]{swapIn: swapIn, swapOut: swapOut}
}

// OnGet implements Strategy.
func (u *Unlimited[K]) OnGet(K) {}

// OnSet implements Strategy.
func (u *Unlimited[K]) OnSet(K) {}

// OnAdd reports key to the swap-in callback.
func (u *Unlimited[K]) OnAdd(key K) {
	if u.swapIn != nil {
		u.swapIn(key)
	}
}

// OnDel reports key to the swap-out callback.
func (u *Unlimited[K]) OnDel(key K) {
	if u.swapOut != nil {
		u.swapOut(key)
	}
}

// SuggestSwapOut never names a victim.
func (u *Unlimited[K]) SuggestSwapOut() (K, bool) {
	var zero K
	return zero, false
}

var _ Strategy[string] = (*Unlimited[string])(nil)
