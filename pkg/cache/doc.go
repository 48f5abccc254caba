// Package cache provides a generic key/value cache with pluggable eviction
// strategies and memoization wrappers built on top of it.
//
// Cache holds plain values and delegates eviction to a Strategy (LRU, Unlimited,
// or any Hooks combination; Stats adds counters). Memo memoizes a synchronous
// fetch function. AsyncMemo memoizes fetches as Futures, coalescing concurrent
// requests for one key into a single fetch and evicting entries whose fetch
// failed or confirmed absence.
//
// Results are tri-state: a present value, a confirmed-absent State, or an error.
// A pending Future is the fourth, transient state of AsyncMemo entries.
package cache
