// Package ring provides a generic circular doubly-linked list with stable node
// handles, used as the recency list of LRU strategies and as the watcher set of
// event sources.
package ring
