// Package pebblestore persists interactions, profiles and settings in Pebble.
//
// Interactions are indexed by creation time so that pages walk strictly
// backward from a cursor with a single reverse iterator:
//
//	i/<id>                     interaction JSON
//	t/<ts8><id>                global time index
//	c/<context>\x00<ts8><id>   per-context time index
//	p/<id>                     profile JSON
//	s/<key>                    setting value
//
// <ts8> is the creation time in nanoseconds, big-endian with the sign bit
// flipped so byte order matches time order.
//
// Usage:
//
//	store, err := pebblestore.Open(pebblestore.Options{
//	    DataDir: "./data",
//	    Fsync:   pebblestore.FsyncModeInterval,
//	})
//	if err != nil { /* handle */ }
//	defer store.Close()
package pebblestore
