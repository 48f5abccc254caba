// Package stream provides pull-driven lazy streams and the two paginated chat
// streams built on them: RecentChats, which walks a context newest first, and
// TraceBack, which walks from one interaction up through its ancestors.
//
// Cursors only move backward in time, so against an append-only store no item is
// yielded twice or skipped.
package stream
