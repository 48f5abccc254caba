// Package chats provides the reactive conversation module. It caches
// interactions by id, streams history newest first or up through a thread's
// ancestors, and notifies watchers scoped to a profile and thread when new
// interactions are appended.
package chats
