// Package event provides synchronous publish/subscribe primitives: Source for a
// single topic and Hub for hierarchical topics addressed by path segments, such
// as [profileID] or [profileID, chatID].
package event
