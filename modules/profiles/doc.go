// Package profiles provides the reactive profile module: a bounded async cache
// in front of the profile store, plus per-profile change notifications.
package profiles
