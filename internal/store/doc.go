// Package store is the single source of truth for downloaded audio items and
// their conversation-level metadata. Every mutation goes through Store and is
// persisted before the call returns.
package store
