package prefs

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
)

// Keys for the persisted slots.
const (
	KeyDownloadedItems        = "downloaded_items"
	KeyProgress               = "progress"
	KeyCurrentItemID          = "current_item_id"
	KeyPlaybackRate           = "playback_rate"
	KeyCollapsedConversations = "collapsed_conversations"
	KeyLastVisitedURL         = "last_visited_url"
	KeySystemPrompts          = "system_prompts"
	KeySelectedPrompt         = "selected_system_prompt"
	KeyNotes                  = "notes"
	KeySelectedFragments      = "selected_fragments"
)

// ErrClosed is returned by backends used after Close.
var ErrClosed = errors.New("prefs backend is closed")

// Backend stores raw encoded values by key.
type Backend interface {
	// Load returns the raw value for key and whether it exists.
	Load(key string) ([]byte, bool, error)
	// Save stores value under key, replacing any previous value.
	Save(key string, value []byte) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(key string) error
	// Close flushes and releases the backend.
	Close() error
}

// Get decodes the value stored under key. A missing key, a backend failure or
// an undecodable value all yield the zero value and false; the latter two are
// logged so format drift never surfaces as an error.
func Get[T any](b Backend, key string) (T, bool) {
	var v T
	raw, ok, err := b.Load(key)
	if err != nil {
		log.Warn("Could not read preference", "key", key, "error", err)
		return v, false
	}
	if !ok {
		return v, false
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		log.Warn("Discarding undecodable preference", "key", key, "error", err)
		var zero T
		return zero, false
	}
	return v, true
}

// GetOr is Get with a fallback for missing or undecodable values.
func GetOr[T any](b Backend, key string, fallback T) T {
	if v, ok := Get[T](b, key); ok {
		return v
	}
	return fallback
}

// Set encodes value and stores it under key.
func Set[T any](b Backend, key string, value T) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := b.Save(key, raw); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// Config selects and configures a backend.
type Config struct {
	Backend  string // "file", "badger", "sqlite" or "memory"
	Dir      string // directory holding the backend's files
	Compress bool   // zstd-compress the file backend document
}

// Open creates the backend described by cfg.
func Open(cfg Config) (Backend, error) {
	switch cfg.Backend {
	case "", "file":
		return NewFile(cfg.Dir, cfg.Compress)
	case "badger":
		return NewBadger(cfg.Dir)
	case "sqlite":
		return NewSQLite(cfg.Dir)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
