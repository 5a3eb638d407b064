package store

import (
	"time"
)

// Item is one downloaded audio file plus its metadata.
type Item struct {
	ID               string    `json:"id"`
	RelativePath     string    `json:"relativePath"`
	DisplayName      string    `json:"displayName"`
	Duration         *float64  `json:"duration,omitempty"` // seconds, nil until probed
	DownloadedAt     time.Time `json:"downloadedAt"`
	ConversationID   string    `json:"conversationId"`
	ConversationName string    `json:"conversationName,omitempty"`
	MessageID        string    `json:"messageId"`
}

// DurationSeconds returns the probed duration or 0 when unknown.
func (i Item) DurationSeconds() float64 {
	if i.Duration == nil {
		return 0
	}
	return *i.Duration
}

// Group is the derived view of all items sharing a conversation id, in their
// backing-list order.
type Group struct {
	ConversationID string
	Name           string
	Items          []Item
	Collapsed      bool
}

// EventKind identifies a store change.
type EventKind int

const (
	// EventAdded is emitted once per completed download.
	EventAdded EventKind = iota
	// EventDeleted is emitted for every removed item.
	EventDeleted
	// EventUpdated is emitted after a rename.
	EventUpdated
	// EventReordered is emitted after a move within a conversation.
	EventReordered
	// EventReloaded is emitted after Load replaced the list.
	EventReloaded
	// EventCollapsed is emitted when a conversation's collapse state flips.
	EventCollapsed
)

// String returns the string representation of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventAdded:
		return "added"
	case EventDeleted:
		return "deleted"
	case EventUpdated:
		return "updated"
	case EventReordered:
		return "reordered"
	case EventReloaded:
		return "reloaded"
	case EventCollapsed:
		return "collapsed"
	default:
		return "unknown"
	}
}

// Event describes a change to the store. Item is set for item-level events,
// ConversationID for conversation-level ones.
type Event struct {
	Kind           EventKind
	Item           Item
	ConversationID string
}
