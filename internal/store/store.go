package store

import (
	"errors"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/dgnsrekt/audiofetch/internal/prefs"
	"github.com/dgnsrekt/audiofetch/internal/progress"
)

// ErrNotFound is returned for operations on unknown item ids.
var ErrNotFound = errors.New("item not found")

// Options configures a Store.
type Options struct {
	// Backend persists the item list and the collapsed set.
	Backend prefs.Backend
	// Fs is the filesystem holding the audio files. Defaults to the OS.
	Fs afero.Fs
	// Dir is the base directory audio files live in.
	Dir string
	// Ledger, when set, loses the entry of every deleted item.
	Ledger *progress.Ledger
	// Now and NewID are overridable for tests.
	Now   func() time.Time
	NewID func() string
}

// Store owns the ordered list of downloaded items.
type Store struct {
	mu        sync.RWMutex
	items     []Item
	collapsed map[string]bool

	backend prefs.Backend
	fs      afero.Fs
	dir     string
	ledger  *progress.Ledger
	now     func() time.Time
	newID   func() string

	subMu   sync.Mutex
	subs    map[int]func(Event)
	nextSub int
}

// New creates a store and loads the persisted list.
func New(opts Options) *Store {
	if opts.Backend == nil {
		opts.Backend = prefs.NewMemory()
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return uuid.NewString() }
	}

	s := &Store{
		collapsed: make(map[string]bool),
		backend:   opts.Backend,
		fs:        opts.Fs,
		dir:       opts.Dir,
		ledger:    opts.Ledger,
		now:       opts.Now,
		newID:     opts.NewID,
		subs:      make(map[int]func(Event)),
	}
	s.Load()
	return s
}

// Dir returns the audio base directory.
func (s *Store) Dir() string { return s.dir }

// Fs returns the filesystem the store checks files against.
func (s *Store) Fs() afero.Fs { return s.fs }

// Path returns the location of the item's backing file.
func (s *Store) Path(item Item) string {
	return filepath.Join(s.dir, item.RelativePath)
}

// Load replaces the in-memory list with the persisted one, dropping entries
// whose backing file is gone. It never fails: an undecodable list loads empty.
// The lock is held from the read to the swap so concurrent mutations are
// ordered entirely before or after it.
func (s *Store) Load() {
	s.mu.Lock()
	saved := prefs.GetOr(s.backend, prefs.KeyDownloadedItems, []Item{})
	collapsed := prefs.GetOr(s.backend, prefs.KeyCollapsedConversations, []string{})

	existing := s.existingLocked(saved)
	s.items = existing
	s.collapsed = make(map[string]bool, len(collapsed))
	for _, id := range collapsed {
		s.collapsed[id] = true
	}
	if len(existing) != len(saved) {
		s.persistLocked()
	}
	s.mu.Unlock()

	s.emit(Event{Kind: EventReloaded})
}

// Prune drops in-memory items whose backing file is gone, without re-reading
// the persisted list. Each pruned item is reported like a deletion. It
// returns the number of pruned items.
func (s *Store) Prune() int {
	s.mu.Lock()
	existing := s.existingLocked(s.items)
	if len(existing) == len(s.items) {
		s.mu.Unlock()
		return 0
	}
	keep := make(map[string]bool, len(existing))
	for _, item := range existing {
		keep[item.ID] = true
	}
	var pruned []Item
	for _, item := range s.items {
		if !keep[item.ID] {
			pruned = append(pruned, item)
		}
	}
	s.items = existing
	s.persistLocked()
	s.mu.Unlock()

	for _, item := range pruned {
		s.afterDelete(item)
	}
	return len(pruned)
}

func (s *Store) existingLocked(items []Item) []Item {
	existing := make([]Item, 0, len(items))
	for _, item := range items {
		if ok, _ := afero.Exists(s.fs, s.Path(item)); ok {
			existing = append(existing, item)
			continue
		}
		log.Debug("Pruning item with missing file", "id", item.ID, "path", item.RelativePath)
	}
	return existing
}

// Add appends a new item for a freshly written file and persists the list
// before returning. Subscribers receive an EventAdded.
func (s *Store) Add(filePath, displayName string, duration *float64, conversationID, messageID string) Item {
	item := Item{
		ID:             s.newID(),
		RelativePath:   filepath.Base(filePath),
		DisplayName:    displayName,
		Duration:       duration,
		DownloadedAt:   s.now(),
		ConversationID: conversationID,
		MessageID:      messageID,
	}

	s.mu.Lock()
	s.items = append(s.items, item)
	s.persistLocked()
	s.mu.Unlock()

	log.Info("Download added", "id", item.ID, "conversation", conversationID, "message", messageID)
	s.emit(Event{Kind: EventAdded, Item: item, ConversationID: conversationID})
	return item
}

// Delete removes the item's file (best effort), drops it from the list and
// persists.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return ErrNotFound
	}
	item := s.deleteLocked(idx)
	s.persistLocked()
	s.mu.Unlock()

	s.afterDelete(item)
	return nil
}

// DeleteConversation deletes every item of the conversation and persists
// once. It returns the number of removed items.
func (s *Store) DeleteConversation(conversationID string) int {
	var removed []Item

	s.mu.Lock()
	for i := len(s.items) - 1; i >= 0; i-- {
		if s.items[i].ConversationID == conversationID {
			removed = append(removed, s.deleteLocked(i))
		}
	}
	delete(s.collapsed, conversationID)
	s.persistLocked()
	s.mu.Unlock()

	for i := len(removed) - 1; i >= 0; i-- {
		s.afterDelete(removed[i])
	}
	return len(removed)
}

// Rename changes the display name of one item.
func (s *Store) Rename(id, name string) error {
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return ErrNotFound
	}
	s.items[idx].DisplayName = name
	item := s.items[idx]
	s.persistLocked()
	s.mu.Unlock()

	s.emit(Event{Kind: EventUpdated, Item: item, ConversationID: item.ConversationID})
	return nil
}

// RenameConversation sets the display label of a whole conversation.
func (s *Store) RenameConversation(conversationID, name string) error {
	s.mu.Lock()
	found := false
	for i := range s.items {
		if s.items[i].ConversationID == conversationID {
			s.items[i].ConversationName = name
			found = true
		}
	}
	if !found {
		s.mu.Unlock()
		return ErrNotFound
	}
	s.persistLocked()
	s.mu.Unlock()

	s.emit(Event{Kind: EventUpdated, ConversationID: conversationID})
	return nil
}

// MoveWithinConversation reorders the items of one conversation while leaving
// every other conversation's items where they are. fromIndices and toOffset
// are positions within the conversation; the offset is applied after the
// moved items were taken out and is clamped to [0, remaining group size].
// Out-of-range source indices are ignored.
func (s *Store) MoveWithinConversation(conversationID string, fromIndices []int, toOffset int) {
	s.mu.Lock()

	var group []int
	for i, item := range s.items {
		if item.ConversationID == conversationID {
			group = append(group, i)
		}
	}

	selected := make(map[string]bool, len(fromIndices))
	for _, gi := range fromIndices {
		if gi >= 0 && gi < len(group) {
			selected[s.items[group[gi]].ID] = true
		}
	}
	if len(selected) == 0 {
		s.mu.Unlock()
		return
	}

	moved := make([]Item, 0, len(selected))
	remaining := make([]Item, 0, len(s.items)-len(selected))
	for _, item := range s.items {
		if selected[item.ID] {
			moved = append(moved, item)
		} else {
			remaining = append(remaining, item)
		}
	}

	var remainingGroup []int
	for i, item := range remaining {
		if item.ConversationID == conversationID {
			remainingGroup = append(remainingGroup, i)
		}
	}

	offset := max(0, min(toOffset, len(remainingGroup)))
	insertAt := len(remaining)
	if offset < len(remainingGroup) {
		insertAt = remainingGroup[offset]
	}

	result := make([]Item, 0, len(s.items))
	result = append(result, remaining[:insertAt]...)
	result = append(result, moved...)
	result = append(result, remaining[insertAt:]...)
	s.items = result
	s.persistLocked()
	s.mu.Unlock()

	s.emit(Event{Kind: EventReordered, ConversationID: conversationID})
}

// ToggleCollapsed flips the collapse state of a conversation section and
// returns the new state.
func (s *Store) ToggleCollapsed(conversationID string) bool {
	s.mu.Lock()
	collapsed := !s.collapsed[conversationID]
	if collapsed {
		s.collapsed[conversationID] = true
	} else {
		delete(s.collapsed, conversationID)
	}
	s.persistCollapsedLocked()
	s.mu.Unlock()

	s.emit(Event{Kind: EventCollapsed, ConversationID: conversationID})
	return collapsed
}

// IsCollapsed reports whether the conversation section is collapsed.
func (s *Store) IsCollapsed(conversationID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collapsed[conversationID]
}

// Collapsed returns the sorted set of collapsed conversation ids.
func (s *Store) Collapsed() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collapsedLocked()
}

// DownloadedMessageIDs returns the message ids already downloaded for a
// conversation, in list order.
func (s *Store) DownloadedMessageIDs(conversationID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for _, item := range s.items {
		if item.ConversationID == conversationID {
			ids = append(ids, item.MessageID)
		}
	}
	return ids
}

// HasMessage reports whether the message was already downloaded.
func (s *Store) HasMessage(conversationID, messageID string) bool {
	if messageID == "" {
		return false
	}
	for _, id := range s.DownloadedMessageIDs(conversationID) {
		if id == messageID {
			return true
		}
	}
	return false
}

// Items returns a copy of the backing list.
func (s *Store) Items() []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Item, len(s.items))
	copy(out, s.items)
	return out
}

// Len returns the number of items.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Get returns the item with id.
func (s *Store) Get(id string) (Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx := s.indexLocked(id); idx >= 0 {
		return s.items[idx], true
	}
	return Item{}, false
}

// Index returns the item's position in the backing list, or -1.
func (s *Store) Index(id string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexLocked(id)
}

// ConversationName returns the label of a conversation, falling back to its id.
func (s *Store) ConversationName(conversationID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, item := range s.items {
		if item.ConversationID == conversationID {
			if item.ConversationName != "" {
				return item.ConversationName
			}
			break
		}
	}
	return conversationID
}

// Groups returns the conversation groups ordered by their first item.
func (s *Store) Groups() []Group {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var groups []Group
	index := make(map[string]int)
	for _, item := range s.items {
		gi, ok := index[item.ConversationID]
		if !ok {
			gi = len(groups)
			index[item.ConversationID] = gi
			name := item.ConversationName
			if name == "" {
				name = item.ConversationID
			}
			groups = append(groups, Group{
				ConversationID: item.ConversationID,
				Name:           name,
				Collapsed:      s.collapsed[item.ConversationID],
			})
		}
		groups[gi].Items = append(groups[gi].Items, item)
	}
	return groups
}

// Subscribe registers fn for every store event and returns a function that
// removes the subscription. Events are delivered synchronously after the
// mutation, outside the store's lock.
func (s *Store) Subscribe(fn func(Event)) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) emit(ev Event) {
	s.subMu.Lock()
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.subs[id])
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

func (s *Store) indexLocked(id string) int {
	for i, item := range s.items {
		if item.ID == id {
			return i
		}
	}
	return -1
}

// deleteLocked removes the backing file and the list entry at idx.
func (s *Store) deleteLocked(idx int) Item {
	item := s.items[idx]
	if err := s.fs.Remove(s.Path(item)); err != nil {
		log.Warn("Failed to delete audio file", "id", item.ID, "path", s.Path(item), "error", err)
	}
	s.items = append(s.items[:idx], s.items[idx+1:]...)
	return item
}

func (s *Store) afterDelete(item Item) {
	if s.ledger != nil {
		s.ledger.Reset(item.ID)
	}
	log.Info("Download deleted", "id", item.ID, "conversation", item.ConversationID)
	s.emit(Event{Kind: EventDeleted, Item: item, ConversationID: item.ConversationID})
}

func (s *Store) collapsedLocked() []string {
	ids := make([]string, 0, len(s.collapsed))
	for id := range s.collapsed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// persistLocked writes the list and the collapsed set. Failures leave the
// in-memory state updated; the next Load simply won't see the change.
func (s *Store) persistLocked() {
	if err := prefs.Set(s.backend, prefs.KeyDownloadedItems, s.items); err != nil {
		log.Warn("Could not persist downloaded items", "error", err)
	}
	s.persistCollapsedLocked()
}

func (s *Store) persistCollapsedLocked() {
	if err := prefs.Set(s.backend, prefs.KeyCollapsedConversations, s.collapsedLocked()); err != nil {
		log.Warn("Could not persist collapsed conversations", "error", err)
	}
}
