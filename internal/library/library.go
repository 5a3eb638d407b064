// Package library keeps the user's saved system prompts, notes and selected
// message fragments.
package library

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/dgnsrekt/audiofetch/internal/prefs"
)

var (
	// ErrNotFound is returned when no entry has the given id.
	ErrNotFound = errors.New("entry not found")
	// ErrEmptyText is returned when adding or updating with blank text.
	ErrEmptyText = errors.New("text is empty")
)

// Prompt is a saved system prompt.
type Prompt struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Note is a piece of text attached to a message.
type Note struct {
	ID             string    `json:"id"`
	Text           string    `json:"text"`
	MessageID      string    `json:"messageId"`
	ConversationID string    `json:"conversationId"`
	Timestamp      time.Time `json:"timestamp"`
}

// Fragment is a selection taken from a message. It has the same shape as a
// Note but lives in its own collection.
type Fragment Note

type entry interface {
	Prompt | Note | Fragment
}

// Collection is an ordered list of entries persisted under one key.
type Collection[T entry] struct {
	mu      sync.Mutex
	backend prefs.Backend
	key     string
	items   []T
	id      func(T) string
}

func newCollection[T entry](backend prefs.Backend, key string, id func(T) string) *Collection[T] {
	return &Collection[T]{
		backend: backend,
		key:     key,
		items:   prefs.GetOr(backend, key, []T{}),
		id:      id,
	}
}

// List returns a copy of the entries in insertion order.
func (c *Collection[T]) List() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]T(nil), c.items...)
}

// Len returns the number of entries.
func (c *Collection[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Get returns the entry with the given id.
func (c *Collection[T]) Get(id string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.indexLocked(id); i >= 0 {
		return c.items[i], true
	}
	var zero T
	return zero, false
}

// Remove deletes the entry with the given id.
func (c *Collection[T]) Remove(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.indexLocked(id)
	if i < 0 {
		return ErrNotFound
	}
	c.items = append(c.items[:i], c.items[i+1:]...)
	return c.saveLocked()
}

func (c *Collection[T]) add(v T) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append(c.items, v)
	return c.saveLocked()
}

func (c *Collection[T]) update(id string, fn func(*T)) (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.indexLocked(id)
	if i < 0 {
		var zero T
		return zero, ErrNotFound
	}
	fn(&c.items[i])
	return c.items[i], c.saveLocked()
}

func (c *Collection[T]) indexLocked(id string) int {
	for i, v := range c.items {
		if c.id(v) == id {
			return i
		}
	}
	return -1
}

func (c *Collection[T]) saveLocked() error {
	if err := prefs.Set(c.backend, c.key, c.items); err != nil {
		log.Warn("Could not persist library", "key", c.key, "error", err)
		return err
	}
	return nil
}

// Library groups the three collections.
type Library struct {
	Prompts   *Collection[Prompt]
	Notes     *Collection[Note]
	Fragments *Collection[Fragment]

	backend prefs.Backend
	now     func() time.Time
	newID   func() string
}

// New loads the library from the backend.
func New(backend prefs.Backend) *Library {
	return &Library{
		Prompts:   newCollection(backend, prefs.KeySystemPrompts, func(p Prompt) string { return p.ID }),
		Notes:     newCollection(backend, prefs.KeyNotes, func(n Note) string { return n.ID }),
		Fragments: newCollection(backend, prefs.KeySelectedFragments, func(f Fragment) string { return f.ID }),
		backend:   backend,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// AddPrompt saves a new system prompt.
func (l *Library) AddPrompt(text string) (Prompt, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Prompt{}, ErrEmptyText
	}
	p := Prompt{ID: l.newID(), Text: text}
	return p, l.Prompts.add(p)
}

// UpdatePrompt replaces the text of a saved prompt.
func (l *Library) UpdatePrompt(id, text string) (Prompt, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Prompt{}, ErrEmptyText
	}
	return l.Prompts.update(id, func(p *Prompt) { p.Text = text })
}

// SelectPrompt marks the prompt that Compose uses by default. An empty id
// clears the selection.
func (l *Library) SelectPrompt(id string) error {
	if id != "" {
		if _, ok := l.Prompts.Get(id); !ok {
			return ErrNotFound
		}
	}
	return prefs.Set(l.backend, prefs.KeySelectedPrompt, id)
}

// SelectedPrompt returns the selected prompt. A selection whose prompt was
// removed reads as none.
func (l *Library) SelectedPrompt() (Prompt, bool) {
	id := prefs.GetOr(l.backend, prefs.KeySelectedPrompt, "")
	if id == "" {
		return Prompt{}, false
	}
	return l.Prompts.Get(id)
}

// promptSeparator sits between a system prompt and the text sent after it.
const promptSeparator = "\n\n\n"

// Compose builds the text to type into the chat page: the prompt, a blank
// gap, then text. An empty promptID falls back to the selected prompt, and
// to text alone when nothing is selected.
func (l *Library) Compose(promptID, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyText
	}
	var (
		p  Prompt
		ok bool
	)
	if promptID == "" {
		p, ok = l.SelectedPrompt()
	} else if p, ok = l.Prompts.Get(promptID); !ok {
		return "", ErrNotFound
	}
	if !ok {
		return text, nil
	}
	return p.Text + promptSeparator + text, nil
}

// AddNote attaches a note to a message.
func (l *Library) AddNote(text, messageID, conversationID string) (Note, error) {
	if strings.TrimSpace(text) == "" {
		return Note{}, ErrEmptyText
	}
	n := Note{
		ID:             l.newID(),
		Text:           text,
		MessageID:      messageID,
		ConversationID: conversationID,
		Timestamp:      l.now(),
	}
	return n, l.Notes.add(n)
}

// UpdateNote replaces the text of a note, keeping its message and time.
func (l *Library) UpdateNote(id, text string) (Note, error) {
	if strings.TrimSpace(text) == "" {
		return Note{}, ErrEmptyText
	}
	return l.Notes.update(id, func(n *Note) { n.Text = text })
}

// AddFragment records a selection from a message.
func (l *Library) AddFragment(text, messageID, conversationID string) (Fragment, error) {
	if strings.TrimSpace(text) == "" {
		return Fragment{}, ErrEmptyText
	}
	f := Fragment{
		ID:             l.newID(),
		Text:           text,
		MessageID:      messageID,
		ConversationID: conversationID,
		Timestamp:      l.now(),
	}
	return f, l.Fragments.add(f)
}

// UpdateFragment replaces the text of a fragment.
func (l *Library) UpdateFragment(id, text string) (Fragment, error) {
	if strings.TrimSpace(text) == "" {
		return Fragment{}, ErrEmptyText
	}
	return l.Fragments.update(id, func(f *Fragment) { f.Text = text })
}

// NotesFor returns the notes attached to a conversation, oldest first.
func (l *Library) NotesFor(conversationID string) []Note {
	var out []Note
	for _, n := range l.Notes.List() {
		if n.ConversationID == conversationID {
			out = append(out, n)
		}
	}
	return out
}
