// Package progress keeps the per-item playback ledger: the last known relative
// position and absolute position of every downloaded item, independent of
// whether the item is currently loaded in the player.
package progress

import (
	"math"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/audiofetch/internal/prefs"
)

// Entry is the stored progress of one item.
type Entry struct {
	Fraction     float64 `json:"fraction"`     // 0.0-1.0
	LastPosition float64 `json:"lastPosition"` // seconds
}

// Ledger maps item ids to their progress and persists every change.
type Ledger struct {
	mu      sync.RWMutex
	entries map[string]Entry
	backend prefs.Backend
}

// NewLedger loads the ledger from backend. An unreadable ledger starts empty.
func NewLedger(backend prefs.Backend) *Ledger {
	entries := prefs.GetOr(backend, prefs.KeyProgress, map[string]Entry{})
	if entries == nil {
		entries = make(map[string]Entry)
	}
	return &Ledger{entries: entries, backend: backend}
}

// Get returns the progress for id, or the zero Entry when none is stored.
func (l *Ledger) Get(id string) Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.entries[id]
}

// Set overwrites the progress for id.
func (l *Ledger) Set(id string, e Entry) {
	l.mu.Lock()
	e.Fraction = clampFraction(e.Fraction)
	if e.LastPosition < 0 {
		e.LastPosition = 0
	}
	l.entries[id] = e
	l.persistLocked()
	l.mu.Unlock()
}

// Reset drops the entry for id.
func (l *Ledger) Reset(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.entries[id]; !ok {
		return
	}
	delete(l.entries, id)
	l.persistLocked()
}

// Len returns the number of tracked items.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Snapshot returns a copy of every entry.
func (l *Ledger) Snapshot() map[string]Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]Entry, len(l.entries))
	for k, v := range l.entries {
		out[k] = v
	}
	return out
}

func (l *Ledger) persistLocked() {
	if l.backend == nil {
		return
	}
	if err := prefs.Set(l.backend, prefs.KeyProgress, l.entries); err != nil {
		log.Warn("Could not persist progress ledger", "error", err)
	}
}

func clampFraction(f float64) float64 {
	switch {
	case math.IsNaN(f):
		return 0
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}
