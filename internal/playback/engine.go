// Package playback owns the single active player and mediates between the
// current item, the progress ledger, the playback rate and the now-playing
// surfaces.
package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"

	"github.com/dgnsrekt/audiofetch/internal/audio"
	"github.com/dgnsrekt/audiofetch/internal/nowplaying"
	"github.com/dgnsrekt/audiofetch/internal/prefs"
	"github.com/dgnsrekt/audiofetch/internal/progress"
	"github.com/dgnsrekt/audiofetch/internal/store"
)

var (
	// ErrUnknownItem is returned when an id is not in the store.
	ErrUnknownItem = errors.New("unknown item")
	// ErrFileMissing is returned when an item's backing file is gone. The
	// engine state is left untouched.
	ErrFileMissing = errors.New("audio file missing")
	// ErrNothingLoaded is returned by controls that need a current item.
	ErrNothingLoaded = errors.New("nothing loaded")
)

// TickInterval is how often progress is checkpointed while playing.
const TickInterval = time.Second

// Options configures an Engine.
type Options struct {
	Store   *store.Store
	Ledger  *progress.Ledger
	Player  audio.Player
	Backend prefs.Backend
	Surface nowplaying.Surface

	Navigation   Navigation
	SkipInterval float64 // seconds; defaults to nowplaying.DefaultSkipInterval
}

// State is a snapshot of the engine.
type State struct {
	Item        *store.Item `json:"item,omitempty"`
	Playing     bool        `json:"playing"`
	CurrentTime float64     `json:"currentTime"`
	Duration    float64     `json:"duration"`
	Rate        float64     `json:"rate"`
	Navigation  Navigation  `json:"navigation"`
}

// Fraction returns the position as a fraction of the duration.
func (s State) Fraction() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return min(1, s.CurrentTime/s.Duration)
}

// Engine drives playback. All methods are safe for concurrent use; the
// player's finish notification and the progress ticker are dispatched by Run.
//
// Controls are serialized by ops, which is held across player I/O such as
// decoding a file. The fields under mu are written only while ops is held and
// mu is never held across player I/O, so State, Position and Rate do not wait
// for a load to finish.
type Engine struct {
	ops sync.Mutex

	store   *store.Store
	ledger  *progress.Ledger
	player  audio.Player
	backend prefs.Backend
	surface nowplaying.Surface
	nav     Navigation
	skip    float64

	mu      sync.RWMutex
	current *store.Item
	loaded  bool
	playing bool
	rate    float64

	finished    chan struct{}
	unsubscribe func()
}

// New creates an engine and restores the persisted current item and rate.
// The restored item is loaded and positioned but not started.
func New(opts Options) *Engine {
	if opts.Surface == nil {
		opts.Surface = nowplaying.Nop{}
	}
	if opts.Backend == nil {
		opts.Backend = prefs.NewMemory()
	}
	if opts.Ledger == nil {
		opts.Ledger = progress.NewLedger(opts.Backend)
	}
	if opts.Navigation == "" {
		opts.Navigation = NavigateList
	}
	if opts.SkipInterval <= 0 {
		opts.SkipInterval = nowplaying.DefaultSkipInterval
	}

	e := &Engine{
		store:    opts.Store,
		ledger:   opts.Ledger,
		player:   opts.Player,
		backend:  opts.Backend,
		surface:  opts.Surface,
		nav:      opts.Navigation,
		skip:     opts.SkipInterval,
		rate:     audio.ClampRate(prefs.GetOr(opts.Backend, prefs.KeyPlaybackRate, DefaultRate)),
		finished: make(chan struct{}, 1),
	}

	e.player.OnFinished(func() {
		select {
		case e.finished <- struct{}{}:
		default:
		}
	})
	if err := e.player.SetRate(e.rate); err != nil {
		log.Warn("Could not apply playback rate", "rate", e.rate, "error", err)
	}

	e.restore()
	e.unsubscribe = e.store.Subscribe(e.onStoreEvent)
	return e
}

func (e *Engine) restore() {
	id, ok := prefs.Get[string](e.backend, prefs.KeyCurrentItemID)
	if !ok || id == "" {
		return
	}
	item, ok := e.store.Get(id)
	if !ok {
		log.Debug("Persisted current item no longer exists", "id", id)
		return
	}

	e.ops.Lock()
	defer e.ops.Unlock()
	if err := e.loadLocked(item); err != nil {
		log.Debug("Could not restore current item", "id", id, "error", err)
	}
}

// Run dispatches progress ticks and end-of-track notifications until ctx is
// done.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.Tick()
		case <-e.finished:
			e.HandleFinished()
		}
	}
}

// Close detaches the engine from the store and pauses the player.
func (e *Engine) Close() error {
	if e.unsubscribe != nil {
		e.unsubscribe()
	}

	e.ops.Lock()
	defer e.ops.Unlock()
	if e.playing {
		e.pauseLocked()
	}
	return nil
}

// Play starts the item. Calling Play for the current item while it plays
// pauses it instead. A missing backing file leaves everything as it was.
func (e *Engine) Play(id string) error {
	item, ok := e.store.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownItem, id)
	}

	e.ops.Lock()
	defer e.ops.Unlock()

	if e.isCurrentLocked(id) && e.loaded {
		if e.playing {
			e.pauseLocked()
			return nil
		}
		return e.startLocked()
	}
	return e.playItemLocked(item)
}

// Pause stops the player and checkpoints progress.
func (e *Engine) Pause() error {
	e.ops.Lock()
	defer e.ops.Unlock()

	if !e.loaded {
		return ErrNothingLoaded
	}
	if e.playing {
		e.pauseLocked()
	}
	return nil
}

// Resume starts the current item if it is paused.
func (e *Engine) Resume() error {
	e.ops.Lock()
	defer e.ops.Unlock()

	if !e.loaded {
		return ErrNothingLoaded
	}
	if e.playing {
		return nil
	}
	return e.startLocked()
}

// Toggle pauses when playing and resumes the current item otherwise.
func (e *Engine) Toggle() error {
	e.ops.Lock()
	defer e.ops.Unlock()

	if !e.loaded {
		return ErrNothingLoaded
	}
	if e.playing {
		e.pauseLocked()
		return nil
	}
	return e.startLocked()
}

// SeekFraction moves to fraction of the current item's duration.
func (e *Engine) SeekFraction(fraction float64) error {
	e.ops.Lock()
	defer e.ops.Unlock()

	if !e.loaded {
		return ErrNothingLoaded
	}
	fraction = max(0, min(1, fraction))
	return e.seekLocked(fraction * e.player.Duration())
}

// SeekTo moves to an absolute position, clamped to the duration.
func (e *Engine) SeekTo(seconds float64) error {
	e.ops.Lock()
	defer e.ops.Unlock()

	if !e.loaded {
		return ErrNothingLoaded
	}
	return e.seekLocked(max(0, min(seconds, e.player.Duration())))
}

// SeekRelative moves by delta seconds. Crossing the start of the track steps
// to the previous item and crossing the end steps to the next one; without a
// neighbor the position is clamped instead.
func (e *Engine) SeekRelative(delta float64) error {
	e.ops.Lock()
	defer e.ops.Unlock()

	if !e.loaded {
		return ErrNothingLoaded
	}

	duration := e.player.Duration()
	target := e.player.CurrentTime() + delta

	switch {
	case target >= duration:
		if next, ok := e.neighborLocked(1); ok {
			return e.playItemLocked(next)
		}
		return e.seekLocked(duration)
	case target <= 0:
		if prev, ok := e.neighborLocked(-1); ok {
			return e.playItemLocked(prev)
		}
		return e.seekLocked(0)
	default:
		return e.seekLocked(target)
	}
}

// PlayNext plays the item after the current one. It is a no-op at the end.
func (e *Engine) PlayNext() error {
	e.ops.Lock()
	defer e.ops.Unlock()
	return e.stepLocked(1)
}

// PlayPrevious plays the item before the current one. It is a no-op at the
// start.
func (e *Engine) PlayPrevious() error {
	e.ops.Lock()
	defer e.ops.Unlock()
	return e.stepLocked(-1)
}

func (e *Engine) stepLocked(step int) error {
	if e.current == nil {
		return ErrNothingLoaded
	}
	item, ok := e.neighborLocked(step)
	if !ok {
		log.Debug("No neighbor to play", "id", e.current.ID, "step", step, "navigation", e.nav)
		return nil
	}
	return e.playItemLocked(item)
}

// SetPlaybackRate clamps, persists and applies rate.
func (e *Engine) SetPlaybackRate(rate float64) error {
	e.ops.Lock()
	defer e.ops.Unlock()
	return e.setRateLocked(audio.ClampRate(rate))
}

// IncreaseRate steps the rate up by 0.25 and returns the new rate.
func (e *Engine) IncreaseRate() (float64, error) {
	e.ops.Lock()
	defer e.ops.Unlock()
	err := e.setRateLocked(nextRateStep(e.rate))
	return e.rate, err
}

// DecreaseRate steps the rate down by 0.25 and returns the new rate.
func (e *Engine) DecreaseRate() (float64, error) {
	e.ops.Lock()
	defer e.ops.Unlock()
	err := e.setRateLocked(prevRateStep(e.rate))
	return e.rate, err
}

func (e *Engine) setRateLocked(rate float64) error {
	e.mu.Lock()
	e.rate = rate
	e.mu.Unlock()
	if err := prefs.Set(e.backend, prefs.KeyPlaybackRate, rate); err != nil {
		log.Warn("Could not persist playback rate", "error", err)
	}
	if err := e.player.SetRate(rate); err != nil {
		return fmt.Errorf("set rate: %w", err)
	}
	e.publishLocked()
	return nil
}

// Tick checkpoints the current position into the ledger and refreshes the
// now-playing surface. It does nothing unless an item is playing.
func (e *Engine) Tick() {
	e.ops.Lock()
	defer e.ops.Unlock()

	if !e.playing || e.current == nil {
		return
	}
	e.checkpointLocked()
	e.publishLocked()
}

// HandleFinished reacts to the natural end of a track: pause, then advance.
func (e *Engine) HandleFinished() {
	e.ops.Lock()
	defer e.ops.Unlock()

	if e.current == nil {
		return
	}
	if e.playing {
		e.pauseLocked()
	}
	if err := e.stepLocked(1); err != nil {
		log.Warn("Could not advance after track end", "error", err)
	}
}

// HandleCommand applies a remote command.
func (e *Engine) HandleCommand(cmd nowplaying.Command) error {
	switch cmd.Kind {
	case nowplaying.CommandPlay:
		return e.Resume()
	case nowplaying.CommandPause:
		return e.Pause()
	case nowplaying.CommandToggle:
		return e.Toggle()
	case nowplaying.CommandSeekTo:
		return e.SeekTo(cmd.Value)
	case nowplaying.CommandNext:
		return e.PlayNext()
	case nowplaying.CommandPrevious:
		return e.PlayPrevious()
	case nowplaying.CommandSkipForward, nowplaying.CommandSkipBackward:
		if cmd.Value <= 0 {
			cmd.Value = e.skip
		}
		return e.SeekRelative(cmd.SkipSeconds())
	default:
		return fmt.Errorf("%w: %v", nowplaying.ErrUnknownCommand, cmd.Kind)
	}
}

// State returns a snapshot of the engine.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()

	s := State{Playing: e.playing, Rate: e.rate, Navigation: e.nav}
	if e.current != nil {
		item := *e.current
		s.Item = &item
		if e.loaded {
			s.CurrentTime = e.player.CurrentTime()
			s.Duration = e.player.Duration()
		}
	}
	return s
}

// Position returns the position of any item: live for the current one, from
// the ledger otherwise.
func (e *Engine) Position(id string) (seconds, fraction float64) {
	e.mu.RLock()
	if e.loaded && e.isCurrentLocked(id) {
		seconds = e.player.CurrentTime()
		if d := e.player.Duration(); d > 0 {
			fraction = seconds / d
		}
		e.mu.RUnlock()
		return seconds, fraction
	}
	e.mu.RUnlock()

	entry := e.ledger.Get(id)
	return entry.LastPosition, entry.Fraction
}

// Rate returns the playback rate.
func (e *Engine) Rate() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.rate
}

func (e *Engine) isCurrentLocked(id string) bool {
	return e.current != nil && e.current.ID == id
}

func (e *Engine) neighborLocked(step int) (store.Item, bool) {
	if e.current == nil {
		return store.Item{}, false
	}
	return e.nav.neighbor(e.store.Items(), e.current.ID, step)
}

// playItemLocked loads item when it is not the loaded one and starts it.
func (e *Engine) playItemLocked(item store.Item) error {
	if !e.loaded || !e.isCurrentLocked(item.ID) {
		if err := e.checkFileLocked(item); err != nil {
			return err
		}
		if e.playing {
			e.pauseLocked()
		}
		if err := e.loadLocked(item); err != nil {
			return err
		}
	}
	return e.startLocked()
}

// loadLocked loads the item's file, makes it current and restores its
// progress. On failure the previous state is kept.
func (e *Engine) loadLocked(item store.Item) error {
	if err := e.checkFileLocked(item); err != nil {
		return err
	}
	path := e.store.Path(item)
	if err := e.player.Load(path); err != nil {
		log.Warn("Could not load audio", "id", item.ID, "path", path, "error", err)
		return fmt.Errorf("load %s: %w", item.ID, err)
	}

	e.mu.Lock()
	e.current = &item
	e.loaded = true
	e.playing = false
	e.mu.Unlock()
	if err := prefs.Set(e.backend, prefs.KeyCurrentItemID, item.ID); err != nil {
		log.Warn("Could not persist current item", "error", err)
	}
	if err := e.player.SetRate(e.rate); err != nil {
		log.Warn("Could not apply playback rate", "rate", e.rate, "error", err)
	}

	if pos := e.resumePositionLocked(item.ID); pos > 0 {
		if err := e.player.Seek(pos); err != nil {
			log.Warn("Could not restore position", "id", item.ID, "position", pos, "error", err)
		}
	}
	return nil
}

func (e *Engine) checkFileLocked(item store.Item) error {
	path := e.store.Path(item)
	if ok, _ := afero.Exists(e.store.Fs(), path); !ok {
		log.Warn("Audio file missing", "id", item.ID, "path", path)
		return ErrFileMissing
	}
	return nil
}

// resumePositionLocked derives where a freshly loaded item starts. Finished
// items start over.
func (e *Engine) resumePositionLocked(id string) float64 {
	entry := e.ledger.Get(id)
	duration := e.player.Duration()
	if duration <= 0 || entry.Fraction >= 1 {
		return 0
	}
	pos := entry.Fraction * duration
	if pos == 0 {
		pos = entry.LastPosition
	}
	if pos >= duration {
		return 0
	}
	return pos
}

func (e *Engine) startLocked() error {
	if d := e.player.Duration(); d > 0 && e.player.CurrentTime() >= d {
		if err := e.player.Seek(0); err != nil {
			log.Debug("Could not rewind finished track", "error", err)
		}
	}
	if err := e.player.Play(); err != nil {
		return fmt.Errorf("play: %w", err)
	}
	e.mu.Lock()
	e.playing = true
	e.mu.Unlock()
	log.Debug("Playback started", "id", e.current.ID, "rate", e.rate)
	e.publishLocked()
	return nil
}

func (e *Engine) pauseLocked() {
	if err := e.player.Pause(); err != nil {
		log.Debug("Player pause failed", "error", err)
	}
	e.mu.Lock()
	e.playing = false
	e.mu.Unlock()
	e.checkpointLocked()
	e.publishLocked()
}

func (e *Engine) seekLocked(seconds float64) error {
	if err := e.player.Seek(seconds); err != nil {
		return fmt.Errorf("seek: %w", err)
	}
	e.checkpointLocked()
	e.publishLocked()
	return nil
}

func (e *Engine) checkpointLocked() {
	if e.current == nil || !e.loaded {
		return
	}
	pos := e.player.CurrentTime()
	fraction := 0.0
	if d := e.player.Duration(); d > 0 {
		fraction = pos / d
	}
	e.ledger.Set(e.current.ID, progress.Entry{Fraction: fraction, LastPosition: pos})
}

func (e *Engine) publishLocked() {
	if e.current == nil {
		return
	}
	info := nowplaying.Info{
		ItemID:     e.current.ID,
		Title:      e.current.DisplayName,
		Elapsed:    e.player.CurrentTime(),
		Duration:   e.player.Duration(),
		Rate:       e.rate,
		Playing:    e.playing,
		QueueIndex: e.store.Index(e.current.ID),
		QueueCount: e.store.Len(),
	}
	if err := e.surface.Publish(info); err != nil {
		log.Debug("Now-playing publish failed", "error", err)
	}
}

// stopLocked forgets the current item without touching the ledger.
func (e *Engine) stopLocked() {
	if e.playing {
		if err := e.player.Pause(); err != nil {
			log.Debug("Player pause failed", "error", err)
		}
	}
	e.mu.Lock()
	e.current = nil
	e.loaded = false
	e.playing = false
	e.mu.Unlock()
	if err := e.backend.Delete(prefs.KeyCurrentItemID); err != nil {
		log.Warn("Could not clear current item", "error", err)
	}
	e.surface.Clear()
}

func (e *Engine) onStoreEvent(ev store.Event) {
	e.ops.Lock()
	defer e.ops.Unlock()

	if e.current == nil {
		return
	}

	switch ev.Kind {
	case store.EventDeleted:
		if ev.Item.ID == e.current.ID {
			log.Debug("Current item deleted, stopping", "id", ev.Item.ID)
			e.stopLocked()
		}
	case store.EventReloaded:
		if _, ok := e.store.Get(e.current.ID); !ok {
			e.stopLocked()
		}
	case store.EventUpdated:
		if item, ok := e.store.Get(e.current.ID); ok {
			e.mu.Lock()
			e.current = &item
			e.mu.Unlock()
			e.publishLocked()
		}
	}
}
