// Package nowplaying publishes what is currently playing to system-wide
// surfaces (terminal status lines, websocket clients, logs) and defines the
// remote commands those surfaces send back.
package nowplaying

import (
	"errors"
	"sync"

	"github.com/charmbracelet/log"
)

// Info is a snapshot of the playing item.
type Info struct {
	ItemID     string  `json:"itemId"`
	Title      string  `json:"title"`
	Elapsed    float64 `json:"elapsed"`
	Duration   float64 `json:"duration"`
	Rate       float64 `json:"rate"`
	Playing    bool    `json:"playing"`
	QueueIndex int     `json:"queueIndex"`
	QueueCount int     `json:"queueCount"`
	Artwork    string  `json:"artwork,omitempty"`
}

// Empty reports whether the info describes no item at all.
func (i Info) Empty() bool { return i.ItemID == "" }

// Surface receives now-playing updates.
type Surface interface {
	Publish(Info) error
	// Clear removes any published info.
	Clear()
}

// Nop discards every update.
type Nop struct{}

// Publish implements Surface.
func (Nop) Publish(Info) error { return nil }

// Clear implements Surface.
func (Nop) Clear() {}

// LogSurface writes updates to a logger at debug level.
type LogSurface struct {
	Logger *log.Logger
}

// Publish implements Surface.
func (s LogSurface) Publish(info Info) error {
	logger := s.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger.Debug("Now playing",
		"title", info.Title,
		"elapsed", info.Elapsed,
		"duration", info.Duration,
		"rate", info.Rate,
		"playing", info.Playing,
		"queue", info.QueueIndex,
		"of", info.QueueCount,
	)
	return nil
}

// Clear implements Surface.
func (s LogSurface) Clear() {
	logger := s.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger.Debug("Now playing cleared")
}

// ChanSurface hands updates to a consumer over a channel. When the consumer
// lags, the oldest pending update is dropped so publishers never block.
type ChanSurface struct {
	mu sync.Mutex
	ch chan Info
}

// NewChanSurface creates a surface with the given buffer size (at least 1).
func NewChanSurface(size int) *ChanSurface {
	if size < 1 {
		size = 1
	}
	return &ChanSurface{ch: make(chan Info, size)}
}

// Updates returns the receive side of the surface.
func (s *ChanSurface) Updates() <-chan Info { return s.ch }

// Publish implements Surface.
func (s *ChanSurface) Publish(info Info) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		select {
		case s.ch <- info:
			return nil
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}

// Clear publishes an empty Info.
func (s *ChanSurface) Clear() { _ = s.Publish(Info{}) }

// Multi fans updates out to several surfaces.
type Multi []Surface

// Publish implements Surface. Every surface is attempted; errors are joined.
func (m Multi) Publish(info Info) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(info); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Clear implements Surface.
func (m Multi) Clear() {
	for _, s := range m {
		s.Clear()
	}
}
