package audio

import (
	"errors"
	"math"
)

var (
	// ErrNotLoaded is returned by transport controls before a file was loaded.
	ErrNotLoaded = errors.New("no file loaded")
	// ErrClosed is returned once the player was closed.
	ErrClosed = errors.New("player is closed")
)

// Rate bounds accepted by players. ffmpeg's atempo filter supports the same
// range without chaining.
const (
	MinRate = 0.5
	MaxRate = 2.0
)

// Player plays one file at a time. Positions and durations are media seconds,
// independent of the playback rate.
type Player interface {
	// Load replaces the current file. The player is left paused at 0.
	Load(path string) error
	Play() error
	Pause() error
	// Seek moves to the given position, clamped to [0, Duration].
	Seek(seconds float64) error
	CurrentTime() float64
	Duration() float64
	SetRate(rate float64) error
	// OnFinished registers the hook invoked when a track reaches its natural
	// end. The hook runs on the player's goroutine and must not block.
	OnFinished(fn func())
	Close() error
}

// ClampRate bounds rate to [MinRate, MaxRate].
func ClampRate(rate float64) float64 {
	if rate < MinRate {
		return MinRate
	}
	if rate > MaxRate {
		return MaxRate
	}
	return rate
}

func clampPosition(seconds, duration float64) float64 {
	if seconds < 0 || math.IsNaN(seconds) {
		return 0
	}
	if duration > 0 && seconds > duration {
		return duration
	}
	return seconds
}
