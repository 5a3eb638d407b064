package audio

import (
	"errors"
	"sync"
)

// MockPlayer implements Player for tests without producing sound. Time only
// moves when the test says so.
type MockPlayer struct {
	mu sync.Mutex

	path     string
	playing  bool
	closed   bool
	position float64
	duration float64
	rate     float64
	finished func()

	// Durations maps loaded paths to their reported duration. Unknown paths
	// get DefaultDuration.
	Durations       map[string]float64
	DefaultDuration float64

	// LoadErr, when set, fails every Load.
	LoadErr error

	loads []string
}

// NewMockPlayer creates a mock player reporting 60s for every file.
func NewMockPlayer() *MockPlayer {
	return &MockPlayer{
		rate:            1.0,
		DefaultDuration: 60,
		Durations:       make(map[string]float64),
	}
}

// Load implements Player.
func (m *MockPlayer) Load(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if m.LoadErr != nil {
		return m.LoadErr
	}
	if path == "" {
		return errors.New("empty path")
	}

	m.path = path
	m.playing = false
	m.position = 0
	m.duration = m.DefaultDuration
	if d, ok := m.Durations[path]; ok {
		m.duration = d
	}
	m.loads = append(m.loads, path)
	return nil
}

// Play implements Player.
func (m *MockPlayer) Play() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkLocked(); err != nil {
		return err
	}
	m.playing = true
	return nil
}

// Pause implements Player.
func (m *MockPlayer) Pause() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkLocked(); err != nil {
		return err
	}
	m.playing = false
	return nil
}

// Seek implements Player.
func (m *MockPlayer) Seek(seconds float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkLocked(); err != nil {
		return err
	}
	m.position = clampPosition(seconds, m.duration)
	return nil
}

// CurrentTime implements Player.
func (m *MockPlayer) CurrentTime() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.position
}

// Duration implements Player.
func (m *MockPlayer) Duration() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.duration
}

// SetRate implements Player.
func (m *MockPlayer) SetRate(rate float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	m.rate = ClampRate(rate)
	return nil
}

// OnFinished implements Player.
func (m *MockPlayer) OnFinished(fn func()) {
	m.mu.Lock()
	m.finished = fn
	m.mu.Unlock()
}

// Close implements Player.
func (m *MockPlayer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.playing = false
	return nil
}

// Advance moves the position forward by seconds of media time while playing,
// stopping at the end of the track without firing the finish hook.
func (m *MockPlayer) Advance(seconds float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.playing {
		m.position = clampPosition(m.position+seconds, m.duration)
	}
}

// Finish simulates the natural end of the track and runs the finish hook.
func (m *MockPlayer) Finish() {
	m.mu.Lock()
	m.playing = false
	m.position = m.duration
	fn := m.finished
	m.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// IsPlaying reports whether Play was called without a later Pause.
func (m *MockPlayer) IsPlaying() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playing
}

// Path returns the loaded file.
func (m *MockPlayer) Path() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.path
}

// Rate returns the rate last applied.
func (m *MockPlayer) Rate() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rate
}

// Loads returns every path passed to a successful Load, in order.
func (m *MockPlayer) Loads() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.loads))
	copy(out, m.loads)
	return out
}

func (m *MockPlayer) checkLocked() error {
	if m.closed {
		return ErrClosed
	}
	if m.path == "" {
		return ErrNotLoaded
	}
	return nil
}
