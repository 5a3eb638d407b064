package audio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"
)

// OtoConfig configures an OtoPlayer.
type OtoConfig struct {
	FFmpeg     string // ffmpeg binary, "ffmpeg" when empty
	SampleRate int    // 44100 or 48000 Hz only
	Channels   int    // 1 = mono, 2 = stereo
}

// DefaultOtoConfig returns the default player configuration.
func DefaultOtoConfig() OtoConfig {
	return OtoConfig{
		FFmpeg:     "ffmpeg",
		SampleRate: 44100,
		Channels:   2,
	}
}

func validateConfig(cfg OtoConfig) error {
	if cfg.SampleRate != 44100 && cfg.SampleRate != 48000 {
		return fmt.Errorf("sample rate must be 44100 or 48000 Hz, got %d", cfg.SampleRate)
	}
	if cfg.Channels != 1 && cfg.Channels != 2 {
		return fmt.Errorf("channels must be 1 (mono) or 2 (stereo), got %d", cfg.Channels)
	}
	return nil
}

// oto allows a single context per process.
var (
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoErr  error
)

func sharedContext(cfg OtoConfig) (*oto.Context, error) {
	otoOnce.Do(func() {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   cfg.SampleRate,
			ChannelCount: cfg.Channels,
			Format:       oto.FormatSignedInt16LE,
		})
		if err != nil {
			otoErr = fmt.Errorf("failed to create oto context: %w", err)
			return
		}
		<-ready
		otoCtx = ctx
	})
	return otoCtx, otoErr
}

// pcmStream is the seekable PCM source handed to oto. The offset is read
// from other goroutines to derive the playback position.
type pcmStream struct {
	mu sync.Mutex
	r  *bytes.Reader
}

func newPCMStream(pcm []byte) *pcmStream {
	return &pcmStream{r: bytes.NewReader(pcm)}
}

func (s *pcmStream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Read(p)
}

func (s *pcmStream) Seek(offset int64, whence int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Seek(offset, whence)
}

func (s *pcmStream) offset() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Size() - int64(s.r.Len())
}

func (s *pcmStream) size() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Size()
}

// OtoPlayer plays files through the system audio device. Each file is decoded
// up front at the current rate; changing the rate re-decodes and resumes at
// the same media position.
//
// Decodes run under decodeMu only, so CurrentTime, Duration and the other
// controls keep answering for the previous stream while a decode is running.
type OtoPlayer struct {
	cfg OtoConfig
	ctx *oto.Context

	decodeMu sync.Mutex

	mu       sync.Mutex
	path     string
	rate     float64
	stream   *pcmStream
	player   *oto.Player
	playing  bool
	closed   bool
	finished func()

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewOtoPlayer opens the audio device and starts the end-of-track monitor.
func NewOtoPlayer(cfg OtoConfig) (*OtoPlayer, error) {
	if cfg.FFmpeg == "" {
		cfg.FFmpeg = "ffmpeg"
	}
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	ctx, err := sharedContext(cfg)
	if err != nil {
		return nil, err
	}

	p := &OtoPlayer{
		cfg:  cfg,
		ctx:  ctx,
		rate: 1.0,
		stop: make(chan struct{}),
	}
	p.wg.Add(1)
	go p.monitor()
	return p, nil
}

func (p *OtoPlayer) bytesPerSecond() float64 {
	return float64(p.cfg.SampleRate * p.cfg.Channels * 2)
}

func (p *OtoPlayer) frameSize() int64 {
	return int64(p.cfg.Channels * 2)
}

// Load implements Player.
func (p *OtoPlayer) Load(path string) error {
	p.decodeMu.Lock()
	defer p.decodeMu.Unlock()

	p.mu.Lock()
	closed, rate := p.closed, p.rate
	p.mu.Unlock()
	if closed {
		return ErrClosed
	}

	pcm, err := decodePCM(context.Background(), p.cfg.FFmpeg, path, p.cfg.SampleRate, p.cfg.Channels, rate)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.releaseLocked()
	p.stream = newPCMStream(pcm)
	p.player = p.ctx.NewPlayer(p.stream)
	p.path = path
	p.playing = false

	log.Debug("Audio loaded", "path", path, "bytes", len(pcm), "rate", rate)
	return nil
}

// Play implements Player.
func (p *OtoPlayer) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	if p.player == nil {
		return ErrNotLoaded
	}
	p.player.Play()
	p.playing = true
	return nil
}

// Pause implements Player.
func (p *OtoPlayer) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	if p.player == nil {
		return ErrNotLoaded
	}
	p.player.Pause()
	p.playing = false
	return nil
}

// Seek implements Player.
func (p *OtoPlayer) Seek(seconds float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	if p.player == nil {
		return ErrNotLoaded
	}
	return p.seekLocked(clampPosition(seconds, p.durationLocked()))
}

func (p *OtoPlayer) seekLocked(seconds float64) error {
	offset := int64(seconds / p.rate * p.bytesPerSecond())
	offset -= offset % p.frameSize()
	if size := p.stream.size(); offset > size {
		offset = size
	}
	if _, err := p.player.Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("seek: %w", err)
	}
	return nil
}

// CurrentTime implements Player.
func (p *OtoPlayer) CurrentTime() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentTimeLocked()
}

func (p *OtoPlayer) currentTimeLocked() float64 {
	if p.player == nil {
		return 0
	}
	played := p.stream.offset() - int64(p.player.BufferedSize())
	if played < 0 {
		played = 0
	}
	return float64(played) / p.bytesPerSecond() * p.rate
}

// Duration implements Player.
func (p *OtoPlayer) Duration() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.durationLocked()
}

func (p *OtoPlayer) durationLocked() float64 {
	if p.stream == nil {
		return 0
	}
	return float64(p.stream.size()) / p.bytesPerSecond() * p.rate
}

// SetRate implements Player.
func (p *OtoPlayer) SetRate(rate float64) error {
	p.decodeMu.Lock()
	defer p.decodeMu.Unlock()

	rate = ClampRate(rate)
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	if rate == p.rate {
		p.mu.Unlock()
		return nil
	}
	if p.player == nil {
		p.rate = rate
		p.mu.Unlock()
		return nil
	}
	path := p.path
	p.mu.Unlock()

	pcm, err := decodePCM(context.Background(), p.cfg.FFmpeg, path, p.cfg.SampleRate, p.cfg.Channels, rate)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}

	// the position keeps moving during the decode, take it at the swap
	pos := p.currentTimeLocked()
	playing := p.playing
	p.releaseLocked()
	p.rate = rate
	p.stream = newPCMStream(pcm)
	p.player = p.ctx.NewPlayer(p.stream)
	if err := p.seekLocked(pos); err != nil {
		return err
	}
	if playing {
		p.player.Play()
		p.playing = true
	}
	return nil
}

// OnFinished implements Player.
func (p *OtoPlayer) OnFinished(fn func()) {
	p.mu.Lock()
	p.finished = fn
	p.mu.Unlock()
}

// Close stops playback and the monitor goroutine.
func (p *OtoPlayer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.releaseLocked()
	p.mu.Unlock()

	close(p.stop)
	p.wg.Wait()
	return nil
}

func (p *OtoPlayer) releaseLocked() {
	if p.player != nil {
		p.player.Pause()
		if err := p.player.Close(); err != nil {
			log.Debug("Closing oto player", "error", err)
		}
		p.player = nil
	}
	p.stream = nil
	p.playing = false
}

// monitor detects the natural end of a track: oto stops playing on its own
// once the source is drained.
func (p *OtoPlayer) monitor() {
	defer p.wg.Done()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
		}

		p.mu.Lock()
		var fn func()
		if p.playing && p.player != nil && !p.player.IsPlaying() {
			p.playing = false
			if err := p.player.Err(); err != nil {
				log.Warn("Playback stopped with error", "path", p.path, "error", err)
			}
			fn = p.finished
		}
		p.mu.Unlock()

		if fn != nil {
			fn()
		}
	}
}
