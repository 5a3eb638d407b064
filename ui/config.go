package ui

import (
	"time"

	"github.com/dgnsrekt/audiofetch/internal/bridge"
	"github.com/dgnsrekt/audiofetch/internal/intercept"
	"github.com/dgnsrekt/audiofetch/internal/library"
	"github.com/dgnsrekt/audiofetch/internal/nowplaying"
	"github.com/dgnsrekt/audiofetch/internal/page"
	"github.com/dgnsrekt/audiofetch/internal/playback"
	"github.com/dgnsrekt/audiofetch/internal/store"
)

const (
	defaultBannerTimeout   = 3 * time.Second
	defaultRefreshInterval = 500 * time.Millisecond
)

// Config contains TUI-specific configuration.
type Config struct {
	EnableMouse bool

	// How long the "download completed" banner and other status messages
	// stay up.
	BannerTimeout time.Duration `env:"AUDIOFETCH_BANNER_TIMEOUT" envDefault:"3s"`
	// How often the now-playing bar refreshes between engine updates.
	RefreshInterval time.Duration `env:"AUDIOFETCH_REFRESH_INTERVAL" envDefault:"500ms"`

	// For debugging the UI
	ShowQueue bool `env:"AUDIOFETCH_SHOW_QUEUE" envDefault:"true"`
}

// Deps are the collaborators the TUI drives. Store and Engine are required.
type Deps struct {
	Store   *store.Store
	Engine  *playback.Engine
	Page    *page.Session
	Hub     *bridge.Hub
	Queue   *intercept.Transport
	Prompts *intercept.PromptDecider
	Library *library.Library
	// NowPlaying receives engine updates; it must be part of the engine's
	// surface.
	NowPlaying *nowplaying.ChanSurface
}
