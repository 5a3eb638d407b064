package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	homedir "github.com/mitchellh/go-homedir"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/dgnsrekt/audiofetch/internal/audio"
	"github.com/dgnsrekt/audiofetch/internal/bridge"
	"github.com/dgnsrekt/audiofetch/internal/intercept"
	"github.com/dgnsrekt/audiofetch/internal/library"
	"github.com/dgnsrekt/audiofetch/internal/nowplaying"
	"github.com/dgnsrekt/audiofetch/internal/page"
	"github.com/dgnsrekt/audiofetch/internal/playback"
	"github.com/dgnsrekt/audiofetch/internal/prefs"
	"github.com/dgnsrekt/audiofetch/internal/progress"
	"github.com/dgnsrekt/audiofetch/internal/server"
	"github.com/dgnsrekt/audiofetch/internal/store"
)

// appConfig is the resolved configuration.
type appConfig struct {
	Listen   string
	Upstream string

	StorageBackend  string
	StorageDir      string
	StorageCompress bool

	AudioDir   string
	FFmpeg     string
	FFprobe    string
	SampleRate int

	Marker        string
	OnError       string
	MaxRetries    int
	MinInterval   time.Duration
	PromptTimeout time.Duration

	Navigation   playback.Navigation
	SkipInterval float64

	PageHost string
}

// loadAppConfig reads and validates the configuration from viper.
func loadAppConfig() (appConfig, error) {
	cfg := appConfig{
		Listen:          viper.GetString("listen"),
		Upstream:        viper.GetString("upstream"),
		StorageBackend:  viper.GetString("storage.backend"),
		StorageCompress: viper.GetBool("storage.compress"),
		FFmpeg:          viper.GetString("audio.ffmpeg"),
		FFprobe:         viper.GetString("audio.ffprobe"),
		SampleRate:      viper.GetInt("audio.sample_rate"),
		Marker:          viper.GetString("intercept.marker"),
		OnError:         viper.GetString("intercept.on_error"),
		MaxRetries:      viper.GetInt("intercept.max_retries"),
		MinInterval:     viper.GetDuration("intercept.min_interval"),
		PromptTimeout:   viper.GetDuration("intercept.prompt_timeout"),
		SkipInterval:    viper.GetFloat64("playback.skip_interval"),
		PageHost:        viper.GetString("page.host"),
	}

	nav, err := playback.ParseNavigation(viper.GetString("playback.navigation"))
	if err != nil {
		return cfg, err
	}
	cfg.Navigation = nav

	switch cfg.OnError {
	case "prompt", "retry", "skip":
	default:
		return cfg, fmt.Errorf("intercept.on_error must be prompt, retry or skip, got %q", cfg.OnError)
	}
	if cfg.MaxRetries < 0 {
		return cfg, fmt.Errorf("intercept.max_retries must not be negative, got %d", cfg.MaxRetries)
	}

	cfg.StorageDir, err = expandDir(viper.GetString("storage.dir"), func() (string, error) {
		return gap.NewScope(gap.User, "audiofetch").DataPath("")
	})
	if err != nil {
		return cfg, fmt.Errorf("storage.dir: %w", err)
	}
	cfg.AudioDir, err = expandDir(viper.GetString("audio.dir"), func() (string, error) {
		return filepath.Join(cfg.StorageDir, "audio"), nil
	})
	if err != nil {
		return cfg, fmt.Errorf("audio.dir: %w", err)
	}
	return cfg, nil
}

func expandDir(dir string, fallback func() (string, error)) (string, error) {
	if dir == "" {
		return fallback()
	}
	expanded, err := homedir.Expand(dir)
	if err != nil {
		return "", fmt.Errorf("expand %q: %w", dir, err)
	}
	return filepath.Abs(expanded)
}

// pageURL is the chat site the page session expects to be on.
func (c appConfig) pageURL() string {
	if c.PageHost == "" {
		return c.Upstream
	}
	u, err := url.Parse(c.Upstream)
	if err != nil {
		return "https://" + c.PageHost
	}
	u.Host = c.PageHost
	return u.String()
}

// app holds the collaborators shared by the commands. Fields past the
// store are only set by the start methods.
type app struct {
	cfg     appConfig
	backend prefs.Backend
	ledger  *progress.Ledger
	store   *store.Store
	page    *page.Session
	library *library.Library

	player     audio.Player
	engine     *playback.Engine
	nowPlaying *nowplaying.ChanSurface

	index   *intercept.MessageIndex
	prompts *intercept.PromptDecider
	queue   *intercept.Transport
	hub     *bridge.Hub
	server  *server.Server
}

// openApp opens the persistent state: preferences, progress, the download
// store, the page session and the library.
func openApp(cfg appConfig) (*app, error) {
	if err := os.MkdirAll(cfg.AudioDir, 0o755); err != nil { //nolint:gosec
		return nil, fmt.Errorf("create audio dir: %w", err)
	}

	backend, err := prefs.Open(prefs.Config{
		Backend:  cfg.StorageBackend,
		Dir:      cfg.StorageDir,
		Compress: cfg.StorageCompress,
	})
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	a := &app{cfg: cfg, backend: backend}
	a.ledger = progress.NewLedger(backend)
	a.store = store.New(store.Options{
		Backend: backend,
		Fs:      afero.NewOsFs(),
		Dir:     cfg.AudioDir,
		Ledger:  a.ledger,
	})
	a.page, err = page.NewSession(backend, cfg.pageURL())
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	a.library = library.New(backend)

	log.Debug("Opened app state",
		"backend", cfg.StorageBackend,
		"storage", cfg.StorageDir,
		"audio", cfg.AudioDir,
		"items", a.store.Len(),
	)
	return a, nil
}

// startPlayback creates the audio output and the playback engine.
func (a *app) startPlayback(surfaces ...nowplaying.Surface) error {
	player, err := audio.NewOtoPlayer(audio.OtoConfig{
		FFmpeg:     a.cfg.FFmpeg,
		SampleRate: a.cfg.SampleRate,
		Channels:   2,
	})
	if err != nil {
		return fmt.Errorf("audio output: %w", err)
	}
	a.startEngine(player, surfaces...)
	return nil
}

func (a *app) startEngine(player audio.Player, surfaces ...nowplaying.Surface) {
	a.player = player
	a.nowPlaying = nowplaying.NewChanSurface(16)
	a.engine = playback.New(playback.Options{
		Store:        a.store,
		Ledger:       a.ledger,
		Player:       player,
		Backend:      a.backend,
		Surface:      append(nowplaying.Multi{a.nowPlaying}, surfaces...),
		Navigation:   a.cfg.Navigation,
		SkipInterval: a.cfg.SkipInterval,
	})
}

// startBridge builds the interception queue and the page bridge.
// interactive selects the prompt decider when on_error is prompt.
func (a *app) startBridge(interactive bool) {
	a.index = intercept.NewMessageIndex()
	handler := bridge.NewHandler(bridge.Options{
		Store:  a.store,
		Prober: audio.FFProbe{Path: a.cfg.FFprobe},
		Titles: a.index,
	})
	a.hub = bridge.NewHub(bridge.HubOptions{
		Handler:    handler,
		Index:      a.index,
		OnNavigate: a.page.Visit,
	})
	a.hub.WatchStore(a.store)

	a.queue = intercept.New(intercept.Config{
		Marker:      a.cfg.Marker,
		Deliverer:   handler,
		Decider:     a.decider(interactive),
		Guard:       a.store.HasMessage,
		Index:       a.index,
		MinInterval: a.cfg.MinInterval,
	})
}

// startServer creates the HTTP server over whatever was started before it.
func (a *app) startServer() error {
	var err error
	a.server, err = server.New(server.Options{
		Upstream:  a.cfg.Upstream,
		Transport: a.queue,
		Queue:     a.queue,
		Store:     a.store,
		Engine:    a.engine,
		Hub:       a.hub,
		Page:      a.page,
		Library:   a.library,
	})
	return err
}

func (a *app) decider(interactive bool) intercept.Decider {
	switch a.cfg.OnError {
	case "skip":
		return intercept.PolicyDecider{SkipAlways: true}
	case "prompt":
		if interactive {
			a.prompts = intercept.NewPromptDecider(a.cfg.PromptTimeout)
			return a.prompts
		}
		log.Info("No terminal to prompt on, retrying failed downloads instead", "max_retries", a.cfg.MaxRetries)
	}
	return intercept.PolicyDecider{MaxRetries: a.cfg.MaxRetries}
}

// run drives the background loops until ctx is done: the playback engine,
// the audio directory watcher and the HTTP server. The first failure
// cancels the rest.
func (a *app) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errc := make(chan error, 3)
	n := 0
	if a.engine != nil {
		n++
		go func() { errc <- a.engine.Run(ctx) }()
	}
	n++
	go func() {
		if err := a.store.Watch(ctx); err != nil {
			log.Warn("Not watching audio dir", "error", err)
		}
		errc <- nil
	}()
	if a.server != nil {
		n++
		go func() { errc <- a.server.ListenAndServe(ctx, a.cfg.Listen) }()
	}

	var first error
	for range n {
		err := <-errc
		if err != nil && !errors.Is(err, context.Canceled) && first == nil {
			first = err
			cancel()
		}
	}
	return first
}

// Close releases everything the app opened.
func (a *app) Close() error {
	var errs []error
	if a.queue != nil {
		errs = append(errs, a.queue.Close())
	}
	if a.hub != nil {
		errs = append(errs, a.hub.Close())
	}
	if a.engine != nil {
		errs = append(errs, a.engine.Close())
	}
	if a.player != nil {
		errs = append(errs, a.player.Close())
	}
	errs = append(errs, a.backend.Close())
	return errors.Join(errs...)
}
