// Package main provides the entry point for the AudioFetch CLI application.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/dgnsrekt/audiofetch/internal/intercept"
	"github.com/dgnsrekt/audiofetch/ui"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	mouse      bool

	// storage.backend is read from AUDIOFETCH_STORAGE_BACKEND
	envKeyReplacer = strings.NewReplacer(".", "_")

	rootCmd = &cobra.Command{
		Use:   "audiofetch",
		Short: "Save and play back the voices of your chat conversations",
		Long: paragraph(
			fmt.Sprintf("\nRuns a local proxy in front of the chat site that %s every read-aloud answer, and a player to listen to them later.", keyword("keeps")),
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOptions(cmd)
		},
		RunE: execute,
	}
)

func validateOptions(cmd *cobra.Command) error {
	if cmd.Flags().Changed("config") && configFile != viper.ConfigFileUsed() {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("unable to read config %s: %w", configFile, err)
		}
	}
	mouse = viper.GetBool("mouse")
	_, err := loadAppConfig()
	return err
}

func execute(*cobra.Command, []string) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.New("the player needs a terminal; use `audiofetch serve` to run headless")
	}

	cfg, err := loadAppConfig()
	if err != nil {
		return err
	}
	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn("Shutdown incomplete", "error", err)
		}
	}()

	a.startBridge(true)
	if err := a.startPlayback(a.hub); err != nil {
		return err
	}
	if err := a.startServer(); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	errc := make(chan error, 1)
	go func() { errc <- a.run(ctx) }()

	err = runTUI(a)
	cancel()
	if runErr := <-errc; runErr != nil && err == nil {
		err = runErr
	}
	return err
}

func runTUI(a *app) error {
	// Read environment to get debugging stuff
	cfg, err := env.ParseAs[ui.Config]()
	if err != nil {
		return fmt.Errorf("error parsing config: %v", err)
	}
	cfg.EnableMouse = mouse

	deps := ui.Deps{
		Store:      a.store,
		Engine:     a.engine,
		Page:       a.page,
		Hub:        a.hub,
		Queue:      a.queue,
		Prompts:    a.prompts,
		Library:    a.library,
		NowPlaying: a.nowPlaying,
	}

	fmt.Fprintf(os.Stderr, "Open http://%s in your browser.\n", a.cfg.Listen)
	if _, err := ui.NewProgram(cfg, deps).Run(); err != nil {
		return fmt.Errorf("unable to run tui program: %w", err)
	}
	return nil
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	// a .env next to the binary's working dir may carry AUDIOFETCH_* overrides
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("Could not load .env", "error", err)
	}

	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.PersistentFlags().String("listen", "", "address the proxy listens on")
	rootCmd.PersistentFlags().String("upstream", "", "chat site to proxy")
	rootCmd.PersistentFlags().String("storage", "", "state backend: file, badger or sqlite")
	rootCmd.PersistentFlags().String("audio-dir", "", "directory for downloaded audio")
	rootCmd.PersistentFlags().String("on-error", "", "failed downloads: prompt, retry or skip")
	rootCmd.PersistentFlags().String("navigation", "", "next/previous walk the whole list or the conversation")
	rootCmd.Flags().BoolVarP(&mouse, "mouse", "m", false, "enable mouse wheel (TUI-mode only)")
	_ = rootCmd.Flags().MarkHidden("mouse")

	// Config bindings
	_ = viper.BindPFlag("listen", rootCmd.PersistentFlags().Lookup("listen"))
	_ = viper.BindPFlag("upstream", rootCmd.PersistentFlags().Lookup("upstream"))
	_ = viper.BindPFlag("storage.backend", rootCmd.PersistentFlags().Lookup("storage"))
	_ = viper.BindPFlag("audio.dir", rootCmd.PersistentFlags().Lookup("audio-dir"))
	_ = viper.BindPFlag("intercept.on_error", rootCmd.PersistentFlags().Lookup("on-error"))
	_ = viper.BindPFlag("playback.navigation", rootCmd.PersistentFlags().Lookup("navigation"))
	_ = viper.BindPFlag("mouse", rootCmd.Flags().Lookup("mouse"))

	setDefaults()

	rootCmd.AddCommand(
		serveCmd,
		listCmd,
		playCmd,
		renameCmd,
		deleteCmd,
		notesCmd,
		promptsCmd,
		configCmd,
		manCmd,
	)
}

func setDefaults() {
	viper.SetDefault("listen", "127.0.0.1:8765")
	viper.SetDefault("upstream", "https://chatgpt.com")
	viper.SetDefault("mouse", false)

	viper.SetDefault("storage.backend", "file")
	viper.SetDefault("storage.dir", "")
	viper.SetDefault("storage.compress", false)

	viper.SetDefault("audio.dir", "")
	viper.SetDefault("audio.ffmpeg", "ffmpeg")
	viper.SetDefault("audio.ffprobe", "ffprobe")
	viper.SetDefault("audio.sample_rate", 44100)

	viper.SetDefault("intercept.marker", intercept.DefaultMarker)
	viper.SetDefault("intercept.on_error", "prompt")
	viper.SetDefault("intercept.max_retries", 3)
	viper.SetDefault("intercept.min_interval", "0s")
	viper.SetDefault("intercept.prompt_timeout", "30s")

	viper.SetDefault("playback.navigation", "list")
	viper.SetDefault("playback.skip_interval", 5.0)

	viper.SetDefault("page.host", "")
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "audiofetch")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "audiofetch")}, dirs...)
	}

	if c := os.Getenv("AUDIOFETCH_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("audiofetch")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("audiofetch")
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", used)
		return
	}

	configFile = filepath.Join(dirs[0], "audiofetch.yml")
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
		return
	}
	viper.SetConfigFile(configFile)
}
