package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfig = `# address the local proxy listens on; open it in a browser instead of the
# chat site
listen: "127.0.0.1:8765"
# chat site the proxy forwards to
upstream: "https://chatgpt.com"
# mouse support (TUI-mode only)
mouse: false

storage:
  # where lists, progress and preferences are kept: file, badger or sqlite
  backend: "file"
  # defaults to the user data directory
  # dir: "~/.local/share/audiofetch"
  # zstd-compress the file backend
  compress: false

audio:
  # downloaded audio files; defaults to <storage.dir>/audio
  # dir: "~/Music/audiofetch"
  ffmpeg: "ffmpeg"
  ffprobe: "ffprobe"
  sample_rate: 44100

intercept:
  # URL fragment identifying speech synthesis calls
  marker: "/backend-api/synthesize"
  # what to do when a download fails: prompt, retry or skip
  on_error: "prompt"
  # retries before giving up when on_error is retry
  max_retries: 3
  # minimum time between two synthesis calls
  min_interval: "0s"
  # how long a failure waits for the TUI before it is rejected
  prompt_timeout: "30s"

playback:
  # what next/previous walk: list (whole download list) or conversation
  navigation: "list"
  # seconds skipped by the back/forward keys
  skip_interval: 5

page:
  # host the page must be on to delete downloads; defaults to the upstream host
  # host: "chatgpt.com"
`

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the audiofetch config file",
	Long:    paragraph(fmt.Sprintf("\n%s the audiofetch config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("audiofetch config\naudiofetch config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("AudioFetch", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

// ensureConfigFile writes the default configuration to configFile unless a
// file is already there.
func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
	}
	if configFile == "" {
		return errors.New("no configuration path: pass --config")
	}

	switch ext := path.Ext(configFile); ext {
	case ".yaml", ".yml":
	default:
		return fmt.Errorf("'%s' is not a supported configuration type: use '.yaml' or '.yml'", ext)
	}

	_, err := os.Stat(configFile)
	switch {
	case err == nil:
		return nil
	case !errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("unable to stat config file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
		return fmt.Errorf("unable to create config directory: %w", err)
	}
	if err := os.WriteFile(configFile, []byte(defaultConfig), 0o600); err != nil {
		return fmt.Errorf("unable to write config file: %w", err)
	}
	return nil
}
