package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dgnsrekt/audiofetch/internal/nowplaying"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the proxy and the page bridge without the player UI",
	Long: paragraph(fmt.Sprintf("\n%s the local proxy headless. Downloads are saved as usual; "+
		"failed downloads are retried instead of prompting. Playback is driven through the HTTP API.", keyword("Runs"))),
	Example: paragraph("audiofetch serve\naudiofetch serve --listen 127.0.0.1:9000 --no-audio"),
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		logToStderr(viper.GetBool("debug"))

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

		a.startBridge(false)
		if noAudio, _ := cmd.Flags().GetBool("no-audio"); !noAudio {
			if err := a.startPlayback(a.hub, nowplaying.LogSurface{}); err != nil {
				return err
			}
		}
		if err := a.startServer(); err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		log.Info("Open the proxy in your browser", "url", "http://"+cfg.Listen)
		return a.run(ctx)
	},
}

func init() {
	serveCmd.Flags().Bool("no-audio", false, "don't open an audio device")
	serveCmd.Flags().Bool("debug", false, "log at debug level")
	_ = viper.BindPFlag("debug", serveCmd.Flags().Lookup("debug"))
}
