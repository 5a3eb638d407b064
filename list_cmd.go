package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/dgnsrekt/audiofetch/internal/nowplaying"
	"github.com/dgnsrekt/audiofetch/internal/playback"
	"github.com/dgnsrekt/audiofetch/internal/store"
	"github.com/dgnsrekt/audiofetch/internal/timefmt"
)

var (
	listCmd = &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List downloaded audio grouped by conversation",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openFromConfig()
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			query, _ := cmd.Flags().GetString("search")
			return printList(cmd.OutOrStdout(), a, query, outputWidth())
		},
	}

	playCmd = &cobra.Command{
		Use:   "play ITEM",
		Short: "Play a download without the UI",
		Long: paragraph(fmt.Sprintf("\n%s an item by id or by its number in %s. Playback continues with the next item until interrupted.",
			keyword("Plays"), keyword("audiofetch list"))),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openFromConfig()
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			item, err := resolveItem(a.store, args[0])
			if err != nil {
				return err
			}
			if err := a.startPlayback(); err != nil {
				return err
			}
			if err := a.engine.Play(item.ID); err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			go func() { _ = a.engine.Run(ctx) }()
			return followPlayback(ctx, cmd.OutOrStdout(), a.nowPlaying)
		},
	}

	renameCmd = &cobra.Command{
		Use:   "rename ITEM NAME",
		Short: "Rename a download, or a conversation with --conversation",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openFromConfig()
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			name := strings.TrimSpace(args[1])
			if name == "" {
				return errors.New("name must not be empty")
			}
			if conv, _ := cmd.Flags().GetBool("conversation"); conv {
				return a.store.RenameConversation(args[0], name)
			}
			item, err := resolveItem(a.store, args[0])
			if err != nil {
				return err
			}
			return a.store.Rename(item.ID, name)
		},
	}

	deleteCmd = &cobra.Command{
		Use:     "delete ITEM",
		Aliases: []string{"rm"},
		Short:   "Delete a download, or a whole conversation with --conversation",
		Long: paragraph(fmt.Sprintf("\nDeletes the audio file and forgets the message so it can be downloaded again. "+
			"The last visited page must be on the chat site unless %s is given.", keyword("--force"))),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openFromConfig()
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			force, _ := cmd.Flags().GetBool("force")
			if !force {
				if err := a.page.CheckHost(); err != nil {
					return fmt.Errorf("failed to remove item: %w", err)
				}
			}

			if conv, _ := cmd.Flags().GetBool("conversation"); conv {
				n := a.store.DeleteConversation(args[0])
				if n == 0 {
					return fmt.Errorf("%w: conversation %s", store.ErrNotFound, args[0])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d item(s)\n", n)
				return nil
			}
			item, err := resolveItem(a.store, args[0])
			if err != nil {
				return err
			}
			if err := a.store.Delete(item.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", item.DisplayName)
			return nil
		},
	}
)

func init() {
	listCmd.Flags().StringP("search", "s", "", "fuzzy filter by name")
	renameCmd.Flags().BoolP("conversation", "c", false, "ITEM is a conversation id")
	deleteCmd.Flags().BoolP("conversation", "c", false, "ITEM is a conversation id")
	deleteCmd.Flags().BoolP("force", "f", false, "skip the chat page check")
}

func openFromConfig() (*app, error) {
	cfg, err := loadAppConfig()
	if err != nil {
		return nil, err
	}
	return openApp(cfg)
}

// resolveItem finds an item by id or by its 1-based position in the list.
func resolveItem(s *store.Store, ref string) (store.Item, error) {
	if item, ok := s.Get(ref); ok {
		return item, nil
	}
	if n, err := strconv.Atoi(ref); err == nil {
		items := s.Items()
		if n >= 1 && n <= len(items) {
			return items[n-1], nil
		}
	}
	return store.Item{}, fmt.Errorf("%w: %s", store.ErrNotFound, ref)
}

// outputWidth is the terminal width, or 80 and no colors when stdout is not
// a terminal.
func outputWidth() int {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		lipgloss.SetColorProfile(termenv.Ascii)
		return 80
	}
	w, _, err := term.GetSize(fd)
	if err != nil || w <= 0 {
		return 80
	}
	return min(w, 120)
}

func printList(w io.Writer, a *app, query string, width int) error {
	if a.store.Len() == 0 {
		_, err := fmt.Fprintln(w, dim("No downloads yet."))
		return err
	}

	numbers := make(map[string]int, a.store.Len())
	for i, it := range a.store.Items() {
		numbers[it.ID] = i + 1
	}

	var b strings.Builder
	if query != "" {
		for _, it := range a.store.Search(query) {
			b.WriteString(itemLine(a, it, numbers[it.ID], width))
		}
		_, err := io.WriteString(w, b.String())
		return err
	}

	for _, g := range a.store.Groups() {
		fmt.Fprintf(&b, "%s %s\n", heading(g.Name), dim(fmt.Sprintf("(%d) %s", len(g.Items), g.ConversationID)))
		for _, it := range g.Items {
			b.WriteString(itemLine(a, it, numbers[it.ID], width))
		}
		b.WriteByte('\n')
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func itemLine(a *app, it store.Item, n, width int) string {
	notes := []string{timefmt.FormatDuration(it.Duration)}
	if e := a.ledger.Get(it.ID); e.Fraction > 0 {
		notes = append(notes, fmt.Sprintf("%d%%", int(e.Fraction*100)))
	}
	if fi, err := a.store.Fs().Stat(a.store.Path(it)); err == nil {
		notes = append(notes, humanize.Bytes(uint64(fi.Size()))) //nolint:gosec
	}
	notes = append(notes, timefmt.Ago(it.DownloadedAt))
	note := strings.Join(notes, " · ")

	prefix := fmt.Sprintf("  %3d. ", n)
	title := truncate.StringWithTail(it.DisplayName, uint(max(10, width-len(prefix)-len(note)-2)), "…") //nolint:gosec
	return prefix + title + "  " + dim(note) + "\n"
}

// followPlayback prints the now-playing line until ctx is done or the last
// item finishes.
func followPlayback(ctx context.Context, w io.Writer, np *nowplaying.ChanSurface) error {
	interactive := term.IsTerminal(int(os.Stdout.Fd()))
	var last string
	started := false
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(w)
			return nil
		case info := <-np.Updates():
			// updates from restoring the previous item arrive before Play's
			if !started && !info.Playing {
				continue
			}
			started = true
			if info.Empty() {
				fmt.Fprintln(w)
				return nil
			}
			line := fmt.Sprintf("%s %s  %s / %s  %s", playIcon(info.Playing), info.Title,
				timefmt.FormatTime(info.Elapsed), timefmt.FormatTime(info.Duration), playback.FormatRate(info.Rate))
			switch {
			case interactive:
				fmt.Fprintf(w, "\r\033[K%s", line)
			case info.ItemID != last:
				fmt.Fprintln(w, line)
			}
			last = info.ItemID

			if !info.Playing && info.Duration > 0 && info.Elapsed >= info.Duration-0.5 {
				fmt.Fprintln(w)
				return nil
			}
		}
	}
}

func playIcon(playing bool) string {
	if playing {
		return "▶"
	}
	return "⏸"
}
