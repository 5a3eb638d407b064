package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/atotto/clipboard"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/dgnsrekt/audiofetch/internal/library"
	"github.com/dgnsrekt/audiofetch/internal/server"
	"github.com/dgnsrekt/audiofetch/internal/timefmt"
)

var (
	notesCmd = &cobra.Command{
		Use:   "notes [CONVERSATION]",
		Short: "Show saved notes, optionally for one conversation",
		Long: paragraph(fmt.Sprintf("\n%s the notes taken on chat messages. With %s the selected fragments are shown instead.",
			keyword("Shows"), keyword("--fragments"))),
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openFromConfig()
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			var conv string
			if len(args) == 1 {
				conv = args[0]
			}
			fragments, _ := cmd.Flags().GetBool("fragments")

			var notes []library.Note
			if fragments {
				for _, f := range a.library.Fragments.List() {
					notes = append(notes, library.Note(f))
				}
			} else {
				notes = a.library.Notes.List()
			}
			if conv != "" {
				notes = filterNotes(notes, conv)
			}
			if len(notes) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), dim("Nothing saved yet."))
				return nil
			}
			return renderMarkdown(cmd.OutOrStdout(), notesMarkdown(a.store.ConversationName, notes, a.page.MessageURL))
		},
	}

	notesAddCmd = &cobra.Command{
		Use:   "add CONVERSATION MESSAGE [TEXT...]",
		Short: "Attach a note to a message",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openFromConfig()
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			text, err := textFromArgs(args[2:], "")
			if err != nil {
				return err
			}
			fragments, _ := cmd.Flags().GetBool("fragments")
			if fragments {
				f, err := a.library.AddFragment(text, args[1], args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), f.ID)
				return nil
			}
			n, err := a.library.AddNote(text, args[1], args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n.ID)
			return nil
		},
	}

	notesRmCmd = &cobra.Command{
		Use:   "rm ID",
		Short: "Remove a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openFromConfig()
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			if fragments, _ := cmd.Flags().GetBool("fragments"); fragments {
				return a.library.Fragments.Remove(args[0])
			}
			return a.library.Notes.Remove(args[0])
		},
	}

	promptsCmd = &cobra.Command{
		Use:   "prompts",
		Short: "List saved system prompts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openFromConfig()
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			prompts := a.library.Prompts.List()
			if len(prompts) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), dim("No prompts saved."))
				return nil
			}
			for _, p := range prompts {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\n%s\n\n", keyword(p.ID), p.Text)
			}
			return nil
		},
	}

	promptsAddCmd = &cobra.Command{
		Use:   "add [TEXT...]",
		Short: "Save a system prompt, opening EDITOR when no text is given",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openFromConfig()
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			text, err := textFromArgs(args, "")
			if err != nil {
				return err
			}
			p, err := a.library.AddPrompt(text)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), p.ID)
			return nil
		},
	}

	promptsEditCmd = &cobra.Command{
		Use:   "edit ID",
		Short: "Edit a saved system prompt in EDITOR",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			a, err := openFromConfig()
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			p, ok := a.library.Prompts.Get(args[0])
			if !ok {
				return fmt.Errorf("%w: %s", library.ErrNotFound, args[0])
			}
			text, err := editText(p.Text)
			if err != nil {
				return err
			}
			_, err = a.library.UpdatePrompt(p.ID, text)
			return err
		},
	}

	promptsRmCmd = &cobra.Command{
		Use:   "rm ID",
		Short: "Remove a saved system prompt",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			a, err := openFromConfig()
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			return a.library.Prompts.Remove(args[0])
		},
	}

	promptsSelectCmd = &cobra.Command{
		Use:   "select [ID]",
		Short: "Choose the prompt sent before clipboard text, or clear the choice",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			a, err := openFromConfig()
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			return a.library.SelectPrompt(id)
		},
	}

	promptsSendCmd = &cobra.Command{
		Use:   "send [TEXT...]",
		Short: "Type a prompt and text into the open chat page",
		Long: paragraph(fmt.Sprintf("\n%s the system prompt followed by the text to every page connected to a running %s. The text comes from the arguments, %s or %s.",
			keyword("Sends"), keyword("audiofetch"), keyword("--file"), keyword("--clip"))),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadAppConfig()
			if err != nil {
				return err
			}
			text, err := sendText(cmd, args)
			if err != nil {
				return err
			}
			promptID, _ := cmd.Flags().GetString("prompt")
			n, err := postSay(cfg.Listen, promptID, text)
			if err != nil {
				return err
			}
			if n == 0 {
				return errors.New("no chat page is connected")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sent to %d page(s)\n", n)
			return nil
		},
	}
)

func init() {
	notesCmd.PersistentFlags().BoolP("fragments", "f", false, "work on selected fragments instead of notes")
	notesCmd.AddCommand(notesAddCmd, notesRmCmd)
	promptsCmd.AddCommand(promptsAddCmd, promptsEditCmd, promptsRmCmd, promptsSelectCmd, promptsSendCmd)

	promptsSendCmd.Flags().StringP("prompt", "p", "", "prompt to send before the text (default: the selected one)")
	promptsSendCmd.Flags().String("file", "", "read the text from a file")
	promptsSendCmd.Flags().Bool("clip", false, "read the text from the clipboard")
	promptsSendCmd.MarkFlagsMutuallyExclusive("file", "clip")
}

func sendText(cmd *cobra.Command, args []string) (string, error) {
	if path, _ := cmd.Flags().GetString("file"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("unable to read %s: %w", path, err)
		}
		return string(b), nil
	}
	if clip, _ := cmd.Flags().GetBool("clip"); clip {
		text, err := clipboard.ReadAll()
		if err != nil {
			return "", fmt.Errorf("unable to read clipboard: %w", err)
		}
		return text, nil
	}
	if len(args) == 0 {
		return "", errors.New("nothing to send: pass TEXT, --file or --clip")
	}
	return strings.Join(args, " "), nil
}

// postSay asks the server listening on addr to send text to its pages and
// returns how many were connected.
func postSay(addr, promptID, text string) (int, error) {
	body, err := json.Marshal(map[string]string{"promptId": promptID, "text": text})
	if err != nil {
		return 0, err
	}
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post("http://"+addr+server.Prefix+"/api/say", "application/json", bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("is audiofetch running on %s? %w", addr, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusAccepted {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return 0, fmt.Errorf("send failed: %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	var out struct {
		Clients int `json:"clients"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("send: bad response: %w", err)
	}
	return out.Clients, nil
}

func filterNotes(notes []library.Note, conversationID string) []library.Note {
	var out []library.Note
	for _, n := range notes {
		if n.ConversationID == conversationID {
			out = append(out, n)
		}
	}
	return out
}

// notesMarkdown groups notes by conversation, in the order each conversation
// first appears.
func notesMarkdown(conversationName func(string) string, notes []library.Note, messageURL func(conv, msg string) string) string {
	var order []string
	byConv := make(map[string][]library.Note)
	for _, n := range notes {
		if _, ok := byConv[n.ConversationID]; !ok {
			order = append(order, n.ConversationID)
		}
		byConv[n.ConversationID] = append(byConv[n.ConversationID], n)
	}

	var b strings.Builder
	for _, conv := range order {
		fmt.Fprintf(&b, "# %s\n\n", conversationName(conv))
		for _, n := range byConv[conv] {
			fmt.Fprintf(&b, "## %s\n\n", timefmt.FormatDate(n.Timestamp))
			b.WriteString(strings.TrimSpace(n.Text))
			fmt.Fprintf(&b, "\n\n[%s](%s) `%s`\n\n", n.MessageID, messageURL(conv, n.MessageID), n.ID)
		}
	}
	return b.String()
}

func renderMarkdown(w io.Writer, md string) error {
	width := 78
	style := glamour.WithAutoStyle()
	if fd := int(os.Stdout.Fd()); term.IsTerminal(fd) {
		if tw, _, err := term.GetSize(fd); err == nil && tw > 0 {
			width = min(tw, 120)
		}
	} else {
		style = glamour.WithStandardStyle(styles.NoTTYStyle)
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithColorProfile(lipgloss.ColorProfile()),
		style,
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return fmt.Errorf("unable to create renderer: %w", err)
	}
	out, err := r.Render(md)
	if err != nil {
		return fmt.Errorf("unable to render markdown: %w", err)
	}
	_, err = io.WriteString(w, out)
	return err
}

// textFromArgs joins args, or asks the editor for text when there are none.
func textFromArgs(args []string, initial string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	return editText(initial)
}

// editText opens EDITOR on a temporary file holding initial and returns what
// was saved.
func editText(initial string) (string, error) {
	f, err := os.CreateTemp("", "audiofetch-*.md")
	if err != nil {
		return "", fmt.Errorf("unable to create temp file: %w", err)
	}
	path := f.Name()
	defer os.Remove(path) //nolint:errcheck

	if _, err := f.WriteString(initial); err != nil {
		_ = f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}

	c, err := editor.Cmd("AudioFetch", path)
	if err != nil {
		return "", fmt.Errorf("unable to open editor: %w", err)
	}
	c.Stdin = os.Stdin
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	if err := c.Run(); err != nil {
		return "", fmt.Errorf("unable to run command: %w", err)
	}

	b, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(string(b))
	if text == "" {
		return "", errors.New("nothing written, aborting")
	}
	return text, nil
}
