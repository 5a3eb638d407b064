package ui

import (
	"errors"
	"fmt"
	"time"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/audiofetch/internal/bridge"
	"github.com/dgnsrekt/audiofetch/internal/intercept"
	"github.com/dgnsrekt/audiofetch/internal/library"
	"github.com/dgnsrekt/audiofetch/internal/nowplaying"
	"github.com/dgnsrekt/audiofetch/internal/store"
)

type (
	storeChangedMsg  store.Event
	nowPlayingMsg    nowplaying.Info
	promptMsg        intercept.Prompt
	refreshMsg       time.Time
	statusTimeoutMsg int
)

// engineResultMsg reports the outcome of a player action run off the UI
// goroutine.
type engineResultMsg struct {
	action string
	err    error
}

// readClipboard is swapped in tests.
var readClipboard = clipboard.ReadAll

type statusMsg struct {
	text    string
	isError bool
}

func waitForStoreEvent(ch <-chan store.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return storeChangedMsg(ev)
	}
}

func waitForNowPlaying(ch <-chan nowplaying.Info) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		info, ok := <-ch
		if !ok {
			return nil
		}
		return nowPlayingMsg(info)
	}
}

func waitForPrompt(ch <-chan intercept.Prompt) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		p, ok := <-ch
		if !ok {
			return nil
		}
		return promptMsg(p)
	}
}

// engineCmd runs a player action; loading a file decodes it, which is too
// slow for Update.
func engineCmd(action string, fn func() error) tea.Cmd {
	return func() tea.Msg {
		return engineResultMsg{action: action, err: fn()}
	}
}

func refreshTick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return refreshMsg(t)
	})
}

func statusTimeout(d time.Duration, id int) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg {
		return statusTimeoutMsg(id)
	})
}

func copyCmd(text, what string) tea.Cmd {
	return func() tea.Msg {
		if err := clipboard.WriteAll(text); err != nil {
			log.Debug("Clipboard write failed", "error", err)
			return statusMsg{text: "Could not copy " + what, isError: true}
		}
		return statusMsg{text: "Copied " + what}
	}
}

// sayCmd sends the clipboard, behind the selected system prompt, to the
// connected pages.
func sayCmd(hub *bridge.Hub, lib *library.Library) tea.Cmd {
	return func() tea.Msg {
		text, err := readClipboard()
		if err != nil {
			log.Debug("Clipboard read failed", "error", err)
			return statusMsg{text: "Could not read the clipboard", isError: true}
		}
		text, err = lib.Compose("", text)
		if errors.Is(err, library.ErrEmptyText) {
			return statusMsg{text: "Clipboard is empty", isError: true}
		} else if err != nil {
			return statusMsg{text: err.Error(), isError: true}
		}
		n := hub.RequestSay(text)
		if n == 0 {
			return statusMsg{text: "No page connected", isError: true}
		}
		return statusMsg{text: fmt.Sprintf("Sent clipboard to %d page(s)", n)}
	}
}
