// Package ui provides the terminal interface for browsing and playing
// downloaded audio.
package ui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/muesli/reflow/ansi"
	"github.com/muesli/reflow/truncate"

	"github.com/dgnsrekt/audiofetch/internal/intercept"
	"github.com/dgnsrekt/audiofetch/internal/nowplaying"
	"github.com/dgnsrekt/audiofetch/internal/page"
	"github.com/dgnsrekt/audiofetch/internal/playback"
	"github.com/dgnsrekt/audiofetch/internal/store"
)

const storeEventBuffer = 64

// NewProgram returns a new Tea program.
func NewProgram(cfg Config, deps Deps) *tea.Program {
	log.Debug("Starting audiofetch ui", "banner_timeout", cfg.BannerTimeout)
	opts := []tea.ProgramOption{tea.WithAltScreen()}
	if cfg.EnableMouse {
		opts = append(opts, tea.WithMouseCellMotion())
	}
	return tea.NewProgram(newModel(cfg, deps), opts...)
}

// state is the top-level application state.
type state int

const (
	stateBrowse state = iota
	stateSearch
	stateRename
	stateConfirmDelete
	statePrompt
)

func (s state) String() string {
	return map[state]string{
		stateBrowse:        "browsing downloads",
		stateSearch:        "searching",
		stateRename:        "renaming",
		stateConfirmDelete: "confirming delete",
		statePrompt:        "asking about a failed download",
	}[s]
}

// Common stuff we'll need to access in all models.
type commonModel struct {
	cfg    Config
	deps   Deps
	width  int
	height int
}

type model struct {
	common *commonModel
	state  state
	// state to return to once the prompt queue is empty
	prevState state

	list     listModel
	input    textinput.Model
	help     help.Model
	showHelp bool

	target  row
	prompts []intercept.Prompt
	info    nowplaying.Info

	status     statusMsg
	showStatus bool
	statusID   int

	events      chan store.Event
	unsubscribe func()
}

func newModel(cfg Config, deps Deps) model {
	if cfg.BannerTimeout <= 0 {
		cfg.BannerTimeout = defaultBannerTimeout
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = defaultRefreshInterval
	}

	input := textinput.New()
	input.Prompt = "> "
	input.CharLimit = 200

	m := model{
		common: &commonModel{cfg: cfg, deps: deps},
		list:   newListModel(),
		input:  input,
		help:   help.New(),
		events: make(chan store.Event, storeEventBuffer),
	}
	m.unsubscribe = deps.Store.Subscribe(func(ev store.Event) {
		select {
		case m.events <- ev:
		default:
			log.Debug("Dropping store event for ui", "kind", ev.Kind)
		}
	})
	m.list.setRows(buildRows(deps.Store.Groups()))
	m.info = infoFromState(deps.Engine.State())
	return m
}

func (m model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		waitForStoreEvent(m.events),
		refreshTick(m.common.cfg.RefreshInterval),
	}
	if m.common.deps.NowPlaying != nil {
		cmds = append(cmds, waitForNowPlaying(m.common.deps.NowPlaying.Updates()))
	}
	if m.common.deps.Prompts != nil {
		cmds = append(cmds, waitForPrompt(m.common.deps.Prompts.Prompts()))
	}
	return tea.Batch(cmds...)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	deps := m.common.deps

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m.quit()
		}
		switch m.state {
		case stateSearch:
			return m.updateSearch(msg)
		case stateRename:
			return m.updateRename(msg)
		case stateConfirmDelete:
			return m.updateConfirmDelete(msg)
		case statePrompt:
			return m.updatePrompt(msg)
		default:
			return m.updateBrowse(msg)
		}

	// Window size is received when starting up and on every resize
	case tea.WindowSizeMsg:
		m.common.width = msg.Width
		m.common.height = msg.Height
		m.help.Width = msg.Width
		m.input.Width = max(10, msg.Width-4)
		m.list.scroll(m.listHeight())

	case storeChangedMsg:
		m.refreshRows()
		cmds := []tea.Cmd{waitForStoreEvent(m.events)}
		if msg.Kind == store.EventAdded {
			cmds = append(cmds, m.showStatusMessage(statusMsg{text: "Download completed: " + msg.Item.DisplayName}))
		}
		return m, tea.Batch(cmds...)

	case nowPlayingMsg:
		m.info = nowplaying.Info(msg)
		return m, waitForNowPlaying(deps.NowPlaying.Updates())

	case promptMsg:
		if m.state != statePrompt {
			m.prevState = m.state
			if m.prevState == stateRename || m.prevState == stateSearch {
				m.input.Blur()
			}
		}
		m.prompts = append(m.prompts, intercept.Prompt(msg))
		m.state = statePrompt
		return m, waitForPrompt(deps.Prompts.Prompts())

	case refreshMsg:
		m.refreshInfo()
		return m, refreshTick(m.common.cfg.RefreshInterval)

	case engineResultMsg:
		m.refreshInfo()
		if msg.err != nil && !errors.Is(msg.err, playback.ErrNothingLoaded) {
			log.Warn("Player action failed", "action", msg.action, "error", msg.err)
			return m, m.showStatusMessage(statusMsg{text: playerError(msg.err), isError: true})
		}

	case statusMsg:
		return m, m.showStatusMessage(msg)

	case statusTimeoutMsg:
		if int(msg) == m.statusID {
			m.showStatus = false
		}
	}

	if m.state == stateSearch || m.state == stateRename {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m model) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	deps := m.common.deps
	engine := deps.Engine
	sel, hasSel := m.list.selected()

	switch {
	case key.Matches(msg, keys.Quit):
		return m.quit()

	case key.Matches(msg, keys.Up):
		m.list.moveCursor(-1)
		m.list.scroll(m.listHeight())

	case key.Matches(msg, keys.Down):
		m.list.moveCursor(1)
		m.list.scroll(m.listHeight())

	case key.Matches(msg, keys.Select):
		if !hasSel {
			return m, nil
		}
		if sel.kind == rowHeader {
			deps.Store.ToggleCollapsed(sel.group.ConversationID)
			m.refreshRows()
			return m, nil
		}
		id := sel.item.ID
		return m, engineCmd("play", func() error { return engine.Play(id) })

	case key.Matches(msg, keys.Toggle):
		if engine.State().Item == nil && hasSel && sel.kind == rowItem {
			id := sel.item.ID
			return m, engineCmd("play", func() error { return engine.Play(id) })
		}
		return m, engineCmd("toggle", engine.Toggle)

	case key.Matches(msg, keys.Back):
		return m, engineCmd("seek", func() error {
			return engine.HandleCommand(nowplaying.Command{Kind: nowplaying.CommandSkipBackward})
		})

	case key.Matches(msg, keys.Forward):
		return m, engineCmd("seek", func() error {
			return engine.HandleCommand(nowplaying.Command{Kind: nowplaying.CommandSkipForward})
		})

	case key.Matches(msg, keys.Next):
		return m, engineCmd("next", engine.PlayNext)

	case key.Matches(msg, keys.Previous):
		return m, engineCmd("previous", engine.PlayPrevious)

	case key.Matches(msg, keys.Faster), key.Matches(msg, keys.Slower):
		step := engine.IncreaseRate
		if key.Matches(msg, keys.Slower) {
			step = engine.DecreaseRate
		}
		rate, err := step()
		if err != nil {
			return m, m.showStatusMessage(statusMsg{text: err.Error(), isError: true})
		}
		m.refreshInfo()
		return m, m.showStatusMessage(statusMsg{text: "Speed " + playback.FormatRate(rate)})

	case key.Matches(msg, keys.Mark):
		m.list.toggleMark()
		m.list.moveCursor(1)

	case key.Matches(msg, keys.MoveUp), key.Matches(msg, keys.MoveDown):
		if !hasSel || sel.kind != rowItem || sel.index < 0 {
			return m, nil
		}
		conv := sel.item.ConversationID
		indices := m.list.markedIndices(conv)
		if len(indices) == 0 {
			return m, nil
		}
		lo, hi := indices[0], indices[len(indices)-1]
		if key.Matches(msg, keys.MoveUp) {
			if lo == 0 {
				return m, nil
			}
			deps.Store.MoveWithinConversation(conv, indices, lo-1)
		} else {
			if hi >= len(sel.group.Items)-1 {
				return m, nil
			}
			deps.Store.MoveWithinConversation(conv, indices, hi+2)
		}
		m.refreshRows()

	case key.Matches(msg, keys.Rename):
		if !hasSel {
			return m, nil
		}
		m.target = sel
		if sel.kind == rowHeader {
			m.input.SetValue(sel.group.Name)
		} else {
			m.input.SetValue(sel.item.DisplayName)
		}
		m.input.Placeholder = "New name"
		m.input.CursorEnd()
		m.state = stateRename
		return m, m.input.Focus()

	case key.Matches(msg, keys.Delete):
		if !hasSel {
			return m, nil
		}
		m.target = sel
		m.state = stateConfirmDelete

	case key.Matches(msg, keys.Search):
		m.input.SetValue("")
		m.input.Placeholder = "Search downloads"
		m.state = stateSearch
		m.list.setRows(buildSearchRows(deps.Store.Search("")))
		return m, m.input.Focus()

	case key.Matches(msg, keys.Copy):
		if !hasSel || deps.Page == nil {
			return m, nil
		}
		if sel.kind == rowHeader {
			return m, copyCmd(deps.Page.ConversationURL(sel.group.ConversationID), "conversation link")
		}
		return m, copyCmd(deps.Page.MessageURL(sel.item.ConversationID, sel.item.MessageID), "message link")

	case key.Matches(msg, keys.DownloadAll):
		if !hasSel {
			return m, nil
		}
		if deps.Hub == nil {
			return m, m.showStatusMessage(statusMsg{text: "No page bridge running", isError: true})
		}
		n := deps.Hub.RequestDownloadAll(deps.Store, sel.conversationID())
		if n == 0 {
			return m, m.showStatusMessage(statusMsg{text: "No page connected", isError: true})
		}
		return m, m.showStatusMessage(statusMsg{text: fmt.Sprintf("Requested all voices from %d page(s)", n)})

	case key.Matches(msg, keys.Say):
		if deps.Hub == nil || deps.Library == nil {
			return m, m.showStatusMessage(statusMsg{text: "No page bridge running", isError: true})
		}
		return m, sayCmd(deps.Hub, deps.Library)

	case key.Matches(msg, keys.Help):
		m.showHelp = !m.showHelp
		m.help.ShowAll = m.showHelp
	}
	return m, nil
}

func (m model) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	deps := m.common.deps

	switch msg.String() {
	case "esc":
		m.leaveInput()
		return m, nil
	case "up", "ctrl+p":
		m.list.moveCursor(-1)
		m.list.scroll(m.listHeight())
		return m, nil
	case "down", "ctrl+n":
		m.list.moveCursor(1)
		m.list.scroll(m.listHeight())
		return m, nil
	case "enter":
		sel, ok := m.list.selected()
		m.leaveInput()
		if !ok {
			return m, nil
		}
		m.list.selectItem(sel.item.ID)
		id := sel.item.ID
		return m, engineCmd("play", func() error { return deps.Engine.Play(id) })
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.list.setRows(buildSearchRows(deps.Store.Search(m.input.Value())))
	m.list.cursor = 0
	m.list.offset = 0
	return m, cmd
}

func (m model) updateRename(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	deps := m.common.deps

	switch msg.String() {
	case "esc":
		m.leaveInput()
		return m, nil
	case "enter":
		name := strings.TrimSpace(m.input.Value())
		target := m.target
		m.leaveInput()
		if name == "" {
			return m, nil
		}
		var err error
		if target.kind == rowHeader {
			err = deps.Store.RenameConversation(target.group.ConversationID, name)
		} else {
			err = deps.Store.Rename(target.item.ID, name)
		}
		if err != nil {
			return m, m.showStatusMessage(statusMsg{text: "Rename failed: " + err.Error(), isError: true})
		}
		m.refreshRows()
		return m, m.showStatusMessage(statusMsg{text: "Renamed"})
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m model) updateConfirmDelete(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	deps := m.common.deps
	target := m.target
	m.state = stateBrowse

	if msg.String() != "y" && msg.String() != "Y" {
		return m, nil
	}

	if target.kind == rowHeader {
		if deps.Page != nil {
			if err := deps.Page.CheckHost(); err != nil {
				return m, m.showStatusMessage(statusMsg{text: removeError(err), isError: true})
			}
		}
		n := deps.Store.DeleteConversation(target.group.ConversationID)
		m.refreshRows()
		return m, m.showStatusMessage(statusMsg{text: fmt.Sprintf("Deleted %d item(s)", n)})
	}

	var err error
	if deps.Page != nil {
		err = deps.Page.Forget(deps.Store, target.item.ID)
	} else {
		err = deps.Store.Delete(target.item.ID)
	}
	if err != nil {
		return m, m.showStatusMessage(statusMsg{text: removeError(err), isError: true})
	}
	m.refreshRows()
	return m, m.showStatusMessage(statusMsg{text: "Deleted " + target.item.DisplayName})
}

func (m model) updatePrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if len(m.prompts) == 0 {
		m.state = m.prevState
		return m, nil
	}

	var d intercept.Decision
	switch msg.String() {
	case "r", "R", "enter":
		d = intercept.Retry
	case "s", "S", "esc":
		d = intercept.Skip
	default:
		return m, nil
	}

	m.prompts[0].Answer(d)
	m.prompts = m.prompts[1:]
	if len(m.prompts) > 0 {
		return m, nil
	}

	m.state = m.prevState
	if m.state == stateSearch || m.state == stateRename {
		return m, m.input.Focus()
	}
	return m, nil
}

func (m *model) leaveInput() {
	m.input.Blur()
	m.input.SetValue("")
	m.state = stateBrowse
	m.refreshRows()
}

func (m *model) refreshRows() {
	if m.state == stateSearch {
		m.list.setRows(buildSearchRows(m.common.deps.Store.Search(m.input.Value())))
		return
	}
	m.list.setRows(buildRows(m.common.deps.Store.Groups()))
	m.list.scroll(m.listHeight())
}

// refreshInfo updates the position shown in the player bar between engine
// publications.
func (m *model) refreshInfo() {
	s := m.common.deps.Engine.State()
	next := infoFromState(s)
	if next.ItemID != "" && next.ItemID == m.info.ItemID {
		next.QueueIndex = m.info.QueueIndex
		next.QueueCount = m.info.QueueCount
	}
	m.info = next
}

func (m *model) showStatusMessage(msg statusMsg) tea.Cmd {
	m.statusID++
	m.status = msg
	m.showStatus = true
	return statusTimeout(m.common.cfg.BannerTimeout, m.statusID)
}

func (m model) quit() (tea.Model, tea.Cmd) {
	for _, p := range m.prompts {
		p.Answer(intercept.Skip)
	}
	m.prompts = nil
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	return m, tea.Quit
}

// listHeight is what's left for the list after the header, the player bar
// and the footer.
func (m model) listHeight() int {
	footer := 1
	if m.showHelp {
		footer += lipgloss.Height(m.help.View(keys)) - 1
	}
	return max(1, m.common.height-2-2-footer)
}

func (m model) View() string {
	width := m.common.width
	if width == 0 {
		width = 80
	}

	if m.state == statePrompt && len(m.prompts) > 0 {
		return lipgloss.Place(width, max(1, m.common.height), lipgloss.Center, lipgloss.Center,
			promptView(m.prompts[0], len(m.prompts), width))
	}

	var b strings.Builder
	b.WriteString(m.headerView(width))
	b.WriteString("\n\n")

	engine := m.common.deps.Engine
	b.WriteString(m.list.view(m.listHeight(), rowContext{
		width:   width,
		current: m.info.ItemID,
		playing: m.info.Playing,
		fraction: func(id string) float64 {
			_, f := engine.Position(id)
			return f
		},
	}))

	// pad the list so the player bar stays at the bottom
	if pad := m.listHeight() - min(m.listHeight(), max(1, len(m.list.rows))); pad > 0 {
		b.WriteString(strings.Repeat("\n", pad))
	}
	b.WriteString("\n\n")
	b.WriteString(nowPlayingView(m.info, width))
	b.WriteString("\n")
	b.WriteString(m.footerView(width))
	return b.String()
}

func (m model) headerView(width int) string {
	logo := logoView()
	note := fmt.Sprintf(" %d downloads", m.common.deps.Store.Len())
	if q := m.common.deps.Queue; q != nil && m.common.cfg.ShowQueue {
		st := q.Stats()
		if st.Pending+st.InFlight > 0 {
			note += fmt.Sprintf(" · %d fetching", st.Pending+st.InFlight)
		}
	}
	return logo + itemNoteStyle(truncate.StringWithTail(note, uint(max(0, width-ansi.PrintableRuneWidth(logo))), ellipsis)) //nolint:gosec
}

func (m model) footerView(width int) string {
	switch m.state {
	case stateSearch, stateRename:
		return m.input.View()
	case stateConfirmDelete:
		name := m.target.item.DisplayName
		if m.target.kind == rowHeader {
			name = "conversation " + m.target.group.Name
		}
		return statusBarMessageStyle(padRight(" Delete "+name+"? (y/N) ", width))
	}

	if m.showStatus {
		if m.status.isError {
			return statusBarErrorStyle(padRight(" "+m.status.text+" ", width))
		}
		return statusBarMessageStyle(padRight(" "+m.status.text+" ", width))
	}
	if m.showHelp {
		return helpViewStyle(m.help.View(keys))
	}
	helpNote := statusBarHelpStyle(" ? Help ")
	return statusBarNoteStyle(padRight(" "+m.state.String(), width-ansi.PrintableRuneWidth(helpNote))) + helpNote
}

func promptView(p intercept.Prompt, pending, width int) string {
	f := p.Failure
	inner := max(20, min(70, width-8))

	var b strings.Builder
	b.WriteString(headerStyle("Audio download failed"))
	b.WriteString("\n\n")
	b.WriteString(truncate.StringWithTail(f.Snippet, uint(inner), ellipsis)) //nolint:gosec
	b.WriteString("\n\n")
	if f.Err != nil {
		b.WriteString(errorStyle(truncate.StringWithTail(f.Err.Error(), uint(inner), ellipsis))) //nolint:gosec
		b.WriteString("\n")
	}
	b.WriteString(itemNoteStyle(fmt.Sprintf("Attempt %d", f.Attempt)))
	if pending > 1 {
		b.WriteString(itemNoteStyle(fmt.Sprintf(" · %d more waiting", pending-1)))
	}
	b.WriteString("\n\n")
	b.WriteString(selectedStyle("r") + " retry   " + selectedStyle("s") + " skip")
	return modalStyle.Width(inner).Render(b.String())
}

func padRight(s string, width int) string {
	s = truncate.StringWithTail(s, uint(max(0, width)), ellipsis) //nolint:gosec
	return s + strings.Repeat(" ", max(0, width-ansi.PrintableRuneWidth(s)))
}

func removeError(err error) string {
	if errors.Is(err, page.ErrUnexpectedHost) {
		return "Failed to remove item: open the chat site first"
	}
	return "Failed to remove item: " + err.Error()
}

func playerError(err error) string {
	switch {
	case errors.Is(err, playback.ErrFileMissing):
		return "Audio file is missing"
	case errors.Is(err, playback.ErrUnknownItem):
		return "Item no longer exists"
	default:
		return err.Error()
	}
}
