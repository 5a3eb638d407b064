package ui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Up          key.Binding
	Down        key.Binding
	Select      key.Binding
	Toggle      key.Binding
	Back        key.Binding
	Forward     key.Binding
	Next        key.Binding
	Previous    key.Binding
	Faster      key.Binding
	Slower      key.Binding
	Mark        key.Binding
	MoveUp      key.Binding
	MoveDown    key.Binding
	Rename      key.Binding
	Delete      key.Binding
	Search      key.Binding
	Copy        key.Binding
	DownloadAll key.Binding
	Say         key.Binding
	Help        key.Binding
	Quit        key.Binding
}

var keys = keyMap{
	Up:          key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:        key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	Select:      key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "play/collapse")),
	Toggle:      key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "play/pause")),
	Back:        key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←/h", "back 5s")),
	Forward:     key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→/l", "forward 5s")),
	Next:        key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "next")),
	Previous:    key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "previous")),
	Faster:      key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+", "faster")),
	Slower:      key.NewBinding(key.WithKeys("-", "_"), key.WithHelp("-", "slower")),
	Mark:        key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "mark")),
	MoveUp:      key.NewBinding(key.WithKeys("K", "shift+up"), key.WithHelp("K", "move up")),
	MoveDown:    key.NewBinding(key.WithKeys("J", "shift+down"), key.WithHelp("J", "move down")),
	Rename:      key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "rename")),
	Delete:      key.NewBinding(key.WithKeys("d", "x"), key.WithHelp("d", "delete")),
	Search:      key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "search")),
	Copy:        key.NewBinding(key.WithKeys("y", "c"), key.WithHelp("y", "copy link")),
	DownloadAll: key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "download all")),
	Say:         key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "send clipboard")),
	Help:        key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
	Quit:        key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.Back, k.Forward, k.Search, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Select, k.Search},
		{k.Toggle, k.Back, k.Forward, k.Next, k.Previous},
		{k.Faster, k.Slower, k.Copy, k.DownloadAll, k.Say},
		{k.Mark, k.MoveUp, k.MoveDown, k.Rename, k.Delete},
		{k.Help, k.Quit},
	}
}
