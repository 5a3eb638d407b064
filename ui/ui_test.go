package ui

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/afero"

	"github.com/dgnsrekt/audiofetch/internal/audio"
	"github.com/dgnsrekt/audiofetch/internal/bridge"
	"github.com/dgnsrekt/audiofetch/internal/intercept"
	"github.com/dgnsrekt/audiofetch/internal/library"
	"github.com/dgnsrekt/audiofetch/internal/nowplaying"
	"github.com/dgnsrekt/audiofetch/internal/playback"
	"github.com/dgnsrekt/audiofetch/internal/prefs"
	"github.com/dgnsrekt/audiofetch/internal/store"
)

type testEnv struct {
	store  *store.Store
	engine *playback.Engine
	items  []store.Item
}

func newTestModel(t *testing.T) (model, *testEnv) {
	t.Helper()
	fs := afero.NewMemMapFs()
	backend := prefs.NewMemory()
	env := &testEnv{store: store.New(store.Options{Backend: backend, Fs: fs, Dir: "/audio"})}

	for _, it := range []struct{ name, conv string }{
		{"first", "c1"}, {"second", "c1"}, {"third", "c2"},
	} {
		path := filepath.Join("/audio", it.name+".m4a")
		if err := afero.WriteFile(fs, path, []byte(it.name), 0o644); err != nil {
			t.Fatal(err)
		}
		env.items = append(env.items, env.store.Add(path, it.name, nil, it.conv, "m-"+it.name))
	}

	env.engine = playback.New(playback.Options{
		Store:   env.store,
		Player:  audio.NewMockPlayer(),
		Backend: backend,
	})
	t.Cleanup(func() { _ = env.engine.Close() })

	m := newModel(Config{}, Deps{Store: env.store, Engine: env.engine})
	t.Cleanup(func() { m.unsubscribe() })
	m.common.width, m.common.height = 80, 24
	return m, env
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m model, msg tea.Msg) (model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(model), cmd
}

// run executes a command and feeds its message back, as the runtime would.
func run(t *testing.T, m model, cmd tea.Cmd) model {
	t.Helper()
	if cmd == nil {
		t.Fatal("expected a command")
	}
	m, _ = update(t, m, cmd())
	return m
}

func TestBuildRows(t *testing.T) {
	groups := []store.Group{
		{ConversationID: "a", Items: []store.Item{{ID: "1"}, {ID: "2"}}},
		{ConversationID: "b", Items: []store.Item{{ID: "3"}}, Collapsed: true},
	}
	rows := buildRows(groups)
	if len(rows) != 4 {
		t.Fatalf("expected 4 rows, got %d", len(rows))
	}
	if rows[0].kind != rowHeader || rows[2].index != 1 || rows[3].kind != rowHeader {
		t.Errorf("unexpected rows: %+v", rows)
	}
}

func TestSelectPlaysItem(t *testing.T) {
	m, env := newTestModel(t)

	// cursor starts on the first header; step onto the first item
	m, _ = update(t, m, runes("j"))
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m = run(t, m, cmd)

	s := env.engine.State()
	if s.Item == nil || s.Item.ID != env.items[0].ID || !s.Playing {
		t.Fatalf("expected first item to play, got %+v", s)
	}
	if m.info.ItemID != env.items[0].ID {
		t.Errorf("player bar not refreshed: %+v", m.info)
	}

	m, cmd = update(t, m, tea.KeyMsg{Type: tea.KeySpace})
	m = run(t, m, cmd)
	if env.engine.State().Playing {
		t.Error("space should pause")
	}
	if !strings.Contains(m.View(), "first") {
		t.Error("view should show the current title")
	}
}

func TestEnterOnHeaderCollapses(t *testing.T) {
	m, env := newTestModel(t)

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if !env.store.IsCollapsed("c1") {
		t.Fatal("conversation should be collapsed")
	}
	// header c1, header c2, third
	if len(m.list.rows) != 3 {
		t.Errorf("expected 3 visible rows, got %d", len(m.list.rows))
	}
}

func TestMoveDown(t *testing.T) {
	m, env := newTestModel(t)

	m, _ = update(t, m, runes("j"))
	m, _ = update(t, m, runes("J"))

	items := env.store.Items()
	if items[0].ID != env.items[1].ID || items[1].ID != env.items[0].ID {
		t.Fatalf("items not swapped: %s, %s", items[0].DisplayName, items[1].DisplayName)
	}
	if sel, _ := m.list.selected(); sel.item.ID != env.items[0].ID {
		t.Error("cursor should follow the moved item")
	}
}

func TestRename(t *testing.T) {
	m, env := newTestModel(t)

	m, _ = update(t, m, runes("j"))
	m, _ = update(t, m, runes("r"))
	if m.state != stateRename {
		t.Fatalf("state = %v", m.state)
	}
	m.input.SetValue("Renamed item")
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	got, _ := env.store.Get(env.items[0].ID)
	if got.DisplayName != "Renamed item" {
		t.Errorf("DisplayName = %q", got.DisplayName)
	}
	if m.state != stateBrowse {
		t.Errorf("state = %v", m.state)
	}
}

func TestDeleteNeedsConfirmation(t *testing.T) {
	m, env := newTestModel(t)

	m, _ = update(t, m, runes("j"))
	m, _ = update(t, m, runes("d"))
	m, _ = update(t, m, runes("n"))
	if env.store.Len() != 3 {
		t.Fatal("declined delete removed an item")
	}

	m, _ = update(t, m, runes("d"))
	_, _ = update(t, m, runes("y"))
	if env.store.Len() != 2 {
		t.Errorf("expected 2 items, got %d", env.store.Len())
	}
}

func TestSearchFiltersAndPlays(t *testing.T) {
	m, env := newTestModel(t)

	m, _ = update(t, m, runes("/"))
	for _, r := range "thi" {
		m, _ = update(t, m, runes(string(r)))
	}
	if len(m.list.rows) != 1 || m.list.rows[0].item.ID != env.items[2].ID {
		t.Fatalf("unexpected search rows: %+v", m.list.rows)
	}

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m = run(t, m, cmd)
	if m.state != stateBrowse {
		t.Errorf("state = %v", m.state)
	}
	if s := env.engine.State(); s.Item == nil || s.Item.ID != env.items[2].ID {
		t.Errorf("expected third item to play, got %+v", s.Item)
	}
}

func TestPromptAnswersDecider(t *testing.T) {
	m, _ := newTestModel(t)
	decider := intercept.NewPromptDecider(0)
	m.common.deps.Prompts = decider

	type answer struct {
		d   intercept.Decision
		err error
	}
	done := make(chan answer, 1)
	go func() {
		d, err := decider.Decide(context.Background(), intercept.Failure{
			Snippet: "Tell me a story",
			Err:     errors.New("HTTP Error: 500"),
			Attempt: 1,
		})
		done <- answer{d, err}
	}()

	p := <-decider.Prompts()
	m, _ = update(t, m, promptMsg(p))
	if m.state != statePrompt {
		t.Fatalf("state = %v", m.state)
	}
	if !strings.Contains(m.View(), "Tell me a story") {
		t.Error("prompt should show the message snippet")
	}

	m, _ = update(t, m, runes("r"))
	got := <-done
	if got.err != nil || got.d != intercept.Retry {
		t.Errorf("decision = %v, %v", got.d, got.err)
	}
	if m.state != stateBrowse {
		t.Errorf("state = %v", m.state)
	}
}

func TestStoreAddShowsBanner(t *testing.T) {
	m, env := newTestModel(t)

	m, _ = update(t, m, storeChangedMsg(store.Event{Kind: store.EventAdded, Item: env.items[0]}))
	if !m.showStatus || !strings.Contains(m.status.text, "Download completed") {
		t.Errorf("status = %+v", m.status)
	}

	id := m.statusID
	m, _ = update(t, m, statusTimeoutMsg(id))
	if m.showStatus {
		t.Error("banner should clear after its timeout")
	}
}

func TestSayClipboard(t *testing.T) {
	m, _ := newTestModel(t)

	m, _ = update(t, m, runes("s"))
	if !m.status.isError || !strings.Contains(m.status.text, "No page bridge") {
		t.Errorf("status without bridge = %+v", m.status)
	}

	hub := bridge.NewHub(bridge.HubOptions{})
	t.Cleanup(func() { _ = hub.Close() })
	m.common.deps.Hub = hub
	m.common.deps.Library = library.New(prefs.NewMemory())

	clip := ""
	orig := readClipboard
	readClipboard = func() (string, error) { return clip, nil }
	t.Cleanup(func() { readClipboard = orig })

	m, cmd := update(t, m, runes("s"))
	m = run(t, m, cmd)
	if !m.status.isError || m.status.text != "Clipboard is empty" {
		t.Errorf("status with empty clipboard = %+v", m.status)
	}

	clip = "hello"
	m, cmd = update(t, m, runes("s"))
	m = run(t, m, cmd)
	if !m.status.isError || m.status.text != "No page connected" {
		t.Errorf("status without pages = %+v", m.status)
	}
}

func TestNowPlayingView(t *testing.T) {
	if got := nowPlayingView(nowplaying.Info{}, 80); !strings.Contains(got, "Nothing playing") {
		t.Errorf("empty view = %q", got)
	}

	got := nowPlayingView(nowplaying.Info{
		ItemID:   "1",
		Title:    "A long answer",
		Elapsed:  65,
		Duration: 130,
		Rate:     1.5,
		Playing:  true,
	}, 100)
	for _, want := range []string{"▶", "A long answer", "01:05", "1.5x"} {
		if !strings.Contains(got, want) {
			t.Errorf("view %q missing %q", got, want)
		}
	}
}

func TestProgressBar(t *testing.T) {
	tests := []struct {
		fraction float64
		width    int
		filled   int
	}{
		{0, 10, 0},
		{0.5, 10, 5},
		{1.2, 10, 10},
		{-1, 4, 0},
	}
	for _, tt := range tests {
		bar := progressBar(tt.fraction, tt.width)
		if n := strings.Count(bar, "━"); n != tt.filled {
			t.Errorf("progressBar(%v, %d) filled %d, want %d", tt.fraction, tt.width, n, tt.filled)
		}
	}
}
