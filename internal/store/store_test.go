package store

import (
	"fmt"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/dgnsrekt/audiofetch/internal/prefs"
	"github.com/dgnsrekt/audiofetch/internal/progress"
)

const testDir = "/audio"

type fixture struct {
	store   *Store
	fs      afero.Fs
	backend *prefs.Memory
	ledger  *progress.Ledger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fs := afero.NewMemMapFs()
	if err := fs.MkdirAll(testDir, 0o755); err != nil {
		t.Fatal(err)
	}
	backend := prefs.NewMemory()
	return openFixture(t, fs, backend)
}

func openFixture(t *testing.T, fs afero.Fs, backend *prefs.Memory) *fixture {
	t.Helper()
	ledger := progress.NewLedger(backend)
	n := 0
	s := New(Options{
		Backend: backend,
		Fs:      fs,
		Dir:     testDir,
		Ledger:  ledger,
		Now:     func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) },
		NewID: func() string {
			n++
			return fmt.Sprintf("id-%d", n)
		},
	})
	return &fixture{store: s, fs: fs, backend: backend, ledger: ledger}
}

// add writes a backing file and registers it.
func (f *fixture) add(t *testing.T, name, conv, msg string) Item {
	t.Helper()
	path := filepath.Join(testDir, name+".m4a")
	if err := afero.WriteFile(f.fs, path, []byte("audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	d := 3.5
	return f.store.Add(path, name, &d, conv, msg)
}

func names(items []Item) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.DisplayName)
	}
	return out
}

func TestAdd_AppendsAndPersists(t *testing.T) {
	f := newFixture(t)
	a := f.add(t, "A", "X", "m1")

	if a.RelativePath != "A.m4a" {
		t.Errorf("RelativePath = %q, want A.m4a", a.RelativePath)
	}
	if a.DurationSeconds() != 3.5 {
		t.Errorf("Duration = %v", a.DurationSeconds())
	}

	saved, ok := prefs.Get[[]Item](f.backend, prefs.KeyDownloadedItems)
	if !ok || len(saved) != 1 || saved[0].ID != a.ID {
		t.Fatalf("persisted list = %+v, %v", saved, ok)
	}
}

func TestLoad_PrunesMissingFiles(t *testing.T) {
	f := newFixture(t)
	f.add(t, "A", "X", "m1")
	b := f.add(t, "B", "X", "m2")
	f.add(t, "C", "Y", "m3")

	if err := f.fs.Remove(f.store.Path(b)); err != nil {
		t.Fatal(err)
	}

	reopened := openFixture(t, f.fs, f.backend)
	if got := names(reopened.store.Items()); !reflect.DeepEqual(got, []string{"A", "C"}) {
		t.Errorf("items after load = %v", got)
	}

	saved, _ := prefs.Get[[]Item](f.backend, prefs.KeyDownloadedItems)
	if len(saved) != 2 {
		t.Errorf("pruned list was not persisted: %d items", len(saved))
	}
}

// gatedBackend blocks the next read of the item list until release is closed.
type gatedBackend struct {
	*prefs.Memory
	once    sync.Once
	armed   chan struct{}
	reached chan struct{}
	release chan struct{}
}

func (g *gatedBackend) Load(key string) ([]byte, bool, error) {
	if key == prefs.KeyDownloadedItems {
		select {
		case <-g.armed:
			g.once.Do(func() {
				close(g.reached)
				<-g.release
			})
		default:
		}
	}
	return g.Memory.Load(key)
}

func TestLoad_ConcurrentAddIsKept(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := fs.MkdirAll(testDir, 0o755); err != nil {
		t.Fatal(err)
	}
	backend := &gatedBackend{
		Memory:  prefs.NewMemory(),
		armed:   make(chan struct{}),
		reached: make(chan struct{}),
		release: make(chan struct{}),
	}
	s := New(Options{Backend: backend, Fs: fs, Dir: testDir})

	for _, name := range []string{"a", "b"} {
		path := filepath.Join(testDir, name+".m4a")
		if err := afero.WriteFile(fs, path, []byte("audio"), 0o644); err != nil {
			t.Fatal(err)
		}
		s.Add(path, name, nil, "c1", "m-"+name)
	}

	close(backend.armed)
	loaded := make(chan struct{})
	go func() {
		s.Load()
		close(loaded)
	}()
	<-backend.reached

	path := filepath.Join(testDir, "z.m4a")
	if err := afero.WriteFile(fs, path, []byte("audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	added := make(chan Item, 1)
	go func() { added <- s.Add(path, "z", nil, "c1", "m-z") }()

	// give a racing Add the chance to finish before the reload swaps
	time.Sleep(50 * time.Millisecond)
	close(backend.release)
	<-loaded
	z := <-added

	if _, ok := s.Get(z.ID); !ok {
		t.Fatalf("item added during reload is missing: %v", names(s.Items()))
	}
	saved, _ := prefs.Get[[]Item](backend.Memory, prefs.KeyDownloadedItems)
	if got := names(saved); !reflect.DeepEqual(got, []string{"a", "b", "z"}) {
		t.Errorf("persisted list = %v", got)
	}
}

func TestPrune_DropsItemsWithoutFiles(t *testing.T) {
	f := newFixture(t)
	a := f.add(t, "A", "X", "m1")
	b := f.add(t, "B", "X", "m2")
	f.ledger.Set(b.ID, progress.Entry{Fraction: 0.5, LastPosition: 1})

	var deleted []string
	f.store.Subscribe(func(ev Event) {
		if ev.Kind == EventDeleted {
			deleted = append(deleted, ev.Item.ID)
		}
	})

	if n := f.store.Prune(); n != 0 {
		t.Fatalf("Prune with every file present = %d", n)
	}
	if err := f.fs.Remove(f.store.Path(b)); err != nil {
		t.Fatal(err)
	}
	if n := f.store.Prune(); n != 1 {
		t.Fatalf("Prune = %d, want 1", n)
	}

	if got := names(f.store.Items()); !reflect.DeepEqual(got, []string{"A"}) {
		t.Errorf("items = %v", got)
	}
	if !reflect.DeepEqual(deleted, []string{b.ID}) {
		t.Errorf("deleted events = %v", deleted)
	}
	if e := f.ledger.Get(b.ID); e.Fraction != 0 {
		t.Errorf("progress of pruned item kept: %+v", e)
	}
	saved, _ := prefs.Get[[]Item](f.backend, prefs.KeyDownloadedItems)
	if len(saved) != 1 || saved[0].ID != a.ID {
		t.Errorf("persisted list = %+v", saved)
	}
}

func TestLoad_RoundTrip(t *testing.T) {
	f := newFixture(t)
	a := f.add(t, "A", "X", "m1")
	f.add(t, "B", "Y", "m2")
	f.store.ToggleCollapsed("Y")

	reopened := openFixture(t, f.fs, f.backend)
	items := reopened.store.Items()
	if len(items) != 2 {
		t.Fatalf("got %d items", len(items))
	}
	if items[0].ID != a.ID || !items[0].DownloadedAt.Equal(a.DownloadedAt) || items[0].DurationSeconds() != 3.5 {
		t.Errorf("item did not round trip: %+v", items[0])
	}
	if !reopened.store.IsCollapsed("Y") {
		t.Error("collapsed set did not round trip")
	}
}

func TestLoad_UndecodableListIsEmpty(t *testing.T) {
	backend := prefs.NewMemory()
	if err := backend.Save(prefs.KeyDownloadedItems, []byte(`{"not":"a list"}`)); err != nil {
		t.Fatal(err)
	}
	f := openFixture(t, afero.NewMemMapFs(), backend)
	if f.store.Len() != 0 {
		t.Errorf("Len = %d, want 0", f.store.Len())
	}
}

func TestDelete_RemovesFileAndResetsProgress(t *testing.T) {
	f := newFixture(t)
	a := f.add(t, "A", "X", "m1")
	f.ledger.Set(a.ID, progress.Entry{Fraction: 0.5, LastPosition: 2})

	if err := f.store.Delete(a.ID); err != nil {
		t.Fatal(err)
	}
	if ok, _ := afero.Exists(f.fs, f.store.Path(a)); ok {
		t.Error("file still exists")
	}
	if f.store.Len() != 0 {
		t.Error("item still listed")
	}
	if got := f.ledger.Get(a.ID); got != (progress.Entry{}) {
		t.Errorf("ledger entry = %+v, want zero", got)
	}

	if err := f.store.Delete(a.ID); err != ErrNotFound {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestDelete_MissingFileStillRemovesItem(t *testing.T) {
	f := newFixture(t)
	a := f.add(t, "A", "X", "m1")
	_ = f.fs.Remove(f.store.Path(a))

	if err := f.store.Delete(a.ID); err != nil {
		t.Fatal(err)
	}
	if f.store.Len() != 0 {
		t.Error("item still listed")
	}
}

func TestDeleteConversation(t *testing.T) {
	f := newFixture(t)
	f.add(t, "A", "X", "m1")
	f.add(t, "B", "Y", "m2")
	f.add(t, "C", "X", "m3")
	f.store.ToggleCollapsed("X")

	var deleted []string
	f.store.Subscribe(func(ev Event) {
		if ev.Kind == EventDeleted {
			deleted = append(deleted, ev.Item.DisplayName)
		}
	})

	if n := f.store.DeleteConversation("X"); n != 2 {
		t.Errorf("removed %d, want 2", n)
	}
	if got := names(f.store.Items()); !reflect.DeepEqual(got, []string{"B"}) {
		t.Errorf("items = %v", got)
	}
	if !reflect.DeepEqual(deleted, []string{"A", "C"}) {
		t.Errorf("deleted events = %v", deleted)
	}
	if f.store.IsCollapsed("X") {
		t.Error("collapsed state survived conversation deletion")
	}
}

func TestRename(t *testing.T) {
	f := newFixture(t)
	a := f.add(t, "A", "X", "m1")
	f.add(t, "B", "X", "m2")

	if err := f.store.Rename(a.ID, "Intro"); err != nil {
		t.Fatal(err)
	}
	if got, _ := f.store.Get(a.ID); got.DisplayName != "Intro" {
		t.Errorf("DisplayName = %q", got.DisplayName)
	}
	if err := f.store.Rename("missing", "x"); err != ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}

	if got := f.store.ConversationName("X"); got != "X" {
		t.Errorf("default conversation name = %q", got)
	}
	if err := f.store.RenameConversation("X", "Trip plans"); err != nil {
		t.Fatal(err)
	}
	if got := f.store.ConversationName("X"); got != "Trip plans" {
		t.Errorf("conversation name = %q", got)
	}
	for _, it := range f.store.Items() {
		if it.ConversationName != "Trip plans" {
			t.Errorf("item %s kept name %q", it.ID, it.ConversationName)
		}
	}
}

func TestMoveWithinConversation(t *testing.T) {
	tests := []struct {
		name string
		from []int
		to   int
		want []string
	}{
		{"last to front", []int{1}, 0, []string{"C", "A", "B"}},
		{"front to end", []int{0}, 1, []string{"B", "C", "A"}},
		{"offset clamps", []int{0}, 99, []string{"B", "C", "A"}},
		{"negative offset clamps", []int{1}, -4, []string{"C", "A", "B"}},
		{"out of range ignored", []int{7}, 0, []string{"A", "B", "C"}},
		{"same place", []int{0}, 0, []string{"A", "B", "C"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.add(t, "A", "X", "m1")
			f.add(t, "B", "Y", "m2")
			f.add(t, "C", "X", "m3")

			f.store.MoveWithinConversation("X", tt.from, tt.to)

			if got := names(f.store.Items()); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("order = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMoveWithinConversation_OtherGroupsKeepPositions(t *testing.T) {
	f := newFixture(t)
	f.add(t, "A", "X", "m1")
	f.add(t, "B", "Y", "m2")
	f.add(t, "C", "X", "m3")
	f.add(t, "D", "Y", "m4")
	f.add(t, "E", "X", "m5")

	f.store.MoveWithinConversation("X", []int{0, 2}, 1)

	items := f.store.Items()
	var x, y []string
	for _, it := range items {
		if it.ConversationID == "X" {
			x = append(x, it.DisplayName)
		} else {
			y = append(y, it.DisplayName)
		}
	}
	if !reflect.DeepEqual(x, []string{"C", "A", "E"}) {
		t.Errorf("X order = %v", x)
	}
	if !reflect.DeepEqual(y, []string{"B", "D"}) {
		t.Errorf("Y order = %v", y)
	}

	reopened := openFixture(t, f.fs, f.backend)
	if !reflect.DeepEqual(names(reopened.store.Items()), names(items)) {
		t.Error("reorder was not persisted")
	}
}

func TestToggleCollapsed(t *testing.T) {
	f := newFixture(t)
	if !f.store.ToggleCollapsed("X") {
		t.Error("first toggle should collapse")
	}
	f.store.ToggleCollapsed("A")
	if got := f.store.Collapsed(); !reflect.DeepEqual(got, []string{"A", "X"}) {
		t.Errorf("Collapsed = %v", got)
	}
	if f.store.ToggleCollapsed("X") {
		t.Error("second toggle should expand")
	}
	saved, _ := prefs.Get[[]string](f.backend, prefs.KeyCollapsedConversations)
	if !reflect.DeepEqual(saved, []string{"A"}) {
		t.Errorf("persisted collapsed = %v", saved)
	}
}

func TestDownloadedMessageIDs(t *testing.T) {
	f := newFixture(t)
	f.add(t, "A", "X", "m1")
	f.add(t, "B", "Y", "m2")
	f.add(t, "C", "X", "m3")

	if got := f.store.DownloadedMessageIDs("X"); !reflect.DeepEqual(got, []string{"m1", "m3"}) {
		t.Errorf("ids = %v", got)
	}
	if got := f.store.DownloadedMessageIDs("Z"); len(got) != 0 {
		t.Errorf("unknown conversation ids = %v", got)
	}
	if !f.store.HasMessage("Y", "m2") || f.store.HasMessage("X", "m2") {
		t.Error("HasMessage mismatch")
	}
}

func TestGroups(t *testing.T) {
	f := newFixture(t)
	f.add(t, "A", "X", "m1")
	f.add(t, "B", "Y", "m2")
	f.add(t, "C", "X", "m3")
	_ = f.store.RenameConversation("Y", "Recipes")
	f.store.ToggleCollapsed("X")

	groups := f.store.Groups()
	if len(groups) != 2 {
		t.Fatalf("got %d groups", len(groups))
	}
	if groups[0].ConversationID != "X" || !reflect.DeepEqual(names(groups[0].Items), []string{"A", "C"}) || !groups[0].Collapsed {
		t.Errorf("group X = %+v", groups[0])
	}
	if groups[1].Name != "Recipes" || groups[1].Collapsed {
		t.Errorf("group Y = %+v", groups[1])
	}
}

func TestSearch(t *testing.T) {
	f := newFixture(t)
	f.add(t, "Weather report", "X", "m1")
	f.add(t, "Pasta recipe", "Y", "m2")

	got := f.store.Search("pasta")
	if len(got) != 1 || got[0].DisplayName != "Pasta recipe" {
		t.Errorf("Search(pasta) = %v", names(got))
	}
	if all := f.store.Search(""); len(all) != 2 {
		t.Errorf("empty query returned %d items", len(all))
	}
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	f := newFixture(t)
	var kinds []EventKind
	unsubscribe := f.store.Subscribe(func(ev Event) { kinds = append(kinds, ev.Kind) })

	a := f.add(t, "A", "X", "m1")
	_ = f.store.Rename(a.ID, "B")
	unsubscribe()
	f.add(t, "C", "X", "m2")

	if !reflect.DeepEqual(kinds, []EventKind{EventAdded, EventUpdated}) {
		t.Errorf("events = %v", kinds)
	}
}
