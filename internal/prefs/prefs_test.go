package prefs

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

type sample struct {
	ID    string             `json:"id"`
	Tags  []string           `json:"tags"`
	Marks map[string]float64 `json:"marks"`
}

func backends(t *testing.T) map[string]func(dir string) Backend {
	t.Helper()
	return map[string]func(dir string) Backend{
		"memory": func(string) Backend { return NewMemory() },
		"file": func(dir string) Backend {
			b, err := NewFile(dir, false)
			if err != nil {
				t.Fatalf("NewFile: %v", err)
			}
			return b
		},
		"file-zstd": func(dir string) Backend {
			b, err := NewFile(dir, true)
			if err != nil {
				t.Fatalf("NewFile: %v", err)
			}
			return b
		},
		"sqlite": func(dir string) Backend {
			b, err := NewSQLite(dir)
			if err != nil {
				t.Fatalf("NewSQLite: %v", err)
			}
			return b
		},
		"badger": func(dir string) Backend {
			b, err := NewBadger(dir)
			if err != nil {
				t.Fatalf("NewBadger: %v", err)
			}
			return b
		},
	}
}

func TestBackends_RoundTrip(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			b := open(t.TempDir())
			defer b.Close()

			want := sample{
				ID:    "a",
				Tags:  []string{"x", "y"},
				Marks: map[string]float64{"one": 0.25},
			}
			if err := Set(b, "sample", want); err != nil {
				t.Fatalf("Set failed: %v", err)
			}

			got, ok := Get[sample](b, "sample")
			if !ok {
				t.Fatal("Get reported missing value")
			}
			if !reflect.DeepEqual(got, want) {
				t.Errorf("round trip mismatch: got %+v, want %+v", got, want)
			}

			if _, ok := Get[sample](b, "missing"); ok {
				t.Error("missing key reported present")
			}

			if err := b.Delete("sample"); err != nil {
				t.Fatalf("Delete failed: %v", err)
			}
			if _, ok := Get[sample](b, "sample"); ok {
				t.Error("deleted key still present")
			}
			if err := b.Delete("sample"); err != nil {
				t.Errorf("deleting a missing key should not fail: %v", err)
			}
		})
	}
}

func TestGet_UndecodableValueIsAbsent(t *testing.T) {
	b := NewMemory()
	if err := b.Save(KeyPlaybackRate, []byte(`"fast"`)); err != nil {
		t.Fatal(err)
	}

	if _, ok := Get[float64](b, KeyPlaybackRate); ok {
		t.Error("undecodable value should be treated as absent")
	}
	if got := GetOr(b, KeyPlaybackRate, 1.0); got != 1.0 {
		t.Errorf("GetOr fallback = %v, want 1.0", got)
	}
}

func TestFile_PersistsAcrossReopen(t *testing.T) {
	for _, compress := range []bool{false, true} {
		dir := t.TempDir()

		b, err := NewFile(dir, compress)
		if err != nil {
			t.Fatal(err)
		}
		if err := Set(b, KeyCurrentItemID, "item-1"); err != nil {
			t.Fatal(err)
		}
		b.Close()

		reopened, err := NewFile(dir, compress)
		if err != nil {
			t.Fatal(err)
		}
		defer reopened.Close()

		if got := GetOr(reopened, KeyCurrentItemID, ""); got != "item-1" {
			t.Errorf("compress=%v: got %q after reopen", compress, got)
		}
	}
}

func TestFile_CorruptDocumentStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, fileName), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	b, err := NewFile(dir, false)
	if err != nil {
		t.Fatalf("corrupt document should not fail open: %v", err)
	}
	defer b.Close()

	if _, ok, _ := b.Load(KeyNotes); ok {
		t.Error("expected empty document")
	}
	if err := Set(b, KeyNotes, []string{"n"}); err != nil {
		t.Errorf("save after corrupt open failed: %v", err)
	}
}

func TestClosedBackend(t *testing.T) {
	b := NewMemory()
	b.Close()
	if err := b.Save("k", []byte(`1`)); err != ErrClosed {
		t.Errorf("Save after close = %v, want ErrClosed", err)
	}
}

func TestOpen_UnknownBackend(t *testing.T) {
	if _, err := Open(Config{Backend: "etcd"}); err == nil {
		t.Error("expected error for unknown backend")
	}
}
