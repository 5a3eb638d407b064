package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/dgnsrekt/audiofetch/internal/prefs"
)

func TestWatch_PrunesWhenFileRemoved(t *testing.T) {
	dir := t.TempDir()
	s := New(Options{Backend: prefs.NewMemory(), Fs: afero.NewOsFs(), Dir: dir})

	path := filepath.Join(dir, "a.m4a")
	if err := os.WriteFile(path, []byte("a"), 0o644); err != nil {
		t.Fatal(err)
	}
	s.Add(path, "a", nil, "c1", "m1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Watch(ctx) }()
	defer func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Watch: %v", err)
		}
	}()

	// the watcher may not be registered yet; recreate and remove the file
	// until the removal is noticed
	deadline := time.Now().Add(5 * time.Second)
	for s.Len() > 0 && time.Now().Before(deadline) {
		_ = os.WriteFile(path, []byte("a"), 0o644)
		time.Sleep(50 * time.Millisecond)
		_ = os.Remove(path)
		time.Sleep(100 * time.Millisecond)
	}
	if s.Len() != 0 {
		t.Fatal("store kept an entry whose file was removed")
	}
}

func TestWatch_MissingDir(t *testing.T) {
	s := New(Options{Backend: prefs.NewMemory(), Fs: afero.NewOsFs(), Dir: filepath.Join(t.TempDir(), "nope")})
	if err := s.Watch(context.Background()); err == nil {
		t.Fatal("expected error for missing directory")
	}
}
