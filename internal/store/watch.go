package store

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// Watch prunes the store whenever a file in the audio directory is removed
// or renamed, so entries never outlive their backing file for long. It
// blocks until ctx is done.
func (s *Store) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close() //nolint:errcheck

	if err := w.Add(s.dir); err != nil {
		return fmt.Errorf("watch %s: %w", s.dir, err)
	}
	log.Info("fsnotify watching dir", "dir", s.dir)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			log.Debug("fsnotify event", "file", event.Name, "event", event.Op)
			s.Prune()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Debug("fsnotify error", "dir", s.dir, "error", err)
		}
	}
}
