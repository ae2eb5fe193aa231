package config

import (
	"context"
	"fmt"
	"log"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the file at path whenever it changes and passes each valid
// configuration to onChange. Invalid edits are logged and ignored. The
// parent directory is watched so editors that replace the file are seen.
// Watch returns once the watcher is running; it stops when ctx is done.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		w.Close()
		return err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != abs || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
					continue
				}
				cfg, err := Load(abs)
				if err != nil {
					log.Printf("[config] Ignoring change to %s: %v", path, err)
					continue
				}
				log.Printf("[config] Reloaded %s", path)
				onChange(cfg)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Printf("[config] Watch error: %v", err)
			}
		}
	}()
	return nil
}
