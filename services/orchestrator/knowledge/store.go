// Copyright (C) 2025 Pizza Alchemy (engineering@pizzaalchemy.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// Store holds the current knowledge base behind an atomic pointer so a file
// reload never races in-flight requests. Readers call Get once per request
// and keep that snapshot for the whole pipeline.
type Store struct {
	base atomic.Pointer[Base]
}

// NewStore creates a store seeded with the given base.
func NewStore(base *Base) *Store {
	s := &Store{}
	s.base.Store(base)
	return s
}

// Get returns the current knowledge base snapshot.
func (s *Store) Get() *Base {
	return s.base.Load()
}

// Replace swaps in a new knowledge base.
func (s *Store) Replace(base *Base) {
	s.base.Store(base)
}

// Watch reloads the knowledge base whenever the file at path changes. It
// blocks until ctx is cancelled, so run it on its own goroutine. A reload
// that fails to parse keeps the previous snapshot.
func (s *Store) Watch(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create knowledge base watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}
	slog.Info("Watching knowledge base for changes", "path", path)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			base, err := Load(path)
			if err != nil {
				slog.Warn("Knowledge base reload failed, keeping previous snapshot",
					"path", path, "error", err)
				continue
			}
			s.Replace(base)
			slog.Info("Knowledge base reloaded", "path", path,
				"menu_categories", len(base.Menu), "deal_categories", len(base.Deals))

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("Knowledge base watcher error", "error", err)
		}
	}
}
