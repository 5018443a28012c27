package config

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultWatchDebounce coalesces bursts of writes from editors and copies
const DefaultWatchDebounce = 200 * time.Millisecond

// Watch refreshes the cache whenever a collection file in the config
// directory is created, written, renamed or removed. onChange, if set, runs
// after each refresh. Watch blocks until ctx is cancelled.
func (m *Manager) Watch(ctx context.Context, debounce time.Duration, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(m.configDir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", m.configDir, err)
	}
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}

	var timer *time.Timer
	var timerC <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isConfigFile(event.Name) || (event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write)) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			timerC = timer.C
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("Warning: config watcher error: %v", err)
		case <-timerC:
			timerC = nil
			if err := m.RefreshCache(); err != nil {
				log.Printf("Warning: failed to refresh configs: %v", err)
				continue
			}
			log.Printf("[CONFIG] reloaded collections from %s", m.configDir)
			if onChange != nil {
				onChange()
			}
		}
	}
}
