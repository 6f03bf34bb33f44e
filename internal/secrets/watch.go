package secrets

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/redhat-developer/podman-desktop-redhat-account-ext/pkg/logging"
)

// Watch starts notifying OnDidChange listeners about changes made to the
// store directory by other processes. Writes made through this FileStorage
// are already notified directly and are filtered out.
func (s *FileStorage) Watch() error {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()

	if s.fsWatcher != nil {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(s.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", s.dir, err)
	}

	s.fsWatcher = watcher
	s.stopCh = make(chan struct{})

	go s.processEvents(watcher.Events, watcher.Errors, s.stopCh)

	logging.Info("SecretStorage", "Watching %s for external changes", s.dir)
	return nil
}

// Close stops the watcher. The store stays usable.
func (s *FileStorage) Close() error {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()

	if s.fsWatcher == nil {
		return nil
	}

	close(s.stopCh)
	for key, t := range s.timers {
		t.Stop()
		delete(s.timers, key)
	}

	err := s.fsWatcher.Close()
	s.fsWatcher = nil
	return err
}

func (s *FileStorage) processEvents(eventsCh <-chan fsnotify.Event, errorsCh <-chan error, stopCh <-chan struct{}) {
	for {
		select {
		case <-stopCh:
			return

		case event, ok := <-eventsCh:
			if !ok {
				return
			}
			s.handleEvent(event)

		case err, ok := <-errorsCh:
			if !ok {
				return
			}
			logging.Error("SecretStorage", err, "fsnotify error")
		}
	}
}

func (s *FileStorage) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	key, ok := keyFromPath(event.Name)
	if !ok {
		return
	}
	s.notifyDebounced(key)
}

func (s *FileStorage) notifyDebounced(key string) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()

	if s.fsWatcher == nil {
		return
	}
	if t, ok := s.timers[key]; ok {
		t.Stop()
	}
	s.timers[key] = time.AfterFunc(s.debounce, func() {
		s.watchMu.Lock()
		delete(s.timers, key)
		running := s.fsWatcher != nil
		s.watchMu.Unlock()

		if running && s.changedExternally(key) {
			logging.Debug("SecretStorage", "Secret %q changed on disk", key)
			s.listeners.notify(key)
		}
	})
}

// changedExternally reports whether the file for key differs from what
// this process last wrote.
func (s *FileStorage) changedExternally(key string) bool {
	data, err := os.ReadFile(s.path(key))

	s.mu.Lock()
	defer s.mu.Unlock()

	last, known := s.written[key]
	switch {
	case errors.Is(err, os.ErrNotExist):
		// A zero digest marks a key this process deleted itself.
		if known && last == deletedMarker {
			return false
		}
		s.written[key] = deletedMarker
		return true
	case err != nil:
		return true
	}

	sum := sha256.Sum256(data)
	if known && sum == last {
		return false
	}
	s.written[key] = sum
	return true
}
