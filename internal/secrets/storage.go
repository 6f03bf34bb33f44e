package secrets

import (
	"context"
	"sync"
)

// Storage is a key/value secret store with change notification.
type Storage interface {
	// Get returns the value stored under key. The boolean reports whether
	// a value exists.
	Get(ctx context.Context, key string) (string, bool, error)

	// Store writes value under key, replacing any previous value.
	Store(ctx context.Context, key, value string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// OnDidChange registers fn to be called with the key whenever a value
	// changes, whether by this process or another one. The returned
	// function unregisters fn.
	OnDidChange(fn func(key string)) (unsubscribe func())
}

// listeners is the OnDidChange registry shared by the implementations.
// Callbacks are invoked on their own goroutines so a slow listener never
// blocks a writer.
type listeners struct {
	mu     sync.Mutex
	nextID int
	fns    map[int]func(string)
}

func (l *listeners) add(fn func(string)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.fns == nil {
		l.fns = make(map[int]func(string))
	}
	id := l.nextID
	l.nextID++
	l.fns[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.fns, id)
			l.mu.Unlock()
		})
	}
}

func (l *listeners) notify(key string) {
	l.mu.Lock()
	fns := make([]func(string), 0, len(l.fns))
	for _, fn := range l.fns {
		fns = append(fns, fn)
	}
	l.mu.Unlock()

	for _, fn := range fns {
		go fn(key)
	}
}
