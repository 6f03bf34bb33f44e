package secrets

import (
	"context"
	"sync"
)

// MemoryStorage is an in-memory Storage.
type MemoryStorage struct {
	mu        sync.RWMutex
	values    map[string]string
	listeners listeners
}

// NewMemoryStorage creates an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: make(map[string]string)}
}

// Get implements Storage.
func (m *MemoryStorage) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

// Store implements Storage.
func (m *MemoryStorage) Store(_ context.Context, key, value string) error {
	m.mu.Lock()
	m.values[key] = value
	m.mu.Unlock()

	m.listeners.notify(key)
	return nil
}

// Delete implements Storage.
func (m *MemoryStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	_, existed := m.values[key]
	delete(m.values, key)
	m.mu.Unlock()

	if existed {
		m.listeners.notify(key)
	}
	return nil
}

// OnDidChange implements Storage.
func (m *MemoryStorage) OnDidChange(fn func(key string)) func() {
	return m.listeners.add(fn)
}

// SetExternally replaces the value under key the way another process
// sharing the store would. An empty value removes the key. Listeners are
// notified in both cases.
func (m *MemoryStorage) SetExternally(key, value string) {
	m.mu.Lock()
	if value == "" {
		delete(m.values, key)
	} else {
		m.values[key] = value
	}
	m.mu.Unlock()

	m.listeners.notify(key)
}
