package sso

import (
	"sync"

	"github.com/redhat-developer/podman-desktop-redhat-account-ext/pkg/logging"
)

// subscriberBuffer is the channel capacity of each subscriber.
const subscriberBuffer = 100

// ChangeEvent announces sessions that were added, removed or changed.
type ChangeEvent struct {
	Added   []Session `json:"added,omitempty"`
	Removed []Session `json:"removed,omitempty"`
	Changed []Session `json:"changed,omitempty"`
}

// Empty reports whether the event carries no session at all.
func (e ChangeEvent) Empty() bool {
	return len(e.Added) == 0 && len(e.Removed) == 0 && len(e.Changed) == 0
}

// Bus fans change events out to subscribers. Publishing never blocks: a
// subscriber whose buffer is full misses the event.
type Bus struct {
	mu          sync.RWMutex
	nextID      int
	subscribers map[int]chan ChangeEvent
}

// NewBus creates a Bus with no subscribers.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[int]chan ChangeEvent)}
}

// Subscribe returns a channel receiving every event published from now on,
// and a function that unsubscribes and closes the channel.
func (b *Bus) Subscribe() (<-chan ChangeEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan ChangeEvent, subscriberBuffer)
	b.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subscribers, id)
			close(ch)
		})
	}
}

// Publish delivers e to every subscriber. Empty events are dropped.
func (b *Bus) Publish(e ChangeEvent) {
	if e.Empty() {
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers {
		select {
		case ch <- e:
		default:
			logging.Warn("SSO", "Change event subscriber is not keeping up, dropping event")
		}
	}
}
