package mock

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"
)

var errTimeout = errors.New("browser did not finish in time")

// Browser plays the user's browser in an interactive login. Open follows
// the whole redirect chain in the background; Wait returns where it ended.
type Browser struct {
	client *http.Client

	mu       sync.Mutex
	opened   []string
	finalURL *url.URL
	err      error
	done     chan struct{}
}

// NewBrowser creates a Browser.
func NewBrowser() *Browser {
	return &Browser{
		client: &http.Client{Timeout: 30 * time.Second},
		done:   make(chan struct{}),
	}
}

// Open implements browser.Opener. Only the first URL is followed.
func (b *Browser) Open(rawURL string) error {
	b.mu.Lock()
	b.opened = append(b.opened, rawURL)
	first := len(b.opened) == 1
	b.mu.Unlock()

	if first {
		go b.follow(rawURL)
	}
	return nil
}

func (b *Browser) follow(rawURL string) {
	resp, err := b.client.Get(rawURL)

	b.mu.Lock()
	defer b.mu.Unlock()
	defer close(b.done)

	if err != nil {
		b.err = err
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	b.finalURL = resp.Request.URL
}

// Opened returns the URLs passed to Open.
func (b *Browser) Opened() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.opened...)
}

// Wait blocks until the redirect chain ends or timeout passes. It returns
// the URL of the last page loaded.
func (b *Browser) Wait(timeout time.Duration) (*url.URL, error) {
	select {
	case <-b.done:
	case <-time.After(timeout):
		return nil, errTimeout
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.finalURL, b.err
}
