package sso

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/redhat-developer/podman-desktop-redhat-account-ext/pkg/logging"
)

// discoveryTimeout bounds a single discovery attempt. Discovery runs
// detached from the caller so one caller giving up does not fail the
// others waiting on the same attempt.
const discoveryTimeout = 30 * time.Second

type holderState int

const (
	stateUninitialized holderState = iota
	stateDiscovering
	stateReady
)

func (s holderState) String() string {
	switch s {
	case stateDiscovering:
		return "Discovering"
	case stateReady:
		return "Ready"
	default:
		return "Uninitialized"
	}
}

// ClientHolder lazily discovers the OIDC client and shares it. Concurrent
// callers join a single discovery. A failed discovery leaves the holder
// uninitialized so the next call tries again.
type ClientHolder struct {
	cfg      ClientConfig
	discover func(context.Context, ClientConfig) (*Client, error)

	mu         sync.Mutex
	state      holderState
	client     *Client
	generation uint64

	group singleflight.Group
}

// NewClientHolder creates a holder for cfg. Nothing is fetched yet.
func NewClientHolder(cfg ClientConfig) *ClientHolder {
	return &ClientHolder{cfg: cfg, discover: discover}
}

// Client returns the shared client, discovering it if needed.
func (h *ClientHolder) Client(ctx context.Context) (*Client, error) {
	h.mu.Lock()
	if h.state == stateReady {
		c := h.client
		h.mu.Unlock()
		return c, nil
	}
	h.state = stateDiscovering
	gen := h.generation
	h.mu.Unlock()

	ch := h.group.DoChan("discover", func() (any, error) {
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), discoveryTimeout)
		defer cancel()

		logging.Debug("ClientHolder", "Discovering OIDC provider at %s", h.cfg.AuthURL)
		c, err := h.discover(dctx, h.cfg)

		h.mu.Lock()
		defer h.mu.Unlock()
		if h.generation != gen {
			// Reset while discovering; don't memoise a stale client.
			return c, err
		}
		if err != nil {
			h.state = stateUninitialized
			return nil, err
		}
		h.state = stateReady
		h.client = c
		return c, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			logging.Warn("ClientHolder", "OIDC discovery failed: %v", res.Err)
			return nil, res.Err
		}
		return res.Val.(*Client), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Reset drops the memoised client so the next call rediscovers.
func (h *ClientHolder) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.generation++
	h.state = stateUninitialized
	h.client = nil
	h.group.Forget("discover")
}

func (h *ClientHolder) currentState() holderState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}
