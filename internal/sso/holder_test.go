package sso

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientHolder_ConcurrentCallersShareDiscovery(t *testing.T) {
	h := NewClientHolder(ClientConfig{})
	release := make(chan struct{})
	var calls atomic.Int32
	want := &Client{}
	h.discover = func(context.Context, ClientConfig) (*Client, error) {
		calls.Add(1)
		<-release
		return want, nil
	}

	const callers = 10
	var wg sync.WaitGroup
	results := make([]*Client, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := h.Client(context.Background())
			assert.NoError(t, err)
			results[i] = c
		}()
	}

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, stateDiscovering, h.currentState())
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, c := range results {
		assert.Same(t, want, c)
	}
	assert.Equal(t, stateReady, h.currentState())

	c, err := h.Client(context.Background())
	require.NoError(t, err)
	assert.Same(t, want, c)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClientHolder_FailureAllowsRetry(t *testing.T) {
	h := NewClientHolder(ClientConfig{})
	var calls atomic.Int32
	h.discover = func(context.Context, ClientConfig) (*Client, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("connection refused")
		}
		return &Client{}, nil
	}

	_, err := h.Client(context.Background())
	require.Error(t, err)
	assert.Equal(t, stateUninitialized, h.currentState())

	c, err := h.Client(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, c)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClientHolder_CallerCancelDoesNotAbortDiscovery(t *testing.T) {
	h := NewClientHolder(ClientConfig{})
	release := make(chan struct{})
	h.discover = func(ctx context.Context, _ ClientConfig) (*Client, error) {
		select {
		case <-release:
			return &Client{}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := h.Client(ctx)
		errCh <- err
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	close(release)
	require.Eventually(t, func() bool { return h.currentState() == stateReady }, time.Second, time.Millisecond)
}

func TestClientHolder_Reset(t *testing.T) {
	h := NewClientHolder(ClientConfig{})
	var calls atomic.Int32
	h.discover = func(context.Context, ClientConfig) (*Client, error) {
		calls.Add(1)
		return &Client{}, nil
	}

	first, err := h.Client(context.Background())
	require.NoError(t, err)
	h.Reset()
	assert.Equal(t, stateUninitialized, h.currentState())

	second, err := h.Client(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, int32(2), calls.Load())
}

func TestHolderState_String(t *testing.T) {
	assert.Equal(t, "Uninitialized", stateUninitialized.String())
	assert.Equal(t, "Discovering", stateDiscovering.String())
	assert.Equal(t, "Ready", stateReady.String())
}
