package sso

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/redhat-developer/podman-desktop-redhat-account-ext/internal/browser"
	"github.com/redhat-developer/podman-desktop-redhat-account-ext/internal/secrets"
	"github.com/redhat-developer/podman-desktop-redhat-account-ext/internal/testing/mock"
)

const testServiceID = "test-redhat-account"

type testEnv struct {
	idp      *mock.OIDCServer
	clock    *testingclock.FakeClock
	storage  *secrets.MemoryStorage
	bus      *Bus
	holder   *ClientHolder
	service  *Service
	provider *Provider
	browser  *mock.Browser

	mu        sync.Mutex
	signedOut []Account
}

type envOption func(*envConfig)

type envConfig struct {
	idp          mock.OIDCServerConfig
	loginTimeout time.Duration
	opener       browser.Opener
}

func withTokenLifetime(d time.Duration) envOption {
	return func(c *envConfig) { c.idp.TokenLifetime = d }
}

func withNonExpiringTokens() envOption {
	return func(c *envConfig) { c.idp.NonExpiring = true }
}

func withLoginTimeout(d time.Duration) envOption {
	return func(c *envConfig) { c.loginTimeout = d }
}

func withTestOpener(o browser.Opener) envOption {
	return func(c *envConfig) { c.opener = o }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	clk := testingclock.NewFakeClock(time.Now())
	cfg := envConfig{loginTimeout: 10 * time.Second}
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.idp.Clock = clk

	env := &testEnv{
		idp:     mock.NewOIDCServer(cfg.idp),
		clock:   clk,
		storage: secrets.NewMemoryStorage(),
		bus:     NewBus(),
		browser: mock.NewBrowser(),
	}
	t.Cleanup(env.idp.Close)

	opener := cfg.opener
	if opener == nil {
		opener = env.browser
	}

	env.holder = NewClientHolder(ClientConfig{
		AuthURL:  env.idp.Issuer(),
		ClientID: env.idp.ClientID(),
		Clock:    clk,
	})
	env.service = NewService(Config{
		ServiceID:    testServiceID,
		ExternalURL:  "http://127.0.0.1",
		CallbackPath: "sso-redhat-callback",
		LoginTimeout: cfg.loginTimeout,
		CloseDelay:   time.Second,
	}, env.holder, env.storage, env.bus,
		WithClock(clk),
		WithOpener(opener),
		WithNotifier(NotifierFunc(func(account Account, _ error) {
			env.mu.Lock()
			env.signedOut = append(env.signedOut, account)
			env.mu.Unlock()
		})),
	)
	t.Cleanup(env.service.Close)
	env.provider = NewProvider(env.service, env.bus)
	return env
}

// seed stores sessions the way an earlier run would have left them.
func (e *testEnv) seed(t *testing.T, sessions ...StoredSession) {
	t.Helper()
	tokens := make([]*Token, 0, len(sessions))
	for _, st := range sessions {
		tokens = append(tokens, tokenFromStored(st))
	}
	data, err := encodeStoredSessions(tokens)
	require.NoError(t, err)
	require.NoError(t, e.storage.Store(context.Background(), testServiceID, data))
}

// issue mints a stored session the mock provider will accept.
func (e *testEnv) issue(scope string) StoredSession {
	rt, state := e.idp.IssueRefreshToken(scope)
	return StoredSession{
		ID:           state,
		RefreshToken: rt,
		Scope:        scope,
		Account:      StoredAccount{ID: mock.DefaultUser.Subject, Label: mock.DefaultUser.PreferredUsername},
	}
}

func (e *testEnv) stored(t *testing.T) []StoredSession {
	t.Helper()
	data, ok, err := e.storage.Get(context.Background(), testServiceID)
	require.NoError(t, err)
	if !ok {
		return nil
	}
	stored, err := decodeStoredSessions(data)
	require.NoError(t, err)
	return stored
}

func (e *testEnv) signedOutAccounts() []Account {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Account(nil), e.signedOut...)
}

func (e *testEnv) session(id string) (Session, bool) {
	for _, s := range e.service.Snapshot() {
		if s.ID == id {
			return s, true
		}
	}
	return Session{}, false
}

// waitRefresh waits until the provider has seen n refreshes and the
// session has its next task scheduled.
func (e *testEnv) waitRefresh(t *testing.T, id string, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return e.idp.RefreshCount() >= n && e.service.scheduler.Pending(id)
	}, 5*time.Second, 5*time.Millisecond)
}

// nextEvent returns the next non-empty event or fails.
func nextEvent(t *testing.T, events <-chan ChangeEvent) ChangeEvent {
	t.Helper()
	select {
	case e := <-events:
		return e
	case <-time.After(5 * time.Second):
		t.Fatal("no change event received")
		return ChangeEvent{}
	}
}

func ids(sessions []Session) []string {
	out := make([]string, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.ID)
	}
	return out
}
