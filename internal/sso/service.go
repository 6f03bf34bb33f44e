package sso

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"github.com/redhat-developer/podman-desktop-redhat-account-ext/internal/browser"
	"github.com/redhat-developer/podman-desktop-redhat-account-ext/internal/secrets"
	"github.com/redhat-developer/podman-desktop-redhat-account-ext/pkg/logging"
	"github.com/redhat-developer/podman-desktop-redhat-account-ext/pkg/oauth"
)

const (
	// refreshMargin is how long before expiry the access token is refreshed.
	refreshMargin = 30 * time.Second

	// maxRefreshRetries is the number of quick retries after a network
	// failure before falling back to reconnectInterval.
	maxRefreshRetries = 3

	reconnectInterval = 30 * time.Minute

	// initializeConcurrency bounds parallel refreshes of stored sessions.
	initializeConcurrency = 8

	accountLabelFallback = "email not found"
)

// DefaultLoginScopes are always requested at login. They carry the claims
// used to label the account.
var DefaultLoginScopes = []string{"openid", "id.username", "email"}

// Config configures a Service.
type Config struct {
	// ServiceID is the secret storage key holding the sessions.
	ServiceID string

	// ExternalURL is the base URL the browser uses to reach the callback
	// server, without port.
	ExternalURL  string
	Port         int
	CallbackPath string

	LoginTimeout time.Duration
	CloseDelay   time.Duration
}

// Notifier is told when a session ends because the provider rejected its
// refresh token.
type Notifier interface {
	SignedOut(account Account, err error)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(account Account, err error)

// SignedOut calls f.
func (f NotifierFunc) SignedOut(account Account, err error) {
	f(account, err)
}

type logNotifier struct{}

func (logNotifier) SignedOut(account Account, err error) {
	logging.Warn("SSO", "You have been signed out (%s) because reading stored authentication information failed: %v", account.Label, err)
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the clock driving refresh timers and expiry checks.
func WithClock(c clock.WithDelayedExecution) Option {
	return func(s *Service) {
		s.clock = c
	}
}

// WithOpener sets how the sign-in URL is opened.
func WithOpener(o browser.Opener) Option {
	return func(s *Service) {
		s.opener = o
	}
}

// WithNotifier sets who is told about forced sign-outs.
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

// Service owns the in-memory session set and keeps it in sync with secret
// storage and the identity provider.
type Service struct {
	cfg       Config
	clients   *ClientHolder
	storage   secrets.Storage
	bus       *Bus
	opener    browser.Opener
	notifier  Notifier
	clock     clock.WithDelayedExecution
	scheduler *Scheduler

	// bgCtx is used by timer driven refreshes. Close cancels it.
	bgCtx  context.Context
	cancel context.CancelFunc

	// checkMu serialises CheckForUpdates.
	checkMu sync.Mutex

	// mu guards tokens and unsubscribe. It is held across secret storage
	// writes so storage always reflects memory, never across provider calls.
	mu          sync.Mutex
	tokens      []*Token
	unsubscribe func()
}

// NewService creates a Service. Call Initialize before use.
func NewService(cfg Config, clients *ClientHolder, storage secrets.Storage, bus *Bus, opts ...Option) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		cfg:      cfg,
		clients:  clients,
		storage:  storage,
		bus:      bus,
		opener:   browser.System,
		notifier: logNotifier{},
		clock:    clock.RealClock{},
		bgCtx:    ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.scheduler = NewScheduler(s.clock)
	return s
}

// Initialize loads the stored sessions and refreshes each of them, then
// starts following out-of-band changes to secret storage. Sessions that
// cannot be refreshed because the provider is unreachable are kept with no
// access token and retried in the background.
func (s *Service) Initialize(ctx context.Context) error {
	stored, ok, err := s.loadStored(ctx)
	switch {
	case errors.Is(err, errUnreadableSessions):
		logging.Warn("SSO", "Failed to initialize stored data, clearing it: %v", err)
		if err := s.ClearSessions(ctx); err != nil {
			return err
		}
	case err != nil:
		return err
	case ok:
		logging.Info("SSO", "Restoring %d stored session(s)", len(stored))
		s.adopt(ctx, stored)
	}

	s.mu.Lock()
	if s.unsubscribe == nil {
		s.unsubscribe = s.storage.OnDidChange(s.onStorageChange)
	}
	s.mu.Unlock()
	return nil
}

func (s *Service) onStorageChange(key string) {
	if key != s.cfg.ServiceID {
		return
	}
	if err := s.CheckForUpdates(s.bgCtx); err != nil && s.bgCtx.Err() == nil {
		logging.Warn("SSO", "Failed to reconcile stored sessions: %v", err)
	}
}

// adopt brings stored sessions unknown to memory in and refreshes them
// concurrently. They are inserted first so that every write to storage
// made meanwhile still carries them. It returns the sessions that were
// added; sessions whose refresh token was rejected are dropped.
func (s *Service) adopt(ctx context.Context, stored []StoredSession) []Session {
	s.mu.Lock()
	var pending []*Token
	for _, st := range stored {
		if st.RefreshToken == "" {
			continue
		}
		if i, _ := s.findLocked(st.ID); i >= 0 {
			continue
		}
		tok := tokenFromStored(st)
		s.tokens = append(s.tokens, tok)
		pending = append(pending, tok.clone())
	}
	s.mu.Unlock()

	var (
		mu    sync.Mutex
		added []Session
	)
	var g errgroup.Group
	g.SetLimit(initializeConcurrency)
	for _, cur := range pending {
		g.Go(func() error {
			tok, err := s.refreshToken(ctx, cur, true)
			switch {
			case err == nil:
				mu.Lock()
				added = append(added, tok.session())
				mu.Unlock()
			case errors.Is(err, ErrNoSession):
			case IsNetworkFailure(err):
				s.handleRefreshNetworkError(cur.SessionID, 1)
				mu.Lock()
				added = append(added, cur.session())
				mu.Unlock()
			default:
				s.discard(ctx, cur.SessionID)
			}
			return nil
		})
	}
	_ = g.Wait()
	return added
}

// discard removes a session that was never announced.
func (s *Service) discard(ctx context.Context, sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(sessionID)
	if err := s.persistLocked(ctx); err != nil {
		logging.Warn("SSO", "Failed to remove rejected session from storage: %v", err)
	}
}

// GetSessions returns the sessions matching scopes, or all sessions when
// scopes is nil. A session matches when its scope equals the canonical
// form of scopes, or that form joined with DefaultLoginScopes, which is
// what CreateSession stores. Expired access tokens are refreshed first.
func (s *Service) GetSessions(ctx context.Context, scopes []string) ([]Session, error) {
	var canonical, withDefaults string
	if scopes != nil {
		canonical = oauth.CanonicalScope(scopes)
		withDefaults = oauth.UnionScope(canonical, DefaultLoginScopes...)
	}

	s.mu.Lock()
	var matching []*Token
	for _, t := range s.tokens {
		if scopes == nil || t.Scope == canonical || t.Scope == withDefaults {
			matching = append(matching, t.clone())
		}
	}
	s.mu.Unlock()

	sessions := make([]Session, 0, len(matching))
	for _, t := range matching {
		session, err := s.resolve(ctx, t)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}

// Snapshot returns every session as currently held in memory, without
// contacting the provider.
func (s *Service) Snapshot() []Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sessionsOf(s.tokens)
}

// resolve returns t as a session, refreshing its access token when it is
// missing or expired.
func (s *Service) resolve(ctx context.Context, t *Token) (Session, error) {
	if t.usable(s.clock.Now()) {
		logging.Debug("SSO", "Token for session %s available from cache", logging.TruncateSessionID(t.SessionID))
		return t.session(), nil
	}

	logging.Info("SSO", "Token expired or unavailable, trying refresh")
	tok, err := s.refreshToken(ctx, t, true)
	if err == nil && tok.AccessToken != "" {
		return tok.session(), nil
	}
	if err == nil {
		err = errors.New("provider returned no access token")
	}

	var rejected *RefreshRejectedError
	switch {
	case IsNetworkFailure(err):
		if !s.scheduler.Pending(t.SessionID) {
			s.handleRefreshNetworkError(t.SessionID, 1)
		}
	case errors.As(err, &rejected):
		s.dropSession(t.SessionID)
	}
	return Session{}, fmt.Errorf("%w: %w", ErrTokenUnavailable, err)
}

// RemoveSession signs a session out. It returns the removed session, or
// nil when the id is unknown.
func (s *Service) RemoveSession(ctx context.Context, sessionID string) (*Session, error) {
	logging.Info("SSO", "Logging out of session %s", logging.TruncateSessionID(sessionID))

	s.mu.Lock()
	defer s.mu.Unlock()

	tok := s.removeLocked(sessionID)
	err := s.persistLocked(ctx)
	if err != nil {
		err = fmt.Errorf("failed to update stored sessions: %w", err)
	}
	if tok == nil {
		return nil, err
	}

	logging.Audit(logging.AuditEvent{
		Action:    "session_removed",
		Outcome:   "success",
		SessionID: tok.SessionID,
		Account:   tok.Account.Label,
	})
	session := tok.session()
	return &session, err
}

// ClearSessions drops every session and deletes the stored record.
func (s *Service) ClearSessions(ctx context.Context) error {
	logging.Info("SSO", "Logging out of all sessions")

	s.mu.Lock()
	defer s.mu.Unlock()

	s.tokens = nil
	s.scheduler.CancelAll()
	if err := s.storage.Delete(ctx, s.cfg.ServiceID); err != nil {
		return fmt.Errorf("failed to delete stored sessions: %w", err)
	}
	return nil
}

// CheckForUpdates reconciles memory with secret storage after another
// process changed it. Stored sessions unknown to memory are refreshed and
// added; sessions missing from storage are dropped. At most one change
// event is published per call.
func (s *Service) CheckForUpdates(ctx context.Context) error {
	s.checkMu.Lock()
	defer s.checkMu.Unlock()

	s.mu.Lock()
	stored, ok, err := s.loadStored(ctx)
	switch {
	case errors.Is(err, errUnreadableSessions):
		logging.Error("SSO", err, "Stored session data is unreadable, clearing it")
		removed := s.dropAllLocked()
		derr := s.storage.Delete(ctx, s.cfg.ServiceID)
		s.mu.Unlock()
		s.bus.Publish(ChangeEvent{Removed: removed})
		return derr
	case err != nil:
		s.mu.Unlock()
		return err
	case !ok:
		removed := s.dropAllLocked()
		s.mu.Unlock()
		if len(removed) > 0 {
			logging.Info("SSO", "No stored session data, clearing local data")
		}
		s.bus.Publish(ChangeEvent{Removed: removed})
		return nil
	}

	inStorage := make(map[sessionKey]bool, len(stored))
	for _, st := range stored {
		inStorage[st.key()] = true
	}

	var removed []Session
	kept := make([]*Token, 0, len(s.tokens))
	inMemory := make(map[sessionKey]bool, len(s.tokens))
	for _, t := range s.tokens {
		if inStorage[t.key()] {
			kept = append(kept, t)
			inMemory[t.key()] = true
			continue
		}
		s.scheduler.Cancel(t.SessionID)
		removed = append(removed, t.session())
	}
	s.tokens = kept

	var toAdopt []StoredSession
	for _, st := range stored {
		if !inMemory[st.key()] && st.RefreshToken != "" {
			toAdopt = append(toAdopt, st)
		}
	}
	s.mu.Unlock()

	added := s.adopt(ctx, toAdopt)
	s.bus.Publish(ChangeEvent{Added: added, Removed: removed})
	return nil
}

// loadStored reads and decodes the stored sessions. ok is false when
// nothing is stored. Data that cannot be decrypted or decoded is reported
// as errUnreadableSessions.
func (s *Service) loadStored(ctx context.Context) (stored []StoredSession, ok bool, err error) {
	data, ok, err := s.storage.Get(ctx, s.cfg.ServiceID)
	switch {
	case errors.Is(err, secrets.ErrCorrupted):
		return nil, true, fmt.Errorf("%w: %w", errUnreadableSessions, err)
	case err != nil:
		return nil, false, fmt.Errorf("failed to read stored sessions: %w", err)
	case !ok || data == "":
		return nil, false, nil
	}

	stored, err = decodeStoredSessions(data)
	if err != nil {
		return nil, true, fmt.Errorf("%w: %w", errUnreadableSessions, err)
	}
	return stored, true, nil
}

// Close stops background refreshes and storage notifications.
func (s *Service) Close() {
	s.mu.Lock()
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	s.mu.Unlock()

	s.cancel()
	s.scheduler.CancelAll()
}

// setToken upserts tok, rearms its refresh timer and persists the session
// set. With mustExist, a session removed in the meantime is not brought
// back and ErrNoSession is returned.
func (s *Service) setToken(ctx context.Context, tok *Token, mustExist bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, _ := s.findLocked(tok.SessionID)
	switch {
	case i >= 0:
		s.tokens[i] = tok.clone()
	case mustExist:
		return ErrNoSession
	default:
		s.tokens = append(s.tokens, tok.clone())
	}

	s.scheduleRefreshLocked(tok)
	return s.persistLocked(ctx)
}

func (s *Service) scheduleRefreshLocked(tok *Token) {
	id := tok.SessionID
	if tok.ExpiresIn <= 0 {
		s.scheduler.Cancel(id)
		return
	}
	delay := time.Duration(tok.ExpiresIn)*time.Second - refreshMargin
	if delay < 0 {
		delay = 0
	}
	s.scheduler.Schedule(id, delay, func() { s.onRefreshTimer(id) })
}

func (s *Service) persistLocked(ctx context.Context) error {
	if len(s.tokens) == 0 {
		return s.storage.Delete(ctx, s.cfg.ServiceID)
	}
	data, err := encodeStoredSessions(s.tokens)
	if err != nil {
		return err
	}
	return s.storage.Store(ctx, s.cfg.ServiceID, data)
}

func (s *Service) findLocked(sessionID string) (int, *Token) {
	for i, t := range s.tokens {
		if t.SessionID == sessionID {
			return i, t
		}
	}
	return -1, nil
}

func (s *Service) removeLocked(sessionID string) *Token {
	s.scheduler.Cancel(sessionID)
	i, tok := s.findLocked(sessionID)
	if i < 0 {
		return nil
	}
	s.tokens = append(s.tokens[:i], s.tokens[i+1:]...)
	return tok
}

func (s *Service) dropAllLocked() []Session {
	removed := sessionsOf(s.tokens)
	s.tokens = nil
	s.scheduler.CancelAll()
	return removed
}

func (s *Service) lookup(sessionID string) *Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, tok := s.findLocked(sessionID); tok != nil {
		return tok.clone()
	}
	return nil
}

// refreshToken redeems cur's refresh token and stores the result.
// Failures come back classified: ErrNetworkFailure or
// *RefreshRejectedError.
func (s *Service) refreshToken(ctx context.Context, cur *Token, mustExist bool) (*Token, error) {
	logging.Info("SSO", "Refreshing token for session %s", logging.TruncateSessionID(cur.SessionID))

	client, err := s.clients.Client(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetworkFailure, err)
	}

	set, err := client.Refresh(ctx, cur.RefreshToken)
	if err != nil {
		err = classifyRefreshError(err)
		logging.Error("SSO", err, "Refreshing token failed")

		var rejected *RefreshRejectedError
		if errors.As(err, &rejected) {
			logging.Audit(logging.AuditEvent{
				Action:    "session_signed_out",
				Outcome:   "failure",
				SessionID: cur.SessionID,
				Account:   cur.Account.Label,
				Reason:    "refresh token rejected",
			})
			s.notifier.SignedOut(cur.Account, err)
		}
		return nil, err
	}

	tok := s.convertToken(set, cur.Scope, cur.SessionID, cur.Account)
	if tok.RefreshToken == "" {
		tok.RefreshToken = cur.RefreshToken
	}

	if err := s.setToken(ctx, tok, mustExist); err != nil {
		if errors.Is(err, ErrNoSession) {
			return nil, err
		}
		logging.Warn("SSO", "Failed to persist refreshed session: %v", err)
	}
	logging.Info("SSO", "Token refresh success")
	return tok, nil
}

func (s *Service) convertToken(set *TokenSet, scope, sessionID string, fallback Account) *Token {
	tok := &Token{
		AccessToken:  set.AccessToken,
		IDToken:      set.IDToken,
		RefreshToken: set.RefreshToken,
		ExpiresIn:    set.ExpiresIn,
		SessionID:    sessionID,
		Scope:        scope,
		Account:      fallback,
	}
	if set.ExpiresIn > 0 {
		tok.ExpiresAt = s.clock.Now().Add(time.Duration(set.ExpiresIn) * time.Second)
	}
	if tok.SessionID == "" {
		tok.SessionID = set.SessionState
	}
	if tok.SessionID == "" {
		tok.SessionID = uuid.NewString()
	}
	if c := set.Claims; c != nil {
		if c.Subject != "" {
			tok.Account.ID = c.Subject
		}
		if label := accountLabel(c); label != accountLabelFallback || tok.Account.Label == "" {
			tok.Account.Label = label
		}
	}
	if tok.Account.Label == "" {
		tok.Account.Label = accountLabelFallback
	}
	return tok
}

func accountLabel(c *IdentityClaims) string {
	switch {
	case c.PreferredUsername != "":
		return c.PreferredUsername
	case c.Email != "":
		return c.Email
	default:
		return accountLabelFallback
	}
}
