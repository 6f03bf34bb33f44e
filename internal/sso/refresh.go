package sso

import (
	"errors"
	"time"

	"github.com/redhat-developer/podman-desktop-redhat-account-ext/pkg/logging"
)

// retryDelay is the wait before retry attempt n: 5s, 20s, 45s.
func retryDelay(attempt int) time.Duration {
	return time.Duration(5*attempt*attempt) * time.Second
}

// onRefreshTimer runs when a session's access token is about to expire.
func (s *Service) onRefreshTimer(sessionID string) {
	tok := s.lookup(sessionID)
	if tok == nil {
		return
	}

	refreshed, err := s.refreshToken(s.bgCtx, tok, true)
	s.afterBackgroundRefresh(sessionID, refreshed, err, func() {
		s.handleRefreshNetworkError(sessionID, 1)
	})
}

// handleRefreshNetworkError runs one step of the retry episode of a
// session whose refresh could not reach the provider. The first step
// blanks the access token so callers stop using it.
func (s *Service) handleRefreshNetworkError(sessionID string, attempt int) {
	if attempt > maxRefreshRetries {
		s.pollForReconnect(sessionID)
		return
	}

	s.mu.Lock()
	_, tok := s.findLocked(sessionID)
	if tok == nil {
		s.mu.Unlock()
		return
	}
	var changed []Session
	if attempt == 1 && tok.AccessToken != "" {
		tok.AccessToken = ""
		changed = append(changed, tok.session())
	}
	delay := retryDelay(attempt)
	s.scheduler.Schedule(sessionID, delay, func() {
		logging.Debug("SSO", "Retrying refresh of session %s (attempt %d)", logging.TruncateSessionID(sessionID), attempt)
		s.refreshExisting(sessionID, func() {
			s.handleRefreshNetworkError(sessionID, attempt+1)
		})
	})
	s.mu.Unlock()

	logging.Warn("SSO", "Provider unreachable, retrying refresh of session %s in %s", logging.TruncateSessionID(sessionID), delay)
	s.bus.Publish(ChangeEvent{Changed: changed})
}

// pollForReconnect keeps trying to refresh the session at a slow pace
// until the provider answers.
func (s *Service) pollForReconnect(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, tok := s.findLocked(sessionID); tok == nil {
		return
	}
	logging.Info("SSO", "Polling for provider reconnect of session %s every %s", logging.TruncateSessionID(sessionID), reconnectInterval)
	s.scheduler.Schedule(sessionID, reconnectInterval, func() {
		s.refreshExisting(sessionID, func() {
			s.pollForReconnect(sessionID)
		})
	})
}

// refreshExisting refreshes a session that is still held in memory and
// calls onNetworkFailure if the provider is still unreachable.
func (s *Service) refreshExisting(sessionID string, onNetworkFailure func()) {
	tok := s.lookup(sessionID)
	if tok == nil {
		return
	}
	refreshed, err := s.refreshToken(s.bgCtx, tok, true)
	s.afterBackgroundRefresh(sessionID, refreshed, err, onNetworkFailure)
}

func (s *Service) afterBackgroundRefresh(sessionID string, tok *Token, err error, onNetworkFailure func()) {
	switch {
	case err == nil:
		s.bus.Publish(ChangeEvent{Changed: []Session{tok.session()}})
	case errors.Is(err, ErrNoSession), s.bgCtx.Err() != nil:
		// Removed or shut down while the refresh was in flight.
	case IsNetworkFailure(err):
		onNetworkFailure()
	default:
		s.dropSession(sessionID)
	}
}

// dropSession removes a session whose refresh token is no longer valid.
func (s *Service) dropSession(sessionID string) {
	session, err := s.RemoveSession(s.bgCtx, sessionID)
	if err != nil {
		logging.Warn("SSO", "Failed to remove session %s: %v", logging.TruncateSessionID(sessionID), err)
	}
	if session != nil {
		s.bus.Publish(ChangeEvent{Removed: []Session{*session}})
	}
}
