package sso

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/redhat-developer/podman-desktop-redhat-account-ext/internal/callback"
	"github.com/redhat-developer/podman-desktop-redhat-account-ext/pkg/logging"
	"github.com/redhat-developer/podman-desktop-redhat-account-ext/pkg/oauth"
)

// CreateSession signs the user in through the system browser and adds the
// resulting session. scope is a space separated scope string; the default
// login scopes are always added.
func (s *Service) CreateSession(ctx context.Context, scope string) (Session, error) {
	logging.Info("SSO", "Starting login for scope %q", scope)

	nonce, err := oauth.GenerateNonce()
	if err != nil {
		return Session{}, err
	}
	state, err := oauth.GenerateNonce()
	if err != nil {
		return Session{}, err
	}
	pkce := oauth.GeneratePKCE()

	srv := callback.New(callback.Config{Port: s.cfg.Port, CallbackPath: s.cfg.CallbackPath}, nonce)
	port, err := srv.Start(ctx)
	if err != nil {
		return Session{}, err
	}
	defer srv.CloseAfter(s.cfg.CloseDelay)

	loginCtx, cancel := context.WithTimeout(ctx, s.cfg.LoginTimeout)
	defer cancel()

	signinURL := fmt.Sprintf("%s:%d%s?nonce=%s", s.cfg.ExternalURL, port, callback.SigninPath, url.QueryEscape(nonce))
	if err := s.opener.Open(signinURL); err != nil {
		return Session{}, fmt.Errorf("failed to open browser: %w", err)
	}

	redirect, err := srv.WaitRedirect(loginCtx)
	if err != nil {
		return Session{}, s.loginWaitError(ctx, err)
	}
	if redirect.Err != nil {
		redirect.Redirect(s.errorLocation(redirect.Err, true))
		return Session{}, s.loginFailed(redirect.Err)
	}

	redirectURI := fmt.Sprintf("%s:%d/%s", s.cfg.ExternalURL, redirect.Port(port), strings.Trim(s.cfg.CallbackPath, "/"))

	client, err := s.clients.Client(loginCtx)
	if err != nil {
		redirect.Redirect(s.errorLocation(err, true))
		return Session{}, s.loginFailed(err)
	}

	authScope := oauth.UnionScope(scope, DefaultLoginScopes...)
	redirect.Redirect(client.AuthCodeURL(redirectURI, authScope, state, pkce, nonce))

	cb, err := srv.WaitCallback(loginCtx)
	if err != nil {
		return Session{}, s.loginWaitError(ctx, err)
	}
	if cb.Err == nil && cb.State != state {
		cb.Err = &callback.FlowError{Code: "invalid_state", Description: "State does not match"}
	}
	if cb.Err != nil {
		cb.Redirect(s.errorLocation(cb.Err, false))
		return Session{}, s.loginFailed(cb.Err)
	}

	set, err := client.Exchange(loginCtx, cb.Code, redirectURI, pkce.CodeVerifier, nonce)
	if err != nil {
		cb.Redirect(s.errorLocation(err, false))
		return Session{}, s.loginFailed(err)
	}

	tok := s.convertToken(set, authScope, "", Account{})
	cb.Redirect(fmt.Sprintf("/?service=%s&login=%s", url.QueryEscape(s.cfg.ServiceID), url.QueryEscape(tok.Account.Label)))

	if err := s.setToken(ctx, tok, false); err != nil {
		return Session{}, fmt.Errorf("failed to store session: %w", err)
	}

	logging.Audit(logging.AuditEvent{
		Action:    "session_created",
		Outcome:   "success",
		SessionID: tok.SessionID,
		Account:   tok.Account.Label,
	})
	logging.Info("SSO", "Login success for %s", tok.Account.Label)
	return tok.session(), nil
}

func (s *Service) errorLocation(err error, withService bool) string {
	q := url.Values{}
	if withService {
		q.Set("service", s.cfg.ServiceID)
	}
	q.Set("error", err.Error())
	return "/?" + q.Encode()
}

// loginWaitError maps a failed wait on the browser. Running out of login
// time is reported as ErrLoginTimeout; the caller giving up is not.
func (s *Service) loginWaitError(parent context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil {
		return s.loginFailed(ErrLoginTimeout)
	}
	return s.loginFailed(err)
}

func (s *Service) loginFailed(err error) error {
	logging.Error("SSO", err, "Login failed")
	logging.Audit(logging.AuditEvent{
		Action:  "session_created",
		Outcome: "failure",
		Reason:  err.Error(),
	})
	return err
}
