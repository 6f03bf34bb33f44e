package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/redhat-developer/podman-desktop-redhat-account-ext/internal/sso"
)

// AuthRequiredError indicates no session satisfies the request.
// Implements error with actionable guidance.
type AuthRequiredError struct {
	// Scopes are the scopes that were asked for; empty means any session.
	Scopes []string
}

// Error returns a user-friendly error message with actionable guidance.
func (e *AuthRequiredError) Error() string {
	if len(e.Scopes) == 0 {
		return `You are not signed in to your Red Hat account

To sign in, run:
  redhat-sso login`
	}
	scope := strings.Join(e.Scopes, " ")
	return fmt.Sprintf(`No session grants the scopes %q

To sign in with these scopes, run:
  redhat-sso login --scope %q`, scope, scope)
}

// Is allows errors.Is() to work with wrapped errors.
func (e *AuthRequiredError) Is(target error) bool {
	_, ok := target.(*AuthRequiredError)
	return ok
}

// AuthFailedError indicates the interactive login failed.
type AuthFailedError struct {
	// Reason is the underlying error.
	Reason error
}

// Error returns a user-friendly error message with actionable guidance.
func (e *AuthFailedError) Error() string {
	hint := "To retry, run:\n  redhat-sso login"
	if errors.Is(e.Reason, sso.ErrLoginTimeout) {
		hint = "The browser did not return in time. " + hint
	}
	return fmt.Sprintf("Login failed: %v\n\n%s", e.Reason, hint)
}

// Unwrap returns the underlying error.
func (e *AuthFailedError) Unwrap() error {
	return e.Reason
}

// ConnectionError indicates the identity provider could not be reached.
// Stored sessions are kept and refreshed once it is reachable again.
type ConnectionError struct {
	// Issuer is the identity provider URL.
	Issuer string
	// Reason is the underlying error.
	Reason error
}

// Error returns a user-friendly error message.
func (e *ConnectionError) Error() string {
	return fmt.Sprintf(`Cannot reach %s: %v

Your sessions are kept and will be refreshed once the provider is reachable.
Check your network connection or proxy settings.`, e.Issuer, e.Reason)
}

// Unwrap returns the underlying error.
func (e *ConnectionError) Unwrap() error {
	return e.Reason
}

// ClassifySessionError turns an error from the session service into one of
// the CLI error types. Errors it does not recognise are returned unchanged.
func ClassifySessionError(err error, issuer string) error {
	if err == nil {
		return nil
	}
	var rejected *sso.RefreshRejectedError
	switch {
	case errors.As(err, &rejected):
		return &AuthRequiredError{}
	case sso.IsNetworkFailure(err):
		return &ConnectionError{Issuer: issuer, Reason: err}
	default:
		return err
	}
}
