package sso

import (
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

var (
	// ErrNetworkFailure marks refresh failures caused by the provider being
	// unreachable. Sessions survive these.
	ErrNetworkFailure = errors.New("network failure while contacting the identity provider")

	// ErrTokenUnavailable is returned when a session's access token cannot
	// be resolved. It wraps the refresh error that caused it.
	ErrTokenUnavailable = errors.New("unavailable due to network problems")

	// ErrLoginTimeout is returned when the browser does not come back in time.
	ErrLoginTimeout = errors.New("timeout period for login is expired")

	// ErrNoSession is returned when a session id is unknown.
	ErrNoSession = errors.New("session not found")

	errUnreadableSessions = errors.New("stored session data is unreadable")
)

// RefreshRejectedError is returned when the provider refuses a refresh
// token. The session cannot be recovered and is removed.
type RefreshRejectedError struct {
	Err error
}

func (e *RefreshRejectedError) Error() string {
	return fmt.Sprintf("refresh token rejected: %v", e.Err)
}

func (e *RefreshRejectedError) Unwrap() error {
	return e.Err
}

// invalidIDTokenError wraps ID token verification failures.
type invalidIDTokenError struct {
	err error
}

func (e *invalidIDTokenError) Error() string {
	return fmt.Sprintf("invalid id token: %v", e.err)
}

func (e *invalidIDTokenError) Unwrap() error {
	return e.err
}

// classifyRefreshError sorts a refresh failure into a rejection or a
// network failure. The provider answering with a 4xx OAuth error or
// issuing an ID token that does not verify is a rejection; 5xx answers,
// transport errors and failed discovery count as network failures.
func classifyRefreshError(err error) error {
	if err == nil {
		return nil
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
		status := retrieveErr.Response.StatusCode
		if status >= http.StatusInternalServerError || status == http.StatusTooManyRequests {
			return fmt.Errorf("%w: %v", ErrNetworkFailure, err)
		}
		return &RefreshRejectedError{Err: err}
	}

	var idErr *invalidIDTokenError
	if errors.As(err, &idErr) {
		return &RefreshRejectedError{Err: err}
	}

	return fmt.Errorf("%w: %v", ErrNetworkFailure, err)
}

// IsNetworkFailure reports whether err is a network failure.
func IsNetworkFailure(err error) bool {
	return errors.Is(err, ErrNetworkFailure)
}
