package callback

import "errors"

// ErrServerClosed is returned by the wait methods once the server is closed.
var ErrServerClosed = errors.New("callback server closed")

// FlowError is an error reported by the browser side of the flow: a nonce
// mismatch on the redirect leg, or an OAuth error on the callback leg.
type FlowError struct {
	Code        string
	Description string
}

func (e *FlowError) Error() string {
	if e.Description != "" {
		return e.Code + ": " + e.Description
	}
	return e.Code
}
