package callback

import (
	"net"
	"net/http"
	"strconv"
	"sync"
)

// Exchange is a browser request waiting for the login flow to tell it
// where to go next.
type Exchange struct {
	// Host is the Host header of the request.
	Host string

	// Code and State are the OAuth authorization response parameters.
	// Only set on the callback leg.
	Code  string
	State string

	// Err is non-nil when the request carried an error. Always a *FlowError.
	Err error

	reply chan string
	once  sync.Once
}

func newExchange(r *http.Request) *Exchange {
	return &Exchange{
		Host:  r.Host,
		reply: make(chan string, 1),
	}
}

// Redirect answers the browser with a 302 to location. Only the first call
// has an effect.
func (e *Exchange) Redirect(location string) {
	e.once.Do(func() {
		e.reply <- location
	})
}

// Port returns the port the browser used to reach the server, taken from
// the Host header, or fallback when the header carries none.
func (e *Exchange) Port(fallback int) int {
	_, portStr, err := net.SplitHostPort(e.Host)
	if err != nil {
		return fallback
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 {
		return fallback
	}
	return port
}
