package callback

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/sprig/v3"

	"github.com/redhat-developer/podman-desktop-redhat-account-ext/pkg/logging"
)

// SigninPath is the path of the redirect leg.
const SigninPath = "/signin"

// shutdownTimeout bounds the graceful shutdown in Close.
const shutdownTimeout = 5 * time.Second

//go:embed templates/landing_success.html
var landingSuccessHTML string

//go:embed templates/landing_error.html
var landingErrorHTML string

var (
	successTemplate = template.Must(template.New("success").Funcs(sprig.FuncMap()).Parse(landingSuccessHTML))
	errorTemplate   = template.Must(template.New("error").Funcs(sprig.FuncMap()).Parse(landingErrorHTML))
)

// Config configures the callback server.
type Config struct {
	// Port to listen on. 0 lets the OS pick one.
	Port int

	// CallbackPath receives the authorization code, without leading slash.
	CallbackPath string
}

// Server is a local HTTP server for a single login attempt.
type Server struct {
	cfg   Config
	nonce string

	server   *http.Server
	listener net.Listener
	port     int

	redirectCh chan *Exchange
	callbackCh chan *Exchange
	redirectOn sync.Once
	callbackOn sync.Once

	done      chan struct{}
	closeOnce sync.Once
}

// New creates a server expecting nonce on the redirect leg.
func New(cfg Config, nonce string) *Server {
	return &Server{
		cfg:        cfg,
		nonce:      nonce,
		redirectCh: make(chan *Exchange, 1),
		callbackCh: make(chan *Exchange, 1),
		done:       make(chan struct{}),
	}
}

// Start binds the listener on 127.0.0.1 and starts serving. It returns the
// bound port.
func (s *Server) Start(ctx context.Context) (int, error) {
	addr := fmt.Sprintf("127.0.0.1:%d", s.cfg.Port)

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return 0, fmt.Errorf("failed to start callback server on %s: %w", addr, err)
	}

	s.listener = listener
	s.port = listener.Addr().(*net.TCPAddr).Port

	mux := http.NewServeMux()
	mux.HandleFunc(SigninPath, s.handleSignin)
	mux.HandleFunc(s.callbackPath(), s.handleCallback)
	mux.HandleFunc("/", s.handleLanding)

	s.server = &http.Server{
		Handler:           securityHeaders(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("CallbackServer", err, "Callback server stopped unexpectedly")
		}
	}()

	logging.Debug("CallbackServer", "Listening on 127.0.0.1:%d", s.port)
	return s.port, nil
}

// Port returns the bound port. Zero before Start.
func (s *Server) Port() int {
	return s.port
}

// WaitRedirect waits for the browser to hit the sign-in path.
func (s *Server) WaitRedirect(ctx context.Context) (*Exchange, error) {
	return s.wait(ctx, s.redirectCh)
}

// WaitCallback waits for the provider to redirect back with a code.
func (s *Server) WaitCallback(ctx context.Context) (*Exchange, error) {
	return s.wait(ctx, s.callbackCh)
}

func (s *Server) wait(ctx context.Context, ch <-chan *Exchange) (*Exchange, error) {
	select {
	case ex := <-ch:
		return ex, nil
	case <-s.done:
		return nil, ErrServerClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// CloseAfter closes the server once d has elapsed, giving the browser time
// to follow the final redirect.
func (s *Server) CloseAfter(d time.Duration) {
	if d <= 0 {
		_ = s.Close()
		return
	}
	time.AfterFunc(d, func() { _ = s.Close() })
}

// Close shuts the server down. Requests still waiting for a redirect are
// answered with 503.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		if s.server == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err = s.server.Shutdown(ctx)
		logging.Debug("CallbackServer", "Closed callback server on port %d", s.port)
	})
	return err
}

func (s *Server) callbackPath() string {
	return "/" + strings.Trim(s.cfg.CallbackPath, "/")
}

func (s *Server) handleSignin(w http.ResponseWriter, r *http.Request) {
	ex := newExchange(r)
	if r.URL.Query().Get("nonce") != s.nonce {
		ex.Err = &FlowError{Code: "nonce_mismatch", Description: "Nonce does not match"}
	}
	s.deliver(w, r, ex, s.redirectCh, &s.redirectOn)
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	ex := newExchange(r)
	ex.Code = query.Get("code")
	ex.State = query.Get("state")

	switch {
	case query.Get("error") != "":
		ex.Err = &FlowError{Code: query.Get("error"), Description: query.Get("error_description")}
	case ex.Code == "":
		ex.Err = &FlowError{Code: "invalid_request", Description: "Missing authorization code"}
	}
	s.deliver(w, r, ex, s.callbackCh, &s.callbackOn)
}

// deliver hands the first exchange of a leg to the waiting flow and holds
// the request open until the flow answers.
func (s *Server) deliver(w http.ResponseWriter, r *http.Request, ex *Exchange, ch chan<- *Exchange, once *sync.Once) {
	var handled bool
	once.Do(func() {
		handled = true
		ch <- ex
	})
	if !handled {
		http.Error(w, "Request already processed", http.StatusBadRequest)
		return
	}

	select {
	case location := <-ex.reply:
		http.Redirect(w, r, location, http.StatusFound)
	case <-s.done:
		http.Error(w, "Login is no longer in progress", http.StatusServiceUnavailable)
	case <-r.Context().Done():
	}
}

type landingData struct {
	Service string
	Label   string
	Error   string
}

func (s *Server) handleLanding(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	query := r.URL.Query()
	data := landingData{
		Service: query.Get("service"),
		Label:   query.Get("login"),
		Error:   query.Get("error"),
	}

	tmpl := successTemplate
	status := http.StatusOK
	if data.Error != "" || data.Label == "" {
		tmpl = errorTemplate
		if data.Error == "" {
			status = http.StatusBadRequest
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := tmpl.Execute(w, data); err != nil {
		logging.Error("CallbackServer", err, "Failed to render landing page")
	}
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'unsafe-inline'")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
