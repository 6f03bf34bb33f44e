package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/redhat-developer/podman-desktop-redhat-account-ext/internal/browser"
	"github.com/redhat-developer/podman-desktop-redhat-account-ext/internal/config"
	"github.com/redhat-developer/podman-desktop-redhat-account-ext/internal/secrets"
	"github.com/redhat-developer/podman-desktop-redhat-account-ext/internal/sso"
	"github.com/redhat-developer/podman-desktop-redhat-account-ext/pkg/logging"
)

// app is the session stack one command works with.
type app struct {
	cfg      config.Config
	storage  *secrets.FileStorage
	bus      *sso.Bus
	service  *sso.Service
	provider *sso.Provider
}

// appOptions tweak how the stack is assembled.
type appOptions struct {
	// out receives the sign-in URL in case the browser does not open.
	out io.Writer

	// opener replaces the system browser. Used by tests.
	opener browser.Opener
}

// newApp loads the configuration, opens the session store and restores the
// stored sessions. Close the returned app when done.
func newApp(ctx context.Context, global *globalOptions, opts appOptions) (*app, error) {
	cfg, err := config.LoadConfig(global.configPath)
	if err != nil {
		return nil, err
	}

	storage, err := secrets.NewFileStorage(secrets.FileStorageConfig{Dir: cfg.Secrets.Dir})
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	opener := opts.opener
	if opener == nil {
		opener = announcingOpener(opts.out)
	}

	bus := sso.NewBus()
	holder := sso.NewClientHolder(sso.ClientConfig{
		AuthURL:  cfg.AuthURL,
		APIURL:   cfg.APIURL,
		ClientID: cfg.ClientID,
	})
	service := sso.NewService(sso.Config{
		ServiceID:    cfg.ServiceID,
		ExternalURL:  cfg.Server.ExternalURL,
		Port:         cfg.Server.Port,
		CallbackPath: cfg.Server.CallbackPath,
		LoginTimeout: cfg.Login.Timeout,
		CloseDelay:   cfg.Login.CloseDelay,
	}, holder, storage, bus, sso.WithOpener(opener))

	if err := service.Initialize(ctx); err != nil {
		service.Close()
		_ = storage.Close()
		return nil, err
	}

	return &app{
		cfg:      cfg,
		storage:  storage,
		bus:      bus,
		service:  service,
		provider: sso.NewProvider(service, bus),
	}, nil
}

func (a *app) Close() {
	a.service.Close()
	if err := a.storage.Close(); err != nil {
		logging.Debug("CLI", "Closing session store: %v", err)
	}
}

// announcingOpener prints the sign-in URL before opening it, so the user
// can copy it when no browser is available.
func announcingOpener(out io.Writer) browser.Opener {
	return browser.OpenerFunc(func(url string) error {
		if out != nil {
			fmt.Fprintf(out, "Opening browser for authentication...\nIf the browser doesn't open, visit:\n  %s\n\n", url)
		}
		if err := browser.OpenBrowser(url); err != nil {
			logging.Warn("CLI", "Failed to open browser: %v", err)
		}
		return nil
	})
}

// findSession resolves a full session id or a unique prefix of one.
func findSession(sessions []sso.Session, id string) (sso.Session, error) {
	var matches []sso.Session
	for _, s := range sessions {
		if s.ID == id {
			return s, nil
		}
		if len(id) >= 4 && len(s.ID) > len(id) && s.ID[:len(id)] == id {
			matches = append(matches, s)
		}
	}
	switch len(matches) {
	case 0:
		return sso.Session{}, fmt.Errorf("no session matches %q", id)
	case 1:
		return matches[0], nil
	default:
		return sso.Session{}, fmt.Errorf("session id %q is ambiguous, %d sessions match", id, len(matches))
	}
}
