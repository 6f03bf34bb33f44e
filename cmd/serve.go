package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"

	"github.com/redhat-developer/podman-desktop-redhat-account-ext/internal/sso"
	"github.com/redhat-developer/podman-desktop-redhat-account-ext/pkg/logging"
)

func newServeCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Keep the stored sessions refreshed in the background",
		Long: `Run in the foreground, refreshing access tokens before they expire and
following changes other redhat-sso processes make to the session store.

When started by systemd with Type=notify the service reports readiness and
answers the watchdog.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, global)
		},
	}
}

func runServe(cmd *cobra.Command, global *globalOptions) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, global, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.storage.Watch(); err != nil {
		return err
	}

	events, unsubscribe := a.provider.Events()
	defer unsubscribe()

	logging.Info("Serve", "Serving %d session(s)", len(a.service.Snapshot()))
	notifySystemd(daemon.SdNotifyReady)
	go watchdog(ctx)

	for {
		select {
		case <-ctx.Done():
			notifySystemd(daemon.SdNotifyStopping)
			logging.Info("Serve", "Shutting down")
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			logEvent(e)
		}
	}
}

func logEvent(e sso.ChangeEvent) {
	for _, s := range e.Added {
		logging.Info("Serve", "Session %s added for %s", logging.TruncateSessionID(s.ID), s.Account.Label)
	}
	for _, s := range e.Removed {
		logging.Info("Serve", "Session %s removed for %s", logging.TruncateSessionID(s.ID), s.Account.Label)
	}
	for _, s := range e.Changed {
		if s.AccessToken == "" {
			logging.Warn("Serve", "Session %s is unavailable until the provider is reachable", logging.TruncateSessionID(s.ID))
			continue
		}
		logging.Debug("Serve", "Session %s refreshed", logging.TruncateSessionID(s.ID))
	}
}

func notifySystemd(state string) {
	if _, err := daemon.SdNotify(false, state); err != nil {
		logging.Debug("Serve", "systemd notification failed: %v", err)
	}
}

// watchdog pings systemd at half the configured watchdog interval.
func watchdog(ctx context.Context) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return
	}

	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			notifySystemd(daemon.SdNotifyWatchdog)
		}
	}
}
