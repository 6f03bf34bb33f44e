// Package logging provides subsystem-tagged structured logging for redhat-sso.
//
// It is a thin layer over the standard slog package: every record carries a
// "subsystem" attribute, and errors are attached as an "error" attribute.
//
// # Usage
//
//	logging.InitForCLI(logging.LevelInfo, os.Stderr)
//
//	logging.Info("SSO", "Refreshing token from %s", authURL)
//	logging.Warn("SecretStorage", "Watcher unavailable, change notification disabled")
//	logging.Error("SSO", err, "Refreshing token failed")
//
// # Subsystems
//
//   - SSO: session lifecycle (login, refresh, removal)
//   - ClientHolder: OpenID provider discovery
//   - Scheduler: refresh and reconnect timers
//   - CallbackServer: the transient login HTTP server
//   - SecretStorage: encrypted session persistence
//   - ConfigLoader: configuration loading
//   - CLI: command line front end
//
// # Audit Logging
//
// Session creation and removal are recorded with Audit. Token values are never
// logged; session ids are truncated.
//
//	logging.Audit(logging.AuditEvent{
//	    Action:    "session_removed",
//	    Outcome:   "success",
//	    SessionID: id,
//	})
package logging
