// Package sso manages Red Hat SSO authentication sessions.
//
// Service is the session lifecycle manager. It runs the interactive
// authorization code + PKCE login through a transient local callback
// server, keeps the resulting tokens in memory, persists the refresh
// tokens to secret storage, and keeps access tokens fresh with a per-session
// refresh timer.
//
// Refresh failures fall in two classes. A rejected refresh token (the
// provider answered with an OAuth error) ends the session. A network
// failure keeps the session, blanks its access token and starts a retry
// episode: three retries after 5s, 20s and 45s, then a reconnect attempt
// every 30 minutes until one succeeds or the session is removed.
//
// Every mutation is announced on a Bus as a ChangeEvent. Provider is the
// thin host-facing wrapper that the CLI and other hosts use.
package sso
