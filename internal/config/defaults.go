package config

import "time"

const (
	// DefaultServiceID is the secret storage key for Red Hat SSO sessions.
	DefaultServiceID = "redhat-account-token"

	// DefaultAuthURL is the Red Hat external SSO realm.
	DefaultAuthURL = "https://sso.redhat.com/auth/realms/redhat-external"

	// DefaultClientID is the public client registered for desktop tooling.
	DefaultClientID = "vscode-redhat-account"

	// DefaultExternalURL is how the browser reaches the callback server.
	DefaultExternalURL = "http://localhost"

	// DefaultCallbackPath receives the authorization code.
	DefaultCallbackPath = "sso-redhat-callback"

	// DefaultLoginTimeout bounds the wait for the OAuth callback.
	DefaultLoginTimeout = 600 * time.Second

	// DefaultCloseDelay lets the final redirect render before the
	// callback server shuts down.
	DefaultCloseDelay = 5 * time.Second
)

// GetDefaultConfig returns the configuration used when no config.yaml exists.
func GetDefaultConfig() Config {
	return Config{
		ServiceID: DefaultServiceID,
		AuthURL:   DefaultAuthURL,
		ClientID:  DefaultClientID,
		Server: ServerConfig{
			ExternalURL:  DefaultExternalURL,
			Port:         0,
			CallbackPath: DefaultCallbackPath,
		},
		Login: LoginConfig{
			Timeout:    DefaultLoginTimeout,
			CloseDelay: DefaultCloseDelay,
		},
	}
}
