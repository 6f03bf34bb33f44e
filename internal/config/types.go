package config

import "time"

// Config is the top-level configuration structure for redhat-sso.
type Config struct {
	// ServiceID is the secret storage key under which sessions are kept.
	ServiceID string `yaml:"serviceId"`

	// AuthURL is the OpenID Connect authority (issuer) URL used for discovery.
	AuthURL string `yaml:"authUrl"`

	// APIURL is sent as the "resource" parameter of authorization requests.
	APIURL string `yaml:"apiUrl,omitempty"`

	// ClientID is the public OAuth client identifier.
	ClientID string `yaml:"clientId"`

	Server  ServerConfig  `yaml:"server"`
	Secrets SecretsConfig `yaml:"secrets,omitempty"`
	Login   LoginConfig   `yaml:"login,omitempty"`
}

// ServerConfig configures the transient login callback server.
type ServerConfig struct {
	ExternalURL  string `yaml:"externalUrl"`            // Base URL the browser uses to reach the server (default: http://localhost)
	Port         int    `yaml:"port"`                   // Listening port, 0 for an OS-assigned port
	CallbackPath string `yaml:"callbackPath,omitempty"` // Path receiving the authorization code
}

// SecretsConfig configures the encrypted session store.
type SecretsConfig struct {
	// Dir holds the encrypted session files and the master key.
	// Defaults to <config dir>/secrets.
	Dir string `yaml:"dir,omitempty"`
}

// LoginConfig tunes the interactive login.
type LoginConfig struct {
	// Timeout is how long to wait for the browser to return with an
	// authorization code.
	Timeout time.Duration `yaml:"timeout,omitempty"`

	// CloseDelay keeps the callback server alive after the flow ends so
	// the final redirect can render.
	CloseDelay time.Duration `yaml:"closeDelay,omitempty"`
}
