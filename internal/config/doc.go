// Package config loads and validates the redhat-sso configuration.
//
// Configuration is read from a single YAML file, config.yaml, inside the
// configuration directory (default ~/.config/redhat-sso). Every field has a
// default that targets the production Red Hat SSO realm, so the file is
// optional. A few fields may be overridden from the environment:
//
//	RHSSO_AUTH_URL   overrides authUrl
//	RHSSO_CLIENT_ID  overrides clientId
//
// Example:
//
//	serviceId: redhat-account-token
//	authUrl: https://sso.redhat.com/auth/realms/redhat-external
//	clientId: vscode-redhat-account
//	server:
//	  externalUrl: http://localhost
//	  port: 0
//	  callbackPath: sso-redhat-callback
//	login:
//	  timeout: 10m
//	  closeDelay: 5s
package config
