// Package oauth provides small, dependency-light OAuth 2.0 / OpenID Connect
// helpers shared by the session manager and the command line front end.
//
// # Core Components
//
//   - PKCE: Proof Key for Code Exchange generation (RFC 7636, S256 only)
//   - Nonce: single-use random values bound to one login attempt
//   - Scopes: canonical scope strings used as session lookup keys
//   - Claims: unverified JWT claim reading for display purposes
package oauth
