// Package mock provides an in-process OpenID Connect provider for tests.
//
// OIDCServer imitates the parts of a Keycloak realm that the SSO session
// manager talks to:
//
//   - discovery at <issuer>/.well-known/openid-configuration
//   - the authorization endpoint, auto-approving every request and
//     redirecting straight back to redirect_uri with a code
//   - the token endpoint for authorization_code (PKCE S256 enforced) and
//     refresh_token grants
//   - the JWKS endpoint publishing the RS256 signing key
//
// Access and ID tokens are real RS256 JWTs, so ID token verification in the
// code under test runs for real. Refresh behaviour can be switched at
// runtime to simulate rejected refresh tokens or an unavailable provider.
//
// Browser drives the browser side of an interactive login: it follows the
// redirect chain from the local sign-in URL through the provider and back to
// the landing page.
package mock
