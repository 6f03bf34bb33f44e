// Package callback implements the transient local HTTP server used by the
// interactive SSO login.
//
// The server takes part in three browser round trips:
//
//	GET /signin?nonce=...      redirect leg: the login flow answers with the
//	                           provider authorization URL
//	GET /<callbackPath>?code=  callback leg: the provider returns the
//	                           authorization code
//	GET /?login=... | ?error=  landing page shown when the flow ends
//
// The first two legs are surfaced to the caller as *Exchange values. The
// HTTP request stays open until the caller answers it with
// Exchange.Redirect, which lets the login flow decide where the browser
// goes next after it has done its own work.
package callback
