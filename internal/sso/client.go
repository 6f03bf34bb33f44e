package sso

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
	"k8s.io/utils/clock"

	"github.com/redhat-developer/podman-desktop-redhat-account-ext/pkg/oauth"
)

// DefaultHTTPTimeout bounds every request to the identity provider.
const DefaultHTTPTimeout = 30 * time.Second

// ClientConfig describes the OIDC client.
type ClientConfig struct {
	// AuthURL is the issuer; discovery happens against it.
	AuthURL string

	// APIURL, when set, is sent as the resource parameter.
	APIURL string

	ClientID string

	// HTTPClient defaults to a client with DefaultHTTPTimeout.
	HTTPClient *http.Client

	// Clock is used for ID token expiry checks and expires_in fallbacks.
	Clock clock.PassiveClock
}

// TokenSet is the result of a code exchange or a refresh.
type TokenSet struct {
	AccessToken  string
	IDToken      string
	RefreshToken string

	// ExpiresIn is 0 when the provider issued a non-expiring token.
	ExpiresIn int64

	// SessionState is the provider session id, if reported.
	SessionState string

	// Claims come from the verified ID token, or from the access token
	// when no ID token was issued. Nil when neither carried any.
	Claims *IdentityClaims
}

// IdentityClaims are the identity claims the service keeps.
type IdentityClaims struct {
	Subject           string `json:"sub"`
	PreferredUsername string `json:"preferred_username"`
	Email             string `json:"email"`
	Nonce             string `json:"nonce"`
}

// Client is a discovered OIDC client.
type Client struct {
	oauth      *oauth2.Config
	verifier   *oidc.IDTokenVerifier
	apiURL     string
	httpClient *http.Client
	clock      clock.PassiveClock
}

// discover fetches the provider metadata and builds a Client.
func discover(ctx context.Context, cfg ClientConfig) (*Client, error) {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}

	provider, err := oidc.NewProvider(oidc.ClientContext(ctx, httpClient), cfg.AuthURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover %s: %w", cfg.AuthURL, err)
	}

	endpoint := provider.Endpoint()
	endpoint.AuthStyle = oauth2.AuthStyleInParams

	return &Client{
		oauth: &oauth2.Config{
			ClientID: cfg.ClientID,
			Endpoint: endpoint,
		},
		verifier: provider.Verifier(&oidc.Config{
			ClientID: cfg.ClientID,
			Now:      clk.Now,
		}),
		apiURL:     cfg.APIURL,
		httpClient: httpClient,
		clock:      clk,
	}, nil
}

// AuthCodeURL builds the authorization request URL.
func (c *Client) AuthCodeURL(redirectURI, scope, state string, pkce *oauth.PKCEChallenge, nonce string) string {
	cfg := *c.oauth
	cfg.RedirectURL = redirectURI
	cfg.Scopes = oauth.SplitScope(scope)

	opts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("code_challenge", pkce.CodeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", pkce.CodeChallengeMethod),
		oidc.Nonce(nonce),
	}
	if c.apiURL != "" {
		opts = append(opts, oauth2.SetAuthURLParam("resource", c.apiURL))
	}
	return cfg.AuthCodeURL(state, opts...)
}

// Exchange trades an authorization code for tokens and verifies the ID
// token against nonce.
func (c *Client) Exchange(ctx context.Context, code, redirectURI, verifier, nonce string) (*TokenSet, error) {
	cfg := *c.oauth
	cfg.RedirectURL = redirectURI

	tok, err := cfg.Exchange(c.context(ctx), code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("code exchange failed: %w", err)
	}

	set, err := c.tokenSet(ctx, tok)
	if err != nil {
		return nil, err
	}
	if set.IDToken == "" {
		return nil, &invalidIDTokenError{err: errors.New("provider returned no id_token")}
	}
	if set.Claims.Nonce != nonce {
		return nil, &invalidIDTokenError{err: errors.New("nonce mismatch")}
	}
	return set, nil
}

// Refresh redeems a refresh token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenSet, error) {
	src := c.oauth.TokenSource(c.context(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, err
	}
	return c.tokenSet(ctx, tok)
}

func (c *Client) context(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

func (c *Client) tokenSet(ctx context.Context, tok *oauth2.Token) (*TokenSet, error) {
	set := &TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresIn:    c.expiresIn(tok),
		SessionState: extraString(tok, "session_state"),
	}

	if raw := extraString(tok, "id_token"); raw != "" {
		idToken, err := c.verifier.Verify(oidc.ClientContext(ctx, c.httpClient), raw)
		if err != nil {
			return nil, &invalidIDTokenError{err: err}
		}
		claims := &IdentityClaims{}
		if err := idToken.Claims(claims); err != nil {
			return nil, &invalidIDTokenError{err: err}
		}
		set.IDToken = raw
		set.Claims = claims
		return set, nil
	}

	// Keycloak access tokens are JWTs carrying the same identity claims.
	if claims, err := oauth.ParseUnverifiedClaims(tok.AccessToken); err == nil && claims.Subject != "" {
		set.Claims = &IdentityClaims{
			Subject:           claims.Subject,
			PreferredUsername: claims.PreferredUsername,
			Email:             claims.Email,
		}
	}
	return set, nil
}

func (c *Client) expiresIn(tok *oauth2.Token) int64 {
	if tok.ExpiresIn > 0 {
		return tok.ExpiresIn
	}
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		return int64(v)
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	if !tok.Expiry.IsZero() {
		if d := tok.Expiry.Sub(c.clock.Now()); d > 0 {
			return int64(d.Round(time.Second) / time.Second)
		}
	}
	return 0
}

func extraString(tok *oauth2.Token, key string) string {
	s, _ := tok.Extra(key).(string)
	return s
}
