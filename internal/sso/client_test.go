package sso

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/redhat-developer/podman-desktop-redhat-account-ext/internal/testing/mock"
	"github.com/redhat-developer/podman-desktop-redhat-account-ext/pkg/oauth"
)

func newTestClient(t *testing.T, cfg mock.OIDCServerConfig) (*Client, *mock.OIDCServer) {
	t.Helper()
	clk := testingclock.NewFakeClock(time.Now())
	cfg.Clock = clk
	idp := mock.NewOIDCServer(cfg)
	t.Cleanup(idp.Close)

	c, err := discover(context.Background(), ClientConfig{
		AuthURL:  idp.Issuer(),
		APIURL:   "https://api.example.com",
		ClientID: idp.ClientID(),
		Clock:    clk,
	})
	require.NoError(t, err)
	return c, idp
}

func TestClient_AuthCodeURL(t *testing.T) {
	c, idp := newTestClient(t, mock.OIDCServerConfig{})
	pkce := oauth.GeneratePKCE()

	raw := c.AuthCodeURL("http://127.0.0.1:1234/sso-redhat-callback", "email openid", "the-state", pkce, "the-nonce")
	u, err := url.Parse(raw)
	require.NoError(t, err)

	q := u.Query()
	assert.Equal(t, idp.Issuer()+"/protocol/openid-connect/auth", u.Scheme+"://"+u.Host+u.Path)
	assert.Equal(t, idp.ClientID(), q.Get("client_id"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "email openid", q.Get("scope"))
	assert.Equal(t, "the-state", q.Get("state"))
	assert.Equal(t, "the-nonce", q.Get("nonce"))
	assert.Equal(t, pkce.CodeChallenge, q.Get("code_challenge"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.Equal(t, "http://127.0.0.1:1234/sso-redhat-callback", q.Get("redirect_uri"))
	assert.Equal(t, "https://api.example.com", q.Get("resource"))
}

func TestClient_Refresh(t *testing.T) {
	c, idp := newTestClient(t, mock.OIDCServerConfig{})
	rt, state := idp.IssueRefreshToken("openid email")

	set, err := c.Refresh(context.Background(), rt)
	require.NoError(t, err)

	assert.NotEmpty(t, set.AccessToken)
	assert.NotEmpty(t, set.IDToken)
	assert.Equal(t, rt, set.RefreshToken)
	assert.Equal(t, int64(300), set.ExpiresIn)
	assert.Equal(t, state, set.SessionState)
	require.NotNil(t, set.Claims)
	assert.Equal(t, mock.DefaultUser.Subject, set.Claims.Subject)
	assert.Equal(t, "jdoe", set.Claims.PreferredUsername)
}

func TestClient_RefreshWithoutIDTokenUsesAccessTokenClaims(t *testing.T) {
	c, idp := newTestClient(t, mock.OIDCServerConfig{})
	idp.SetOmitIDTokenOnRefresh(true)
	rt, _ := idp.IssueRefreshToken("openid")

	set, err := c.Refresh(context.Background(), rt)
	require.NoError(t, err)
	assert.Empty(t, set.IDToken)
	require.NotNil(t, set.Claims)
	assert.Equal(t, "jdoe@example.com", set.Claims.Email)
}

func TestClient_NonExpiringToken(t *testing.T) {
	c, idp := newTestClient(t, mock.OIDCServerConfig{NonExpiring: true})
	rt, _ := idp.IssueRefreshToken("openid")

	set, err := c.Refresh(context.Background(), rt)
	require.NoError(t, err)
	assert.Zero(t, set.ExpiresIn)
}

func TestClient_RefreshErrorClassification(t *testing.T) {
	tests := []struct {
		name         string
		mode         mock.RefreshMode
		closed       bool
		wantRejected bool
	}{
		{name: "invalid grant is a rejection", mode: mock.RefreshRejected, wantRejected: true},
		{name: "unavailable is a network failure", mode: mock.RefreshUnavailable},
		{name: "closed server is a network failure", closed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, idp := newTestClient(t, mock.OIDCServerConfig{})
			rt, _ := idp.IssueRefreshToken("openid")
			idp.SetRefreshMode(tt.mode)
			if tt.closed {
				idp.Close()
			}

			_, err := c.Refresh(context.Background(), rt)
			require.Error(t, err)
			err = classifyRefreshError(err)

			var rejected *RefreshRejectedError
			assert.Equal(t, tt.wantRejected, errors.As(err, &rejected))
			assert.Equal(t, !tt.wantRejected, IsNetworkFailure(err))
		})
	}
}

func TestClassifyRefreshError_InvalidIDToken(t *testing.T) {
	err := classifyRefreshError(&invalidIDTokenError{err: errors.New("bad signature")})
	var rejected *RefreshRejectedError
	assert.True(t, errors.As(err, &rejected))
	assert.Nil(t, classifyRefreshError(nil))
}

func TestDiscover_Unreachable(t *testing.T) {
	idp := mock.NewOIDCServer(mock.OIDCServerConfig{})
	issuer := idp.Issuer()
	idp.Close()

	_, err := discover(context.Background(), ClientConfig{AuthURL: issuer, ClientID: "x"})
	require.Error(t, err)
	assert.True(t, IsNetworkFailure(classifyRefreshError(err)))
}
