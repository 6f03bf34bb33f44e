package mock

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"k8s.io/utils/clock"
)

const (
	// DefaultRealmPath mirrors the Red Hat external realm layout.
	DefaultRealmPath = "/auth/realms/redhat-external"

	// DefaultClientID is the client id accepted when none is configured.
	DefaultClientID = "vscode-redhat-account"

	// DefaultTokenLifetime is the access token lifetime when none is configured.
	DefaultTokenLifetime = 5 * time.Minute

	keyID = "mock-signing-key"
)

// User is the identity the mock provider signs tokens for.
type User struct {
	Subject           string
	PreferredUsername string
	Email             string
	OrganizationID    string
}

// DefaultUser is used when OIDCServerConfig.User is empty.
var DefaultUser = User{
	Subject:           "f:528d76ff-f708-43ed-8cd5-fe16f4fe0ce6:jdoe",
	PreferredUsername: "jdoe",
	Email:             "jdoe@example.com",
	OrganizationID:    "11009103",
}

// RefreshMode controls how the token endpoint answers refresh_token grants.
type RefreshMode int

const (
	// RefreshOK issues new tokens.
	RefreshOK RefreshMode = iota
	// RefreshRejected answers 400 invalid_grant.
	RefreshRejected
	// RefreshUnavailable answers 503 temporarily_unavailable.
	RefreshUnavailable
)

// OIDCServerConfig configures an OIDCServer.
type OIDCServerConfig struct {
	ClientID  string
	RealmPath string

	// TokenLifetime is reported as expires_in. Ignored when NonExpiring.
	TokenLifetime time.Duration
	NonExpiring   bool

	User User

	// Clock stamps iat and exp. Defaults to the real clock.
	Clock clock.PassiveClock
}

type authRequest struct {
	clientID      string
	redirectURI   string
	scope         string
	nonce         string
	codeChallenge string
	sessionState  string
}

type grant struct {
	scope        string
	sessionState string
}

// OIDCServer is a mock OpenID Connect provider.
type OIDCServer struct {
	config OIDCServerConfig
	server *httptest.Server
	key    *rsa.PrivateKey

	mu                   sync.Mutex
	codes                map[string]*authRequest
	grants               map[string]*grant // refresh token -> grant
	refreshMode          RefreshMode
	omitIDTokenOnRefresh bool
	refreshCount         int
	lastAuthorize        url.Values
}

// NewOIDCServer starts a mock provider. Close it when done.
func NewOIDCServer(config OIDCServerConfig) *OIDCServer {
	if config.ClientID == "" {
		config.ClientID = DefaultClientID
	}
	if config.RealmPath == "" {
		config.RealmPath = DefaultRealmPath
	}
	if config.TokenLifetime == 0 {
		config.TokenLifetime = DefaultTokenLifetime
	}
	if config.User == (User{}) {
		config.User = DefaultUser
	}
	if config.Clock == nil {
		config.Clock = clock.RealClock{}
	}

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(fmt.Sprintf("mock: failed to generate signing key: %v", err))
	}

	s := &OIDCServer{
		config: config,
		key:    key,
		codes:  make(map[string]*authRequest),
		grants: make(map[string]*grant),
	}

	realm := strings.TrimSuffix(config.RealmPath, "/")
	mux := http.NewServeMux()
	mux.HandleFunc(realm+"/.well-known/openid-configuration", s.handleDiscovery)
	mux.HandleFunc(realm+"/protocol/openid-connect/auth", s.handleAuthorize)
	mux.HandleFunc(realm+"/protocol/openid-connect/token", s.handleToken)
	mux.HandleFunc(realm+"/protocol/openid-connect/certs", s.handleJWKS)

	s.server = httptest.NewServer(mux)
	return s
}

// Issuer returns the issuer URL, which is also the discovery base.
func (s *OIDCServer) Issuer() string {
	return s.server.URL + strings.TrimSuffix(s.config.RealmPath, "/")
}

// ClientID returns the accepted client id.
func (s *OIDCServer) ClientID() string {
	return s.config.ClientID
}

// Close shuts the provider down. Subsequent requests fail at the transport
// level.
func (s *OIDCServer) Close() {
	s.server.Close()
}

// SetRefreshMode changes how refresh_token grants are answered.
func (s *OIDCServer) SetRefreshMode(mode RefreshMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshMode = mode
}

// SetOmitIDTokenOnRefresh makes refresh responses carry no id_token.
func (s *OIDCServer) SetOmitIDTokenOnRefresh(omit bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.omitIDTokenOnRefresh = omit
}

// RefreshCount returns the number of refresh_token grants received.
func (s *OIDCServer) RefreshCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshCount
}

// LastAuthorizeRequest returns the query of the last authorization request.
func (s *OIDCServer) LastAuthorizeRequest() url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAuthorize
}

// IssueRefreshToken mints a refresh token for scope as if a login had
// happened earlier. It returns the token and its session state.
func (s *OIDCServer) IssueRefreshToken(scope string) (refreshToken, sessionState string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	refreshToken = randomToken()
	sessionState = uuid.NewString()
	s.grants[refreshToken] = &grant{scope: scope, sessionState: sessionState}
	return refreshToken, sessionState
}

// RevokeRefreshToken makes refreshToken invalid.
func (s *OIDCServer) RevokeRefreshToken(refreshToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.grants, refreshToken)
}

func (s *OIDCServer) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	issuer := s.Issuer()
	writeJSON(w, http.StatusOK, map[string]any{
		"issuer":                                issuer,
		"authorization_endpoint":                issuer + "/protocol/openid-connect/auth",
		"token_endpoint":                        issuer + "/protocol/openid-connect/token",
		"jwks_uri":                              issuer + "/protocol/openid-connect/certs",
		"response_types_supported":              []string{"code"},
		"grant_types_supported":                 []string{"authorization_code", "refresh_token"},
		"subject_types_supported":               []string{"public"},
		"id_token_signing_alg_values_supported": []string{"RS256"},
		"code_challenge_methods_supported":      []string{"S256"},
		"token_endpoint_auth_methods_supported": []string{"none"},
	})
}

func (s *OIDCServer) handleJWKS(w http.ResponseWriter, r *http.Request) {
	set := jose.JSONWebKeySet{Keys: []jose.JSONWebKey{{
		Key:       &s.key.PublicKey,
		KeyID:     keyID,
		Algorithm: string(jose.RS256),
		Use:       "sig",
	}}}
	writeJSON(w, http.StatusOK, set)
}

func (s *OIDCServer) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	s.mu.Lock()
	s.lastAuthorize = query
	s.mu.Unlock()

	redirectURI, err := url.Parse(query.Get("redirect_uri"))
	if err != nil || redirectURI.Host == "" {
		http.Error(w, "invalid redirect_uri", http.StatusBadRequest)
		return
	}
	if query.Get("client_id") != s.config.ClientID {
		http.Error(w, "invalid_client", http.StatusBadRequest)
		return
	}
	if query.Get("response_type") != "code" {
		http.Error(w, "unsupported_response_type", http.StatusBadRequest)
		return
	}
	if query.Get("code_challenge_method") != "S256" || query.Get("code_challenge") == "" {
		http.Error(w, "PKCE S256 required", http.StatusBadRequest)
		return
	}

	code := randomToken()
	req := &authRequest{
		clientID:      s.config.ClientID,
		redirectURI:   redirectURI.String(),
		scope:         query.Get("scope"),
		nonce:         query.Get("nonce"),
		codeChallenge: query.Get("code_challenge"),
		sessionState:  uuid.NewString(),
	}

	s.mu.Lock()
	s.codes[code] = req
	s.mu.Unlock()

	q := redirectURI.Query()
	q.Set("code", code)
	q.Set("session_state", req.sessionState)
	if state := query.Get("state"); state != "" {
		q.Set("state", state)
	}
	redirectURI.RawQuery = q.Encode()

	http.Redirect(w, r, redirectURI.String(), http.StatusFound)
}

func (s *OIDCServer) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		oauthError(w, http.StatusBadRequest, "invalid_request", "malformed form")
		return
	}
	if r.FormValue("client_id") != s.config.ClientID {
		oauthError(w, http.StatusUnauthorized, "invalid_client", "unknown client")
		return
	}

	switch r.FormValue("grant_type") {
	case "authorization_code":
		s.handleAuthCodeExchange(w, r)
	case "refresh_token":
		s.handleRefresh(w, r)
	default:
		oauthError(w, http.StatusBadRequest, "unsupported_grant_type", r.FormValue("grant_type"))
	}
}

func (s *OIDCServer) handleAuthCodeExchange(w http.ResponseWriter, r *http.Request) {
	code := r.FormValue("code")

	s.mu.Lock()
	req, ok := s.codes[code]
	delete(s.codes, code)
	s.mu.Unlock()

	if !ok {
		oauthError(w, http.StatusBadRequest, "invalid_grant", "Code not valid")
		return
	}
	if r.FormValue("redirect_uri") != req.redirectURI {
		oauthError(w, http.StatusBadRequest, "invalid_grant", "Incorrect redirect_uri")
		return
	}
	if s256(r.FormValue("code_verifier")) != req.codeChallenge {
		oauthError(w, http.StatusBadRequest, "invalid_grant", "PKCE verification failed")
		return
	}

	refreshToken := randomToken()
	s.mu.Lock()
	s.grants[refreshToken] = &grant{scope: req.scope, sessionState: req.sessionState}
	s.mu.Unlock()

	s.writeTokens(w, refreshToken, req.scope, req.sessionState, req.nonce, true)
}

func (s *OIDCServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	refreshToken := r.FormValue("refresh_token")

	s.mu.Lock()
	s.refreshCount++
	mode := s.refreshMode
	g, ok := s.grants[refreshToken]
	withIDToken := !s.omitIDTokenOnRefresh
	s.mu.Unlock()

	switch {
	case mode == RefreshUnavailable:
		oauthError(w, http.StatusServiceUnavailable, "temporarily_unavailable", "Service unavailable")
		return
	case mode == RefreshRejected || !ok:
		oauthError(w, http.StatusBadRequest, "invalid_grant", "Token is not active")
		return
	}

	s.writeTokens(w, refreshToken, g.scope, g.sessionState, "", withIDToken)
}

func (s *OIDCServer) writeTokens(w http.ResponseWriter, refreshToken, scope, sessionState, nonce string, withIDToken bool) {
	now := s.config.Clock.Now()

	accessClaims := jwt.MapClaims{
		"iss":                s.Issuer(),
		"sub":                s.config.User.Subject,
		"azp":                s.config.ClientID,
		"iat":                now.Unix(),
		"session_state":      sessionState,
		"scope":              scope,
		"preferred_username": s.config.User.PreferredUsername,
		"email":              s.config.User.Email,
		"organization": map[string]any{
			"id": s.config.User.OrganizationID,
		},
	}
	if !s.config.NonExpiring {
		accessClaims["exp"] = now.Add(s.config.TokenLifetime).Unix()
	}

	accessToken, err := s.sign(accessClaims)
	if err != nil {
		oauthError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	body := map[string]any{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"token_type":    "Bearer",
		"scope":         scope,
		"session_state": sessionState,
	}
	if !s.config.NonExpiring {
		body["expires_in"] = int64(s.config.TokenLifetime / time.Second)
	}

	if withIDToken {
		idClaims := jwt.MapClaims{
			"iss":                s.Issuer(),
			"sub":                s.config.User.Subject,
			"aud":                s.config.ClientID,
			"azp":                s.config.ClientID,
			"iat":                now.Unix(),
			"exp":                now.Add(time.Hour).Unix(),
			"sid":                sessionState,
			"session_state":      sessionState,
			"preferred_username": s.config.User.PreferredUsername,
			"email":              s.config.User.Email,
		}
		if nonce != "" {
			idClaims["nonce"] = nonce
		}
		idToken, err := s.sign(idClaims)
		if err != nil {
			oauthError(w, http.StatusInternalServerError, "server_error", err.Error())
			return
		}
		body["id_token"] = idToken
	}

	writeJSON(w, http.StatusOK, body)
}

func (s *OIDCServer) sign(claims jwt.MapClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = keyID
	return token.SignedString(s.key)
}

func s256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func randomToken() string {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func oauthError(w http.ResponseWriter, status int, code, description string) {
	writeJSON(w, status, map[string]string{
		"error":             code,
		"error_description": description,
	})
}
