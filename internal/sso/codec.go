package sso

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redhat-developer/podman-desktop-redhat-account-ext/pkg/oauth"
)

// Account identifies the user a session belongs to.
type Account struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Session is the host-facing view of a token.
type Session struct {
	ID          string   `json:"id"`
	AccessToken string   `json:"accessToken"`
	IDToken     string   `json:"idToken,omitempty"`
	Scopes      []string `json:"scopes"`
	Account     Account  `json:"account"`
}

// Token is the in-memory state of one session.
type Token struct {
	// AccessToken is empty while the session is waiting for the provider
	// to become reachable again.
	AccessToken  string
	IDToken      string
	RefreshToken string

	// ExpiresIn is the access token lifetime in seconds, 0 if it never
	// expires. ExpiresAt is derived from it at refresh time.
	ExpiresIn int64
	ExpiresAt time.Time

	SessionID string
	Scope     string
	Account   Account
}

// StoredSession is the persisted projection of a Token. Only what is
// needed to refresh after a restart is kept.
type StoredSession struct {
	ID           string        `json:"id"`
	RefreshToken string        `json:"refreshToken"`
	Scope        string        `json:"scope"`
	Account      StoredAccount `json:"account"`
}

// StoredAccount is the persisted account. Older records carry displayName
// instead of label.
type StoredAccount struct {
	ID          string `json:"id"`
	Label       string `json:"label,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

func (a StoredAccount) account() Account {
	label := a.Label
	if label == "" {
		label = a.DisplayName
	}
	return Account{ID: a.ID, Label: label}
}

// sessionKey identifies a session across memory and storage.
type sessionKey struct {
	scope string
	id    string
}

func (t *Token) key() sessionKey {
	return sessionKey{scope: t.Scope, id: t.SessionID}
}

func (s StoredSession) key() sessionKey {
	return sessionKey{scope: s.Scope, id: s.ID}
}

// usable reports whether the cached access token can be handed out as is.
func (t *Token) usable(now time.Time) bool {
	if t.AccessToken == "" {
		return false
	}
	return t.ExpiresAt.IsZero() || now.Before(t.ExpiresAt)
}

func (t *Token) clone() *Token {
	c := *t
	return &c
}

// session converts the token to its host-facing form without refreshing.
func (t *Token) session() Session {
	return Session{
		ID:          t.SessionID,
		AccessToken: t.AccessToken,
		IDToken:     t.IDToken,
		Scopes:      oauth.SplitScope(t.Scope),
		Account:     t.Account,
	}
}

func (t *Token) stored() StoredSession {
	return StoredSession{
		ID:           t.SessionID,
		RefreshToken: t.RefreshToken,
		Scope:        t.Scope,
		Account:      StoredAccount{ID: t.Account.ID, Label: t.Account.Label},
	}
}

// tokenFromStored restores a token with no access token. It is what the
// service keeps for a session whose first refresh hit the network.
func tokenFromStored(s StoredSession) *Token {
	return &Token{
		RefreshToken: s.RefreshToken,
		SessionID:    s.ID,
		Scope:        s.Scope,
		Account:      s.Account.account(),
	}
}

func encodeStoredSessions(tokens []*Token) (string, error) {
	stored := make([]StoredSession, 0, len(tokens))
	for _, t := range tokens {
		stored = append(stored, t.stored())
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return "", fmt.Errorf("failed to encode sessions: %w", err)
	}
	return string(data), nil
}

var errMalformedStorage = errors.New("stored session data is malformed")

func decodeStoredSessions(data string) ([]StoredSession, error) {
	var stored []StoredSession
	if err := json.Unmarshal([]byte(data), &stored); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedStorage, err)
	}
	if stored == nil {
		return nil, fmt.Errorf("%w: not an array", errMalformedStorage)
	}
	return stored, nil
}

func sessionsOf(tokens []*Token) []Session {
	if len(tokens) == 0 {
		return nil
	}
	sessions := make([]Session, 0, len(tokens))
	for _, t := range tokens {
		sessions = append(sessions, t.session())
	}
	return sessions
}
