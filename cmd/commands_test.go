package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redhat-developer/podman-desktop-redhat-account-ext/internal/cli"
	"github.com/redhat-developer/podman-desktop-redhat-account-ext/internal/secrets"
	"github.com/redhat-developer/podman-desktop-redhat-account-ext/internal/sso"
	"github.com/redhat-developer/podman-desktop-redhat-account-ext/internal/testing/mock"
)

const testServiceID = "redhat-account-token"

type cliEnv struct {
	idp        *mock.OIDCServer
	configPath string
	secretsDir string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	idp := mock.NewOIDCServer(mock.OIDCServerConfig{})
	t.Cleanup(idp.Close)

	dir := t.TempDir()
	config := fmt.Sprintf(`authUrl: %s
clientId: %s
server:
  externalUrl: http://127.0.0.1
login:
  timeout: 10s
  closeDelay: 1s
`, idp.Issuer(), idp.ClientID())
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(config), 0o600))

	return &cliEnv{idp: idp, configPath: dir, secretsDir: filepath.Join(dir, "secrets")}
}

// seed writes sessions into the encrypted store as a previous run would.
func (e *cliEnv) seed(t *testing.T, scopes ...string) []string {
	t.Helper()
	storage, err := secrets.NewFileStorage(secrets.FileStorageConfig{Dir: e.secretsDir})
	require.NoError(t, err)

	var stored []sso.StoredSession
	var ids []string
	for _, scope := range scopes {
		rt, state := e.idp.IssueRefreshToken(scope)
		stored = append(stored, sso.StoredSession{
			ID:           state,
			RefreshToken: rt,
			Scope:        scope,
			Account:      sso.StoredAccount{ID: mock.DefaultUser.Subject, Label: "jdoe"},
		})
		ids = append(ids, state)
	}
	data, err := json.Marshal(stored)
	require.NoError(t, err)
	require.NoError(t, storage.Store(context.Background(), testServiceID, string(data)))
	return ids
}

func (e *cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--config-path", e.configPath, "--log-level", "error"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (e *cliEnv) storedIDs(t *testing.T) []string {
	t.Helper()
	storage, err := secrets.NewFileStorage(secrets.FileStorageConfig{Dir: e.secretsDir})
	require.NoError(t, err)
	data, ok, err := storage.Get(context.Background(), testServiceID)
	require.NoError(t, err)
	if !ok {
		return nil
	}
	var stored []sso.StoredSession
	require.NoError(t, json.Unmarshal([]byte(data), &stored))
	ids := make([]string, 0, len(stored))
	for _, s := range stored {
		ids = append(ids, s.ID)
	}
	return ids
}

func TestSessionsCommand_JSON(t *testing.T) {
	env := newCLIEnv(t)
	ids := env.seed(t, "email id.username openid", "api.console")

	out, err := env.run(t, "sessions", "-o", "json")
	require.NoError(t, err)

	var sessions []sso.Session
	require.NoError(t, json.Unmarshal([]byte(out), &sessions))
	got := []string{sessions[0].ID, sessions[1].ID}
	assert.ElementsMatch(t, ids, got)
	assert.Equal(t, "[REDACTED]", sessions[0].AccessToken)
}

func TestSessionsCommand_ScopeFilter(t *testing.T) {
	env := newCLIEnv(t)
	ids := env.seed(t, "email id.username openid", "api.console")

	out, err := env.run(t, "sessions", "--scope", "api.console", "--no-headers")
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out, "\n"))
	assert.Contains(t, out, cli.ShortID(ids[1]))
}

func TestSessionsCommand_InvalidOutput(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.run(t, "sessions", "-o", "xml")
	require.Error(t, err)
}

func TestTokenCommand(t *testing.T) {
	env := newCLIEnv(t)
	env.seed(t, "email id.username openid")

	out, err := env.run(t, "token")
	require.NoError(t, err)
	assert.Equal(t, 3, len(strings.Split(strings.TrimSpace(out), ".")), "expected a JWT")
}

func TestTokenCommand_NoSession(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run(t, "token")
	require.Error(t, err)
	assert.Equal(t, ExitCodeAuthRequired, getExitCode(err))
}

func TestWhoamiCommand(t *testing.T) {
	env := newCLIEnv(t)
	env.seed(t, "email id.username openid")

	out, err := env.run(t, "whoami", "--field", "email")
	require.NoError(t, err)
	assert.Equal(t, mock.DefaultUser.Email+"\n", out)

	out, err = env.run(t, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, mock.DefaultUser.OrganizationID)
}

func TestLogoutCommand(t *testing.T) {
	env := newCLIEnv(t)
	ids := env.seed(t, "email id.username openid", "api.console")

	_, err := env.run(t, "logout")
	require.Error(t, err, "several sessions need an explicit id")

	_, err = env.run(t, "logout", ids[0][:8])
	require.NoError(t, err)
	assert.Equal(t, []string{ids[1]}, env.storedIDs(t))

	_, err = env.run(t, "logout", "--all")
	require.NoError(t, err)
	assert.Empty(t, env.storedIDs(t))
}

func TestLoginCommand(t *testing.T) {
	env := newCLIEnv(t)
	b := mock.NewBrowser()

	cmd := &cobra.Command{}
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetContext(context.Background())

	err := runLogin(cmd, &globalOptions{configPath: env.configPath}, &loginOptions{
		scopes: []string{"api.console"},
		quiet:  true,
		app:    appOptions{opener: b},
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Signed in as jdoe")

	final, err := b.Wait(5 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "jdoe", final.Query().Get("login"))
	assert.Len(t, env.storedIDs(t), 1)
}

func TestFindSession(t *testing.T) {
	sessions := []sso.Session{{ID: "abcd1234"}, {ID: "abcd5678"}, {ID: "ffff0000"}}

	s, err := findSession(sessions, "ffff")
	require.NoError(t, err)
	assert.Equal(t, "ffff0000", s.ID)

	s, err = findSession(sessions, "abcd1234")
	require.NoError(t, err)
	assert.Equal(t, "abcd1234", s.ID)

	_, err = findSession(sessions, "abcd")
	assert.ErrorContains(t, err, "ambiguous")

	_, err = findSession(sessions, "ff")
	assert.ErrorContains(t, err, "no session")
}
