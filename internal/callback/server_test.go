package callback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noRedirectClient returns 302 responses instead of following them.
var noRedirectClient = &http.Client{
	Timeout: 5 * time.Second,
	CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	},
}

func startServer(t *testing.T, nonce string) (*Server, string) {
	t.Helper()
	s := New(Config{CallbackPath: "sso-redhat-callback"}, nonce)
	port, err := s.Start(context.Background())
	require.NoError(t, err)
	require.NotZero(t, port)
	assert.Equal(t, port, s.Port())
	t.Cleanup(func() { _ = s.Close() })
	return s, fmt.Sprintf("http://127.0.0.1:%d", port)
}

type result struct {
	resp *http.Response
	err  error
}

func getAsync(url string) <-chan result {
	ch := make(chan result, 1)
	go func() {
		resp, err := noRedirectClient.Get(url)
		ch <- result{resp, err}
	}()
	return ch
}

func TestServer_SigninRedirect(t *testing.T) {
	s, base := startServer(t, "n0nce")
	ctx := context.Background()

	respCh := getAsync(base + "/signin?nonce=n0nce")

	ex, err := s.WaitRedirect(ctx)
	require.NoError(t, err)
	require.NoError(t, ex.Err)
	assert.Equal(t, s.Port(), ex.Port(0))

	ex.Redirect("https://sso.example.com/auth?client_id=x")
	ex.Redirect("https://ignored.example.com")

	res := <-respCh
	require.NoError(t, res.err)
	defer res.resp.Body.Close()
	assert.Equal(t, http.StatusFound, res.resp.StatusCode)
	assert.Equal(t, "https://sso.example.com/auth?client_id=x", res.resp.Header.Get("Location"))
	assert.Equal(t, "nosniff", res.resp.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "no-store", res.resp.Header.Get("Cache-Control"))
}

func TestServer_SigninNonceMismatch(t *testing.T) {
	s, base := startServer(t, "expected")

	respCh := getAsync(base + "/signin?nonce=other")

	ex, err := s.WaitRedirect(context.Background())
	require.NoError(t, err)

	var flowErr *FlowError
	require.True(t, errors.As(ex.Err, &flowErr))
	assert.Equal(t, "nonce_mismatch", flowErr.Code)

	ex.Redirect("/?error=nonce")
	res := <-respCh
	require.NoError(t, res.err)
	res.resp.Body.Close()
	assert.Equal(t, "/?error=nonce", res.resp.Header.Get("Location"))
}

func TestServer_Callback(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		wantCode string
		wantErr  string
	}{
		{"code", "code=abc&state=xyz", "abc", ""},
		{"provider error", "error=access_denied&error_description=User+cancelled", "", "access_denied: User cancelled"},
		{"missing code", "state=xyz", "", "invalid_request: Missing authorization code"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, base := startServer(t, "n")
			respCh := getAsync(base + "/sso-redhat-callback?" + tt.query)

			ex, err := s.WaitCallback(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.wantCode, ex.Code)
			if tt.wantErr == "" {
				assert.NoError(t, ex.Err)
				assert.Equal(t, "xyz", ex.State)
			} else {
				assert.EqualError(t, ex.Err, tt.wantErr)
			}

			ex.Redirect("/?service=svc&login=user")
			res := <-respCh
			require.NoError(t, res.err)
			res.resp.Body.Close()
			assert.Equal(t, http.StatusFound, res.resp.StatusCode)
		})
	}
}

func TestServer_SecondCallbackRejected(t *testing.T) {
	s, base := startServer(t, "n")
	first := getAsync(base + "/sso-redhat-callback?code=1")

	ex, err := s.WaitCallback(context.Background())
	require.NoError(t, err)

	resp, err := noRedirectClient.Get(base + "/sso-redhat-callback?code=2")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	ex.Redirect("/")
	res := <-first
	require.NoError(t, res.err)
	res.resp.Body.Close()
}

func TestServer_CloseReleasesPendingRequests(t *testing.T) {
	s, base := startServer(t, "n")
	respCh := getAsync(base + "/signin?nonce=n")

	_, err := s.WaitRedirect(context.Background())
	require.NoError(t, err)

	require.NoError(t, s.Close())

	res := <-respCh
	require.NoError(t, res.err)
	res.resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, res.resp.StatusCode)

	_, err = s.WaitCallback(context.Background())
	assert.ErrorIs(t, err, ErrServerClosed)
}

func TestServer_WaitHonoursContext(t *testing.T) {
	s, _ := startServer(t, "n")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := s.WaitCallback(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestServer_CloseAfter(t *testing.T) {
	s, _ := startServer(t, "n")
	s.CloseAfter(10 * time.Millisecond)

	assert.Eventually(t, func() bool {
		select {
		case <-s.done:
			return true
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestServer_LandingPage(t *testing.T) {
	_, base := startServer(t, "n")

	t.Run("success", func(t *testing.T) {
		resp, err := noRedirectClient.Get(base + "/?service=redhat-account-token&login=jdoe%40redhat.com")
		require.NoError(t, err)
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, string(body), "jdoe@redhat.com")
		assert.Contains(t, string(body), "redhat-account-token")
	})

	t.Run("error is escaped", func(t *testing.T) {
		resp, err := noRedirectClient.Get(base + "/?error=%3Cscript%3Ebad%3C%2Fscript%3E")
		require.NoError(t, err)
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, string(body), "Sign in failed")
		assert.False(t, strings.Contains(string(body), "<script>"))
	})

	t.Run("unknown path", func(t *testing.T) {
		resp, err := noRedirectClient.Get(base + "/nope")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestExchange_Port(t *testing.T) {
	tests := []struct {
		host     string
		fallback int
		want     int
	}{
		{"localhost:33365", 1, 33365},
		{"localhost", 1234, 1234},
		{"", 1234, 1234},
		{"localhost:abc", 1234, 1234},
		{"[::1]:8080", 1, 8080},
	}
	for _, tt := range tests {
		ex := &Exchange{Host: tt.host}
		assert.Equal(t, tt.want, ex.Port(tt.fallback), tt.host)
	}
}
