package oauth

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedactedToken(t *testing.T) {
	tok := NewRedactedToken("secret-token-value")

	assert.Equal(t, "secret-token-value", tok.Value())
	assert.False(t, tok.IsEmpty())
	assert.Equal(t, "[REDACTED]", fmt.Sprint(tok))
	assert.Equal(t, "oauth.RedactedToken{[REDACTED]}", fmt.Sprintf("%#v", tok))

	data, err := json.Marshal(map[string]RedactedToken{"token": tok})
	require.NoError(t, err)
	assert.JSONEq(t, `{"token":"[REDACTED]"}`, string(data))
}

func TestRedactedToken_Empty(t *testing.T) {
	tok := NewRedactedToken("")
	assert.True(t, tok.IsEmpty())
	assert.Equal(t, "", tok.String())
}
