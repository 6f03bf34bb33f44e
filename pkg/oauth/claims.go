package oauth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// AccessTokenClaims holds the claims of a Red Hat SSO access token that are
// interesting to display. The token is NOT verified.
type AccessTokenClaims struct {
	PreferredUsername string `json:"preferred_username,omitempty"`
	Email             string `json:"email,omitempty"`
	Organization      struct {
		ID      string `json:"id,omitempty"`
		Name    string `json:"name,omitempty"`
		Account string `json:"account_number,omitempty"`
	} `json:"organization"`
	jwt.RegisteredClaims
}

// ParseUnverifiedClaims decodes the payload of a JWT without checking its
// signature. Use it only for presentation; authorization decisions belong to
// the API that receives the token.
func ParseUnverifiedClaims(token string) (*AccessTokenClaims, error) {
	claims := &AccessTokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("failed to decode token claims: %w", err)
	}
	return claims, nil
}
