package oauth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/oauth2"
)

// nonceBytes is the number of random bytes in a login nonce.
// 32 bytes encodes to 43 base64url characters.
const nonceBytes = 32

// PKCEChallenge represents a PKCE (Proof Key for Code Exchange) challenge.
type PKCEChallenge struct {
	// CodeVerifier is the high-entropy secret kept by the client and sent only
	// with the token request.
	CodeVerifier string

	// CodeChallenge is the S256 hash of the verifier, sent with the
	// authorization request.
	CodeChallenge string

	// CodeChallengeMethod is always "S256".
	CodeChallengeMethod string
}

// GeneratePKCE generates a new PKCE code verifier and its S256 challenge.
func GeneratePKCE() *PKCEChallenge {
	verifier, challenge := GeneratePKCERaw()
	return &PKCEChallenge{
		CodeVerifier:        verifier,
		CodeChallenge:       challenge,
		CodeChallengeMethod: "S256",
	}
}

// GeneratePKCERaw returns a verifier and its S256 challenge as plain strings.
func GeneratePKCERaw() (verifier, challenge string) {
	verifier = oauth2.GenerateVerifier()
	return verifier, oauth2.S256ChallengeFromVerifier(verifier)
}

// GenerateNonce generates a random nonce for one login attempt.
// The same value is carried through the local sign-in redirect, the
// authorization request and the ID token.
func GenerateNonce() (string, error) {
	b := make([]byte, nonceBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
