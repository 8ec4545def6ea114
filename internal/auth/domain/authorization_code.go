package domain

import (
	"crypto/subtle"
	"time"
)

// PKCE methods.
const (
	PKCEMethodPlain = "plain"
	PKCEMethodS256  = "S256"
)

// AuthorizationCode is a single-use code issued by the authorization
// endpoint. Only the fingerprint of the code value is stored.
type AuthorizationCode struct {
	ID                  string
	ClientID            string
	Subject             string
	RedirectURI         string
	Scopes              []string
	Nonce               string
	CodeChallenge       string
	CodeChallengeMethod string
	ExpiresAt           time.Time
	RedeemedAt          *time.Time
	CreatedAt           time.Time
}

// VerifyPKCE checks verifier against the stored challenge. Codes issued
// without a challenge accept any verifier, including none.
func (c AuthorizationCode) VerifyPKCE(verifier string, s256 func(string) string) bool {
	if c.CodeChallenge == "" {
		return true
	}
	if verifier == "" {
		return false
	}

	got := verifier
	if c.CodeChallengeMethod == PKCEMethodS256 {
		got = s256(verifier)
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(c.CodeChallenge)) == 1
}
