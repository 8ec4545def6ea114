package domain

import "time"

type TokenKind string

const (
	TokenKindAccess   TokenKind = "access_token"
	TokenKindRefresh  TokenKind = "refresh_token"
	TokenKindIdentity TokenKind = "id_token"
	TokenKindSession  TokenKind = "session"
)

type TokenStatus string

const (
	TokenStatusValid    TokenStatus = "valid"
	TokenStatusRedeemed TokenStatus = "redeemed"
	TokenStatusRevoked  TokenStatus = "revoked"
)

// Token is a minted token handed back to the caller. Value is never persisted.
type Token struct {
	Value string
	Kind  TokenKind

	// ID is the jti for JWTs and the fingerprint for opaque tokens.
	ID string

	Subject   string
	ClientID  string
	Audience  []string
	Scopes    []string
	Roles     []string
	Encrypted bool
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TTL is the lifetime remaining at issue time.
func (t Token) TTL() time.Duration { return t.ExpiresAt.Sub(t.IssuedAt) }

// TokenRecord is the ledger entry kept for every access, refresh and session
// token.
type TokenRecord struct {
	ID         string
	Kind       TokenKind
	Subject    string
	ClientID   string
	Audience   []string
	Scopes     []string
	Status     TokenStatus
	IssuedAt   time.Time
	ExpiresAt  time.Time
	RedeemedAt *time.Time
}

// Usable reports whether the record is valid and unexpired at now.
func (r TokenRecord) Usable(now time.Time) bool {
	return r.Status == TokenStatusValid && now.Before(r.ExpiresAt)
}

// TokenSet is the result of a successful grant.
type TokenSet struct {
	AccessToken   *Token
	RefreshToken  *Token
	IdentityToken *Token
	Scopes        []string
}

// Introspection is an RFC 7662 answer. Inactive results carry no claims.
type Introspection struct {
	Active    bool
	Subject   string
	ClientID  string
	Scope     string
	Audience  []string
	Roles     []string
	Issuer    string
	JTI       string
	TokenType string
	IssuedAt  time.Time
	ExpiresAt time.Time
}
