package jwtx

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformed   = errors.New("jwtx: malformed token")
	ErrAlgMismatch = errors.New("jwtx: algorithm mismatch")
	ErrUnknownKID  = errors.New("jwtx: unknown kid")
	ErrInvalidSig  = errors.New("jwtx: invalid signature")

	ErrIssuer       = errors.New("jwtx: issuer mismatch")
	ErrAudience     = errors.New("jwtx: audience mismatch")
	ErrExpired      = errors.New("jwtx: token expired")
	ErrNotYetValid  = errors.New("jwtx: token not yet valid")
	ErrInvalidClaim = errors.New("jwtx: invalid claims")
	ErrTokenUse     = errors.New("jwtx: wrong token use")
)

// Verifier validates an access token and returns its claims.
type Verifier interface {
	Verify(token string) (Claims, error)
}

// VerifyOptions captures the expectations a verifier enforces.
type VerifyOptions struct {
	// Algorithm the token must be signed with.
	Algorithm string

	// Issuer the token must carry. Empty means not enforced.
	Issuer string

	// Audience values of which at least one must be present. Empty means not enforced.
	Audience []string

	Leeway time.Duration

	// Now defaults to time.Now.
	Now func() time.Time
}

type keySetVerifier struct {
	keys *KeySet
	opts VerifyOptions
}

// NewVerifier returns a Verifier resolving keys by kid from keys.
func NewVerifier(keys *KeySet, opts VerifyOptions) Verifier {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &keySetVerifier{keys: keys, opts: opts}
}

func (v *keySetVerifier) Verify(tokenStr string) (Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{v.opts.Algorithm}),
		jwt.WithoutClaimsValidation(),
	)

	var claims Claims
	_, err := parser.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, ErrUnknownKID
		}
		pub, err := v.keys.Get(kid)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrUnknownKID, kid)
		}
		return pub, nil
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrUnknownKID):
		return Claims{}, ErrUnknownKID
	case errors.Is(err, jwt.ErrTokenMalformed):
		return Claims{}, ErrMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return Claims{}, ErrInvalidSig
	default:
		return Claims{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if claims.TokenUse != TokenUseAccess {
		return Claims{}, ErrTokenUse
	}
	if err := claims.ValidateIssuer(v.opts.Issuer); err != nil {
		return Claims{}, err
	}
	if err := claims.ValidateAudience(v.opts.Audience); err != nil {
		return Claims{}, err
	}
	if err := claims.ValidateExpiry(v.opts.Now(), v.opts.Leeway); err != nil {
		return Claims{}, err
	}
	return claims, nil
}

type decryptingVerifier struct {
	next Verifier
	enc  *Encrypter
}

// NewDecryptingVerifier unwraps compact JWE tokens with enc before handing
// them to next. A nil enc rejects encrypted tokens.
func NewDecryptingVerifier(next Verifier, enc *Encrypter) Verifier {
	return &decryptingVerifier{next: next, enc: enc}
}

func (v *decryptingVerifier) Verify(token string) (Claims, error) {
	if IsEncrypted(token) {
		if v.enc == nil {
			return Claims{}, ErrDecrypt
		}
		inner, err := v.enc.Decrypt(token)
		if err != nil {
			return Claims{}, err
		}
		token = inner
	}
	return v.next.Verify(token)
}
