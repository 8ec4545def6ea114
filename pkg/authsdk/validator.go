package authsdk

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/truecredit/authserver/pkg/jwtx"
)

// LocalValidatorOptions configures offline validation of access tokens for
// a resource server that holds the shared encryption key.
type LocalValidatorOptions struct {
	Issuer   string
	Audience string

	// Algorithm the server signs with. Defaults to EdDSA.
	Algorithm string

	// EncryptionKey decrypts JWE-wrapped tokens. Without it encrypted tokens
	// are rejected.
	EncryptionKey []byte

	Leeway time.Duration
}

// LocalValidator checks access tokens without calling the server.
type LocalValidator struct {
	verifier jwtx.Verifier
}

// NewLocalValidator fetches the JWKS and builds a validator from it.
func (c *SDKClient) NewLocalValidator(ctx context.Context, opts LocalValidatorOptions) (*LocalValidator, error) {
	jwks, err := c.GetJWKS(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch jwks: %w", err)
	}
	return NewLocalValidator(*jwks, opts)
}

// NewLocalValidator builds a validator over a known key set.
func NewLocalValidator(jwks JWKSResponse, opts LocalValidatorOptions) (*LocalValidator, error) {
	if opts.Audience == "" {
		return nil, errors.New("authsdk: audience is required")
	}
	alg := opts.Algorithm
	if alg == "" {
		alg = jwtx.AlgorithmEdDSA
	}

	keys := jwtx.NewKeySet()
	if err := keys.ResetFromJWKS(jwtx.JWKS(jwks)); err != nil {
		return nil, fmt.Errorf("authsdk: load jwks: %w", err)
	}

	var enc *jwtx.Encrypter
	if len(opts.EncryptionKey) > 0 {
		var err error
		if enc, err = jwtx.NewEncrypter(opts.EncryptionKey); err != nil {
			return nil, err
		}
	}

	v := jwtx.NewVerifier(keys, jwtx.VerifyOptions{
		Algorithm: alg,
		Issuer:    opts.Issuer,
		Audience:  []string{opts.Audience},
		Leeway:    opts.Leeway,
	})
	return &LocalValidator{verifier: jwtx.NewDecryptingVerifier(v, enc)}, nil
}

// Validate returns the claims of a valid access token. Revocation is not
// visible offline; use Introspect where it matters.
func (v *LocalValidator) Validate(token string) (jwtx.Claims, error) {
	return v.verifier.Verify(token)
}
