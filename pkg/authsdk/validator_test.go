package authsdk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/truecredit/authserver/pkg/cryptox"
	"github.com/truecredit/authserver/pkg/jwtx"
)

func TestLocalValidator(t *testing.T) {
	t.Parallel()

	const issuer = "https://auth.example.test/"
	pemKey, err := cryptox.GenerateSigningKey(jwtx.AlgorithmEdDSA)
	require.NoError(t, err)
	encKey, err := cryptox.GenerateSymmetricKey(jwtx.EncryptionKeySize)
	require.NoError(t, err)

	km, err := jwtx.NewKeyManager(jwtx.KeyManagerOptions{
		Algorithm:     jwtx.AlgorithmEdDSA,
		PrivateKeyPEM: pemKey,
		Issuer:        issuer,
		EncryptionKey: encKey,
	})
	require.NoError(t, err)

	claims := jwtx.NewAccessClaims(issuer, "alice", "aurelia", []string{"resource_server_2"}, []string{"api2"}, nil, time.Minute, time.Now())
	signed, err := km.Signer.Sign(claims)
	require.NoError(t, err)
	sealed, err := km.Encrypter.Encrypt(signed)
	require.NoError(t, err)

	jwks := JWKSResponse(km.KeySet.PublicJWKS())

	v, err := NewLocalValidator(jwks, LocalValidatorOptions{
		Issuer:        issuer,
		Audience:      "resource_server_2",
		EncryptionKey: encKey,
	})
	require.NoError(t, err)

	got, err := v.Validate(sealed)
	require.NoError(t, err)
	require.Equal(t, "alice", got.Subject)
	require.True(t, got.HasScope("api2"))

	// Another audience's validator refuses the token.
	other, err := NewLocalValidator(jwks, LocalValidatorOptions{Issuer: issuer, Audience: "resource_server_1", EncryptionKey: encKey})
	require.NoError(t, err)
	_, err = other.Validate(sealed)
	require.ErrorIs(t, err, jwtx.ErrAudience)

	// Without the key the encrypted token is opaque.
	blind, err := NewLocalValidator(jwks, LocalValidatorOptions{Issuer: issuer, Audience: "resource_server_2"})
	require.NoError(t, err)
	_, err = blind.Validate(sealed)
	require.ErrorIs(t, err, jwtx.ErrDecrypt)

	_, err = NewLocalValidator(jwks, LocalValidatorOptions{Issuer: issuer})
	require.Error(t, err)
}
