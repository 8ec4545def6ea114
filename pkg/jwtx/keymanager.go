package jwtx

import (
	"errors"
	"fmt"
	"time"
)

// KeyManager holds the process's token keys. It is built once from
// configured key material and never mutated afterwards. Its Verifier accepts
// both plain and encrypted access tokens.
type KeyManager struct {
	Signer   Signer
	Verifier Verifier
	KeySet   *KeySet

	// Encrypter is nil when no encryption key is configured.
	Encrypter *Encrypter
}

// KeyManagerOptions describes the configured key material.
type KeyManagerOptions struct {
	// Algorithm is RS256, ES256 or EdDSA.
	Algorithm string

	// KeyID defaults to the public key thumbprint.
	KeyID string

	// PrivateKeyPEM is the signing key, PKCS8 PEM.
	PrivateKeyPEM []byte

	// Issuer is enforced when verifying.
	Issuer string

	// EncryptionKey is the optional shared A256GCM key.
	EncryptionKey []byte

	Leeway time.Duration
}

func NewKeyManager(opts KeyManagerOptions) (*KeyManager, error) {
	if opts.Issuer == "" {
		return nil, errors.New("jwtx: issuer is required")
	}
	if len(opts.PrivateKeyPEM) == 0 {
		return nil, errors.New("jwtx: signing key is required")
	}

	signer, err := NewSigner(opts.Algorithm, opts.KeyID, opts.PrivateKeyPEM)
	if err != nil {
		return nil, err
	}

	keys := NewKeySet()
	if err := keys.AddSigner(signer); err != nil {
		return nil, fmt.Errorf("jwtx: publish signing key: %w", err)
	}

	km := &KeyManager{Signer: signer, KeySet: keys}
	if len(opts.EncryptionKey) > 0 {
		km.Encrypter, err = NewEncrypter(opts.EncryptionKey)
		if err != nil {
			return nil, err
		}
	}

	km.Verifier = NewDecryptingVerifier(NewVerifier(keys, VerifyOptions{
		Algorithm: signer.Alg(),
		Issuer:    opts.Issuer,
		Leeway:    opts.Leeway,
	}), km.Encrypter)
	return km, nil
}

// Algorithm returns the signing algorithm.
func (km *KeyManager) Algorithm() string { return km.Signer.Alg() }

func (km *KeyManager) IsReady() bool { return km.KeySet.IsReady() }

// CanEncrypt reports whether an encryption key was configured.
func (km *KeyManager) CanEncrypt() bool { return km.Encrypter != nil }
