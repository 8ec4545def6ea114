package cryptox

import (
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
)

var ErrUnsupportedAlgorithm = errors.New("cryptox: unsupported key algorithm")

// GenerateSigningKey returns a PKCS8 PEM private key suitable for alg
// (EdDSA, ES256 or RS256).
func GenerateSigningKey(alg string) ([]byte, error) {
	var (
		key crypto.Signer
		err error
	)
	switch alg {
	case "EdDSA":
		_, key, err = ed25519.GenerateKey(rand.Reader)
	case "ES256":
		key, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	case "RS256":
		key, err = rsa.GenerateKey(rand.Reader, 2048)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, alg)
	}
	if err != nil {
		return nil, fmt.Errorf("cryptox: generate %s key: %w", alg, err)
	}

	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("cryptox: marshal PKCS8: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// GenerateSymmetricKey returns n random bytes.
func GenerateSymmetricKey(n int) ([]byte, error) {
	key := make([]byte, n)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("cryptox: generate symmetric key: %w", err)
	}
	return key, nil
}

// SealKey encrypts plaintext (typically a PEM private key) with AES-256-GCM
// under a key derived from masterKey. Output is nonce || ciphertext || tag.
func SealKey(masterKey, plaintext []byte) ([]byte, error) {
	gcm, err := masterGCM(masterKey)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("cryptox: generate nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// OpenKey reverses SealKey.
func OpenKey(masterKey, sealed []byte) ([]byte, error) {
	gcm, err := masterGCM(masterKey)
	if err != nil {
		return nil, err
	}

	ns := gcm.NonceSize()
	if len(sealed) < ns+gcm.Overhead() {
		return nil, errors.New("cryptox: sealed key too short")
	}

	plaintext, err := gcm.Open(nil, sealed[:ns], sealed[ns:], nil)
	if err != nil {
		return nil, fmt.Errorf("cryptox: open sealed key: %w", err)
	}
	return plaintext, nil
}

func masterGCM(masterKey []byte) (cipher.AEAD, error) {
	if len(masterKey) == 0 {
		return nil, errors.New("cryptox: empty master key")
	}
	sum := sha256.Sum256(masterKey)

	block, err := aes.NewCipher(sum[:])
	if err != nil {
		return nil, fmt.Errorf("cryptox: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cryptox: create GCM: %w", err)
	}
	return gcm, nil
}
