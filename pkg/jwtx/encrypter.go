package jwtx

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-jose/go-jose/v4"
)

// EncryptionKeySize is the length of the shared A256GCM content key.
const EncryptionKeySize = 32

var ErrDecrypt = errors.New("jwtx: cannot decrypt token")

// Encrypter wraps signed tokens in compact JWE (alg "dir", enc "A256GCM")
// for resource servers that validate locally with a shared key.
type Encrypter struct {
	key []byte
}

func NewEncrypter(key []byte) (*Encrypter, error) {
	if len(key) != EncryptionKeySize {
		return nil, fmt.Errorf("jwtx: encryption key must be %d bytes, got %d", EncryptionKeySize, len(key))
	}
	return &Encrypter{key: append([]byte(nil), key...)}, nil
}

// Encrypt returns the compact JWE of signed.
func (e *Encrypter) Encrypt(signed string) (string, error) {
	enc, err := jose.NewEncrypter(
		jose.A256GCM,
		jose.Recipient{Algorithm: jose.DIRECT, Key: e.key},
		(&jose.EncrypterOptions{}).WithType("JWT").WithContentType("JWT"),
	)
	if err != nil {
		return "", fmt.Errorf("jwtx: create encrypter: %w", err)
	}

	obj, err := enc.Encrypt([]byte(signed))
	if err != nil {
		return "", fmt.Errorf("jwtx: encrypt: %w", err)
	}
	return obj.CompactSerialize()
}

// Decrypt returns the signed token inside a compact JWE.
func (e *Encrypter) Decrypt(compact string) (string, error) {
	obj, err := jose.ParseEncrypted(compact,
		[]jose.KeyAlgorithm{jose.DIRECT},
		[]jose.ContentEncryption{jose.A256GCM},
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}

	plaintext, err := obj.Decrypt(e.key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return string(plaintext), nil
}

// IsEncrypted reports whether token has the five-part compact JWE shape.
func IsEncrypted(token string) bool {
	return strings.Count(token, ".") == 4
}
