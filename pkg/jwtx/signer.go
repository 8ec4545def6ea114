package jwtx

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Supported signing algorithms.
const (
	AlgorithmRS256 = "RS256"
	AlgorithmES256 = "ES256"
	AlgorithmEdDSA = "EdDSA"
)

// Signer signs JWTs with a single private key.
type Signer interface {
	Alg() string
	KID() string
	Sign(claims jwt.Claims) (string, error)
	PublicJWK() JWK
}

type keySigner struct {
	kid    string
	method jwt.SigningMethod
	key    crypto.Signer
}

// NewSigner loads a PKCS8 PEM private key for alg. RS256 additionally accepts
// PKCS1 "RSA PRIVATE KEY" blocks. An empty kid is replaced by the key's
// thumbprint so restarts with the same key keep the same kid.
func NewSigner(alg, kid string, pemKey []byte) (Signer, error) {
	block, _ := pem.Decode(pemKey)
	if block == nil {
		return nil, errors.New("jwtx: invalid PEM private key")
	}

	var (
		parsed any
		err    error
	)
	switch block.Type {
	case "PRIVATE KEY":
		parsed, err = x509.ParsePKCS8PrivateKey(block.Bytes)
	case "RSA PRIVATE KEY":
		parsed, err = x509.ParsePKCS1PrivateKey(block.Bytes)
	default:
		return nil, fmt.Errorf("jwtx: unexpected PEM block %q", block.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("jwtx: parse private key: %w", err)
	}

	s := &keySigner{kid: kid}
	switch key := parsed.(type) {
	case ed25519.PrivateKey:
		if alg != AlgorithmEdDSA {
			return nil, fmt.Errorf("%w: Ed25519 key for %s", ErrAlgMismatch, alg)
		}
		s.method, s.key = jwt.SigningMethodEdDSA, key
	case *ecdsa.PrivateKey:
		if alg != AlgorithmES256 || key.Curve != elliptic.P256() {
			return nil, fmt.Errorf("%w: ECDSA key for %s", ErrAlgMismatch, alg)
		}
		s.method, s.key = jwt.SigningMethodES256, key
	case *rsa.PrivateKey:
		if alg != AlgorithmRS256 {
			return nil, fmt.Errorf("%w: RSA key for %s", ErrAlgMismatch, alg)
		}
		if key.N.BitLen() < 2048 {
			return nil, errors.New("jwtx: RSA key must be at least 2048 bits")
		}
		s.method, s.key = jwt.SigningMethodRS256, key
	default:
		return nil, fmt.Errorf("jwtx: unsupported private key type %T", parsed)
	}

	if s.kid == "" {
		s.kid, err = thumbprint(s.key.Public())
		if err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *keySigner) Alg() string { return s.method.Alg() }
func (s *keySigner) KID() string { return s.kid }

func (s *keySigner) Sign(claims jwt.Claims) (string, error) {
	t := jwt.NewWithClaims(s.method, claims)
	t.Header["kid"] = s.kid
	return t.SignedString(s.key)
}

func (s *keySigner) PublicJWK() JWK {
	switch pub := s.key.Public().(type) {
	case ed25519.PublicKey:
		return NewEd25519JWK(s.kid, "sig", s.Alg(), pub)
	case *ecdsa.PublicKey:
		return NewES256JWK(s.kid, "sig", s.Alg(), pub)
	case *rsa.PublicKey:
		return NewRSAJWK(s.kid, "sig", s.Alg(), pub)
	}
	return JWK{}
}

func thumbprint(pub crypto.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("jwtx: marshal public key: %w", err)
	}
	sum := sha256.Sum256(der)
	return base64.RawURLEncoding.EncodeToString(sum[:12]), nil
}
