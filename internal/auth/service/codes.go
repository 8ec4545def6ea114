package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/truecredit/authserver/internal/auth/domain"
	"github.com/truecredit/authserver/internal/auth/store"
	"github.com/truecredit/authserver/pkg/cryptox"
)

const DefaultCodeTTL = 5 * time.Minute

// CodeService issues and redeems single-use authorization codes. Only code
// fingerprints are stored.
type CodeService struct {
	Store store.AuthorizationCodes
	TTL   time.Duration

	// Now defaults to time.Now.
	Now func() time.Time
}

func (s *CodeService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// CodeGrant is what an authorization code stands for.
type CodeGrant struct {
	ClientID            string
	Subject             string
	RedirectURI         string
	Scopes              []string
	Nonce               string
	CodeChallenge       string
	CodeChallengeMethod string
}

// Issue stores a new code for g and returns its value.
func (s *CodeService) Issue(ctx context.Context, g CodeGrant) (string, error) {
	ttl := s.TTL
	if ttl <= 0 {
		ttl = DefaultCodeTTL
	}

	value, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", fmt.Errorf("generate authorization code: %w", err)
	}

	now := s.now()
	method := g.CodeChallengeMethod
	if g.CodeChallenge != "" && method == "" {
		method = domain.PKCEMethodS256
	}
	err = s.Store.CreateAuthorizationCode(ctx, domain.AuthorizationCode{
		ID:                  cryptox.FingerprintToken(value),
		ClientID:            g.ClientID,
		Subject:             g.Subject,
		RedirectURI:         g.RedirectURI,
		Scopes:              slices.Clone(g.Scopes),
		Nonce:               g.Nonce,
		CodeChallenge:       g.CodeChallenge,
		CodeChallengeMethod: method,
		ExpiresAt:           now.Add(ttl),
		CreatedAt:           now,
	})
	if err != nil {
		return "", err
	}
	return value, nil
}

// Lookup returns the stored code for value without consuming it. Unknown,
// used and expired codes return ErrInvalidGrant.
func (s *CodeService) Lookup(ctx context.Context, value string) (domain.AuthorizationCode, error) {
	if value == "" {
		return domain.AuthorizationCode{}, ErrInvalidGrant
	}
	c, err := s.Store.GetAuthorizationCode(ctx, cryptox.FingerprintToken(value))
	if errors.Is(err, store.ErrNotFound) {
		return domain.AuthorizationCode{}, ErrInvalidGrant
	}
	if err != nil {
		return domain.AuthorizationCode{}, err
	}
	if c.RedeemedAt != nil || !s.now().Before(c.ExpiresAt) {
		return domain.AuthorizationCode{}, ErrInvalidGrant
	}
	return c, nil
}

// Redeem marks the code used. Only one caller can redeem a given code.
func (s *CodeService) Redeem(ctx context.Context, value string) (domain.AuthorizationCode, error) {
	c, err := s.Store.RedeemAuthorizationCode(ctx, cryptox.FingerprintToken(value), s.now())
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrConflict) {
		return domain.AuthorizationCode{}, ErrInvalidGrant
	}
	if err != nil {
		return domain.AuthorizationCode{}, err
	}
	return c, nil
}
