package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/truecredit/authserver/internal/auth/domain"
	"github.com/truecredit/authserver/internal/auth/store"
	"github.com/truecredit/authserver/pkg/cryptox"
	"github.com/truecredit/authserver/pkg/jwtx"
	"github.com/truecredit/authserver/pkg/slogx"
)

// Default token lifetimes.
const (
	DefaultAccessTTL   = time.Hour
	DefaultRefreshTTL  = 14 * 24 * time.Hour
	DefaultIdentityTTL = 20 * time.Minute
	DefaultSessionTTL  = 8 * time.Hour
)

// AudiencePolicy decides whether tokens for an audience are encrypted.
type AudiencePolicy interface {
	RequiresEncryption(ctx context.Context, audience []string) (bool, error)
}

// TokenIssuer mints, introspects and rotates tokens. Every access, refresh
// and session token is recorded in Ledger.
type TokenIssuer struct {
	Keys      *jwtx.KeyManager
	Ledger    store.Tokens
	Audiences AudiencePolicy
	Issuer    string
	Claims    domain.ClaimMap

	AccessTTL   time.Duration
	RefreshTTL  time.Duration
	IdentityTTL time.Duration
	SessionTTL  time.Duration

	// Now defaults to time.Now.
	Now func() time.Time
}

func (s *TokenIssuer) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func orDefault(ttl, def time.Duration) time.Duration {
	if ttl > 0 {
		return ttl
	}
	return def
}

// IssueAccessToken signs an access token and records its jti. The token is
// wrapped in a JWE when the audience validates tokens locally.
func (s *TokenIssuer) IssueAccessToken(
	ctx context.Context,
	subject, clientID string,
	audience, scopes, roles []string,
	ttl time.Duration,
) (domain.Token, error) {
	ttl = orDefault(ttl, orDefault(s.AccessTTL, DefaultAccessTTL))
	now := s.now()

	claims := jwtx.NewAccessClaims(s.Issuer, subject, clientID, audience, scopes, roles, ttl, now)
	signed, err := s.Keys.Signer.Sign(claims)
	if err != nil {
		return domain.Token{}, fmt.Errorf("sign access token: %w", err)
	}

	encrypt := false
	if s.Audiences != nil && len(audience) > 0 {
		if encrypt, err = s.Audiences.RequiresEncryption(ctx, audience); err != nil {
			return domain.Token{}, err
		}
	}
	value := signed
	if encrypt {
		if !s.Keys.CanEncrypt() {
			return domain.Token{}, ErrEncryptionUnavailable
		}
		if value, err = s.Keys.Encrypter.Encrypt(signed); err != nil {
			return domain.Token{}, fmt.Errorf("encrypt access token: %w", err)
		}
	}

	tok := domain.Token{
		Value:     value,
		Kind:      domain.TokenKindAccess,
		ID:        claims.ID,
		Subject:   subject,
		ClientID:  clientID,
		Audience:  slices.Clone(audience),
		Scopes:    slices.Clone(scopes),
		Roles:     slices.Clone(roles),
		Encrypted: encrypt,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
	if err := s.record(ctx, tok); err != nil {
		return domain.Token{}, err
	}
	return tok, nil
}

// IssueRefreshToken mints an opaque refresh token. Only its fingerprint is
// recorded.
func (s *TokenIssuer) IssueRefreshToken(
	ctx context.Context,
	subject, clientID string,
	audience, scopes []string,
	ttl time.Duration,
) (domain.Token, error) {
	ttl = orDefault(ttl, orDefault(s.RefreshTTL, DefaultRefreshTTL))
	return s.issueOpaque(ctx, domain.TokenKindRefresh, subject, clientID, audience, scopes, ttl)
}

// IssueIdentityToken signs an OpenID Connect identity token for clientID.
// claims are added verbatim; registered claims are set by the issuer.
func (s *TokenIssuer) IssueIdentityToken(
	ctx context.Context,
	subject, clientID string,
	claims map[string]any,
	ttl time.Duration,
) (domain.Token, error) {
	ttl = orDefault(ttl, orDefault(s.IdentityTTL, DefaultIdentityTTL))
	now := s.now()

	mc := jwt.MapClaims{}
	for k, v := range claims {
		mc[k] = v
	}
	mc["iss"] = s.Issuer
	mc[s.claimName(domain.ClaimSubject)] = subject
	mc[s.claimName(domain.ClaimAudience)] = clientID
	mc["azp"] = clientID
	mc["iat"] = now.Unix()
	mc["exp"] = now.Add(ttl).Unix()
	mc["jti"] = jwtx.NewJTI()
	mc["token_use"] = jwtx.TokenUseIdentity

	signed, err := s.Keys.Signer.Sign(mc)
	if err != nil {
		return domain.Token{}, fmt.Errorf("sign identity token: %w", err)
	}

	slogx.FromContext(ctx).Debug("identity token issued",
		slog.String("client_id", clientID),
		slog.String("sub", subject),
	)
	return domain.Token{
		Value:     signed,
		Kind:      domain.TokenKindIdentity,
		ID:        mc["jti"].(string),
		Subject:   subject,
		ClientID:  clientID,
		Audience:  []string{clientID},
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}, nil
}

func (s *TokenIssuer) claimName(k domain.ClaimKind) string {
	if s.Claims == nil {
		return domain.DefaultClaimMap().Name(k)
	}
	return s.Claims.Name(k)
}

// IssueSession mints the opaque browser session token used by the
// authorization endpoint.
func (s *TokenIssuer) IssueSession(ctx context.Context, subject string) (domain.Token, error) {
	ttl := orDefault(s.SessionTTL, DefaultSessionTTL)
	return s.issueOpaque(ctx, domain.TokenKindSession, subject, "", nil, nil, ttl)
}

// ResolveSession returns the subject of a usable session token.
func (s *TokenIssuer) ResolveSession(ctx context.Context, value string) (string, error) {
	if value == "" {
		return "", ErrInvalidToken
	}
	rec, err := s.Ledger.GetToken(ctx, cryptox.FingerprintToken(value))
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrInvalidToken
	}
	if err != nil {
		return "", err
	}
	if rec.Kind != domain.TokenKindSession || !rec.Usable(s.now()) {
		return "", ErrInvalidToken
	}
	return rec.Subject, nil
}

// EndSession revokes the session token and every token of subject issued to
// clientID. Unknown sessions are ignored.
func (s *TokenIssuer) EndSession(ctx context.Context, session, subject, clientID string) error {
	if session != "" {
		err := s.Ledger.RevokeToken(ctx, cryptox.FingerprintToken(session))
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
	}
	if subject == "" || clientID == "" {
		return nil
	}
	n, err := s.Ledger.RevokeSubjectTokens(ctx, subject, clientID)
	if err != nil {
		return err
	}
	slogx.FromContext(ctx).Info("session ended",
		slog.String("sub", subject),
		slog.String("client_id", clientID),
		slog.Int64("revoked", n),
	)
	return nil
}

func (s *TokenIssuer) issueOpaque(
	ctx context.Context,
	kind domain.TokenKind,
	subject, clientID string,
	audience, scopes []string,
	ttl time.Duration,
) (domain.Token, error) {
	value, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return domain.Token{}, fmt.Errorf("generate %s: %w", kind, err)
	}

	now := s.now()
	tok := domain.Token{
		Value:     value,
		Kind:      kind,
		ID:        cryptox.FingerprintToken(value),
		Subject:   subject,
		ClientID:  clientID,
		Audience:  slices.Clone(audience),
		Scopes:    slices.Clone(scopes),
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
	if err := s.record(ctx, tok); err != nil {
		return domain.Token{}, err
	}
	return tok, nil
}

func (s *TokenIssuer) record(ctx context.Context, tok domain.Token) error {
	err := s.Ledger.CreateToken(ctx, domain.TokenRecord{
		ID:        tok.ID,
		Kind:      tok.Kind,
		Subject:   tok.Subject,
		ClientID:  tok.ClientID,
		Audience:  tok.Audience,
		Scopes:    tok.Scopes,
		Status:    domain.TokenStatusValid,
		IssuedAt:  tok.IssuedAt,
		ExpiresAt: tok.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("record %s: %w", tok.Kind, err)
	}
	return nil
}

// Introspect reports whether token is an active access or refresh token.
// Invalid, expired, revoked and unknown tokens are inactive, not errors;
// only backend failures return an error.
func (s *TokenIssuer) Introspect(ctx context.Context, token string) (domain.Introspection, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Introspection{}, nil
	}
	if strings.Count(token, ".") < 2 {
		return s.introspectOpaque(ctx, token)
	}

	claims, err := s.Keys.Verifier.Verify(token)
	if err != nil {
		slogx.FromContext(ctx).Debug("introspected token failed verification", slog.Any("error", err))
		return domain.Introspection{}, nil
	}

	rec, err := s.Ledger.GetToken(ctx, claims.ID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Introspection{}, nil
	}
	if err != nil {
		return domain.Introspection{}, err
	}
	if rec.Kind != domain.TokenKindAccess || rec.Status != domain.TokenStatusValid {
		return domain.Introspection{}, nil
	}

	out := domain.Introspection{
		Active:    true,
		Subject:   claims.Subject,
		ClientID:  claims.ClientID,
		Scope:     claims.Scope,
		Audience:  slices.Clone([]string(claims.Audience)),
		Roles:     claims.Roles,
		Issuer:    claims.Issuer,
		JTI:       claims.ID,
		TokenType: "Bearer",
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

func (s *TokenIssuer) introspectOpaque(ctx context.Context, token string) (domain.Introspection, error) {
	rec, err := s.Ledger.GetToken(ctx, cryptox.FingerprintToken(token))
	if errors.Is(err, store.ErrNotFound) {
		return domain.Introspection{}, nil
	}
	if err != nil {
		return domain.Introspection{}, err
	}
	if rec.Kind != domain.TokenKindRefresh || !rec.Usable(s.now()) {
		return domain.Introspection{}, nil
	}
	return domain.Introspection{
		Active:    true,
		Subject:   rec.Subject,
		ClientID:  rec.ClientID,
		Scope:     strings.Join(rec.Scopes, " "),
		Audience:  rec.Audience,
		Issuer:    s.Issuer,
		TokenType: string(domain.TokenKindRefresh),
		IssuedAt:  rec.IssuedAt,
		ExpiresAt: rec.ExpiresAt,
	}, nil
}

// LookupRefreshToken returns the ledger record of a usable refresh token
// without consuming it.
func (s *TokenIssuer) LookupRefreshToken(ctx context.Context, value string) (domain.TokenRecord, error) {
	if value == "" {
		return domain.TokenRecord{}, ErrInvalidToken
	}
	rec, err := s.Ledger.GetToken(ctx, cryptox.FingerprintToken(value))
	if errors.Is(err, store.ErrNotFound) {
		return domain.TokenRecord{}, ErrInvalidToken
	}
	if err != nil {
		return domain.TokenRecord{}, err
	}
	if rec.Kind != domain.TokenKindRefresh || !rec.Usable(s.now()) {
		return domain.TokenRecord{}, ErrInvalidToken
	}
	return rec, nil
}

// Rotation narrows what a rotated refresh token grants.
type Rotation struct {
	// ClientID must match the client the token was issued to.
	ClientID string

	// Scopes replaces the original grant when non-nil. It must be a subset.
	Scopes []string

	// Audience replaces the original audience when non-nil.
	Audience []string

	Roles []string

	// Identity, when non-nil and the grant includes openid, is issued as an
	// identity token.
	Identity map[string]any
}

// Rotate consumes refreshToken and issues a new access and refresh token
// carrying the original grant.
func (s *TokenIssuer) Rotate(ctx context.Context, refreshToken string, roles []string) (domain.TokenSet, error) {
	return s.RotateWith(ctx, refreshToken, Rotation{Roles: roles})
}

// RotateWith consumes refreshToken atomically; of concurrent callers only one
// proceeds to issuance, the rest get ErrInvalidToken. A token stays consumed
// even if issuance then fails, in which case the error wraps ErrIssuance.
func (s *TokenIssuer) RotateWith(ctx context.Context, refreshToken string, r Rotation) (domain.TokenSet, error) {
	l := slogx.FromContext(ctx)
	if refreshToken == "" {
		return domain.TokenSet{}, ErrInvalidToken
	}

	id := cryptox.FingerprintToken(refreshToken)
	rec, err := s.Ledger.ConsumeToken(ctx, id, s.now())
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrConflict) {
		l.Info("refresh token not rotatable", slog.String("token_id", id))
		return domain.TokenSet{}, ErrInvalidToken
	}
	if err != nil {
		return domain.TokenSet{}, err
	}
	if rec.Kind != domain.TokenKindRefresh || (r.ClientID != "" && rec.ClientID != r.ClientID) {
		l.Warn("refresh token presented by wrong client or of wrong kind",
			slog.String("token_id", id),
			slog.String("client_id", r.ClientID),
		)
		return domain.TokenSet{}, ErrInvalidToken
	}

	scopes := rec.Scopes
	if r.Scopes != nil {
		for _, sc := range r.Scopes {
			if !slices.Contains(rec.Scopes, sc) {
				return domain.TokenSet{}, ErrInvalidToken
			}
		}
		scopes = r.Scopes
	}
	audience := rec.Audience
	if r.Audience != nil {
		audience = r.Audience
	}

	set := domain.TokenSet{Scopes: slices.Clone(scopes)}
	access, err := s.IssueAccessToken(ctx, rec.Subject, rec.ClientID, audience, scopes, r.Roles, 0)
	if err != nil {
		return domain.TokenSet{}, fmt.Errorf("%w: %w", ErrIssuance, err)
	}
	set.AccessToken = &access

	refresh, err := s.IssueRefreshToken(ctx, rec.Subject, rec.ClientID, audience, scopes, 0)
	if err != nil {
		return domain.TokenSet{}, s.abandon(ctx, err, access)
	}
	set.RefreshToken = &refresh

	if r.Identity != nil && slices.Contains(scopes, domain.ScopeOpenID) {
		idt, err := s.IssueIdentityToken(ctx, rec.Subject, rec.ClientID, r.Identity, 0)
		if err != nil {
			return domain.TokenSet{}, s.abandon(ctx, err, access, refresh)
		}
		set.IdentityToken = &idt
	}

	l.Info("refresh token rotated",
		slog.String("client_id", rec.ClientID),
		slog.String("sub", rec.Subject),
	)
	return set, nil
}

// Discard revokes the ledger records of tokens that were issued but never
// handed out. Identity tokens are not recorded and are skipped.
func (s *TokenIssuer) Discard(ctx context.Context, tokens ...domain.Token) error {
	var errs []error
	for _, tok := range tokens {
		if tok.Kind == domain.TokenKindIdentity || tok.ID == "" {
			continue
		}
		if err := s.Ledger.RevokeToken(ctx, tok.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			errs = append(errs, fmt.Errorf("revoke %s %s: %w", tok.Kind, tok.ID, err))
		}
	}
	return errors.Join(errs...)
}

// abandon revokes the already recorded part of a failed rotation and wraps
// err in ErrIssuance.
func (s *TokenIssuer) abandon(ctx context.Context, err error, issued ...domain.Token) error {
	if derr := s.Discard(context.WithoutCancel(ctx), issued...); derr != nil {
		slogx.FromContext(ctx).Error("failed to revoke partially issued tokens", slog.Any("error", derr))
	}
	return fmt.Errorf("%w: %w", ErrIssuance, err)
}

// VerifyAccessToken validates an access token presented as a bearer
// credential. Tokens revoked in the ledger are rejected with ErrInvalidToken.
func (s *TokenIssuer) VerifyAccessToken(ctx context.Context, token string) (jwtx.Claims, error) {
	claims, err := s.Keys.Verifier.Verify(token)
	if err != nil {
		return jwtx.Claims{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	rec, err := s.Ledger.GetToken(ctx, claims.ID)
	if errors.Is(err, store.ErrNotFound) {
		return jwtx.Claims{}, ErrInvalidToken
	}
	if err != nil {
		return jwtx.Claims{}, err
	}
	if rec.Kind != domain.TokenKindAccess || !rec.Usable(s.now()) {
		return jwtx.Claims{}, ErrInvalidToken
	}
	return claims, nil
}

// Revoke revokes an access or refresh token held by clientID (RFC 7009).
// Unknown tokens and tokens of other clients are ignored.
func (s *TokenIssuer) Revoke(ctx context.Context, value, clientID string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}

	var (
		id    string
		kind  = domain.TokenKindRefresh
		owner string
	)
	if strings.Count(value, ".") >= 2 {
		claims, err := s.Keys.Verifier.Verify(value)
		if err != nil {
			return nil
		}
		id, kind, owner = claims.ID, domain.TokenKindAccess, claims.ClientID
	} else {
		id = cryptox.FingerprintToken(value)
	}

	rec, err := s.Ledger.GetToken(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if owner == "" {
		owner = rec.ClientID
	}
	if rec.Kind != kind || owner != clientID {
		slogx.FromContext(ctx).Warn("revocation of foreign token ignored",
			slog.String("client_id", clientID),
			slog.String("token_id", id),
		)
		return nil
	}
	if err := s.Ledger.RevokeToken(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return nil
}
