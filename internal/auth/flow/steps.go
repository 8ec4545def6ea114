package flow

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/truecredit/authserver/internal/auth/domain"
	"github.com/truecredit/authserver/internal/auth/policy"
	"github.com/truecredit/authserver/internal/auth/service"
	"github.com/truecredit/authserver/internal/auth/store"
	"github.com/truecredit/authserver/pkg/cryptox"
)

func (r *run) loadClient(ctx context.Context, endpoint string) error {
	if r.req.ClientID == "" {
		return invalidClient(KindValidation, "client_id is required")
	}
	c, err := r.c.Registry.FindClientByID(ctx, r.req.ClientID)
	if errors.Is(err, store.ErrNotFound) {
		return invalidClient(KindValidation, "unknown client")
	}
	if err != nil {
		return err
	}
	if !c.HasPermission(endpoint) {
		return invalidClient(KindValidation, "client may not use this endpoint")
	}
	r.client = c
	return nil
}

func (r *run) requireGrant(gt string) error {
	if !r.client.HasPermission(domain.GrantTypePermission(gt)) {
		return invalidClient(KindValidation, "grant type %q is not permitted for this client", gt)
	}
	return nil
}

// authenticateClient checks the client secret. Confidential clients must
// present theirs; with requireConfidential, public clients are refused.
func (r *run) authenticateClient(requireConfidential bool) error {
	if requireConfidential && !r.client.IsConfidential() {
		return invalidClient(KindAuthentication, "client authentication required")
	}
	if err := r.c.Registry.VerifyClientSecret(r.client, r.req.ClientSecret); err != nil {
		return invalidClient(KindAuthentication, "client authentication failed")
	}
	return nil
}

func (r *run) checkRedirectURI() error {
	if r.req.RedirectURI == "" {
		return invalidRequest("redirect_uri is required")
	}
	if !r.client.AllowsRedirectURI(r.req.RedirectURI) {
		return invalidClient(KindValidation, "redirect_uri is not registered for this client")
	}
	return nil
}

// authorizeScopes checks requested against the client's permissions and
// resolves the audience from the stored scopes.
func (r *run) authorizeScopes(ctx context.Context, requested []string) error {
	var scopes []string
	for _, s := range requested {
		if !slices.Contains(scopes, s) {
			scopes = append(scopes, s)
		}
	}

	if forbidden := r.client.ForbiddenScopes(scopes); len(forbidden) > 0 {
		return invalidScope("scope %q is not permitted for this client", forbidden[0])
	}

	records, resources, err := r.c.Registry.ResolveScopes(ctx, scopes)
	if errors.Is(err, service.ErrUnknownScope) {
		return invalidScope("unknown scope")
	}
	if err != nil {
		return err
	}

	r.scopes = scopes
	r.scopeRecords = records
	r.audience = resources
	return nil
}

func (r *run) evaluatePolicies(_ context.Context, roles []string) error {
	for _, sc := range r.scopeRecords {
		if sc.Policy == "" {
			continue
		}
		d, err := r.c.Policies.Evaluate(sc.Policy, roles)
		if errors.Is(err, policy.ErrUnknownPolicy) {
			return reject(CodeTemporarilyUnavailable, KindConfiguration, "scope %q is misconfigured", sc.Name)
		}
		if err != nil {
			return err
		}
		if d != policy.Allow {
			return reject(CodeInsufficientScope, KindAuthorization, "scope %q requires the %s policy", sc.Name, sc.Policy)
		}
	}
	return nil
}

// authenticateUser resolves the principal from the session subject or the
// submitted credentials.
func (r *run) authenticateUser(ctx context.Context) error {
	if r.req.Subject != "" {
		p, err := r.c.Credentials.FindUser(ctx, r.req.Subject)
		if errors.Is(err, store.ErrNotFound) {
			return reject(CodeLoginRequired, KindAuthentication, "session is no longer valid")
		}
		if err != nil {
			return err
		}
		return r.authenticatedAs(ctx, p)
	}

	if r.req.Username == "" {
		return reject(CodeLoginRequired, KindAuthentication, "user authentication required")
	}
	p, err := r.c.Credentials.ValidateCredentials(ctx, r.req.Username, r.req.Password, r.req.OTP)
	switch {
	case errors.Is(err, service.ErrOTPRequired):
		return reject(CodeLoginRequired, KindAuthentication, "one-time code required")
	case errors.Is(err, service.ErrInvalidCredentials):
		return reject(CodeAccessDenied, KindAuthentication, "invalid username or password")
	case err != nil:
		return err
	}
	return r.authenticatedAs(ctx, p)
}

// authenticatedAs records a user principal with the roles the credential
// provider currently holds for it.
func (r *run) authenticatedAs(ctx context.Context, p domain.Principal) error {
	roles, err := r.c.Credentials.GetRoles(ctx, p.Subject)
	if errors.Is(err, store.ErrNotFound) {
		return reject(CodeAccessDenied, KindAuthentication, "user %q no longer exists", p.Subject)
	}
	if err != nil {
		return err
	}
	p.Roles = roles
	r.setPrincipal(p)
	return nil
}

func (r *run) setPrincipal(p domain.Principal) {
	r.principal = p
	r.out.Principal = &p
}

func (r *run) identityClaims(nonce string) map[string]any {
	claims := r.c.Claims.ProfileClaims(r.principal, r.scopes)
	if nonce != "" {
		claims["nonce"] = nonce
	}
	return claims
}

// issueTokenSet mints an access token, an identity token when openid was
// granted and, when allowed, a refresh token for offline_access.
func (r *run) issueTokenSet(ctx context.Context, nonce string, allowRefresh bool) error {
	subject := r.principal.Subject
	set := domain.TokenSet{Scopes: r.scopes}

	access, err := r.c.Issuer.IssueAccessToken(ctx, subject, r.client.ID, r.audience, r.scopes, r.principal.Roles, 0)
	if err != nil {
		return err
	}
	r.issued = append(r.issued, access)
	set.AccessToken = &access

	if slices.Contains(r.scopes, domain.ScopeOpenID) {
		idt, err := r.c.Issuer.IssueIdentityToken(ctx, subject, r.client.ID, r.identityClaims(nonce), 0)
		if err != nil {
			return err
		}
		set.IdentityToken = &idt
	}

	if allowRefresh &&
		slices.Contains(r.scopes, domain.ScopeOfflineAccess) &&
		r.client.HasPermission(domain.GrantTypePermission(domain.GrantRefreshToken)) {
		rt, err := r.c.Issuer.IssueRefreshToken(ctx, subject, r.client.ID, r.audience, r.scopes, 0)
		if err != nil {
			return err
		}
		r.issued = append(r.issued, rt)
		set.RefreshToken = &rt
	}

	r.out.Tokens = set
	return nil
}

// normalizePKCE validates the challenge sent to the authorization endpoint.
// Public clients must use PKCE; the method defaults to S256.
func (r *run) normalizePKCE() error {
	challenge := strings.TrimSpace(r.req.CodeChallenge)
	method := strings.TrimSpace(r.req.CodeChallengeMethod)

	if challenge == "" {
		if !r.client.IsConfidential() {
			return invalidRequest("code_challenge is required for public clients")
		}
		if method != "" {
			return invalidRequest("code_challenge_method without code_challenge")
		}
		return nil
	}

	switch {
	case method == "" || strings.EqualFold(method, domain.PKCEMethodS256):
		method = domain.PKCEMethodS256
	case strings.EqualFold(method, domain.PKCEMethodPlain):
		method = domain.PKCEMethodPlain
	default:
		return invalidRequest("unsupported code_challenge_method %q", method)
	}
	r.req.CodeChallenge = challenge
	r.req.CodeChallengeMethod = method
	return nil
}

var authorizationVariant = variant{
	name: "authorization_code",
	steps: [5]step{
		func(ctx context.Context, r *run) error {
			if err := r.loadClient(ctx, domain.PermAuthorizationEndpoint); err != nil {
				return err
			}
			if err := r.requireGrant(domain.GrantAuthorizationCode); err != nil {
				return err
			}
			if !r.client.HasPermission(domain.ResponseTypePermission(domain.ResponseTypeCode)) {
				return invalidClient(KindValidation, "response_type code is not permitted for this client")
			}
			return r.checkRedirectURI()
		},
		func(ctx context.Context, r *run) error {
			if err := r.authorizeScopes(ctx, r.req.Scopes); err != nil {
				return err
			}
			return r.normalizePKCE()
		},
		func(ctx context.Context, r *run) error {
			return r.authenticateUser(ctx)
		},
		func(ctx context.Context, r *run) error {
			return r.evaluatePolicies(ctx, r.principal.Roles)
		},
		func(ctx context.Context, r *run) error {
			code, err := r.c.Codes.Issue(ctx, service.CodeGrant{
				ClientID:            r.client.ID,
				Subject:             r.principal.Subject,
				RedirectURI:         r.req.RedirectURI,
				Scopes:              r.scopes,
				Nonce:               r.req.Nonce,
				CodeChallenge:       r.req.CodeChallenge,
				CodeChallengeMethod: r.req.CodeChallengeMethod,
			})
			if err != nil {
				return err
			}
			r.out.Code = code
			r.out.Tokens.Scopes = r.scopes
			return nil
		},
	},
}

var implicitVariant = variant{
	name: "implicit",
	steps: [5]step{
		func(ctx context.Context, r *run) error {
			if err := r.loadClient(ctx, domain.PermAuthorizationEndpoint); err != nil {
				return err
			}
			if err := r.requireGrant(domain.GrantImplicit); err != nil {
				return err
			}
			r.responseType = domain.NormalizeResponseType(r.req.ResponseType)
			if !r.client.HasPermission(domain.ResponseTypePermission(r.responseType)) {
				return invalidClient(KindValidation, "response_type %q is not permitted for this client", r.responseType)
			}
			return r.checkRedirectURI()
		},
		func(ctx context.Context, r *run) error {
			if err := r.authorizeScopes(ctx, r.req.Scopes); err != nil {
				return err
			}
			if strings.Contains(r.responseType, domain.ResponseTypeIDToken) {
				if !slices.Contains(r.scopes, domain.ScopeOpenID) {
					return invalidScope("response_type id_token requires the openid scope")
				}
				if r.req.Nonce == "" {
					return invalidRequest("nonce is required for response_type id_token")
				}
			}
			return nil
		},
		func(ctx context.Context, r *run) error {
			return r.authenticateUser(ctx)
		},
		func(ctx context.Context, r *run) error {
			return r.evaluatePolicies(ctx, r.principal.Roles)
		},
		func(ctx context.Context, r *run) error {
			set := domain.TokenSet{Scopes: r.scopes}
			if slices.Contains(strings.Fields(r.responseType), domain.ResponseTypeToken) {
				access, err := r.c.Issuer.IssueAccessToken(ctx, r.principal.Subject, r.client.ID, r.audience, r.scopes, r.principal.Roles, 0)
				if err != nil {
					return err
				}
				r.issued = append(r.issued, access)
				set.AccessToken = &access
			}
			if strings.Contains(r.responseType, domain.ResponseTypeIDToken) {
				idt, err := r.c.Issuer.IssueIdentityToken(ctx, r.principal.Subject, r.client.ID, r.identityClaims(r.req.Nonce), 0)
				if err != nil {
					return err
				}
				set.IdentityToken = &idt
			}
			r.out.Tokens = set
			return nil
		},
	},
}

var codeExchangeVariant = variant{
	name: "authorization_code_exchange",
	steps: [5]step{
		func(ctx context.Context, r *run) error {
			if err := r.loadClient(ctx, domain.PermTokenEndpoint); err != nil {
				return err
			}
			if err := r.requireGrant(domain.GrantAuthorizationCode); err != nil {
				return err
			}
			return r.authenticateClient(false)
		},
		func(ctx context.Context, r *run) error {
			if r.req.Code == "" {
				return invalidRequest("code is required")
			}
			code, err := r.c.Codes.Lookup(ctx, r.req.Code)
			if errors.Is(err, service.ErrInvalidGrant) {
				return invalidGrant("authorization code is invalid, expired or already used")
			}
			if err != nil {
				return err
			}
			if code.ClientID != r.client.ID {
				return invalidGrant("authorization code was issued to another client")
			}
			r.code = code
			return r.authorizeScopes(ctx, code.Scopes)
		},
		func(ctx context.Context, r *run) error {
			if r.code.RedirectURI != "" && r.req.RedirectURI != r.code.RedirectURI {
				return invalidGrant("redirect_uri does not match the authorization request")
			}
			if !r.code.VerifyPKCE(r.req.CodeVerifier, cryptox.S256Challenge) {
				return invalidGrant("code_verifier does not match")
			}
			if _, err := r.c.Codes.Redeem(ctx, r.req.Code); err != nil {
				if errors.Is(err, service.ErrInvalidGrant) {
					return invalidGrant("authorization code is invalid, expired or already used")
				}
				return err
			}
			p, err := r.c.Credentials.FindUser(ctx, r.code.Subject)
			if errors.Is(err, store.ErrNotFound) {
				return invalidGrant("the authorizing user no longer exists")
			}
			if err != nil {
				return err
			}
			return r.authenticatedAs(ctx, p)
		},
		func(ctx context.Context, r *run) error {
			return r.evaluatePolicies(ctx, r.principal.Roles)
		},
		func(ctx context.Context, r *run) error {
			return r.issueTokenSet(ctx, r.code.Nonce, true)
		},
	},
}

var refreshVariant = variant{
	name: "refresh_token",
	steps: [5]step{
		func(ctx context.Context, r *run) error {
			if err := r.loadClient(ctx, domain.PermTokenEndpoint); err != nil {
				return err
			}
			if err := r.requireGrant(domain.GrantRefreshToken); err != nil {
				return err
			}
			return r.authenticateClient(false)
		},
		func(ctx context.Context, r *run) error {
			if r.req.RefreshToken == "" {
				return invalidRequest("refresh_token is required")
			}
			rec, err := r.c.Issuer.LookupRefreshToken(ctx, r.req.RefreshToken)
			if errors.Is(err, service.ErrInvalidToken) {
				return invalidGrant("refresh token is invalid or expired")
			}
			if err != nil {
				return err
			}
			if rec.ClientID != r.client.ID {
				return invalidGrant("refresh token was issued to another client")
			}
			r.refresh = rec

			requested := r.req.Scopes
			if requested == nil {
				requested = rec.Scopes
			}
			for _, s := range requested {
				if !slices.Contains(rec.Scopes, s) {
					return invalidScope("scope %q exceeds the original grant", s)
				}
			}
			return r.authorizeScopes(ctx, requested)
		},
		func(ctx context.Context, r *run) error {
			p, err := r.c.Credentials.FindUser(ctx, r.refresh.Subject)
			if errors.Is(err, store.ErrNotFound) {
				return invalidGrant("the authorizing user no longer exists")
			}
			if err != nil {
				return err
			}
			return r.authenticatedAs(ctx, p)
		},
		func(ctx context.Context, r *run) error {
			return r.evaluatePolicies(ctx, r.principal.Roles)
		},
		func(ctx context.Context, r *run) error {
			rot := service.Rotation{
				ClientID: r.client.ID,
				Scopes:   r.scopes,
				Audience: append([]string{}, r.audience...),
				Roles:    r.principal.Roles,
			}
			if slices.Contains(r.scopes, domain.ScopeOpenID) {
				rot.Identity = r.identityClaims("")
			}
			set, err := r.c.Issuer.RotateWith(ctx, r.req.RefreshToken, rot)
			if errors.Is(err, service.ErrInvalidToken) {
				return invalidGrant("refresh token is invalid or already used")
			}
			if err != nil {
				return err
			}
			r.out.Tokens = set
			return nil
		},
	},
}

var passwordVariant = variant{
	name: "password",
	steps: [5]step{
		func(ctx context.Context, r *run) error {
			if err := r.loadClient(ctx, domain.PermTokenEndpoint); err != nil {
				return err
			}
			if err := r.requireGrant(domain.GrantPassword); err != nil {
				return err
			}
			return r.authenticateClient(false)
		},
		func(ctx context.Context, r *run) error {
			return r.authorizeScopes(ctx, r.req.Scopes)
		},
		func(ctx context.Context, r *run) error {
			if r.req.Username == "" || r.req.Password == "" {
				return invalidRequest("username and password are required")
			}
			p, err := r.c.Credentials.ValidateCredentials(ctx, r.req.Username, r.req.Password, r.req.OTP)
			switch {
			case errors.Is(err, service.ErrOTPRequired):
				return invalidGrant("one-time code required")
			case errors.Is(err, service.ErrInvalidCredentials):
				return invalidGrant("invalid username or password")
			case err != nil:
				return err
			}
			return r.authenticatedAs(ctx, p)
		},
		func(ctx context.Context, r *run) error {
			return r.evaluatePolicies(ctx, r.principal.Roles)
		},
		func(ctx context.Context, r *run) error {
			return r.issueTokenSet(ctx, "", true)
		},
	},
}

var clientCredentialsVariant = variant{
	name: "client_credentials",
	steps: [5]step{
		func(ctx context.Context, r *run) error {
			if err := r.loadClient(ctx, domain.PermTokenEndpoint); err != nil {
				return err
			}
			return r.requireGrant(domain.GrantClientCredentials)
		},
		func(ctx context.Context, r *run) error {
			for _, s := range r.req.Scopes {
				if s == domain.ScopeOpenID || s == domain.ScopeOfflineAccess {
					return invalidScope("scope %q is not available to client credentials", s)
				}
			}
			return r.authorizeScopes(ctx, r.req.Scopes)
		},
		func(ctx context.Context, r *run) error {
			if err := r.authenticateClient(true); err != nil {
				return err
			}
			// The client acts on its own behalf and carries no roles.
			r.setPrincipal(domain.Principal{Subject: r.client.ID, DisplayName: r.client.DisplayName})
			return nil
		},
		func(ctx context.Context, r *run) error {
			return r.evaluatePolicies(ctx, nil)
		},
		func(ctx context.Context, r *run) error {
			return r.issueTokenSet(ctx, "", false)
		},
	},
}

var introspectionVariant = variant{
	name: "introspection",
	steps: [5]step{
		func(ctx context.Context, r *run) error {
			return r.loadClient(ctx, domain.PermIntrospectionEndpoint)
		},
		func(_ context.Context, r *run) error {
			if strings.TrimSpace(r.req.Token) == "" {
				return invalidRequest("token is required")
			}
			return nil
		},
		func(_ context.Context, r *run) error {
			return r.authenticateClient(true)
		},
		nil,
		func(ctx context.Context, r *run) error {
			info, err := r.c.Issuer.Introspect(ctx, r.req.Token)
			if err != nil {
				return err
			}
			// Callers only learn about tokens meant for them or issued to them.
			if info.Active && !slices.Contains(info.Audience, r.client.ID) && info.ClientID != r.client.ID {
				info = domain.Introspection{}
			}
			r.out.Introspection = &info
			return nil
		},
	},
}
