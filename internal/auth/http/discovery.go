package http

import (
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/truecredit/authserver/internal/auth/domain"
	"github.com/truecredit/authserver/internal/auth/service"
	"github.com/truecredit/authserver/pkg/authsdk"
	"github.com/truecredit/authserver/pkg/httpx"
	"github.com/truecredit/authserver/pkg/slogx"
)

// DiscoveryHandler publishes OpenID Provider Metadata.
//
//	@Summary		OpenID Provider configuration
//	@Description	OpenID Connect Discovery 1.0 metadata: endpoints, supported scopes, grants and algorithms.
//	@Tags			well-known
//	@Produce		json
//	@Success		200	{object}	authsdk.DiscoveryDocument
//	@Router			/.well-known/openid-configuration [get].
func DiscoveryHandler(issuer, alg string, claims domain.ClaimMap, registry *service.RegistryService) http.HandlerFunc {
	root := strings.TrimRight(issuer, "/")
	base := authsdk.DiscoveryDocument{
		Issuer:                issuer,
		AuthorizationEndpoint: root + authsdk.PathAuthorize,
		TokenEndpoint:         root + authsdk.PathToken,
		IntrospectionEndpoint: root + authsdk.PathIntrospect,
		UserinfoEndpoint:      root + authsdk.PathUserInfo,
		EndSessionEndpoint:    root + authsdk.PathLogout,
		RevocationEndpoint:    root + authsdk.PathRevoke,
		JWKSURI:               root + authsdk.PathJWKS,
		ResponseTypesSupported: []string{
			domain.ResponseTypeCode,
			domain.ResponseTypeToken,
			domain.ResponseTypeIDToken,
			domain.ResponseTypeIDTokenToken,
		},
		ResponseModesSupported: []string{"query", "fragment"},
		GrantTypesSupported: []string{
			domain.GrantAuthorizationCode,
			domain.GrantImplicit,
			domain.GrantRefreshToken,
			domain.GrantClientCredentials,
			domain.GrantPassword,
		},
		SubjectTypesSupported:             []string{"public"},
		IDTokenSigningAlgValuesSupported:  []string{alg},
		TokenEndpointAuthMethodsSupported: []string{"client_secret_basic", "client_secret_post", "none"},
		CodeChallengeMethodsSupported:     []string{"S256", "plain"},
		ClaimsSupported: []string{
			claims.Name(domain.ClaimSubject),
			claims.Name(domain.ClaimName),
			claims.Name(domain.ClaimEmail),
			claims.Name(domain.ClaimRole),
			"preferred_username",
			"nonce",
		},
	}
	identity := []string{
		domain.ScopeOpenID,
		domain.ScopeOfflineAccess,
		domain.ScopeProfile,
		domain.ScopeEmail,
		domain.ScopeRoles,
	}

	return func(w http.ResponseWriter, r *http.Request) {
		doc := base
		doc.ScopesSupported = slices.Clone(identity)

		scopes, err := registry.ListScopes(r.Context())
		if err != nil {
			slogx.FromContext(r.Context()).Warn("discovery: listing scopes failed", slog.Any("error", err))
		}
		for _, s := range scopes {
			doc.ScopesSupported = append(doc.ScopesSupported, s.Name)
		}
		httpx.WriteJSON(w, http.StatusOK, doc)
	}
}
