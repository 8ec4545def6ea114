package flow_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/truecredit/authserver/internal/auth/domain"
	"github.com/truecredit/authserver/internal/auth/flow"
	"github.com/truecredit/authserver/internal/auth/policy"
	"github.com/truecredit/authserver/internal/auth/service"
	"github.com/truecredit/authserver/internal/auth/store/drivers/sqlite"
	"github.com/truecredit/authserver/pkg/cryptox"
	"github.com/truecredit/authserver/pkg/jwtx"
)

const (
	testIssuer   = "https://auth.example.test/"
	callbackURI  = "http://127.0.0.1:5500/callback.html"
	cliClientID  = "cli"
	cliSecret    = "cli-secret"
	svcClientID  = "svc"
	svcSecret    = "svc-secret"
	alicePass    = "correct horse battery staple"
	bobPass      = "hunter22"
	guestPass    = "guest-password"
	adminAPIName = "admin_api"
)

type recorder struct {
	mu       sync.Mutex
	outcomes []flow.Outcome
}

func (r *recorder) ObserveFlow(o flow.Outcome, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
}

type harness struct {
	ctrl     *flow.Controller
	issuer   *service.TokenIssuer
	codes    *service.CodeService
	observed *recorder
	alice    domain.User
	bob      domain.User

	clock atomic.Int64
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()

	s, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations())
	t.Cleanup(func() { _ = s.Close() })

	hasher := cryptox.Hasher{Pepper: "test-pepper"}
	registry := &service.RegistryService{Store: s, Hasher: hasher}

	data := service.DefaultBootstrapData("S3CR3T")
	data.Scopes = append(data.Scopes, domain.ScopeDescriptor{
		Name:      adminAPIName,
		Resources: []string{service.ResourceServerClientID},
		Policy:    policy.Administrator,
	})
	data.Clients = append(data.Clients,
		domain.ClientDescriptor{
			ID:     cliClientID,
			Secret: cliSecret,
			Permissions: []string{
				domain.PermTokenEndpoint,
				domain.GrantTypePermission(domain.GrantPassword),
				domain.GrantTypePermission(domain.GrantRefreshToken),
				domain.ScopePermission("api1"),
				domain.ScopePermission(domain.ScopeProfile),
				domain.ScopePermission(adminAPIName),
			},
		},
		domain.ClientDescriptor{
			ID:     svcClientID,
			Secret: svcSecret,
			Permissions: []string{
				domain.PermTokenEndpoint,
				domain.GrantTypePermission(domain.GrantClientCredentials),
				domain.ScopePermission("api1"),
				domain.ScopePermission(adminAPIName),
			},
		},
	)
	reconciler := &service.Reconciler{Registry: registry, Policies: policy.Default(), Data: data}
	require.NoError(t, reconciler.Reconcile(ctx))

	pemKey, err := cryptox.GenerateSigningKey(jwtx.AlgorithmEdDSA)
	require.NoError(t, err)
	encKey, err := cryptox.GenerateSymmetricKey(jwtx.EncryptionKeySize)
	require.NoError(t, err)
	keys, err := jwtx.NewKeyManager(jwtx.KeyManagerOptions{
		Algorithm:     jwtx.AlgorithmEdDSA,
		PrivateKeyPEM: pemKey,
		EncryptionKey: encKey,
		Issuer:        testIssuer,
	})
	require.NoError(t, err)

	users := &service.UserDirectory{Store: s, Hasher: hasher, Issuer: "TrueCredit"}
	h := &harness{observed: &recorder{}}
	h.clock.Store(time.Now().UnixNano())

	h.alice, _, err = users.CreateUser(ctx, service.NewUser{
		ID:          "alice",
		Username:    "alice",
		Password:    alicePass,
		DisplayName: "Alice",
		Email:       "alice@example.test",
		Roles:       []string{"administrator"},
	})
	require.NoError(t, err)
	h.bob, _, err = users.CreateUser(ctx, service.NewUser{
		Username: "bob",
		Password: bobPass,
		Roles:    []string{"user"},
	})
	require.NoError(t, err)
	// guest holds no roles.
	_, _, err = users.CreateUser(ctx, service.NewUser{
		Username: "guest",
		Password: guestPass,
	})
	require.NoError(t, err)

	h.issuer = &service.TokenIssuer{
		Keys:      keys,
		Ledger:    s.Tokens(),
		Audiences: registry,
		Issuer:    testIssuer,
		Claims:    domain.DefaultClaimMap(),
	}
	h.codes = &service.CodeService{
		Store: s.AuthorizationCodes(),
		Now:   func() time.Time { return time.Unix(0, h.clock.Load()) },
	}
	h.ctrl = &flow.Controller{
		Registry:    registry,
		Credentials: users,
		Policies:    policy.Default(),
		Issuer:      h.issuer,
		Codes:       h.codes,
		Claims:      domain.DefaultClaimMap(),
		Observer:    h.observed,
	}
	return h
}

func (h *harness) advance(d time.Duration) { h.clock.Add(int64(d)) }

func requireRejected(t *testing.T, out flow.Outcome, code string) {
	t.Helper()
	require.Equal(t, flow.StateRejected, out.State)
	require.NotNil(t, out.Rejection)
	require.Equal(t, code, out.Rejection.Code, out.Rejection.Description)
	require.Nil(t, out.Tokens.AccessToken)
	require.Nil(t, out.Tokens.RefreshToken)
	require.Nil(t, out.Tokens.IdentityToken)
	require.Empty(t, out.Code)
}

func (h *harness) passwordGrant(t *testing.T, scopes ...string) flow.Outcome {
	t.Helper()
	return h.ctrl.Run(context.Background(), flow.Request{
		Endpoint:     flow.EndpointToken,
		GrantType:    domain.GrantPassword,
		ClientID:     cliClientID,
		ClientSecret: cliSecret,
		Username:     "alice",
		Password:     alicePass,
		Scopes:       scopes,
	})
}

func TestIntrospectionScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	out := h.ctrl.Run(ctx, flow.Request{
		Endpoint:  flow.EndpointToken,
		GrantType: domain.GrantPassword,
		ClientID:  service.FrontendClientID,
		Username:  "alice",
		Password:  alicePass,
		Scopes:    []string{"api1"},
	})
	require.True(t, out.OK(), "%+v", out.Rejection)
	require.NotNil(t, out.Tokens.AccessToken)
	require.False(t, out.Tokens.AccessToken.Encrypted)
	require.Nil(t, out.Tokens.RefreshToken)

	got := h.ctrl.Run(ctx, flow.Request{
		Endpoint:     flow.EndpointIntrospect,
		ClientID:     service.ResourceServerClientID,
		ClientSecret: "S3CR3T",
		Token:        out.Tokens.AccessToken.Value,
	})
	require.True(t, got.OK(), "%+v", got.Rejection)
	require.NotNil(t, got.Introspection)
	require.True(t, got.Introspection.Active)
	require.Equal(t, "alice", got.Introspection.Subject)
	require.Equal(t, "api1", got.Introspection.Scope)
	require.Equal(t, service.FrontendClientID, got.Introspection.ClientID)

	bad := h.ctrl.Run(ctx, flow.Request{
		Endpoint:     flow.EndpointIntrospect,
		ClientID:     service.ResourceServerClientID,
		ClientSecret: "wrong",
		Token:        out.Tokens.AccessToken.Value,
	})
	requireRejected(t, bad, flow.CodeInvalidClient)
	require.Equal(t, flow.KindAuthentication, bad.Rejection.Kind)
	require.Nil(t, bad.Introspection)
}

func TestIntrospectionHidesTokensForOtherAudiences(t *testing.T) {
	h := newHarness(t)

	out := h.passwordGrant(t, "api1")
	require.True(t, out.OK())

	// An access token with no audience is not meant for resource_server_1.
	svc := h.ctrl.Run(context.Background(), flow.Request{
		Endpoint:     flow.EndpointToken,
		GrantType:    domain.GrantClientCredentials,
		ClientID:     svcClientID,
		ClientSecret: svcSecret,
	})
	require.True(t, svc.OK(), "%+v", svc.Rejection)

	got := h.ctrl.Run(context.Background(), flow.Request{
		Endpoint:     flow.EndpointIntrospect,
		ClientID:     service.ResourceServerClientID,
		ClientSecret: "S3CR3T",
		Token:        svc.Tokens.AccessToken.Value,
	})
	require.True(t, got.OK())
	require.False(t, got.Introspection.Active)
	require.Empty(t, got.Introspection.Subject)
}

func TestAuthorizationCodeFlow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"

	auth := h.ctrl.Run(ctx, flow.Request{
		Endpoint:      flow.EndpointAuthorize,
		ResponseType:  "code",
		ClientID:      service.FrontendClientID,
		RedirectURI:   callbackURI,
		Scopes:        []string{domain.ScopeOpenID, domain.ScopeProfile, "api1"},
		CodeChallenge: cryptox.S256Challenge(verifier),
		Username:      "alice",
		Password:      alicePass,
		Nonce:         "n-0S6_WzA2Mj",
	})
	require.True(t, auth.OK(), "%+v", auth.Rejection)
	require.NotEmpty(t, auth.Code)
	require.Equal(t, "authorization_code", auth.Flow)
	require.Equal(t, []flow.State{
		flow.StateReceived,
		flow.StateClientValidated,
		flow.StateGrantValidated,
		flow.StateAuthenticated,
		flow.StateScopesAuthorized,
		flow.StateTokenIssued,
	}, auth.Trace)

	exchange := flow.Request{
		Endpoint:     flow.EndpointToken,
		GrantType:    domain.GrantAuthorizationCode,
		ClientID:     service.FrontendClientID,
		RedirectURI:  callbackURI,
		Code:         auth.Code,
		CodeVerifier: verifier,
	}
	out := h.ctrl.Run(ctx, exchange)
	require.True(t, out.OK(), "%+v", out.Rejection)
	require.NotNil(t, out.Tokens.AccessToken)
	require.NotNil(t, out.Tokens.IdentityToken)
	require.Nil(t, out.Tokens.RefreshToken)

	parsed, _, err := jwt.NewParser().ParseUnverified(out.Tokens.IdentityToken.Value, jwt.MapClaims{})
	require.NoError(t, err)
	claims := parsed.Claims.(jwt.MapClaims)
	require.Equal(t, "n-0S6_WzA2Mj", claims["nonce"])
	require.Equal(t, "Alice", claims["name"])
	require.Equal(t, h.alice.ID, claims["sub"])

	again := h.ctrl.Run(ctx, exchange)
	requireRejected(t, again, flow.CodeInvalidGrant)
	require.Equal(t, flow.StateClientValidated, again.Rejection.At)
}

func TestAuthorizationRequiresPKCEForPublicClients(t *testing.T) {
	h := newHarness(t)

	out := h.ctrl.Run(context.Background(), flow.Request{
		Endpoint:     flow.EndpointAuthorize,
		ResponseType: "code",
		ClientID:     service.FrontendClientID,
		RedirectURI:  callbackURI,
		Scopes:       []string{"api1"},
		Username:     "alice",
		Password:     alicePass,
	})
	requireRejected(t, out, flow.CodeInvalidRequest)
	require.Equal(t, flow.StateClientValidated, out.Rejection.At)
}

func TestAuthorizationRejectsUnregisteredRedirect(t *testing.T) {
	h := newHarness(t)

	out := h.ctrl.Run(context.Background(), flow.Request{
		Endpoint:      flow.EndpointAuthorize,
		ResponseType:  "code",
		ClientID:      service.FrontendClientID,
		RedirectURI:   "https://evil.example/cb",
		CodeChallenge: cryptox.S256Challenge("v"),
	})
	requireRejected(t, out, flow.CodeInvalidClient)
	require.Equal(t, flow.StateReceived, out.Rejection.At)
}

func TestAuthorizationWithoutCredentialsRequiresLogin(t *testing.T) {
	h := newHarness(t)

	out := h.ctrl.Run(context.Background(), flow.Request{
		Endpoint:      flow.EndpointAuthorize,
		ResponseType:  "code",
		ClientID:      service.FrontendClientID,
		RedirectURI:   callbackURI,
		Scopes:        []string{"api1"},
		CodeChallenge: cryptox.S256Challenge("v"),
	})
	requireRejected(t, out, flow.CodeLoginRequired)
	require.Equal(t, flow.StateGrantValidated, out.Rejection.At)

	withSession := h.ctrl.Run(context.Background(), flow.Request{
		Endpoint:      flow.EndpointAuthorize,
		ResponseType:  "code",
		ClientID:      service.FrontendClientID,
		RedirectURI:   callbackURI,
		Scopes:        []string{"api1"},
		CodeChallenge: cryptox.S256Challenge("v"),
		Subject:       h.alice.ID,
	})
	require.True(t, withSession.OK(), "%+v", withSession.Rejection)
	require.Equal(t, h.alice.ID, withSession.Principal.Subject)
}

func TestExpiredCodeIsRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	auth := h.ctrl.Run(ctx, flow.Request{
		Endpoint:            flow.EndpointAuthorize,
		ResponseType:        "code",
		ClientID:            service.FrontendClientID,
		RedirectURI:         callbackURI,
		Scopes:              []string{"api1"},
		CodeChallenge:       "plain-verifier",
		CodeChallengeMethod: "PLAIN",
		Subject:             h.alice.ID,
	})
	require.True(t, auth.OK(), "%+v", auth.Rejection)

	h.advance(service.DefaultCodeTTL + time.Second)

	out := h.ctrl.Run(ctx, flow.Request{
		Endpoint:     flow.EndpointToken,
		GrantType:    domain.GrantAuthorizationCode,
		ClientID:     service.FrontendClientID,
		RedirectURI:  callbackURI,
		Code:         auth.Code,
		CodeVerifier: "plain-verifier",
	})
	requireRejected(t, out, flow.CodeInvalidGrant)
}

func TestCodeExchangeRejectsWrongVerifier(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	auth := h.ctrl.Run(ctx, flow.Request{
		Endpoint:      flow.EndpointAuthorize,
		ResponseType:  "code",
		ClientID:      service.FrontendClientID,
		RedirectURI:   callbackURI,
		Scopes:        []string{"api1"},
		CodeChallenge: cryptox.S256Challenge("right"),
		Subject:       h.alice.ID,
	})
	require.True(t, auth.OK())

	out := h.ctrl.Run(ctx, flow.Request{
		Endpoint:     flow.EndpointToken,
		GrantType:    domain.GrantAuthorizationCode,
		ClientID:     service.FrontendClientID,
		RedirectURI:  callbackURI,
		Code:         auth.Code,
		CodeVerifier: "wrong",
	})
	requireRejected(t, out, flow.CodeInvalidGrant)
	require.Equal(t, flow.StateGrantValidated, out.Rejection.At)
}

func TestScopeContainment(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name   string
		scopes []string
		code   string
	}{
		{"not permitted for client", []string{"api2"}, flow.CodeInvalidScope},
		{"offline access without refresh grant", []string{domain.ScopeOfflineAccess}, flow.CodeInvalidScope},
		{"unknown scope", []string{"api9"}, flow.CodeInvalidScope},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := h.ctrl.Run(context.Background(), flow.Request{
				Endpoint:     flow.EndpointToken,
				GrantType:    domain.GrantClientCredentials,
				ClientID:     svcClientID,
				ClientSecret: svcSecret,
				Scopes:       tt.scopes,
			})
			requireRejected(t, out, tt.code)
			require.Equal(t, flow.StateClientValidated, out.Rejection.At)
			require.Equal(t, []flow.State{flow.StateReceived, flow.StateClientValidated, flow.StateRejected}, out.Trace)
		})
	}
}

func TestPolicyGatesScopes(t *testing.T) {
	h := newHarness(t)

	out := h.ctrl.Run(context.Background(), flow.Request{
		Endpoint:     flow.EndpointToken,
		GrantType:    domain.GrantPassword,
		ClientID:     cliClientID,
		ClientSecret: cliSecret,
		Username:     "bob",
		Password:     bobPass,
		Scopes:       []string{adminAPIName},
	})
	requireRejected(t, out, flow.CodeInsufficientScope)
	require.Equal(t, flow.KindAuthorization, out.Rejection.Kind)
	require.Equal(t, flow.StateAuthenticated, out.Rejection.At)

	ok := h.passwordGrant(t, adminAPIName)
	require.True(t, ok.OK(), "%+v", ok.Rejection)
	require.Equal(t, []string{"administrator"}, ok.Tokens.AccessToken.Roles)

	// A client acting for itself holds no roles.
	svc := h.ctrl.Run(context.Background(), flow.Request{
		Endpoint:     flow.EndpointToken,
		GrantType:    domain.GrantClientCredentials,
		ClientID:     svcClientID,
		ClientSecret: svcSecret,
		Scopes:       []string{adminAPIName},
	})
	requireRejected(t, svc, flow.CodeInsufficientScope)
}

func TestDefaultScopesRequireUserRole(t *testing.T) {
	h := newHarness(t)

	for _, scope := range []string{"api1", "api2"} {
		out := h.ctrl.Run(context.Background(), flow.Request{
			Endpoint:  flow.EndpointToken,
			GrantType: domain.GrantPassword,
			ClientID:  service.FrontendClientID,
			Username:  "guest",
			Password:  guestPass,
			Scopes:    []string{scope},
		})
		requireRejected(t, out, flow.CodeInsufficientScope)
		require.Equal(t, flow.KindAuthorization, out.Rejection.Kind)
	}

	ok := h.ctrl.Run(context.Background(), flow.Request{
		Endpoint:  flow.EndpointToken,
		GrantType: domain.GrantPassword,
		ClientID:  service.FrontendClientID,
		Username:  "bob",
		Password:  bobPass,
		Scopes:    []string{"api1"},
	})
	require.True(t, ok.OK(), "%+v", ok.Rejection)
	require.Equal(t, []string{"user"}, ok.Tokens.AccessToken.Roles)
}

func TestPasswordGrantRejectsBadCredentials(t *testing.T) {
	h := newHarness(t)

	out := h.ctrl.Run(context.Background(), flow.Request{
		Endpoint:     flow.EndpointToken,
		GrantType:    domain.GrantPassword,
		ClientID:     cliClientID,
		ClientSecret: cliSecret,
		Username:     "alice",
		Password:     "nope",
	})
	requireRejected(t, out, flow.CodeInvalidGrant)

	missing := h.ctrl.Run(context.Background(), flow.Request{
		Endpoint:     flow.EndpointToken,
		GrantType:    domain.GrantPassword,
		ClientID:     cliClientID,
		ClientSecret: cliSecret,
	})
	requireRejected(t, missing, flow.CodeInvalidRequest)
}

func TestRefreshRotationIsExclusive(t *testing.T) {
	h := newHarness(t)

	out := h.passwordGrant(t, domain.ScopeOfflineAccess, "api1")
	require.True(t, out.OK(), "%+v", out.Rejection)
	require.NotNil(t, out.Tokens.RefreshToken)
	rt := out.Tokens.RefreshToken.Value

	const n = 8
	var (
		wg      sync.WaitGroup
		results = make([]flow.Outcome, n)
	)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = h.ctrl.Run(context.Background(), flow.Request{
				Endpoint:     flow.EndpointToken,
				GrantType:    domain.GrantRefreshToken,
				ClientID:     cliClientID,
				ClientSecret: cliSecret,
				RefreshToken: rt,
			})
		}()
	}
	wg.Wait()

	wins := 0
	for _, r := range results {
		if r.OK() {
			wins++
			require.NotNil(t, r.Tokens.RefreshToken)
			require.NotEqual(t, rt, r.Tokens.RefreshToken.Value)
			continue
		}
		require.Equal(t, flow.CodeInvalidGrant, r.Rejection.Code)
	}
	require.Equal(t, 1, wins)
}

func TestRefreshCannotWidenScopes(t *testing.T) {
	h := newHarness(t)

	out := h.passwordGrant(t, domain.ScopeOfflineAccess, "api1")
	require.True(t, out.OK())
	rt := out.Tokens.RefreshToken.Value

	wider := h.ctrl.Run(context.Background(), flow.Request{
		Endpoint:     flow.EndpointToken,
		GrantType:    domain.GrantRefreshToken,
		ClientID:     cliClientID,
		ClientSecret: cliSecret,
		RefreshToken: rt,
		Scopes:       []string{"api1", domain.ScopeProfile},
	})
	requireRejected(t, wider, flow.CodeInvalidScope)

	// The rejected request must not have consumed the token.
	narrower := h.ctrl.Run(context.Background(), flow.Request{
		Endpoint:     flow.EndpointToken,
		GrantType:    domain.GrantRefreshToken,
		ClientID:     cliClientID,
		ClientSecret: cliSecret,
		RefreshToken: rt,
		Scopes:       []string{domain.ScopeOfflineAccess},
	})
	require.True(t, narrower.OK(), "%+v", narrower.Rejection)
	require.Equal(t, []string{domain.ScopeOfflineAccess}, narrower.Tokens.Scopes)
	require.Empty(t, narrower.Tokens.AccessToken.Audience)
}

func TestImplicitFlow(t *testing.T) {
	h := newHarness(t)
	base := flow.Request{
		Endpoint:     flow.EndpointAuthorize,
		ResponseType: "token id_token",
		ClientID:     service.FrontendClientID,
		RedirectURI:  callbackURI,
		Scopes:       []string{domain.ScopeOpenID, "api2"},
		Subject:      h.alice.ID,
	}

	noNonce := h.ctrl.Run(context.Background(), base)
	requireRejected(t, noNonce, flow.CodeInvalidRequest)

	req := base
	req.Nonce = "abc"
	out := h.ctrl.Run(context.Background(), req)
	require.True(t, out.OK(), "%+v", out.Rejection)
	require.Equal(t, "implicit", out.Flow)
	require.NotNil(t, out.Tokens.IdentityToken)
	require.NotNil(t, out.Tokens.AccessToken)
	require.Nil(t, out.Tokens.RefreshToken)
	// resource_server_2 validates locally, so its tokens are encrypted.
	require.True(t, out.Tokens.AccessToken.Encrypted)
	require.True(t, jwtx.IsEncrypted(out.Tokens.AccessToken.Value))

	idOnly := req
	idOnly.ResponseType = "id_token"
	got := h.ctrl.Run(context.Background(), idOnly)
	require.True(t, got.OK())
	require.Nil(t, got.Tokens.AccessToken)
	require.NotNil(t, got.Tokens.IdentityToken)
}

func TestUnsupportedRequests(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name string
		req  flow.Request
		code string
	}{
		{"unknown grant", flow.Request{Endpoint: flow.EndpointToken, GrantType: "urn:custom", ClientID: cliClientID}, flow.CodeUnsupportedGrantType},
		{"missing grant", flow.Request{Endpoint: flow.EndpointToken, ClientID: cliClientID}, flow.CodeInvalidRequest},
		{"unknown response type", flow.Request{Endpoint: flow.EndpointAuthorize, ResponseType: "code token", ClientID: service.FrontendClientID}, flow.CodeUnsupportedResponseType},
		{"unknown client", flow.Request{Endpoint: flow.EndpointToken, GrantType: domain.GrantPassword, ClientID: "ghost"}, flow.CodeInvalidClient},
		{"grant not permitted", flow.Request{Endpoint: flow.EndpointToken, GrantType: domain.GrantClientCredentials, ClientID: cliClientID, ClientSecret: cliSecret}, flow.CodeInvalidClient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := h.ctrl.Run(context.Background(), tt.req)
			requireRejected(t, out, tt.code)
			require.True(t, out.State.Terminal())
		})
	}
}

// slowIssuer blocks access token issuance until the context ends.
type slowIssuer struct {
	flow.Issuer
}

func (s slowIssuer) IssueAccessToken(ctx context.Context, _, _ string, _, _, _ []string, _ time.Duration) (domain.Token, error) {
	<-ctx.Done()
	return domain.Token{}, ctx.Err()
}

func TestTimeoutIsTransient(t *testing.T) {
	h := newHarness(t)
	h.ctrl.Issuer = slowIssuer{Issuer: h.issuer}
	h.ctrl.Timeout = 100 * time.Millisecond

	out := h.ctrl.Run(context.Background(), flow.Request{
		Endpoint:     flow.EndpointAuthorize,
		ResponseType: "token",
		ClientID:     service.FrontendClientID,
		RedirectURI:  callbackURI,
		Scopes:       []string{"api1"},
		Subject:      h.alice.ID,
	})
	requireRejected(t, out, flow.CodeTemporarilyUnavailable)
	require.Equal(t, flow.KindTransient, out.Rejection.Kind)
	require.Equal(t, flow.StateScopesAuthorized, out.Rejection.At)
}

// failingIdentityIssuer records every access token it mints and then fails
// identity token issuance.
type failingIdentityIssuer struct {
	flow.Issuer
	minted *[]domain.Token
}

func (f failingIdentityIssuer) IssueAccessToken(ctx context.Context, subject, clientID string, audience, scopes, roles []string, ttl time.Duration) (domain.Token, error) {
	tok, err := f.Issuer.IssueAccessToken(ctx, subject, clientID, audience, scopes, roles, ttl)
	if err == nil {
		*f.minted = append(*f.minted, tok)
	}
	return tok, err
}

func (f failingIdentityIssuer) IssueIdentityToken(context.Context, string, string, map[string]any, time.Duration) (domain.Token, error) {
	return domain.Token{}, errors.New("signer unavailable")
}

func TestFailedIssuanceRevokesRecordedTokens(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	var minted []domain.Token
	h.ctrl.Issuer = failingIdentityIssuer{Issuer: h.issuer, minted: &minted}

	out := h.ctrl.Run(ctx, flow.Request{
		Endpoint:  flow.EndpointToken,
		GrantType: domain.GrantPassword,
		ClientID:  service.FrontendClientID,
		Username:  "alice",
		Password:  alicePass,
		Scopes:    []string{domain.ScopeOpenID, "api1"},
	})
	requireRejected(t, out, flow.CodeTemporarilyUnavailable)
	require.Equal(t, flow.KindTransient, out.Rejection.Kind)

	require.Len(t, minted, 1)
	rec, err := h.issuer.Ledger.GetToken(ctx, minted[0].ID)
	require.NoError(t, err)
	require.Equal(t, domain.TokenStatusRevoked, rec.Status)

	got := h.ctrl.Run(ctx, flow.Request{
		Endpoint:     flow.EndpointIntrospect,
		ClientID:     service.ResourceServerClientID,
		ClientSecret: "S3CR3T",
		Token:        minted[0].Value,
	})
	require.True(t, got.OK())
	require.False(t, got.Introspection.Active)
}

// grantedRoles overrides the roles the credential provider reports.
type grantedRoles struct {
	flow.CredentialProvider
	roles map[string][]string
}

func (g grantedRoles) GetRoles(ctx context.Context, subject string) ([]string, error) {
	if roles, ok := g.roles[subject]; ok {
		return roles, nil
	}
	return g.CredentialProvider.GetRoles(ctx, subject)
}

func TestRolesResolvedThroughCredentialProvider(t *testing.T) {
	h := newHarness(t)
	req := flow.Request{
		Endpoint:     flow.EndpointToken,
		GrantType:    domain.GrantPassword,
		ClientID:     cliClientID,
		ClientSecret: cliSecret,
		Username:     "bob",
		Password:     bobPass,
		Scopes:       []string{adminAPIName},
	}
	requireRejected(t, h.ctrl.Run(context.Background(), req), flow.CodeInsufficientScope)

	h.ctrl.Credentials = grantedRoles{
		CredentialProvider: h.ctrl.Credentials,
		roles:              map[string][]string{h.bob.ID: {domain.RoleAdministrator}},
	}
	out := h.ctrl.Run(context.Background(), req)
	require.True(t, out.OK(), "%+v", out.Rejection)
	require.Equal(t, []string{domain.RoleAdministrator}, out.Tokens.AccessToken.Roles)
}

func TestObserverSeesEveryRun(t *testing.T) {
	h := newHarness(t)

	h.passwordGrant(t, "api1")
	h.ctrl.Run(context.Background(), flow.Request{Endpoint: flow.EndpointToken})

	h.observed.mu.Lock()
	defer h.observed.mu.Unlock()
	require.Len(t, h.observed.outcomes, 2)
	require.True(t, h.observed.outcomes[0].OK())
	require.Equal(t, flow.StateRejected, h.observed.outcomes[1].State)
}
