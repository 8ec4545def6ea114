//go:build e2e

package auth_test

import (
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/truecredit/authserver/pkg/authsdk"
)

// TestAuthorizationCodeFlow signs alice in, exchanges the code with PKCE,
// reads userinfo and rotates the refresh token.
func TestAuthorizationCodeFlow(t *testing.T) {
	c := setupAuthContainer(t, nil)
	ctx := t.Context()

	pkce, err := authsdk.GeneratePKCEChallenge()
	require.NoError(t, err)

	req := authsdk.AuthorizeRequest{
		ResponseType: "code",
		ClientID:     aurelia.ClientID,
		RedirectURI:  callbackURI,
		Scopes:       []string{"openid", "profile", "offline_access", "api1"},
		State:        "xyz",
		Nonce:        "n-0S6_WzA2Mj",
		PKCE:         pkce,
	}
	res, err := c.SDK.Authorize(ctx, req, authsdk.Credentials{Username: aliceUsername, Password: alicePassword})
	require.NoError(t, err)
	require.NotEmpty(t, res.Code)
	require.Equal(t, "xyz", res.State)
	require.NotEmpty(t, res.Session)

	tok, err := c.SDK.ExchangeAuthorizationCode(ctx, aurelia, res.Code, callbackURI, pkce.Verifier)
	require.NoError(t, err)
	require.NotEmpty(t, tok.AccessToken)
	require.NotEmpty(t, tok.IDToken)
	require.NotEmpty(t, tok.RefreshToken)

	_, err = c.SDK.ExchangeAuthorizationCode(ctx, aurelia, res.Code, callbackURI, pkce.Verifier)
	requireOAuthError(t, err, authsdk.ErrorCodeInvalidGrant)

	info, err := c.SDK.UserInfo(ctx, tok.AccessToken)
	require.NoError(t, err)
	require.Equal(t, aliceUsername, info.Subject())
	require.Equal(t, "Alice", info["name"])

	// Two concurrent rotations of the same refresh token: exactly one wins.
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		wins    []*authsdk.TokenResponse
		lossErr []error
	)
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			next, err := c.SDK.RefreshGrant(ctx, aurelia, tok.RefreshToken, nil)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				lossErr = append(lossErr, err)
				return
			}
			wins = append(wins, next)
		}()
	}
	wg.Wait()
	require.Len(t, wins, 1)
	require.Len(t, lossErr, 1)
	requireOAuthError(t, lossErr[0], authsdk.ErrorCodeInvalidGrant)

	_, err = c.SDK.RefreshGrant(ctx, aurelia, tok.RefreshToken, nil)
	requireOAuthError(t, err, authsdk.ErrorCodeInvalidGrant)

	_, err = c.SDK.RefreshGrant(ctx, aurelia, wins[0].RefreshToken, nil)
	require.NoError(t, err)
}

// TestSessionAndLogout reuses the sign-in cookie and then ends it.
func TestSessionAndLogout(t *testing.T) {
	c := setupAuthContainer(t, nil)
	ctx := t.Context()

	req := authsdk.AuthorizeRequest{
		ResponseType: "id_token token",
		ClientID:     aurelia.ClientID,
		RedirectURI:  callbackURI,
		Scopes:       []string{"openid", "api1"},
		Nonce:        "nonce-1",
	}

	_, err := c.SDK.AuthorizeWithSession(ctx, req, "")
	requireOAuthError(t, err, authsdk.ErrorCodeLoginRequired)

	res, err := c.SDK.Authorize(ctx, req, authsdk.Credentials{Username: aliceUsername, Password: alicePassword})
	require.NoError(t, err)
	require.NotNil(t, res.Tokens)
	require.NotEmpty(t, res.Tokens.IDToken)

	again, err := c.SDK.AuthorizeWithSession(ctx, req, res.Session)
	require.NoError(t, err)
	require.NotEmpty(t, again.Tokens.AccessToken)

	loc, err := c.SDK.Logout(ctx, aurelia.ClientID, res.Session, postLogoutURI, "bye")
	require.NoError(t, err)
	u, err := url.Parse(loc)
	require.NoError(t, err)
	require.Equal(t, "bye", u.Query().Get("state"))

	_, err = c.SDK.AuthorizeWithSession(ctx, req, res.Session)
	requireOAuthError(t, err, authsdk.ErrorCodeLoginRequired)

	active, err := c.SDK.Introspect(ctx, rs1, again.Tokens.AccessToken)
	require.NoError(t, err)
	require.False(t, active.Active, "logout revokes the subject's tokens for the client")

	_, err = c.SDK.Logout(ctx, aurelia.ClientID, "", "https://evil.example/", "")
	requireOAuthError(t, err, authsdk.ErrorCodeInvalidRequest)
}

// TestBadCredentials keeps failed sign-ins on the client's redirect.
func TestBadCredentials(t *testing.T) {
	c := setupAuthContainer(t, nil)
	ctx := t.Context()

	_, err := c.SDK.PasswordGrant(ctx, aurelia, aliceUsername, "wrong", []string{"api1"})
	requireOAuthError(t, err, authsdk.ErrorCodeInvalidGrant)

	_, err = c.SDK.PasswordGrant(ctx, authsdk.ClientAuth{ClientID: "nobody"}, aliceUsername, alicePassword, nil)
	oe := requireOAuthError(t, err, authsdk.ErrorCodeInvalidClient)
	require.Equal(t, 401, oe.StatusCode)
}
