package authsdk

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Endpoint paths.
const (
	PathAuthorize     = "/connect/authorize"
	PathToken         = "/connect/token"
	PathIntrospect    = "/connect/introspect"
	PathRevoke        = "/connect/revoke"
	PathUserInfo      = "/connect/userinfo"
	PathLogout        = "/connect/logout"
	PathJWKS          = "/.well-known/jwks.json"
	PathDiscovery     = "/.well-known/openid-configuration"
	PathLiveness      = "/livez"
	PathReadiness     = "/readyz"
	SessionCookieName = "auth_session"
)

// PasswordGrant exchanges resource owner credentials for tokens. otp is the
// current TOTP code for accounts with a second factor, or empty.
func (c *SDKClient) PasswordGrant(
	ctx context.Context,
	auth ClientAuth,
	username, password string,
	scopes []string,
	otp ...string,
) (*TokenResponse, error) {
	data := url.Values{
		"grant_type": {"password"},
		"username":   {username},
		"password":   {password},
	}
	if len(otp) > 0 && otp[0] != "" {
		data.Set("otp", otp[0])
	}
	setScopes(data, scopes)
	return c.requestToken(ctx, auth, data)
}

// RefreshGrant rotates refreshToken. A nil scopes keeps the original grant.
func (c *SDKClient) RefreshGrant(
	ctx context.Context,
	auth ClientAuth,
	refreshToken string,
	scopes []string,
) (*TokenResponse, error) {
	data := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}
	setScopes(data, scopes)
	return c.requestToken(ctx, auth, data)
}

// ClientCredentialsGrant requests an access token for a confidential client
// acting on its own behalf. No refresh token is issued.
func (c *SDKClient) ClientCredentialsGrant(
	ctx context.Context,
	auth ClientAuth,
	scopes []string,
) (*TokenResponse, error) {
	data := url.Values{"grant_type": {"client_credentials"}}
	setScopes(data, scopes)
	return c.requestToken(ctx, auth, data)
}

// ExchangeAuthorizationCode redeems code. verifier is the PKCE verifier when
// a challenge was sent.
func (c *SDKClient) ExchangeAuthorizationCode(
	ctx context.Context,
	auth ClientAuth,
	code, redirectURI, verifier string,
) (*TokenResponse, error) {
	data := url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {redirectURI},
	}
	if verifier != "" {
		data.Set("code_verifier", verifier)
	}
	return c.requestToken(ctx, auth, data)
}

// RevokeToken revokes an access or refresh token (RFC 7009). Unknown tokens
// are not an error.
func (c *SDKClient) RevokeToken(ctx context.Context, auth ClientAuth, token string) error {
	resp, err := c.postForm(ctx, PathRevoke, auth, url.Values{"token": {token}})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return parseErrorResponse(resp, body)
	}
	return nil
}

func (c *SDKClient) requestToken(ctx context.Context, auth ClientAuth, data url.Values) (*TokenResponse, error) {
	resp, err := c.postForm(ctx, PathToken, auth, data)
	if err != nil {
		return nil, err
	}

	var tokenResp TokenResponse
	if err := decodeJSON(resp, &tokenResp, http.StatusOK); err != nil {
		return nil, err
	}
	return &tokenResp, nil
}

func setScopes(data url.Values, scopes []string) {
	if len(scopes) > 0 {
		data.Set("scope", strings.Join(scopes, " "))
	}
}
