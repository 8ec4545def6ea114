package authsdk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/truecredit/authserver/pkg/cryptox"
)

// PKCEChallenge is a verifier and its S256 challenge (RFC 7636).
type PKCEChallenge struct {
	Verifier  string
	Challenge string
	Method    string
}

// GeneratePKCEChallenge returns a fresh 256-bit verifier and its challenge.
func GeneratePKCEChallenge() (*PKCEChallenge, error) {
	verifier, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return nil, fmt.Errorf("failed to generate PKCE verifier: %w", err)
	}
	return &PKCEChallenge{
		Verifier:  verifier,
		Challenge: cryptox.S256Challenge(verifier),
		Method:    "S256",
	}, nil
}

// AuthorizeRequest holds the authorization endpoint parameters.
type AuthorizeRequest struct {
	// ResponseType is "code", "token", "id_token" or "id_token token".
	ResponseType string
	ClientID     string
	RedirectURI  string
	Scopes       []string
	State        string
	Nonce        string
	PKCE         *PKCEChallenge
}

func (r AuthorizeRequest) values() url.Values {
	v := url.Values{}
	rt := r.ResponseType
	if rt == "" {
		rt = "code"
	}
	v.Set("response_type", rt)
	v.Set("client_id", r.ClientID)
	v.Set("redirect_uri", r.RedirectURI)
	setScopes(v, r.Scopes)
	if r.State != "" {
		v.Set("state", r.State)
	}
	if r.Nonce != "" {
		v.Set("nonce", r.Nonce)
	}
	if r.PKCE != nil {
		v.Set("code_challenge", r.PKCE.Challenge)
		v.Set("code_challenge_method", r.PKCE.Method)
	}
	return v
}

// BuildAuthorizeURL returns the URL to send a browser to.
func (c *SDKClient) BuildAuthorizeURL(req AuthorizeRequest) string {
	return c.url(PathAuthorize) + "?" + req.values().Encode()
}

// Credentials are the sign-in fields posted to the authorization endpoint.
type Credentials struct {
	Username string
	Password string
	OTP      string
}

// AuthorizeResult is what the authorization endpoint redirected back with.
type AuthorizeResult struct {
	// Code is set for the code flow.
	Code string

	// Tokens is set for implicit flows.
	Tokens *TokenResponse

	State string

	// Session is the sign-in cookie value, reusable with AuthorizeWithSession.
	Session string
}

// Authorize signs in with creds and returns the authorization response.
// Errors redirected back to the client come back as *OAuth2Error.
func (c *SDKClient) Authorize(ctx context.Context, req AuthorizeRequest, creds Credentials) (*AuthorizeResult, error) {
	form := url.Values{
		"username": {creds.Username},
		"password": {creds.Password},
	}
	if creds.OTP != "" {
		form.Set("otp", creds.OTP)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.BuildAuthorizeURL(req), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.doAuthorize(httpReq)
}

// AuthorizeWithSession repeats an authorization request with an existing
// sign-in session and no credentials.
func (c *SDKClient) AuthorizeWithSession(ctx context.Context, req AuthorizeRequest, session string) (*AuthorizeResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BuildAuthorizeURL(req), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.AddCookie(&http.Cookie{Name: SessionCookieName, Value: session})
	return c.doAuthorize(httpReq)
}

func (c *SDKClient) doAuthorize(req *http.Request) (*AuthorizeResult, error) {
	resp, err := c.noRedirect().Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusFound && resp.StatusCode != http.StatusSeeOther {
		body, _ := io.ReadAll(resp.Body)
		return nil, parseErrorResponse(resp, body)
	}

	res, err := ParseAuthorizationCallback(resp.Header.Get("Location"))
	if err != nil {
		return nil, err
	}
	for _, ck := range resp.Cookies() {
		if ck.Name == SessionCookieName {
			res.Session = ck.Value
		}
	}
	return res, nil
}

// ParseAuthorizationCallback reads an authorization response from the
// redirect URL: the code flow uses the query, implicit flows the fragment.
func ParseAuthorizationCallback(callbackURL string) (*AuthorizeResult, error) {
	if callbackURL == "" {
		return nil, errors.New("redirect response missing Location header")
	}
	u, err := url.Parse(callbackURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redirect URL: %w", err)
	}

	params := u.Query()
	if u.Fragment != "" {
		if params, err = url.ParseQuery(u.Fragment); err != nil {
			return nil, fmt.Errorf("failed to parse redirect fragment: %w", err)
		}
	}

	if code := params.Get("error"); code != "" {
		return nil, &OAuth2Error{
			StatusCode:  http.StatusFound,
			Code:        code,
			Description: params.Get("error_description"),
		}
	}

	res := &AuthorizeResult{Code: params.Get("code"), State: params.Get("state")}
	if at, idt := params.Get("access_token"), params.Get("id_token"); at != "" || idt != "" {
		expiresIn, _ := strconv.Atoi(params.Get("expires_in"))
		res.Tokens = &TokenResponse{
			AccessToken: at,
			TokenType:   params.Get("token_type"),
			ExpiresIn:   expiresIn,
			IDToken:     idt,
			Scope:       params.Get("scope"),
		}
	}
	if res.Code == "" && res.Tokens == nil {
		return nil, errors.New("redirect carries neither a code nor tokens")
	}
	return res, nil
}

// Logout ends the sign-in session and returns where the server redirected.
func (c *SDKClient) Logout(ctx context.Context, clientID, session, postLogoutRedirectURI, state string) (string, error) {
	v := url.Values{"client_id": {clientID}}
	if postLogoutRedirectURI != "" {
		v.Set("post_logout_redirect_uri", postLogoutRedirectURI)
	}
	if state != "" {
		v.Set("state", state)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(PathLogout)+"?"+v.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	if session != "" {
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: session})
	}

	resp, err := c.noRedirect().Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusFound, http.StatusSeeOther:
		return resp.Header.Get("Location"), nil
	case http.StatusOK, http.StatusNoContent:
		return "", nil
	}
	body, _ := io.ReadAll(resp.Body)
	return "", parseErrorResponse(resp, body)
}
