package http

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/truecredit/authserver/internal/auth/domain"
	"github.com/truecredit/authserver/internal/auth/flow"
	"github.com/truecredit/authserver/internal/auth/service"
	"github.com/truecredit/authserver/pkg/authsdk"
	"github.com/truecredit/authserver/pkg/slogx"
)

// AuthorizeHandler serves the authorization endpoint for the code and
// implicit flows.
type AuthorizeHandler struct {
	Flow     *flow.Controller
	Tokens   *service.TokenIssuer
	Registry *service.RegistryService

	// Secure marks the session cookie Secure.
	Secure bool
}

// HandleGet processes GET requests to the authorization endpoint.
// Only an existing sign-in session can authenticate the user here.
//
//	@Summary		OAuth2 authorization endpoint (GET)
//	@Description	Starts the code or implicit flow for a user holding a session cookie.
//	@Description	Without a session the client is redirected back with error=login_required.
//	@Description
//	@Description	**PKCE:** public clients MUST send code_challenge; the method defaults to S256.
//	@Description
//	@Description	**Response:** the code flow redirects with code and state in the query; implicit flows
//	@Description	redirect with tokens in the fragment. Errors are redirected only to a registered redirect_uri.
//	@Tags			OAuth2
//	@Produce		json
//	@Param			response_type			query		string					true	"code, token, id_token or id_token token"
//	@Param			client_id				query		string					true	"OAuth2 client identifier"
//	@Param			redirect_uri			query		string					true	"Callback URI (must match a registered redirect URI)"
//	@Param			scope					query		string					false	"Space-delimited list of scopes"	example("openid profile api1")
//	@Param			state					query		string					false	"Opaque value echoed back to the client"
//	@Param			nonce					query		string					false	"Replay protection for id_token (required for implicit id_token)"
//	@Param			code_challenge			query		string					false	"PKCE code challenge (required for public clients)"
//	@Param			code_challenge_method	query		string					false	"PKCE method"	default(S256)	Enums(S256, plain)
//	@Success		302						{string}	string					"Redirect to redirect_uri"
//	@Failure		400						{object}	authsdk.ErrorResponse	"Unknown client or unregistered redirect_uri"
//	@Router			/connect/authorize [get]
func (h *AuthorizeHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	req := h.buildRequest(params)
	req.Subject = h.resolveSession(r)
	h.authorize(w, r, req, params, false)
}

// HandlePost processes POST requests carrying the user's credentials.
//
//	@Summary		OAuth2 authorization endpoint (POST)
//	@Description	Authenticates the user with username, password and an optional TOTP code, then continues
//	@Description	as the GET endpoint. Success also sets the sign-in session cookie.
//	@Tags			OAuth2
//	@Accept			x-www-form-urlencoded
//	@Produce		json
//	@Param			response_type			query		string					true	"code, token, id_token or id_token token"
//	@Param			client_id				query		string					true	"OAuth2 client identifier"
//	@Param			redirect_uri			query		string					true	"Callback URI (must match a registered redirect URI)"
//	@Param			scope					query		string					false	"Space-delimited list of scopes"
//	@Param			state					query		string					false	"Opaque value echoed back to the client"
//	@Param			nonce					query		string					false	"Replay protection for id_token"
//	@Param			code_challenge			query		string					false	"PKCE code challenge"
//	@Param			code_challenge_method	query		string					false	"PKCE method"	default(S256)	Enums(S256, plain)
//	@Param			username				formData	string					false	"Username"
//	@Param			password				formData	string					false	"Password"
//	@Param			otp						formData	string					false	"TOTP code"
//	@Success		302						{string}	string					"Redirect to redirect_uri"
//	@Failure		400						{object}	authsdk.ErrorResponse	"Unknown client or unregistered redirect_uri"
//	@Router			/connect/authorize [post]
func (h *AuthorizeHandler) HandlePost(w http.ResponseWriter, r *http.Request) {
	if !parseForm(w, r) {
		return
	}

	// r.Form merges the body over the query string.
	req := h.buildRequest(r.Form)
	req.Username = strings.TrimSpace(r.PostForm.Get("username"))
	req.Password = r.PostForm.Get("password")
	req.OTP = strings.TrimSpace(r.PostForm.Get("otp"))
	if req.Username == "" {
		req.Subject = h.resolveSession(r)
	}
	h.authorize(w, r, req, r.Form, req.Username != "")
}

func (h *AuthorizeHandler) buildRequest(v url.Values) flow.Request {
	get := func(key string) string { return strings.TrimSpace(v.Get(key)) }
	return flow.Request{
		Endpoint:            flow.EndpointAuthorize,
		ResponseType:        get("response_type"),
		ClientID:            get("client_id"),
		RedirectURI:         get("redirect_uri"),
		Scopes:              scopeParam(v),
		CodeChallenge:       get("code_challenge"),
		CodeChallengeMethod: get("code_challenge_method"),
		Nonce:               get("nonce"),
	}
}

func (h *AuthorizeHandler) authorize(w http.ResponseWriter, r *http.Request, req flow.Request, params url.Values, newSession bool) {
	ctx := r.Context()
	state := params.Get("state")
	fragment := domain.NormalizeResponseType(req.ResponseType) != domain.ResponseTypeCode

	out := h.Flow.Run(ctx, req)
	if out.Rejection != nil {
		// RFC 6749 section 4.1.2.1: never redirect to an unverified URI.
		if !h.redirectable(ctx, req.ClientID, req.RedirectURI) {
			writeRejection(w, out.Rejection)
			return
		}
		v := url.Values{"error": {out.Rejection.Code}}
		if out.Rejection.Description != "" {
			v.Set("error_description", out.Rejection.Description)
		}
		h.redirect(w, r, req.RedirectURI, v, state, fragment)
		return
	}

	if newSession && out.Principal != nil {
		if err := h.startSession(ctx, w, out.Principal.Subject); err != nil {
			slogx.FromContext(ctx).Error("failed to start session", slog.Any("error", err))
			authsdk.ErrServerError.WriteError(w)
			return
		}
	}

	v := url.Values{}
	if out.Code != "" {
		v.Set("code", out.Code)
	} else {
		set := out.Tokens
		if set.AccessToken != nil {
			v.Set("access_token", set.AccessToken.Value)
			v.Set("token_type", "Bearer")
			v.Set("expires_in", strconv.Itoa(int(set.AccessToken.TTL().Seconds())))
		}
		if set.IdentityToken != nil {
			v.Set("id_token", set.IdentityToken.Value)
		}
		v.Set("scope", strings.Join(set.Scopes, " "))
	}
	h.redirect(w, r, req.RedirectURI, v, state, fragment)
}

func (h *AuthorizeHandler) redirectable(ctx context.Context, clientID, redirectURI string) bool {
	if clientID == "" || redirectURI == "" {
		return false
	}
	c, err := h.Registry.FindClientByID(ctx, clientID)
	if err != nil {
		return false
	}
	return c.AllowsRedirectURI(redirectURI)
}

// redirect sends v to the client in the query (code flow) or the fragment
// (implicit flows).
func (h *AuthorizeHandler) redirect(w http.ResponseWriter, r *http.Request, base string, v url.Values, state string, fragment bool) {
	if state != "" {
		v.Set("state", state)
	}
	u, err := url.Parse(base)
	if err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}
	u.Fragment = ""
	if !fragment {
		q := u.Query()
		for k, vals := range v {
			q[k] = vals
		}
		u.RawQuery = q.Encode()
		http.Redirect(w, r, u.String(), http.StatusFound)
		return
	}
	http.Redirect(w, r, u.String()+"#"+v.Encode(), http.StatusFound)
}

func (h *AuthorizeHandler) resolveSession(r *http.Request) string {
	cookie, err := r.Cookie(authsdk.SessionCookieName)
	if err != nil || cookie.Value == "" {
		return ""
	}
	subject, err := h.Tokens.ResolveSession(r.Context(), cookie.Value)
	if err != nil {
		slogx.FromContext(r.Context()).Debug("ignoring unusable session", slog.Any("error", err))
		return ""
	}
	return subject
}

func (h *AuthorizeHandler) startSession(ctx context.Context, w http.ResponseWriter, subject string) error {
	sess, err := h.Tokens.IssueSession(ctx, subject)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     authsdk.SessionCookieName,
		Value:    sess.Value,
		Path:     "/",
		MaxAge:   int(sess.TTL().Seconds()),
		HttpOnly: true,
		Secure:   h.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func clearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     authsdk.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
