package http

import (
	"net/http"
	"strings"

	"github.com/truecredit/authserver/internal/auth/flow"
	"github.com/truecredit/authserver/pkg/httpx"
)

// TokenHandler serves POST /connect/token.
// Accepts application/x-www-form-urlencoded per the RFC 6749 framework.
type TokenHandler struct {
	Flow *flow.Controller
}

// ServeHTTP godoc
//
//	@Summary		OAuth2 Token Endpoint
//	@Description	Issues tokens for the authorization_code, refresh_token, client_credentials and password grants.
//	@Description	Clients authenticate with client_id/client_secret form fields or HTTP Basic.
//	@Description	A refresh_token is returned when offline_access is granted; an id_token when openid is granted.
//	@Tags			OAuth2
//	@Accept			application/x-www-form-urlencoded
//	@Produce		json
//	@Security		ClientAuth
//	@Param			grant_type		formData	string					true	"Grant type"	Enums(authorization_code, refresh_token, client_credentials, password)
//	@Param			code			formData	string					false	"Authorization code (authorization_code grant)"
//	@Param			redirect_uri	formData	string					false	"Redirect URI used at the authorization endpoint"
//	@Param			code_verifier	formData	string					false	"PKCE code_verifier"
//	@Param			refresh_token	formData	string					false	"Refresh token (refresh_token grant)"
//	@Param			username		formData	string					false	"Username (password grant)"
//	@Param			password		formData	string					false	"Password (password grant)"
//	@Param			otp				formData	string					false	"TOTP code when the user enrolled a second factor"
//	@Param			client_id		formData	string					false	"Client identifier, unless sent with HTTP Basic"
//	@Param			client_secret	formData	string					false	"Client secret for confidential clients"
//	@Param			scope			formData	string					false	"Space-delimited list of scopes"
//	@Success		200				{object}	authsdk.TokenResponse	"access_token, token_type, expires_in, refresh_token, id_token, scope"
//	@Failure		400				{object}	authsdk.ErrorResponse	"error, error_description"
//	@Failure		401				{object}	authsdk.ErrorResponse	"error, error_description"
//	@Failure		403				{object}	authsdk.ErrorResponse	"error, error_description"
//	@Failure		503				{object}	authsdk.ErrorResponse	"error, error_description"
//	@Header			200				{string}	Cache-Control			"no-store"
//	@Header			200				{string}	Pragma					"no-cache"
//	@Router			/connect/token [post].
func (h *TokenHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !parseForm(w, r) {
		return
	}

	clientID, clientSecret := clientCredentials(r)
	form := r.PostForm
	out := h.Flow.Run(r.Context(), flow.Request{
		Endpoint:     flow.EndpointToken,
		GrantType:    strings.TrimSpace(form.Get("grant_type")),
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURI:  strings.TrimSpace(form.Get("redirect_uri")),
		Scopes:       scopeParam(form),
		Code:         strings.TrimSpace(form.Get("code")),
		CodeVerifier: strings.TrimSpace(form.Get("code_verifier")),
		RefreshToken: strings.TrimSpace(form.Get("refresh_token")),
		Username:     strings.TrimSpace(form.Get("username")),
		Password:     form.Get("password"),
		OTP:          strings.TrimSpace(form.Get("otp")),
	})

	if out.Rejection != nil {
		writeRejection(w, out.Rejection)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, tokenResponse(out.Tokens))
}
