package http

import (
	"net/http"
	"strings"

	"github.com/truecredit/authserver/internal/auth/domain"
	"github.com/truecredit/authserver/internal/auth/flow"
	"github.com/truecredit/authserver/pkg/authsdk"
	"github.com/truecredit/authserver/pkg/httpx"
)

// IntrospectHandler serves POST /connect/introspect following RFC 7662.
// Callers authenticate as confidential clients and only learn about tokens
// issued for them.
type IntrospectHandler struct {
	Flow *flow.Controller
}

// ServeHTTP godoc
//
//	@Summary		OAuth2 Token Introspection Endpoint
//	@Description	Reports whether an access or refresh token is active (RFC 7662). Tokens whose audience does
//	@Description	not include the calling client are reported inactive.
//	@Tags			OAuth2
//	@Accept			application/x-www-form-urlencoded
//	@Produce		json
//	@Security		ClientAuth
//	@Param			token			formData	string							true	"The token to introspect"
//	@Param			token_type_hint	formData	string							false	"Ignored; the token format is detected"	Enums(access_token, refresh_token)
//	@Param			client_id		formData	string							false	"Client identifier, unless sent with HTTP Basic"
//	@Param			client_secret	formData	string							false	"Client secret"
//	@Success		200				{object}	authsdk.IntrospectionResponse	"Token introspection result"
//	@Failure		400				{object}	authsdk.ErrorResponse			"error, error_description"
//	@Failure		401				{object}	authsdk.ErrorResponse			"error, error_description"
//	@Header			200				{string}	Cache-Control					"no-store"
//	@Header			200				{string}	Pragma							"no-cache"
//	@Router			/connect/introspect [post].
func (h *IntrospectHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !parseForm(w, r) {
		return
	}

	clientID, clientSecret := clientCredentials(r)
	out := h.Flow.Run(r.Context(), flow.Request{
		Endpoint:     flow.EndpointIntrospect,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Token:        strings.TrimSpace(r.PostForm.Get("token")),
	})
	if out.Rejection != nil {
		writeRejection(w, out.Rejection)
		return
	}

	var in domain.Introspection
	if out.Introspection != nil {
		in = *out.Introspection
	}
	httpx.WriteJSON(w, http.StatusOK, introspectionResponse(in))
}

func introspectionResponse(in domain.Introspection) authsdk.IntrospectionResponse {
	if !in.Active {
		return authsdk.IntrospectionResponse{}
	}
	resp := authsdk.IntrospectionResponse{
		Active:    true,
		Scope:     in.Scope,
		ClientID:  in.ClientID,
		TokenType: in.TokenType,
		Sub:       in.Subject,
		Aud:       in.Audience,
		Iss:       in.Issuer,
		Jti:       in.JTI,
		Roles:     in.Roles,
	}
	if !in.ExpiresAt.IsZero() {
		resp.Exp = in.ExpiresAt.Unix()
	}
	if !in.IssuedAt.IsZero() {
		resp.Iat = in.IssuedAt.Unix()
	}
	return resp
}
