package http

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/truecredit/authserver/internal/auth/domain"
	"github.com/truecredit/authserver/internal/auth/flow"
	"github.com/truecredit/authserver/pkg/authsdk"
	"github.com/truecredit/authserver/pkg/httpx"
)

// parseForm accepts only form-urlencoded bodies. It writes the error
// response itself and reports whether the caller may proceed.
func parseForm(w http.ResponseWriter, r *http.Request) bool {
	if ct := r.Header.Get("Content-Type"); ct != "" &&
		!strings.HasPrefix(ct, "application/x-www-form-urlencoded") {
		authsdk.ErrInvalidContentType.WriteError(w)
		return false
	}
	if err := r.ParseForm(); err != nil {
		authsdk.ErrInvalidFormBody.WriteError(w)
		return false
	}
	return true
}

// clientCredentials reads client authentication from HTTP Basic
// (RFC 6749 section 2.3.1, form-encoded values) or from the form body.
func clientCredentials(r *http.Request) (id, secret string) {
	if user, pass, ok := r.BasicAuth(); ok {
		if u, err := url.QueryUnescape(user); err == nil {
			user = u
		}
		if p, err := url.QueryUnescape(pass); err == nil {
			pass = p
		}
		return user, pass
	}
	return strings.TrimSpace(r.Form.Get("client_id")), r.Form.Get("client_secret")
}

// scopeParam returns nil when no scope parameter was sent at all, so that
// "absent" and "empty" stay distinguishable.
func scopeParam(v url.Values) []string {
	if _, ok := v["scope"]; !ok {
		return nil
	}
	scopes := httpx.ParseSpaceDelimitedFields(v.Get("scope"))
	if scopes == nil {
		scopes = []string{}
	}
	return scopes
}

func writeRejection(w http.ResponseWriter, rej *flow.Rejection) {
	authsdk.ErrorForCode(rej.Code, rej.Description).WriteError(w)
}

func tokenResponse(set domain.TokenSet) authsdk.TokenResponse {
	resp := authsdk.TokenResponse{
		TokenType: "Bearer",
		Scope:     strings.Join(set.Scopes, " "),
	}
	if set.AccessToken != nil {
		resp.AccessToken = set.AccessToken.Value
		resp.ExpiresIn = int(set.AccessToken.TTL().Seconds())
	}
	if set.RefreshToken != nil {
		resp.RefreshToken = set.RefreshToken.Value
	}
	if set.IdentityToken != nil {
		resp.IDToken = set.IdentityToken.Value
	}
	return resp
}
