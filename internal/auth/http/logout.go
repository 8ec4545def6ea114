package http

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/truecredit/authserver/internal/auth/domain"
	"github.com/truecredit/authserver/internal/auth/service"
	"github.com/truecredit/authserver/internal/auth/store"
	"github.com/truecredit/authserver/pkg/authsdk"
	"github.com/truecredit/authserver/pkg/slogx"
)

// LogoutHandler ends the sign-in session (RP-initiated logout).
type LogoutHandler struct {
	Tokens   *service.TokenIssuer
	Registry *service.RegistryService
	Secure   bool
}

// ServeHTTP godoc
//
//	@Summary		End session endpoint
//	@Description	Revokes the sign-in session and the user's tokens for client_id, clears the session cookie,
//	@Description	and redirects to post_logout_redirect_uri when it is registered for the client.
//	@Tags			OpenID Connect
//	@Param			client_id					query		string					false	"Client the user is logging out of"
//	@Param			post_logout_redirect_uri	query		string					false	"Registered post-logout redirect URI"
//	@Param			state						query		string					false	"Echoed back on the redirect"
//	@Success		204							{string}	string					"Logged out"
//	@Success		302							{string}	string					"Redirect to post_logout_redirect_uri"
//	@Failure		400							{object}	authsdk.ErrorResponse	"Unregistered post_logout_redirect_uri"
//	@Failure		401							{object}	authsdk.ErrorResponse	"Unknown client or client without the logout permission"
//	@Router			/connect/logout [get]
//	@Router			/connect/logout [post]
func (h *LogoutHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost && !parseForm(w, r) {
		return
	}
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	clientID := strings.TrimSpace(r.FormValue("client_id"))
	redirectURI := strings.TrimSpace(r.FormValue("post_logout_redirect_uri"))
	state := r.FormValue("state")

	var client domain.Client
	if clientID != "" {
		c, err := h.Registry.FindClientByID(ctx, clientID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			authsdk.ErrInvalidClient.WithDescription("unknown client").WriteError(w)
			return
		case err != nil:
			log.Error("failed to load client", slog.Any("error", err))
			authsdk.ErrTemporarilyUnavailable.WriteError(w)
			return
		case !c.HasPermission(domain.PermLogoutEndpoint):
			authsdk.ErrInvalidClient.WithDescription("client may not use the logout endpoint").WriteError(w)
			return
		}
		client = c
	}

	if redirectURI != "" && (clientID == "" || !client.AllowsPostLogoutRedirectURI(redirectURI)) {
		authsdk.ErrInvalidRequest.
			WithDescription("post_logout_redirect_uri is not registered for the client").
			WriteError(w)
		return
	}

	var session, subject string
	if cookie, err := r.Cookie(authsdk.SessionCookieName); err == nil {
		session = cookie.Value
		if subject, err = h.Tokens.ResolveSession(ctx, session); err != nil {
			log.Debug("logout with unusable session", slog.Any("error", err))
		}
	}
	if err := h.Tokens.EndSession(ctx, session, subject, clientID); err != nil {
		log.Error("failed to end session", slog.Any("error", err))
		authsdk.ErrTemporarilyUnavailable.WriteError(w)
		return
	}
	clearSessionCookie(w, h.Secure)

	if redirectURI == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	u, err := url.Parse(redirectURI)
	if err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}
	if state != "" {
		q := u.Query()
		q.Set("state", state)
		u.RawQuery = q.Encode()
	}
	http.Redirect(w, r, u.String(), http.StatusFound)
}
