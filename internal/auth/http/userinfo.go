package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/truecredit/authserver/internal/auth/domain"
	"github.com/truecredit/authserver/internal/auth/service"
	"github.com/truecredit/authserver/internal/auth/store"
	"github.com/truecredit/authserver/pkg/authsdk"
	"github.com/truecredit/authserver/pkg/httpx"
	"github.com/truecredit/authserver/pkg/slogx"
)

// UserInfoHandler releases the identity claims the access token's scopes
// allow, named through the claim map.
type UserInfoHandler struct {
	Users  *service.UserDirectory
	Claims domain.ClaimMap
}

// ServeHTTP handles the OpenID Connect UserInfo endpoint.
//
//	@Summary		Get user information
//	@Description	Returns the claims released by the token's scopes: sub always; name and preferred_username
//	@Description	with profile; email with email; role with roles. Requires the openid scope.
//	@Tags			OpenID Connect
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.UserInfoResponse	"Identity claims"
//	@Failure		401	{object}	authsdk.ErrorResponse		"Invalid, revoked or missing access token"
//	@Failure		403	{object}	authsdk.ErrorResponse		"Token lacks the openid scope"
//	@Router			/connect/userinfo [get].
func (h *UserInfoHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	claims, ok := httpx.ClaimsFromContext(ctx)
	if !ok || claims.Subject == "" {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	p, err := h.Users.FindUser(ctx, claims.Subject)
	switch {
	case errors.Is(err, store.ErrNotFound):
		authsdk.ErrInvalidToken.WithDescription("subject no longer exists").WriteError(w)
		return
	case err != nil:
		log.Error("failed to load user", slog.String("sub", claims.Subject), slog.Any("error", err))
		authsdk.ErrTemporarilyUnavailable.WriteError(w)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.UserInfoResponse(h.Claims.ProfileClaims(p, claims.Scopes())))
}
