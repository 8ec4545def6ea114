package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/truecredit/authserver/internal/auth/service"
	"github.com/truecredit/authserver/internal/auth/store"
	"github.com/truecredit/authserver/pkg/authsdk"
	"github.com/truecredit/authserver/pkg/slogx"
)

// RevokeHandler serves POST /connect/revoke (RFC 7009).
type RevokeHandler struct {
	Tokens   *service.TokenIssuer
	Registry *service.RegistryService
}

// ServeHTTP godoc
//
//	@Summary		OAuth2 Token Revocation Endpoint
//	@Description	Revokes an access or refresh token held by the calling client (RFC 7009).
//	@Description	Unknown tokens and tokens of other clients are ignored and still answered with 200.
//	@Tags			OAuth2
//	@Accept			application/x-www-form-urlencoded
//	@Produce		json
//	@Security		ClientAuth
//	@Param			token			formData	string					true	"The token to revoke"
//	@Param			token_type_hint	formData	string					false	"Ignored; the token format is detected"	Enums(access_token, refresh_token)
//	@Param			client_id		formData	string					false	"Client identifier, unless sent with HTTP Basic"
//	@Param			client_secret	formData	string					false	"Client secret for confidential clients"
//	@Success		200				{string}	string					"Token revoked or ignored"
//	@Failure		400				{object}	authsdk.ErrorResponse	"error, error_description"
//	@Failure		401				{object}	authsdk.ErrorResponse	"error, error_description"
//	@Router			/connect/revoke [post].
func (h *RevokeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !parseForm(w, r) {
		return
	}
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	token := strings.TrimSpace(r.PostForm.Get("token"))
	if token == "" {
		authsdk.ErrInvalidRequest.WithDescription("token is required").WriteError(w)
		return
	}

	clientID, secret := clientCredentials(r)
	client, err := h.Registry.FindClientByID(ctx, clientID)
	switch {
	case errors.Is(err, store.ErrNotFound) || clientID == "":
		authsdk.ErrInvalidClient.WriteError(w)
		return
	case err != nil:
		log.Error("revoke: client lookup failed", slog.Any("error", err))
		authsdk.ErrServerError.WriteError(w)
		return
	}
	if err := h.Registry.VerifyClientSecret(client, secret); err != nil {
		authsdk.ErrInvalidClient.WriteError(w)
		return
	}

	if err := h.Tokens.Revoke(ctx, token, client.ID); err != nil {
		log.Error("revoke failed", slog.Any("error", err))
		authsdk.ErrTemporarilyUnavailable.WriteError(w)
		return
	}
	w.WriteHeader(http.StatusOK)
}
