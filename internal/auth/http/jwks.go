package http

import (
	"net/http"

	"github.com/truecredit/authserver/pkg/authsdk"
	"github.com/truecredit/authserver/pkg/httpx"
	"github.com/truecredit/authserver/pkg/jwtx"
)

// JWKSHandler exposes the JSON Web Key Set for public key discovery. The
// symmetric encryption key is never published.
//
//	@Summary		Get JWKS
//	@Description	Returns the JSON Web Key Set used to verify JWTs.
//	@Tags			well-known
//	@Produce		json
//	@Success		200	{object}	authsdk.JWKSResponse	"The JSON Web Key Set"
//	@Router			/.well-known/jwks.json [get].
func JWKSHandler(keys *jwtx.KeySet) http.HandlerFunc {
	jwks := authsdk.JWKSResponse(keys.PublicJWKS())
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, jwks)
	}
}
