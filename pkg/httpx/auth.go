package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/truecredit/authserver/pkg/jwtx"
	"github.com/truecredit/authserver/pkg/slogx"
)

type ctxKey struct{}

// ClaimsFromContext returns the claims attached by AuthnMiddleware.
func ClaimsFromContext(ctx context.Context) (jwtx.Claims, bool) {
	c, ok := ctx.Value(ctxKey{}).(jwtx.Claims)
	return c, ok
}

// WithClaims attaches verified claims to ctx.
func WithClaims(ctx context.Context, c jwtx.Claims) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

// BearerToken extracts an RFC 6750 bearer token from the Authorization header.
func BearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// VerifyFunc validates a raw bearer token.
type VerifyFunc func(ctx context.Context, token string) (jwtx.Claims, error)

// AuthnMiddleware rejects requests without a valid bearer access token.
func AuthnMiddleware(v jwtx.Verifier) Middleware {
	return AuthnMiddlewareFunc(func(_ context.Context, token string) (jwtx.Claims, error) {
		return v.Verify(token)
	})
}

// AuthnMiddlewareFunc is AuthnMiddleware with a context-aware check, for
// verifiers that consult server-side state such as a revocation ledger.
func AuthnMiddlewareFunc(verify VerifyFunc) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := BearerToken(r)
			if !ok {
				writeBearerError(w, http.StatusUnauthorized, "invalid_token", "missing bearer token", "")
				return
			}

			claims, err := verify(r.Context(), raw)
			if err != nil {
				slogx.FromContext(r.Context()).Warn("bearer token rejected", "err", err)
				writeBearerError(w, http.StatusUnauthorized, "invalid_token", "token verification failed", "")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// RequireAnyScope requires at least one of the listed scopes.
func RequireAnyScope(required ...string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, _ := ClaimsFromContext(r.Context())
			for _, s := range required {
				if claims.HasScope(s) {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeBearerError(w, http.StatusForbidden, "insufficient_scope", "", strings.Join(required, " "))
		})
	}
}

func writeBearerError(w http.ResponseWriter, status int, code, desc, scope string) {
	challenge := `Bearer error="` + code + `"`
	if desc != "" {
		challenge += `, error_description="` + desc + `"`
	}
	if scope != "" {
		challenge += `, scope="` + scope + `"`
	}
	w.Header().Set("WWW-Authenticate", challenge)

	body := map[string]string{"error": code}
	if desc != "" {
		body["error_description"] = desc
	}
	WriteJSON(w, status, body)
}
