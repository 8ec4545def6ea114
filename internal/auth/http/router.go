//go:generate swag init --dir ../../.. --generalInfo internal/auth/http/router.go --output ../../../api/auth --outputTypes go

package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/truecredit/authserver/internal/auth/flow"
	"github.com/truecredit/authserver/internal/auth/metrics"
	"github.com/truecredit/authserver/internal/auth/service"
	"github.com/truecredit/authserver/internal/auth/store"
	"github.com/truecredit/authserver/pkg/authsdk"
	"github.com/truecredit/authserver/pkg/httpx"
	"github.com/truecredit/authserver/pkg/jwtx"
	"github.com/truecredit/authserver/pkg/slogx"

	_ "github.com/truecredit/authserver/api/auth" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// Pinger reports whether a backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	keys         *jwtx.KeyManager
	issuer       string
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
	store        store.Store

	Flow     *flow.Controller
	Tokens   *service.TokenIssuer
	Registry *service.RegistryService
	Users    *service.UserDirectory

	// Ledger is pinged by /readyz. Defaults to the store.
	Ledger Pinger

	// Metrics is optional; when nil no /metrics route is served.
	Metrics *metrics.Metrics

	Limits httpx.RateLimitProfiles
}

func NewRouter(
	keys *jwtx.KeyManager,
	issuer, buildVersion string,
	st store.Store,
	logger *slog.Logger,
) *Router {
	if logger == nil {
		logger = slogx.Discard()
	}
	r := &Router{
		Mux:          http.NewServeMux(),
		keys:         keys,
		issuer:       issuer,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
		Limits:       httpx.DefaultRateLimitProfiles(),
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerConnect()
	r.registerWellKnown()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			TrueCredit Identity Provider API
//	@version		1.0.0
//	@description	OpenID Connect and OAuth2 authorization server. Issues signed JWT access and identity tokens,
//	@description	opaque rotating refresh tokens, and answers RFC 7662 introspection for resource servers.
//	@description
//	@description				Tokens for resource servers that validate locally are wrapped in an A256GCM JWE.
//
//	@contact.name				TrueCredit Platform Team
//	@contact.url				https://github.com/truecredit/authserver
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.basic	ClientAuth
//	@description				Client credentials, form-urlencoded client_id and client_secret.
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT access token. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

// handle registers h under pattern, instrumented as route.
func (r *Router) handle(pattern, route string, h http.Handler, mws ...httpx.Middleware) {
	if r.Metrics != nil {
		mws = append([]httpx.Middleware{r.Metrics.Middleware(route)}, mws...)
	}
	r.Mux.Handle(pattern, httpx.Chain(h, mws...))
}

func (r *Router) registerConnect() {
	authorizeHandler := &AuthorizeHandler{
		Flow:     r.Flow,
		Tokens:   r.Tokens,
		Registry: r.Registry,
		Secure:   strings.HasPrefix(r.issuer, "https://"),
	}

	// GET /authorize - moderate: only sessions can succeed here
	r.handle("GET "+authsdk.PathAuthorize, "authorize",
		http.HandlerFunc(authorizeHandler.HandleGet),
		httpx.RateLimitByIP(r.Limits.Moderate),
	)

	// POST /authorize - strict by IP + username to slow credential stuffing
	r.handle("POST "+authsdk.PathAuthorize, "authorize",
		http.HandlerFunc(authorizeHandler.HandlePost),
		httpx.RateLimitByIPAndFormField(r.Limits.Strict, "username"),
	)

	r.handle("POST "+authsdk.PathToken, "token",
		&TokenHandler{Flow: r.Flow},
		httpx.RateLimitByIPAndClient(r.Limits.Strict),
	)

	r.handle("POST "+authsdk.PathIntrospect, "introspect",
		&IntrospectHandler{Flow: r.Flow},
		httpx.RateLimitByIPAndClient(r.Limits.Strict),
	)

	r.handle("POST "+authsdk.PathRevoke, "revoke",
		&RevokeHandler{Tokens: r.Tokens, Registry: r.Registry},
		httpx.RateLimitByIPAndClient(r.Limits.Strict),
	)

	userinfo := &UserInfoHandler{Users: r.Users, Claims: r.Tokens.Claims}
	r.handle("GET "+authsdk.PathUserInfo, "userinfo", userinfo,
		httpx.RateLimitByIP(r.Limits.Moderate),
		httpx.AuthnMiddlewareFunc(r.Tokens.VerifyAccessToken),
		httpx.RequireAnyScope("openid"),
	)

	logout := &LogoutHandler{
		Tokens:   r.Tokens,
		Registry: r.Registry,
		Secure:   authorizeHandler.Secure,
	}
	r.handle("GET "+authsdk.PathLogout, "logout", logout, httpx.RateLimitByIP(r.Limits.Moderate))
	r.handle("POST "+authsdk.PathLogout, "logout", logout, httpx.RateLimitByIP(r.Limits.Moderate))
}

func (r *Router) registerWellKnown() {
	r.handle("GET "+authsdk.PathJWKS, "jwks",
		JWKSHandler(r.keys.KeySet),
		httpx.RateLimitByIP(r.Limits.Public),
	)
	r.handle("GET "+authsdk.PathDiscovery, "discovery",
		DiscoveryHandler(r.issuer, r.keys.Algorithm(), r.Tokens.Claims, r.Registry),
		httpx.RateLimitByIP(r.Limits.Public),
	)
}

func (r *Router) registerSystem() {
	ledger := r.Ledger
	if ledger == nil {
		ledger = r.store
	}

	// Health checks - public limits, monitoring systems poll frequently
	r.handle("GET "+authsdk.PathLiveness, "livez",
		LivezHandler(r.startTime, r.buildVersion),
		httpx.RateLimitByIP(r.Limits.Public),
	)
	r.handle("GET "+authsdk.PathReadiness, "readyz",
		ReadyzHandler(r.startTime, r.buildVersion, r.store, ledger, r.keys),
		httpx.RateLimitByIP(r.Limits.Public),
	)

	if r.Metrics != nil {
		r.Mux.Handle("GET /metrics", r.Metrics.Handler())
	}
}
