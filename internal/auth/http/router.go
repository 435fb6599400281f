package http

import (
	"log/slog"
	"net/http"
	"time"

	_ "github.com/aussiebroadwan/shopauth/api/auth" // Swagger docs
	"github.com/aussiebroadwan/shopauth/internal/auth/service"
	"github.com/aussiebroadwan/shopauth/pkg/httpx"
	"github.com/aussiebroadwan/shopauth/pkg/slogx"
	httpSwagger "github.com/swaggo/http-swagger"
)

// Limits are the rate limits applied per route class.
type Limits struct {
	// Strict is keyed by client IP on every shop endpoint.
	Strict httpx.RateLimitConfig
	// Moderate is keyed by shop on authenticated routes.
	Moderate httpx.RateLimitConfig
}

// DefaultLimits returns the built-in limits with RATELIMIT_STRICT_* and
// RATELIMIT_MODERATE_* overrides applied.
func DefaultLimits() Limits {
	return Limits{
		Strict:   httpx.RateLimitFromEnv("STRICT", httpx.StrictLimit),
		Moderate: httpx.RateLimitFromEnv("MODERATE", httpx.ModerateLimit),
	}
}

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
	checks       map[string]Pinger
	limits       Limits

	Credentials *service.CredentialService
}

func NewRouter(creds *service.CredentialService, buildVersion string, limits Limits, logger *slog.Logger) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		logger:       logger,
		checks:       map[string]Pinger{},
		limits:       limits,
		Credentials:  creds,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

// AddCheck registers a dependency reported by /readyz.
func (r *Router) AddCheck(name string, p Pinger) {
	r.checks[name] = p
}

func (r *Router) ApplyRoutes() {
	r.registerShop()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			Shop Authentication Service API
//	@version		0.1.0
//	@description	Credential issuance for shops. Every session carries its own signing key pair, so tokens are verified against the session they belong to rather than a shared key.
//	@description
//	@description				Authenticated calls send the shop id in x-client-id alongside the access token.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/shopauth
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Session access token. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerShop() {
	h := &ShopHandler{Credentials: r.Credentials}

	// One bucket per IP across all public endpoints, aliases included
	byIP := httpx.RateLimit(r.limits.Strict, httpx.IPKeyExtractor)
	strict := func(fn http.HandlerFunc) http.Handler {
		return httpx.Chain(fn, byIP)
	}

	r.Mux.Handle("POST /v1/api/shop/signup", strict(h.HandleSignUp))
	r.Mux.Handle("POST /v1/api/shop/login", strict(h.HandleLogin))
	r.Mux.Handle("POST /v1/api/shop/signin", strict(h.HandleLogin))

	// Refresh authenticates with the refresh token itself
	r.Mux.Handle("POST /v1/api/shop/refresh", strict(h.HandleRefresh))
	r.Mux.Handle("POST /v1/api/shop/handlerRefreshToken", strict(h.HandleRefresh))

	// The shop bucket only counts requests that authenticated as that shop
	secured := httpx.Chain(http.HandlerFunc(h.HandleLogout),
		byIP,
		AuthnMiddleware(r.Credentials),
		httpx.RateLimit(r.limits.Moderate, httpx.ShopKeyExtractor),
	)
	r.Mux.Handle("POST /v1/api/shop/logout", secured)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez", LivezHandler(r.startTime, r.buildVersion))
	r.Mux.Handle("GET /readyz", ReadyzHandler(r.startTime, r.buildVersion, r.checks))
	r.Mux.Handle("GET /swagger/", httpSwagger.Handler())
}
