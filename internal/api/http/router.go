package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/quokkaworks/todo-sso/internal/api/service"
	"github.com/quokkaworks/todo-sso/pkg/httpx"
	"github.com/quokkaworks/todo-sso/pkg/jwtx"
	"github.com/quokkaworks/todo-sso/pkg/slogx"
)

// KeySource is what readiness checks probe: whether verification keys
// have been fetched at least once.
type KeySource interface {
	IsReady() bool
}

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	verifier       jwtx.Verifier
	keySource      KeySource
	requiredScopes []string
	buildVersion   string
	startTime      time.Time
	logger         *slog.Logger

	TodoService *service.TodoService
}

// NewRouter builds a Router. requiredScopes may be empty, in which case
// any verified token is accepted.
func NewRouter(
	verifier jwtx.Verifier,
	keySource KeySource,
	requiredScopes []string,
	buildVersion string,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:            http.NewServeMux(),
		verifier:       verifier,
		keySource:      keySource,
		requiredScopes: requiredScopes,
		buildVersion:   buildVersion,
		startTime:      time.Now(),
		logger:         logger,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerTodos()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global
// middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

// secured wraps a handler with the standard protection for todo routes:
// token verification, scope enforcement when configured, and a per-user
// rate limit.
func (r *Router) secured(h http.Handler, limit httpx.RateLimitConfig) http.Handler {
	mws := []httpx.Middleware{
		httpx.AuthnMiddleware(r.verifier),
	}
	if len(r.requiredScopes) > 0 {
		mws = append(mws, httpx.RequireAnyScope(r.requiredScopes...))
	}
	mws = append(mws, httpx.RateLimitByUser(limit))

	return httpx.Chain(h, mws...)
}

func (r *Router) registerTodos() {
	h := &TodosHandler{TodoService: r.TodoService}

	// Reads are cheap; mutations get the tighter profile.
	r.Mux.Handle("GET /v1/todos",
		r.secured(http.HandlerFunc(h.HandleList), httpx.LenientLimit))
	r.Mux.Handle("POST /v1/todos",
		r.secured(http.HandlerFunc(h.HandleCreate), httpx.ModerateLimit))
	r.Mux.Handle("POST /v1/todos/{id}/toggle",
		r.secured(http.HandlerFunc(h.HandleToggle), httpx.ModerateLimit))
	r.Mux.Handle("PATCH /v1/todos/{id}",
		r.secured(http.HandlerFunc(h.HandleUpdate), httpx.ModerateLimit))
	r.Mux.Handle("DELETE /v1/todos/{id}",
		r.secured(http.HandlerFunc(h.HandleDelete), httpx.ModerateLimit))
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.keySource),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}
