package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mazira-designs/api/internal/platform/httpx"
)

// RouteRegistrar registers a set of routes against the provided router.
type RouteRegistrar func(r chi.Router)

// Middleware is the chi middleware shape.
type Middleware = func(http.Handler) http.Handler

// Route groups under /api/v1, in mount order.
const (
	groupPublic     = "public"
	groupPlan       = "plan"
	groupCheckout   = "checkout"
	groupOnboarding = "onboarding"
)

var groupOrder = []string{groupPublic, groupPlan, groupCheckout, groupOnboarding}

const (
	apiPrefix      = "/api/v1"
	requestTimeout = 60 * time.Second
)

type routeGroup struct {
	register RouteRegistrar
	use      []Middleware
}

type routerConfig struct {
	global []Middleware
	health *HealthHandlers
	groups map[string]*routeGroup
}

// Option customises NewRouter.
type Option func(*routerConfig)

// NewRouter builds the API router: /healthz and /readyz at the root, then one chi group per
// storefront area. A group without a registrar answers 501 to everything.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		global: []Middleware{middleware.RequestID, middleware.RealIP, middleware.Timeout(requestTimeout)},
		groups: map[string]*routeGroup{},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}

	r := chi.NewRouter()
	for _, mw := range cfg.global {
		if mw != nil {
			r.Use(mw)
		}
	}
	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("route_not_found", "no route for "+req.URL.Path, http.StatusNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", req.Method+" is not allowed on "+req.URL.Path, http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)

	r.Route(apiPrefix, func(api chi.Router) {
		for _, name := range groupOrder {
			g := cfg.groups[name]
			if g == nil {
				g = &routeGroup{}
			}
			api.Route("/"+name, func(sub chi.Router) {
				for _, mw := range g.use {
					if mw != nil {
						sub.Use(mw)
					}
				}
				if g.register == nil {
					notImplemented(sub, name)
					return
				}
				g.register(sub)
			})
		}
	})
	return r
}

func (cfg *routerConfig) group(name string, reg RouteRegistrar, mw []Middleware) {
	g := cfg.groups[name]
	if g == nil {
		g = &routeGroup{}
		cfg.groups[name] = g
	}
	g.register = reg
	g.use = append(g.use, mw...)
}

// WithMiddlewares appends global middleware after RequestID, RealIP and Timeout.
func WithMiddlewares(mw ...Middleware) Option {
	return func(cfg *routerConfig) { cfg.global = append(cfg.global, mw...) }
}

func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) { cfg.health = h }
}

// WithPublicRoutes mounts the catalog and quote endpoints.
func WithPublicRoutes(reg RouteRegistrar, mw ...Middleware) Option {
	return func(cfg *routerConfig) { cfg.group(groupPublic, reg, mw) }
}

// WithPlanRoutes mounts the session plan endpoints.
func WithPlanRoutes(reg RouteRegistrar, mw ...Middleware) Option {
	return func(cfg *routerConfig) { cfg.group(groupPlan, reg, mw) }
}

// WithCheckoutRoutes mounts checkout. mw applies even when reg is nil.
func WithCheckoutRoutes(reg RouteRegistrar, mw ...Middleware) Option {
	return func(cfg *routerConfig) { cfg.group(groupCheckout, reg, mw) }
}

// WithOnboardingRoutes mounts the intake forms.
func WithOnboardingRoutes(reg RouteRegistrar, mw ...Middleware) Option {
	return func(cfg *routerConfig) { cfg.group(groupOnboarding, reg, mw) }
}

func notImplemented(r chi.Router, name string) {
	h := func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("not_implemented", name+" routes are not enabled", http.StatusNotImplemented))
	}
	r.HandleFunc("/", h)
	r.HandleFunc("/*", h)
	r.NotFound(h)
	r.MethodNotAllowed(h)
}
