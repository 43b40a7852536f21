// Package router assembles the gin engine of the ops API.
package router

import (
	"net/http"
	"path"

	"github.com/gin-gonic/gin"

	"github.com/erp/marketplace-ingest/internal/infrastructure/auth"
	"github.com/erp/marketplace-ingest/internal/interfaces/http/middleware"
)

// RouteRegistrar mounts its routes on a group and reports what it mounted
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup) []Route
}

// Route describes one mounted endpoint
type Route struct {
	Method string
	Path   string
	// Scope is the token scope the route requires, empty for none
	Scope auth.Scope
}

// Router mounts registrars under /api/<version>
type Router struct {
	engine     *gin.Engine
	apiVersion string
	registrars []RouteRegistrar
	routes     []Route
}

// RouterOption is a functional option for Router configuration
type RouterOption func(*Router)

// WithAPIVersion sets the API version prefix (e.g., "v1", "v2")
func WithAPIVersion(version string) RouterOption {
	return func(r *Router) {
		r.apiVersion = version
	}
}

// NewRouter creates a new Router instance
func NewRouter(engine *gin.Engine, opts ...RouterOption) *Router {
	r := &Router{
		engine:     engine,
		apiVersion: "v1",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register queues a registrar for Setup
func (r *Router) Register(registrar RouteRegistrar) *Router {
	r.registrars = append(r.registrars, registrar)
	return r
}

// Setup mounts every registrar. middleware runs before any group's own
// middleware and scope check.
func (r *Router) Setup(middleware ...gin.HandlerFunc) {
	api := r.engine.Group("/api/" + r.apiVersion)
	if len(middleware) > 0 {
		api.Use(middleware...)
	}
	for _, registrar := range r.registrars {
		r.routes = append(r.routes, registrar.RegisterRoutes(api)...)
	}
}

// Routes lists what Setup mounted, in registration order
func (r *Router) Routes() []Route {
	return r.routes
}

// DomainGroup collects the routes of one API area under a prefix. Routes
// require the group's scope unless registered with Handle.
type DomainGroup struct {
	prefix     string
	scope      auth.Scope
	routes     []routeDefinition
	middleware []gin.HandlerFunc
}

type routeDefinition struct {
	method   string
	path     string
	scope    auth.Scope
	handlers []gin.HandlerFunc
}

// NewDomainGroup creates a group whose routes require scope by default
func NewDomainGroup(prefix string, scope auth.Scope) *DomainGroup {
	return &DomainGroup{prefix: prefix, scope: scope}
}

// Use adds middleware that runs after the scope check
func (dg *DomainGroup) Use(middleware ...gin.HandlerFunc) *DomainGroup {
	dg.middleware = append(dg.middleware, middleware...)
	return dg
}

// GET registers a GET route under the group scope
func (dg *DomainGroup) GET(path string, handlers ...gin.HandlerFunc) *DomainGroup {
	return dg.Handle(http.MethodGet, path, dg.scope, handlers...)
}

// POST registers a POST route under the group scope
func (dg *DomainGroup) POST(path string, handlers ...gin.HandlerFunc) *DomainGroup {
	return dg.Handle(http.MethodPost, path, dg.scope, handlers...)
}

// Handle registers a route with its own scope
func (dg *DomainGroup) Handle(method, path string, scope auth.Scope, handlers ...gin.HandlerFunc) *DomainGroup {
	dg.routes = append(dg.routes, routeDefinition{method: method, path: path, scope: scope, handlers: handlers})
	return dg
}

// RegisterRoutes implements RouteRegistrar
func (dg *DomainGroup) RegisterRoutes(rg *gin.RouterGroup) []Route {
	group := rg.Group(dg.prefix)
	mounted := make([]Route, 0, len(dg.routes))
	for _, route := range dg.routes {
		chain := make([]gin.HandlerFunc, 0, len(dg.middleware)+len(route.handlers)+1)
		if route.scope != "" {
			chain = append(chain, middleware.RequireScope(route.scope))
		}
		chain = append(chain, dg.middleware...)
		chain = append(chain, route.handlers...)
		group.Handle(route.method, route.path, chain...)

		mounted = append(mounted, Route{
			Method: route.method,
			Path:   path.Join(group.BasePath(), route.path),
			Scope:  route.scope,
		})
	}
	return mounted
}
