package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RouteRegistrar mounts routes under the versioned API group
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// Router mounts registrars under /api/<version>
type Router struct {
	engine     *gin.Engine
	apiVersion string
	registrars []RouteRegistrar
}

// Option configures a Router
type Option func(*Router)

// WithAPIVersion sets the version segment of the API prefix
func WithAPIVersion(version string) Option {
	return func(r *Router) {
		r.apiVersion = version
	}
}

// NewRouter creates a Router for engine, defaulting to v1
func NewRouter(engine *gin.Engine, opts ...Option) *Router {
	r := &Router{engine: engine, apiVersion: "v1"}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register queues registrars for Setup
func (r *Router) Register(registrars ...RouteRegistrar) *Router {
	r.registrars = append(r.registrars, registrars...)
	return r
}

// Setup mounts every registrar and returns the API group
func (r *Router) Setup() *gin.RouterGroup {
	api := r.engine.Group("/api/" + r.apiVersion)
	for _, registrar := range r.registrars {
		registrar.RegisterRoutes(api)
	}
	return api
}

// RouteInfo is one route of a DomainGroup, relative to the API group
type RouteInfo struct {
	Method string
	Path   string
}

type route struct {
	method   string
	path     string
	handlers []gin.HandlerFunc
}

// DomainGroup collects the routes of one API area together with the
// middleware they share. Subgroups inherit that middleware.
type DomainGroup struct {
	name       string
	prefix     string
	middleware []gin.HandlerFunc
	routes     []route
	subgroups  []*DomainGroup
}

// NewDomainGroup creates an empty group mounted at prefix
func NewDomainGroup(name, prefix string) *DomainGroup {
	return &DomainGroup{name: name, prefix: prefix}
}

// Use appends middleware run before every route of the group
func (dg *DomainGroup) Use(middleware ...gin.HandlerFunc) *DomainGroup {
	dg.middleware = append(dg.middleware, middleware...)
	return dg
}

// GET registers a GET route
func (dg *DomainGroup) GET(path string, handlers ...gin.HandlerFunc) *DomainGroup {
	return dg.handle(http.MethodGet, path, handlers)
}

// POST registers a POST route
func (dg *DomainGroup) POST(path string, handlers ...gin.HandlerFunc) *DomainGroup {
	return dg.handle(http.MethodPost, path, handlers)
}

// PUT registers a PUT route
func (dg *DomainGroup) PUT(path string, handlers ...gin.HandlerFunc) *DomainGroup {
	return dg.handle(http.MethodPut, path, handlers)
}

// DELETE registers a DELETE route
func (dg *DomainGroup) DELETE(path string, handlers ...gin.HandlerFunc) *DomainGroup {
	return dg.handle(http.MethodDelete, path, handlers)
}

func (dg *DomainGroup) handle(method, path string, handlers []gin.HandlerFunc) *DomainGroup {
	dg.routes = append(dg.routes, route{method: method, path: path, handlers: handlers})
	return dg
}

// Group creates a subgroup below this group's prefix
func (dg *DomainGroup) Group(name, prefix string) *DomainGroup {
	sub := NewDomainGroup(name, prefix)
	dg.subgroups = append(dg.subgroups, sub)
	return sub
}

// RegisterRoutes implements RouteRegistrar
func (dg *DomainGroup) RegisterRoutes(rg *gin.RouterGroup) {
	group := rg.Group(dg.prefix, dg.middleware...)
	for _, r := range dg.routes {
		group.Handle(r.method, r.path, r.handlers...)
	}
	for _, sub := range dg.subgroups {
		sub.RegisterRoutes(group)
	}
}

// Name returns the group name
func (dg *DomainGroup) Name() string {
	return dg.name
}

// Routes lists the group's routes including subgroups
func (dg *DomainGroup) Routes() []RouteInfo {
	var out []RouteInfo
	for _, r := range dg.routes {
		out = append(out, RouteInfo{Method: r.method, Path: dg.prefix + r.path})
	}
	for _, sub := range dg.subgroups {
		for _, r := range sub.Routes() {
			out = append(out, RouteInfo{Method: r.Method, Path: dg.prefix + r.Path})
		}
	}
	return out
}
