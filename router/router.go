// Package router builds the prefix to handler routing table from
// configuration and resolves request URIs to handlers by longest prefix.
package router

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/wolfeidau/lightning/config"
	"github.com/wolfeidau/lightning/handler"
)

// ErrNoDefaultRoute is returned by BuildRoutes when the configuration does
// not declare a "default" route.
var ErrNoDefaultRoute = errors.New("no default route configured")

// RouteSource is the part of the configuration routes are built from.
type RouteSource interface {
	// AllPaths returns every declared (prefix, handler type) pair.
	AllPaths() []config.Path
	// ChildBlock returns the properties a handler bound to prefix is
	// initialised with.
	ChildBlock(prefix string) *config.Block
}

// Stats is the shared stats collaborator. The router publishes the route
// table to it and hands it to handlers that want to read it.
type Stats interface {
	handler.StatsReader
	SetRoutes(routes map[string]string)
}

// Route is a routing table entry.
type Route struct {
	Prefix  string
	Type    string
	Handler handler.Handler
}

// Router resolves URIs to handlers. It is read-only once built and safe for
// concurrent use.
type Router struct {
	routes   map[string]Route
	notFound handler.Handler
	logger   *slog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the logger for the router.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) {
		r.logger = logger
	}
}

// BuildRoutes creates and initialises a handler for every configured path.
// Any failure aborts the build; a partial table is never returned.
// st may be nil, in which case no stats are published or wired.
func BuildRoutes(src RouteSource, reg *handler.Registry, st Stats, opts ...Option) (*Router, error) {
	r := &Router{
		routes: make(map[string]Route),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "router")

	for _, p := range src.AllPaths() {
		if _, exists := r.routes[p.Prefix]; exists {
			return nil, fmt.Errorf("building route %s: duplicate prefix", p.Prefix)
		}

		h, err := reg.CreateByName(p.Handler)
		if err != nil {
			return nil, fmt.Errorf("building route %s: %w", p.Prefix, err)
		}
		if err := h.Init(p.Prefix, src.ChildBlock(p.Prefix)); err != nil {
			return nil, fmt.Errorf("initialising %s for route %s: %w", p.Handler, p.Prefix, err)
		}
		if ws, ok := h.(handler.WantsStats); ok && st != nil {
			ws.SetStats(st)
		}

		r.routes[p.Prefix] = Route{Prefix: p.Prefix, Type: p.Handler, Handler: h}
		r.logger.Debug("route added", "prefix", p.Prefix, "handler", p.Handler)
	}

	if _, ok := r.routes[config.DefaultPrefix]; !ok {
		return nil, ErrNoDefaultRoute
	}

	notFound, err := reg.CreateByName(handler.TypeNotFound)
	if err != nil {
		return nil, fmt.Errorf("creating fallback handler: %w", err)
	}
	if err := notFound.Init("", config.NewBlock(nil)); err != nil {
		return nil, fmt.Errorf("initialising fallback handler: %w", err)
	}
	r.notFound = notFound

	if st != nil {
		st.SetRoutes(r.Routes())
	}
	r.logger.Info("routes built", "count", len(r.routes))
	return r, nil
}

// Route returns the entry with the longest prefix of uri that ends at a
// '/' boundary, or the default route when none matches. The query string
// is ignored.
//
// Candidates are tried longest first: the whole path, then the path cut
// before each '/' walking backwards from the end. A "/" route matches any
// path that none of the longer candidates did.
func (r *Router) Route(uri string) Route {
	path, _, _ := strings.Cut(uri, "?")

	for end := len(path); end > 0; end = strings.LastIndexByte(path[:end], '/') {
		if rt, ok := r.routes[path[:end]]; ok {
			return rt
		}
	}
	if strings.HasPrefix(path, "/") {
		if rt, ok := r.routes["/"]; ok {
			return rt
		}
	}
	return r.routes[config.DefaultPrefix]
}

// NotFound returns the fallback handler kept outside the routing table.
func (r *Router) NotFound() handler.Handler {
	return r.notFound
}

// Routes returns a copy of the prefix to handler type table.
func (r *Router) Routes() map[string]string {
	routes := make(map[string]string, len(r.routes))
	for prefix, rt := range r.routes {
		routes[prefix] = rt.Type
	}
	return routes
}
