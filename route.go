package cowboy

import (
	"strings"
)

// methodAll is the method-set entry used by All registrations.
const methodAll = "*"

// Route is one registration entry: a set of HTTP methods, an ordered list of
// compiled path matchers, and the middleware chain executed when the route
// is selected. Routes are immutable after registration; the router matches
// them in registration order and the first match wins.
type Route struct {
	methods  map[string]bool
	matchers []*pathMatcher
	chain    []Middleware
}

func newRoute(methods []string, pattern any, chain []Middleware) *Route {
	set := make(map[string]bool, len(methods))
	for _, m := range methods {
		set[strings.ToUpper(m)] = true
	}
	return &Route{
		methods:  set,
		matchers: compilePatterns(pattern),
		chain:    chain,
	}
}

func (r *Route) allowsMethod(method string) bool {
	return r.methods[methodAll] || r.methods[method]
}

// match tests the tidied path against this route's matchers in order,
// returning the parameters of the first matching pattern.
func (r *Route) match(path string) (map[string]string, bool) {
	for _, m := range r.matchers {
		if params, ok := m.match(path); ok {
			return params, true
		}
	}
	return nil, false
}

// Method registers a route for an explicit method list. The pattern may be
// a string ("/widgets", "/widgets/:id"), a *regexp.Regexp, or a slice of
// either; anything else panics with a ConfigError at registration time.
func (rt *Router) Method(methods []string, pattern any, mw ...Middleware) *Router {
	if len(mw) == 0 {
		panic(configErrorf("route %v registered with no middleware", pattern))
	}
	rt.routes = append(rt.routes, newRoute(methods, pattern, mw))
	return rt
}

// Get registers a route answering GET requests.
func (rt *Router) Get(pattern any, mw ...Middleware) *Router {
	return rt.Method([]string{"GET"}, pattern, mw...)
}

// Post registers a route answering POST requests.
func (rt *Router) Post(pattern any, mw ...Middleware) *Router {
	return rt.Method([]string{"POST"}, pattern, mw...)
}

// Put registers a route answering PUT requests.
func (rt *Router) Put(pattern any, mw ...Middleware) *Router {
	return rt.Method([]string{"PUT"}, pattern, mw...)
}

// Patch registers a route answering PATCH requests.
func (rt *Router) Patch(pattern any, mw ...Middleware) *Router {
	return rt.Method([]string{"PATCH"}, pattern, mw...)
}

// Delete registers a route answering DELETE requests.
func (rt *Router) Delete(pattern any, mw ...Middleware) *Router {
	return rt.Method([]string{"DELETE"}, pattern, mw...)
}

// Head registers a route answering HEAD requests.
func (rt *Router) Head(pattern any, mw ...Middleware) *Router {
	return rt.Method([]string{"HEAD"}, pattern, mw...)
}

// Options registers a route answering OPTIONS requests.
func (rt *Router) Options(pattern any, mw ...Middleware) *Router {
	return rt.Method([]string{"OPTIONS"}, pattern, mw...)
}

// All registers a route answering every method.
func (rt *Router) All(pattern any, mw ...Middleware) *Router {
	return rt.Method([]string{methodAll}, pattern, mw...)
}

// Use appends middleware to the global chain, which runs unconditionally
// for every request before route resolution.
func (rt *Router) Use(mw ...Middleware) *Router {
	rt.global = append(rt.global, mw...)
	return rt
}

// Group returns a registrar that mounts routes under a common path prefix,
// optionally threading shared middleware ahead of each route's own chain.
// Routes keep their registration order relative to the rest of the router.
//
//	api := rt.Group("/widgets", Named("parseBody"))
//	api.Get("/:id", showWidget)
//	api.Post("/", createWidget)
func (rt *Router) Group(prefix string, shared ...Middleware) *Group {
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	return &Group{router: rt, prefix: strings.TrimSuffix(prefix, "/"), shared: shared}
}

// Group mounts related routes under a shared prefix.
type Group struct {
	router *Router
	prefix string
	shared []Middleware
}

// Method registers a prefixed route for an explicit method list. Group
// patterns must be strings; a regular expression cannot be prefixed
// meaningfully, so passing one is a configuration error.
func (g *Group) Method(methods []string, pattern any, mw ...Middleware) *Group {
	path, ok := pattern.(string)
	if !ok {
		panic(configErrorf("group routes require string patterns, got %T", pattern))
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if path == "/" {
		path = ""
	}
	chain := make([]Middleware, 0, len(g.shared)+len(mw))
	chain = append(chain, g.shared...)
	chain = append(chain, mw...)
	g.router.Method(methods, g.prefix+path, chain...)
	return g
}

// Get registers a prefixed GET route.
func (g *Group) Get(pattern any, mw ...Middleware) *Group {
	return g.Method([]string{"GET"}, pattern, mw...)
}

// Post registers a prefixed POST route.
func (g *Group) Post(pattern any, mw ...Middleware) *Group {
	return g.Method([]string{"POST"}, pattern, mw...)
}

// Put registers a prefixed PUT route.
func (g *Group) Put(pattern any, mw ...Middleware) *Group {
	return g.Method([]string{"PUT"}, pattern, mw...)
}

// Patch registers a prefixed PATCH route.
func (g *Group) Patch(pattern any, mw ...Middleware) *Group {
	return g.Method([]string{"PATCH"}, pattern, mw...)
}

// Delete registers a prefixed DELETE route.
func (g *Group) Delete(pattern any, mw ...Middleware) *Group {
	return g.Method([]string{"DELETE"}, pattern, mw...)
}

// All registers a prefixed route answering every method.
func (g *Group) All(pattern any, mw ...Middleware) *Group {
	return g.Method([]string{methodAll}, pattern, mw...)
}
