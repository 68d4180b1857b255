package cowboy

import (
	"context"

	"github.com/fastly/compute-sdk-go/fsthttp"
)

// CorsConfig controls the cross-origin headers applied to responses and the
// auto-injected OPTIONS preflight routes.
type CorsConfig struct {
	Origin  string
	Methods string
	Headers string
}

// DefaultCorsConfig allows everything, mirroring the permissive defaults
// most edge applications start from.
func DefaultCorsConfig() CorsConfig {
	return CorsConfig{
		Origin:  "*",
		Headers: "*",
		Methods: "GET, PUT, POST, DELETE, HEAD, PATCH, OPTIONS",
	}
}

func (c CorsConfig) apply(res *Response) {
	res.Set("Access-Control-Allow-Origin", c.Origin)
	res.Set("Access-Control-Allow-Headers", c.Headers)
	res.Set("Access-Control-Allow-Methods", c.Methods)
}

// UseCors enables CORS handling: every response gains the configured
// Access-Control headers, and matching OPTIONS preflight routes are injected
// once, lazily, at first dispatch. With no argument the permissive defaults
// apply.
func (rt *Router) UseCors(cfg ...CorsConfig) *Router {
	config := DefaultCorsConfig()
	if len(cfg) > 0 {
		config = cfg[0]
	}
	rt.cors = &config
	rt.Use(HandlerFunc(func(ctx context.Context, req *Request, res *Response) (any, error) {
		config.apply(res)
		return nil, nil
	}))
	return rt
}

// corsMiddleware is the registry-facing form of UseCors, so routes can pull
// it in by name: Named("cors") or Named("cors", CorsConfig{...}). First
// resolution happens mid-dispatch, after the router's install step already
// ran, so the OPTIONS routes are installed here rather than waiting for the
// next dispatch.
func corsMiddleware(rt *Router, opts ...any) (HandlerFunc, error) {
	config := DefaultCorsConfig()
	if len(opts) > 0 {
		c, ok := opts[0].(CorsConfig)
		if !ok {
			return nil, configErrorf("cors option must be a CorsConfig, got %T", opts[0])
		}
		config = c
	}
	if rt.cors == nil {
		rt.cors = &config
		rt.ensureCorsRoutes()
	}
	return func(ctx context.Context, req *Request, res *Response) (any, error) {
		config.apply(res)
		return nil, nil
	}, nil
}

// ensureCorsRoutes injects one OPTIONS route covering every registered path
// pattern that does not already answer OPTIONS. This is a one-time build
// step guarded by an applied-once flag, not a per-request mutation; repeat
// dispatches never duplicate routes.
func (rt *Router) ensureCorsRoutes() {
	if rt.cors == nil || rt.corsInstalled {
		return
	}
	rt.corsInstalled = true

	config := *rt.cors
	var matchers []*pathMatcher
	for _, route := range rt.routes {
		if route.allowsMethod("OPTIONS") {
			continue
		}
		matchers = append(matchers, route.matchers...)
	}
	if len(matchers) == 0 {
		return
	}
	rt.routes = append(rt.routes, &Route{
		methods:  map[string]bool{"OPTIONS": true},
		matchers: matchers,
		chain: []Middleware{HandlerFunc(func(ctx context.Context, req *Request, res *Response) (any, error) {
			config.apply(res)
			res.SendStatus(fsthttp.StatusNoContent)
			return nil, nil
		})},
	})
}
