package cowboy

import (
	"context"
	"fmt"

	"github.com/fastly/compute-sdk-go/fsthttp"
	"go.uber.org/zap"
)

// Router owns the ordered route list and the global middleware chain, and
// drives each request through the dispatch lifecycle: normalize the request,
// run global middleware, resolve a route, run its middleware, finalize a
// native response. Every reachable failure path ends in a well-formed
// response; nothing escapes the entry points.
//
// Registration calls (Get, Use, Schedule, ...) belong to the setup phase,
// before traffic begins. The only later mutations are the one-time lazy
// installs of the CORS OPTIONS routes and the synthetic scheduled endpoint,
// each guarded by an applied-once flag. The execution model is one
// cooperative invocation at a time, so the guards are plain booleans.
type Router struct {
	routes []*Route
	global []Middleware

	tidy   PathTidier
	logger *zap.Logger

	cors          *CorsConfig
	corsInstalled bool

	scheduled          ScheduledHandler
	scheduledInstalled bool
}

// Option configures a Router at construction time.
type Option func(*Router)

// WithLogger sets the structured logger. The default is a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(rt *Router) { rt.logger = logger }
}

// WithPathTidier replaces the path normalization applied before route
// matching. The default is DefaultPathTidier.
func WithPathTidier(tidy PathTidier) Option {
	return func(rt *Router) { rt.tidy = tidy }
}

// New constructs an empty router.
func New(opts ...Option) *Router {
	rt := &Router{
		tidy:   DefaultPathTidier,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

// Routes returns the number of registered routes, including lazily
// installed synthetic ones.
func (rt *Router) Routes() int {
	return len(rt.routes)
}

// Fetch is the main invocation entry point: it accepts the native request
// and the per-invocation environment bindings and always returns a usable
// native response: route misses become 404s and middleware errors become
// derived error responses, never escaped panics.
func (rt *Router) Fetch(ctx context.Context, native *fsthttp.Request, env *Env) *fsthttp.Response {
	res := rt.dispatch(ctx, native, env)
	resp, err := res.Native(ctx)
	if err != nil {
		rt.logger.Error("finalize response", zap.Error(err))
		fallback := NewResponse()
		fallback.Status(fsthttp.StatusInternalServerError).End("Response finalization failed")
		resp, _ = fallback.Native(ctx)
	}
	return resp
}

// ServeHTTP implements fsthttp.Handler, writing the dispatch result to the
// native response writer. The environment bindings are taken from the
// context when present (see ContextWithEnv).
func (rt *Router) ServeHTTP(ctx context.Context, w fsthttp.ResponseWriter, r *fsthttp.Request) {
	res := rt.dispatch(ctx, r, EnvFromContext(ctx))
	if err := res.WriteTo(ctx, w); err != nil {
		rt.logger.Error("write response", zap.Error(err))
		w.WriteHeader(fsthttp.StatusInternalServerError)
		fmt.Fprint(w, "Response finalization failed")
	}
}

// Serve hands the router to the host's request loop with the given
// environment bindings. It blocks for the lifetime of the invocation.
func (rt *Router) Serve(env *Env) {
	fsthttp.ServeFunc(func(ctx context.Context, w fsthttp.ResponseWriter, r *fsthttp.Request) {
		rt.ServeHTTP(ContextWithEnv(ctx, env), w, r)
	})
}

// dispatch runs the per-request state machine and returns the accumulated,
// not-yet-serialized response.
func (rt *Router) dispatch(ctx context.Context, native *fsthttp.Request, env *Env) *Response {
	rt.ensureInstalled(env)

	req := NewRequest(native, env, rt.tidy)
	res := NewResponse()

	if env.Debug() {
		rt.logger.Debug("dispatch",
			zap.String("id", req.ID),
			zap.String("method", req.Method),
			zap.String("path", req.Path),
		)
	}

	// Global middleware runs unconditionally for every request.
	if outcome := rt.runChain(ctx, rt.global, req, res); outcome != chainContinue {
		return res
	}

	route, params, found := rt.resolve(req.Method, req.Path)
	if !found {
		res.Status(fsthttp.StatusNotFound).End("No route matching " + req.Method + " " + req.Path)
		return res
	}
	req.Params = params

	outcome := rt.runChain(ctx, route.chain, req, res)
	if outcome == chainContinue && !res.HasSent() {
		// A route chain that runs to completion without ever producing a
		// response is a defect in the route's middleware, not a request
		// condition; it must surface loudly rather than be papered over.
		panic(configErrorf("middleware chain ended without returning a response (%s %s)", req.Method, req.Path))
	}
	return res
}

// ensureInstalled performs the one-time lazy route mutations: the synthetic
// scheduled endpoint (when the invocation enables it) and the CORS OPTIONS
// routes. Both are idempotent build steps, not per-request work.
func (rt *Router) ensureInstalled(env *Env) {
	if env.SchedulerEnabled() {
		rt.ensureScheduledRoute()
	}
	rt.ensureCorsRoutes()
}

// resolve finds the first route, in registration order, whose method set
// contains the request method and whose matchers accept the tidied path.
func (rt *Router) resolve(method, path string) (*Route, map[string]string, bool) {
	for _, route := range rt.routes {
		if !route.allowsMethod(method) {
			continue
		}
		if params, ok := route.match(path); ok {
			if params == nil {
				params = map[string]string{}
			}
			return route, params, true
		}
	}
	return nil, nil, false
}

// chainOutcome is the explicit result of one chain execution step: keep
// going, the response is complete, or the error path already finalized it.
type chainOutcome int

const (
	chainContinue chainOutcome = iota
	chainComplete
	chainError
)

// runChain executes one middleware chain under the chain-execution
// protocol: items resolve to callables and run strictly in order, each
// completing before the next starts. After every item the completion flag
// is checked so earlier middleware can short-circuit later ones. A non-nil
// value returned by the final item that is not the response itself becomes
// an implicit Send. Errors (returned or panicked) are captured and
// converted into an error response; they never propagate past the chain
// boundary. Configuration errors are the exception: they re-raise, because
// they mean the application is miswired.
func (rt *Router) runChain(ctx context.Context, chain []Middleware, req *Request, res *Response) chainOutcome {
	for i, item := range chain {
		fn, err := item.resolve(rt)
		if err != nil {
			panic(err)
		}

		value, err := runStep(ctx, fn, req, res)
		if err != nil {
			rt.failChain(ctx, req, res, err)
			return chainError
		}
		if res.HasSent() {
			return chainComplete
		}
		if i == len(chain)-1 && value != nil {
			if value == any(res) {
				res.End()
			} else {
				res.Send(value)
			}
			return chainComplete
		}
	}
	return chainContinue
}

// runStep invokes one middleware item, converting panics into errors so the
// chain's error path can finalize a response. ConfigError panics pass
// through untouched.
func runStep(ctx context.Context, fn HandlerFunc, req *Request, res *Response) (value any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			if _, fatal := rec.(*ConfigError); fatal {
				panic(rec)
			}
			err = recoveredError(rec)
		}
	}()
	return fn(ctx, req, res)
}

// failChain finalizes a response for a captured middleware error: error
// hooks run first (side channel only), then the derived status and body are
// applied and the response marked complete.
func (rt *Router) failChain(ctx context.Context, req *Request, res *Response, err error) {
	code, body := deriveStatus(err)
	rt.logger.Warn("middleware error",
		zap.String("id", req.ID),
		zap.String("path", req.Path),
		zap.Int("status", code),
		zap.Error(err),
	)
	res.runAfterError(ctx, err)
	res.Status(code)
	res.End(body)
}
