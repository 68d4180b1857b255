package cowboy

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// HandlerFunc is the unit of request-processing logic. Middleware and route
// handlers share this signature and compose into chains.
//
// A handler can finish a request three ways:
//   - call a completing method on res (Send, End, SendStatus): the chain
//     stops and the accumulated response is served;
//   - return a non-nil value from the last chain item: the value is wrapped
//     via res.Send implicitly, so plain handlers can simply return data;
//   - return an error: the dispatcher derives a status and body from it
//     (see HTTPError) and finalizes an error response.
//
// Returning (nil, nil) from a non-final item continues the chain.
type HandlerFunc func(ctx context.Context, req *Request, res *Response) (any, error)

// Middleware is a reference to a unit of request-processing logic: either a
// HandlerFunc directly, or a named lookup into the middleware registry
// (optionally with options). The closed set of forms keeps resolution
// explicit: an unknown name is a configuration error at resolution time,
// not a silent fallthrough.
type Middleware interface {
	resolve(rt *Router) (HandlerFunc, error)
}

func (f HandlerFunc) resolve(*Router) (HandlerFunc, error) {
	return f, nil
}

type namedMiddleware struct {
	name string
	opts []any
}

// Named references a registered middleware by name, with optional positional
// options passed to its factory. Resolution happens once per chain
// execution, not cached across invocations, because options may differ per
// call site.
func Named(name string, opts ...any) Middleware {
	return &namedMiddleware{name: name, opts: opts}
}

func (m *namedMiddleware) resolve(rt *Router) (HandlerFunc, error) {
	factory, ok := lookupMiddleware(m.name)
	if !ok {
		return nil, configErrorf("unknown middleware %q", m.name)
	}
	return factory(rt, m.opts...)
}

// MiddlewareFactory builds a HandlerFunc for a named middleware reference.
// The router is supplied so factories can install one-time route state (the
// CORS OPTIONS routes, for example).
type MiddlewareFactory func(rt *Router, opts ...any) (HandlerFunc, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]MiddlewareFactory{}
)

// RegisterMiddleware adds a factory to the static name registry consulted by
// Named references. Like database/sql drivers, registration is expected at
// init time; re-registering a name overwrites the previous factory.
func RegisterMiddleware(name string, factory MiddlewareFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

func lookupMiddleware(name string) (MiddlewareFactory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	factory, ok := registry[name]
	return factory, ok
}

// Validator is the boundary to an external validation schema: it receives
// the parsed body and reports pass/fail plus error detail. Its internals are
// out of scope here.
type Validator interface {
	Validate(body any) error
}

func init() {
	RegisterMiddleware("log", logMiddleware)
	RegisterMiddleware("parseBody", parseBodyMiddleware)
	RegisterMiddleware("validate", validateMiddleware)
	RegisterMiddleware("cors", corsMiddleware)
}

// logMiddleware emits one structured line per request. Duration is measured
// to the before-serve point so it covers the whole chain.
func logMiddleware(rt *Router, opts ...any) (HandlerFunc, error) {
	return func(ctx context.Context, req *Request, res *Response) (any, error) {
		begin := time.Now()
		res.BeforeServe(func(ctx context.Context, res *Response) error {
			rt.logger.Info("request",
				zap.String("id", req.ID),
				zap.String("method", req.Method),
				zap.String("path", req.Path),
				zap.Int("status", res.StatusCode()),
				zap.Duration("elapsed", time.Since(begin)),
			)
			return nil
		})
		return nil, nil
	}, nil
}

// parseBodyMiddleware forces the lazy body-parsing step. An optional string
// option overrides the content type used to select the decoding strategy.
func parseBodyMiddleware(rt *Router, opts ...any) (HandlerFunc, error) {
	forced := ""
	if len(opts) > 0 {
		s, ok := opts[0].(string)
		if !ok {
			return nil, configErrorf("parseBody option must be a content type string, got %T", opts[0])
		}
		forced = s
	}
	return func(ctx context.Context, req *Request, res *Response) (any, error) {
		return nil, req.ParseBody(ctx, forced)
	}, nil
}

// validateMiddleware runs an external Validator against the parsed body.
// The body is always parsed first, so validators see decoded values rather
// than raw bytes.
func validateMiddleware(rt *Router, opts ...any) (HandlerFunc, error) {
	if len(opts) != 1 {
		return nil, configErrorf("validate requires exactly one Validator option")
	}
	validator, ok := opts[0].(Validator)
	if !ok {
		return nil, configErrorf("validate option must implement Validator, got %T", opts[0])
	}
	return func(ctx context.Context, req *Request, res *Response) (any, error) {
		if err := req.ParseBody(ctx); err != nil {
			return nil, err
		}
		if err := validator.Validate(req.Body); err != nil {
			return nil, NewHTTPError(400, err.Error())
		}
		return nil, nil
	}, nil
}
