package cowboy

import (
	"context"
	"time"

	"github.com/fastly/compute-sdk-go/fsthttp"
	"go.uber.org/zap"
)

// ScheduledRoutePath is the synthetic endpoint installed for manual
// triggering of the scheduled handler when the scheduler env flag is set.
const ScheduledRoutePath = "/__scheduled"

// TriggerEvent describes a timer/cron-style invocation from the host.
type TriggerEvent struct {
	// Type distinguishes host-delivered triggers ("cron") from manual ones
	// ("manual", via the synthetic endpoint).
	Type string

	// Cron is the schedule expression that fired, when the host provides it.
	Cron string

	// ScheduledTime is when the trigger was due.
	ScheduledTime time.Time
}

// ScheduledHandler processes a timer-driven invocation. Completion is
// signaled by returning: the adapter registers the handler's outcome with
// the host's completion tracker itself, so handlers must not reach for a
// completion primitive directly.
type ScheduledHandler func(ctx context.Context, event *TriggerEvent, env *Env) error

// ExecutionContext is the host's completion tracker for scheduled
// invocations. The host keeps the invocation alive until every registered
// unit of work finishes.
type ExecutionContext interface {
	WaitUntil(fn func() error)
}

// Schedule registers the scheduled handler. At most one handler exists;
// registering again overwrites the previous one.
func (rt *Router) Schedule(h ScheduledHandler) *Router {
	rt.scheduled = h
	return rt
}

// RunScheduled is the scheduled invocation entry point. It translates the
// host's trigger into a handler call and registers the handler's completion
// with the host's tracking context, so the handler itself never touches the
// completion primitive.
func (rt *Router) RunScheduled(ctx context.Context, event *TriggerEvent, env *Env, exec ExecutionContext) {
	if rt.scheduled == nil {
		rt.logger.Warn("scheduled trigger received with no handler registered")
		return
	}
	handler := rt.scheduled
	guarded := contextWithExecution(ctx, guardedExecution{})
	exec.WaitUntil(func() error {
		err := handler(guarded, event, env)
		if err != nil {
			rt.logger.Error("scheduled handler failed", zap.Error(err))
		}
		return err
	})
}

// ExecutionFromContext exposes the completion tracker visible to a running
// scheduled handler. Inside handlers this is always the misuse guard:
// calling WaitUntil on it fails fast, because the adapter already tracks the
// handler's returned error and double registration would be silently wrong.
func ExecutionFromContext(ctx context.Context) (ExecutionContext, bool) {
	exec, ok := ctx.Value(executionContextKey{}).(ExecutionContext)
	return exec, ok
}

type executionContextKey struct{}

func contextWithExecution(ctx context.Context, exec ExecutionContext) context.Context {
	return context.WithValue(ctx, executionContextKey{}, exec)
}

// guardedExecution fails fast on direct completion registration from inside
// a scheduled handler.
type guardedExecution struct{}

func (guardedExecution) WaitUntil(func() error) {
	panic(configErrorf("scheduled handlers must not register completion directly; return from the handler instead"))
}

// ensureScheduledRoute installs the synthetic GET endpoint that manually
// invokes the scheduled handler with a fabricated trigger event. Installed
// at most once per router, lazily on first dispatch, and positioned ahead
// of the first GET route so scheduling probes are never shadowed by
// user-declared patterns; appended when no GET route exists.
func (rt *Router) ensureScheduledRoute() {
	if rt.scheduledInstalled {
		return
	}
	rt.scheduledInstalled = true

	route := newRoute([]string{"GET"}, ScheduledRoutePath, []Middleware{
		HandlerFunc(func(ctx context.Context, req *Request, res *Response) (any, error) {
			if rt.scheduled == nil {
				return nil, NewHTTPError(fsthttp.StatusNotFound, "No scheduled handler registered")
			}
			event := &TriggerEvent{Type: "manual", ScheduledTime: time.Now()}
			if err := rt.scheduled(contextWithExecution(ctx, guardedExecution{}), event, req.Env); err != nil {
				return nil, err
			}
			return defaultOKBody, nil
		}),
	})

	insertAt := len(rt.routes)
	for i, existing := range rt.routes {
		if existing.allowsMethod("GET") {
			insertAt = i
			break
		}
	}
	rt.routes = append(rt.routes, nil)
	copy(rt.routes[insertAt+1:], rt.routes[insertAt:])
	rt.routes[insertAt] = route
}
