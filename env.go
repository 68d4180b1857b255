package cowboy

import (
	"context"
	"fmt"
	"strings"

	"github.com/fastly/compute-sdk-go/configstore"
)

// Recognized environment binding names. The execution environment provides
// bindings fresh on every invocation, so feature flags are read here rather
// than from process-wide configuration; a one-shot execution context has no
// reliable process-wide startup hook.
const (
	// EnvDebug enables per-invocation debug logging when truthy.
	EnvDebug = "DEBUG"

	// EnvScheduler enables the synthetic GET /__scheduled endpoint when truthy.
	EnvScheduler = "SCHEDULER"
)

// Env holds the per-invocation environment bindings handed to the router by
// the host: feature flags, connection strings, and any values the
// application wants visible to its middleware. An Env is owned by a single
// invocation and is never shared across requests.
type Env struct {
	values map[string]any
}

// NewEnv returns an empty set of bindings.
func NewEnv() *Env {
	return &Env{values: map[string]any{}}
}

// EnvFromConfigStore hydrates bindings from an edge config store, for
// deployments where the host exposes configuration that way. The listed keys
// are copied into the Env; keys missing from the store are skipped.
func EnvFromConfigStore(name string, keys ...string) (*Env, error) {
	store, err := configstore.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open config store %q: %w", name, err)
	}
	env := NewEnv()
	for _, key := range keys {
		value, err := store.Get(key)
		if err != nil {
			continue
		}
		env.Set(key, value)
	}
	return env, nil
}

// Set stores a binding, returning the Env for chaining during setup.
func (e *Env) Set(key string, value any) *Env {
	e.values[key] = value
	return e
}

// Get returns the raw binding and whether it exists. A nil Env has no
// bindings.
func (e *Env) Get(key string) (any, bool) {
	if e == nil {
		return nil, false
	}
	v, ok := e.values[key]
	return v, ok
}

// String returns a binding as a string, or "" when absent or not stringly.
func (e *Env) String(key string) string {
	if e == nil {
		return ""
	}
	switch v := e.values[key].(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return ""
	}
}

// Bool interprets a binding as a flag. Boolean bindings are returned as-is;
// string bindings count as true for "1", "true", "yes" and "on" (any case).
func (e *Env) Bool(key string) bool {
	if e == nil {
		return false
	}
	switch v := e.values[key].(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(v) {
		case "1", "true", "yes", "on":
			return true
		}
	}
	return false
}

// Debug reports whether the debug flag is set for this invocation.
func (e *Env) Debug() bool {
	return e != nil && e.Bool(EnvDebug)
}

// SchedulerEnabled reports whether the scheduler flag is set for this
// invocation.
func (e *Env) SchedulerEnabled() bool {
	return e != nil && e.Bool(EnvScheduler)
}

type envContextKey struct{}

// ContextWithEnv attaches environment bindings to a context so handler-style
// entry points (ServeHTTP) can reach them without an extra parameter.
func ContextWithEnv(ctx context.Context, env *Env) context.Context {
	return context.WithValue(ctx, envContextKey{}, env)
}

// EnvFromContext returns the bindings attached by ContextWithEnv, or nil when
// none were attached. All Env accessors tolerate a nil receiver, so callers
// can use the result directly.
func EnvFromContext(ctx context.Context) *Env {
	env, _ := ctx.Value(envContextKey{}).(*Env)
	return env
}
