package middleware

import (
	"context"
	"sync"

	cowboy "github.com/MomsFriendlyDevCo/Cowboy"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultDatabaseBinding is the environment binding consulted for the
// connection string when no override is given.
const DefaultDatabaseBinding = "DATABASE_URL"

// databasePoolKey is the environment key under which the middleware exposes
// the pool to downstream handlers.
const databasePoolKey = "cowboy.database.pool"

var (
	poolsMu sync.Mutex
	pools   = map[string]*pgxpool.Pool{}
)

func init() {
	cowboy.RegisterMiddleware("database", databaseMiddleware)
}

// databaseMiddleware resolves a Postgres pool from the invocation's
// environment bindings and exposes it to the rest of the chain via Pool.
// Pools are created lazily (pgxpool defers dialing until first use) and
// cached per connection string, so repeat invocations with the same binding
// share one pool. An optional string option overrides the binding name.
func databaseMiddleware(rt *cowboy.Router, opts ...any) (cowboy.HandlerFunc, error) {
	binding := DefaultDatabaseBinding
	if len(opts) > 0 {
		s, ok := opts[0].(string)
		if !ok {
			return nil, &cowboy.ConfigError{Message: "database option must be a binding name string"}
		}
		binding = s
	}

	return func(ctx context.Context, req *cowboy.Request, res *cowboy.Response) (any, error) {
		dsn := req.Env.String(binding)
		if dsn == "" {
			return nil, cowboy.NewHTTPError(500, "database binding "+binding+" is not configured")
		}
		pool, err := openPool(ctx, dsn)
		if err != nil {
			return nil, cowboy.NewHTTPError(500, "database configuration invalid: "+err.Error())
		}
		req.Env.Set(databasePoolKey, pool)
		return nil, nil
	}, nil
}

func openPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	poolsMu.Lock()
	defer poolsMu.Unlock()
	if pool, ok := pools[dsn]; ok {
		return pool, nil
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	pools[dsn] = pool
	return pool, nil
}

// Pool returns the Postgres pool exposed by the database middleware for this
// invocation, or false when the middleware did not run.
func Pool(env *cowboy.Env) (*pgxpool.Pool, bool) {
	v, ok := env.Get(databasePoolKey)
	if !ok {
		return nil, false
	}
	pool, ok := v.(*pgxpool.Pool)
	return pool, ok
}
