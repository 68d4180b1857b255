// Package cowboy is a small routing and middleware layer for one-shot edge
// compute programs. It sits between the platform's native fetch-style
// primitives and application logic: requests are normalized, matched against
// registered routes in order, run through a middleware chain, and turned back
// into a native response.
//
// A minimal application registers routes on a Router and hands it to the
// host's request loop:
//
//	rt := cowboy.New()
//	rt.Get("/widgets/:id", cowboy.HandlerFunc(func(ctx context.Context, req *cowboy.Request, res *cowboy.Response) (any, error) {
//		return map[string]string{"id": req.Params["id"]}, nil
//	}))
//	rt.Serve(cowboy.NewEnv())
//
// Handlers complete a request by returning a value (sent implicitly), by
// calling a completing method on the Response, or by returning an error; an
// error of the form "404: not here" carries its own status code. Reusable
// middleware is referenced by name via Named and resolved against a static
// registry, so the set of behaviors a chain can invoke is closed and
// misconfigurations surface as panics rather than silent no-ops.
package cowboy
