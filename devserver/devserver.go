// Package devserver bridges a cowboy router onto net/http so applications
// can be exercised locally with ordinary HTTP tooling instead of the edge
// host. It is a development convenience only; production traffic enters
// through the router's native entry points.
package devserver

import (
	"fmt"
	"io"
	"net/http"

	cowboy "github.com/MomsFriendlyDevCo/Cowboy"
	"github.com/fastly/compute-sdk-go/fsthttp"
	"go.uber.org/zap"
)

// Handler adapts a router and its environment bindings to net/http. Each
// incoming request is translated to the native form, dispatched, and the
// finalized response copied back out.
func Handler(rt *cowboy.Router, env *cowboy.Env) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		native, err := translateRequest(r)
		if err != nil {
			http.Error(w, "request translation failed: "+err.Error(), http.StatusInternalServerError)
			return
		}

		resp := rt.Fetch(r.Context(), native, env)
		for _, key := range resp.Header.Keys() {
			for _, value := range resp.Header.Values(key) {
				w.Header().Add(key, value)
			}
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != nil {
			defer resp.Body.Close()
			_, _ = io.Copy(w, resp.Body)
		}
	})
}

// translateRequest rebuilds a net/http request as a native one, preserving
// method, URI, headers and body.
func translateRequest(r *http.Request) (*fsthttp.Request, error) {
	native, err := fsthttp.NewRequest(r.Method, r.URL.RequestURI(), r.Body)
	if err != nil {
		return nil, err
	}
	for key, values := range r.Header {
		for _, value := range values {
			native.Header.Add(key, value)
		}
	}
	native.Host = r.Host
	return native, nil
}

// ListenAndServe runs a local HTTP server on addr, dispatching every request
// through the router. It blocks until the server stops.
func ListenAndServe(addr string, rt *cowboy.Router, env *cowboy.Env, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("dev server listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, Handler(rt, env)); err != nil {
		return fmt.Errorf("dev server: %w", err)
	}
	return nil
}
