package cowboy

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/fastly/compute-sdk-go/fsthttp"
	"github.com/fastly/compute-sdk-go/fsttest"
)

func handler(fn func(req *Request, res *Response) (any, error)) HandlerFunc {
	return func(ctx context.Context, req *Request, res *Response) (any, error) {
		return fn(req, res)
	}
}

func fetch(t *testing.T, rt *Router, method, path string) (*fsthttp.Response, string) {
	t.Helper()
	native, err := fsthttp.NewRequest(method, path, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp := rt.Fetch(context.Background(), native, NewEnv())
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response body: %v", err)
	}
	return resp, string(raw)
}

func TestRouterImplicitSend(t *testing.T) {
	rt := New()
	rt.Get("/widgets/:id", handler(func(req *Request, res *Response) (any, error) {
		return map[string]string{"id": req.Params["id"]}, nil
	}))

	resp, body := fetch(t, rt, "GET", "/widgets/42")
	if resp.StatusCode != 200 {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if body != `{"id":"42"}` {
		t.Errorf("body = %q, want %q", body, `{"id":"42"}`)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}

func TestRouterStringReturn(t *testing.T) {
	rt := New()
	rt.Get("/ping", handler(func(req *Request, res *Response) (any, error) {
		return "pong", nil
	}))

	resp, body := fetch(t, rt, "GET", "/ping")
	if resp.StatusCode != 200 || body != "pong" {
		t.Errorf("got %d %q, want 200 pong", resp.StatusCode, body)
	}
}

func TestRouterNoRoute(t *testing.T) {
	rt := New()
	rt.Get("/widgets", handler(func(req *Request, res *Response) (any, error) {
		return "ok", nil
	}))

	resp, body := fetch(t, rt, "GET", "/gadgets")
	if resp.StatusCode != 404 {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
	if body != "No route matching GET /gadgets" {
		t.Errorf("body = %q", body)
	}
}

func TestRouterMethodMismatchIs404(t *testing.T) {
	rt := New()
	rt.Get("/widgets", handler(func(req *Request, res *Response) (any, error) {
		return "ok", nil
	}))

	resp, _ := fetch(t, rt, "POST", "/widgets")
	if resp.StatusCode != 404 {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestRouterShortCircuit(t *testing.T) {
	rt := New()
	reached := false
	rt.Get("/early",
		handler(func(req *Request, res *Response) (any, error) {
			res.Status(201).Send("done early")
			return nil, nil
		}),
		handler(func(req *Request, res *Response) (any, error) {
			reached = true
			return "too late", nil
		}),
	)

	resp, body := fetch(t, rt, "GET", "/early")
	if resp.StatusCode != 201 || body != "done early" {
		t.Errorf("got %d %q, want 201 done early", resp.StatusCode, body)
	}
	if reached {
		t.Error("middleware after completion still ran")
	}
}

func TestRouterChainContinues(t *testing.T) {
	rt := New()
	var order []string
	rt.Get("/chained",
		handler(func(req *Request, res *Response) (any, error) {
			order = append(order, "first")
			return nil, nil
		}),
		handler(func(req *Request, res *Response) (any, error) {
			order = append(order, "second")
			return "end", nil
		}),
	)

	_, body := fetch(t, rt, "GET", "/chained")
	if body != "end" {
		t.Errorf("body = %q, want end", body)
	}
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("execution order = %v", order)
	}
}

func TestRouterNonFinalReturnIgnored(t *testing.T) {
	rt := New()
	rt.Get("/mid",
		handler(func(req *Request, res *Response) (any, error) {
			return "ignored", nil
		}),
		handler(func(req *Request, res *Response) (any, error) {
			return "kept", nil
		}),
	)

	_, body := fetch(t, rt, "GET", "/mid")
	if body != "kept" {
		t.Errorf("body = %q, want kept (non-final return values are not sent)", body)
	}
}

func TestRouterErrorHandling(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantBody string
	}{
		{
			name:     "textual status convention",
			err:      errors.New("404: widget missing"),
			wantCode: 404,
			wantBody: "widget missing",
		},
		{
			name:     "typed http error",
			err:      NewHTTPError(403, "forbidden zone"),
			wantCode: 403,
			wantBody: "forbidden zone",
		},
		{
			name:     "plain error",
			err:      errors.New("oops"),
			wantCode: 400,
			wantBody: "oops",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := New()
			rt.Get("/fail", handler(func(req *Request, res *Response) (any, error) {
				return nil, tt.err
			}))
			resp, body := fetch(t, rt, "GET", "/fail")
			if resp.StatusCode != tt.wantCode {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantCode)
			}
			if body != tt.wantBody {
				t.Errorf("body = %q, want %q", body, tt.wantBody)
			}
		})
	}
}

func TestRouterPanicBecomesError(t *testing.T) {
	rt := New()
	rt.Get("/explode", handler(func(req *Request, res *Response) (any, error) {
		panic("kaboom")
	}))

	resp, body := fetch(t, rt, "GET", "/explode")
	if resp.StatusCode != 400 {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	if body != "kaboom" {
		t.Errorf("body = %q, want kaboom", body)
	}
}

func TestRouterStreamReadFailure(t *testing.T) {
	rt := New()
	rt.Get("/stream", handler(func(req *Request, res *Response) (any, error) {
		res.Send(failingReader{})
		return nil, nil
	}))

	resp, body := fetch(t, rt, "GET", "/stream")
	if resp.StatusCode != 500 {
		t.Errorf("status = %d, want 500 (a failing body stream must yield an error response, not a crash)", resp.StatusCode)
	}
	if body != "Failed to read response body stream" {
		t.Errorf("body = %q", body)
	}
}

func TestRouterAfterErrorHook(t *testing.T) {
	rt := New()
	var hooked error
	rt.Get("/fail",
		handler(func(req *Request, res *Response) (any, error) {
			res.AfterError(func(ctx context.Context, res *Response, err error) {
				hooked = err
			})
			return nil, nil
		}),
		handler(func(req *Request, res *Response) (any, error) {
			return nil, errors.New("500: broke")
		}),
	)

	resp, body := fetch(t, rt, "GET", "/fail")
	if resp.StatusCode != 500 || body != "broke" {
		t.Errorf("got %d %q, want 500 broke", resp.StatusCode, body)
	}
	if hooked == nil || hooked.Error() != "500: broke" {
		t.Errorf("after-error hook saw %v", hooked)
	}
}

func TestRouterChainEndsWithoutResponse(t *testing.T) {
	rt := New()
	rt.Get("/silent", handler(func(req *Request, res *Response) (any, error) {
		return nil, nil
	}))

	defer func() {
		rec := recover()
		if rec == nil {
			t.Fatal("expected panic for silent chain")
		}
		if _, ok := rec.(*ConfigError); !ok {
			t.Fatalf("recovered %T, want *ConfigError", rec)
		}
	}()
	native, _ := fsthttp.NewRequest("GET", "/silent", nil)
	rt.Fetch(context.Background(), native, NewEnv())
}

func TestRouterFirstMatchWins(t *testing.T) {
	rt := New()
	rt.Get("/widgets/:id", handler(func(req *Request, res *Response) (any, error) {
		return "by id", nil
	}))
	rt.Get("/widgets/special", handler(func(req *Request, res *Response) (any, error) {
		return "special", nil
	}))

	_, body := fetch(t, rt, "GET", "/widgets/special")
	if body != "by id" {
		t.Errorf("body = %q, want the earlier registration to win", body)
	}
}

func TestRouterGlobalMiddleware(t *testing.T) {
	rt := New()
	rt.Use(handler(func(req *Request, res *Response) (any, error) {
		res.Set("X-Global", "yes")
		return nil, nil
	}))
	rt.Get("/here", handler(func(req *Request, res *Response) (any, error) {
		return "ok", nil
	}))

	resp, _ := fetch(t, rt, "GET", "/here")
	if resp.Header.Get("X-Global") != "yes" {
		t.Error("global middleware header missing")
	}
}

func TestRouterGlobalShortCircuit(t *testing.T) {
	rt := New()
	rt.Use(handler(func(req *Request, res *Response) (any, error) {
		res.Status(401).End("denied")
		return nil, nil
	}))
	reached := false
	rt.Get("/here", handler(func(req *Request, res *Response) (any, error) {
		reached = true
		return "ok", nil
	}))

	resp, body := fetch(t, rt, "GET", "/here")
	if resp.StatusCode != 401 || body != "denied" {
		t.Errorf("got %d %q, want 401 denied", resp.StatusCode, body)
	}
	if reached {
		t.Error("route ran despite global short-circuit")
	}
}

func TestRouterUnknownNamedMiddleware(t *testing.T) {
	rt := New()
	rt.Get("/here", Named("definitely-not-registered"))

	defer func() {
		rec := recover()
		if rec == nil {
			t.Fatal("expected panic for unknown named middleware")
		}
		if _, ok := rec.(*ConfigError); !ok {
			t.Fatalf("recovered %T, want *ConfigError", rec)
		}
	}()
	native, _ := fsthttp.NewRequest("GET", "/here", nil)
	rt.Fetch(context.Background(), native, NewEnv())
}

func TestRouterNoMiddlewarePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for route with no middleware")
		}
	}()
	New().Get("/empty")
}

func TestRouterReturningResponseEndsIt(t *testing.T) {
	rt := New()
	rt.Get("/res", handler(func(req *Request, res *Response) (any, error) {
		return res.Status(202).SendKeep("staged"), nil
	}))

	resp, body := fetch(t, rt, "GET", "/res")
	if resp.StatusCode != 202 || body != "staged" {
		t.Errorf("got %d %q, want 202 staged", resp.StatusCode, body)
	}
}

func TestRouterAllMethods(t *testing.T) {
	rt := New()
	rt.All("/any", handler(func(req *Request, res *Response) (any, error) {
		return req.Method, nil
	}))

	for _, method := range []string{"GET", "POST", "DELETE"} {
		_, body := fetch(t, rt, method, "/any")
		if body != method {
			t.Errorf("body = %q, want %q", body, method)
		}
	}
}

func TestRouterGroup(t *testing.T) {
	rt := New()
	api := rt.Group("/widgets", handler(func(req *Request, res *Response) (any, error) {
		res.Set("X-Shared", "yes")
		return nil, nil
	}))
	api.Get("/:id", handler(func(req *Request, res *Response) (any, error) {
		return req.Params["id"], nil
	}))
	api.Post("/", handler(func(req *Request, res *Response) (any, error) {
		return "created", nil
	}))

	resp, body := fetch(t, rt, "GET", "/widgets/42")
	if body != "42" {
		t.Errorf("body = %q, want 42", body)
	}
	if resp.Header.Get("X-Shared") != "yes" {
		t.Error("shared group middleware did not run")
	}

	_, body = fetch(t, rt, "POST", "/widgets")
	if body != "created" {
		t.Errorf("body = %q, want created", body)
	}
}

func TestRouterGroupRejectsRegexp(t *testing.T) {
	defer func() {
		rec := recover()
		if rec == nil {
			t.Fatal("expected panic for regexp pattern in group")
		}
		if _, ok := rec.(*ConfigError); !ok {
			t.Fatalf("recovered %T, want *ConfigError", rec)
		}
	}()
	New().Group("/api").Get(42, handler(func(req *Request, res *Response) (any, error) {
		return nil, nil
	}))
}

func TestRouterPathTidierApplied(t *testing.T) {
	rt := New()
	rt.Get("/widgets/:id", handler(func(req *Request, res *Response) (any, error) {
		return req.Params["id"], nil
	}))

	_, body := fetch(t, rt, "GET", "/api/myapp/widgets/42")
	if body != "42" {
		t.Errorf("body = %q, want 42 (mount prefix should be tidied away)", body)
	}
}

func TestRouterServeHTTP(t *testing.T) {
	rt := New()
	rt.Get("/ping", handler(func(req *Request, res *Response) (any, error) {
		return "pong", nil
	}))

	native, err := fsthttp.NewRequest("GET", "/ping", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	rec := fsttest.NewRecorder()
	rt.ServeHTTP(ContextWithEnv(context.Background(), NewEnv()), rec, native)

	if rec.Code != 200 {
		t.Errorf("code = %d, want 200", rec.Code)
	}
	if got := rec.Body.String(); got != "pong" {
		t.Errorf("body = %q, want pong", got)
	}
}

func TestRouterProxyBody(t *testing.T) {
	rt := New()
	rt.Post("/ingest", handler(func(req *Request, res *Response) (any, error) {
		if err := req.ParseBody(context.Background()); err != nil {
			return nil, err
		}
		return req.Body, nil
	}))

	resp, err := rt.Proxy(context.Background(), "/ingest", ProxyOptions{
		Method: "POST",
		Body:   map[string]string{"name": "widget"},
	}, NewEnv())
	if err != nil {
		t.Fatalf("Proxy() error = %v", err)
	}
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != 200 {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if !strings.Contains(string(raw), `"name":"widget"`) {
		t.Errorf("body = %q, want the multipart fields echoed back", raw)
	}
}
