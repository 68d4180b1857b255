package cowboy

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/url"
	"regexp"
	"strings"

	"github.com/fastly/compute-sdk-go/fsthttp"
)

// Default bodies inferred when a status code is set on an empty response.
const (
	defaultOKBody   = "ok"
	defaultFailBody = "fail"
)

// mimeShorthands maps the Type() shortcuts to canonical content types.
var mimeShorthands = map[string]string{
	"html": "text/html",
	"json": "application/json",
	"text": "text/plain",
}

var mimeShape = regexp.MustCompile(`^[a-zA-Z0-9!#$&^_.+-]+/[a-zA-Z0-9!#$&^_.+-]+$`)

// Response is a mutable accumulator for status code, headers and body,
// finally converted into a single native response. All mutators return the
// same instance so calls can be chained:
//
//	res.Status(201).Type("json").Send(widget)
//
// Once a response is marked complete (via Send, End or SendStatus) no
// further middleware in the active chain runs; the dispatcher checks the
// completion flag after every middleware step.
type Response struct {
	code   int
	header fsthttp.Header
	body   []byte
	sent   bool

	beforeServe []func(context.Context, *Response) error
	afterError  []func(context.Context, *Response, error)
	prepared    bool
}

// NewResponse returns a fresh, empty response: no status code, no headers,
// empty body, not yet completed.
func NewResponse() *Response {
	return &Response{header: fsthttp.NewHeader()}
}

// StatusCode returns the current status code, or 0 while unset.
func (res *Response) StatusCode() int {
	return res.code
}

// Header returns the mutable header mapping. Keys are case-insensitive.
func (res *Response) Header() fsthttp.Header {
	return res.header
}

// Body returns the current body bytes.
func (res *Response) Body() []byte {
	return res.body
}

// HasSent reports whether the response has been marked complete. A true
// value is the terminal signal for a middleware chain.
func (res *Response) HasSent() bool {
	return res.sent
}

// Set merges a single header into the response.
func (res *Response) Set(key, value string) *Response {
	res.header.Set(key, value)
	return res
}

// SetMap merges a map of headers into the response.
func (res *Response) SetMap(headers map[string]string) *Response {
	for key, value := range headers {
		res.header.Set(key, value)
	}
	return res
}

// Type sets the Content-Type header. The shorthands "html", "json" and
// "text" map to their canonical MIME types; any other value must already
// look like "type/subtype" or the call panics with a ConfigError.
func (res *Response) Type(shorthand string) *Response {
	mime, ok := mimeShorthands[strings.ToLower(shorthand)]
	if !ok {
		if !mimeShape.MatchString(shorthand) {
			panic(configErrorf("invalid content type shorthand %q", shorthand))
		}
		mime = shorthand
	}
	res.header.Set("Content-Type", mime)
	return res
}

// Status sets the status code, with the default-body policy: setting a 2xx
// code on an empty body fills in "ok", any 4xx/5xx code on an empty body
// fills in "fail", and 1xx, 3xx and 204 codes clear the body entirely
// (responses in those ranges must not carry content).
func (res *Response) Status(code int) *Response {
	res.code = code
	switch {
	case code == fsthttp.StatusNoContent || (code >= 100 && code < 200) || (code >= 300 && code < 400):
		res.body = nil
	case len(res.body) == 0 && code >= 200 && code < 300:
		res.body = []byte(defaultOKBody)
	case len(res.body) == 0:
		res.body = []byte(defaultFailBody)
	}
	return res
}

// Send stores data as the response body and marks the response complete.
// Strings, byte slices, readers and url.Values are stored verbatim (values
// are form-encoded); anything else is serialized to JSON, setting the
// Content-Type to application/json unless one is already present. If the
// status code is unset it defaults to 200.
func (res *Response) Send(data any) *Response {
	res.SendKeep(data)
	res.sent = true
	return res
}

// SendKeep is Send without marking the response complete, for middleware
// that stage a body and let later chain items keep running.
func (res *Response) SendKeep(data any) *Response {
	if res.code == 0 {
		res.code = fsthttp.StatusOK
	}
	switch body := data.(type) {
	case nil:
	case string:
		res.body = []byte(body)
	case []byte:
		res.body = body
	case url.Values:
		res.body = []byte(body.Encode())
		if res.header.Get("Content-Type") == "" {
			res.header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	case io.Reader:
		raw, err := io.ReadAll(body)
		if err != nil {
			// A mid-stream read failure is a runtime condition, not a setup
			// mistake: raise it as a statusful error so the dispatcher's
			// recovery converts it into an error response instead of letting
			// it escape the entry point.
			panic(NewHTTPError(fsthttp.StatusInternalServerError, "Failed to read response body stream"))
		}
		res.body = raw
	default:
		raw, err := json.Marshal(body)
		if err != nil {
			panic(configErrorf("serialize Send body of type %T: %v", body, err))
		}
		res.body = raw
		if res.header.Get("Content-Type") == "" {
			res.header.Set("Content-Type", "application/json")
		}
	}
	return res
}

// End optionally sends data, then unconditionally marks the response
// complete.
func (res *Response) End(data ...any) *Response {
	for _, d := range data {
		res.SendKeep(d)
	}
	res.sent = true
	return res
}

// SendStatus sets the status code (with the usual default-body inference)
// and marks the response complete. Passing data is a configuration error;
// use Status().Send() instead, so the intent is unambiguous.
func (res *Response) SendStatus(code int, data ...any) *Response {
	if len(data) > 0 {
		panic(configErrorf("SendStatus does not accept data; use Status(%d).Send(...) instead", code))
	}
	res.Status(code)
	res.sent = true
	return res
}

// BeforeServe queues a hook to run, in registration order, immediately
// before conversion to the native response. Hooks may still mutate the
// status, headers and body.
func (res *Response) BeforeServe(hook func(context.Context, *Response) error) *Response {
	res.beforeServe = append(res.beforeServe, hook)
	return res
}

// AfterError queues a hook to run, in registration order, when the
// dispatcher catches a middleware error, before the error response is
// finalized. Error hooks are a side channel (telemetry, logging); they do
// not alter the error response.
func (res *Response) AfterError(hook func(context.Context, *Response, error)) *Response {
	res.afterError = append(res.afterError, hook)
	return res
}

func (res *Response) runAfterError(ctx context.Context, err error) {
	for _, hook := range res.afterError {
		hook(ctx, res, err)
	}
}

// prepare runs the pending before-serve hooks exactly once and settles the
// status code. This is the single point through which every conversion to a
// native response passes.
func (res *Response) prepare(ctx context.Context) error {
	if res.prepared {
		return nil
	}
	res.prepared = true
	for _, hook := range res.beforeServe {
		if err := hook(ctx, res); err != nil {
			return err
		}
	}
	if res.code == 0 {
		res.code = fsthttp.StatusOK
	}
	return nil
}

// WriteTo converts the accumulated state into the native response stream:
// before-serve hooks run in order, then the status, headers and body are
// emitted on the native writer.
func (res *Response) WriteTo(ctx context.Context, w fsthttp.ResponseWriter) error {
	if err := res.prepare(ctx); err != nil {
		return err
	}
	w.Header().Reset(res.header)
	w.WriteHeader(res.code)
	if len(res.body) > 0 {
		if _, err := w.Write(res.body); err != nil {
			return err
		}
	}
	return nil
}

// Native materializes the accumulated state as a native response value,
// running the before-serve hooks first. Used by the Fetch entry point and
// the proxy/self-call surface, where a response value rather than a writer
// is required.
func (res *Response) Native(ctx context.Context) (*fsthttp.Response, error) {
	if err := res.prepare(ctx); err != nil {
		return nil, err
	}
	return &fsthttp.Response{
		StatusCode: res.code,
		Header:     res.header.Clone(),
		Body:       io.NopCloser(bytes.NewReader(res.body)),
	}, nil
}
