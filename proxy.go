package cowboy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/url"
	"sort"
	"strings"

	"github.com/fastly/compute-sdk-go/fsthttp"
)

// ProxyOptions shapes the synthetic request built by Proxy. The zero value
// produces a bare GET with no headers and no body.
type ProxyOptions struct {
	// Method defaults to GET when empty.
	Method string

	// Header entries are copied onto the synthetic request.
	Header fsthttp.Header

	// Body may be nil, an io.Reader, a string, a []byte, url.Values (sent
	// form-encoded), a map[string]string (sent as multipart form data), or
	// any JSON-marshalable value.
	Body any
}

// Proxy dispatches a synthetic request against this router's own routes and
// returns the finalized native response. It runs the full dispatch lifecycle,
// global middleware included, so a proxied call behaves exactly like an
// external one hitting the same path.
//
// Body encoding is selected by the declared type: exactly map[string]string
// becomes a multipart form. Any other map (map[string]any included) is
// JSON-serialized like every other structured value, so the wire shape never
// depends on what a value happens to contain at runtime.
func (rt *Router) Proxy(ctx context.Context, path string, opts ProxyOptions, env *Env) (*fsthttp.Response, error) {
	method := opts.Method
	if method == "" {
		method = "GET"
	}
	method = strings.ToUpper(method)

	body, contentType, err := encodeProxyBody(opts.Body)
	if err != nil {
		return nil, err
	}

	req, err := fsthttp.NewRequest(method, path, body)
	if err != nil {
		return nil, fmt.Errorf("build proxy request %s %s: %w", method, path, err)
	}
	if opts.Header != nil {
		for _, key := range opts.Header.Keys() {
			for _, value := range opts.Header.Values(key) {
				req.Header.Add(key, value)
			}
		}
	}
	if contentType != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", contentType)
	}

	return rt.Fetch(ctx, req, env), nil
}

// encodeProxyBody normalizes the permissive Body field into a reader plus,
// where the encoding implies one, a content type. Readers, strings and byte
// slices pass through verbatim with no implied type.
func encodeProxyBody(body any) (io.Reader, string, error) {
	switch v := body.(type) {
	case nil:
		return nil, "", nil
	case io.Reader:
		return v, "", nil
	case string:
		return strings.NewReader(v), "", nil
	case []byte:
		return bytes.NewReader(v), "", nil
	case url.Values:
		return strings.NewReader(v.Encode()), "application/x-www-form-urlencoded", nil
	case map[string]string:
		return encodeMultipart(v)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, "", fmt.Errorf("encode proxy body: %w", err)
		}
		return bytes.NewReader(encoded), "application/json", nil
	}
}

// encodeMultipart writes a string map as multipart form fields. Keys are
// written in sorted order so the payload is stable across invocations.
func encodeMultipart(fields map[string]string) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if err := writer.WriteField(key, fields[key]); err != nil {
			return nil, "", fmt.Errorf("encode multipart field %q: %w", key, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("finalize multipart body: %w", err)
	}
	return &buf, writer.FormDataContentType(), nil
}
