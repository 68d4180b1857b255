package cowboy

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net"
	"net/url"
	"strings"

	"github.com/fastly/compute-sdk-go/fsthttp"
	"github.com/google/uuid"
	"golang.org/x/text/encoding/htmlindex"
)

// PathTidier normalizes an inbound path before route matching. The router
// applies it once, at request-adapter construction time.
type PathTidier func(string) string

// DefaultPathTidier collapses repeated leading slashes and strips a single
// leading "/api/<segment>" mount prefix, so routes can be declared relative
// to where the application is mounted.
func DefaultPathTidier(path string) string {
	for strings.HasPrefix(path, "//") {
		path = path[1:]
	}
	if strings.HasPrefix(path, "/api/") {
		rest := path[len("/api/"):]
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			path = rest[i:]
		} else {
			path = "/"
		}
	}
	if path == "" {
		path = "/"
	}
	return path
}

// Request is the normalized snapshot of an inbound native request taken at
// dispatch time. It is owned by exactly one request lifecycle and never
// shared across invocations.
//
// Body starts out nil and is mutated in place by ParseBody once decoding
// completes; RawBody always retains the undecoded payload for middleware
// that need it (signature checks, JWT parsing and the like). Params is
// populated by the dispatcher after route resolution, not at construction.
type Request struct {
	// ID is a per-invocation identifier stamped at construction, used to
	// correlate log lines.
	ID string

	Method   string
	Path     string
	RawPath  string
	Hostname string

	// Query holds the query parameters with multi-value keys collapsed to
	// their last value.
	Query map[string]string

	// Header is the case-insensitive header mapping of the native request.
	Header fsthttp.Header

	// Params holds the named path parameters of the matched route.
	Params map[string]string

	// Body is nil until ParseBody runs, then holds the decoded value:
	// map[string]any for JSON, map[string]string for form payloads, string
	// for text, or an empty map for opaque payloads.
	Body any

	// RawBody is the undecoded payload, available after ParseBody.
	RawBody []byte

	// Env carries the per-invocation environment bindings.
	Env *Env

	native *fsthttp.Request
	parsed bool
}

// NewRequest wraps a native inbound request into a normalized request value.
// The tidier runs here so that route matching always sees tidied paths; pass
// nil to use DefaultPathTidier.
func NewRequest(native *fsthttp.Request, env *Env, tidy PathTidier) *Request {
	if tidy == nil {
		tidy = DefaultPathTidier
	}
	query := map[string]string{}
	for key, values := range native.URL.Query() {
		if len(values) > 0 {
			query[key] = values[len(values)-1]
		}
	}
	hostname := native.Host
	if host, _, err := net.SplitHostPort(hostname); err == nil {
		hostname = host
	}
	return &Request{
		ID:       uuid.NewString(),
		Method:   strings.ToUpper(native.Method),
		Path:     tidy(native.URL.Path),
		RawPath:  native.URL.Path,
		Hostname: hostname,
		Query:    query,
		Header:   native.Header,
		Params:   map[string]string{},
		Env:      env,
		native:   native,
	}
}

// Native returns the underlying native request.
func (req *Request) Native() *fsthttp.Request {
	return req.native
}

// ParseBody decodes the request payload according to the Content-Type
// header, or a forced override when given. Decoding is deliberately a
// separate step from construction: the content type dictates the strategy
// and many routes never need the body at all.
//
// Strategies:
//   - application/json: an empty payload short-circuits to an empty map
//     with no decode attempted; otherwise the payload is decoded as JSON.
//   - multipart/form-data, application/x-www-form-urlencoded: decoded into
//     a field map, last value winning for repeated fields.
//   - text/plain: decoded as text, honoring a charset parameter.
//   - anything else (or no content type): treated as an opaque payload;
//     Body becomes an empty map and RawBody retains the bytes.
//
// Decode failures are request-level errors carrying HTTP 400, not crashes.
// ParseBody is idempotent; repeat calls after a successful parse return nil.
func (req *Request) ParseBody(ctx context.Context, force ...string) error {
	if req.parsed {
		return nil
	}

	raw, err := req.readRawBody()
	if err != nil {
		return NewHTTPError(fsthttp.StatusBadRequest, "Invalid request body")
	}
	req.RawBody = raw

	contentType := req.Header.Get("Content-Type")
	if len(force) > 0 && force[0] != "" {
		contentType = force[0]
	}
	mediaType, params, _ := mime.ParseMediaType(contentType)

	switch {
	case mediaType == "application/json":
		if len(raw) == 0 {
			req.Body = map[string]any{}
			break
		}
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return NewHTTPError(fsthttp.StatusBadRequest, "Invalid JSON body")
		}
		req.Body = decoded

	case mediaType == "multipart/form-data":
		fields, err := decodeMultipart(raw, params["boundary"])
		if err != nil {
			return NewHTTPError(fsthttp.StatusBadRequest, "Invalid multi-part encoded body")
		}
		req.Body = fields

	case mediaType == "application/x-www-form-urlencoded":
		values, err := url.ParseQuery(string(raw))
		if err != nil {
			return NewHTTPError(fsthttp.StatusBadRequest, "Invalid multi-part encoded body")
		}
		fields := map[string]string{}
		for key, vals := range values {
			if len(vals) > 0 {
				fields[key] = vals[len(vals)-1]
			}
		}
		req.Body = fields

	case mediaType == "text/plain":
		text, err := decodeText(raw, params["charset"])
		if err != nil {
			return NewHTTPError(fsthttp.StatusBadRequest, "Invalid text body")
		}
		req.Body = text

	default:
		// Opaque payload: no structured decoding is attempted. The raw
		// bytes stay available on RawBody.
		req.Body = map[string]any{}
	}

	req.parsed = true
	return nil
}

func (req *Request) readRawBody() ([]byte, error) {
	if req.native == nil || req.native.Body == nil {
		return nil, nil
	}
	defer req.native.Body.Close()
	return io.ReadAll(req.native.Body)
}

func decodeMultipart(raw []byte, boundary string) (map[string]string, error) {
	if boundary == "" {
		return nil, NewHTTPError(fsthttp.StatusBadRequest, "Invalid multi-part encoded body")
	}
	reader := multipart.NewReader(strings.NewReader(string(raw)), boundary)
	fields := map[string]string{}
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		value, err := io.ReadAll(part)
		part.Close()
		if err != nil {
			return nil, err
		}
		if name := part.FormName(); name != "" {
			fields[name] = string(value)
		}
	}
	return fields, nil
}

// decodeText decodes a text payload, transcoding from the declared charset
// when one is present and is not already UTF-8.
func decodeText(raw []byte, charset string) (string, error) {
	if charset == "" || strings.EqualFold(charset, "utf-8") {
		return string(raw), nil
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return "", err
	}
	decoded, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}
