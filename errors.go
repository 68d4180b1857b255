package cowboy

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/fastly/compute-sdk-go/fsthttp"
)

// ConfigError indicates a programming mistake by the host application:
// a bad path pattern type, an unknown named middleware, an invalid MIME
// shorthand, or a disallowed argument combination. Configuration errors
// are raised via panic at registration time or first use. They are never
// converted into HTTP responses; they indicate a defect in the application,
// not a request-time condition.
type ConfigError struct {
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "cowboy: " + e.Message
}

func configErrorf(format string, args ...any) *ConfigError {
	return &ConfigError{Message: fmt.Sprintf(format, args...)}
}

// HTTPError is an error carrying an HTTP status code. Middleware can return
// one to produce a response with a specific status instead of the default
// 400. The dispatcher also recognizes the textual form "<code>: <message>"
// on any error, so plain errors built with fmt.Errorf("404: widget missing")
// behave identically.
type HTTPError struct {
	Code    int
	Message string
}

// NewHTTPError builds an HTTPError with the given status code and message.
func NewHTTPError(code int, message string) *HTTPError {
	return &HTTPError{Code: code, Message: message}
}

// Error implements the error interface using the "<code>: <message>" form.
func (e *HTTPError) Error() string {
	return strconv.Itoa(e.Code) + ": " + e.Message
}

// statusMessage matches the conventional "<3-digit-code>: <text>" error form.
var statusMessage = regexp.MustCompile(`^(\d{3}):\s*(.*)$`)

// deriveStatus converts a middleware error into a response status and body.
// Precedence: a typed *HTTPError anywhere in the chain wins; then the
// "<code>: <text>" textual convention; anything else becomes HTTP 400 with
// the error text as body. The fallback message is used for errors that
// somehow carry no text at all.
func deriveStatus(err error) (int, string) {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		code := httpErr.Code
		if code < 100 || code > 599 {
			code = fsthttp.StatusBadRequest
		}
		return code, httpErr.Message
	}

	msg := err.Error()
	if msg == "" {
		msg = "An error occurred"
	}
	if m := statusMessage.FindStringSubmatch(msg); m != nil {
		if code, convErr := strconv.Atoi(m[1]); convErr == nil && code >= 100 && code <= 599 {
			return code, m[2]
		}
	}
	return fsthttp.StatusBadRequest, msg
}

// recoveredError normalizes a recovered panic value into an error so that it
// can flow through the same derivation as a returned error. Configuration
// errors are not normalized; callers re-raise those.
func recoveredError(v any) error {
	switch err := v.(type) {
	case error:
		return err
	case string:
		return errors.New(err)
	default:
		return fmt.Errorf("%v", err)
	}
}
