package cowboy

import (
	"context"
	"io"
	"net/url"
	"strings"
	"testing"

	"github.com/fastly/compute-sdk-go/fsthttp"
)

func TestEncodeProxyBody(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		reader, contentType, err := encodeProxyBody(nil)
		if err != nil || reader != nil || contentType != "" {
			t.Errorf("got (%v, %q, %v), want all zero", reader, contentType, err)
		}
	})

	t.Run("string verbatim", func(t *testing.T) {
		reader, contentType, err := encodeProxyBody("raw text")
		if err != nil {
			t.Fatalf("error = %v", err)
		}
		raw, _ := io.ReadAll(reader)
		if string(raw) != "raw text" || contentType != "" {
			t.Errorf("got (%q, %q)", raw, contentType)
		}
	})

	t.Run("reader verbatim", func(t *testing.T) {
		src := strings.NewReader("streamed")
		reader, contentType, err := encodeProxyBody(src)
		if err != nil {
			t.Fatalf("error = %v", err)
		}
		if reader != src || contentType != "" {
			t.Error("reader should pass through untouched")
		}
	})

	t.Run("values form encoded", func(t *testing.T) {
		reader, contentType, err := encodeProxyBody(url.Values{"a": {"1"}, "b": {"2"}})
		if err != nil {
			t.Fatalf("error = %v", err)
		}
		if contentType != "application/x-www-form-urlencoded" {
			t.Errorf("contentType = %q", contentType)
		}
		raw, _ := io.ReadAll(reader)
		if string(raw) != "a=1&b=2" {
			t.Errorf("body = %q, want a=1&b=2", raw)
		}
	})

	t.Run("string map as multipart", func(t *testing.T) {
		reader, contentType, err := encodeProxyBody(map[string]string{"name": "widget"})
		if err != nil {
			t.Fatalf("error = %v", err)
		}
		if !strings.HasPrefix(contentType, "multipart/form-data; boundary=") {
			t.Errorf("contentType = %q", contentType)
		}
		raw, _ := io.ReadAll(reader)
		body := string(raw)
		if !strings.Contains(body, `name="name"`) || !strings.Contains(body, "widget") {
			t.Errorf("multipart body = %q", body)
		}
	})

	t.Run("any-valued map as json", func(t *testing.T) {
		// Only map[string]string selects multipart; a map[string]any takes
		// the JSON shape even when every value is a string.
		reader, contentType, err := encodeProxyBody(map[string]any{"name": "widget"})
		if err != nil {
			t.Fatalf("error = %v", err)
		}
		if contentType != "application/json" {
			t.Errorf("contentType = %q, want application/json", contentType)
		}
		raw, _ := io.ReadAll(reader)
		if string(raw) != `{"name":"widget"}` {
			t.Errorf("body = %q", raw)
		}
	})

	t.Run("struct as json", func(t *testing.T) {
		reader, contentType, err := encodeProxyBody(map[string]int{"n": 1})
		if err != nil {
			t.Fatalf("error = %v", err)
		}
		if contentType != "application/json" {
			t.Errorf("contentType = %q", contentType)
		}
		raw, _ := io.ReadAll(reader)
		if string(raw) != `{"n":1}` {
			t.Errorf("body = %q", raw)
		}
	})
}

func TestProxyDefaults(t *testing.T) {
	rt := New()
	var sawMethod, sawHeader string
	rt.Get("/probe", handler(func(req *Request, res *Response) (any, error) {
		sawMethod = req.Method
		sawHeader = req.Header.Get("X-Probe")
		return "seen", nil
	}))

	header := fsthttp.NewHeader()
	header.Set("X-Probe", "yes")
	resp, err := rt.Proxy(context.Background(), "/probe", ProxyOptions{Header: header}, NewEnv())
	if err != nil {
		t.Fatalf("Proxy() error = %v", err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if sawMethod != "GET" {
		t.Errorf("method = %q, want default GET", sawMethod)
	}
	if sawHeader != "yes" {
		t.Errorf("X-Probe = %q, want yes", sawHeader)
	}
}
