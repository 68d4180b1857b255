package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"

	cowboy "github.com/MomsFriendlyDevCo/Cowboy"
	"github.com/fastly/compute-sdk-go/fsthttp"
	"github.com/fastly/compute-sdk-go/kvstore"
)

// CacheConfig configures the response cache middleware.
type CacheConfig struct {
	// Store names an edge KV store used as a read-through body cache for
	// GET responses. Empty disables persistence; conditional-request
	// handling via ETag still applies.
	Store string

	// TTLSec bounds the lifetime of persisted entries. Zero means the
	// store's default.
	TTLSec uint32

	// Key derives the cache key for a request. Defaults to the tidied path.
	Key func(req *cowboy.Request) string
}

func init() {
	cowboy.RegisterMiddleware("cache", cacheMiddleware)
}

// cacheMiddleware adds conditional-request handling and, optionally, KV
// store persistence to GET routes. Successful response bodies gain a
// content-derived ETag; a request presenting the same tag in If-None-Match
// is answered 304 with no body. With a Store configured, bodies are written
// through to the KV store at finalization and later requests are served
// straight from it, skipping the rest of the chain.
func cacheMiddleware(rt *cowboy.Router, opts ...any) (cowboy.HandlerFunc, error) {
	var config CacheConfig
	if len(opts) > 0 {
		c, ok := opts[0].(CacheConfig)
		if !ok {
			return nil, &cowboy.ConfigError{Message: "cache option must be a CacheConfig"}
		}
		config = c
	}
	if config.Key == nil {
		config.Key = func(req *cowboy.Request) string { return req.Path }
	}

	return func(ctx context.Context, req *cowboy.Request, res *cowboy.Response) (any, error) {
		if req.Method != "GET" {
			return nil, nil
		}

		if config.Store != "" {
			if entry, ok := lookupCached(config.Store, config.Key(req)); ok {
				if meta := entry.Meta(); len(meta) > 0 {
					res.Type(string(meta))
				}
				res.Set("X-Cache", "hit")
				res.Send(entry)
				return nil, nil
			}
		}

		res.BeforeServe(func(ctx context.Context, res *cowboy.Response) error {
			if res.StatusCode() < 200 || res.StatusCode() >= 300 {
				return nil
			}
			body := res.Body()
			if len(body) == 0 {
				return nil
			}

			sum := sha256.Sum256(body)
			etag := `"` + hex.EncodeToString(sum[:16]) + `"`
			res.Set("ETag", etag)
			if req.Header.Get("If-None-Match") == etag {
				res.Status(fsthttp.StatusNotModified)
				return nil
			}

			if config.Store != "" {
				storeCached(config.Store, config.Key(req), body, res.Header().Get("Content-Type"), config.TTLSec)
			}
			return nil
		})
		return nil, nil
	}, nil
}

// lookupCached reads a persisted body. Store and key misses are treated the
// same: fall through to the route chain.
func lookupCached(store, key string) (*kvstore.Entry, bool) {
	kv, err := kvstore.Open(store)
	if err != nil {
		return nil, false
	}
	entry, err := kv.Lookup(key)
	if err != nil {
		return nil, false
	}
	return entry, true
}

// storeCached writes a body through to the KV store. Persistence is best
// effort: a failed insert never fails the response that produced the body.
func storeCached(store, key string, body []byte, contentType string, ttl uint32) {
	kv, err := kvstore.Open(store)
	if err != nil {
		return
	}
	config := &kvstore.InsertConfig{TTLSec: ttl}
	if contentType != "" {
		config.Metadata = []byte(contentType)
	}
	_ = kv.InsertWithConfig(key, bytes.NewReader(body), config)
}
