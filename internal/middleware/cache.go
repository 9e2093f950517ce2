package middleware

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/aman-churiwal/edge-gateway/internal/cache"
	"github.com/gin-gonic/gin"
)

// KeyFunc derives the cache key of a request. An empty key or an error
// skips the cache for that request.
type KeyFunc func(c *gin.Context) (string, error)

var errNotCacheable = errors.New("response is not cacheable")

// bodyRecorder tees the response body so it can be stored after the
// handler has written it. Only responses that will be stored are marked
// as a miss.
type bodyRecorder struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (r *bodyRecorder) WriteHeader(code int) {
	if code == http.StatusOK {
		r.Header().Set("X-Cache", "MISS")
	} else {
		r.Header().Del("X-Cache")
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *bodyRecorder) Write(b []byte) (int, error) {
	r.markImplicitOK()
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *bodyRecorder) WriteString(s string) (int, error) {
	r.markImplicitOK()
	r.body.WriteString(s)
	return r.ResponseWriter.WriteString(s)
}

// markImplicitOK covers handlers that write a body without setting a status.
func (r *bodyRecorder) markImplicitOK() {
	if !r.Written() && r.Status() == http.StatusOK {
		r.Header().Set("X-Cache", "MISS")
	}
}

// Cache serves GET responses from rc and stores successful (200) handler
// responses for ttl. It must run after the rate limit stages.
func Cache(rc *cache.ResponseCache, ttl time.Duration, keyFn KeyFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key, err := keyFn(c)
		if err != nil || key == "" {
			c.Next()
			return
		}

		ran := false
		payload, err := rc.GetOrCompute(c.Request.Context(), key, ttl, func(context.Context) ([]byte, error) {
			ran = true

			rec := &bodyRecorder{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
			c.Writer = rec
			c.Next()
			c.Writer = rec.ResponseWriter

			if rec.Status() != http.StatusOK || c.IsAborted() {
				return nil, errNotCacheable
			}
			return rec.body.Bytes(), nil
		})

		// The handler already wrote this response.
		if ran {
			return
		}

		// Another request computing the same key failed; serve this one directly.
		if err != nil {
			c.Next()
			return
		}

		c.Header("X-Cache", "HIT")
		c.Data(http.StatusOK, "application/json; charset=utf-8", payload)
		c.Abort()
	}
}

// ParamKey keys a response by one route parameter, e.g. the job id.
func ParamKey(build func(string) string, param string) KeyFunc {
	return func(c *gin.Context) (string, error) {
		v := c.Param(param)
		if v == "" {
			return "", nil
		}
		return build(v), nil
	}
}

// QueryKey keys listings by query string under the current generation of
// namespace. With varyOnAuth the caller's credentials are part of the key.
func QueryKey(rc *cache.ResponseCache, namespace string, ignore []string, varyOnAuth bool) KeyFunc {
	return func(c *gin.Context) (string, error) {
		ns, err := rc.Namespace(c.Request.Context(), namespace)
		if err != nil {
			return "", err
		}

		opts := cache.KeyOptions{Ignore: ignore}
		if varyOnAuth {
			opts.Discriminator = cache.Discriminator(c.GetHeader("Authorization"))
		}
		return cache.BuildKey(ns, c.Request.URL.Query(), opts), nil
	}
}
