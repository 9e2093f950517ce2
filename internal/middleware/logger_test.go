package middleware

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedRouter() (*gin.Engine, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)

	r := gin.New()
	r.Use(Recovery(logger))
	r.Use(RequestID())
	r.Use(Logger(logger))
	return r, logs
}

func TestLoggerAndRequestID(t *testing.T) {
	r, logs := newObservedRouter()
	r.GET("/jobs", okHandler)

	w := get(r, "/jobs", "", http.Header{"X-Request-ID": {"req-123"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))

	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "req-123", fields["request_id"])
	assert.Equal(t, int64(http.StatusOK), fields["status"])
	assert.Equal(t, "/jobs", fields["path"])

	w = get(r, "/jobs", "", nil)
	assert.Len(t, w.Header().Get("X-Request-ID"), 36, "a uuid is assigned when absent")
}

func TestRecovery(t *testing.T) {
	r, logs := newObservedRouter()
	r.GET("/boom", func(c *gin.Context) { panic("kaboom") })

	w := get(r, "/boom", "", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Internal Server Error"}`, w.Body.String())
	assert.Equal(t, 1, logs.FilterMessage("panic recovered").Len())
}
