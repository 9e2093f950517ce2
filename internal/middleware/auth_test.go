package middleware

import (
	"net/http"
	"testing"
	"time"

	"github.com/aman-churiwal/edge-gateway/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func whoami(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"user_id":   c.GetString(ContextUserID),
		"tenant_id": c.GetString(ContextTenantID),
	})
}

func TestRequireAuth(t *testing.T) {
	auth := service.NewAuthService("secret", time.Hour)
	token, err := auth.IssueToken("u-1", "acme")
	require.NoError(t, err)

	r := gin.New()
	r.GET("/me", RequireAuth(auth), whoami)

	tests := []struct {
		name   string
		header string
		code   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized},
		{"garbage", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer " + token, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.header != "" {
				h.Set("Authorization", tt.header)
			}
			w := get(r, "/me", "", h)
			assert.Equal(t, tt.code, w.Code)
			if tt.code == http.StatusOK {
				assert.JSONEq(t, `{"user_id":"u-1","tenant_id":"acme"}`, w.Body.String())
			}
		})
	}
}

func TestOptionalAuth(t *testing.T) {
	auth := service.NewAuthService("secret", time.Hour)
	token, err := auth.IssueToken("u-2", "globex")
	require.NoError(t, err)

	r := gin.New()
	r.GET("/me", OptionalAuth(auth), whoami)

	w := get(r, "/me", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user_id":"","tenant_id":""}`, w.Body.String())

	w = get(r, "/me", "", http.Header{"Authorization": {"Bearer broken"}})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user_id":"","tenant_id":""}`, w.Body.String())

	w = get(r, "/me", "", http.Header{"Authorization": {"Bearer " + token}})
	assert.JSONEq(t, `{"user_id":"u-2","tenant_id":"globex"}`, w.Body.String())
}
