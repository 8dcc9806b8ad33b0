package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"linkrelay/internal/config"
)

func TestRateLimitMiddleware_LimitsPerIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	router := gin.New()
	router.Use(RateLimitMiddleware(ctx, RateLimitConfig{
		RPS:             0.001,
		Burst:           2,
		CleanupInterval: time.Minute,
		MaxAge:          time.Minute,
	}))
	router.GET("/test", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	do := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.RemoteAddr = ip + ":1234"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, do("10.0.0.1").Code)
	assert.Equal(t, http.StatusOK, do("10.0.0.1").Code)

	w := do("10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "RATE_LIMIT_EXCEEDED")
	assert.Equal(t, "1", w.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, do("10.0.0.2").Code)
}

func TestFromConfig(t *testing.T) {
	got := FromConfig(config.RateLimitConfig{RPS: 5, CleanupInterval: 30})
	assert.Equal(t, 5.0, got.RPS)
	assert.Equal(t, 20, got.Burst)
	assert.Equal(t, 30*time.Second, got.CleanupInterval)
	assert.Equal(t, 10*time.Minute, got.MaxAge)
}
