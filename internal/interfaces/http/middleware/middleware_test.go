package middleware

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hybrid-ranking-api/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeLimiter struct {
	keys    []string
	allowed bool
	err     error
}

func (f *fakeLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	f.keys = append(f.keys, key)
	return f.allowed, f.err
}

func serve(e *gin.Engine, target string, header http.Header) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range header {
		for _, vv := range v {
			req.Header.Add(k, vv)
		}
	}
	req.RemoteAddr = "10.0.0.7:5555"
	e.ServeHTTP(w, req)
	return w
}

func rateLimitedEngine(l RateLimiter) *gin.Engine {
	e := gin.New()
	e.Use(RateLimit(RateLimitConfig{Enabled: true, RequestsPerSecond: 5}, l))
	e.GET("/v1/search", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return e
}

func TestRateLimit_KeysByClientIPAndRoute(t *testing.T) {
	l := &fakeLimiter{allowed: true}
	w := serve(rateLimitedEngine(l), "/v1/search?q=a", nil)

	assert.Equal(t, http.StatusNoContent, w.Code)
	require.Len(t, l.keys, 1)
	assert.Equal(t, "ratelimit:10.0.0.7:/v1/search", l.keys[0])
}

func TestRateLimit_Rejects(t *testing.T) {
	w := serve(rateLimitedEngine(&fakeLimiter{allowed: false}), "/v1/search", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), `"error_code":"1006"`)
}

func TestRateLimit_FailsOpen(t *testing.T) {
	w := serve(rateLimitedEngine(&fakeLimiter{err: stderrors.New("redis down")}), "/v1/search", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRateLimit_Disabled(t *testing.T) {
	l := &fakeLimiter{}
	e := gin.New()
	e.Use(RateLimit(RateLimitConfig{Enabled: false}, l))
	e.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, serve(e, "/x", nil).Code)
	assert.Empty(t, l.keys)
}

func TestRequestID(t *testing.T) {
	e := gin.New()
	e.Use(RequestID())
	e.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, c.GetString("request_id")) })

	w := serve(e, "/x", http.Header{RequestIDHeader: []string{"req-1"}})
	assert.Equal(t, "req-1", w.Header().Get(RequestIDHeader))
	assert.Equal(t, "req-1", w.Body.String())

	w = serve(e, "/x", nil)
	assert.Len(t, w.Header().Get(RequestIDHeader), 36)

	w = serve(e, "/x", http.Header{RequestIDHeader: []string{"bad id\nwith newline"}})
	assert.Len(t, w.Header().Get(RequestIDHeader), 36, "unsafe request ids are replaced")
}

func TestUserContext(t *testing.T) {
	e := gin.New()
	e.Use(UserContext())
	handler := func(c *gin.Context) {
		v, _ := c.Request.Context().Value(logger.UserIDKey).(string)
		c.String(http.StatusOK, v)
	}
	e.GET("/v1/recommend/:user_id", handler)
	e.GET("/v1/search", handler)

	assert.Equal(t, "u42", serve(e, "/v1/recommend/u42", nil).Body.String())
	assert.Equal(t, "u7", serve(e, "/v1/search?q=shoes&user_id=u7", nil).Body.String())
	assert.Empty(t, serve(e, "/v1/search?q=shoes", nil).Body.String())
}

func TestRecovery(t *testing.T) {
	e := gin.New()
	e.Use(Recovery())
	e.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := serve(e, "/panic", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "internal server error")
	assert.Contains(t, w.Body.String(), `"error_code":"1007"`)
}
