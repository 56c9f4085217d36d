package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sb-diagnostic-server/internal/domain"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func perform(r http.Handler, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSecurityHeaders(t *testing.T) {
	r := gin.New()
	r.Use(SecurityHeaders())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := perform(r, http.MethodGet, "/x", nil)

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestCorrelationID(t *testing.T) {
	r := gin.New()
	r.Use(CorrelationID())
	r.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(CorrelationIDKey)) })

	w := perform(r, http.MethodGet, "/x", nil)
	generated := w.Header().Get("X-Correlation-ID")
	assert.NotEmpty(t, generated)
	assert.Equal(t, generated, w.Body.String())

	w = perform(r, http.MethodGet, "/x", map[string]string{"X-Correlation-ID": "abc-123"})
	assert.Equal(t, "abc-123", w.Header().Get("X-Correlation-ID"))
}

func TestRequestTimeout(t *testing.T) {
	r := gin.New()
	r.Use(RequestTimeout(10 * time.Millisecond))
	r.GET("/slow", func(c *gin.Context) {
		<-c.Request.Context().Done()
		assert.ErrorIs(t, c.Request.Context().Err(), context.DeadlineExceeded)
		c.Status(http.StatusGatewayTimeout)
	})

	w := perform(r, http.MethodGet, "/slow", nil)
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORS([]string{"http://localhost:3000"}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := perform(r, http.MethodGet, "/x", map[string]string{"Origin": "http://localhost:3000"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))

	w = perform(r, http.MethodGet, "/x", map[string]string{"Origin": "http://evil.example"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	w = perform(r, http.MethodOptions, "/x", map[string]string{
		"Origin":                        "http://localhost:3000",
		"Access-Control-Request-Method": http.MethodPost,
	})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), http.MethodDelete)

	w = perform(r, http.MethodGet, "/x", nil)
	assert.Equal(t, http.StatusOK, w.Code, "requests without Origin are not CORS requests")

	open := gin.New()
	open.Use(CORS([]string{"*"}))
	open.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	w = perform(open, http.MethodGet, "/x", map[string]string{"Origin": "http://anywhere.example"})
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	closed := gin.New()
	closed.Use(CORS(nil))
	closed.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	w = perform(closed, http.MethodGet, "/x", map[string]string{"Origin": "http://localhost:3000"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAuditLogger_OmitsQueryString(t *testing.T) {
	logger, hook := test.NewNullLogger()
	r := gin.New()
	r.Use(CorrelationID(), AuditLogger(logger))
	r.GET("/history", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/fail", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	perform(r, http.MethodGet, "/history?search=Angela", nil)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "/history", entry.Data["path"])
	assert.Equal(t, http.StatusOK, entry.Data["status"])
	assert.NotEmpty(t, entry.Data["correlation_id"])
	assert.Equal(t, logrus.InfoLevel, entry.Level)

	perform(r, http.MethodGet, "/fail", nil)
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
}

func TestRateLimiter(t *testing.T) {
	rl, err := NewRateLimiter(1, 2)
	require.NoError(t, err)

	r := gin.New()
	r.Use(rl.Middleware())
	r.POST("/diagnose", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, perform(r, http.MethodPost, "/diagnose", nil).Code)
	assert.Equal(t, http.StatusOK, perform(r, http.MethodPost, "/diagnose", nil).Code)

	w := perform(r, http.MethodPost, "/diagnose", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))

	var apiErr domain.APIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &apiErr))
	assert.Equal(t, domain.ErrRateLimit, apiErr.Code)
}

func TestRateLimiter_PerClient(t *testing.T) {
	rl, err := NewRateLimiter(0.001, 1)
	require.NoError(t, err)

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.2"), "budgets are independent per client")
}
