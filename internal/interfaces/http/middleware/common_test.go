package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/subgov/backend/internal/infrastructure/config"
	"github.com/subgov/backend/internal/infrastructure/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func okRouter(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw...)
	r.GET("/test", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	return r
}

func TestCORS(t *testing.T) {
	cfg := CORSConfigFrom(config.HTTPConfig{
		CORSAllowOrigins: []string{"http://localhost:3000"},
		CORSAllowMethods: []string{"GET", "POST"},
		CORSAllowHeaders: []string{"Content-Type", "Authorization"},
	})
	r := okRouter(CORS(cfg))

	t.Run("allowed origin gets headers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		w := serve(r, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
		assert.Equal(t, "GET, POST", w.Header().Get("Access-Control-Allow-Methods"))
		assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), logger.RequestIDHeader)
	})

	t.Run("unknown origin gets no headers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Origin", "http://evil.example")
		w := serve(r, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("preflight answers 204 even for unknown routes", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/nowhere", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		w := serve(r, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("wildcard never sends credentials", func(t *testing.T) {
		wr := okRouter(CORS(CORSConfig{AllowOrigins: []string{"*"}, AllowCredentials: true}))
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Origin", "http://anything.example")
		w := serve(wr, req)

		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
	})
}

func TestRequestID(t *testing.T) {
	var seenGin, seenCtx string
	r := gin.New()
	r.Use(RequestID())
	r.GET("/test", func(c *gin.Context) {
		seenGin = GetRequestID(c)
		seenCtx = logger.RequestID(c.Request.Context())
		c.Status(http.StatusOK)
	})

	t.Run("generates when absent", func(t *testing.T) {
		w := serve(r, httptest.NewRequest(http.MethodGet, "/test", nil))
		id := w.Header().Get(logger.RequestIDHeader)
		require.NotEmpty(t, id)
		assert.Equal(t, id, seenGin)
		assert.Equal(t, id, seenCtx)
	})

	t.Run("reuses caller id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set(logger.RequestIDHeader, "abc-123")
		w := serve(r, req)
		assert.Equal(t, "abc-123", w.Header().Get(logger.RequestIDHeader))
		assert.Equal(t, "abc-123", seenGin)
	})

	t.Run("replaces oversized id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set(logger.RequestIDHeader, strings.Repeat("x", MaxRequestIDLength+1))
		w := serve(r, req)
		assert.Len(t, w.Header().Get(logger.RequestIDHeader), 36)
	})
}

func TestSecure(t *testing.T) {
	w := serve(okRouter(Secure(true)), httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Contains(t, w.Header().Get("Content-Security-Policy"), "default-src 'none'")
	assert.Contains(t, w.Header().Get("Strict-Transport-Security"), "max-age=")

	w = serve(okRouter(Secure(false)), httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.Empty(t, w.Header().Get("Strict-Transport-Security"))
}

func TestBodyLimit(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), BodyLimit(16))
	r.POST("/test", func(c *gin.Context) {
		var body map[string]any
		if err := c.ShouldBindJSON(&body); err != nil {
			c.Status(http.StatusBadRequest)
			return
		}
		c.Status(http.StatusOK)
	})

	w := serve(r, httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(`{"a":1}`)))
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(r, httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(`{"a":"this body is too long"}`)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"REQUEST_TOO_LARGE"`)
	assert.Contains(t, w.Body.String(), `"request_id"`)
}
