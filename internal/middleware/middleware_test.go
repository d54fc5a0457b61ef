package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pikoder-service/internal/utils"
)

func newEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RecoveryMiddleware(zap.NewNop()))
	r.Use(RequestIDMiddleware())
	r.Use(LoggingMiddleware(utils.NewServiceLogger(zap.NewNop(), "test")))
	r.GET("/id", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("request_id"))
	})
	r.GET("/panic", func(c *gin.Context) {
		panic("boom")
	})
	return r
}

func TestRequestIDGenerated(t *testing.T) {
	w := httptest.NewRecorder()
	newEngine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/id", nil))

	require.Equal(t, http.StatusOK, w.Code)
	id := w.Header().Get(RequestIDHeader)
	require.Len(t, id, 36)
	require.Equal(t, id, w.Body.String())
}

func TestRequestIDPropagated(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/id", nil)
	req.Header.Set(RequestIDHeader, "bench-42")
	w := httptest.NewRecorder()
	newEngine().ServeHTTP(w, req)

	require.Equal(t, "bench-42", w.Header().Get(RequestIDHeader))
	require.Equal(t, "bench-42", w.Body.String())
}

func TestRecoveryReturnsEnvelope(t *testing.T) {
	w := httptest.NewRecorder()
	newEngine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Contains(t, w.Body.String(), `"INTERNAL_SERVER_ERROR"`)
}
