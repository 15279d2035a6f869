package logger

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/munitax/internal/observability/context"
	"go.uber.org/zap/zapcore"
)

func TestGinMiddlewarePropagatesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{}))

	var seen string
	r.GET("/ping", func(c *gin.Context) {
		seen = obscontext.RequestIDFromContext(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if seen != "abc-123" {
		t.Fatalf("expected request id on context, got %q", seen)
	}
	if got := w.Header().Get(RequestIDHeader); got != "abc-123" {
		t.Fatalf("expected echoed header, got %q", got)
	}
}

func TestGinMiddlewareMintsRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{}))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	if w.Header().Get(RequestIDHeader) == "" {
		t.Fatalf("expected generated request id header")
	}
}

func TestRequestLevel(t *testing.T) {
	if requestLevel("/health", 200, "") != zapcore.DebugLevel {
		t.Fatalf("health checks should log at debug")
	}
	if requestLevel("/api/payments", 500, "") != zapcore.ErrorLevel {
		t.Fatalf("5xx should log at error")
	}
	if requestLevel("/api/admin/payments/:id/complete", 409, "conflict") != zapcore.WarnLevel {
		t.Fatalf("conflicts should log at warn")
	}
	if requestLevel("/api/payments", 201, "") != zapcore.InfoLevel {
		t.Fatalf("success should log at info")
	}
}
