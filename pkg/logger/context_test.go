package logger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

func TestRequestIDRoundTrip(t *testing.T) {
	if got := RequestID(context.Background()); got != "" {
		t.Fatalf("expected no request id, got %q", got)
	}
	ctx := WithRequestID(context.Background(), "req-1")
	if got := RequestID(ctx); got != "req-1" {
		t.Fatalf("got %q, want req-1", got)
	}
	if WithRequestID(ctx, "") != ctx {
		t.Fatalf("an empty id must leave the context unchanged")
	}
}

func TestAttachSharesLoggerWithRequestContext(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	log := zap.NewExample()

	Attach(c, log)

	if FromEcho(c) != log {
		t.Fatalf("echo context does not carry the attached logger")
	}
	if FromContext(c.Request().Context()) != log {
		t.Fatalf("request context does not carry the attached logger")
	}
}

func TestFallbackToGlobalLogger(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	if FromEcho(c) == nil || FromContext(context.Background()) == nil {
		t.Fatalf("expected a usable fallback logger")
	}
}
