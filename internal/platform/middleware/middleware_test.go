package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func TestRequestID_Generated(t *testing.T) {
	e := echo.New()
	e.Use(RequestID())
	e.GET("/", func(c echo.Context) error {
		rid, _ := c.Get("request_id").(string)
		if rid == "" {
			t.Error("expected request_id in context")
		}
		return c.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("expected X-Request-ID response header")
	}
}

func TestRequestID_PropagatesCallerHeader(t *testing.T) {
	e := echo.New()
	e.Use(RequestID())
	e.GET("/", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "caller-id-42")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if got := rec.Header().Get(RequestIDHeader); got != "caller-id-42" {
		t.Errorf("expected caller request id echoed back, got %q", got)
	}
}

func TestRecovery_PanicBecomes500(t *testing.T) {
	e := echo.New()
	logger := zerolog.Nop()
	e.Use(Recovery(logger))
	e.GET("/boom", func(c echo.Context) error {
		panic("kaboom")
	})

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}

func TestLogger_PassesThrough(t *testing.T) {
	e := echo.New()
	logger := zerolog.Nop()
	e.Use(Logger(logger))
	e.GET("/", func(c echo.Context) error {
		return c.String(http.StatusTeapot, "short and stout")
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusTeapot {
		t.Errorf("expected handler status preserved, got %d", rec.Code)
	}
}

func TestLogger_LevelFollowsStatusClass(t *testing.T) {
	tests := []struct {
		name    string
		handler echo.HandlerFunc
		status  int
		level   string
	}{
		{
			"success logs info",
			func(c echo.Context) error { return c.NoContent(http.StatusOK) },
			http.StatusOK, "info",
		},
		{
			"client error logs warn",
			func(c echo.Context) error { return echo.NewHTTPError(http.StatusNotFound, "missing") },
			http.StatusNotFound, "warn",
		},
		{
			"server error logs error",
			func(c echo.Context) error { return echo.NewHTTPError(http.StatusInternalServerError, "broken") },
			http.StatusInternalServerError, "error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			e := echo.New()
			e.Use(Logger(zerolog.New(&buf)))
			e.GET("/", tt.handler)

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, rec.Code)
			}
			line := buf.String()
			if !strings.Contains(line, `"level":"`+tt.level+`"`) {
				t.Errorf("expected %s level line, got %s", tt.level, line)
			}
		})
	}
}

func TestLogger_RecordsResolvedErrorStatus(t *testing.T) {
	var buf bytes.Buffer
	e := echo.New()
	e.Use(Logger(zerolog.New(&buf)))
	e.GET("/", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusConflict, "taken")
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 written to client, got %d", rec.Code)
	}
	if !strings.Contains(buf.String(), `"status":409`) {
		t.Errorf("expected logged status to match response, got %s", buf.String())
	}
}

func TestRecovery_LogsRequestContext(t *testing.T) {
	var buf bytes.Buffer
	e := echo.New()
	e.Use(Recovery(zerolog.New(&buf)))
	e.Use(RequestID())
	e.GET("/boom", func(c echo.Context) error {
		panic("kaboom")
	})

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	req.Header.Set(RequestIDHeader, "rid-panic-1")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
	line := buf.String()
	for _, want := range []string{`"request_id":"rid-panic-1"`, `"path":"/boom"`, "kaboom"} {
		if !strings.Contains(line, want) {
			t.Errorf("expected %s in panic log, got %s", want, line)
		}
	}
}

func TestRecovery_ConnectionAbortRepanics(t *testing.T) {
	e := echo.New()
	e.Use(Recovery(zerolog.Nop()))
	e.GET("/", func(c echo.Context) error {
		panic(http.ErrAbortHandler)
	})

	defer func() {
		if r := recover(); r != http.ErrAbortHandler {
			t.Errorf("expected abort sentinel to propagate, got %v", r)
		}
	}()
	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	t.Error("expected ServeHTTP to panic")
}
