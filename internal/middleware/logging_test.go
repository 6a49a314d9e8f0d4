package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestRequestLogger_EmitsRequestRecord(t *testing.T) {
	var out bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&out, nil))

	e := echo.New()
	e.Use(RequestLogger(logger))
	e.GET("/statusz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/statusz", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	record := out.String()
	for _, want := range []string{
		`"msg":"admin request"`,
		`"method":"GET"`,
		`"path":"/statusz"`,
		`"status":200`,
	} {
		if !strings.Contains(record, want) {
			t.Errorf("log record %q missing %q", record, want)
		}
	}
}
