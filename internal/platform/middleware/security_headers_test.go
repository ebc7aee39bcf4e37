package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestSecurityHeaders(t *testing.T) {
	tests := []struct {
		name    string
		handler echo.HandlerFunc
	}{
		{"success", func(c echo.Context) error { return c.String(http.StatusOK, "ok") }},
		{"handler error", func(c echo.Context) error { return echo.ErrNotFound }},
	}

	want := map[string]string{
		"X-Content-Type-Options":  "nosniff",
		"X-Frame-Options":         "DENY",
		"X-XSS-Protection":        "0",
		"Content-Security-Policy": consoleCSP,
		"Referrer-Policy":         "no-referrer",
		"Permissions-Policy":      "camera=(), microphone=(), geolocation=()",
		"Cache-Control":           "no-store",
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, _ := runMiddleware(SecurityHeaders(), http.MethodPost, nil, tt.handler)
			for header, value := range want {
				if got := rec.Header().Get(header); got != value {
					t.Errorf("%s: got %q, want %q", header, got, value)
				}
			}
		})
	}
}

func TestSecurityHeaders_PassesThrough(t *testing.T) {
	_, err := runMiddleware(SecurityHeaders(), http.MethodGet, nil, func(c echo.Context) error {
		return echo.ErrNotFound
	})
	if err != echo.ErrNotFound {
		t.Fatalf("expected handler error to propagate, got %v", err)
	}

	rec, err := runMiddleware(SecurityHeaders(), http.MethodGet, nil, func(c echo.Context) error {
		return c.NoContent(http.StatusAccepted)
	})
	if err != nil || rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202 and no error, got %d, %v", rec.Code, err)
	}
}

func TestSecurityHeaders_HSTSOnlyOverHTTPS(t *testing.T) {
	rec, _ := runMiddleware(SecurityHeaders(), http.MethodGet, nil, func(c echo.Context) error { return nil })
	if got := rec.Header().Get("Strict-Transport-Security"); got != "" {
		t.Errorf("expected no HSTS over plain HTTP, got %q", got)
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(echo.HeaderXForwardedProto, "https")
	rec = httptest.NewRecorder()
	if err := SecurityHeaders()(func(c echo.Context) error { return nil })(e.NewContext(req, rec)); err != nil {
		t.Fatal(err)
	}
	if got := rec.Header().Get("Strict-Transport-Security"); got != hsts {
		t.Errorf("expected HSTS behind a TLS proxy, got %q", got)
	}
}
