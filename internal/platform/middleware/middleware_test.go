package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// runMiddleware invokes mw around h for one request and returns the recorder
// together with whatever the chain returned.
func runMiddleware(mw echo.MiddlewareFunc, method string, body io.Reader, h echo.HandlerFunc) (*httptest.ResponseRecorder, error) {
	e := echo.New()
	req := httptest.NewRequest(method, "/api/hl7-to-fhir", body)
	rec := httptest.NewRecorder()
	err := mw(h)(e.NewContext(req, rec))
	return rec, err
}

func TestRequestID_GeneratesNew(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		rid := c.Get("request_id").(string)
		if _, err := uuid.Parse(rid); err != nil {
			t.Errorf("expected generated request_id to be a UUID, got %q", rid)
		}
		return c.String(http.StatusOK, "ok")
	}

	mw := RequestID()
	h := mw(handler)
	err := h(c)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("expected X-Request-ID response header")
	}
}

func TestRequestID_PreservesExisting(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "my-custom-id")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		rid := c.Get("request_id").(string)
		if rid != "my-custom-id" {
			t.Errorf("expected my-custom-id, got %s", rid)
		}
		return c.String(http.StatusOK, "ok")
	}

	mw := RequestID()
	h := mw(handler)
	h(c)

	if rec.Header().Get(RequestIDHeader) != "my-custom-id" {
		t.Errorf("expected my-custom-id in response header, got %s", rec.Header().Get(RequestIDHeader))
	}
}

func TestRequestID_ReplacesOversizedID(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, strings.Repeat("x", 200))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := RequestID()(func(c echo.Context) error { return nil })
	h(c)

	if got := rec.Header().Get(RequestIDHeader); len(got) != 36 {
		t.Errorf("expected a fresh UUID, got %q", got)
	}
}

func TestLogger_LogsRequest(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/hl7-to-fhir", strings.NewReader("MSH|^~\\&|PHI"))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("request_id", "req-123")

	handler := func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	}

	mw := Logger(logger)
	h := mw(handler)
	err := h(c)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected one JSON log line, got %q: %v", buf.String(), err)
	}
	if entry["request_id"] != "req-123" {
		t.Errorf("expected request_id req-123, got %v", entry["request_id"])
	}
	if entry["path"] != "/api/hl7-to-fhir" {
		t.Errorf("expected path /api/hl7-to-fhir, got %v", entry["path"])
	}
	if entry["status"] != float64(http.StatusOK) {
		t.Errorf("expected status 200, got %v", entry["status"])
	}
	if strings.Contains(buf.String(), "PHI") {
		t.Error("request body must not be logged")
	}
}

func TestLogger_LevelFollowsStatus(t *testing.T) {
	tests := []struct {
		name    string
		handler echo.HandlerFunc
		status  int
		level   string
	}{
		{"ok", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, 200, "info"},
		{"not found", func(c echo.Context) error { return echo.ErrNotFound }, 404, "warn"},
		{"failure", func(c echo.Context) error { return errors.New("boom") }, 500, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			e := echo.New()
			e.HTTPErrorHandler = ErrorHandler(zerolog.Nop())
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/x", nil), rec)

			if err := Logger(zerolog.New(&buf))(tt.handler)(c); err != nil {
				t.Fatalf("expected error to be handled, got %v", err)
			}
			if rec.Code != tt.status {
				t.Errorf("expected %d written, got %d", tt.status, rec.Code)
			}

			var entry map[string]interface{}
			if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
				t.Fatalf("expected one JSON log line, got %q", buf.String())
			}
			if entry["status"] != float64(tt.status) {
				t.Errorf("logged status %v, want %d", entry["status"], tt.status)
			}
			if entry["level"] != tt.level {
				t.Errorf("logged level %v, want %s", entry["level"], tt.level)
			}
		})
	}
}

func TestErrorHandler_JSONBody(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		msg  string
	}{
		{"http error", echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded"), 429, "rate limit exceeded"},
		{"echo sentinel", echo.ErrNotFound, 404, "Not Found"},
		{"non-string message", echo.NewHTTPError(http.StatusBadRequest, 42), 400, "Bad Request"},
		{"plain error", errors.New("db password is hunter2"), 500, "Internal Server Error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodPost, "/api/hl7-to-fhir", nil), rec)

			ErrorHandler(zerolog.Nop())(tt.err, c)

			if rec.Code != tt.code {
				t.Errorf("expected %d, got %d", tt.code, rec.Code)
			}
			var body map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v (%s)", err, rec.Body.String())
			}
			if body["error"] != tt.msg {
				t.Errorf("expected error %q, got %q", tt.msg, body["error"])
			}
		})
	}
}

func TestErrorHandler_SkipsCommittedResponse(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.String(http.StatusOK, "done")

	ErrorHandler(zerolog.Nop())(errors.New("late"), c)

	if rec.Code != http.StatusOK || rec.Body.String() != "done" {
		t.Errorf("committed response was modified: %d %q", rec.Code, rec.Body.String())
	}
}

func TestRecovery_CatchesPanic(t *testing.T) {
	var buf bytes.Buffer
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/panic", nil), httptest.NewRecorder())
	c.Set("request_id", "req-9")

	err := Recovery(zerolog.New(&buf))(func(c echo.Context) error {
		panic("test panic")
	})(c)

	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", httpErr.Code)
	}
	if !strings.Contains(buf.String(), `"request_id":"req-9"`) || !strings.Contains(buf.String(), "test panic") {
		t.Errorf("panic not logged with request id: %s", buf.String())
	}
}

func TestRecovery_AfterCommit(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	err := Recovery(zerolog.Nop())(func(c echo.Context) error {
		c.String(http.StatusOK, "partial")
		panic("after write")
	})(c)

	if err != nil {
		t.Errorf("expected no error once the response is committed, got %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected the committed status to stand, got %d", rec.Code)
	}
}

func TestRecovery_PassesThrough(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/ok", nil), httptest.NewRecorder())

	err := Recovery(zerolog.Nop())(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
