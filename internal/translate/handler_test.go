package translate

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/hl7fhir/internal/platform/fhir"
	"github.com/ehr/hl7fhir/internal/platform/middleware"
)

func newTestServer(tr *Translator) *echo.Echo {
	e := echo.New()
	h := NewHandler(tr, zerolog.Nop())
	h.RegisterRoutes(e.Group("/api"))
	return e
}

func newPost(contentType string, body io.Reader) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/hl7-to-fhir", body)
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	return req
}

func postMessage(e *echo.Echo, contentType, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, newPost(contentType, strings.NewReader(body)))
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body["error"]
}

// trickle yields one byte per Read after a short pause.
type trickle struct {
	data  string
	pause time.Duration
}

func (r *trickle) Read(p []byte) (int, error) {
	if r.data == "" {
		return 0, io.EOF
	}
	time.Sleep(r.pause)
	p[0] = r.data[0]
	r.data = r.data[1:]
	return 1, nil
}

func TestHandler_TranslateMessage(t *testing.T) {
	e := newTestServer(newTestTranslator())

	rec := postMessage(e, "text/plain", sampleADT)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON))

	var bundle fhir.Bundle
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bundle))
	p := bundle.Patient()
	require.NotNil(t, p)
	assert.Equal(t, "10006579", p.Identifier[0].Value)
	assert.Equal(t, "male", p.Gender)
	assert.Equal(t, "2026-02-19T14:30:00.000Z", bundle.Meta.LastUpdated)
}

func TestHandler_AcceptedContentTypes(t *testing.T) {
	e := newTestServer(newTestTranslator())

	for _, ct := range []string{"", "text/plain; charset=utf-8", "application/hl7-v2", "x-application/hl7-v2+er7"} {
		t.Run("content-type="+ct, func(t *testing.T) {
			rec := postMessage(e, ct, sampleADT)
			assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		})
	}
}

func TestHandler_EmptyBody(t *testing.T) {
	e := newTestServer(newTestTranslator())

	for _, ct := range []string{"", "text/plain", "text/plain; charset=iso-8859-1"} {
		t.Run("content-type="+ct, func(t *testing.T) {
			rec := postMessage(e, ct, "")
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "Invalid or missing HL7 message body. Please send plain text HL7 data.", decodeError(t, rec))
		})
	}
}

func TestHandler_MalformedMessage(t *testing.T) {
	e := newTestServer(newTestTranslator())

	rec := postMessage(e, "text/plain", "PID|1||10006579")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec), "malformed message")
}

func TestHandler_UnsupportedMediaType(t *testing.T) {
	e := newTestServer(newTestTranslator())

	rec := postMessage(e, echo.MIMEApplicationJSON, `{"message":"MSH|^~\\&"}`)
	require.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	assert.NotEmpty(t, decodeError(t, rec))
}

func TestHandler_Latin1Body(t *testing.T) {
	e := newTestServer(newTestTranslator())

	// 0xC9 is É in ISO-8859-1 and not valid UTF-8 on its own.
	body := strings.Replace(sampleADT, "DOE^JOHN", "DOE^REN\xC9", 1)
	rec := postMessage(e, "text/plain; charset=iso-8859-1", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var bundle fhir.Bundle
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bundle))
	assert.Equal(t, "RENÉ", bundle.Patient().Name[0].Given[0])
}

func TestHandler_BodyTooLarge(t *testing.T) {
	e := echo.New()
	e.Use(middleware.BodyLimit("64"))
	NewHandler(newTestTranslator(), zerolog.Nop()).RegisterRoutes(e.Group("/api"))

	req := newPost("text/plain", strings.NewReader(sampleADT))
	req.ContentLength = -1
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code, rec.Body.String())
}

func TestHandler_InternalError(t *testing.T) {
	tr := New(WithClock(func() time.Time { panic("clock stopped") }))
	e := newTestServer(tr)

	rec := postMessage(e, "text/plain", sampleADT)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	msg := decodeError(t, rec)
	assert.Equal(t, "Internal server error while processing HL7 message", msg)
	assert.NotContains(t, msg, "clock stopped")
}

func TestHandler_ExpiredContextIsReturned(t *testing.T) {
	e := echo.New()
	h := NewHandler(newTestTranslator(), zerolog.Nop())

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	req := newPost("text/plain", strings.NewReader(sampleADT)).WithContext(ctx)
	rec := httptest.NewRecorder()

	err := h.TranslateMessage(e.NewContext(req, rec))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, rec.Body.Len())
}

func TestHandler_SlowBodyTimesOut(t *testing.T) {
	e := echo.New()
	e.HTTPErrorHandler = middleware.ErrorHandler(zerolog.Nop())
	e.Use(middleware.RequestTimeout(20 * time.Millisecond))
	NewHandler(newTestTranslator(), zerolog.Nop()).RegisterRoutes(e.Group("/api"))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, newPost("text/plain", &trickle{data: sampleADT, pause: 2 * time.Millisecond}))
	require.Equal(t, http.StatusGatewayTimeout, rec.Code, rec.Body.String())
	assert.Equal(t, "request processing exceeded the allowed time limit", decodeError(t, rec))

	next := postMessage(e, "text/plain", sampleADT)
	assert.Equal(t, http.StatusOK, next.Code, next.Body.String())
}

func TestHandler_Health(t *testing.T) {
	e := newTestServer(newTestTranslator())

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "HL7 to FHIR API is running", body["message"])
}

func TestReadMessageBody(t *testing.T) {
	t.Run("empty body", func(t *testing.T) {
		raw, err := readMessageBody(newPost("text/plain", strings.NewReader("")))
		require.NoError(t, err)
		assert.Empty(t, raw)
	})

	t.Run("short body", func(t *testing.T) {
		raw, err := readMessageBody(newPost("", strings.NewReader("MSH|^~\\&")))
		require.NoError(t, err)
		assert.Equal(t, "MSH|^~\\&", raw)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := readMessageBody(newPost("text/plain", strings.NewReader(sampleADT)).WithContext(ctx))
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("unsupported type", func(t *testing.T) {
		_, err := readMessageBody(newPost("image/png", strings.NewReader(sampleADT)))
		assert.ErrorIs(t, err, errUnsupportedMediaType)
	})
}
