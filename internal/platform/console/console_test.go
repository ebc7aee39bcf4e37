package console

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestRegister_ServesAssets(t *testing.T) {
	e := echo.New()
	Register(e)

	tests := []struct {
		path string
		want string
	}{
		{"/", "<title>HL7 v2 to FHIR</title>"},
		{"/index.html", "<title>HL7 v2 to FHIR</title>"},
		{"/app.js", "hl7-to-fhir"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tt.want) {
				t.Errorf("expected body of %s to contain %q", tt.path, tt.want)
			}
		})
	}
}

func TestRegister_MissingAsset(t *testing.T) {
	e := echo.New()
	Register(e)

	req := httptest.NewRequest(http.MethodGet, "/nope.js", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}
