package translate

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/hl7fhir/internal/platform/hl7v2"
)

// Handler exposes the translator over HTTP.
type Handler struct {
	translator *Translator
	logger     zerolog.Logger
}

// NewHandler creates a new translation handler.
func NewHandler(translator *Translator, logger zerolog.Logger) *Handler {
	return &Handler{
		translator: translator,
		logger:     logger.With().Str("component", "translate").Logger(),
	}
}

// RegisterRoutes registers the translation endpoints on the provided group.
//
//	POST /api/hl7-to-fhir  - Translate an HL7v2 ADT message to a FHIR Bundle
//	GET  /api/health       - Readiness indicator
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/hl7-to-fhir", h.TranslateMessage)
	g.GET("/health", h.Health)
}

// TranslateMessage handles POST /api/hl7-to-fhir.
// It reads raw HL7v2 text from the request body and returns the Bundle.
func (h *Handler) TranslateMessage(c echo.Context) error {
	rid, _ := c.Get("request_id").(string)

	raw, err := readMessageBody(c.Request())
	if err != nil {
		var he *echo.HTTPError
		switch {
		case isContextErr(err):
			return err
		case errors.As(err, &he):
			return c.JSON(he.Code, errorBody(he.Message))
		case errors.Is(err, errUnsupportedMediaType):
			return c.JSON(http.StatusUnsupportedMediaType, errorBody(err.Error()))
		default:
			return c.JSON(http.StatusBadRequest, errorBody("failed to read request body"))
		}
	}
	if raw == "" {
		return c.JSON(http.StatusBadRequest, errorBody("Invalid or missing HL7 message body. Please send plain text HL7 data."))
	}

	bundle, err := h.translator.Translate(raw)
	if ctxErr := c.Request().Context().Err(); ctxErr != nil {
		return ctxErr
	}
	if err != nil {
		if errors.Is(err, hl7v2.ErrMalformedMessage) {
			h.logger.Info().Err(err).Str("request_id", rid).Int("bytes", len(raw)).Msg("rejected malformed message")
			return c.JSON(http.StatusBadRequest, errorBody(err.Error()))
		}
		h.logger.Error().Err(err).Str("request_id", rid).Int("bytes", len(raw)).Msg("translation failed")
		return c.JSON(http.StatusInternalServerError, errorBody("Internal server error while processing HL7 message"))
	}

	h.logger.Debug().
		Str("request_id", rid).
		Int("bytes", len(raw)).
		Bool("birth_date", bundle.Patient().BirthDate != "").
		Msg("message translated")

	return c.JSON(http.StatusOK, bundle)
}

// Health handles GET /api/health.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "HL7 to FHIR API is running",
	})
}

// isContextErr reports whether err came from the request deadline or a
// client disconnect. These are returned unchanged for the timeout middleware.
func isContextErr(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

func errorBody(msg interface{}) map[string]interface{} {
	return map[string]interface{}{"error": msg}
}
