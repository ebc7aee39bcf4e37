package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// ErrorHandler renders every error that reaches echo as {"error": "..."}.
// Errors other than *echo.HTTPError become a generic 500; their text is
// logged, never sent.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		msg := http.StatusText(code)

		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			if m, ok := he.Message.(string); ok && m != "" {
				msg = m
			} else {
				msg = http.StatusText(code)
			}
		} else {
			rid, _ := c.Get("request_id").(string)
			logger.Error().Err(err).Str("request_id", rid).Msg("unhandled error")
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(code)
		} else {
			werr = c.JSON(code, map[string]string{"error": msg})
		}
		if werr != nil {
			logger.Error().Err(werr).Msg("write error response failed")
		}
	}
}
