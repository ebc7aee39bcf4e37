package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Logger writes one access log line per request, at warn for 4xx and error
// for 5xx. It hands any returned error to echo first so the logged status
// is the one the client sees. Bodies are never logged: they carry patient
// data.
func Logger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()
			rid, _ := c.Get("request_id").(string)

			var evt *zerolog.Event
			switch {
			case res.Status >= 500:
				evt = logger.Error()
			case res.Status >= 400:
				evt = logger.Warn()
			default:
				evt = logger.Info()
			}
			if err != nil {
				evt = evt.Err(err)
			}

			evt.Str("request_id", rid).
				Str("method", req.Method).
				Str("route", c.Path()).
				Str("path", req.URL.Path).
				Int("status", res.Status).
				Int64("bytes_in", req.ContentLength).
				Int64("bytes_out", res.Size).
				Dur("latency", time.Since(start)).
				Str("remote_ip", c.RealIP()).
				Msg("request")

			return nil
		}
	}
}
