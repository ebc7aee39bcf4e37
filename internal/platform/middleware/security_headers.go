package middleware

import (
	"github.com/labstack/echo/v4"
)

// consoleCSP admits same-origin scripts and styles for the embedded console
// and denies everything else.
const consoleCSP = "default-src 'none'; script-src 'self'; style-src 'self'; connect-src 'self'; frame-ancestors 'none'"

var securityHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"X-XSS-Protection", "0"},
	{"Content-Security-Policy", consoleCSP},
	{"Referrer-Policy", "no-referrer"},
	{"Permissions-Policy", "camera=(), microphone=(), geolocation=()"},
	// Bundles carry PHI.
	{"Cache-Control", "no-store"},
}

const hsts = "max-age=31536000; includeSubDomains"

// SecurityHeaders sets the response headers above on every request, and
// Strict-Transport-Security when the request reached us over HTTPS (directly
// or per X-Forwarded-Proto).
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			for _, kv := range securityHeaders {
				h.Set(kv[0], kv[1])
			}
			if c.Scheme() == "https" {
				h.Set("Strict-Transport-Security", hsts)
			}
			return next(c)
		}
	}
}
