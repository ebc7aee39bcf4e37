package middleware

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

// BodyLimit returns middleware that limits the maximum request body size.
//
// The limit is a human-readable string: "1M" for 1 megabyte, "512K" for 512
// kilobytes, etc. Supported suffixes are K, M and G (an optional trailing B
// is accepted). A bare number is treated as bytes.
//
// When the limit is exceeded, the middleware returns HTTP 413.
func BodyLimit(limit string) echo.MiddlewareFunc {
	limitBytes, err := ParseLimit(limit)
	if err != nil {
		limitBytes = defaultBodyLimit
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().Body == nil || c.Request().Body == http.NoBody {
				return next(c)
			}

			// Check Content-Length header first for early rejection
			if c.Request().ContentLength > limitBytes {
				return payloadTooLargeError(c, limitBytes)
			}

			// Wrap the body with a limiting reader to enforce the limit
			// even when Content-Length is missing or incorrect.
			c.Request().Body = &limitedReadCloser{
				ReadCloser: c.Request().Body,
				remaining:  limitBytes,
			}

			return next(c)
		}
	}
}

// limitedReadCloser wraps an io.ReadCloser and returns an error once the
// read limit is exceeded.
type limitedReadCloser struct {
	io.ReadCloser
	remaining int64
	exceeded  bool
}

func (r *limitedReadCloser) Read(p []byte) (n int, err error) {
	if r.exceeded {
		return 0, echo.NewHTTPError(http.StatusRequestEntityTooLarge, "request body too large")
	}

	// Only read up to the remaining allowed bytes + 1 (to detect overflow)
	toRead := int64(len(p))
	if toRead > r.remaining+1 {
		toRead = r.remaining + 1
	}

	n, err = r.ReadCloser.Read(p[:toRead])
	r.remaining -= int64(n)

	if r.remaining < 0 {
		r.exceeded = true
		return 0, echo.NewHTTPError(http.StatusRequestEntityTooLarge, "request body too large")
	}

	return n, err
}

func payloadTooLargeError(c echo.Context, limit int64) error {
	return c.JSON(http.StatusRequestEntityTooLarge, map[string]string{
		"error": fmt.Sprintf("request body exceeds maximum allowed size of %d bytes", limit),
	})
}

const defaultBodyLimit = 1 << 20

// ParseLimit parses a human-readable size string (e.g. "1M", "512K", "10G")
// into a number of bytes. An empty string yields the 1 MB default.
func ParseLimit(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return defaultBodyLimit, nil
	}

	num := strings.TrimSuffix(s, "B")
	var multiplier int64 = 1
	switch {
	case strings.HasSuffix(num, "G"):
		multiplier = 1 << 30
	case strings.HasSuffix(num, "M"):
		multiplier = 1 << 20
	case strings.HasSuffix(num, "K"):
		multiplier = 1 << 10
	}
	if multiplier > 1 {
		num = num[:len(num)-1]
	}

	n, err := strconv.ParseInt(num, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	return n * multiplier, nil
}
