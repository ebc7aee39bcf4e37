package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// RequestTimeout puts a deadline of d on the request context. The handler
// runs on the request goroutine and is expected to give up once the context
// is done; a context.DeadlineExceeded it returns becomes 504. A non-positive
// d disables the deadline.
func RequestTimeout(d time.Duration) echo.MiddlewareFunc {
	if d <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return echomw.ContextTimeoutWithConfig(echomw.ContextTimeoutConfig{
		Timeout:      d,
		ErrorHandler: timeoutError,
	})
}

func timeoutError(err error, c echo.Context) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return echo.NewHTTPError(http.StatusGatewayTimeout, "request processing exceeded the allowed time limit").SetInternal(err)
	}
	return err
}
