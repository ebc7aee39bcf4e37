// Package console serves the browser page used to paste a message and
// inspect the translated Bundle by hand.
package console

import (
	"embed"

	"github.com/labstack/echo/v4"
)

//go:embed static
var staticFS embed.FS

// Register mounts the console at the root of e.
func Register(e *echo.Echo) {
	e.StaticFS("/", echo.MustSubFS(staticFS, "static"))
}
