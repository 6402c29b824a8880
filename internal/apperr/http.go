package apperr

import "github.com/labstack/echo/v4"

// HTTP converts a service error into an echo HTTP error carrying the
// stable code alongside the human-readable message.
func HTTP(err error) *echo.HTTPError {
	return echo.NewHTTPError(Status(err), map[string]string{
		"code":    Code(err),
		"message": err.Error(),
	})
}
