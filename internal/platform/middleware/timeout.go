package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

const timeoutMessage = "request processing exceeded the allowed time limit"

// RequestTimeout sets a deadline on each request context. Repositories pass
// that context to pgx, so a slow query is cancelled at the deadline. The
// handler runs on the request goroutine and has returned before the
// middleware does; a handler stopped by the deadline yields a 504.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return echomw.ContextTimeoutWithConfig(echomw.ContextTimeoutConfig{
		Timeout:      timeout,
		ErrorHandler: timeoutError,
	})
}

// timeoutError turns any failure that happened past the deadline into a 504,
// including domain errors that already mapped the cancelled query to a 500.
func timeoutError(err error, c echo.Context) error {
	deadline := errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(c.Request().Context().Err(), context.DeadlineExceeded)
	if !deadline || c.Response().Committed {
		return err
	}
	return echo.NewHTTPError(http.StatusGatewayTimeout, timeoutMessage).WithInternal(err)
}
