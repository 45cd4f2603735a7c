package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
)

// MinimumDuration holds every response until at least d has passed since
// the request arrived, so that success, failure and early rejection all
// take the same observable time. A cancelled request stops waiting.
func MinimumDuration(d time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			remaining := d - time.Since(start)
			if remaining <= 0 {
				return err
			}
			t := time.NewTimer(remaining)
			defer t.Stop()
			select {
			case <-t.C:
			case <-c.Request().Context().Done():
			}
			return err
		}
	}
}
