package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Health reports whether MySQL and Redis answer. Load balancers treat a
// 503 as "take out of rotation".
func Health(db Pinger, redisPing func(ctx context.Context) error) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()

		status := echo.Map{"mysql": "ok", "redis": "ok"}
		code := http.StatusOK
		if err := db.PingContext(ctx); err != nil {
			status["mysql"] = "down"
			code = http.StatusServiceUnavailable
		}
		if err := redisPing(ctx); err != nil {
			status["redis"] = "down"
			code = http.StatusServiceUnavailable
		}
		return c.JSON(code, status)
	}
}
