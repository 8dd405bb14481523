package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	"filetrack/internal/ports"
)

func RequestLogger(logger ports.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			started := time.Now()
			err := next(c)
			duration := time.Since(started)
			ctx := c.Request().Context()
			args := []any{
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"route_pattern", c.Path(),
				"status", c.Response().Status,
				"duration", duration.String(),
			}
			if id := c.Response().Header().Get(echo.HeaderXRequestID); id != "" {
				args = append(args, "request_id", id)
			}
			if sess, ok := SessionFrom(c); ok {
				args = append(args, "user_id", sess.ID)
			}
			if c.Response().Status >= 500 {
				logger.Error(ctx, "http request", args...)
				return err
			}
			logger.Info(ctx, "http request", args...)
			return err
		}
	}
}
