package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grader/internal/middleware"
)

// userIDFromContext returns the authenticated user id, or 0 when auth is disabled.
func userIDFromContext(c *fiber.Ctx) uint {
	switch id := c.Locals("user_id").(type) {
	case uint:
		return id
	case int:
		if id > 0 {
			return uint(id)
		}
	}
	return 0
}

// requestLogger scopes base to the request's correlation id and caller.
func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	ctx := base.With()
	if correlation := middleware.GetCorrelationID(c); correlation != "" {
		ctx = ctx.Str("correlation_id", correlation)
	}
	if userID := userIDFromContext(c); userID != 0 {
		ctx = ctx.Uint("user_id", userID)
	}
	logger := ctx.Logger()
	return &logger
}
