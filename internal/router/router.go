package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-grader/internal/config"
	"github.com/noah-isme/gema-grader/internal/handler"
	"github.com/noah-isme/gema-grader/internal/observability"
	"github.com/noah-isme/gema-grader/internal/service"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	GradingHandler *handler.GradingHandler
	GradingService service.GradingService
	JWTMiddleware  fiber.Handler
	RoleMiddleware fiber.Handler
	RateLimiter    fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.GradingService))

	if deps.GradingHandler == nil {
		return
	}

	// authentication runs first so the limiter can key on the user id
	chain := make([]fiber.Handler, 0, 3)
	for _, mw := range []fiber.Handler{deps.JWTMiddleware, deps.RoleMiddleware, deps.RateLimiter} {
		if mw != nil {
			chain = append(chain, mw)
		}
	}

	grading := api.Group("/grading", chain...)
	deps.GradingHandler.Register(grading)
}
