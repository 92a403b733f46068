package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-grader/internal/config"
	"github.com/noah-isme/gema-grader/internal/service"
	"github.com/noah-isme/gema-grader/internal/utils"
)

// HealthResponse represents the payload returned by the health endpoint.
type HealthResponse struct {
	Status             string    `json:"status"`
	Timestamp          time.Time `json:"timestamp"`
	Service            string    `json:"service"`
	Environment        string    `json:"environment"`
	Provider           string    `json:"provider"`
	ProviderConfigured bool      `json:"provider_configured"`
}

// HealthCheck returns a handler that reports application health information.
// A missing provider degrades the status instead of failing the probe.
func HealthCheck(cfg config.Config, grading service.GradingService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		payload := HealthResponse{
			Status:      "ok",
			Timestamp:   time.Now().UTC(),
			Service:     cfg.AppName,
			Environment: cfg.AppEnv,
			Provider:    cfg.AIProvider,
		}
		if grading != nil && grading.ProviderName() != "" {
			payload.ProviderConfigured = true
		} else {
			payload.Status = "degraded"
		}

		return utils.SendSuccess(c, "service healthy", payload)
	}
}
