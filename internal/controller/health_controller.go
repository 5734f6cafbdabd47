package controller

import (
	"context"
	"time"

	"devmemory-be/internal/pkg/serverutils"

	"github.com/gofiber/fiber/v2"
)

// HealthChecker reports whether a backing dependency is reachable.
type HealthChecker func(ctx context.Context) error

type IHealthController interface {
	RegisterRoutes(r fiber.Router)
	Health(ctx *fiber.Ctx) error
}

type healthController struct {
	checks map[string]HealthChecker
}

func NewHealthController(checks map[string]HealthChecker) IHealthController {
	return &healthController{checks: checks}
}

func (c *healthController) RegisterRoutes(r fiber.Router) {
	r.Get("/health", c.Health)
}

func (c *healthController) Health(ctx *fiber.Ctx) error {
	checkCtx, cancel := context.WithTimeout(ctx.UserContext(), 3*time.Second)
	defer cancel()

	status := make(map[string]string, len(c.checks))
	healthy := true
	for name, check := range c.checks {
		if err := check(checkCtx); err != nil {
			status[name] = err.Error()
			healthy = false
			continue
		}
		status[name] = "ok"
	}

	if !healthy {
		body := serverutils.ErrorResponse(fiber.StatusServiceUnavailable, "Unhealthy")
		body.Data = status
		return ctx.Status(fiber.StatusServiceUnavailable).JSON(body)
	}
	return ctx.JSON(serverutils.SuccessResponse("Healthy", status))
}
