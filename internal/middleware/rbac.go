package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-grader/internal/utils"
)

// RequireRole lets the request through when any of the caller's roles is allowed.
// Roles come from the user_roles and user_role locals set by JWTProtected.
func RequireRole(allowed ...string) fiber.Handler {
	permitted := make(map[string]bool, len(allowed))
	for _, role := range allowed {
		if role = strings.ToLower(strings.TrimSpace(role)); role != "" {
			permitted[role] = true
		}
	}

	return func(c *fiber.Ctx) error {
		for _, role := range callerRoles(c) {
			if permitted[role] {
				return c.Next()
			}
		}
		return utils.SendError(c, fiber.StatusForbidden, "grading requires a teacher or admin role")
	}
}

func callerRoles(c *fiber.Ctx) []string {
	if roles, ok := c.Locals("user_roles").([]string); ok && len(roles) > 0 {
		return roles
	}
	if role, ok := c.Locals("user_role").(string); ok {
		return []string{strings.ToLower(strings.TrimSpace(role))}
	}
	return nil
}
