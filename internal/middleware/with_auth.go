package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-assess-api/internal/utils"
)

// AuthOptions configures the WithAuth helper. Role checks go through RequireRole.
type AuthOptions struct {
	RequireUser bool
}

// WithAuth wraps a handler so it only runs for an authenticated user when
// opts.RequireUser is set.
func WithAuth(handler fiber.Handler, opts AuthOptions) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if opts.RequireUser && !hasUser(c) {
			return utils.Fail(c, fiber.StatusUnauthorized, "authentication required", nil)
		}
		return handler(c)
	}
}

func hasUser(c *fiber.Ctx) bool {
	switch id := c.Locals("user_id").(type) {
	case nil:
		return false
	case uint:
		return id > 0
	case int:
		return id > 0
	default:
		return true
	}
}
