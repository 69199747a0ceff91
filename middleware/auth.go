// middleware/auth.go
package middleware

import (
	"log"

	"github.com/gofiber/fiber/v2"
)

// ActorContextMiddleware extracts the Farcaster identity set by the Gateway.
// The frame/webapp layer resolves the signed frame message to an FID before
// forwarding; this service trusts the gateway headers.
func ActorContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		fid := c.Get("X-Actor-FID")
		username := c.Get("X-Actor-Username")

		if fid == "" {
			log.Printf("❌ [ACTOR_CTX] X-Actor-FID required but missing on secured route: %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing X-Actor-FID — request must come through gateway with auth context",
			})
		}

		c.Locals("actor_fid", fid)
		c.Locals("actor_username", username)

		return c.Next()
	}
}
