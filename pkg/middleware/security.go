package middleware

import (
	"github.com/gofiber/fiber/v2"
)

// SecurityHeaders adds security-related HTTP headers to responses. This is
// the only middleware this service keeps from the teacher's security
// package: the health/readiness surface has no authenticated routes, so
// RateLimiter/Authenticate/Authorize would be dead code here.
func SecurityHeaders() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set("X-XSS-Protection", "1; mode=block")
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Content-Security-Policy", "default-src 'self'")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")

		return c.Next()
	}
}
