package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gunesonchain/mekandayim/pkg/utils"
)

func AuthRequired(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, err := claimsFromHeader(c, secret)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": err.Error(),
			})
		}

		c.Locals("user_id", claims.UserID)
		c.Locals("username", claims.Username)

		return c.Next()
	}
}

// AuthOptional attaches the identity when a valid token is present and lets
// the request through either way. Read-only DM views stay non-fatal for
// signed-out visitors.
func AuthOptional(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, err := claimsFromHeader(c, secret)
		if err == nil {
			c.Locals("user_id", claims.UserID)
			c.Locals("username", claims.Username)
		}

		return c.Next()
	}
}

func claimsFromHeader(c *fiber.Ctx, secret string) (*utils.Claims, error) {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "Missing authorization header")
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "Invalid authorization header format")
	}

	claims, err := utils.ValidateToken(parts[1], secret)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "Invalid or expired token")
	}

	return claims, nil
}
