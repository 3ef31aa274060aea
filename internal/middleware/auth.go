package middleware

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"cybersync/pkg/auth"
)

// Locals keys set by the auth middleware.
const (
	LocalUserID   = "user_id"
	LocalUsername = "username"
	LocalUserRole = "user_role"
)

// Auth verifies the bearer token and stores the principal in request locals.
func Auth(tokens *auth.TokenAuth) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, err := auth.ExtractToken(c.Get("Authorization"))
		if err != nil {
			// SSE clients cannot set headers, so the stream endpoint passes
			// the token as a query parameter.
			token = c.Query("token")
		}
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing or invalid authorization token",
			})
		}

		user, err := tokens.Verify(token)
		if err != nil {
			log.Printf("❌ [AUTH] Token rejected: %v", err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid or expired token",
			})
		}

		c.Locals(LocalUserID, user.ID)
		c.Locals(LocalUsername, user.Username)
		c.Locals(LocalUserRole, user.Role)
		return c.Next()
	}
}

// RequireRole rejects requests whose principal lacks the role. Must run
// after Auth.
func RequireRole(role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Locals(LocalUserRole) != role {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "insufficient permissions",
			})
		}
		return c.Next()
	}
}

// UserID returns the authenticated user's ObjectID from request locals.
func UserID(c *fiber.Ctx) (primitive.ObjectID, error) {
	id, _ := c.Locals(LocalUserID).(string)
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, fiber.NewError(fiber.StatusUnauthorized, "invalid user id in token")
	}
	return oid, nil
}
