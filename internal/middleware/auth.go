// Package middleware contains fiber middleware for the lobby server: the WebSocket
// Admission Gate and bearer-token authentication for the REST API. Both resolve a signed
// identity token to an identity.Identity and store it in the request locals.
package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/trentd187/activity-lobby/internal/identity"
)

// IdentityKey is the c.Locals key under which the verified identity.Identity is stored.
const IdentityKey = "identity"

// TokenVerifier validates a signed identity token. *identity.Verifier implements it.
type TokenVerifier interface {
	Verify(token string) (identity.Identity, error)
}

// Auth returns a handler that requires an "Authorization: Bearer <token>" header carrying a
// valid identity token. On success the identity is stored under IdentityKey.
func Auth(verifier TokenVerifier, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// --- Step 1: extract the token from the Authorization header ---
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing or invalid authorization header",
			})
		}

		// --- Step 2: verify it ---
		// Same identity tokens as the WebSocket handshake; any valid token may read the
		// room API, there are no roles.
		id, err := verifier.Verify(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			log.Debug("rejecting api request", zap.String("path", c.Path()), zap.Error(err))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid token",
			})
		}

		// --- Step 3: store the identity for downstream handlers ---
		c.Locals(IdentityKey, id)
		return c.Next()
	}
}

// IdentityFrom returns the identity stored by Auth or Admission. The WebSocket route uses it
// to refuse upgrades that did not pass through the Admission Gate.
func IdentityFrom(c *fiber.Ctx) (identity.Identity, bool) {
	id, ok := c.Locals(IdentityKey).(identity.Identity)
	return id, ok
}
