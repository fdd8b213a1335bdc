package handlers

import (
	"go.uber.org/zap"

	"github.com/gofiber/fiber/v2"

	"github.com/trentd187/activity-lobby/internal/identity"
)

// CodeExchanger is the Discord side of the token exchange. *discord.Client implements it.
type CodeExchanger interface {
	ExchangeCode(code string) (string, error)
	FetchProfile(accessToken string) (identity.Profile, error)
}

// TokenSigner issues identity tokens. *identity.Signer implements it.
type TokenSigner interface {
	Sign(profile identity.Profile) (string, error)
}

// TokenRequest is the JSON body of POST /api/token.
type TokenRequest struct {
	Code string `json:"code"` // OAuth authorization code from the Embedded App SDK
}

// TokenResponse is returned to the activity client. AccessToken authenticates the SDK with
// Discord; Token is the identity token for the lobby WebSocket.
type TokenResponse struct {
	AccessToken string           `json:"access_token"`
	Token       string           `json:"token"`
	Profile     identity.Profile `json:"profile"`
}

// ExchangeToken returns a handler for POST /api/token.
func ExchangeToken(discord CodeExchanger, signer TokenSigner, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// --- Step 1: parse the body ---
		// BodyParser picks the decoder from Content-Type; a missing code is as bad as no body.
		var req TokenRequest
		if err := c.BodyParser(&req); err != nil || req.Code == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "code is required",
			})
		}

		// --- Step 2: trade the code for a Discord access token ---
		// Upstream failures are 502: the client did nothing wrong, Discord did.
		accessToken, err := discord.ExchangeCode(req.Code)
		if err != nil {
			log.Warn("oauth code exchange failed", zap.Error(err))
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"error": "code exchange failed",
			})
		}

		// --- Step 3: find out who the token belongs to ---
		profile, err := discord.FetchProfile(accessToken)
		if err != nil {
			log.Warn("profile fetch failed", zap.Error(err))
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"error": "profile fetch failed",
			})
		}

		// --- Step 4: issue our own identity token for the WebSocket handshake ---
		token, err := signer.Sign(profile)
		if err != nil {
			log.Error("signing identity token", zap.String("user_id", profile.ID), zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to issue token",
			})
		}

		log.Info("user logged in", zap.String("user_id", profile.ID), zap.String("username", profile.Username))
		return c.JSON(TokenResponse{AccessToken: accessToken, Token: token, Profile: profile})
	}
}
