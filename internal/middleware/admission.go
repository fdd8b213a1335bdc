package middleware

import (
	"net" // net.Conn is the raw TCP connection handed to a fasthttp hijack handler
	"strings"

	// contrib/websocket provides IsWebSocketUpgrade, which inspects the Connection and
	// Upgrade headers on the underlying fasthttp request
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// AuthorizationProtocol is the literal Sec-WebSocket-Protocol entry that precedes the
// identity token. Browsers cannot set headers on WebSocket handshakes, so clients pass the
// token as the next "sub-protocol": new WebSocket(url, ["Authorization", token]).
const AuthorizationProtocol = "Authorization"

const headerSecWebSocketProtocol = "Sec-WebSocket-Protocol"

// Admission returns the Admission Gate. It must run before any route.
//
// Non-upgrade requests pass through untouched. An upgrade request:
//   - for any path other than wsPath has its connection closed without a response;
//   - without an Authorization token, or with one the verifier rejects, gets
//     401 Unauthorized and the connection is closed;
//   - otherwise has its identity stored under IdentityKey and continues to the
//     WebSocket route, which completes the upgrade.
func Admission(wsPath string, verifier TokenVerifier, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Ordinary HTTP traffic (health checks, the REST API, static files) is not ours.
		if !websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}

		log := log.With(zap.String("path", c.Path()), zap.String("remote_addr", c.IP()))

		// --- Step 1: path check ---
		// Upgrades are only admitted on the lobby socket path. Anything else gets no
		// HTTP answer at all; the TCP connection is simply dropped.
		if c.Path() != wsPath {
			log.Info("destroying upgrade request for unknown path")
			return destroy(c)
		}

		// --- Step 2: extract the token from Sec-WebSocket-Protocol ---
		token, ok := TokenFromProtocols(c.Get(headerSecWebSocketProtocol))
		if !ok {
			log.Info("rejecting upgrade without token")
			return unauthorized(c)
		}

		// --- Step 3: verify it ---
		// The verifier checks signature, algorithm, expiry and subject in one call.
		id, err := verifier.Verify(token)
		if err != nil {
			log.Info("rejecting upgrade with invalid token", zap.Error(err))
			return unauthorized(c)
		}

		// --- Step 4: hand the identity to the WebSocket route ---
		// contrib/websocket copies c.Locals onto the upgraded Conn, so the route handler
		// reads the same value back after the handshake.
		c.Locals(IdentityKey, id)
		return c.Next()
	}
}

// TokenFromProtocols extracts the value that follows the Authorization marker in a
// comma-separated Sec-WebSocket-Protocol header value.
//
// The scan is positional: the token is whatever entry sits right after the marker. The
// marker is case-sensitive, and a marker in last position (nothing after it) or followed
// by an empty entry means there is no token.
func TokenFromProtocols(header string) (string, bool) {
	// "Authorization, eyJ..." splits into ["Authorization", " eyJ..."]; entries are
	// trimmed before comparing, since clients put a space after each comma.
	parts := strings.Split(header, ",")
	for i, p := range parts {
		if strings.TrimSpace(p) != AuthorizationProtocol || i+1 >= len(parts) {
			continue
		}
		token := strings.TrimSpace(parts[i+1])
		if token == "" {
			return "", false
		}
		return token, true
	}
	return "", false
}

// destroy hijacks the connection and lets the server close it without writing a response.
//
// HijackSetNoResponse stops fasthttp from writing the (empty) response it would otherwise
// send. The hijack handler does nothing, and fasthttp closes a hijacked connection as soon
// as the handler returns, so the client sees the socket close with zero bytes received.
func destroy(c *fiber.Ctx) error {
	ctx := c.Context()
	ctx.HijackSetNoResponse(true)
	ctx.Hijack(func(net.Conn) {})
	return nil
}

// unauthorized writes a 401 status and closes the connection after the response.
// "Connection: close" keeps a rejected client from reusing the socket for another attempt.
func unauthorized(c *fiber.Ctx) error {
	c.Context().SetConnectionClose()
	return c.SendStatus(fiber.StatusUnauthorized)
}
