package handlers

import (
	"time"

	// contrib/websocket wraps fasthttp/websocket for fiber: websocket.New upgrades the
	// request and hands the resulting *websocket.Conn to our callback
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/trentd187/activity-lobby/internal/hub"
	"github.com/trentd187/activity-lobby/internal/identity"
	"github.com/trentd187/activity-lobby/internal/middleware"
	"github.com/trentd187/activity-lobby/internal/protocol"
)

// WebSocket returns the handler for the lobby WebSocket route. It must be mounted behind
// middleware.Admission, which has already verified the identity token.
//
// Each connection gets one session and two goroutines:
//   - the read loop (the handler goroutine itself) dispatches inbound frames to the hub
//     in arrival order;
//   - the write pump drains the session's outbound queue onto the socket.
//
// Only the write pump writes data frames, so the connection never sees concurrent writers.
// When either side fails the connection is torn down and the session disconnected once.
func WebSocket(h *hub.Hub, writeTimeout time.Duration, log *zap.Logger) fiber.Handler {
	upgrade := websocket.New(func(conn *websocket.Conn) {
		// contrib/websocket copies c.Locals onto the Conn before the upgrade, so the
		// identity stored by the Admission Gate is still reachable here.
		id, ok := conn.Locals(middleware.IdentityKey).(identity.Identity)
		if !ok {
			log.Error("websocket connection without identity")
			_ = conn.Close()
			return
		}

		// --- Step 1: register the session ---
		s := h.Connect(id)
		log := log.With(zap.Stringer("session_id", s.ID))

		// Frames larger than any valid message are refused: the read fails, which ends
		// the loop below and runs the normal disconnect path.
		conn.SetReadLimit(protocol.MaxFrameBytes)

		// --- Step 2: start the write pump ---
		// done is closed when the pump exits, so the handler can wait for it before
		// returning (contrib/websocket closes the Conn once this callback returns).
		done := make(chan struct{})
		go func() {
			defer close(done)
			writePump(conn, s, writeTimeout, log)
		}()

		// --- Step 4 (deferred): tear down ---
		// Runs however the read loop ends: clean close, network error, oversized frame or
		// a panic while dispatching. Disconnect closes the outbound queue, which stops
		// the pump; then we wait for it.
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic in websocket read loop", zap.Any("panic", r))
			}
			h.Disconnect(s)
			<-done
		}()

		// --- Step 3: read loop ---
		for {
			mt, msg, err := conn.ReadMessage()
			if err != nil {
				// A normal close or "going away" (tab closed) is routine; anything else,
				// including a frame over the read limit, is worth a debug line.
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Debug("websocket read ended", zap.Error(err))
				}
				return
			}
			// Control frames are handled inside ReadMessage; only data frames reach here.
			if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
				continue
			}
			h.Dispatch(s, msg)
		}
	}, websocket.Config{
		// The client offers ["Authorization", <token>] as sub-protocols. Browsers require
		// the server to select one of them, so the marker is echoed back; the token itself
		// is never selected.
		Subprotocols: []string{middleware.AuthorizationProtocol},
	})

	return func(c *fiber.Ctx) error {
		// If the route is ever mounted without the Admission Gate in front of it, refuse
		// the upgrade instead of creating an anonymous session.
		if _, ok := middleware.IdentityFrom(c); !ok && websocket.IsWebSocketUpgrade(c) {
			log.Error("websocket upgrade reached the route without an identity", zap.String("path", c.Path()))
			c.Context().SetConnectionClose()
			return c.SendStatus(fiber.StatusUnauthorized)
		}
		return upgrade(c)
	}
}

// writePump writes queued frames until the session's queue is closed or a write fails.
// A failed write closes the connection, which in turn ends the read loop.
func writePump(conn *websocket.Conn, s *hub.Session, writeTimeout time.Duration, log *zap.Logger) {
	// range over a channel runs until the channel is closed, which Registry.Deregister does.
	for data := range s.Outbound() {
		// Every write gets its own deadline so a client that stops reading cannot hold the
		// pump forever.
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Debug("websocket write failed", zap.Error(err))
			_ = conn.Close()
			return
		}
	}

	// The queue was closed by a disconnect: say goodbye with a normal close frame.
	// Best effort, since the peer may already be gone.
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
