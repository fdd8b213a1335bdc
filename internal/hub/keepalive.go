package hub

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/trentd187/activity-lobby/internal/protocol"
)

// Keepalive periodically broadcasts a ping to every registered session.
//
// Clients answer with a pong, which the Hub records on the session (Session.LastPong).
// TODO: deregister sessions whose LastPong is older than a few intervals once clients are
// known to answer reliably.
type Keepalive struct {
	registry *Registry
	interval time.Duration
	log      *zap.Logger
}

// NewKeepalive creates a broadcaster that pings every interval.
func NewKeepalive(registry *Registry, interval time.Duration, log *zap.Logger) *Keepalive {
	return &Keepalive{registry: registry, interval: interval, log: log}
}

// Run blocks, pinging on every tick, until ctx is cancelled.
func (k *Keepalive) Run(ctx context.Context) {
	// A Ticker delivers on ticker.C every interval; Stop releases it when Run returns.
	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()

	k.log.Info("keepalive started", zap.Duration("interval", k.interval))
	for {
		select {
		case <-ctx.Done():
			k.log.Info("keepalive stopped")
			return
		case <-ticker.C:
			// BroadcastAll never blocks: a session whose queue is full just misses this ping.
			delivered := k.registry.BroadcastAll(protocol.Ping{})
			k.log.Debug("keepalive ping sent", zap.Int("sessions", delivered))
		}
	}
}
