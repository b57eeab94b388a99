package peerchannel

import (
	"context"
	"time"

	"github.com/agentmesh/core/internal/meshtypes"
)

const (
	livenessPingMarker = "__peerchannel_ping__"
	livenessPongMarker = "__peerchannel_pong__"
)

func isLivenessPing(env meshtypes.Envelope) bool {
	s, ok := env.Content.(string)
	return ok && s == livenessPingMarker
}

func isLivenessPong(env meshtypes.Envelope) bool {
	s, ok := env.Content.(string)
	return ok && s == livenessPongMarker
}

func (c *Channel) replyPong(_ meshtypes.Envelope) {
	// Reply is sent via the normal send path so it shares rate limiting
	// and history with ordinary traffic.
	_, _ = c.Send(livenessPongMarker, "", false)
}

func (c *Channel) startLiveness(ctx context.Context) {
	livenessCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(c.cfg.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-livenessCtx.Done():
				return
			case <-ticker.C:
				c.mu.Lock()
				c.missedPings++
				missed := c.missedPings
				c.mu.Unlock()

				if missed > c.cfg.MaxMissedPings {
					if c.events.OnUnhealthy != nil {
						c.events.OnUnhealthy()
					}
				}
				_, _ = c.Send(livenessPingMarker, "", false)
			}
		}
	}()
	c.mu.Lock()
	c.stopLiveness = func() {
		cancel()
		<-done
	}
	c.mu.Unlock()
}
