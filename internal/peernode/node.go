// Package peernode implements a per-agent endpoint that owns its peer
// channels and processes inbound mail: lazy connect, guarded send,
// broadcast, discovery, and heartbeat eviction.
package peernode

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/agentmesh/core/internal/collab"
	"github.com/agentmesh/core/internal/meshtypes"
	"github.com/agentmesh/core/internal/peerchannel"
	"github.com/agentmesh/core/internal/resilience"
)

const (
	heartbeatInterval = 30 * time.Second
	evictionAge       = 5 * time.Minute
	breakerThreshold  = 5
)

// connection is this node's view of one peer.
type connection struct {
	channel      *peerchannel.Channel
	lastActivity time.Time
	trustScore   float64
	active       bool
	breaker      *resilience.Breaker
}

// Events the node emits to its owner.
type Events struct {
	OnDisconnected func(peerID string)
}

// Node owns one local agent's peer connections.
type Node struct {
	self      string
	bus       collab.Bus
	directory collab.Directory
	chanCfg   peerchannel.Config
	events    Events
	logger    *slog.Logger

	mu    sync.Mutex
	peers map[string]*connection

	stopHeartbeat func()
}

// New creates a Node for agent self.
func New(self string, bus collab.Bus, directory collab.Directory, chanCfg peerchannel.Config, events Events, logger *slog.Logger) *Node {
	return &Node{
		self:      self,
		bus:       bus,
		directory: directory,
		chanCfg:   chanCfg,
		events:    events,
		logger:    logger,
		peers:     make(map[string]*connection),
	}
}

// ConnectTo lazily creates and connects the channel to peer, returning the
// existing connection if one is already active.
func (n *Node) ConnectTo(ctx context.Context, peer string) (*connection, error) {
	n.mu.Lock()
	if conn, ok := n.peers[peer]; ok && conn.active {
		n.mu.Unlock()
		return conn, nil
	}
	n.mu.Unlock()

	ch := peerchannel.New(n.self, peer, n.bus, n.chanCfg, peerchannel.Events{
		OnUnhealthy: func() {
			if n.logger != nil {
				n.logger.Warn("peer_unhealthy", slog.String("peer", peer))
			}
		},
		OnDisconnected: func() {
			n.evict(peer)
		},
	}, n.logger)

	if err := ch.Connect(ctx); err != nil {
		return nil, err
	}

	conn := &connection{
		channel:      ch,
		lastActivity: time.Now(),
		trustScore:   0.5,
		active:       true,
		breaker:      resilience.NewBreaker(resilience.BreakerConfig{FailureThreshold: breakerThreshold, ResetTimeout: 30 * time.Second, SuccessThreshold: 2}),
	}

	n.mu.Lock()
	n.peers[peer] = conn
	n.mu.Unlock()
	return conn, nil
}

// SendTo delivers msg to peer, consulting this node's own per-peer circuit
// breaker first to avoid hammering a misbehaving peer.
func (n *Node) SendTo(ctx context.Context, peer string, content interface{}, threadID string) error {
	n.mu.Lock()
	conn, exists := n.peers[peer]
	n.mu.Unlock()

	if !exists {
		var err error
		conn, err = n.ConnectTo(ctx, peer)
		if err != nil {
			return err
		}
	}

	if allowed, retryAfter := conn.breaker.Allow(); !allowed {
		return &resilience.CircuitOpenError{Target: peer, RetryAfterMs: retryAfter.Milliseconds()}
	}

	_, err := conn.channel.Send(content, threadID, false)
	if err != nil {
		conn.breaker.RecordFailure()
		return err
	}

	conn.breaker.RecordSuccess()
	n.mu.Lock()
	conn.lastActivity = time.Now()
	conn.trustScore = minFloat(1, conn.trustScore+0.01)
	n.mu.Unlock()
	return nil
}

// Broadcast parallels SendTo for every active peer except those in
// exclude, tolerating per-peer failures.
func (n *Node) Broadcast(ctx context.Context, content interface{}, exclude map[string]bool) map[string]error {
	n.mu.Lock()
	targets := make([]string, 0, len(n.peers))
	for peer, conn := range n.peers {
		if conn.active && !exclude[peer] {
			targets = append(targets, peer)
		}
	}
	n.mu.Unlock()

	results := make(map[string]error, len(targets))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, peer := range targets {
		wg.Add(1)
		go func(peer string) {
			defer wg.Done()
			err := n.SendTo(ctx, peer, content, "")
			mu.Lock()
			results[peer] = err
			mu.Unlock()
		}(peer)
	}
	wg.Wait()
	return results
}

// DiscoverPeers asks the directory for agents matching capabilities,
// filters self and already-connected peers, and auto-connects to peers
// whose trust score exceeds 0.8.
func (n *Node) DiscoverPeers(ctx context.Context, capabilities []string) ([]meshtypes.AgentInfo, error) {
	candidates, err := n.directory.DiscoverAgents(ctx, capabilities)
	if err != nil {
		return nil, &resilience.TransportError{Op: "discover_peers", Err: err}
	}

	out := make([]meshtypes.AgentInfo, 0, len(candidates))
	for _, c := range candidates {
		if c.ID == n.self {
			continue
		}
		n.mu.Lock()
		_, connected := n.peers[c.ID]
		n.mu.Unlock()
		if connected {
			continue
		}
		out = append(out, c)
		if c.TrustScore > 0.8 {
			go func(id string) { _, _ = n.ConnectTo(ctx, id) }(c.ID)
		}
	}
	return out, nil
}

// StartHeartbeat evicts connections idle for more than 5 minutes, checking
// every 30s until ctx is canceled. It does not refresh or publish this
// node's own presence. The returned stop only waits for the goroutine to
// exit after ctx is canceled.
func (n *Node) StartHeartbeat(ctx context.Context) (stop func()) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n.evictStale()
			}
		}
	}()
	return func() { <-done }
}

func (n *Node) evictStale() {
	cutoff := time.Now().Add(-evictionAge)

	n.mu.Lock()
	stale := make([]string, 0)
	for peer, conn := range n.peers {
		if conn.lastActivity.Before(cutoff) {
			stale = append(stale, peer)
		}
	}
	n.mu.Unlock()

	for _, peer := range stale {
		n.evict(peer)
	}
}

func (n *Node) evict(peer string) {
	n.mu.Lock()
	conn, ok := n.peers[peer]
	if ok {
		conn.active = false
		delete(n.peers, peer)
	}
	n.mu.Unlock()
	if !ok {
		return
	}
	conn.channel.Close()
	if n.events.OnDisconnected != nil {
		n.events.OnDisconnected(peer)
	}
}

// Active reports whether peer has an active connection, for the invariant
// peerConnections[p].active == (channel.state == connected).
func (n *Node) Active(peer string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	conn, ok := n.peers[peer]
	return ok && conn.active && conn.channel.State() == peerchannel.StateConnected
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
