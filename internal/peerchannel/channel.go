// Package peerchannel implements a symmetric, bidirectional, acked,
// rate-limited pub/sub link between two agents over a shared bus.
package peerchannel

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/agentmesh/core/internal/meshtypes"
	"github.com/agentmesh/core/internal/resilience"
)

// Bus is the narrow publish/subscribe contract the channel needs.
type Bus interface {
	Subscribe(topic string, cb func(topic string, payload []byte)) int
	Publish(topic string, payload []byte)
	Unsubscribe(handle int)
}

// State is a peer channel's lifecycle stage.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateConnected  State = "connected"
	StateClosing    State = "closing"
	StateClosed     State = "closed"
)

// ChannelID deterministically derives a channel id from the sorted pair
// (a, b), so independent establishers converge on the same id regardless
// of who initiates.
func ChannelID(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	sum := sha256.Sum256([]byte(pair[0] + "\x00" + pair[1]))
	return hex.EncodeToString(sum[:])[:16]
}

func inboxTopic(agentID string) string { return "messages-to-" + agentID }
func ackTopic(agentID string) string   { return "acks-to-" + agentID }

// Config tunes one channel's rate limiter, history, and liveness.
type Config struct {
	MaxTokens      float64
	RefillRate     float64 // tokens/sec
	MaxHistorySize int
	AckTimeout     time.Duration
	PingInterval   time.Duration
	MaxMissedPings int
}

// DefaultConfig returns the channel defaults used in production wiring.
func DefaultConfig() Config {
	return Config{
		MaxTokens:      20,
		RefillRate:     5,
		MaxHistorySize: 200,
		AckTimeout:     30 * time.Second,
		PingInterval:   30 * time.Second,
		MaxMissedPings: 3,
	}
}

// Events the channel emits to its owner (peer node).
type Events struct {
	OnMessage      func(meshtypes.Envelope)
	OnAckTimeout   func(messageID string)
	OnUnhealthy    func()
	OnDisconnected func()
}

// Channel is one symmetric link between Self and Peer.
type Channel struct {
	id     string
	self   string
	peer   string
	bus    Bus
	cfg    Config
	events Events
	logger *slog.Logger

	limiter *rate.Limiter

	mu           sync.Mutex
	state        State
	history      []meshtypes.Envelope
	pendingAcks  map[string]*time.Timer
	msgSub       int
	ackSub       int
	missedPings  int
	stopLiveness func()
}

// New constructs a channel for the (self, peer) pair in the idle state.
func New(self, peer string, bus Bus, cfg Config, events Events, logger *slog.Logger) *Channel {
	return &Channel{
		id:          ChannelID(self, peer),
		self:        self,
		peer:        peer,
		bus:         bus,
		cfg:         cfg,
		events:      events,
		logger:      logger,
		limiter:     rate.NewLimiter(rate.Limit(cfg.RefillRate), int(cfg.MaxTokens)),
		state:       StateIdle,
		pendingAcks: make(map[string]*time.Timer),
	}
}

// ID returns the deterministic channel id.
func (c *Channel) ID() string { return c.id }

// State returns the current lifecycle state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect subscribes to the two topics for this end and starts the
// liveness timer. Idempotent: calling twice has no additional effect.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateConnected || c.state == StateConnecting {
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	c.mu.Unlock()

	msgSub := c.bus.Subscribe(inboxTopic(c.self), c.handleMessage)
	ackSub := c.bus.Subscribe(ackTopic(c.self), c.handleAck)

	c.mu.Lock()
	c.msgSub = msgSub
	c.ackSub = ackSub
	c.state = StateConnected
	c.mu.Unlock()

	c.startLiveness(ctx)
	return nil
}

// Send publishes content to the peer's inbox. requireAck registers a
// pending-ack timer that fires OnAckTimeout if no matching ack arrives
// within cfg.AckTimeout.
func (c *Channel) Send(content interface{}, threadID string, requireAck bool) (string, error) {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()
	if state != StateConnected {
		return "", &resilience.NotConnectedError{ChannelID: c.id}
	}

	if !c.limiter.Allow() {
		retryAfterMs := int64(1000)
		if c.cfg.RefillRate > 0 {
			retryAfterMs = int64(1000 / c.cfg.RefillRate)
		}
		return "", &resilience.RateLimitedError{Subject: c.id, RetryAfterMs: retryAfterMs}
	}

	env := meshtypes.Envelope{
		ID:          uuid.NewString(),
		FromAgent:   c.self,
		ToAgent:     c.peer,
		Content:     content,
		ThreadID:    threadID,
		Timestamp:   time.Now(),
		AckRequired: requireAck,
	}

	payload, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("peerchannel: marshal envelope: %w", err)
	}

	c.appendHistory(env)

	if requireAck {
		c.registerPendingAck(env.ID)
	}

	c.bus.Publish(inboxTopic(c.peer), payload)
	return env.ID, nil
}

func (c *Channel) appendHistory(env meshtypes.Envelope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, env)
	if len(c.history) > c.cfg.MaxHistorySize {
		c.history = c.history[len(c.history)-c.cfg.MaxHistorySize:]
	}
}

// History returns a copy of the retained ring history.
func (c *Channel) History() []meshtypes.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]meshtypes.Envelope, len(c.history))
	copy(out, c.history)
	return out
}

func (c *Channel) registerPendingAck(messageID string) {
	timer := time.AfterFunc(c.cfg.AckTimeout, func() {
		c.mu.Lock()
		_, still := c.pendingAcks[messageID]
		delete(c.pendingAcks, messageID)
		c.mu.Unlock()
		if still && c.events.OnAckTimeout != nil {
			c.events.OnAckTimeout(messageID)
		}
	})
	c.mu.Lock()
	c.pendingAcks[messageID] = timer
	c.mu.Unlock()
}

func (c *Channel) handleMessage(_ string, payload []byte) {
	var env meshtypes.Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		if c.logger != nil {
			c.logger.Error("peerchannel_malformed_envelope", slog.String("channel", c.id), slog.String("error", err.Error()))
		}
		return
	}
	if env.ToAgent != c.self {
		return
	}

	if isLivenessPing(env) {
		c.replyPong(env)
		return
	}
	if isLivenessPong(env) {
		c.mu.Lock()
		c.missedPings = 0
		c.mu.Unlock()
		return
	}

	c.appendHistory(env)
	if c.events.OnMessage != nil {
		c.events.OnMessage(env)
	}

	if env.AckRequired {
		go c.sendAck(env.ID, meshtypes.AckReceived, "")
	}
}

func (c *Channel) handleAck(_ string, payload []byte) {
	var ack meshtypes.Ack
	if err := json.Unmarshal(payload, &ack); err != nil {
		if c.logger != nil {
			c.logger.Error("peerchannel_malformed_ack", slog.String("channel", c.id), slog.String("error", err.Error()))
		}
		return
	}

	c.mu.Lock()
	timer, ok := c.pendingAcks[ack.MessageID]
	if ok {
		delete(c.pendingAcks, ack.MessageID)
	}
	c.mu.Unlock()
	if ok {
		timer.Stop()
	}
}

func (c *Channel) sendAck(messageID string, status meshtypes.AckStatus, errMsg string) {
	ack := meshtypes.Ack{MessageID: messageID, FromAgent: c.self, Timestamp: time.Now(), Status: status, Error: errMsg}
	payload, err := json.Marshal(ack)
	if err != nil {
		return
	}
	c.bus.Publish(ackTopic(c.peer), payload)
}

// Close cancels all timers, unsubscribes both topics, transitions to
// closed, and emits OnDisconnected. Repeated calls are a no-op.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = StateClosing
	msgSub, ackSub := c.msgSub, c.ackSub
	pending := c.pendingAcks
	c.pendingAcks = make(map[string]*time.Timer)
	stopLiveness := c.stopLiveness
	c.mu.Unlock()

	if stopLiveness != nil {
		stopLiveness()
	}
	for _, t := range pending {
		t.Stop()
	}
	c.bus.Unsubscribe(msgSub)
	c.bus.Unsubscribe(ackSub)

	c.mu.Lock()
	c.state = StateClosed
	c.mu.Unlock()

	if c.events.OnDisconnected != nil {
		c.events.OnDisconnected()
	}
}
