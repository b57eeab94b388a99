// Package wsbus is a websocket-backed collab.Bus for meshes that span more
// than one meshd process: Publish fans out locally (via internal/bus)
// and over every connected peer websocket, so two daemons wired together
// by Dial share one pub/sub substrate.
package wsbus

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/agentmesh/core/internal/bus"
)

// frame is the wire envelope relayed between meshd processes.
type frame struct {
	Topic   string `json:"topic"`
	Payload []byte `json:"payload"`
}

type peerConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (p *peerConn) send(ctx context.Context, f frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return wsjson.Write(ctx, p.conn, f)
}

// Bus wraps an in-process bus.Bus and relays every Publish over whatever
// peer websocket connections are currently attached, satisfying the same
// collab.Bus contract (best-effort, at-most-once, no cross-topic
// ordering) across process boundaries.
type Bus struct {
	local  *bus.Bus
	logger *slog.Logger

	mu    sync.RWMutex
	peers map[string]*peerConn
}

// New wraps local for multi-process relay. local handles every in-process
// subscriber; peers receive a copy of anything Published here.
func New(local *bus.Bus, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{local: local, logger: logger, peers: make(map[string]*peerConn)}
}

// Subscribe registers cb on the local bus. Remote peers never see this
// process's subscriptions directly — they only ever receive relayed
// Publish traffic, same as any other subscriber would.
func (b *Bus) Subscribe(topic string, cb func(topic string, payload []byte)) int {
	return b.local.Subscribe(topic, cb)
}

// Unsubscribe removes a local subscription.
func (b *Bus) Unsubscribe(handle int) {
	b.local.Unsubscribe(handle)
}

// Publish delivers payload to local subscribers and relays it to every
// connected peer. A peer write failure is logged and otherwise ignored —
// per spec, the bus route offers no delivery guarantee.
func (b *Bus) Publish(topic string, payload []byte) {
	b.local.Publish(topic, payload)
	b.broadcast(topic, payload)
}

func (b *Bus) broadcast(topic string, payload []byte) {
	b.mu.RLock()
	conns := make([]*peerConn, 0, len(b.peers))
	for _, p := range b.peers {
		conns = append(conns, p)
	}
	b.mu.RUnlock()

	for _, p := range conns {
		if err := p.send(context.Background(), frame{Topic: topic, Payload: payload}); err != nil {
			b.logger.Warn("wsbus: relay to peer failed", slog.String("topic", topic), slog.String("error", err.Error()))
		}
	}
}

// ServeHTTP accepts an inbound websocket connection from another meshd
// process and relays every frame it receives onto the local bus (not
// back out to other peers, so a ring of N nodes doesn't amplify one
// Publish into N copies of itself).
func (b *Bus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	id := r.RemoteAddr
	p := &peerConn{conn: conn}
	b.addPeer(id, p)
	defer func() {
		b.removePeer(id)
		_ = conn.Close(websocket.StatusNormalClosure, "bye")
	}()
	b.readLoop(r.Context(), conn)
}

// Dial connects outward to a peer meshd's wsbus endpoint and keeps the
// connection open for both relaying local publishes out and receiving
// the peer's publishes in, until ctx is canceled or the connection drops.
func (b *Bus) Dial(ctx context.Context, url string) error {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return err
	}
	p := &peerConn{conn: conn}
	b.addPeer(url, p)
	go func() {
		defer func() {
			b.removePeer(url)
			_ = conn.Close(websocket.StatusNormalClosure, "bye")
		}()
		b.readLoop(ctx, conn)
	}()
	return nil
}

func (b *Bus) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var f frame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			return
		}
		b.local.Publish(f.Topic, f.Payload)
	}
}

func (b *Bus) addPeer(id string, p *peerConn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.peers[id] = p
}

func (b *Bus) removePeer(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.peers, id)
}

// PeerCount reports how many peer connections are currently attached.
func (b *Bus) PeerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.peers)
}
