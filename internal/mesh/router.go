// Package mesh implements the mesh router: chooses among direct peer
// delivery, a long-haul bus transport, and local process dispatch, with
// principled fallback. The three transports are tagged RouteSender
// variants selected by a decision function per call.
package mesh

import (
	"context"
	"fmt"

	"github.com/agentmesh/core/internal/collab"
	"github.com/agentmesh/core/internal/meshtypes"
)

// RouteSender is the uniform shape every transport variant satisfies.
type RouteSender interface {
	Send(ctx context.Context, from, to string, content interface{}, threadID string) error
}

type directSender struct {
	node interface {
		SendTo(ctx context.Context, peer string, content interface{}, threadID string) error
	}
}

func (d directSender) Send(ctx context.Context, from, to string, content interface{}, threadID string) error {
	return d.node.SendTo(ctx, to, content, threadID)
}

type busSender struct {
	transport collab.BusTransport
}

func (b busSender) Send(ctx context.Context, from, to string, content interface{}, threadID string) error {
	return b.transport.Send(ctx, from, to, content, threadID)
}

type localSender struct {
	dispatcher collab.LocalDispatcher
}

func (l localSender) Send(ctx context.Context, from, to string, content interface{}, threadID string) error {
	return l.dispatcher.Dispatch(ctx, to, content, threadID)
}

// Result is the observable outcome of one Route call.
type Result struct {
	Route     meshtypes.RoutePref
	Delivered bool
}

// MessageMetrics counts routed messages for the agent_messages_total
// series. Nil-safe; the router works without one wired in.
type MessageMetrics interface {
	IncMessage(direction, status string)
}

// Router selects a route per request and falls back on failure in the
// order direct -> bus -> local, never skipping backwards.
type Router struct {
	direct    RouteSender
	bus       RouteSender
	local     RouteSender
	transport collab.BusTransport
	directory collab.Directory
	store     collab.MessageStore
	metrics   MessageMetrics
}

// SetMetrics installs a message counter. Call before the router is shared
// across goroutines.
func (r *Router) SetMetrics(m MessageMetrics) { r.metrics = m }

func (r *Router) countMessage(status string) {
	if r.metrics != nil {
		r.metrics.IncMessage("outbound", status)
	}
}

// DirectNode is the narrow slice of peernode.Node the router needs.
type DirectNode interface {
	SendTo(ctx context.Context, peer string, content interface{}, threadID string) error
}

// New constructs a Router. transport and localDispatcher may be nil if
// that collaborator is unavailable; the router then skips straight past
// it during fallback.
func New(directNode DirectNode, transport collab.BusTransport, localDispatcher collab.LocalDispatcher, directory collab.Directory, store collab.MessageStore) *Router {
	r := &Router{directory: directory, store: store, transport: transport}
	if directNode != nil {
		r.direct = directSender{node: directNode}
	}
	if transport != nil {
		r.bus = busSender{transport: transport}
	}
	if localDispatcher != nil {
		r.local = localSender{dispatcher: localDispatcher}
	}
	return r
}

// Request is one outbound routing request.
type Request struct {
	From      string
	To        string
	Content   interface{}
	ThreadID  string
	RoutePref meshtypes.RoutePref
}

// Route decides a route for req (resolving RouteAuto), records a pending
// message through the store, attempts the chosen route, and falls back on
// failure in direct -> bus -> local order.
func (r *Router) Route(ctx context.Context, req Request) (Result, error) {
	id := fmt.Sprintf("%s:%s:%s", req.From, req.To, req.ThreadID)
	if err := r.store.RecordMessage(ctx, id, req.From, req.To, "", "pending"); err != nil {
		return Result{}, err
	}

	order := r.resolveOrder(ctx, req)

	var lastErr error
	for _, route := range order {
		sender := r.senderFor(route)
		if sender == nil {
			continue
		}
		if err := sender.Send(ctx, req.From, req.To, req.Content, req.ThreadID); err != nil {
			lastErr = err
			continue
		}
		_ = r.store.UpdateMessageStatus(ctx, id, "sent", string(route))
		r.countMessage("sent")
		return Result{Route: route, Delivered: true}, nil
	}

	_ = r.store.UpdateMessageStatus(ctx, id, "failed", "")
	r.countMessage("failed")
	if lastErr == nil {
		lastErr = fmt.Errorf("mesh: no route available for %q", req.To)
	}
	return Result{Delivered: false}, lastErr
}

func (r *Router) senderFor(route meshtypes.RoutePref) RouteSender {
	switch route {
	case meshtypes.RouteDirect:
		return r.direct
	case meshtypes.RouteBus:
		return r.bus
	case meshtypes.RouteLocal:
		return r.local
	}
	return nil
}

// resolveOrder picks the starting route per req.RoutePref and falls back
// only through the canonical suffix after it (direct -> bus -> local),
// never skipping backwards in that sequence. A request starting at bus
// falls back to local only, never back to direct; a request starting at
// local has no fallback at all.
func (r *Router) resolveOrder(ctx context.Context, req Request) []meshtypes.RoutePref {
	fullOrder := []meshtypes.RoutePref{meshtypes.RouteDirect, meshtypes.RouteBus, meshtypes.RouteLocal}

	var first meshtypes.RoutePref
	switch req.RoutePref {
	case meshtypes.RouteDirect, meshtypes.RouteBus, meshtypes.RouteLocal:
		first = req.RoutePref
	default: // auto
		first = r.autoDecision(ctx, req.To)
	}

	for i, rt := range fullOrder {
		if rt == first {
			return fullOrder[i:]
		}
	}
	return []meshtypes.RoutePref{first}
}

// autoDecision picks the starting route: direct if the target is in the
// directory and the network is healthy (>=2 reachable nodes, no
// partition); else bus if reachable; else local.
func (r *Router) autoDecision(ctx context.Context, to string) meshtypes.RoutePref {
	if r.direct != nil && r.directory != nil {
		health, err := r.directory.NetworkHealth(ctx)
		if err == nil && health.TotalNodes >= 2 && !health.PartitionDetected {
			if agents, err := r.directory.DiscoverAgents(ctx, nil); err == nil {
				for _, a := range agents {
					if a.ID == to {
						return meshtypes.RouteDirect
					}
				}
			}
		}
	}
	if r.bus != nil && r.transport != nil && r.transport.Reachable(ctx) {
		return meshtypes.RouteBus
	}
	return meshtypes.RouteLocal
}
