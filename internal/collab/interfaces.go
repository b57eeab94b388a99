// Package collab defines the narrow external interfaces the messaging
// core depends on. Everything on the other side of one of these
// interfaces is an external collaborator (persistence schema, agent
// execution, chat network wire formats) that the core never reaches into
// directly.
package collab

import (
	"context"
	"time"

	"github.com/agentmesh/core/internal/meshtypes"
)

// Store is the persistence seam: agents, webhook registrations and
// deliveries, and sessions. All operations are synchronous from the
// caller's point of view; failures come back as ordinary wrapped errors
// (internal/store wraps the driver error with fmt.Errorf), not as
// *resilience.TransportError.
type Store interface {
	GetAgent(ctx context.Context, id string) (*meshtypes.AgentDescriptor, error)
	FindRegistrationsForRepo(ctx context.Context, repo string) ([]meshtypes.Registration, error)
	CreateDelivery(ctx context.Context, d meshtypes.Delivery) (string, error)
	UpdateDeliveryStatus(ctx context.Context, id string, status meshtypes.DeliveryStatus, result, sessionID, workTaskID string) error
	IncrementTriggerCount(ctx context.Context, registrationID string) error
	CreateSession(ctx context.Context, projectID, agentID, name, initialPrompt string, source meshtypes.EventSource) (string, error)

	// RecordMessage persists the mesh router's message-record lifecycle
	// (pending -> sent/failed) ahead of and after transport attempts.
	RecordMessage(ctx context.Context, id, from, to, route string, status string) error
	UpdateMessageStatus(ctx context.Context, id string, status string, route string) error

	// Schedule methods back the cron scheduler's due-trigger polling.
	CreateSchedule(ctx context.Context, sched meshtypes.Schedule) (string, error)
	DueSchedules(ctx context.Context, now time.Time) ([]meshtypes.Schedule, error)
	UpdateScheduleRun(ctx context.Context, id string, lastRun, nextRun time.Time) error
}

// MessageStore is the narrow slice of Store the mesh router needs to
// record a message's pending -> sent/failed lifecycle. Satisfied by any
// Store; kept separate so router tests can fake just this much.
type MessageStore interface {
	RecordMessage(ctx context.Context, id, from, to, route string, status string) error
	UpdateMessageStatus(ctx context.Context, id string, status string, route string) error
}

// ProcessEvent is one typed event emitted by a running agent process.
type ProcessEvent struct {
	Kind      string // "assistant", "tool_use", "session_exited", ...
	SessionID string
	Content   string
	Err       error
}

// ProcessManager drives agent execution; the core only starts, subscribes
// to, and stops it. It never implements the agent's reasoning itself.
type ProcessManager interface {
	StartProcess(ctx context.Context, sessionID, agentID, prompt string, schedulerMode bool) error
	Subscribe(sessionID string, cb func(ProcessEvent)) (unsubscribe func())
	IsRunning(sessionID string) bool
	GetActiveSessionIDs() []string
	StopProcess(sessionID string) error
}

// Bus is the best-effort, at-most-once pub/sub substrate carrying
// peer-channel traffic. No ordering or delivery guarantee is required
// beyond "no message corruption."
type Bus interface {
	Subscribe(topic string, cb func(topic string, payload []byte)) int
	Publish(topic string, payload []byte)
	Unsubscribe(handle int)
}

// Directory answers peer-discovery and network-health queries for the
// mesh router's auto decision and the peer node's discoverPeers.
type Directory interface {
	DiscoverAgents(ctx context.Context, capabilities []string) ([]meshtypes.AgentInfo, error)
	NetworkHealth(ctx context.Context) (meshtypes.NetworkHealth, error)
}

// WorkTaskResult is returned by WorkTaskService.Create.
type WorkTaskResult struct {
	ID        string
	SessionID string
}

// WorkTaskService creates a tracked unit of code-change work. Optional: its
// absence disables the work-task dispatch route.
type WorkTaskService interface {
	Create(ctx context.Context, agentID, description, projectID, source, sourceID string) (WorkTaskResult, error)
}

// Clock abstracts time.Now for components whose tests need to control it.
// Defaults to time.Now in production wiring.
type Clock func() time.Time

// BusTransport is the long-haul "bus" route collaborator the mesh router
// falls back to: the same {send, onMessage} shape as a peer channel, but
// backed by a transport that does not require both agents to be
// co-reachable over the in-process bus.
type BusTransport interface {
	Send(ctx context.Context, from, to string, content interface{}, threadID string) error
	Reachable(ctx context.Context) bool
}

// LocalDispatcher delivers a message to a co-located agent without network
// involvement — the mesh router's "local" route.
type LocalDispatcher interface {
	Dispatch(ctx context.Context, to string, content interface{}, threadID string) error
}
