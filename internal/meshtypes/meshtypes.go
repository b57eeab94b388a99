// Package meshtypes holds the data model shared by every component of the
// agent messaging and orchestration core, so the wire/store shapes have one
// definition instead of being duplicated per package.
package meshtypes

import "time"

// AgentDescriptor is the directory's view of one addressable agent.
type AgentDescriptor struct {
	ID           string
	Name         string
	Address      string
	Capabilities []string
	Active       bool
	LastSeen     time.Time
	TrustScore   float64
}

// Envelope is a message sent over a peer channel. No two envelopes share an
// ID.
type Envelope struct {
	ID          string      `json:"id"`
	FromAgent   string      `json:"fromAgent"`
	ToAgent     string      `json:"toAgent"`
	Content     interface{} `json:"content"`
	ThreadID    string      `json:"threadId,omitempty"`
	Timestamp   time.Time   `json:"timestamp"`
	AckRequired bool        `json:"acknowledgementRequired,omitempty"`
	ReplyTo     string      `json:"replyTo,omitempty"`
}

// AckStatus is the outcome a receiver reports for one envelope.
type AckStatus string

const (
	AckReceived  AckStatus = "received"
	AckProcessed AckStatus = "processed"
	AckError     AckStatus = "error"
)

// Ack acknowledges receipt or processing of one Envelope.
type Ack struct {
	MessageID string    `json:"messageId"`
	FromAgent string    `json:"fromAgent"`
	Timestamp time.Time `json:"timestamp"`
	Status    AckStatus `json:"status"`
	Error     string    `json:"error,omitempty"`
}

// BreakerState is one of the three states in the circuit-breaker machine.
type BreakerState string

const (
	StateClosed   BreakerState = "CLOSED"
	StateOpen     BreakerState = "OPEN"
	StateHalfOpen BreakerState = "HALF_OPEN"
)

// EventSource identifies the origin of a correlation context.
type EventSource string

const (
	SourceWeb       EventSource = "web"
	SourceChat      EventSource = "chat"
	SourceAgent     EventSource = "agent"
	SourceScheduler EventSource = "scheduler"
	SourceWebhook   EventSource = "webhook"
	SourceWorkflow  EventSource = "workflow"
	SourceCouncil   EventSource = "council"
	SourcePolling   EventSource = "polling"
)

// EventKind is the mapped category of an inbound webhook event.
type EventKind string

const (
	EventIssueComment             EventKind = "issue_comment"
	EventIssueCommentPR           EventKind = "issue_comment_pr"
	EventIssues                   EventKind = "issues"
	EventPullRequestReviewComment EventKind = "pull_request_review_comment"
)

// RegistrationStatus is the lifecycle state of a webhook registration.
type RegistrationStatus string

const (
	RegistrationActive RegistrationStatus = "active"
	RegistrationPaused RegistrationStatus = "paused"
)

// Registration binds one agent to external events on one repository.
type Registration struct {
	ID           string
	AgentID      string
	Repo         string
	Events       map[EventKind]bool
	MentionUser  string
	ProjectID    string
	Status       RegistrationStatus
	TriggerCount int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// DeliveryStatus is the monotonic lifecycle of a webhook delivery.
type DeliveryStatus string

const (
	DeliveryPending    DeliveryStatus = "pending"
	DeliveryProcessing DeliveryStatus = "processing"
	DeliveryCompleted  DeliveryStatus = "completed"
	DeliveryFailed     DeliveryStatus = "failed"
)

// Delivery is one recorded attempt to dispatch an external event to a
// registration.
type Delivery struct {
	ID             string
	RegistrationID string
	Event          string
	Action         string
	Repo           string
	Sender         string
	Body           string
	HTMLURL        string
	SessionID      string
	WorkTaskID     string
	Status         DeliveryStatus
	Result         string
	CreatedAt      time.Time
}

// RoutePref is the caller's preference for how the mesh router should send
// a message.
type RoutePref string

const (
	RouteDirect RoutePref = "direct"
	RouteBus    RoutePref = "bus"
	RouteLocal  RoutePref = "local"
	RouteAuto   RoutePref = "auto"
)

// AgentInfo is what the directory returns from a peer discovery query.
type AgentInfo struct {
	ID           string
	Capabilities []string
	TrustScore   float64
}

// NetworkHealth summarizes the mesh's reachability for the router's auto
// decision.
type NetworkHealth struct {
	TotalNodes        int
	PartitionDetected bool
}

// Schedule is a recurring cron-driven trigger that creates an agent
// session each time it comes due. Source is always SourceScheduler on the
// resulting session/correlation context.
type Schedule struct {
	ID        string
	AgentID   string
	ProjectID string
	Name      string
	CronExpr  string
	Prompt    string
	LastRunAt time.Time
	NextRunAt time.Time
	CreatedAt time.Time
}
