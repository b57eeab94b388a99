// Package webhook implements the external-event dispatcher: webhook
// ingress with signature verification, registration matching, mention
// detection, dedup, per-registration rate limiting, and work/session
// dispatch.
package webhook

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/agentmesh/core/internal/collab"
	"github.com/agentmesh/core/internal/corr"
	"github.com/agentmesh/core/internal/meshtypes"
	"github.com/agentmesh/core/internal/resilience"
)

// MinTriggerInterval is the minimum gap between two triggers of the same
// registration; deliveries inside it are skipped.
const MinTriggerInterval = time.Minute

// Result is the body returned to the HTTP layer on a 200.
type Result struct {
	Processed int      `json:"processed"`
	Skipped   int      `json:"skipped"`
	Details   []string `json:"details"`
}

// Dispatcher consumes external webhook deliveries, maps them to
// registrations, and triggers agent work.
type Dispatcher struct {
	secret    string
	store     collab.Store
	processes collab.ProcessManager
	bus       collab.Bus
	workTasks collab.WorkTaskService // optional; nil disables the work route
	validator *SchemaValidator
	logger    *slog.Logger

	mu            sync.Mutex
	lastTriggered map[string]time.Time
}

// New constructs a Dispatcher. workTasks may be nil, which disables the
// work_task route.
func New(secret string, store collab.Store, processes collab.ProcessManager, bus collab.Bus, workTasks collab.WorkTaskService, validator *SchemaValidator, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		secret:        secret,
		store:         store,
		processes:     processes,
		bus:           bus,
		workTasks:     workTasks,
		validator:     validator,
		logger:        logger,
		lastTriggered: make(map[string]time.Time),
	}
}

// Ingest is the ingress entry point: verify signature, validate schema,
// map the event, and dispatch to every matching active registration. It
// runs inside a correlation context sourced from "webhook" so every
// downstream log and agent invocation shares one trace id.
//
// Signature and malformed-payload failures return before any store
// mutation. A failed registration lookup returns a
// *resilience.TransportError. Store failures while dispatching one
// registration count it as skipped and, once its delivery record exists,
// are captured on that record; they do not raise here.
func (d *Dispatcher) Ingest(ctx context.Context, eventName, signatureHeader, repo string, payload []byte) (Result, error) {
	if err := VerifySignature(d.secret, signatureHeader, payload); err != nil {
		return Result{}, err
	}
	if d.validator != nil {
		if err := d.validator.Validate(payload); err != nil {
			return Result{}, err
		}
	}

	ctx = corr.CreateEventContext(ctx, meshtypes.SourceWebhook, "")

	kind := MapEventKind(eventName, payload)
	if kind == "" {
		return Result{Processed: 0, Skipped: 0, Details: []string{"event kind dropped: " + eventName}}, nil
	}

	registrations, err := d.store.FindRegistrationsForRepo(ctx, repo)
	if err != nil {
		return Result{}, &resilience.TransportError{Op: "find_registrations", Err: err}
	}

	var result Result
	for _, reg := range registrations {
		if reg.Status != meshtypes.RegistrationActive {
			continue
		}
		detail := d.dispatchOne(ctx, reg, kind, payload)
		result.Details = append(result.Details, detail.message)
		if detail.processed {
			result.Processed++
		} else {
			result.Skipped++
		}
	}
	return result, nil
}

type dispatchOutcome struct {
	processed bool
	message   string
}

func skip(reason string) dispatchOutcome { return dispatchOutcome{processed: false, message: reason} }

func (d *Dispatcher) dispatchOne(ctx context.Context, reg meshtypes.Registration, kind meshtypes.EventKind, payload []byte) dispatchOutcome {
	if !reg.Events[kind] {
		return skip(fmt.Sprintf("registration %s: event kind %s not subscribed", reg.ID, kind))
	}

	body, ok := MentionBody(kind, payload)
	if !ok {
		return skip(fmt.Sprintf("registration %s: no mention body", reg.ID))
	}

	if !ContainsMention(body, reg.MentionUser) {
		return skip(fmt.Sprintf("registration %s: no mention of %s", reg.ID, reg.MentionUser))
	}

	author := CommentAuthor(kind, payload)
	if SelfMention(author, reg.MentionUser) {
		return skip(fmt.Sprintf("registration %s: self-mention guard", reg.ID))
	}

	if d.throttled(reg.ID) {
		return skip(fmt.Sprintf("registration %s: rate limited", reg.ID))
	}

	delivery := meshtypes.Delivery{
		RegistrationID: reg.ID,
		Event:          string(kind),
		Repo:           reg.Repo,
		Sender:         author,
		Body:           body,
		Status:         meshtypes.DeliveryPending,
		CreatedAt:      time.Now(),
	}
	deliveryID, err := d.store.CreateDelivery(ctx, delivery)
	if err != nil {
		return skip(fmt.Sprintf("registration %s: create delivery failed: %v", reg.ID, err))
	}
	d.markTriggered(reg.ID)

	if d.bus != nil {
		d.bus.Publish("webhook_delivery", []byte(deliveryID))
	}

	mode := ClassifyWorkMode(body)

	agent, err := d.store.GetAgent(ctx, reg.AgentID)
	if err != nil || agent == nil {
		_ = d.store.UpdateDeliveryStatus(ctx, deliveryID, meshtypes.DeliveryFailed, "AgentNotFound", "", "")
		return dispatchOutcome{processed: false, message: fmt.Sprintf("registration %s: agent not found", reg.ID)}
	}

	if mode == ModeWorkTask && d.workTasks != nil {
		return d.dispatchWorkTask(ctx, reg, deliveryID, agent.ID, body)
	}
	return d.dispatchSession(ctx, reg, deliveryID, kind, agent.ID, payload, body, author)
}

func (d *Dispatcher) dispatchWorkTask(ctx context.Context, reg meshtypes.Registration, deliveryID, agentID, body string) dispatchOutcome {
	task, err := d.workTasks.Create(ctx, agentID, WorkTaskDescription(body), reg.ProjectID, "webhook", deliveryID)
	if err != nil {
		_ = d.store.UpdateDeliveryStatus(ctx, deliveryID, meshtypes.DeliveryFailed, err.Error(), "", "")
		return skip(fmt.Sprintf("registration %s: work task creation failed: %v", reg.ID, err))
	}
	_ = d.store.UpdateDeliveryStatus(ctx, deliveryID, meshtypes.DeliveryCompleted, "", task.SessionID, task.ID)
	_ = d.store.IncrementTriggerCount(ctx, reg.ID)
	return dispatchOutcome{processed: true, message: fmt.Sprintf("registration %s: work task %s created", reg.ID, task.ID)}
}

func (d *Dispatcher) dispatchSession(ctx context.Context, reg meshtypes.Registration, deliveryID string, kind meshtypes.EventKind, agentID string, payload []byte, body, author string) dispatchOutcome {
	prompt, err := ComposePrompt(promptContextFrom(kind, payload, body, author))
	if err != nil {
		_ = d.store.UpdateDeliveryStatus(ctx, deliveryID, meshtypes.DeliveryFailed, err.Error(), "", "")
		return skip(fmt.Sprintf("registration %s: prompt composition failed: %v", reg.ID, err))
	}

	sessionID, err := d.store.CreateSession(ctx, reg.ProjectID, agentID, "webhook:"+reg.Repo, prompt, meshtypes.SourceWebhook)
	if err != nil {
		_ = d.store.UpdateDeliveryStatus(ctx, deliveryID, meshtypes.DeliveryFailed, err.Error(), "", "")
		return skip(fmt.Sprintf("registration %s: create session failed: %v", reg.ID, err))
	}

	if err := d.processes.StartProcess(ctx, sessionID, agentID, prompt, false); err != nil {
		_ = d.store.UpdateDeliveryStatus(ctx, deliveryID, meshtypes.DeliveryFailed, err.Error(), sessionID, "")
		return skip(fmt.Sprintf("registration %s: start process failed: %v", reg.ID, err))
	}

	_ = d.store.UpdateDeliveryStatus(ctx, deliveryID, meshtypes.DeliveryCompleted, "", sessionID, "")
	_ = d.store.IncrementTriggerCount(ctx, reg.ID)
	return dispatchOutcome{processed: true, message: fmt.Sprintf("registration %s: session %s started", reg.ID, sessionID)}
}

func promptContextFrom(kind meshtypes.EventKind, payload []byte, body, author string) PromptContext {
	pc := PromptContext{Author: author, Body: body, EventKind: kind}
	pc.Repo = gjsonString(payload, "repository.full_name")
	switch kind {
	case meshtypes.EventIssues:
		pc.Number = gjsonInt(payload, "issue.number")
		pc.Title = gjsonString(payload, "issue.title")
		pc.URL = gjsonString(payload, "issue.html_url")
		pc.Labels = Labels(payload)
	default:
		pc.Number = gjsonInt(payload, "issue.number")
		pc.Title = gjsonString(payload, "issue.title")
		pc.URL = gjsonString(payload, "comment.html_url")
	}
	return pc
}

func (d *Dispatcher) throttled(registrationID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	last, ok := d.lastTriggered[registrationID]
	return ok && time.Since(last) <= MinTriggerInterval
}

func (d *Dispatcher) markTriggered(registrationID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastTriggered[registrationID] = time.Now()
}

func gjsonString(payload []byte, path string) string {
	return gjson.GetBytes(payload, path).String()
}

func gjsonInt(payload []byte, path string) int64 {
	return gjson.GetBytes(payload, path).Int()
}
