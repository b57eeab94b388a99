package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/agentmesh/core/internal/collab"
	"github.com/agentmesh/core/internal/meshtypes"
)

const testSecret = "topsecret"

func sign(payload []byte) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

type fakeStore struct {
	agents        map[string]*meshtypes.AgentDescriptor
	registrations []meshtypes.Registration
	deliveries    map[string]*meshtypes.Delivery
	triggerCounts map[string]int
	nextID        int
	createCalls   int
	sessionCalls  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		agents:        map[string]*meshtypes.AgentDescriptor{},
		deliveries:    map[string]*meshtypes.Delivery{},
		triggerCounts: map[string]int{},
	}
}

func (f *fakeStore) GetAgent(ctx context.Context, id string) (*meshtypes.AgentDescriptor, error) {
	a, ok := f.agents[id]
	if !ok {
		return nil, nil
	}
	return a, nil
}

func (f *fakeStore) FindRegistrationsForRepo(ctx context.Context, repo string) ([]meshtypes.Registration, error) {
	var out []meshtypes.Registration
	for _, r := range f.registrations {
		if r.Repo == repo {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateDelivery(ctx context.Context, d meshtypes.Delivery) (string, error) {
	f.createCalls++
	f.nextID++
	id := "delivery-" + string(rune('0'+f.nextID))
	d.ID = id
	f.deliveries[id] = &d
	return id, nil
}

func (f *fakeStore) UpdateDeliveryStatus(ctx context.Context, id string, status meshtypes.DeliveryStatus, result, sessionID, workTaskID string) error {
	d := f.deliveries[id]
	d.Status = status
	d.Result = result
	d.SessionID = sessionID
	d.WorkTaskID = workTaskID
	return nil
}

func (f *fakeStore) IncrementTriggerCount(ctx context.Context, registrationID string) error {
	f.triggerCounts[registrationID]++
	return nil
}

func (f *fakeStore) CreateSession(ctx context.Context, projectID, agentID, name, initialPrompt string, source meshtypes.EventSource) (string, error) {
	f.sessionCalls++
	return "session-1", nil
}

func (f *fakeStore) RecordMessage(ctx context.Context, id, from, to, route string, status string) error {
	return nil
}
func (f *fakeStore) UpdateMessageStatus(ctx context.Context, id string, status string, route string) error {
	return nil
}

func (f *fakeStore) CreateSchedule(ctx context.Context, sched meshtypes.Schedule) (string, error) {
	return "schedule-1", nil
}
func (f *fakeStore) DueSchedules(ctx context.Context, now time.Time) ([]meshtypes.Schedule, error) {
	return nil, nil
}
func (f *fakeStore) UpdateScheduleRun(ctx context.Context, id string, lastRun, nextRun time.Time) error {
	return nil
}

type fakeProcesses struct {
	startCalls int
}

func (f *fakeProcesses) StartProcess(ctx context.Context, sessionID, agentID, prompt string, schedulerMode bool) error {
	f.startCalls++
	return nil
}
func (f *fakeProcesses) Subscribe(sessionID string, cb func(collab.ProcessEvent)) func() {
	return func() {}
}
func (f *fakeProcesses) IsRunning(sessionID string) bool    { return false }
func (f *fakeProcesses) GetActiveSessionIDs() []string      { return nil }
func (f *fakeProcesses) StopProcess(sessionID string) error { return nil }

type fakeWorkTasks struct {
	createCalls int
	lastDesc    string
}

func (f *fakeWorkTasks) Create(ctx context.Context, agentID, description, projectID, source, sourceID string) (collab.WorkTaskResult, error) {
	f.createCalls++
	f.lastDesc = description
	return collab.WorkTaskResult{ID: "task-1"}, nil
}

func baseRegistration() meshtypes.Registration {
	return meshtypes.Registration{
		ID:          "reg-1",
		AgentID:     "bot-agent",
		Repo:        "acme/widgets",
		Events:      map[meshtypes.EventKind]bool{meshtypes.EventIssueComment: true},
		MentionUser: "bot",
		ProjectID:   "proj-1",
		Status:      meshtypes.RegistrationActive,
	}
}

func issueCommentPayload(author, body string) []byte {
	return []byte(`{
		"action": "created",
		"repository": {"full_name": "acme/widgets"},
		"issue": {"number": 42, "title": "Login broken", "html_url": "https://example/issues/42"},
		"comment": {"body": "` + body + `", "html_url": "https://example/issues/42#c1", "user": {"login": "` + author + `"}}
	}`)
}

func TestDispatcher_SelfMentionIgnored(t *testing.T) {
	store := newFakeStore()
	store.registrations = []meshtypes.Registration{baseRegistration()}
	store.agents["bot-agent"] = &meshtypes.AgentDescriptor{ID: "bot-agent"}
	processes := &fakeProcesses{}
	d := New(testSecret, store, processes, nil, nil, nil, nil)

	payload := issueCommentPayload("bot", "@bot please fix")
	res, err := d.Ingest(context.Background(), "issue_comment", sign(payload), "acme/widgets", payload)
	if err != nil {
		t.Fatal(err)
	}
	if res.Processed != 0 || res.Skipped != 1 {
		t.Fatalf("expected one skip, got %+v", res)
	}
	if store.triggerCounts["reg-1"] != 0 {
		t.Fatal("expected triggerCount unchanged")
	}
}

func TestDispatcher_WorkTaskIntent(t *testing.T) {
	store := newFakeStore()
	store.registrations = []meshtypes.Registration{baseRegistration()}
	store.agents["bot-agent"] = &meshtypes.AgentDescriptor{ID: "bot-agent"}
	processes := &fakeProcesses{}
	workTasks := &fakeWorkTasks{}
	d := New(testSecret, store, processes, nil, workTasks, nil, nil)

	payload := issueCommentPayload("alice", "@bot please fix the login bug")
	res, err := d.Ingest(context.Background(), "issue_comment", sign(payload), "acme/widgets", payload)
	if err != nil {
		t.Fatal(err)
	}
	if res.Processed != 1 {
		t.Fatalf("expected one processed delivery, got %+v", res)
	}
	if workTasks.createCalls != 1 {
		t.Fatalf("expected exactly one work-task create call, got %d", workTasks.createCalls)
	}
	if workTasks.lastDesc != "GitHub webhook: @bot please fix the login bug" {
		t.Fatalf("unexpected description: %q", workTasks.lastDesc)
	}
	if store.triggerCounts["reg-1"] != 1 {
		t.Fatal("expected exactly one incrementTriggerCount call")
	}
}

func TestDispatcher_SessionIntent(t *testing.T) {
	store := newFakeStore()
	store.registrations = []meshtypes.Registration{baseRegistration()}
	store.agents["bot-agent"] = &meshtypes.AgentDescriptor{ID: "bot-agent"}
	processes := &fakeProcesses{}
	d := New(testSecret, store, processes, nil, nil, nil, nil)

	payload := issueCommentPayload("alice", "@bot what does this function do?")
	res, err := d.Ingest(context.Background(), "issue_comment", sign(payload), "acme/widgets", payload)
	if err != nil {
		t.Fatal(err)
	}
	if res.Processed != 1 {
		t.Fatalf("expected one processed delivery, got %+v", res)
	}
	if store.sessionCalls != 1 || processes.startCalls != 1 {
		t.Fatalf("expected exactly one createSession+startProcess, got sessions=%d starts=%d", store.sessionCalls, processes.startCalls)
	}
}

func TestDispatcher_SignatureFailureShortCircuits(t *testing.T) {
	store := newFakeStore()
	store.registrations = []meshtypes.Registration{baseRegistration()}
	d := New(testSecret, store, &fakeProcesses{}, nil, nil, nil, nil)

	payload := issueCommentPayload("alice", "@bot please fix")
	_, err := d.Ingest(context.Background(), "issue_comment", "sha256=deadbeef", "acme/widgets", payload)
	if err == nil {
		t.Fatal("expected signature error")
	}
	if store.createCalls != 0 {
		t.Fatal("expected zero delivery creations on signature failure")
	}
}

func TestDispatcher_RedeliveryWithinIntervalTriggersOnce(t *testing.T) {
	store := newFakeStore()
	store.registrations = []meshtypes.Registration{baseRegistration()}
	store.agents["bot-agent"] = &meshtypes.AgentDescriptor{ID: "bot-agent"}
	d := New(testSecret, store, &fakeProcesses{}, nil, nil, nil, nil)

	payload := issueCommentPayload("alice", "@bot what does this do?")
	sig := sign(payload)

	res1, err := d.Ingest(context.Background(), "issue_comment", sig, "acme/widgets", payload)
	if err != nil {
		t.Fatal(err)
	}
	res2, err := d.Ingest(context.Background(), "issue_comment", sig, "acme/widgets", payload)
	if err != nil {
		t.Fatal(err)
	}
	if res1.Processed != 1 {
		t.Fatalf("expected first delivery processed, got %+v", res1)
	}
	if res2.Processed != 0 || res2.Skipped != 1 {
		t.Fatalf("expected second delivery rate-limited, got %+v", res2)
	}
}
