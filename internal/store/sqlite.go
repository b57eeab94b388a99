// Package store is the SQLite-backed implementation of the collab.Store
// contract: agents, webhook registrations/deliveries, sessions, mesh
// message records, and cron schedules. Schema bootstrap is a single
// "CREATE TABLE IF NOT EXISTS" pass; writes retry on
// SQLITE_BUSY/SQLITE_LOCKED.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/agentmesh/core/internal/meshtypes"
)

// QueryObserver receives the duration of each store operation, feeding the
// db_query_duration_seconds histogram when one is wired in.
type QueryObserver func(operation string, seconds float64)

// Store is a SQLite-backed implementation of collab.Store.
type Store struct {
	db      *sql.DB
	observe QueryObserver
}

// SetQueryObserver installs fn to receive per-operation timings. Call before
// the store is shared across goroutines.
func (s *Store) SetQueryObserver(fn QueryObserver) { s.observe = fn }

func (s *Store) timeOp(op string) func() {
	if s.observe == nil {
		return func() {}
	}
	start := time.Now()
	return func() { s.observe(op, time.Since(start).Seconds()) }
}

// Open opens (creating if absent) the SQLite database at path and runs the
// schema bootstrap.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // sqlite3 driver is not safe for concurrent writers across connections

	s := &Store{db: db}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: init schema: %w", err)
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

const schema = `
CREATE TABLE IF NOT EXISTS agents (
	agent_id      TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	address       TEXT NOT NULL,
	capabilities  TEXT NOT NULL DEFAULT '[]',
	active        INTEGER NOT NULL DEFAULT 1,
	last_seen     DATETIME,
	trust_score   REAL NOT NULL DEFAULT 0.5
);

CREATE TABLE IF NOT EXISTS webhook_registrations (
	id            TEXT PRIMARY KEY,
	agent_id      TEXT NOT NULL,
	repo          TEXT NOT NULL,
	events        TEXT NOT NULL DEFAULT '[]',
	mention_user  TEXT NOT NULL,
	project_id    TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL DEFAULT 'active',
	trigger_count INTEGER NOT NULL DEFAULT 0,
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_webhook_registrations_repo ON webhook_registrations(repo);

CREATE TABLE IF NOT EXISTS webhook_deliveries (
	id              TEXT PRIMARY KEY,
	registration_id TEXT NOT NULL,
	event           TEXT NOT NULL,
	action          TEXT NOT NULL DEFAULT '',
	repo            TEXT NOT NULL DEFAULT '',
	sender          TEXT NOT NULL DEFAULT '',
	body            TEXT NOT NULL DEFAULT '',
	html_url        TEXT NOT NULL DEFAULT '',
	session_id      TEXT NOT NULL DEFAULT '',
	work_task_id    TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL DEFAULT 'pending',
	result          TEXT NOT NULL DEFAULT '',
	created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_webhook_deliveries_registration ON webhook_deliveries(registration_id);

CREATE TABLE IF NOT EXISTS sessions (
	id             TEXT PRIMARY KEY,
	project_id     TEXT NOT NULL DEFAULT '',
	agent_id       TEXT NOT NULL,
	name           TEXT NOT NULL DEFAULT '',
	initial_prompt TEXT NOT NULL DEFAULT '',
	source         TEXT NOT NULL DEFAULT '',
	created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS mesh_messages (
	id         TEXT PRIMARY KEY,
	from_agent TEXT NOT NULL,
	to_agent   TEXT NOT NULL,
	route      TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS schedules (
	id             TEXT PRIMARY KEY,
	agent_id       TEXT NOT NULL,
	project_id     TEXT NOT NULL DEFAULT '',
	name           TEXT NOT NULL DEFAULT '',
	cron_expr      TEXT NOT NULL,
	prompt         TEXT NOT NULL DEFAULT '',
	last_run_at    DATETIME,
	next_run_at    DATETIME NOT NULL,
	created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_schedules_next_run ON schedules(next_run_at);
`

func (s *Store) initSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// retryOnBusy retries fn while SQLite reports the database as busy or
// locked, with exponential backoff and jitter.
func retryOnBusy(ctx context.Context, fn func() error) error {
	const maxAttempts = 5
	base := 10 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil || !isSQLiteBusy(lastErr) {
			return lastErr
		}
		delay := base * time.Duration(1<<attempt)
		delay += time.Duration(rand.Int63n(int64(delay) / 2))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return lastErr
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy")
}

// GetAgent returns the agent descriptor for id, or (nil, nil) if absent.
func (s *Store) GetAgent(ctx context.Context, id string) (*meshtypes.AgentDescriptor, error) {
	defer s.timeOp("get_agent")()
	var a meshtypes.AgentDescriptor
	var capsJSON string
	var lastSeen sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT agent_id, name, address, capabilities, active, last_seen, trust_score
		FROM agents WHERE agent_id = ?;
	`, id).Scan(&a.ID, &a.Name, &a.Address, &capsJSON, &a.Active, &lastSeen, &a.TrustScore)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get agent %s: %w", id, err)
	}
	_ = json.Unmarshal([]byte(capsJSON), &a.Capabilities)
	if lastSeen.Valid {
		a.LastSeen = lastSeen.Time
	}
	return &a, nil
}

// FindRegistrationsForRepo returns every registration bound to repo.
func (s *Store) FindRegistrationsForRepo(ctx context.Context, repo string) ([]meshtypes.Registration, error) {
	defer s.timeOp("find_registrations")()
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent_id, repo, events, mention_user, project_id, status, trigger_count, created_at, updated_at
		FROM webhook_registrations WHERE repo = ?;
	`, repo)
	if err != nil {
		return nil, fmt.Errorf("store: find registrations for %s: %w", repo, err)
	}
	defer rows.Close()

	var out []meshtypes.Registration
	for rows.Next() {
		var r meshtypes.Registration
		var eventsJSON, status string
		if err := rows.Scan(&r.ID, &r.AgentID, &r.Repo, &eventsJSON, &r.MentionUser, &r.ProjectID, &status, &r.TriggerCount, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: scan registration: %w", err)
		}
		r.Status = meshtypes.RegistrationStatus(status)
		r.Events = decodeEventSet(eventsJSON)
		out = append(out, r)
	}
	return out, rows.Err()
}

func decodeEventSet(raw string) map[meshtypes.EventKind]bool {
	var kinds []string
	_ = json.Unmarshal([]byte(raw), &kinds)
	set := make(map[meshtypes.EventKind]bool, len(kinds))
	for _, k := range kinds {
		set[meshtypes.EventKind(k)] = true
	}
	return set
}

// CreateDelivery inserts a new delivery row and returns its id.
func (s *Store) CreateDelivery(ctx context.Context, d meshtypes.Delivery) (string, error) {
	defer s.timeOp("create_delivery")()
	id := uuid.NewString()
	err := retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO webhook_deliveries (id, registration_id, event, action, repo, sender, body, html_url, status, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP);
		`, id, d.RegistrationID, d.Event, d.Action, d.Repo, d.Sender, d.Body, d.HTMLURL, string(meshtypes.DeliveryPending))
		return err
	})
	if err != nil {
		return "", fmt.Errorf("store: create delivery: %w", err)
	}
	return id, nil
}

// UpdateDeliveryStatus transitions a delivery's status. The webhook
// dispatcher moves a delivery from pending straight to completed or
// failed; the store itself does not check the transition.
func (s *Store) UpdateDeliveryStatus(ctx context.Context, id string, status meshtypes.DeliveryStatus, result, sessionID, workTaskID string) error {
	defer s.timeOp("update_delivery_status")()
	err := retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			UPDATE webhook_deliveries SET status = ?, result = ?, session_id = ?, work_task_id = ? WHERE id = ?;
		`, string(status), result, sessionID, workTaskID, id)
		return err
	})
	if err != nil {
		return fmt.Errorf("store: update delivery %s: %w", id, err)
	}
	return nil
}

// IncrementTriggerCount bumps a registration's trigger_count by one.
func (s *Store) IncrementTriggerCount(ctx context.Context, registrationID string) error {
	defer s.timeOp("increment_trigger_count")()
	err := retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			UPDATE webhook_registrations SET trigger_count = trigger_count + 1, updated_at = CURRENT_TIMESTAMP WHERE id = ?;
		`, registrationID)
		return err
	})
	if err != nil {
		return fmt.Errorf("store: increment trigger count %s: %w", registrationID, err)
	}
	return nil
}

// CreateSession inserts a new session row and returns its id.
func (s *Store) CreateSession(ctx context.Context, projectID, agentID, name, initialPrompt string, source meshtypes.EventSource) (string, error) {
	defer s.timeOp("create_session")()
	id := uuid.NewString()
	err := retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO sessions (id, project_id, agent_id, name, initial_prompt, source, created_at)
			VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP);
		`, id, projectID, agentID, name, initialPrompt, string(source))
		return err
	})
	if err != nil {
		return "", fmt.Errorf("store: create session: %w", err)
	}
	return id, nil
}

// RecordMessage writes the mesh router's initial pending message record.
func (s *Store) RecordMessage(ctx context.Context, id, from, to, route string, status string) error {
	defer s.timeOp("record_message")()
	err := retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO mesh_messages (id, from_agent, to_agent, route, status, updated_at)
			VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(id) DO UPDATE SET status = excluded.status, route = excluded.route, updated_at = CURRENT_TIMESTAMP;
		`, id, from, to, route, status)
		return err
	})
	if err != nil {
		return fmt.Errorf("store: record message %s: %w", id, err)
	}
	return nil
}

// UpdateMessageStatus updates a mesh message's status and chosen route
// after a transport attempt.
func (s *Store) UpdateMessageStatus(ctx context.Context, id string, status string, route string) error {
	defer s.timeOp("update_message_status")()
	err := retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			UPDATE mesh_messages SET status = ?, route = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?;
		`, status, route, id)
		return err
	})
	if err != nil {
		return fmt.Errorf("store: update message status %s: %w", id, err)
	}
	return nil
}

// CreateSchedule inserts a new cron schedule and returns its id.
func (s *Store) CreateSchedule(ctx context.Context, sched meshtypes.Schedule) (string, error) {
	defer s.timeOp("create_schedule")()
	id := sched.ID
	if id == "" {
		id = uuid.NewString()
	}
	err := retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO schedules (id, agent_id, project_id, name, cron_expr, prompt, next_run_at, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP);
		`, id, sched.AgentID, sched.ProjectID, sched.Name, sched.CronExpr, sched.Prompt, sched.NextRunAt)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("store: create schedule: %w", err)
	}
	return id, nil
}

// DueSchedules returns every schedule whose next_run_at has passed as of now.
func (s *Store) DueSchedules(ctx context.Context, now time.Time) ([]meshtypes.Schedule, error) {
	defer s.timeOp("due_schedules")()
	var out []meshtypes.Schedule
	err := retryOnBusy(ctx, func() error {
		out = nil
		rows, err := s.db.QueryContext(ctx, `
			SELECT id, agent_id, project_id, name, cron_expr, prompt, last_run_at, next_run_at, created_at
			FROM schedules WHERE next_run_at <= ? ORDER BY next_run_at ASC;
		`, now)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var sched meshtypes.Schedule
			var lastRun sql.NullTime
			if err := rows.Scan(&sched.ID, &sched.AgentID, &sched.ProjectID, &sched.Name, &sched.CronExpr,
				&sched.Prompt, &lastRun, &sched.NextRunAt, &sched.CreatedAt); err != nil {
				return err
			}
			if lastRun.Valid {
				sched.LastRunAt = lastRun.Time
			}
			out = append(out, sched)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("store: due schedules: %w", err)
	}
	return out, nil
}

// UpsertAgent inserts or replaces an agent descriptor. Used by cmd/meshd to
// seed the demo daemon's agent roster from config.yaml; a networked
// deployment would instead populate this table from an agent-registration
// API outside this core's scope.
func (s *Store) UpsertAgent(ctx context.Context, a meshtypes.AgentDescriptor) error {
	defer s.timeOp("upsert_agent")()
	capsJSON, err := json.Marshal(a.Capabilities)
	if err != nil {
		return fmt.Errorf("store: marshal capabilities: %w", err)
	}
	err = retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO agents (agent_id, name, address, capabilities, active, last_seen, trust_score)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(agent_id) DO UPDATE SET
				name = excluded.name, address = excluded.address, capabilities = excluded.capabilities,
				active = excluded.active, trust_score = excluded.trust_score;
		`, a.ID, a.Name, a.Address, string(capsJSON), a.Active, a.LastSeen, a.TrustScore)
		return err
	})
	if err != nil {
		return fmt.Errorf("store: upsert agent %s: %w", a.ID, err)
	}
	return nil
}

// UpsertRegistration inserts or replaces a webhook registration keyed by
// (agent_id, repo, mention_user) — the natural key for a seed loaded
// repeatedly from config.yaml across restarts.
func (s *Store) UpsertRegistration(ctx context.Context, r meshtypes.Registration) (string, error) {
	defer s.timeOp("upsert_registration")()
	existingID, err := s.findRegistrationID(ctx, r.AgentID, r.Repo, r.MentionUser)
	if err != nil {
		return "", err
	}
	id := existingID
	if id == "" {
		id = uuid.NewString()
	}

	kinds := make([]string, 0, len(r.Events))
	for k, on := range r.Events {
		if on {
			kinds = append(kinds, string(k))
		}
	}
	eventsJSON, err := json.Marshal(kinds)
	if err != nil {
		return "", fmt.Errorf("store: marshal events: %w", err)
	}
	status := r.Status
	if status == "" {
		status = meshtypes.RegistrationActive
	}

	err = retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO webhook_registrations (id, agent_id, repo, events, mention_user, project_id, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
			ON CONFLICT(id) DO UPDATE SET
				events = excluded.events, project_id = excluded.project_id, status = excluded.status,
				updated_at = CURRENT_TIMESTAMP;
		`, id, r.AgentID, r.Repo, string(eventsJSON), r.MentionUser, r.ProjectID, string(status))
		return err
	})
	if err != nil {
		return "", fmt.Errorf("store: upsert registration: %w", err)
	}
	return id, nil
}

func (s *Store) findRegistrationID(ctx context.Context, agentID, repo, mentionUser string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM webhook_registrations WHERE agent_id = ? AND repo = ? AND mention_user = ?;
	`, agentID, repo, mentionUser).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("store: find registration: %w", err)
	}
	return id, nil
}

// UpdateScheduleRun records a schedule's most recent firing and its next
// computed run time.
func (s *Store) UpdateScheduleRun(ctx context.Context, id string, lastRun, nextRun time.Time) error {
	defer s.timeOp("update_schedule_run")()
	err := retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			UPDATE schedules SET last_run_at = ?, next_run_at = ? WHERE id = ?;
		`, lastRun, nextRun, id)
		return err
	})
	if err != nil {
		return fmt.Errorf("store: update schedule run %s: %w", id, err)
	}
	return nil
}
