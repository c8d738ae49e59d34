package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"

	"github.com/Kocoro-lab/toolscout/internal/streaming"
)

// EventLog represents a persisted run event row.
type EventLog struct {
	ID        string         `db:"id" json:"id"`
	RunID     string         `db:"run_id" json:"run_id"`
	Seq       uint64         `db:"seq" json:"seq"`
	Type      string         `db:"type" json:"type"`
	Stage     *string        `db:"stage" json:"stage,omitempty"`
	Entity    *string        `db:"entity" json:"entity,omitempty"`
	Progress  int            `db:"progress" json:"progress"`
	Message   *string        `db:"message" json:"message,omitempty"`
	Payload   types.JSONText `db:"payload" json:"payload"`
	Timestamp time.Time      `db:"timestamp" json:"timestamp"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
}

// NewEventLog converts a sequenced stream event into a row.
func NewEventLog(e streaming.Event) *EventLog {
	return &EventLog{
		RunID:     e.RunID,
		Seq:       e.Seq,
		Type:      string(e.Type),
		Stage:     nullIfEmpty(e.Stage),
		Entity:    nullIfEmpty(e.Entity),
		Progress:  e.Progress,
		Message:   nullIfEmpty(e.Message),
		Payload:   e.Marshal(),
		Timestamp: e.Timestamp,
	}
}

// SaveEventLog inserts a new run_events row. Duplicate (run_id, seq) pairs are ignored.
func (c *Client) SaveEventLog(ctx context.Context, e *EventLog) error {
	if e == nil {
		return nil
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	err := c.exec(ctx, `
		INSERT INTO run_events (
			id, run_id, seq, type, stage, entity, progress, message, payload, timestamp, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, seq) DO NOTHING`,
		e.ID, e.RunID, int64(e.Seq), e.Type, e.Stage, e.Entity, e.Progress, e.Message, e.Payload,
		e.Timestamp.UTC(), e.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save event log: %w", err)
	}
	return nil
}

// ListEventLogs returns a run's persisted events with seq > since, in order.
func (c *Client) ListEventLogs(ctx context.Context, runID string, since uint64) ([]EventLog, error) {
	out := []EventLog{}
	err := c.cb.Execute(ctx, func() error {
		return c.db.SelectContext(ctx, &out, c.db.Rebind(`
			SELECT id, run_id, seq, type, stage, entity, progress, message, payload, timestamp, created_at
			FROM run_events WHERE run_id = ? AND seq > ? ORDER BY seq`), runID, int64(since))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list events for %s: %w", runID, err)
	}
	return out, nil
}

// EventLogMirror persists every stream event through the async write queue.
type EventLogMirror struct {
	client *Client
}

// NewEventLogMirror returns a streaming.Mirror backed by c.
func NewEventLogMirror(c *Client) *EventLogMirror {
	return &EventLogMirror{client: c}
}

// Mirror implements streaming.Mirror.
func (m *EventLogMirror) Mirror(e streaming.Event) {
	m.client.QueueWrite(WriteTypeEventLog, NewEventLog(e), nil)
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
