package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Kocoro-lab/toolscout/internal/research"
)

// ErrRunNotFound is returned when no run has the requested id.
var ErrRunNotFound = errors.New("run not found")

// SaveRun upserts the state of a run (idempotent by run_id).
func (c *Client) SaveRun(ctx context.Context, s *research.ResearchState, mode string) error {
	rec, err := NewRunRecord(s, mode)
	if err != nil {
		return err
	}
	return c.SaveRunRecord(ctx, rec)
}

// SaveRunRecord upserts a research_runs row.
func (c *Client) SaveRunRecord(ctx context.Context, r *RunRecord) error {
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now

	err := c.exec(ctx, `
		INSERT INTO research_runs (
			run_id, query, mode, phase, status, extracted_tools, companies,
			recommendation, failure_reason, summary, started_at, completed_at,
			duration_ms, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id) DO UPDATE SET
			phase = EXCLUDED.phase,
			status = EXCLUDED.status,
			extracted_tools = EXCLUDED.extracted_tools,
			companies = EXCLUDED.companies,
			recommendation = EXCLUDED.recommendation,
			failure_reason = EXCLUDED.failure_reason,
			summary = EXCLUDED.summary,
			completed_at = EXCLUDED.completed_at,
			duration_ms = EXCLUDED.duration_ms,
			updated_at = EXCLUDED.updated_at`,
		r.RunID, r.Query, r.Mode, r.Phase, r.Status, r.ExtractedTools, r.Companies,
		r.Recommendation, r.FailureReason, r.Summary, r.StartedAt, r.CompletedAt,
		r.DurationMs, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", r.RunID, err)
	}
	return nil
}

// GetRun loads a run state by id.
func (c *Client) GetRun(ctx context.Context, runID string) (*research.ResearchState, error) {
	var rec RunRecord
	err := c.cb.Execute(ctx, func() error {
		err := c.db.GetContext(ctx, &rec, c.db.Rebind(`SELECT * FROM research_runs WHERE run_id = ?`), runID)
		if errors.Is(err, sql.ErrNoRows) {
			rec.RunID = ""
			return nil
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	if rec.RunID == "" {
		return nil, ErrRunNotFound
	}
	return rec.State()
}

// ListRuns returns the most recently started runs, newest first.
func (c *Client) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	out := []RunSummary{}
	err := c.cb.Execute(ctx, func() error {
		return c.db.SelectContext(ctx, &out, c.db.Rebind(`
			SELECT run_id, query, mode, status, started_at, completed_at
			FROM research_runs ORDER BY started_at DESC LIMIT ?`), limit)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return out, nil
}
