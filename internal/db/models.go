package db

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx/types"

	"github.com/Kocoro-lab/toolscout/internal/research"
)

// RunRecord is a research_runs row.
type RunRecord struct {
	RunID          string         `db:"run_id"`
	Query          string         `db:"query"`
	Mode           string         `db:"mode"`
	Phase          string         `db:"phase"`
	Status         string         `db:"status"`
	ExtractedTools types.JSONText `db:"extracted_tools"`
	Companies      types.JSONText `db:"companies"`
	Recommendation *string        `db:"recommendation"`
	FailureReason  *string        `db:"failure_reason"`
	Summary        types.JSONText `db:"summary"`
	StartedAt      time.Time      `db:"started_at"`
	CompletedAt    *time.Time     `db:"completed_at"`
	DurationMs     *int64         `db:"duration_ms"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

// RunSummary is the listing view of a run.
type RunSummary struct {
	RunID       string     `db:"run_id" json:"run_id"`
	Query       string     `db:"query" json:"query"`
	Mode        string     `db:"mode" json:"mode"`
	Status      string     `db:"status" json:"status"`
	StartedAt   time.Time  `db:"started_at" json:"started_at"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

// NewRunRecord converts a run state into a row.
func NewRunRecord(s *research.ResearchState, mode string) (*RunRecord, error) {
	tools, err := json.Marshal(s.ExtractedTools)
	if err != nil {
		return nil, fmt.Errorf("failed to encode extracted tools: %w", err)
	}
	companies, err := json.Marshal(s.Companies)
	if err != nil {
		return nil, fmt.Errorf("failed to encode companies: %w", err)
	}
	summary, err := json.Marshal(research.Summarize(s))
	if err != nil {
		return nil, fmt.Errorf("failed to encode summary: %w", err)
	}

	rec := &RunRecord{
		RunID:          s.RunID,
		Query:          s.Query,
		Mode:           mode,
		Phase:          string(s.Phase),
		Status:         string(s.Status),
		ExtractedTools: tools,
		Companies:      companies,
		Recommendation: s.Recommendation,
		Summary:        summary,
		StartedAt:      s.StartedAt.UTC(),
	}
	if s.FailureReason != "" {
		reason := s.FailureReason
		rec.FailureReason = &reason
	}
	if s.CompletedAt != nil {
		done := s.CompletedAt.UTC()
		ms := done.Sub(rec.StartedAt).Milliseconds()
		rec.CompletedAt = &done
		rec.DurationMs = &ms
	}
	return rec, nil
}

// State converts the row back into a run state.
func (r *RunRecord) State() (*research.ResearchState, error) {
	s := research.NewState(r.RunID, r.Query, r.StartedAt)
	s.Phase = research.Phase(r.Phase)
	s.Status = research.Status(r.Status)
	if err := r.ExtractedTools.Unmarshal(&s.ExtractedTools); err != nil {
		return nil, fmt.Errorf("failed to decode extracted tools: %w", err)
	}
	if err := r.Companies.Unmarshal(&s.Companies); err != nil {
		return nil, fmt.Errorf("failed to decode companies: %w", err)
	}
	if s.ExtractedTools == nil {
		s.ExtractedTools = []string{}
	}
	if s.Companies == nil {
		s.Companies = []research.EntityFactRecord{}
	}
	s.Recommendation = r.Recommendation
	if r.FailureReason != nil {
		s.FailureReason = *r.FailureReason
	}
	s.CompletedAt = r.CompletedAt
	return s, nil
}
