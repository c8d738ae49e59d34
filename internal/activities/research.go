package activities

import (
	"context"
	"errors"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/toolscout/internal/research"
)

// ExtractToolsInput is the input of ExtractTools.
type ExtractToolsInput struct {
	RunID    string             `json:"run_id"`
	Query    string             `json:"query"`
	Settings *research.Settings `json:"settings,omitempty"`
}

// ExtractToolsResult carries the capped, deduplicated tool names.
type ExtractToolsResult struct {
	Tools []string `json:"tools"`
}

// ExtractTools runs discovery search, article scraping and name extraction.
func (a *Activities) ExtractTools(ctx context.Context, in ExtractToolsInput) (ExtractToolsResult, error) {
	settings := a.settingsFor(in.Settings)
	logger := a.logger.With(zap.String("run_id", in.RunID))
	extractor := research.NewToolExtractor(a.collaborators.Search, a.collaborators.Scrape, a.collaborators.Text,
		a.collaborators.Prompts, settings, logger)

	update, err := extractor.Extract(ctx, in.Query)
	if err != nil {
		logger.Warn("Tool extraction failed",
			zap.Int32("attempt", activity.GetInfo(ctx).Attempt),
			zap.Error(err))
		return ExtractToolsResult{}, asApplicationError(err)
	}
	return ExtractToolsResult{Tools: update.Tools}, nil
}

// ResearchToolInput is the input of ResearchTool.
type ResearchToolInput struct {
	RunID    string             `json:"run_id"`
	Index    int                `json:"index"`
	Name     string             `json:"name"`
	Settings *research.Settings `json:"settings,omitempty"`
}

// ResearchTool enriches a single tool. Collaborator failures are absorbed into
// placeholder or default records; only cancellation fails the activity.
func (a *Activities) ResearchTool(ctx context.Context, in ResearchToolInput) (research.EntityFactRecord, error) {
	settings := a.settingsFor(in.Settings)
	researcher := research.NewSiteResearcher(a.collaborators.Search, a.collaborators.Scrape, a.collaborators.Structured,
		a.collaborators.Prompts, settings, a.logger.With(zap.String("run_id", in.RunID), zap.Int("index", in.Index)))

	rec := researcher.Research(ctx, in.Name)
	if err := ctx.Err(); err != nil {
		return research.EntityFactRecord{}, err
	}
	return rec, nil
}

// RecommendToolsInput is the input of RecommendTools.
type RecommendToolsInput struct {
	RunID    string                      `json:"run_id"`
	Query    string                      `json:"query"`
	Records  []research.EntityFactRecord `json:"records"`
	Settings *research.Settings          `json:"settings,omitempty"`
}

// RecommendTools synthesizes the recommendation text.
func (a *Activities) RecommendTools(ctx context.Context, in RecommendToolsInput) (string, error) {
	settings := a.settingsFor(in.Settings)
	recommender := research.NewRecommender(a.collaborators.Text, a.collaborators.Prompts, settings,
		a.logger.With(zap.String("run_id", in.RunID)))

	update, err := recommender.Recommend(ctx, in.Query, in.Records)
	if err != nil {
		return "", asApplicationError(err)
	}
	return update.Text, nil
}

// Application error types reported to Temporal.
const (
	ErrorTypeStructuredOutput = "StructuredOutput"
	ErrorTypeEmptyQuery       = "EmptyQuery"
	ErrorTypeUnavailable      = "CollaboratorUnavailable"
)

// asApplicationError marks errors that a retry cannot fix as non-retryable.
func asApplicationError(err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, research.ErrStructuredOutput):
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrorTypeStructuredOutput, err)
	case errors.Is(err, research.ErrEmptyQuery):
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrorTypeEmptyQuery, err)
	case errors.Is(err, research.ErrCollaboratorUnavailable):
		return temporal.NewApplicationErrorWithCause(err.Error(), ErrorTypeUnavailable, err)
	default:
		return err
	}
}
