package workflows

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/Kocoro-lab/toolscout/internal/activities"
	"github.com/Kocoro-lab/toolscout/internal/research"
	"github.com/Kocoro-lab/toolscout/internal/util"
)

// ResearchWorkflow runs the research state machine durably: extraction, a
// windowed fan-out of per-tool research and the recommendation. The final
// state is persisted in every terminal status.
func ResearchWorkflow(ctx workflow.Context, input ResearchInput) (*research.ResearchState, error) {
	logger := workflow.GetLogger(ctx)
	if strings.TrimSpace(input.Query) == "" {
		return nil, temporal.NewNonRetryableApplicationError(research.ErrEmptyQuery.Error(), activities.ErrorTypeEmptyQuery, nil)
	}
	if input.RunID == "" {
		input.RunID = workflow.GetInfo(ctx).WorkflowExecution.ID
	}
	if input.Mode == "" {
		input.Mode = "workflow"
	}

	r := &workflowRun{
		ctx:      ctx,
		input:    input,
		settings: input.Settings.WithDefaults(),
		state:    research.NewState(input.RunID, input.Query, workflow.Now(ctx)),
	}
	logger.Info("Starting ResearchWorkflow", "run_id", input.RunID, "query", input.Query)

	err := r.execute()
	r.save()
	if err != nil {
		logger.Error("ResearchWorkflow failed", "run_id", input.RunID, "error", err)
		return r.state, temporal.NewNonRetryableApplicationError(r.state.FailureReason, FailureErrorType, err, r.state)
	}
	logger.Info("ResearchWorkflow completed", "run_id", input.RunID, "status", string(r.state.Status))
	return r.state, nil
}

type workflowRun struct {
	ctx      workflow.Context
	input    ResearchInput
	settings research.Settings
	state    *research.ResearchState
	total    int
}

func (r *workflowRun) stageCtx(timeout time.Duration, attempts int32) workflow.Context {
	return workflow.WithActivityOptions(r.ctx, workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2,
			MaximumAttempts:    attempts,
		},
	})
}

func (r *workflowRun) execute() error {
	// extract_tools
	if err := r.ctx.Err(); err != nil {
		return r.fail(err)
	}
	r.emit(research.Event{Type: research.EventStageStarted, Stage: research.StageExtraction})
	var extracted activities.ExtractToolsResult
	err := workflow.ExecuteActivity(r.stageCtx(5*time.Minute, 3), activities.ExtractToolsActivity, activities.ExtractToolsInput{
		RunID: r.input.RunID, Query: r.input.Query, Settings: &r.settings,
	}).Get(r.ctx, &extracted)
	if err != nil {
		return r.fail(err)
	}
	if extracted.Tools == nil {
		extracted.Tools = []string{}
	}
	research.Apply(r.state, research.ExtractionUpdate{Tools: extracted.Tools})
	research.Apply(r.state, research.Advance(research.PhaseToolsExtracted))
	r.emit(research.Event{Type: research.EventStageCompleted, Stage: research.StageExtraction, Total: len(extracted.Tools),
		Message: "Extracted tools: " + util.JoinPreview(extracted.Tools, 5)})

	if len(extracted.Tools) == 0 {
		for _, u := range research.InsufficientData(workflow.Now(r.ctx)) {
			research.Apply(r.state, u)
		}
		r.emit(research.Event{Type: research.EventRunCompleted, Status: research.StatusInsufficientData,
			Message: research.InsufficientDataMessage})
		return nil
	}

	// research
	r.total = len(extracted.Tools)
	if err := r.ctx.Err(); err != nil {
		return r.fail(err)
	}
	r.emit(research.Event{Type: research.EventStageStarted, Stage: research.StageResearch, Total: r.total})
	records, err := r.researchAll(extracted.Tools)
	if err != nil {
		return r.fail(err)
	}
	research.Apply(r.state, research.ResearchUpdate{Companies: records})
	research.Apply(r.state, research.Advance(research.PhaseResearched))
	r.emit(research.Event{Type: research.EventStageCompleted, Stage: research.StageResearch, Total: r.total,
		Message: fmt.Sprintf("Research complete: %d tools", len(records))})

	// analyze
	if err := r.ctx.Err(); err != nil {
		return r.fail(err)
	}
	r.emit(research.Event{Type: research.EventStageStarted, Stage: research.StageRecommendation, Total: r.total})
	var text string
	err = workflow.ExecuteActivity(r.stageCtx(5*time.Minute, 3), activities.RecommendToolsActivity, activities.RecommendToolsInput{
		RunID: r.input.RunID, Query: r.input.Query, Records: r.state.Companies, Settings: &r.settings,
	}).Get(r.ctx, &text)
	if err != nil {
		return r.fail(err)
	}
	research.Apply(r.state, research.RecommendationUpdate{Text: text})
	research.Apply(r.state, research.Advance(research.PhaseAnalyzed))
	r.emit(research.Event{Type: research.EventStageCompleted, Stage: research.StageRecommendation, Total: r.total})

	research.Apply(r.state, research.Finish(research.StatusCompleted, "", workflow.Now(r.ctx)))
	r.emit(research.Event{Type: research.EventRunCompleted, Status: research.StatusCompleted, Total: r.total})
	return nil
}

// researchAll fans out ResearchTool in windows of settings.Concurrency futures
// and assembles records in input order.
func (r *workflowRun) researchAll(names []string) ([]research.EntityFactRecord, error) {
	actx := r.stageCtx(3*time.Minute, 2)
	window := r.settings.Concurrency
	if window < 1 {
		window = 1
	}
	records := make([]research.EntityFactRecord, len(names))
	for start := 0; start < len(names); start += window {
		if err := r.ctx.Err(); err != nil {
			return nil, err
		}
		end := start + window
		if end > len(names) {
			end = len(names)
		}
		futures := make([]workflow.Future, 0, end-start)
		for i := start; i < end; i++ {
			r.emit(research.Event{Type: research.EventEntityStarted, Stage: research.StageResearch, Index: i, Total: r.total,
				Entity: names[i], Message: fmt.Sprintf("Analyzing %s (%d/%d)", names[i], i+1, r.total)})
			futures = append(futures, workflow.ExecuteActivity(actx, activities.ResearchToolActivity, activities.ResearchToolInput{
				RunID: r.input.RunID, Index: i, Name: names[i], Settings: &r.settings,
			}))
		}
		for j, f := range futures {
			i := start + j
			var rec research.EntityFactRecord
			if err := f.Get(r.ctx, &rec); err != nil {
				if temporal.IsCanceledError(err) {
					return nil, err
				}
				workflow.GetLogger(r.ctx).Warn("ResearchTool failed, using placeholder", "tool", names[i], "error", err)
				rec = research.PlaceholderRecord(names[i])
			}
			records[i] = rec
			r.emit(research.Event{Type: research.EventEntityCompleted, Stage: research.StageResearch, Index: i, Total: r.total,
				Entity: names[i], Source: rec.Source})
		}
	}
	return records, nil
}

func (r *workflowRun) fail(err error) error {
	reason := failureReason(err)
	ctx, _ := workflow.NewDisconnectedContext(r.ctx)
	research.Apply(r.state, research.Finish(research.StatusFailed, reason, workflow.Now(ctx)))
	r.emitWith(ctx, research.Event{Type: research.EventRunFailed, Status: research.StatusFailed, Reason: reason, Total: r.total})
	return err
}

func failureReason(err error) string {
	var appErr *temporal.ApplicationError
	switch {
	case temporal.IsCanceledError(err):
		return "cancelled: " + err.Error()
	case errors.As(err, &appErr):
		return appErr.Message()
	default:
		return err.Error()
	}
}

func (r *workflowRun) emit(e research.Event) {
	r.emitWith(r.ctx, e)
}

// emitWith delivers e through EmitEvent and waits so sink order matches
// emission order. Delivery failures are logged only.
func (r *workflowRun) emitWith(ctx workflow.Context, e research.Event) {
	e.RunID = r.state.RunID
	e.Timestamp = workflow.Now(ctx)
	e.Progress = research.ProgressOf(e, r.total)
	ectx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})
	if err := workflow.ExecuteActivity(ectx, activities.EmitEventActivity, e).Get(ctx, nil); err != nil {
		workflow.GetLogger(ctx).Debug("EmitEvent failed", "type", string(e.Type), "error", err)
	}
}

// save persists the terminal state on a disconnected context so cancelled
// runs are recorded too.
func (r *workflowRun) save() {
	ctx, _ := workflow.NewDisconnectedContext(r.ctx)
	sctx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 3},
	})
	err := workflow.ExecuteActivity(sctx, activities.SaveRunActivity, activities.SaveRunInput{
		State: r.state, Mode: r.input.Mode,
	}).Get(ctx, nil)
	if err != nil {
		workflow.GetLogger(ctx).Warn("SaveRun failed", "run_id", r.state.RunID, "error", err)
	}
}
