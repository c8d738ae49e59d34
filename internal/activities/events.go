package activities

import (
	"context"

	"go.temporal.io/sdk/activity"

	"github.com/Kocoro-lab/toolscout/internal/research"
)

// EmitEvent forwards a workflow lifecycle event to the progress sink. Delivery
// is best-effort and never fails the workflow.
func (a *Activities) EmitEvent(ctx context.Context, e research.Event) error {
	logger := activity.GetLogger(ctx)
	logger.Debug("research event",
		"run_id", e.RunID,
		"type", string(e.Type),
		"stage", e.Stage,
		"progress", e.Progress,
	)
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("progress sink panicked", "run_id", e.RunID, "panic", r)
		}
	}()
	a.sink.OnEvent(e)
	return nil
}
