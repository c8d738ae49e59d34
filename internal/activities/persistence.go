package activities

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/toolscout/internal/research"
)

// SaveRunInput is the input of SaveRun.
type SaveRunInput struct {
	State *research.ResearchState `json:"state"`
	Mode  string                  `json:"mode"`
}

// SaveRun persists the run state. Without a store it is a no-op.
func (a *Activities) SaveRun(ctx context.Context, in SaveRunInput) error {
	if a.store == nil || in.State == nil {
		return nil
	}
	if err := a.store.SaveRun(ctx, in.State, in.Mode); err != nil {
		a.logger.Warn("Failed to persist run",
			zap.String("run_id", in.State.RunID),
			zap.String("status", string(in.State.Status)),
			zap.Error(err))
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}
