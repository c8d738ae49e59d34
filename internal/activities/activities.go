package activities

import (
	"context"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/toolscout/internal/research"
)

// Activity names as registered with the worker.
const (
	ExtractToolsActivity   = "ExtractTools"
	ResearchToolActivity   = "ResearchTool"
	RecommendToolsActivity = "RecommendTools"
	EmitEventActivity      = "EmitEvent"
	SaveRunActivity        = "SaveRun"
)

// RunStore persists run state.
type RunStore interface {
	SaveRun(ctx context.Context, s *research.ResearchState, mode string) error
}

// Activities struct holds dependencies for activities
type Activities struct {
	collaborators research.Collaborators
	settings      research.Settings
	sink          research.ProgressSink
	store         RunStore
	logger        *zap.Logger
}

// NewActivities creates a new activities instance with dependencies. sink and
// store may be nil.
func NewActivities(c research.Collaborators, settings research.Settings, sink research.ProgressSink, store RunStore, logger *zap.Logger) *Activities {
	if sink == nil {
		sink = research.NopSink{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Activities{
		collaborators: c,
		settings:      settings.WithDefaults(),
		sink:          sink,
		store:         store,
		logger:        logger,
	}
}

// settingsFor overlays per-run knobs on the worker defaults.
func (a *Activities) settingsFor(s *research.Settings) research.Settings {
	if s == nil {
		return a.settings
	}
	return s.WithDefaults()
}
