package workflows

import (
	"github.com/Kocoro-lab/toolscout/internal/research"
)

// TaskQueue is the queue the research worker polls.
const TaskQueue = "toolscout-research"

// ResearchInput starts a research workflow.
type ResearchInput struct {
	RunID    string            `json:"run_id"`
	Query    string            `json:"query"`
	Settings research.Settings `json:"settings"`
	Mode     string            `json:"mode,omitempty"`
}

// FailureErrorType is the application error type of a run that ended Failed.
const FailureErrorType = "ResearchFailed"
