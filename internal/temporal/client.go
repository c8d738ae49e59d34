package temporal

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/toolscout/internal/activities"
	"github.com/Kocoro-lab/toolscout/internal/research"
	"github.com/Kocoro-lab/toolscout/internal/workflows"
)

// Config locates the Temporal frontend.
type Config struct {
	Enabled       bool          `mapstructure:"enabled"`
	HostPort      string        `mapstructure:"host_port"`
	Namespace     string        `mapstructure:"namespace"`
	TaskQueue     string        `mapstructure:"task_queue"`
	DialTimeout   time.Duration `mapstructure:"dial_timeout"`
	MaxActivities int           `mapstructure:"max_concurrent_activities"`
}

func (c Config) withDefaults() Config {
	if c.HostPort == "" {
		c.HostPort = "localhost:7233"
	}
	if c.Namespace == "" {
		c.Namespace = "default"
	}
	if c.TaskQueue == "" {
		c.TaskQueue = workflows.TaskQueue
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.MaxActivities <= 0 {
		c.MaxActivities = 20
	}
	return c
}

// Dial connects to Temporal with zap logging.
func Dial(ctx context.Context, cfg Config, logger *zap.Logger) (client.Client, error) {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()

	c, err := client.DialContext(ctx, client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
		Logger:    NewZapAdapter(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to temporal at %s: %w", cfg.HostPort, err)
	}
	return c, nil
}

// NewWorker registers ResearchWorkflow and the research activities.
func NewWorker(c client.Client, cfg Config, acts *activities.Activities) worker.Worker {
	cfg = cfg.withDefaults()
	w := worker.New(c, cfg.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize: cfg.MaxActivities,
	})
	w.RegisterWorkflow(workflows.ResearchWorkflow)
	w.RegisterActivity(acts)
	return w
}

// Starter starts research workflows.
type Starter struct {
	client client.Client
	cfg    Config
}

// NewStarter wraps a connected client.
func NewStarter(c client.Client, cfg Config) *Starter {
	return &Starter{client: c, cfg: cfg.withDefaults()}
}

// Start launches ResearchWorkflow with the run id as workflow id and returns
// the Temporal run id. Out-of-bounds settings are rejected before submission.
func (s *Starter) Start(ctx context.Context, runID, query string, settings research.Settings) (string, error) {
	if err := settings.Validate(); err != nil {
		return "", err
	}
	run, err := s.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:                    runID,
		TaskQueue:             s.cfg.TaskQueue,
		WorkflowIDReusePolicy: enums.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE,
	}, workflows.ResearchWorkflow, workflows.ResearchInput{
		RunID:    runID,
		Query:    query,
		Settings: settings,
		Mode:     "workflow",
	})
	if err != nil {
		return "", fmt.Errorf("failed to start research workflow: %w", err)
	}
	return run.GetRunID(), nil
}

// Wait blocks until the workflow finishes and returns its final state.
func (s *Starter) Wait(ctx context.Context, runID string) (*research.ResearchState, error) {
	var state research.ResearchState
	if err := s.client.GetWorkflow(ctx, runID, "").Get(ctx, &state); err != nil {
		return nil, err
	}
	return &state, nil
}
