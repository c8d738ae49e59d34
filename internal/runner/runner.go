package runner

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/toolscout/internal/db"
	"github.com/Kocoro-lab/toolscout/internal/research"
)

// Store persists and loads run states.
type Store interface {
	SaveRun(ctx context.Context, s *research.ResearchState, mode string) error
	GetRun(ctx context.Context, runID string) (*research.ResearchState, error)
}

// Options tune a Runner.
type Options struct {
	Timeout     time.Duration // per-run deadline, 0 for none
	SaveTimeout time.Duration
	Store       Store // durable store; nil keeps runs in memory only
	Sink        research.ProgressSink
	Executor    func(concurrency int) research.Executor
}

// Runner executes research runs in process, either inline or in the background.
type Runner struct {
	collab   research.Collaborators
	settings func() research.Settings
	opts     Options
	memory   *MemoryStore
	logger   *zap.Logger

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a Runner. settings is consulted at the start of every run so
// configuration reloads apply to subsequent runs.
func New(c research.Collaborators, settings func() research.Settings, logger *zap.Logger, opts Options) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Sink == nil {
		opts.Sink = research.NopSink{}
	}
	if opts.SaveTimeout <= 0 {
		opts.SaveTimeout = 10 * time.Second
	}
	if opts.Executor == nil {
		opts.Executor = research.ExecutorFor
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		collab:   c,
		settings: settings,
		opts:     opts,
		memory:   NewMemoryStore(0),
		logger:   logger,
		baseCtx:  ctx,
		cancel:   cancel,
	}
}

// Settings returns the active settings with non-zero overrides applied, or
// an error wrapping research.ErrInvalidSettings when the result is out of bounds.
func (r *Runner) Settings(overrides *research.Settings) (research.Settings, error) {
	s := r.merge(overrides)
	return s, s.Validate()
}

func (r *Runner) merge(overrides *research.Settings) research.Settings {
	s := r.settings().WithDefaults()
	if overrides == nil {
		return s
	}
	o := *overrides
	if o.MaxTools > 0 {
		s.MaxTools = o.MaxTools
	}
	if o.ArticleResults > 0 {
		s.ArticleResults = o.ArticleResults
	}
	if o.ArticleCharLimit > 0 {
		s.ArticleCharLimit = o.ArticleCharLimit
	}
	if o.SiteCharLimit > 0 {
		s.SiteCharLimit = o.SiteCharLimit
	}
	if o.RecommendationCharLimit > 0 {
		s.RecommendationCharLimit = o.RecommendationCharLimit
	}
	if o.Concurrency > 0 {
		s.Concurrency = o.Concurrency
	}
	if o.DiscoveryTerms != "" {
		s.DiscoveryTerms = o.DiscoveryTerms
	}
	return s
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// Run executes a run and blocks until it reaches a terminal status.
func (r *Runner) Run(ctx context.Context, runID, query string, overrides *research.Settings, mode string) (*research.ResearchState, error) {
	if strings.TrimSpace(query) == "" {
		return nil, research.ErrEmptyQuery
	}
	settings, err := r.Settings(overrides)
	if err != nil {
		return nil, err
	}
	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
	}

	logger := r.logger.With(zap.String("run_id", runID), zap.String("mode", mode))
	orch := research.New(r.collab, settings, logger, research.WithExecutor(r.opts.Executor(settings.Concurrency)))

	r.save(research.NewState(runID, query, time.Now()), mode)
	state, err := orch.RunWithID(ctx, runID, query, r.opts.Sink)
	if state != nil {
		r.save(state, mode)
	}
	return state, err
}

// Start executes a run in the background and returns immediately. Invalid
// input is rejected before anything is recorded.
func (r *Runner) Start(runID, query string, overrides *research.Settings, mode string) error {
	if strings.TrimSpace(query) == "" {
		return research.ErrEmptyQuery
	}
	if _, err := r.Settings(overrides); err != nil {
		return err
	}
	r.save(research.NewState(runID, query, time.Now()), mode)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if _, err := r.Run(r.baseCtx, runID, query, overrides, mode); err != nil {
			r.logger.Warn("Background run ended with error", zap.String("run_id", runID), zap.Error(err))
		}
	}()
	return nil
}

// Get returns the latest known state of a run.
func (r *Runner) Get(ctx context.Context, runID string) (*research.ResearchState, error) {
	s, err := r.memory.GetRun(ctx, runID)
	if err == nil || r.opts.Store == nil {
		return s, err
	}
	return r.opts.Store.GetRun(ctx, runID)
}

// save records s in memory and in the durable store. Store errors are logged.
func (r *Runner) save(s *research.ResearchState, mode string) {
	_ = r.memory.SaveRun(context.Background(), s, mode)
	if r.opts.Store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.opts.SaveTimeout)
	defer cancel()
	if err := r.opts.Store.SaveRun(ctx, s, mode); err != nil {
		r.logger.Warn("Failed to persist run", zap.String("run_id", s.RunID), zap.Error(err))
	}
}

// Shutdown cancels background runs and waits for them to record their state.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.cancel()
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Join(errors.New("background runs still active"), ctx.Err())
	}
}

// IsNotFound reports whether err means the run does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, db.ErrRunNotFound)
}
