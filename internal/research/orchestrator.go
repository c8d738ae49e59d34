package research

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/toolscout/internal/tracing"
	"github.com/Kocoro-lab/toolscout/internal/util"
)

// Extractor is the tool extraction stage.
type Extractor interface {
	Extract(ctx context.Context, query string) (ExtractionUpdate, error)
}

// RecommendationStage is the synthesis stage.
type RecommendationStage interface {
	Recommend(ctx context.Context, query string, records []EntityFactRecord) (RecommendationUpdate, error)
}

// Orchestrator sequences extraction, per-entity research and recommendation
// over one ResearchState per run.
type Orchestrator struct {
	extractor   Extractor
	researcher  EntityResearcher
	recommender RecommendationStage
	executor    Executor
	logger      *zap.Logger
	now         func() time.Time
	newID       func() string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithExecutor sets the per-entity executor. Defaults to SequentialExecutor.
func WithExecutor(e Executor) Option {
	return func(o *Orchestrator) { o.executor = e }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithIDGenerator overrides run id generation.
func WithIDGenerator(f func() string) Option {
	return func(o *Orchestrator) { o.newID = f }
}

// NewOrchestrator wires the three stages together.
func NewOrchestrator(extractor Extractor, researcher EntityResearcher, recommender RecommendationStage, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		extractor:   extractor,
		researcher:  researcher,
		recommender: recommender,
		executor:    SequentialExecutor{},
		logger:      zap.NewNop(),
		now:         time.Now,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o
}

// Collaborators bundles everything New needs to build the reference pipeline.
type Collaborators struct {
	Search     Searcher
	Scrape     Scraper
	Text       TextModel
	Structured StructuredModel
	Prompts    Prompts
}

// New builds an Orchestrator from collaborators and settings.
func New(c Collaborators, settings Settings, logger *zap.Logger, opts ...Option) *Orchestrator {
	settings = settings.WithDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	base := []Option{WithLogger(logger), WithExecutor(ExecutorFor(settings.Concurrency))}
	return NewOrchestrator(
		NewToolExtractor(c.Search, c.Scrape, c.Text, c.Prompts, settings, logger),
		NewSiteResearcher(c.Search, c.Scrape, c.Structured, c.Prompts, settings, logger),
		NewRecommender(c.Text, c.Prompts, settings, logger),
		append(base, opts...)...,
	)
}

// Run executes one research run with a generated run id.
func (o *Orchestrator) Run(ctx context.Context, query string, sink ProgressSink) (*ResearchState, error) {
	return o.RunWithID(ctx, o.newID(), query, sink)
}

// RunWithID executes one research run. The returned state is always non-nil
// for a non-empty query; an error is returned only when the run ends Failed.
func (o *Orchestrator) RunWithID(ctx context.Context, runID, query string, sink ProgressSink) (*ResearchState, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if sink == nil {
		sink = NopSink{}
	}
	r := &run{
		o:      o,
		state:  NewState(runID, query, o.now()),
		sink:   sink,
		logger: o.logger.With(zap.String("run_id", runID)),
	}

	ctx, span := tracing.StartSpan(ctx, "research.run",
		attribute.String("run_id", runID),
		attribute.String("query", query),
	)
	err := r.execute(ctx)
	tracing.End(span, err)
	return r.state, err
}

type run struct {
	o      *Orchestrator
	state  *ResearchState
	sink   ProgressSink
	logger *zap.Logger

	// serializes sink delivery from pool workers
	mu    sync.Mutex
	total int
}

func (r *run) execute(ctx context.Context) error {
	r.logger.Info("Research run started", zap.String("query", util.Preview(r.state.Query, 200, true)))

	// extract_tools
	var extracted ExtractionUpdate
	if err := r.stage(ctx, StageExtraction, func(ctx context.Context) error {
		var err error
		extracted, err = r.o.extractor.Extract(ctx, r.state.Query)
		return err
	}); err != nil {
		return r.fail(err)
	}
	Apply(r.state, extracted)
	Apply(r.state, Advance(PhaseToolsExtracted))
	r.emit(Event{Type: EventStageCompleted, Stage: StageExtraction, Total: len(extracted.Tools),
		Message: "Extracted tools: " + util.JoinPreview(extracted.Tools, 5)})

	if len(extracted.Tools) == 0 {
		return r.insufficient()
	}

	// research
	r.total = len(extracted.Tools)
	var researched ResearchUpdate
	if err := r.stage(ctx, StageResearch, func(ctx context.Context) error {
		records, err := r.o.executor.Execute(ctx, extracted.Tools, tracedResearcher{r.o.researcher}, r.entityStarted, r.entityCompleted)
		if err != nil {
			return err
		}
		if len(records) != len(extracted.Tools) {
			return fmt.Errorf("executor returned %d records for %d tools", len(records), len(extracted.Tools))
		}
		researched = ResearchUpdate{Companies: records}
		return nil
	}); err != nil {
		return r.fail(err)
	}
	Apply(r.state, researched)
	Apply(r.state, Advance(PhaseResearched))
	r.emit(Event{Type: EventStageCompleted, Stage: StageResearch, Total: r.total,
		Message: fmt.Sprintf("Research complete: %d tools", len(researched.Companies))})

	// analyze
	var recommended RecommendationUpdate
	if err := r.stage(ctx, StageRecommendation, func(ctx context.Context) error {
		var err error
		recommended, err = r.o.recommender.Recommend(ctx, r.state.Query, r.state.Companies)
		return err
	}); err != nil {
		return r.fail(err)
	}
	Apply(r.state, recommended)
	Apply(r.state, Advance(PhaseAnalyzed))
	r.emit(Event{Type: EventStageCompleted, Stage: StageRecommendation})

	Apply(r.state, Finish(StatusCompleted, "", r.o.now()))
	r.emit(Event{Type: EventRunCompleted, Status: StatusCompleted})
	r.logger.Info("Research run completed", zap.Int("tools", len(r.state.Companies)))
	return nil
}

// stage runs fn inside a span after checking for cancellation at the boundary.
func (r *run) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.emit(Event{Type: EventStageStarted, Stage: name, Total: r.total})
	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, "research."+name, attribute.String("stage", name))
	err := fn(ctx)
	tracing.End(span, err)
	r.logger.Debug("Stage finished",
		zap.String("stage", name),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		zap.Error(err),
	)
	return err
}

func (r *run) insufficient() error {
	for _, u := range InsufficientData(r.o.now()) {
		Apply(r.state, u)
	}
	r.emit(Event{Type: EventRunCompleted, Status: StatusInsufficientData, Message: InsufficientDataMessage})
	r.logger.Info("Research run found no tools")
	return nil
}

func (r *run) fail(err error) error {
	reason := err.Error()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		reason = "cancelled: " + err.Error()
	}
	Apply(r.state, Finish(StatusFailed, reason, r.o.now()))
	r.emit(Event{Type: EventRunFailed, Status: StatusFailed, Reason: reason})
	r.logger.Error("Research run failed", zap.Error(err), zap.String("phase", string(r.state.Phase)))
	return fmt.Errorf("research run %s: %w", r.state.RunID, err)
}

func (r *run) entityStarted(i int, name string, _ *EntityFactRecord) {
	r.emit(Event{Type: EventEntityStarted, Stage: StageResearch, Index: i, Total: r.total, Entity: name,
		Message: fmt.Sprintf("Analyzing %s (%d/%d)", name, i+1, r.total)})
}

func (r *run) entityCompleted(i int, name string, rec *EntityFactRecord) {
	e := Event{Type: EventEntityCompleted, Stage: StageResearch, Index: i, Total: r.total, Entity: name}
	if rec != nil {
		e.Source = rec.Source
	}
	r.emit(e)
}

func (r *run) emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.RunID = r.state.RunID
	e.Timestamp = r.o.now()
	e.Progress = ProgressOf(e, r.total)
	emit(r.logger, r.sink, e)
}

// tracedResearcher wraps each entity in its own span.
type tracedResearcher struct {
	inner EntityResearcher
}

func (t tracedResearcher) Research(ctx context.Context, name string) EntityFactRecord {
	ctx, span := tracing.StartSpan(ctx, "research.entity", attribute.String("tool", name))
	rec := t.inner.Research(ctx, name)
	span.SetAttributes(attribute.String("source", string(rec.Source)))
	span.End()
	return rec
}
