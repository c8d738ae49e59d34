package metrics

import (
	"sync"
	"time"

	"github.com/Kocoro-lab/toolscout/internal/research"
)

// Sink turns research lifecycle events into Prometheus observations. One sink
// can observe many concurrent runs.
type Sink struct {
	mode string

	mu   sync.Mutex
	runs map[string]*runTiming
}

type runTiming struct {
	start  time.Time
	stages map[string]time.Time
}

// NewSink creates a metrics sink for runs executed in mode ("inline", "async", "workflow", "cli").
func NewSink(mode string) *Sink {
	return &Sink{mode: mode, runs: make(map[string]*runTiming)}
}

func (s *Sink) timing(runID string) *runTiming {
	t := s.runs[runID]
	if t == nil {
		t = &runTiming{stages: make(map[string]time.Time)}
		s.runs[runID] = t
	}
	return t
}

// OnEvent implements research.ProgressSink.
func (s *Sink) OnEvent(e research.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch e.Type {
	case research.EventStageStarted:
		t := s.timing(e.RunID)
		if e.Stage == research.StageExtraction {
			t.start = e.Timestamp
			RunsStarted.WithLabelValues(s.mode).Inc()
		}
		t.stages[e.Stage] = e.Timestamp
	case research.EventStageCompleted:
		t := s.timing(e.RunID)
		if start, ok := t.stages[e.Stage]; ok {
			StageDuration.WithLabelValues(e.Stage).Observe(e.Timestamp.Sub(start).Seconds())
			delete(t.stages, e.Stage)
		}
		if e.Stage == research.StageExtraction {
			ToolsExtracted.Observe(float64(e.Total))
		}
	case research.EventEntityCompleted:
		if e.Source != "" {
			EntityOutcomes.WithLabelValues(string(e.Source)).Inc()
		}
	case research.EventRunCompleted, research.EventRunFailed:
		status := string(e.Status)
		if status == "" {
			status = string(research.StatusFailed)
		}
		var d time.Duration
		if t, ok := s.runs[e.RunID]; ok && !t.start.IsZero() {
			d = e.Timestamp.Sub(t.start)
		}
		delete(s.runs, e.RunID)
		RecordRunMetrics(s.mode, status, d)
	}
	RunsActive.WithLabelValues(s.mode).Set(float64(len(s.runs)))
}

// Active returns the number of runs with no terminal event yet.
func (s *Sink) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.runs)
}
